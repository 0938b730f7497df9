package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/tsflow/internal/plugin"
)

// ErrPipelineAborted is returned by Wait when the pipeline terminated by
// abort rather than by reaching the end of its input.
var ErrPipelineAborted = errors.New("pipeline aborted")

// StageInfo is a snapshot of one pipeline stage for the control API.
type StageInfo struct {
	Index     int      `json:"index"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Args      []string `json:"args"`
	Suspended bool     `json:"suspended"`
	Packets   uint64   `json:"packets"`
}

// Engine runs one transport stream pipeline: an input plugin, a chain of
// packet processors and an output plugin, each on its own goroutine,
// sharing a circular packet arena. All stages synchronize on a single
// mutex so window handoffs are serialized.
type Engine struct {
	log     *slog.Logger
	opts    Options
	metrics *Metrics

	mu     sync.Mutex
	buffer *PacketBuffer

	input  *inputExecutor
	procs  []*processorExecutor
	output *outputExecutor
	stages []*executor // pipeline order, input first

	started      bool
	abortRequest atomic.Bool
	fatal        atomic.Bool
}

// New instantiates the plugin chain from the registry and wires the
// pipeline. Plugins are created and configured here; Start launches them.
func New(opts Options, reg *plugin.Registry, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	in, err := reg.NewInput(opts.Input.Name, log)
	if err != nil {
		return nil, err
	}
	procs := make([]plugin.Processor, len(opts.Processors))
	for i, spec := range opts.Processors {
		if procs[i], err = reg.NewProcessor(spec.Name, log); err != nil {
			return nil, err
		}
	}
	out, err := reg.NewOutput(opts.Output.Name, log)
	if err != nil {
		return nil, err
	}

	// Real-time mode defaults on when any plugin prefers it, unless the
	// user forced it either way.
	realtime := in.IsRealTime() || out.IsRealTime()
	for _, p := range procs {
		realtime = realtime || p.IsRealTime()
	}
	switch opts.Realtime {
	case On:
		realtime = true
	case Off:
		realtime = false
	}
	opts.applyDefaults(realtime)

	e := &Engine{
		log:     log.With("component", "engine"),
		opts:    opts,
		metrics: NewMetrics(),
		buffer:  NewPacketBuffer(opts.BufferPackets),
	}

	base := newExecutor(KindInput, 0, in, &e.opts, &e.mu, log)
	e.input = newInputExecutor(base, in)
	e.stages = append(e.stages, e.input.executor)
	for i, p := range procs {
		pe := newProcessorExecutor(newExecutor(KindProcessor, i+1, p, &e.opts, &e.mu, log), p)
		e.procs = append(e.procs, pe)
		e.stages = append(e.stages, pe.executor)
	}
	oe := newOutputExecutor(newExecutor(KindOutput, len(procs)+1, out, &e.opts, &e.mu, log), out)
	e.output = oe
	e.stages = append(e.stages, oe.executor)

	for i, st := range e.stages {
		st.buffer = e.buffer
		st.metrics = e.metrics
		st.fatal = &e.fatal
		if i > 0 {
			st.prev = e.stages[i-1]
			e.stages[i-1].next = st
		}
	}
	// The ring-closure edge: freed output slots become input free space,
	// and the output watches the input for a pipeline-wide abort. The
	// data links above never wrap.
	oe.next = nil
	oe.release = e.input.executor

	// An abort anywhere must also unblock the input plugin's receive,
	// or its goroutine would never reach the next wait point.
	if a, ok := in.(plugin.Aborter); ok {
		for _, st := range e.stages {
			st.notifyAbort = a.AbortInput
		}
	}

	// Argument vectors are parsed up front so a misconfigured chain
	// fails before anything starts.
	for i, st := range e.stages {
		var args []string
		switch {
		case i == 0:
			args = opts.Input.Args
		case i == len(e.stages)-1:
			args = opts.Output.Args
		default:
			args = opts.Processors[i-1].Args
		}
		if err := st.plug.GetOptions(args); err != nil {
			return nil, fmt.Errorf("%s plugin %s: %w", st.kind, st.plug.Name(), err)
		}
		st.args = args
	}

	return e, nil
}

// Metrics exposes the engine's instrumentation for the control server.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Start launches the plugins and the stage goroutines. Plugins start in
// reverse chain order with the input last, so every downstream plugin is
// ready before the first packet is produced; the output starts after the
// initial bitrate is known so it can read a meaningful hint.
func (e *Engine) Start() error {
	if e.started {
		return errors.New("engine already started")
	}

	for i := len(e.procs) - 1; i >= 0; i-- {
		p := e.procs[i]
		if err := p.proc.Start(); err != nil {
			e.stopStarted(i + 1)
			return fmt.Errorf("start processor %s: %w", p.plug.Name(), err)
		}
	}
	if err := e.input.in.Start(); err != nil {
		e.stopStarted(0)
		return fmt.Errorf("start input %s: %w", e.input.plug.Name(), err)
	}

	// Initial windows: the input owns the whole arena as free space,
	// everything downstream starts empty.
	bitrate := e.input.initialBitrate()
	e.input.initWindow(0, e.buffer.Count(), bitrate)
	for _, st := range e.stages[1:] {
		st.initWindow(0, 0, bitrate)
	}

	if err := e.output.out.Start(); err != nil {
		e.stopStarted(0)
		if serr := e.input.in.Stop(); serr != nil {
			e.log.Warn("input plugin stop failed", "error", serr)
		}
		return fmt.Errorf("start output %s: %w", e.output.plug.Name(), err)
	}

	e.started = true
	e.log.Info("pipeline started",
		"stages", len(e.stages),
		"buffer_packets", e.buffer.Count(),
		"initial_bitrate", bitrate)

	go e.input.main()
	for _, p := range e.procs {
		go p.main()
	}
	go e.output.main()
	return nil
}

// stopStarted stops the processors from index from through the end of the
// chain, the ones already started when a later Start failed.
func (e *Engine) stopStarted(from int) {
	for i := from; i < len(e.procs); i++ {
		if err := e.procs[i].proc.Stop(); err != nil {
			e.log.Warn("processor plugin stop failed", "error", err)
		}
	}
}

// Abort asks every stage to terminate as soon as possible, without
// draining buffered packets. Safe to call more than once and from any
// goroutine.
func (e *Engine) Abort() {
	e.abortRequest.Store(true)
	for _, st := range e.stages {
		st.setAbort()
	}
}

// Wait blocks until every stage goroutine has terminated. It returns
// ErrPipelineAborted when termination came from Abort or from a stage
// failure at any position in the chain (output error, unhandled receive
// timeout, unrecoverable restart) rather than from the end of the input
// stream.
func (e *Engine) Wait() error {
	for _, st := range e.stages {
		<-st.done
	}
	if e.abortRequest.Load() || e.fatal.Load() {
		return ErrPipelineAborted
	}
	return nil
}

// Stages snapshots the chain for the control API.
func (e *Engine) Stages() []StageInfo {
	infos := make([]StageInfo, len(e.stages))
	for i, st := range e.stages {
		e.mu.Lock()
		args := st.args
		e.mu.Unlock()
		infos[i] = StageInfo{
			Index:     i,
			Kind:      st.kind.String(),
			Name:      st.plug.Name(),
			Args:      args,
			Suspended: st.isSuspended(),
			Packets:   st.totalPackets(),
		}
	}
	return infos
}

// stage resolves an index from the control API.
func (e *Engine) stage(index int) (*executor, error) {
	if index < 0 || index >= len(e.stages) {
		return nil, fmt.Errorf("no plugin at index %d", index)
	}
	return e.stages[index], nil
}

// Restart asks the stage at index to restart its plugin. The request
// completes asynchronously; call req.Wait for the outcome.
func (e *Engine) Restart(index int, req *RestartRequest) error {
	st, err := e.stage(index)
	if err != nil {
		return err
	}
	st.requestRestart(req)
	return nil
}

// SetSuspended suspends or resumes the stage at index. A suspended
// processor passes packets through untouched; a suspended output drops
// its window. The input stage cannot be suspended.
func (e *Engine) SetSuspended(index int, on bool) error {
	st, err := e.stage(index)
	if err != nil {
		return err
	}
	if st.kind == KindInput {
		return errors.New("the input plugin cannot be suspended")
	}
	st.setSuspended(on)
	return nil
}
