package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/tsflow/internal/plugin"
)

// Kind identifies an executor's position class in the chain.
type Kind int

const (
	KindInput Kind = iota
	KindProcessor
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindProcessor:
		return "processor"
	case KindOutput:
		return "output"
	default:
		return "invalid"
	}
}

// executor is the per-stage state shared between a stage's own goroutine,
// its neighbors, and the control surface. Every field below the mutex
// comment is guarded by the single engine-wide mutex: a window handoff
// mutates two neighboring executors together and must be one atomic step.
//
// Links: next is the data successor (nil for the output executor); prev is
// the predecessor, woken when this stage aborts; release, set only on the
// output executor, points at the input executor and closes the ring for two
// purposes only: returning freed slots as input free space and letting the
// output observe a pipeline-wide abort. Packet flags and bitrate never
// travel along release.
type executor struct {
	log     *slog.Logger
	opts    *Options
	kind    Kind
	index   int
	plug    plugin.Plugin
	buffer  *PacketBuffer
	metrics *Metrics

	mu   *sync.Mutex
	wake chan struct{}

	next    *executor
	prev    *executor
	release *executor

	// notifyAbort interrupts a blocking input receive when any stage
	// starts aborting, so the input goroutine reaches its next wait
	// point. Set by the engine when the input plugin supports it.
	notifyAbort func()

	// fatal is the engine-wide failure flag, shared by all stages. It is
	// raised when a stage aborts because of an error (output failure,
	// unhandled timeout, unrecoverable restart), never by a clean Stop
	// verdict or end of input.
	fatal *atomic.Bool

	// Guarded by mu.
	first         int
	count         int
	bitrate       uint64
	inputEnd      bool
	aborting      bool
	suspended     bool
	plugStopped   bool
	pending       *RestartRequest
	restartState  RestartState
	args          []string // last argument vector the plugin started with
	receivedTotal uint64
	passedTotal   uint64

	pluginPackets    atomic.Uint64
	nonPluginPackets atomic.Uint64

	done chan struct{}
}

func newExecutor(kind Kind, index int, plug plugin.Plugin, opts *Options, mu *sync.Mutex, log *slog.Logger) *executor {
	return &executor{
		log:   log.With("stage", fmt.Sprintf("%d-%s", index, plug.Name())),
		opts:  opts,
		kind:  kind,
		index: index,
		plug:  plug,
		mu:    mu,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// wakeUp nudges the stage's goroutine out of waitWork. The channel has
// capacity one, so a pending nudge absorbs duplicates.
func (e *executor) wakeUp() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// abortWatch returns the executor whose aborting flag ends this stage's
// wait: the data successor, or for the output stage the input across the
// ring-closure edge.
func (e *executor) abortWatch() *executor {
	if e.next != nil {
		return e.next
	}
	return e.release
}

// initWindow assigns the stage's initial window before its goroutine
// starts. The caller holds no lock; no thread is running yet.
func (e *executor) initWindow(first, count int, bitrate uint64) {
	e.first = first
	e.count = count
	e.bitrate = bitrate
}

// waitWork blocks until the stage's window is non-empty, its input has
// ended, a restart is pending, its abort watch (or the stage itself) is
// aborting, or the configured receive timeout elapses. The returned window
// is truncated at the arena end so the caller always sees one contiguous
// slice; the remainder is delivered by the next call.
func (e *executor) waitWork() (first, count int, bitrate uint64, inputEnd, aborted, timedOut bool) {
	var deadline <-chan time.Time
	if e.opts.ReceiveTimeout > 0 {
		t := time.NewTimer(e.opts.ReceiveTimeout)
		defer t.Stop()
		deadline = t.C
	}

	e.mu.Lock()
	for {
		aborted = e.aborting || e.abortWatch().aborting
		if e.count > 0 || e.inputEnd || aborted || e.pending != nil {
			break
		}
		e.mu.Unlock()
		select {
		case <-e.wake:
		case <-deadline:
			e.mu.Lock()
			bitrate, inputEnd = e.bitrate, e.inputEnd
			e.mu.Unlock()
			return 0, 0, bitrate, inputEnd, false, true
		}
		e.mu.Lock()
	}
	first = e.first
	count = e.count
	if max := e.buffer.Count() - first; count > max {
		count = max
	}
	bitrate = e.bitrate
	inputEnd = e.inputEnd
	e.mu.Unlock()
	return first, count, bitrate, inputEnd, aborted, false
}

// passPackets commits count packets at the front of the stage's window to
// its successor: one atomic update of this stage's window start and count
// and the successor's count, plus forward propagation of bitrate and
// input-end. For the output stage the freed slots return to the input as
// free capacity, with no flag propagation across the ring edge. When
// aborted is set, the stage raises its own aborting flag and wakes its
// predecessor so the abort cascades exactly one hop upstream per call.
//
// The return value is false when the downstream side is aborting, telling
// the caller to stop producing into a dead pipeline. Passing more packets
// than the window holds is a programming error and panics.
func (e *executor) passPackets(count int, bitrate uint64, inputEnd, aborted bool) bool {
	e.mu.Lock()
	if count > e.count {
		e.mu.Unlock()
		panic(fmt.Sprintf("engine: stage %d passes %d packets but owns %d", e.index, count, e.count))
	}

	if e.next != nil {
		e.next.count += count
		e.next.receivedTotal += uint64(count)
		if inputEnd {
			e.next.inputEnd = true
		}
		e.next.bitrate = bitrate
		e.next.wakeUp()
	} else if e.release != nil {
		e.release.count += count
		e.release.wakeUp()
	}

	e.first = (e.first + count) % e.buffer.Count()
	e.count -= count
	e.passedTotal += uint64(count)

	firstAbort := aborted && !e.aborting
	if aborted {
		e.aborting = true
		if e.prev != nil {
			e.prev.wakeUp()
		}
	}
	ok := !e.abortWatch().aborting
	e.mu.Unlock()
	if firstAbort && e.notifyAbort != nil {
		e.notifyAbort()
	}
	return ok
}

// setAbort places the stage in the aborting state from outside its own
// goroutine (pipeline-wide abort) and wakes it and its neighbors.
func (e *executor) setAbort() {
	e.mu.Lock()
	first := !e.aborting
	e.aborting = true
	e.mu.Unlock()
	e.wakeUp()
	if e.prev != nil {
		e.prev.wakeUp()
	}
	if first && e.notifyAbort != nil {
		e.notifyAbort()
	}
}

// windowCount reads the stage's full current window count, including any
// part beyond the arena-end truncation applied by waitWork.
func (e *executor) windowCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// isAborting reports the stage's own aborting flag.
func (e *executor) isAborting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborting
}

// setFatal records a stage failure so Wait can tell a pipeline fault from
// a clean end of input.
func (e *executor) setFatal() {
	if e.fatal != nil {
		e.fatal.Store(true)
	}
}

// stopPlugin stops the unit exactly once at thread exit. A failed restart
// leaves the unit already stopped; it must not be stopped twice.
func (e *executor) stopPlugin() {
	e.mu.Lock()
	already := e.plugStopped
	e.plugStopped = true
	e.mu.Unlock()
	if already {
		return
	}
	if err := e.plug.Stop(); err != nil {
		e.log.Warn("plugin stop failed", "error", err)
	}
}

// setSuspended toggles bypass of the plugin. Packets keep flowing; they
// are just not submitted to the unit.
func (e *executor) setSuspended(on bool) {
	e.mu.Lock()
	e.suspended = on
	e.mu.Unlock()
	e.wakeUp()
}

func (e *executor) isSuspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

// addPluginPackets counts packets submitted to the plugin.
func (e *executor) addPluginPackets(n int) {
	e.pluginPackets.Add(uint64(n))
	if e.metrics != nil {
		e.metrics.PacketsTotal.WithLabelValues(e.plug.Name(), e.kind.String()).Add(float64(n))
	}
}

// addNonPluginPackets counts packets that crossed the stage without being
// submitted to the plugin (suspended, label-filtered, or dead slots).
func (e *executor) addNonPluginPackets(n int) {
	e.nonPluginPackets.Add(uint64(n))
}

// totalPackets is the number of packets that crossed this stage.
func (e *executor) totalPackets() uint64 {
	return e.pluginPackets.Load() + e.nonPluginPackets.Load()
}

// handleTimeout gives the plugin's timeout hook a chance to keep the stage
// alive. It reports true when waiting should resume; an unhandled timeout
// is a pipeline fault.
func (e *executor) handleTimeout() bool {
	if h, ok := e.plug.(plugin.TimeoutHandler); ok && h.HandlePacketTimeout() {
		return true
	}
	e.log.Error("receive timeout, aborting", "timeout", e.opts.ReceiveTimeout)
	e.setFatal()
	return false
}
