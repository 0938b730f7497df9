package engine

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrRestartInterrupted completes a pending restart request that was
// preempted by a newer request for the same stage.
var ErrRestartInterrupted = errors.New("restart interrupted by concurrent restart request")

// RestartState tracks where a stage is in the restart protocol.
type RestartState int

const (
	RestartIdle RestartState = iota
	RestartRequested
	RestartApplying
)

// RestartRequest asks one stage to stop its plugin and start it again,
// either with the same arguments or with a new argument vector. All
// diagnostics of the attempt go to the request's sink logger, never to the
// stage's normal log. The requester blocks on Wait; completion is signaled
// exactly once, by the stage's own goroutine or by a preempting request.
type RestartRequest struct {
	SameArgs bool
	Args     []string

	sink *slog.Logger
	done chan error
}

// NewRestartRequest builds a request. A nil sink falls back to
// slog.Default().
func NewRestartRequest(sameArgs bool, args []string, sink *slog.Logger) *RestartRequest {
	if sink == nil {
		sink = slog.Default()
	}
	return &RestartRequest{
		SameArgs: sameArgs,
		Args:     args,
		sink:     sink,
		done:     make(chan error, 1),
	}
}

// Wait blocks until the request completes and returns its outcome. A
// successful fallback to the previous options counts as success; the
// warning is on the sink.
func (r *RestartRequest) Wait() error { return <-r.done }

// complete signals the waiter. The buffered channel plus single writer per
// ownership handoff guarantees exactly-once delivery.
func (r *RestartRequest) complete(err error) {
	select {
	case r.done <- err:
	default:
	}
}

// requestRestart attaches a request to the stage, preempting and failing
// any request still pending there.
func (e *executor) requestRestart(req *RestartRequest) {
	e.mu.Lock()
	if prev := e.pending; prev != nil {
		prev.complete(ErrRestartInterrupted)
	}
	e.pending = req
	e.restartState = RestartRequested
	e.mu.Unlock()
	e.wakeUp()
}

// processPendingRestart runs at the stage's safe point between packet
// iterations. It consumes at most one pending request, applies it, and
// reports false when the stage can no longer run (restart failed and the
// fallback to the previous options failed too).
func (e *executor) processPendingRestart() bool {
	e.mu.Lock()
	req := e.pending
	if req == nil {
		e.mu.Unlock()
		return true
	}
	e.pending = nil
	e.restartState = RestartApplying
	oldArgs := e.args
	e.mu.Unlock()

	err := e.applyRestart(req, oldArgs)

	e.mu.Lock()
	e.restartState = RestartIdle
	// A failed restart leaves the plugin in the stopped state: the stage
	// exits without stopping it again.
	e.plugStopped = err != nil
	e.mu.Unlock()
	if err == nil {
		if e.metrics != nil {
			e.metrics.RestartsTotal.WithLabelValues(e.plug.Name()).Inc()
		}
	} else {
		e.setFatal()
	}
	req.complete(err)
	return err == nil
}

// applyRestart performs the stop / re-option / start sequence with all
// diagnostics on the request sink.
func (e *executor) applyRestart(req *RestartRequest, oldArgs []string) error {
	sink := req.sink
	sink.Info("restarting plugin", "plugin", e.plug.Name(), "same_args", req.SameArgs)

	if err := e.plug.Stop(); err != nil {
		// A plugin that cannot stop cleanly can usually still be
		// restarted; record and carry on.
		sink.Warn("plugin stop failed before restart", "error", err)
	}

	if req.SameArgs {
		if err := e.plug.Start(); err != nil {
			sink.Error("plugin failed to restart", "error", err)
			return fmt.Errorf("restart %s: %w", e.plug.Name(), err)
		}
		sink.Info("plugin restarted", "plugin", e.plug.Name())
		return nil
	}

	if err := e.startWithArgs(req.Args); err != nil {
		sink.Warn("restart with new options failed, reverting", "error", err)
		if err2 := e.startWithArgs(oldArgs); err2 != nil {
			sink.Error("revert to previous options failed", "error", err2)
			return fmt.Errorf("restart %s: %w (revert also failed: %v)", e.plug.Name(), err, err2)
		}
		sink.Warn("plugin restarted with previous options", "plugin", e.plug.Name())
		return nil
	}

	e.mu.Lock()
	e.args = req.Args
	e.mu.Unlock()
	sink.Info("plugin restarted with new options", "plugin", e.plug.Name())
	return nil
}

// startWithArgs re-parses an argument vector and starts the plugin.
func (e *executor) startWithArgs(args []string) error {
	if err := e.plug.GetOptions(args); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	if err := e.plug.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}
