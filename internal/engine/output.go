package engine

import (
	"github.com/zsiec/tsflow/internal/plugin"
)

// outputExecutor runs the output plugin. Handing off its window is a
// release of slots back to the arena's free capacity, observed by the
// input stage as room to produce; no packet flag or bitrate ever crosses
// that edge.
type outputExecutor struct {
	*executor
	out plugin.Output
}

func newOutputExecutor(base *executor, out plugin.Output) *outputExecutor {
	return &outputExecutor{executor: base, out: out}
}

// main is the output stage's thread of control.
func (e *outputExecutor) main() {
	e.log.Debug("output thread started")

	for {
		first, count, bitrate, inputEnd, aborted, timedOut := e.waitWork()
		wholeWindow := count == e.windowCount()

		if !e.processPendingRestart() {
			// The plugin is stopped for good; the timeout hook must not
			// keep the stage alive.
			e.passPackets(0, bitrate, false, true)
			break
		}
		if timedOut {
			if e.handleTimeout() {
				continue
			}
			e.passPackets(0, bitrate, false, true)
			break
		}
		if aborted {
			break
		}

		if count > 0 && !e.isSuspended() {
			if err := e.send(first, count); err != nil {
				e.log.Error("output error, aborting", "error", err)
				e.setFatal()
				e.passPackets(0, bitrate, false, true)
				break
			}
		} else if count > 0 {
			e.addNonPluginPackets(count)
		}

		// Release the slots to the input as free capacity.
		e.passPackets(count, bitrate, false, false)

		if inputEnd && wholeWindow {
			break
		}
	}

	e.stopPlugin()
	e.log.Debug("output thread terminated", "packets", e.totalPackets())
	close(e.done)
}

// send submits the window to the output plugin in contiguous runs of live
// packets, skipping slots dropped by processors.
func (e *outputExecutor) send(first, count int) error {
	pkts := e.buffer.Packets(first, count)
	meta := e.buffer.Metadata(first, count)

	i := 0
	for i < count {
		if pkts[i][0] == 0 {
			e.addNonPluginPackets(1)
			i++
			continue
		}
		j := i + 1
		for j < count && pkts[j][0] != 0 {
			j++
		}
		if err := e.out.Send(pkts[i:j], meta[i:j]); err != nil {
			return err
		}
		e.addPluginPackets(j - i)
		i = j
	}
	return nil
}
