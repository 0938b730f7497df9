package engine

import (
	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

// processorExecutor runs one packet-processor plugin over its window, one
// packet at a time, with periodic flushes so downstream stages never wait
// for a whole window to complete.
type processorExecutor struct {
	*executor
	proc plugin.Processor
}

func newProcessorExecutor(base *executor, proc plugin.Processor) *processorExecutor {
	return &processorExecutor{executor: base, proc: proc}
}

// onlyLabels returns the processor's label filter, empty when the unit
// wants every packet. Re-read each iteration because a restart can change
// the plugin's options.
func (e *processorExecutor) onlyLabels() ts.LabelSet {
	if lf, ok := e.proc.(plugin.LabelFilter); ok {
		return lf.OnlyLabels()
	}
	return ts.NoLabel
}

// main is the processor stage's thread of control.
func (e *processorExecutor) main() {
	e.log.Debug("packet processing thread started")

	var passedPackets, droppedPackets, nullifiedPackets uint64
	outputBitrate := uint64(0)
	bitrateNeverModified := true
	inputEnd := false
	aborted := false

	for {
		first, count, brIn, end, ab, timedOut := e.waitWork()
		inputEnd, aborted = end, ab

		// waitWork truncates the window at the arena end; input end may
		// only travel downstream once the wrapped remainder is gone too.
		wholeWindow := count == e.windowCount()

		// While the plugin never overrides the bitrate, forward the
		// input value; otherwise keep the plugin's last override.
		if bitrateNeverModified {
			outputBitrate = brIn
		}

		if !e.processPendingRestart() {
			// The plugin is stopped for good; the timeout hook must not
			// keep the stage alive.
			e.passPackets(0, outputBitrate, true, true)
			aborted = true
			break
		}
		if timedOut {
			if e.handleTimeout() {
				continue
			}
			e.passPackets(0, outputBitrate, true, true)
			aborted = true
			break
		}

		// Successor is aborting: inform the predecessor and drain.
		if aborted && !inputEnd {
			e.passPackets(0, outputBitrate, true, true)
			break
		}

		// No more packets to process: propagate end of input and exit.
		if count == 0 && inputEnd {
			e.passPackets(0, outputBitrate, true, false)
			break
		}

		only := e.onlyLabels()
		suspended := e.isSuspended()
		pkts := e.buffer.Packets(first, count)
		meta := e.buffer.Metadata(first, count)

		done := 0
		flush := 0
		stopped := false
		for done < count && !aborted {
			pkt := &pkts[done]
			md := &meta[done]
			done++
			flush++

			if pkt[0] == 0 {
				// Dropped by an earlier processor.
				e.addNonPluginPackets(1)
			} else {
				wasNull := pkt.IsNull()
				md.SetFlush(false)
				md.SetBitrateChanged(false)

				status := plugin.Pass
				if !suspended && (only.None() || md.HasAnyLabel(only)) {
					status = e.proc.ProcessPacket(pkt, md)
					e.addPluginPackets(1)
				} else {
					e.addNonPluginPackets(1)
				}

				switch status {
				case plugin.Pass:
					passedPackets++
				case plugin.Null:
					*pkt = ts.Null
				case plugin.Drop:
					pkt[0] = 0
					droppedPackets++
					if e.metrics != nil {
						e.metrics.DroppedTotal.WithLabelValues(e.plug.Name()).Inc()
					}
				case plugin.Stop:
					// End of input downstream, abort upstream.
					inputEnd = true
					aborted = true
					stopped = true
					done--
					flush--
					count = done
				default:
					e.log.Error("invalid packet processing status", "status", int(status))
				}

				if !wasNull && pkt.IsNull() {
					md.SetNullified(true)
					nullifiedPackets++
					if e.metrics != nil {
						e.metrics.NullifiedTotal.WithLabelValues(e.plug.Name()).Inc()
					}
				}

				if md.BitrateChanged() {
					if bp, ok := e.proc.(plugin.BitrateProvider); ok {
						if br := bp.Bitrate(); br != 0 {
							bitrateNeverModified = false
							outputBitrate = br
						}
					}
				}
			}

			// Hand over batches early so the successor never waits for
			// the whole window.
			if md.Flush() || done == count ||
				(e.opts.MaxFlushPackets > 0 && flush%e.opts.MaxFlushPackets == 0) {
				endHere := done == count && inputEnd && (wholeWindow || stopped)
				if !e.passPackets(flush, outputBitrate, endHere, aborted) {
					aborted = true
				}
				flush = 0
			}
		}

		if aborted || (inputEnd && wholeWindow) {
			break
		}
	}

	e.stopPlugin()
	e.log.Debug("packet processing thread terminated",
		"packets", e.totalPackets(),
		"passed", passedPackets,
		"dropped", droppedPackets,
		"nullified", nullifiedPackets)
	close(e.done)
}
