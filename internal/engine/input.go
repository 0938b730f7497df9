package engine

import (
	"time"

	"github.com/zsiec/tsflow/internal/bitrate"
	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

// inputExecutor runs the input plugin. Its window is the arena's free
// space: it grows when the output stage releases slots and shrinks as
// packets are produced and passed downstream.
type inputExecutor struct {
	*executor
	in plugin.Input

	// Stuffing state, touched only by the stage's own goroutine.
	startRemain int
	stopRemain  int
	nullRemain  int
	realRemain  int
	pluginEnded bool
	syncLost    bool
	totalReal   uint64

	pcr    *bitrate.Analyzer
	dts    *bitrate.Analyzer
	useDTS bool

	curBitrate     uint64
	pktSinceAdjust int
	lastAdjust     time.Time
}

func newInputExecutor(base *executor, in plugin.Input) *inputExecutor {
	e := &inputExecutor{
		executor: base,
		in:       in,
		pcr:      bitrate.NewPCRAnalyzer(bitrate.DefaultMinPIDs, bitrate.DefaultMinPCRSamples),
		dts:      bitrate.NewDTSAnalyzer(bitrate.DefaultMinPIDs, bitrate.DefaultMinDTSSamples),
	}
	e.startRemain = base.opts.InstuffStart
	e.stopRemain = base.opts.InstuffStop
	if base.opts.interleaving() {
		e.nullRemain = base.opts.InstuffNullPkt
		e.realRemain = base.opts.InstuffInPkt
	}
	return e
}

// interleaving reports whether N-nulls-per-M-packets stuffing is on.
func (o *Options) interleaving() bool {
	return o.InstuffNullPkt > 0 && o.InstuffInPkt > 0
}

// inputDone reports that no further real packet will ever be produced.
func (e *inputExecutor) inputDone() bool { return e.pluginEnded || e.syncLost }

// main is the input stage's thread of control.
func (e *inputExecutor) main() {
	e.log.Debug("input thread started")

	for {
		first, count, _, _, aborted, timedOut := e.waitWork()

		if !e.processPendingRestart() {
			// The plugin is stopped for good; the timeout hook must not
			// keep the stage alive.
			e.passPackets(0, e.curBitrate, true, true)
			break
		}
		if timedOut {
			if e.handleTimeout() {
				continue
			}
			e.passPackets(0, e.curBitrate, true, true)
			break
		}
		if aborted {
			break
		}

		if e.opts.MaxInputPackets > 0 && count > e.opts.MaxInputPackets {
			count = e.opts.MaxInputPackets
		}

		n := e.receiveAndStuff(e.buffer.Packets(first, count), e.buffer.Metadata(first, count))
		if n == 0 {
			// Nothing left to produce: real input is over and all
			// trailing stuffing has been emitted.
			e.passPackets(0, e.curBitrate, true, false)
			break
		}

		e.adjustBitrate(n)
		if !e.passPackets(n, e.curBitrate, false, false) {
			break
		}
	}

	e.stopPlugin()
	e.log.Debug("input thread terminated", "packets", e.totalPackets())
	close(e.done)
}

// receiveAndStuff fills packet slots applying the three stuffing phases:
// leading nulls, the null/real interleave cycle, then trailing nulls once
// the plugin reported end of input. Without an interleave ratio the middle
// phase is a single direct read.
func (e *inputExecutor) receiveAndStuff(pkts []ts.Packet, meta []ts.Metadata) int {
	n := 0

	for n < len(pkts) && e.startRemain > 0 {
		e.putStuffing(&pkts[n], &meta[n])
		e.startRemain--
		n++
	}

	for n < len(pkts) && !e.inputDone() {
		if !e.opts.interleaving() {
			n += e.receiveReal(pkts[n:], meta[n:])
			break
		}
		if e.nullRemain > 0 {
			e.putStuffing(&pkts[n], &meta[n])
			e.nullRemain--
			n++
			continue
		}
		if e.realRemain == 0 {
			// Both counters exhausted: start the next cycle.
			e.nullRemain = e.opts.InstuffNullPkt
			e.realRemain = e.opts.InstuffInPkt
			continue
		}
		want := e.realRemain
		if room := len(pkts) - n; want > room {
			want = room
		}
		got := e.receiveReal(pkts[n:n+want], meta[n:n+want])
		e.realRemain -= got
		n += got
	}

	if e.pluginEnded && !e.syncLost {
		for n < len(pkts) && e.stopRemain > 0 {
			e.putStuffing(&pkts[n], &meta[n])
			e.stopRemain--
			n++
		}
	}
	return n
}

func (e *inputExecutor) putStuffing(pkt *ts.Packet, meta *ts.Metadata) {
	*pkt = ts.Null
	meta.Reset()
	meta.SetInputStuffing(true)
	e.addNonPluginPackets(1)
}

// receiveReal reads packets from the input plugin, validates their sync
// bytes, and feeds the bitrate analyzers. Sync loss is sticky: the first
// unsynchronized packet discards the rest of the read and every later
// call returns zero.
func (e *inputExecutor) receiveReal(pkts []ts.Packet, meta []ts.Metadata) int {
	if e.inputDone() || len(pkts) == 0 {
		return 0
	}
	for i := range meta {
		meta[i].Reset()
	}

	n, err := e.in.Receive(pkts, meta)
	if err != nil {
		e.log.Error("input error", "error", err)
		e.pluginEnded = true
	}
	if n == 0 {
		e.pluginEnded = true
		return 0
	}

	for i := 0; i < n; i++ {
		if !pkts[i].HasSync() {
			e.log.Error("packet synchronization lost, stopping input",
				"after_packets", e.totalReal+uint64(i),
				"got_byte", pkts[i][0])
			e.syncLost = true
			n = i
			break
		}
	}

	for i := 0; i < n; i++ {
		e.pcr.Feed(&pkts[i])
		e.dts.Feed(&pkts[i])
	}
	e.totalReal += uint64(n)
	e.addPluginPackets(n)
	return n
}

// adjustBitrate re-evaluates the bitrate every InitBitrateAdjustPackets
// packets while the value is unknown, then every BitrateAdjustInterval of
// wall clock once established.
func (e *inputExecutor) adjustBitrate(produced int) {
	e.pktSinceAdjust += produced
	switch {
	case e.curBitrate == 0:
		if e.pktSinceAdjust >= e.opts.InitBitrateAdjustPackets {
			e.pktSinceAdjust = 0
			e.reevalBitrate()
		}
	case time.Since(e.lastAdjust) >= e.opts.BitrateAdjustInterval:
		e.lastAdjust = time.Now()
		e.reevalBitrate()
	}
}

func (e *inputExecutor) reevalBitrate() {
	br := e.deriveBitrate()
	if br != e.curBitrate {
		e.log.Debug("input bitrate", "bits_per_second", br)
	}
	e.curBitrate = br
	if e.metrics != nil {
		e.metrics.Bitrate.Set(float64(br))
	}
}

// deriveBitrate picks the bitrate source by priority: a user-declared
// fixed value, the input plugin's own report, the PCR estimator, then the
// DTS estimator. Once DTS-based estimation has been used it stays
// preferred over a later-valid PCR estimation to avoid oscillation. The
// result is scaled for interleaved-stuffing overhead, since the declared
// and measured values describe the raw input without the inserted nulls.
func (e *inputExecutor) deriveBitrate() uint64 {
	br := e.opts.FixedBitrate
	if br == 0 {
		br = e.in.Bitrate()
	}
	if br == 0 {
		switch {
		case e.useDTS:
			br = e.dts.Bitrate()
		case e.pcr.Valid():
			br = e.pcr.Bitrate()
		case e.dts.Valid():
			e.useDTS = true
			e.log.Debug("no valid PCR analysis, switching to DTS-based bitrate")
			br = e.dts.Bitrate()
		}
	}
	if br != 0 && e.opts.interleaving() {
		br = br * uint64(e.opts.InstuffNullPkt+e.opts.InstuffInPkt) / uint64(e.opts.InstuffInPkt)
	}
	return br
}

// initialBitrate is evaluated once before the stage threads start, so the
// output plugin can be started with a bitrate hint.
func (e *inputExecutor) initialBitrate() uint64 {
	e.reevalBitrate()
	e.lastAdjust = time.Now()
	return e.curBitrate
}
