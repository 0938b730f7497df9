// Package bitrate infers the transport stream bitrate from the periodic
// clock references embedded in packets: program clock references (PCR) in
// adaptation fields, or decoding timestamps (DTS) in PES headers when the
// stream carries no usable PCR.
package bitrate

import "github.com/zsiec/tsflow/internal/ts"

// Default gating thresholds before an analyzer reports a bitrate. DTS
// samples are much sparser than PCR samples, hence the lower bar.
const (
	DefaultMinPIDs       = 1
	DefaultMinPCRSamples = 64
	DefaultMinDTSSamples = 4
)

// maxInterval is the largest plausible clock gap between two successive
// references on one PID, in 27 MHz units. Anything larger is treated as a
// discontinuity and restarts that PID's tracking.
const maxInterval = 2 * ts.SystemClock

type pidState struct {
	lastValue  uint64 // last reference, 27 MHz units
	lastPacket uint64 // global packet index of the last reference
	primed     bool
	counted    bool // already counted toward the distinct-PID gate
}

// Analyzer accumulates clock-reference intervals per PID and derives a
// global bitrate. Feed it every packet of the stream; it ignores packets
// without the reference it tracks.
type Analyzer struct {
	minPIDs    int
	minSamples int
	useDTS     bool

	packets    uint64 // total packets fed
	pids       map[ts.PID]*pidState
	activePIDs int

	samples       int
	packetsSummed uint64 // sum of packet intervals between references
	clockSummed   uint64 // sum of clock intervals, 27 MHz units
}

// NewPCRAnalyzer returns an analyzer driven by PCR samples.
func NewPCRAnalyzer(minPIDs, minSamples int) *Analyzer {
	return &Analyzer{
		minPIDs:    minPIDs,
		minSamples: minSamples,
		pids:       make(map[ts.PID]*pidState),
	}
}

// NewDTSAnalyzer returns an analyzer driven by DTS samples, for streams
// where PCR-based analysis never becomes valid.
func NewDTSAnalyzer(minPIDs, minSamples int) *Analyzer {
	a := NewPCRAnalyzer(minPIDs, minSamples)
	a.useDTS = true
	return a
}

// Reset discards all accumulated state.
func (a *Analyzer) Reset() {
	a.packets = 0
	a.pids = make(map[ts.PID]*pidState)
	a.activePIDs = 0
	a.samples = 0
	a.packetsSummed = 0
	a.clockSummed = 0
}

// reference extracts the tracked clock value in 27 MHz units.
func (a *Analyzer) reference(p *ts.Packet) (uint64, uint64, bool) {
	if a.useDTS {
		dts, ok := p.DTS()
		return dts * ts.SystemClockSubfactor, (uint64(1) << 33) * ts.SystemClockSubfactor, ok
	}
	pcr, ok := p.PCR()
	return pcr, (uint64(1) << 33) * ts.SystemClockSubfactor, ok
}

// Feed accounts for one packet. The packet index advances even when the
// packet carries no clock reference: intervals are measured in packets
// of the whole stream, not of one PID.
func (a *Analyzer) Feed(p *ts.Packet) {
	index := a.packets
	a.packets++

	value, period, ok := a.reference(p)
	if !ok {
		return
	}

	pid := p.PID()
	st := a.pids[pid]
	if st == nil {
		st = &pidState{}
		a.pids[pid] = st
	}
	if !st.primed {
		st.lastValue = value
		st.lastPacket = index
		st.primed = true
		return
	}

	delta := value - st.lastValue
	if value < st.lastValue {
		delta = value + period - st.lastValue
	}
	pkts := index - st.lastPacket
	st.lastValue = value
	st.lastPacket = index

	if delta == 0 || delta > maxInterval || pkts == 0 {
		// Discontinuity or duplicate reference: restart from here.
		return
	}

	a.samples++
	a.packetsSummed += pkts
	a.clockSummed += delta
	if !st.counted {
		st.counted = true
		a.activePIDs++
	}
}

// Valid reports whether enough distinct PIDs and samples were observed
// for Bitrate to be meaningful.
func (a *Analyzer) Valid() bool {
	return a.activePIDs >= a.minPIDs && a.samples >= a.minSamples
}

// Bitrate returns the derived transport bitrate in bits per second, or 0
// when the analyzer is not yet valid.
func (a *Analyzer) Bitrate() uint64 {
	if !a.Valid() || a.clockSummed == 0 {
		return 0
	}
	return a.packetsSummed * ts.PacketSize * 8 * ts.SystemClock / a.clockSummed
}
