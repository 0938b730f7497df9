// Package plugin defines the lifecycle contract between the pipeline engine
// and its pluggable units: one input, zero or more packet processors, and
// one output. The engine drives every unit through this narrow interface
// and never looks at what a unit does with packet contents.
package plugin

import "github.com/zsiec/tsflow/internal/ts"

// Status is the verdict a processor returns for one packet.
type Status int

const (
	// Pass forwards the packet unchanged (beyond in-place edits).
	Pass Status = iota
	// Null replaces the packet with a null packet.
	Null
	// Drop removes the packet from the stream.
	Drop
	// Stop ends the stream: end-of-input downstream, abort upstream.
	Stop
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Null:
		return "null"
	case Drop:
		return "drop"
	case Stop:
		return "stop"
	default:
		return "invalid"
	}
}

// Plugin is the lifecycle shared by all unit kinds. GetOptions parses the
// unit's argument vector and is called once before Start, and again on a
// live restart with new arguments. Start and Stop bracket packet activity
// and may be called repeatedly (stop, then start) across restarts.
type Plugin interface {
	Name() string
	GetOptions(args []string) error
	Start() error
	Stop() error

	// IsRealTime reports that the unit prefers real-time defaults
	// (smaller buffers, shorter flush intervals).
	IsRealTime() bool
}

// Input produces packets into the slots the engine hands it.
type Input interface {
	Plugin

	// Receive fills up to len(pkts) packet slots and returns how many it
	// produced. Zero with a nil error means end of input. The metadata
	// slots have already been reset by the engine.
	Receive(pkts []ts.Packet, meta []ts.Metadata) (int, error)

	// Bitrate returns the input's own knowledge of the stream bitrate in
	// bits per second, or 0 when unknown.
	Bitrate() uint64
}

// Aborter is implemented by inputs that can interrupt a blocking Receive.
type Aborter interface {
	AbortInput()
}

// Processor transforms or consumes packets in place, one at a time.
type Processor interface {
	Plugin

	ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) Status
}

// LabelFilter is implemented by processors that only want to see packets
// carrying specific labels; other packets are forwarded without invoking
// the unit.
type LabelFilter interface {
	OnlyLabels() ts.LabelSet
}

// BitrateProvider is implemented by processors that change the stream
// bitrate. The engine queries it after a packet whose metadata has the
// bitrate-changed flag set.
type BitrateProvider interface {
	Bitrate() uint64
}

// Output consumes a window of packets in one call.
type Output interface {
	Plugin

	// Send transmits the given packets. The engine has already excluded
	// slots dropped by processors; every packet here is live.
	Send(pkts []ts.Packet, meta []ts.Metadata) error
}

// TimeoutHandler is implemented by units that want a say when their stage
// receives no work within the configured timeout. Returning true resumes
// waiting; returning false aborts the stage.
type TimeoutHandler interface {
	HandlePacketTimeout() bool
}
