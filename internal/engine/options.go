package engine

import (
	"fmt"
	"time"

	"github.com/zsiec/tsflow/internal/plugin"
)

// Tristate is an option that can be forced on, forced off, or left for the
// engine to decide from the plugins' preferences.
type Tristate int

const (
	Auto Tristate = iota
	On
	Off
)

// Options configures one pipeline. The zero value plus an input and output
// spec is runnable; applyDefaults fills the rest once the real-time mode is
// known.
type Options struct {
	// BufferPackets is the arena capacity in packets.
	BufferPackets int

	// MaxFlushPackets caps how many packets a processor handles before
	// handing them to its successor. 0 means no intermediate flush.
	MaxFlushPackets int

	// MaxInputPackets caps a single input operation. 0 means fill all
	// free space.
	MaxInputPackets int

	// Input stuffing: insert InstuffNullPkt null packets every
	// InstuffInPkt input packets, InstuffStart null packets before the
	// first input packet and InstuffStop after the last one.
	InstuffNullPkt int
	InstuffInPkt   int
	InstuffStart   int
	InstuffStop    int

	// FixedBitrate forces the input bitrate in bits per second instead of
	// deriving it from clock references.
	FixedBitrate uint64

	// BitrateAdjustInterval is how often the bitrate is re-evaluated once
	// a value has been established.
	BitrateAdjustInterval time.Duration

	// InitBitrateAdjustPackets is how many packets between re-evaluations
	// while the bitrate is still unknown.
	InitBitrateAdjustPackets int

	// ReceiveTimeout bounds how long a stage waits for work. 0 disables
	// the timeout.
	ReceiveTimeout time.Duration

	// Realtime forces or forbids real-time defaults; Auto derives the
	// mode from the plugins.
	Realtime Tristate

	Input      plugin.Spec
	Processors []plugin.Spec
	Output     plugin.Spec
}

// Validate rejects option combinations the engine cannot run.
func (o *Options) Validate() error {
	if o.Input.Name == "" {
		return fmt.Errorf("no input plugin specified")
	}
	if o.Output.Name == "" {
		return fmt.Errorf("no output plugin specified")
	}
	if o.InstuffNullPkt < 0 || o.InstuffInPkt < 0 || o.InstuffStart < 0 || o.InstuffStop < 0 {
		return fmt.Errorf("stuffing counts must not be negative")
	}
	if (o.InstuffNullPkt > 0) != (o.InstuffInPkt > 0) {
		return fmt.Errorf("interleaved stuffing needs both a null and an input packet count")
	}
	return nil
}

// applyDefaults fills unset options with offline or real-time defaults.
// Real-time pipelines flush smaller batches to keep latency bounded.
func (o *Options) applyDefaults(realtime bool) {
	if o.BufferPackets == 0 {
		o.BufferPackets = DefaultBufferPackets
	}
	if o.BufferPackets < MinBufferPackets {
		o.BufferPackets = MinBufferPackets
	}
	if o.MaxFlushPackets == 0 {
		if realtime {
			o.MaxFlushPackets = 1000
		} else {
			o.MaxFlushPackets = 10000
		}
	}
	if o.MaxInputPackets == 0 && realtime {
		o.MaxInputPackets = 1000
	}
	if o.BitrateAdjustInterval == 0 {
		o.BitrateAdjustInterval = 5 * time.Second
	}
	if o.InitBitrateAdjustPackets == 0 {
		o.InitBitrateAdjustPackets = 1000
	}
}
