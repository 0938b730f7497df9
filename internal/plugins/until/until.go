// Package until provides a processor plugin that ends the stream after a
// condition is met: a packet count, or the first packet of a given PID.
package until

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

// Processor passes packets until its termination condition is reached,
// then returns the stop verdict.
type Processor struct {
	log     *slog.Logger
	packets uint64 // stop after this many packets, 0 disables
	pid     int    // stop at the first packet of this PID, -1 disables

	passed uint64
}

// New creates an until processor plugin. If log is nil, slog.Default()
// is used.
func New(log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{log: log}
}

func (p *Processor) Name() string { return "until" }

func (p *Processor) GetOptions(args []string) error {
	fs := flag.NewFlagSet("until", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	packets := fs.Uint64("packets", 0, "stop after this many packets")
	pid := fs.Int("pid", -1, "stop at the first packet of this PID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("until: unexpected argument %q", fs.Arg(0))
	}
	if *packets == 0 && *pid < 0 {
		return fmt.Errorf("until: a termination condition is required")
	}
	if *pid > int(ts.PIDNull) {
		return fmt.Errorf("until: invalid PID %d", *pid)
	}
	p.packets = *packets
	p.pid = *pid
	return nil
}

func (p *Processor) Start() error {
	p.passed = 0
	return nil
}

func (p *Processor) Stop() error { return nil }

func (p *Processor) IsRealTime() bool { return false }

func (p *Processor) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
	if p.packets > 0 && p.passed >= p.packets {
		p.log.Debug("packet count reached, stopping", "packets", p.passed)
		return plugin.Stop
	}
	if p.pid >= 0 && pkt.PID() == ts.PID(p.pid) {
		p.log.Debug("PID reached, stopping", "pid", p.pid, "packets", p.passed)
		return plugin.Stop
	}
	p.passed++
	return plugin.Pass
}
