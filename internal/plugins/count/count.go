// Package count provides a processor plugin counting packets, globally
// and per PID, without touching the stream.
package count

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

// Processor counts packets and reports on stop, and optionally at a
// fixed packet interval while running.
type Processor struct {
	log      *slog.Logger
	interval uint64

	total uint64
	pids  map[ts.PID]uint64
}

// New creates a count processor plugin. If log is nil, slog.Default() is
// used.
func New(log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{log: log}
}

func (p *Processor) Name() string { return "count" }

func (p *Processor) GetOptions(args []string) error {
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	interval := fs.Uint64("interval", 0, "log a progress line every N packets, 0 to disable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("count: unexpected argument %q", fs.Arg(0))
	}
	p.interval = *interval
	return nil
}

func (p *Processor) Start() error {
	p.total = 0
	p.pids = make(map[ts.PID]uint64)
	return nil
}

func (p *Processor) Stop() error {
	p.log.Info("packet count", "total", p.total, "pids", len(p.pids))
	return nil
}

func (p *Processor) IsRealTime() bool { return false }

// Total returns the number of packets seen since Start.
func (p *Processor) Total() uint64 { return p.total }

// PIDCount returns the number of packets seen on one PID since Start.
func (p *Processor) PIDCount(pid ts.PID) uint64 { return p.pids[pid] }

func (p *Processor) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
	p.total++
	p.pids[pkt.PID()]++
	if p.interval > 0 && p.total%p.interval == 0 {
		p.log.Info("progress", "packets", p.total)
	}
	return plugin.Pass
}
