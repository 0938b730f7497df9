// Package filter provides a processor plugin selecting packets by PID.
// Matching packets pass; the rest are dropped, nullified, or simply left
// unlabeled depending on the options.
package filter

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

// Processor filters packets by PID.
type Processor struct {
	log *slog.Logger

	pids      map[ts.PID]bool
	negate    bool
	nullify   bool
	setLabel  int // -1 when unused
	onlyLabel int // -1 when unused

	matched uint64
}

// New creates a filter processor plugin. If log is nil, slog.Default()
// is used.
func New(log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{log: log}
}

func (p *Processor) Name() string { return "filter" }

func (p *Processor) GetOptions(args []string) error {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	pidList := fs.String("pid", "", "comma-separated PID values, decimal or 0x-prefixed")
	negate := fs.Bool("negate", false, "invert the selection")
	nullify := fs.Bool("null", false, "replace non-matching packets with null packets instead of dropping them")
	setLabel := fs.Int("set-label", -1, "label matching packets and pass everything")
	onlyLabel := fs.Int("only-label", -1, "examine only packets carrying this label")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("filter: unexpected argument %q", fs.Arg(0))
	}
	pids, err := parsePIDs(*pidList)
	if err != nil {
		return err
	}
	if *setLabel >= ts.LabelCount || *onlyLabel >= ts.LabelCount {
		return fmt.Errorf("filter: label values must be below %d", ts.LabelCount)
	}
	p.pids = pids
	p.negate = *negate
	p.nullify = *nullify
	p.setLabel = *setLabel
	p.onlyLabel = *onlyLabel
	return nil
}

func parsePIDs(list string) (map[ts.PID]bool, error) {
	pids := make(map[ts.PID]bool)
	if list == "" {
		return pids, nil
	}
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(field), 0, 64)
		if err != nil || v > uint64(ts.PIDNull) {
			return nil, fmt.Errorf("filter: invalid PID %q", field)
		}
		pids[ts.PID(v)] = true
	}
	return pids, nil
}

func (p *Processor) Start() error {
	p.matched = 0
	return nil
}

func (p *Processor) Stop() error {
	p.log.Debug("filter done", "matched", p.matched)
	return nil
}

func (p *Processor) IsRealTime() bool { return false }

// OnlyLabels restricts the filter to labeled packets when -only-label is
// given; other packets bypass the plugin entirely.
func (p *Processor) OnlyLabels() ts.LabelSet {
	if p.onlyLabel < 0 {
		return ts.NoLabel
	}
	return ts.SingleLabel(p.onlyLabel)
}

func (p *Processor) ProcessPacket(pkt *ts.Packet, meta *ts.Metadata) plugin.Status {
	match := p.pids[pkt.PID()] != p.negate
	if match {
		p.matched++
		if p.setLabel >= 0 {
			meta.SetLabel(p.setLabel)
		}
		return plugin.Pass
	}
	if p.setLabel >= 0 {
		// Labeling mode never removes packets.
		return plugin.Pass
	}
	if p.nullify {
		return plugin.Null
	}
	return plugin.Drop
}
