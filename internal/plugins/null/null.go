// Package null provides an input plugin generating null packets, useful
// for timing tests and as padding source.
package null

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/tsflow/internal/ts"
)

// Input produces null packets, forever or up to a fixed count.
type Input struct {
	log   *slog.Logger
	limit uint64 // 0 means unlimited
	sent  uint64
}

// NewInput creates a null input plugin. If log is nil, slog.Default() is
// used.
func NewInput(log *slog.Logger) *Input {
	if log == nil {
		log = slog.Default()
	}
	return &Input{log: log}
}

func (i *Input) Name() string { return "null" }

func (i *Input) GetOptions(args []string) error {
	fs := flag.NewFlagSet("null", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	count := fs.Uint64("count", 0, "number of packets to generate, 0 for unlimited")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("null input: unexpected argument %q", fs.Arg(0))
	}
	i.limit = *count
	return nil
}

func (i *Input) Start() error {
	i.sent = 0
	return nil
}

func (i *Input) Stop() error { return nil }

func (i *Input) IsRealTime() bool { return false }

func (i *Input) Bitrate() uint64 { return 0 }

func (i *Input) Receive(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	n := len(pkts)
	if i.limit > 0 {
		if remain := i.limit - i.sent; uint64(n) > remain {
			n = int(remain)
		}
	}
	for k := 0; k < n; k++ {
		pkts[k] = ts.Null
	}
	i.sent += uint64(n)
	return n, nil
}
