// Package drop provides an output plugin that discards every packet, the
// pipeline equivalent of /dev/null.
package drop

import (
	"fmt"
	"log/slog"

	"github.com/zsiec/tsflow/internal/ts"
)

// Output discards packets, counting what it throws away.
type Output struct {
	log     *slog.Logger
	packets uint64
}

// NewOutput creates a drop output plugin. If log is nil, slog.Default()
// is used.
func NewOutput(log *slog.Logger) *Output {
	if log == nil {
		log = slog.Default()
	}
	return &Output{log: log}
}

func (o *Output) Name() string { return "drop" }

func (o *Output) GetOptions(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("drop output: unexpected argument %q", args[0])
	}
	return nil
}

func (o *Output) Start() error {
	o.packets = 0
	return nil
}

func (o *Output) Stop() error {
	o.log.Debug("packets discarded", "packets", o.packets)
	return nil
}

func (o *Output) IsRealTime() bool { return false }

func (o *Output) Send(pkts []ts.Packet, meta []ts.Metadata) error {
	o.packets += uint64(len(pkts))
	return nil
}
