// Package file provides input and output plugins reading and writing raw
// transport stream files. The input can replay the file a fixed number of
// times or loop forever.
package file

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zsiec/tsflow/internal/ts"
)

// Input reads 188-byte packets from a file.
type Input struct {
	log      *slog.Logger
	path     string
	repeat   int
	infinite bool

	f        *os.File
	loops    int
	loopPkts int
}

// NewInput creates a file input plugin. If log is nil, slog.Default() is
// used.
func NewInput(log *slog.Logger) *Input {
	if log == nil {
		log = slog.Default()
	}
	return &Input{log: log}
}

func (i *Input) Name() string { return "file" }

func (i *Input) GetOptions(args []string) error {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	repeat := fs.Int("repeat", 1, "number of times to play the file")
	infinite := fs.Bool("infinite", false, "loop over the file forever")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("file input: exactly one file name required")
	}
	if *repeat < 1 {
		return fmt.Errorf("file input: invalid repeat count %d", *repeat)
	}
	i.path = fs.Arg(0)
	i.repeat = *repeat
	i.infinite = *infinite
	return nil
}

func (i *Input) Start() error {
	f, err := os.Open(i.path)
	if err != nil {
		return fmt.Errorf("file input: %w", err)
	}
	i.f = f
	i.loops = 0
	i.loopPkts = 0
	i.log.Debug("file opened", "path", i.path)
	return nil
}

func (i *Input) Stop() error {
	if i.f == nil {
		return nil
	}
	err := i.f.Close()
	i.f = nil
	return err
}

func (i *Input) IsRealTime() bool { return false }

func (i *Input) Bitrate() uint64 { return 0 }

func (i *Input) Receive(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	n := 0
	for n < len(pkts) {
		_, err := io.ReadFull(i.f, pkts[n][:])
		switch {
		case err == nil:
			n++
			i.loopPkts++
		case errors.Is(err, io.EOF):
			if i.loopPkts == 0 {
				// An empty file would rewind forever without ever
				// producing a packet.
				return n, nil
			}
			i.loops++
			if !i.infinite && i.loops >= i.repeat {
				return n, nil
			}
			if _, err := i.f.Seek(0, io.SeekStart); err != nil {
				return n, fmt.Errorf("file input: rewind: %w", err)
			}
			i.loopPkts = 0
		case errors.Is(err, io.ErrUnexpectedEOF):
			return n, fmt.Errorf("file input: %s: truncated packet at end of file", i.path)
		default:
			return n, fmt.Errorf("file input: %w", err)
		}
	}
	return n, nil
}

// Output writes packets to a file, or to standard output when the file
// name is "-" or absent.
type Output struct {
	log    *slog.Logger
	path   string
	append bool

	f  *os.File
	w  *bufio.Writer
	wc io.Closer // nil when writing to stdout
}

// NewOutput creates a file output plugin. If log is nil, slog.Default()
// is used.
func NewOutput(log *slog.Logger) *Output {
	if log == nil {
		log = slog.Default()
	}
	return &Output{log: log}
}

func (o *Output) Name() string { return "file" }

func (o *Output) GetOptions(args []string) error {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	app := fs.Bool("append", false, "append to the file instead of truncating")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return errors.New("file output: at most one file name allowed")
	}
	o.path = fs.Arg(0)
	o.append = *app
	return nil
}

func (o *Output) Start() error {
	if o.path == "" || o.path == "-" {
		o.f = os.Stdout
		o.wc = nil
	} else {
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if o.append {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(o.path, flags, 0o644)
		if err != nil {
			return fmt.Errorf("file output: %w", err)
		}
		o.f = f
		o.wc = f
	}
	o.w = bufio.NewWriterSize(o.f, 64*ts.PacketSize)
	return nil
}

func (o *Output) Stop() error {
	if o.w == nil {
		return nil
	}
	err := o.w.Flush()
	if o.wc != nil {
		if cerr := o.wc.Close(); err == nil {
			err = cerr
		}
	}
	o.w = nil
	o.f = nil
	o.wc = nil
	return err
}

func (o *Output) IsRealTime() bool { return false }

func (o *Output) Send(pkts []ts.Packet, meta []ts.Metadata) error {
	for i := range pkts {
		if _, err := o.w.Write(pkts[i][:]); err != nil {
			return fmt.Errorf("file output: %w", err)
		}
	}
	return nil
}
