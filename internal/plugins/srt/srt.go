// Package srt provides input and output plugins carrying the transport
// stream over SRT, in listener or caller mode.
package srt

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/tsflow/internal/ts"
)

// readBufferSize holds ten standard SRT payloads of 7 packets each.
const readBufferSize = 1316 * 10

// DefaultLatency is the SRT latency used when none is given.
const DefaultLatency = 120 * time.Millisecond

type options struct {
	addr     string
	caller   bool
	streamID string
	latency  time.Duration
}

func parseOptions(kind string, args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("srt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&o.caller, "caller", false, "connect to the remote address instead of listening")
	fs.StringVar(&o.streamID, "streamid", "", "SRT stream identifier")
	fs.DurationVar(&o.latency, "latency", DefaultLatency, "SRT latency")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		return o, fmt.Errorf("srt %s: exactly one address:port required", kind)
	}
	if o.latency <= 0 {
		return o, fmt.Errorf("srt %s: invalid latency %s", kind, o.latency)
	}
	o.addr = fs.Arg(0)
	return o, nil
}

func dial(o options) (*srtgo.Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = o.latency
	cfg.StreamID = o.streamID
	return srtgo.Dial(o.addr, cfg)
}

// listen opens a listening socket and returns an accept function plus a
// closer that unblocks a pending accept.
func listen(o options) (accept func() (*srtgo.Conn, error), closer func(), err error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = o.latency
	cfg.StreamID = o.streamID
	l, err := srtgo.Listen(o.addr, cfg)
	if err != nil {
		return nil, nil, err
	}
	return func() (*srtgo.Conn, error) { return l.Accept() }, func() { l.Close() }, nil
}

// assembler regroups an SRT byte stream into whole packets across reads.
type assembler struct {
	buf []byte
}

// push appends raw bytes and copies as many whole packets as fit into the
// given slots, keeping the remainder for the next push.
func (a *assembler) push(data []byte, pkts []ts.Packet) int {
	a.buf = append(a.buf, data...)
	n := 0
	for len(a.buf)-n*ts.PacketSize >= ts.PacketSize && n < len(pkts) {
		copy(pkts[n][:], a.buf[n*ts.PacketSize:(n+1)*ts.PacketSize])
		n++
	}
	a.buf = append(a.buf[:0], a.buf[n*ts.PacketSize:]...)
	return n
}

func (a *assembler) reset() { a.buf = a.buf[:0] }

// Input reads packets from one SRT connection. In listener mode it
// accepts a single publisher; in caller mode it dials the remote side.
type Input struct {
	log  *slog.Logger
	opts options

	mu            sync.Mutex
	acceptConn    func() (*srtgo.Conn, error)
	closeListener func()
	conn          *srtgo.Conn
	aborted       bool

	asm assembler
	buf []byte
}

// NewInput creates an SRT input plugin. If log is nil, slog.Default() is
// used.
func NewInput(log *slog.Logger) *Input {
	if log == nil {
		log = slog.Default()
	}
	return &Input{log: log}
}

func (i *Input) Name() string { return "srt" }

func (i *Input) GetOptions(args []string) error {
	o, err := parseOptions("input", args)
	if err != nil {
		return err
	}
	i.opts = o
	return nil
}

func (i *Input) Start() error {
	i.asm.reset()
	i.buf = make([]byte, readBufferSize)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.aborted = false

	if i.opts.caller {
		conn, err := dial(i.opts)
		if err != nil {
			return fmt.Errorf("srt input: dial %s: %w", i.opts.addr, err)
		}
		i.conn = conn
		i.log.Info("connected", "addr", i.opts.addr)
		return nil
	}

	accept, closer, err := listen(i.opts)
	if err != nil {
		return fmt.Errorf("srt input: listen %s: %w", i.opts.addr, err)
	}
	i.acceptConn, i.closeListener = accept, closer
	i.log.Info("listening", "addr", i.opts.addr)
	return nil
}

func (i *Input) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closeSockets()
	return nil
}

// closeSockets closes the connection and listener. Callers hold i.mu.
func (i *Input) closeSockets() {
	if i.conn != nil {
		i.conn.Close()
		i.conn = nil
	}
	if i.closeListener != nil {
		i.closeListener()
		i.closeListener = nil
		i.acceptConn = nil
	}
}

func (i *Input) IsRealTime() bool { return true }

func (i *Input) Bitrate() uint64 { return 0 }

// AbortInput unblocks a pending accept or read by closing the sockets.
func (i *Input) AbortInput() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.aborted = true
	i.closeSockets()
}

func (i *Input) Receive(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	conn, err := i.connection()
	if conn == nil || err != nil {
		return 0, err
	}
	for {
		n, err := conn.Read(i.buf)
		if err != nil {
			if i.isAborted() || errors.Is(err, io.EOF) {
				return 0, nil
			}
			return 0, fmt.Errorf("srt input: %w", err)
		}
		if got := i.asm.push(i.buf[:n], pkts); got > 0 {
			return got, nil
		}
	}
}

// connection returns the active connection, accepting the first caller in
// listener mode.
func (i *Input) connection() (*srtgo.Conn, error) {
	i.mu.Lock()
	conn, accept, aborted := i.conn, i.acceptConn, i.aborted
	i.mu.Unlock()
	if conn != nil || aborted {
		return conn, nil
	}
	if accept == nil {
		return nil, nil
	}

	c, err := accept()
	if err != nil {
		if i.isAborted() {
			return nil, nil
		}
		return nil, fmt.Errorf("srt input: accept: %w", err)
	}
	i.log.Info("publisher connected",
		"remote", c.RemoteAddr(), "stream_id", c.StreamID())

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.aborted {
		c.Close()
		return nil, nil
	}
	i.conn = c
	return c, nil
}

func (i *Input) isAborted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.aborted
}

// Output writes packets to one SRT connection in 7-packet payloads.
type Output struct {
	log  *slog.Logger
	opts options

	conn    *srtgo.Conn
	payload []byte
}

// NewOutput creates an SRT output plugin. If log is nil, slog.Default()
// is used.
func NewOutput(log *slog.Logger) *Output {
	if log == nil {
		log = slog.Default()
	}
	return &Output{log: log}
}

func (o *Output) Name() string { return "srt" }

func (o *Output) GetOptions(args []string) error {
	opts, err := parseOptions("output", args)
	if err != nil {
		return err
	}
	if !opts.caller {
		return errors.New("srt output: only caller mode is supported, pass -caller")
	}
	o.opts = opts
	return nil
}

func (o *Output) Start() error {
	conn, err := dial(o.opts)
	if err != nil {
		return fmt.Errorf("srt output: dial %s: %w", o.opts.addr, err)
	}
	o.conn = conn
	o.payload = o.payload[:0]
	o.log.Info("connected", "addr", o.opts.addr)
	return nil
}

func (o *Output) Stop() error {
	if o.conn == nil {
		return nil
	}
	var err error
	if len(o.payload) > 0 {
		_, err = o.conn.Write(o.payload)
		o.payload = o.payload[:0]
	}
	o.conn.Close()
	o.conn = nil
	return err
}

func (o *Output) IsRealTime() bool { return true }

func (o *Output) Send(pkts []ts.Packet, meta []ts.Metadata) error {
	const payloadSize = 7 * ts.PacketSize
	for i := range pkts {
		o.payload = append(o.payload, pkts[i][:]...)
		if len(o.payload) >= payloadSize {
			if _, err := o.conn.Write(o.payload); err != nil {
				return fmt.Errorf("srt output: %w", err)
			}
			o.payload = o.payload[:0]
		}
	}
	return nil
}
