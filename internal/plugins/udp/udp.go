// Package udp provides input and output plugins moving transport stream
// packets over UDP, 7 packets per datagram as is customary for MPEG-TS.
package udp

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/zsiec/tsflow/internal/ts"
)

// DefaultBurst is the usual number of packets per datagram: 7 * 188 fits
// in a standard ethernet frame.
const DefaultBurst = 7

const maxDatagram = 65536

// Input receives datagrams on a UDP port and splits them into packets.
type Input struct {
	log        *slog.Logger
	addr       string
	bufferSize int

	conn     *net.UDPConn
	dgram    []byte
	leftover []byte
	warned   bool
}

// NewInput creates a UDP input plugin. If log is nil, slog.Default() is
// used.
func NewInput(log *slog.Logger) *Input {
	if log == nil {
		log = slog.Default()
	}
	return &Input{log: log}
}

func (i *Input) Name() string { return "udp" }

func (i *Input) GetOptions(args []string) error {
	fs := flag.NewFlagSet("udp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bufSize := fs.Int("buffer-size", 0, "socket receive buffer in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("udp input: exactly one [address]:port required")
	}
	i.addr = fs.Arg(0)
	i.bufferSize = *bufSize
	return nil
}

func (i *Input) Start() error {
	laddr, err := net.ResolveUDPAddr("udp", i.addr)
	if err != nil {
		return fmt.Errorf("udp input: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("udp input: %w", err)
	}
	if i.bufferSize > 0 {
		if err := conn.SetReadBuffer(i.bufferSize); err != nil {
			i.log.Warn("cannot set receive buffer", "size", i.bufferSize, "error", err)
		}
	}
	i.conn = conn
	i.dgram = make([]byte, maxDatagram)
	i.leftover = nil
	i.warned = false
	i.log.Debug("listening", "addr", conn.LocalAddr())
	return nil
}

func (i *Input) Stop() error {
	if i.conn == nil {
		return nil
	}
	err := i.conn.Close()
	i.conn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (i *Input) IsRealTime() bool { return true }

func (i *Input) Bitrate() uint64 { return 0 }

// AbortInput unblocks a pending read by closing the socket.
func (i *Input) AbortInput() {
	if i.conn != nil {
		i.conn.Close()
	}
}

func (i *Input) Receive(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	n := i.drainLeftover(pkts)
	if n > 0 {
		return n, nil
	}
	for n == 0 {
		size, _, err := i.conn.ReadFromUDP(i.dgram)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return 0, nil
			}
			return 0, fmt.Errorf("udp input: %w", err)
		}
		n = i.splitDatagram(i.dgram[:size], pkts)
	}
	return n, nil
}

// splitDatagram copies whole packets from one datagram into the given
// slots, parking what does not fit for the next call. A trailing partial
// packet means a misaligned sender and is discarded.
func (i *Input) splitDatagram(data []byte, pkts []ts.Packet) int {
	if tail := len(data) % ts.PacketSize; tail != 0 {
		if !i.warned {
			i.warned = true
			i.log.Warn("datagram size is not a multiple of the packet size, truncating",
				"size", len(data))
		}
		data = data[:len(data)-tail]
	}
	n := 0
	for len(data) >= ts.PacketSize && n < len(pkts) {
		copy(pkts[n][:], data[:ts.PacketSize])
		data = data[ts.PacketSize:]
		n++
	}
	if len(data) > 0 {
		i.leftover = append(i.leftover[:0], data...)
	}
	return n
}

func (i *Input) drainLeftover(pkts []ts.Packet) int {
	n := 0
	for len(i.leftover) >= ts.PacketSize && n < len(pkts) {
		copy(pkts[n][:], i.leftover[:ts.PacketSize])
		i.leftover = i.leftover[ts.PacketSize:]
		n++
	}
	return n
}

// Output sends packets to a UDP destination in bursts.
type Output struct {
	log   *slog.Logger
	addr  string
	burst int

	conn  net.Conn
	dgram []byte
}

// NewOutput creates a UDP output plugin. If log is nil, slog.Default()
// is used.
func NewOutput(log *slog.Logger) *Output {
	if log == nil {
		log = slog.Default()
	}
	return &Output{log: log}
}

func (o *Output) Name() string { return "udp" }

func (o *Output) GetOptions(args []string) error {
	fs := flag.NewFlagSet("udp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	burst := fs.Int("burst", DefaultBurst, "packets per datagram")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("udp output: exactly one address:port required")
	}
	if *burst < 1 || *burst*ts.PacketSize > maxDatagram {
		return fmt.Errorf("udp output: invalid burst %d", *burst)
	}
	o.addr = fs.Arg(0)
	o.burst = *burst
	return nil
}

func (o *Output) Start() error {
	conn, err := net.Dial("udp", o.addr)
	if err != nil {
		return fmt.Errorf("udp output: %w", err)
	}
	o.conn = conn
	o.dgram = o.dgram[:0]
	return nil
}

func (o *Output) Stop() error {
	if o.conn == nil {
		return nil
	}
	var err error
	if len(o.dgram) > 0 {
		_, err = o.conn.Write(o.dgram)
		o.dgram = o.dgram[:0]
	}
	if cerr := o.conn.Close(); err == nil {
		err = cerr
	}
	o.conn = nil
	return err
}

func (o *Output) IsRealTime() bool { return true }

func (o *Output) Send(pkts []ts.Packet, meta []ts.Metadata) error {
	for i := range pkts {
		o.dgram = append(o.dgram, pkts[i][:]...)
		if len(o.dgram) >= o.burst*ts.PacketSize {
			if _, err := o.conn.Write(o.dgram); err != nil {
				return fmt.Errorf("udp output: %w", err)
			}
			o.dgram = o.dgram[:0]
		}
	}
	return nil
}
