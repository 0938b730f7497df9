// Package ts defines the fixed-size MPEG transport packet cell and its
// per-packet pipeline metadata. The engine's arena is built from parallel
// arrays of these two types; all other packages treat packet contents as
// opaque bytes except for the few header fields needed here (PID, PCR, DTS).
package ts

// PID is a 13-bit packet identifier.
type PID uint16

const (
	// PacketSize is the size in bytes of a transport packet.
	PacketSize = 188

	// SyncByte is the expected value of the first byte of every packet.
	SyncByte = 0x47

	// PIDNull is the PID of null (stuffing) packets.
	PIDNull PID = 0x1FFF

	// SystemClock is the transport system clock frequency in Hz (27 MHz).
	SystemClock = 27_000_000

	// SystemClockSubfactor is the ratio between the 27 MHz system clock
	// and the 90 kHz PTS/DTS clock.
	SystemClockSubfactor = 300

	// pcrPeriod is the wrap-around period of the 42-bit PCR: the 33-bit
	// base times the subfactor.
	pcrPeriod = (uint64(1) << 33) * SystemClockSubfactor

	// dtsPeriod is the wrap-around period of the 33-bit DTS.
	dtsPeriod = uint64(1) << 33
)

// Packet is one 188-byte transport packet cell. Its identity in the engine
// is its index in the arena; contents are overwritten in place.
type Packet [PacketSize]byte

// Null is the canonical null packet: PID 0x1FFF, payload filled with 0xFF.
var Null = makeNull()

func makeNull() Packet {
	var p Packet
	p[0] = SyncByte
	p[1] = 0x1F
	p[2] = 0xFF
	p[3] = 0x10 // payload only, CC 0
	for i := 4; i < PacketSize; i++ {
		p[i] = 0xFF
	}
	return p
}

// HasSync reports whether the packet starts with the sync byte.
func (p *Packet) HasSync() bool { return p[0] == SyncByte }

// PID returns the packet identifier.
func (p *Packet) PID() PID { return PID(p[1]&0x1F)<<8 | PID(p[2]) }

// SetPID overwrites the packet identifier.
func (p *Packet) SetPID(pid PID) {
	p[1] = (p[1] &^ 0x1F) | byte(pid>>8)&0x1F
	p[2] = byte(pid)
}

// IsNull reports whether the packet is a null packet.
func (p *Packet) IsNull() bool { return p.PID() == PIDNull }

// PayloadUnitStart reports the payload_unit_start_indicator bit.
func (p *Packet) PayloadUnitStart() bool { return p[1]&0x40 != 0 }

// HasAdaptationField reports whether an adaptation field is present.
func (p *Packet) HasAdaptationField() bool { return p[3]&0x20 != 0 }

// HasPayload reports whether a payload is present.
func (p *Packet) HasPayload() bool { return p[3]&0x10 != 0 }

// ContinuityCounter returns the 4-bit continuity counter.
func (p *Packet) ContinuityCounter() uint8 { return p[3] & 0x0F }

// SetContinuityCounter overwrites the continuity counter.
func (p *Packet) SetContinuityCounter(cc uint8) {
	p[3] = (p[3] &^ 0x0F) | (cc & 0x0F)
}

// adaptationFieldLen returns the total size in bytes of the adaptation
// field including its length byte, or 0 when absent.
func (p *Packet) adaptationFieldLen() int {
	if !p.HasAdaptationField() {
		return 0
	}
	return 1 + int(p[4])
}

// payloadOffset returns the byte offset of the payload, or PacketSize when
// there is no payload room left.
func (p *Packet) payloadOffset() int {
	off := 4 + p.adaptationFieldLen()
	if off > PacketSize {
		off = PacketSize
	}
	return off
}

// Payload returns the packet payload as a sub-slice of the packet, or nil
// when the packet carries no payload.
func (p *Packet) Payload() []byte {
	if !p.HasPayload() {
		return nil
	}
	off := p.payloadOffset()
	if off >= PacketSize {
		return nil
	}
	return p[off:]
}

// PCR returns the 42-bit program clock reference in 27 MHz units and true
// when the adaptation field carries one.
func (p *Packet) PCR() (uint64, bool) {
	// PCR flag requires an adaptation field of at least 7 bytes:
	// flags byte plus the 6-byte PCR.
	if !p.HasAdaptationField() || p[4] < 7 || p[5]&0x10 == 0 {
		return 0, false
	}
	b := p[6:12]
	v32 := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	v16 := uint16(b[4])<<8 | uint16(b[5])
	base := uint64(v32)<<1 | uint64(v16>>15)
	ext := uint64(v16 & 0x01FF)
	return base*SystemClockSubfactor + ext, true
}

// SetPCR writes a PCR into the packet, creating a 7-byte adaptation field
// when none is present. The packet must have room (no payload shrinking is
// performed); it is intended for building reference streams and tests.
func (p *Packet) SetPCR(pcr uint64) {
	if !p.HasAdaptationField() {
		p[3] |= 0x20
		p[4] = 7
		p[5] = 0
	}
	p[5] |= 0x10
	base := pcr / SystemClockSubfactor
	ext := pcr % SystemClockSubfactor
	p[6] = byte(base >> 25)
	p[7] = byte(base >> 17)
	p[8] = byte(base >> 9)
	p[9] = byte(base >> 1)
	p[10] = byte(base<<7) | 0x7E | byte(ext>>8)
	p[11] = byte(ext)
}

// pes timestamp decoding: 33 bits spread over 5 bytes with marker bits.
func decodeTimestamp(b []byte) uint64 {
	return uint64(b[0]>>1&0x07)<<30 |
		uint64(b[1])<<22 |
		uint64(b[2]>>1)<<15 |
		uint64(b[3])<<7 |
		uint64(b[4]>>1)
}

func encodeTimestamp(b []byte, marker byte, v uint64) {
	b[0] = marker | byte(v>>29)&0x0E | 0x01
	b[1] = byte(v >> 22)
	b[2] = byte(v>>14) | 0x01
	b[3] = byte(v >> 7)
	b[4] = byte(v<<1) | 0x01
}

// pesHeader returns the PES packet header when this packet starts one.
func (p *Packet) pesHeader() []byte {
	if !p.PayloadUnitStart() {
		return nil
	}
	pl := p.Payload()
	// PES start code prefix 00 00 01, then stream id; PSI sections start
	// with a pointer field instead and never match.
	if len(pl) < 14 || pl[0] != 0 || pl[1] != 0 || pl[2] != 1 {
		return nil
	}
	return pl
}

// BuildPES returns a packet starting a PES packet that carries the given
// timestamps. Used to build reference streams in tools and tests.
func BuildPES(pid PID, pts, dts uint64) Packet {
	var p Packet
	p[0] = SyncByte
	p[1] = 0x40 // payload unit start
	p.SetPID(pid)
	p[3] = 0x10
	pl := p[4:]
	pl[0], pl[1], pl[2] = 0, 0, 1
	pl[3] = 0xE0 // video stream id
	pl[6] = 0x80
	pl[7] = 0xC0 // PTS and DTS present
	pl[8] = 10   // PES header data length
	encodeTimestamp(pl[9:14], 0x30, pts)
	encodeTimestamp(pl[14:19], 0x10, dts)
	return p
}

// PTS returns the 33-bit presentation timestamp in 90 kHz units and true
// when this packet starts a PES packet carrying one.
func (p *Packet) PTS() (uint64, bool) {
	h := p.pesHeader()
	if h == nil || h[7]&0x80 == 0 {
		return 0, false
	}
	return decodeTimestamp(h[9:14]), true
}

// DTS returns the 33-bit decoding timestamp in 90 kHz units and true when
// this packet starts a PES packet carrying one.
func (p *Packet) DTS() (uint64, bool) {
	h := p.pesHeader()
	if h == nil || h[7]&0xC0 != 0xC0 || len(h) < 19 {
		return 0, false
	}
	return decodeTimestamp(h[14:19]), true
}
