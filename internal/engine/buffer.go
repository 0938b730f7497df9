package engine

import "github.com/zsiec/tsflow/internal/ts"

// MinBufferPackets is the smallest allowed arena. It must hold at least one
// maximal section span plus handoff slack.
const MinBufferPackets = 100

// DefaultBufferPackets sizes the arena at roughly 16 MB of packets.
const DefaultBufferPackets = 16 * 1_000_000 / ts.PacketSize

// PacketBuffer is the shared packet arena: a fixed-capacity circular array
// of packet cells plus an index-aligned array of per-packet metadata. The
// buffer owns all storage; stages only ever own windows into it.
type PacketBuffer struct {
	pkts []ts.Packet
	meta []ts.Metadata
}

// NewPacketBuffer allocates an arena of count packet cells, raising count
// to MinBufferPackets when needed.
func NewPacketBuffer(count int) *PacketBuffer {
	if count < MinBufferPackets {
		count = MinBufferPackets
	}
	return &PacketBuffer{
		pkts: make([]ts.Packet, count),
		meta: make([]ts.Metadata, count),
	}
}

// Count returns the arena capacity in packets.
func (b *PacketBuffer) Count() int { return len(b.pkts) }

// Packets returns the contiguous run of count packet cells starting at
// first. first+count must not exceed the arena end; windows handed out by
// waitWork are already truncated to satisfy this.
func (b *PacketBuffer) Packets(first, count int) []ts.Packet {
	return b.pkts[first : first+count]
}

// Metadata returns the metadata cells aligned with Packets(first, count).
func (b *PacketBuffer) Metadata(first, count int) []ts.Metadata {
	return b.meta[first : first+count]
}
