package udp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/ts"
)

func makePackets(n int) []ts.Packet {
	pkts := make([]ts.Packet, n)
	for i := range pkts {
		pkts[i][0] = ts.SyncByte
		pkts[i][4] = byte(i)
	}
	return pkts
}

func TestLoopbackRoundTrip(t *testing.T) {
	t.Parallel()

	in := NewInput(nil)
	require.NoError(t, in.GetOptions([]string{"127.0.0.1:0"}))
	require.NoError(t, in.Start())
	defer in.Stop()

	out := NewOutput(nil)
	require.NoError(t, out.GetOptions([]string{in.conn.LocalAddr().String()}))
	require.NoError(t, out.Start())

	sent := makePackets(14)
	require.NoError(t, out.Send(sent, make([]ts.Metadata, 14)))
	require.NoError(t, out.Stop())

	var got []ts.Packet
	pkts := make([]ts.Packet, 16)
	meta := make([]ts.Metadata, 16)
	for len(got) < 14 {
		n, err := in.Receive(pkts, meta)
		require.NoError(t, err)
		require.Positive(t, n)
		got = append(got, pkts[:n]...)
	}
	require.Len(t, got, 14)
	for i := range got {
		assert.Equal(t, byte(i), got[i][4])
	}
}

func TestOutputFlushesPartialBurstOnStop(t *testing.T) {
	t.Parallel()

	in := NewInput(nil)
	require.NoError(t, in.GetOptions([]string{"127.0.0.1:0"}))
	require.NoError(t, in.Start())
	defer in.Stop()

	out := NewOutput(nil)
	require.NoError(t, out.GetOptions([]string{in.conn.LocalAddr().String()}))
	require.NoError(t, out.Start())
	require.NoError(t, out.Send(makePackets(3), make([]ts.Metadata, 3)))
	require.NoError(t, out.Stop())

	pkts := make([]ts.Packet, 8)
	meta := make([]ts.Metadata, 8)
	n, err := in.Receive(pkts, meta)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSplitDatagramKeepsLeftover(t *testing.T) {
	t.Parallel()

	in := NewInput(nil)
	src := makePackets(7)
	var dgram []byte
	for i := range src {
		dgram = append(dgram, src[i][:]...)
	}

	pkts := make([]ts.Packet, 3)
	n := in.splitDatagram(dgram, pkts)
	require.Equal(t, 3, n)
	assert.Len(t, in.leftover, 4*ts.PacketSize)

	n = in.drainLeftover(pkts)
	require.Equal(t, 3, n)
	assert.Equal(t, byte(5), pkts[2][4])

	n = in.drainLeftover(pkts)
	require.Equal(t, 1, n)
	assert.Equal(t, byte(6), pkts[0][4])
	assert.Empty(t, in.leftover)
}

func TestSplitDatagramDiscardsMisalignedTail(t *testing.T) {
	t.Parallel()

	in := NewInput(nil)
	src := makePackets(2)
	dgram := append(append([]byte{}, src[0][:]...), src[1][:100]...)

	pkts := make([]ts.Packet, 4)
	n := in.splitDatagram(dgram, pkts)
	assert.Equal(t, 1, n)
	assert.Empty(t, in.leftover)
}

func TestOptionErrors(t *testing.T) {
	t.Parallel()

	assert.Error(t, NewInput(nil).GetOptions(nil), "address required")
	assert.Error(t, NewOutput(nil).GetOptions([]string{"-burst", "0", "127.0.0.1:9"}))
	assert.Error(t, NewOutput(nil).GetOptions([]string{"a", "b"}))
}
