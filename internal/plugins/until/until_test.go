package until

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

func TestStopsAfterPacketCount(t *testing.T) {
	t.Parallel()

	p := New(nil)
	require.NoError(t, p.GetOptions([]string{"-packets", "3"}))
	require.NoError(t, p.Start())

	var pkt ts.Packet
	pkt[0] = ts.SyncByte
	var meta ts.Metadata
	for i := 0; i < 3; i++ {
		assert.Equal(t, plugin.Pass, p.ProcessPacket(&pkt, &meta))
	}
	assert.Equal(t, plugin.Stop, p.ProcessPacket(&pkt, &meta))
}

func TestStopsAtPID(t *testing.T) {
	t.Parallel()

	p := New(nil)
	require.NoError(t, p.GetOptions([]string{"-pid", "0x1F"}))
	require.NoError(t, p.Start())

	var pkt ts.Packet
	pkt[0] = ts.SyncByte
	pkt.SetPID(0x100)
	var meta ts.Metadata
	assert.Equal(t, plugin.Pass, p.ProcessPacket(&pkt, &meta))

	pkt.SetPID(0x1F)
	assert.Equal(t, plugin.Stop, p.ProcessPacket(&pkt, &meta))
}

func TestOptionValidation(t *testing.T) {
	t.Parallel()

	assert.Error(t, New(nil).GetOptions(nil), "a condition is required")
	assert.Error(t, New(nil).GetOptions([]string{"-pid", "8192"}))
	assert.NoError(t, New(nil).GetOptions([]string{"-packets", "1"}))
}
