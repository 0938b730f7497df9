package count

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

func TestCountsPerPID(t *testing.T) {
	t.Parallel()

	p := New(nil)
	require.NoError(t, p.GetOptions(nil))
	require.NoError(t, p.Start())

	pids := []ts.PID{0x100, 0x100, 0x101, 0x100}
	for _, pid := range pids {
		var pkt ts.Packet
		pkt[0] = ts.SyncByte
		pkt.SetPID(pid)
		var meta ts.Metadata
		assert.Equal(t, plugin.Pass, p.ProcessPacket(&pkt, &meta))
	}

	assert.Equal(t, uint64(4), p.Total())
	assert.Equal(t, uint64(3), p.PIDCount(0x100))
	assert.Equal(t, uint64(1), p.PIDCount(0x101))
	assert.Zero(t, p.PIDCount(0x102))
	require.NoError(t, p.Stop())
}

func TestStartResetsCounters(t *testing.T) {
	t.Parallel()

	p := New(nil)
	require.NoError(t, p.GetOptions(nil))
	require.NoError(t, p.Start())

	var pkt ts.Packet
	pkt[0] = ts.SyncByte
	var meta ts.Metadata
	p.ProcessPacket(&pkt, &meta)
	require.NoError(t, p.Start())
	assert.Zero(t, p.Total())
}
