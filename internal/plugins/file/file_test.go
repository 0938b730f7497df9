package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/ts"
)

func writeTestFile(t *testing.T, packets int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.ts")
	var data []byte
	for i := 0; i < packets; i++ {
		var p ts.Packet
		p[0] = ts.SyncByte
		p[4] = byte(i)
		data = append(data, p[:]...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInputReadsWholeFile(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, 10)
	in := NewInput(nil)
	require.NoError(t, in.GetOptions([]string{path}))
	require.NoError(t, in.Start())
	defer in.Stop()

	pkts := make([]ts.Packet, 64)
	meta := make([]ts.Metadata, 64)
	n, err := in.Receive(pkts, meta)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), pkts[i][4])
	}

	n, err = in.Receive(pkts, meta)
	require.NoError(t, err)
	assert.Zero(t, n, "a second read past the end reports end of input")
}

func TestInputRepeat(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, 5)
	in := NewInput(nil)
	require.NoError(t, in.GetOptions([]string{"-repeat", "3", path}))
	require.NoError(t, in.Start())
	defer in.Stop()

	pkts := make([]ts.Packet, 64)
	meta := make([]ts.Metadata, 64)
	n, err := in.Receive(pkts, meta)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, byte(0), pkts[5][4], "the file restarts from its first packet")
}

func TestInputEmptyFileEndsImmediately(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, 0)
	in := NewInput(nil)
	require.NoError(t, in.GetOptions([]string{"-infinite", path}))
	require.NoError(t, in.Start())
	defer in.Stop()

	// Looping over an empty file must report end of input instead of
	// rewinding forever.
	pkts := make([]ts.Packet, 8)
	meta := make([]ts.Metadata, 8)
	n, err := in.Receive(pkts, meta)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInputTruncatedFile(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, 2)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-50], 0o644))

	in := NewInput(nil)
	require.NoError(t, in.GetOptions([]string{path}))
	require.NoError(t, in.Start())
	defer in.Stop()

	pkts := make([]ts.Packet, 8)
	meta := make([]ts.Metadata, 8)
	n, err := in.Receive(pkts, meta)
	assert.Equal(t, 1, n)
	assert.ErrorContains(t, err, "truncated")
}

func TestInputOptionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "no file name", args: nil},
		{name: "two file names", args: []string{"a.ts", "b.ts"}},
		{name: "bad repeat", args: []string{"-repeat", "0", "a.ts"}},
		{name: "unknown flag", args: []string{"-bogus", "a.ts"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, NewInput(nil).GetOptions(tc.args))
		})
	}
}

func TestOutputRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.ts")
	out := NewOutput(nil)
	require.NoError(t, out.GetOptions([]string{path}))
	require.NoError(t, out.Start())

	pkts := make([]ts.Packet, 3)
	for i := range pkts {
		pkts[i][0] = ts.SyncByte
		pkts[i][4] = byte(i)
	}
	require.NoError(t, out.Send(pkts, make([]ts.Metadata, 3)))
	require.NoError(t, out.Stop())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 3*ts.PacketSize)
	assert.Equal(t, byte(2), data[2*ts.PacketSize+4])
}

func TestOutputAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.ts")
	pkts := make([]ts.Packet, 1)
	pkts[0][0] = ts.SyncByte

	for i := 0; i < 2; i++ {
		out := NewOutput(nil)
		require.NoError(t, out.GetOptions([]string{"-append", path}))
		require.NoError(t, out.Start())
		require.NoError(t, out.Send(pkts, make([]ts.Metadata, 1)))
		require.NoError(t, out.Stop())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 2*ts.PacketSize)
}
