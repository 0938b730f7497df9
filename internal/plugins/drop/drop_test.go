package drop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/ts"
)

func TestDiscardsEverything(t *testing.T) {
	t.Parallel()

	out := NewOutput(nil)
	require.NoError(t, out.GetOptions(nil))
	require.NoError(t, out.Start())
	require.NoError(t, out.Send(make([]ts.Packet, 7), make([]ts.Metadata, 7)))
	require.NoError(t, out.Stop())
	assert.Equal(t, uint64(7), out.packets)

	assert.Error(t, out.GetOptions([]string{"-x"}), "drop takes no options")
}
