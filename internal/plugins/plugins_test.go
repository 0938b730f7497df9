package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/plugin"
)

func TestRegisterBuiltins(t *testing.T) {
	t.Parallel()

	reg := plugin.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	assert.Equal(t, []string{"file", "null", "srt", "udp"}, reg.InputNames())
	assert.Equal(t, []string{"count", "filter", "until"}, reg.ProcessorNames())
	assert.Equal(t, []string{"drop", "file", "srt", "udp"}, reg.OutputNames())

	assert.Error(t, RegisterBuiltins(reg), "names are already taken")
}
