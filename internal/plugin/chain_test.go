package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	t.Parallel()

	c, err := ParseChain([]string{
		"-I", "file", "--path", "in.ts",
		"-P", "filter", "--pid", "256",
		"-P", "count",
		"-O", "udp", "--target", "239.0.0.1:1234",
	})
	require.NoError(t, err)

	assert.Equal(t, Spec{Name: "file", Args: []string{"--path", "in.ts"}}, c.Input)
	require.Len(t, c.Processors, 2)
	assert.Equal(t, Spec{Name: "filter", Args: []string{"--pid", "256"}}, c.Processors[0])
	assert.Equal(t, Spec{Name: "count"}, c.Processors[1])
	assert.Equal(t, Spec{Name: "udp", Args: []string{"--target", "239.0.0.1:1234"}}, c.Output)
}

func TestParseChainNoProcessors(t *testing.T) {
	t.Parallel()

	c, err := ParseChain([]string{"-I", "null", "-O", "drop"})
	require.NoError(t, err)
	assert.Equal(t, "null", c.Input.Name)
	assert.Empty(t, c.Processors)
	assert.Equal(t, "drop", c.Output.Name)
}

func TestParseChainErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args []string
	}{
		{"missing input", []string{"-O", "drop"}},
		{"missing output", []string{"-I", "null"}},
		{"duplicate input", []string{"-I", "a", "-I", "b", "-O", "drop"}},
		{"duplicate output", []string{"-I", "a", "-O", "b", "-O", "c"}},
		{"dangling marker", []string{"-I", "a", "-O", "b", "-P"}},
		{"stray argument", []string{"--path", "x", "-I", "a", "-O", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseChain(tc.args)
			assert.Error(t, err)
		})
	}
}

func TestSpecString(t *testing.T) {
	t.Parallel()

	s := Spec{Name: "filter", Args: []string{"--pid", "256"}}
	assert.Equal(t, "filter --pid 256", s.String())
	assert.Equal(t, "drop", Spec{Name: "drop"}.String())
}
