package plugin

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/ts"
)

type fakeInput struct{ log *slog.Logger }

func (f *fakeInput) Name() string                   { return "fake" }
func (f *fakeInput) GetOptions(args []string) error { return nil }
func (f *fakeInput) Start() error                   { return nil }
func (f *fakeInput) Stop() error                    { return nil }
func (f *fakeInput) IsRealTime() bool               { return false }
func (f *fakeInput) Bitrate() uint64                { return 0 }
func (f *fakeInput) Receive(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	return 0, nil
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.RegisterInput("fake", func(log *slog.Logger) Input {
		return &fakeInput{log: log}
	}))

	in, err := r.NewInput("fake", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", in.Name())

	_, err = r.NewInput("missing", nil)
	assert.ErrorContains(t, err, "unknown input plugin")

	_, err = r.NewProcessor("fake", nil)
	assert.ErrorContains(t, err, "unknown processor plugin")
}

func TestRegistryDuplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	f := func(log *slog.Logger) Input { return &fakeInput{log: log} }
	require.NoError(t, r.RegisterInput("fake", f))
	assert.ErrorContains(t, r.RegisterInput("fake", f), "already registered")
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	f := func(log *slog.Logger) Input { return &fakeInput{log: log} }
	require.NoError(t, r.RegisterInput("zeta", f))
	require.NoError(t, r.RegisterInput("alpha", f))
	assert.Equal(t, []string{"alpha", "zeta"}, r.InputNames())
	assert.Empty(t, r.OutputNames())
}
