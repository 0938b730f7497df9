package ts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelSet(t *testing.T) {
	t.Parallel()

	assert.True(t, NoLabel.None())
	assert.True(t, AllLabels.Any())
	assert.True(t, AllLabels.Has(0))
	assert.True(t, AllLabels.Has(LabelMax))

	s := SingleLabel(5)
	assert.True(t, s.Has(5))
	assert.False(t, s.Has(6))

	// Out-of-range labels map to the empty set.
	assert.Equal(t, NoLabel, SingleLabel(-1))
	assert.Equal(t, NoLabel, SingleLabel(LabelCount))
}

func TestMetadataLabels(t *testing.T) {
	t.Parallel()

	var m Metadata
	assert.False(t, m.Labels().Any())

	m.SetLabel(3)
	m.SetLabel(31)
	assert.True(t, m.HasLabel(3))
	assert.True(t, m.HasLabel(31))
	assert.False(t, m.HasLabel(4))
	assert.True(t, m.HasAnyLabel(SingleLabel(3)|SingleLabel(7)))
	assert.False(t, m.HasAnyLabel(SingleLabel(7)))
	assert.True(t, m.HasAllLabels(SingleLabel(3)|SingleLabel(31)))
	assert.False(t, m.HasAllLabels(SingleLabel(3)|SingleLabel(7)))

	m.ClearLabel(3)
	assert.False(t, m.HasLabel(3))
	m.ClearLabels(AllLabels)
	assert.True(t, m.Labels().None())
}

func TestMetadataReset(t *testing.T) {
	t.Parallel()

	var m Metadata
	m.SetLabel(1)
	m.SetInputStuffing(true)
	m.SetNullified(true)
	m.SetFlush(true)
	m.SetBitrateChanged(true)

	m.Reset()

	assert.True(t, m.Labels().None())
	assert.False(t, m.InputStuffing())
	assert.False(t, m.Nullified())
	assert.False(t, m.Flush())
	assert.False(t, m.BitrateChanged())
}
