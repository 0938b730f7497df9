package ts

// LabelCount is the number of labels a packet can carry. Processors set
// labels on packets for downstream processors to act on.
const LabelCount = 32

// LabelMax is the highest valid label number.
const LabelMax = LabelCount - 1

// LabelSet is a bit mask of packet labels.
type LabelSet uint32

// AllLabels has every label set.
const AllLabels LabelSet = 1<<LabelCount - 1

// NoLabel has no label set.
const NoLabel LabelSet = 0

// SingleLabel returns the set containing only the given label.
// Labels outside [0, LabelMax] yield the empty set.
func SingleLabel(label int) LabelSet {
	if label < 0 || label > LabelMax {
		return NoLabel
	}
	return 1 << label
}

// None reports whether the set is empty.
func (s LabelSet) None() bool { return s == 0 }

// Any reports whether at least one label is set.
func (s LabelSet) Any() bool { return s != 0 }

// Has reports whether the given label is in the set.
func (s LabelSet) Has(label int) bool { return s&SingleLabel(label) != 0 }

// Metadata carries the pipeline flags attached to the packet at the same
// arena index. It is reset whenever a new packet is written into the cell.
type Metadata struct {
	labels         LabelSet
	inputStuffing  bool
	nullified      bool
	flush          bool
	bitrateChanged bool
}

// Reset returns the metadata to its initial empty state.
func (m *Metadata) Reset() { *m = Metadata{} }

// Labels returns the packet's label set.
func (m *Metadata) Labels() LabelSet { return m.labels }

// HasLabel reports whether the packet carries the given label.
func (m *Metadata) HasLabel(label int) bool { return m.labels.Has(label) }

// HasAnyLabel reports whether the packet carries any label from mask.
func (m *Metadata) HasAnyLabel(mask LabelSet) bool { return m.labels&mask != 0 }

// HasAllLabels reports whether the packet carries every label in mask.
func (m *Metadata) HasAllLabels(mask LabelSet) bool { return m.labels&mask == mask }

// SetLabel adds a label to the packet.
func (m *Metadata) SetLabel(label int) { m.labels |= SingleLabel(label) }

// SetLabels adds every label in mask to the packet.
func (m *Metadata) SetLabels(mask LabelSet) { m.labels |= mask }

// ClearLabel removes a label from the packet.
func (m *Metadata) ClearLabel(label int) { m.labels &^= SingleLabel(label) }

// ClearLabels removes every label in mask from the packet.
func (m *Metadata) ClearLabels(mask LabelSet) { m.labels &^= mask }

// InputStuffing reports whether the packet was artificially inserted as
// input stuffing rather than read from the input plugin.
func (m *Metadata) InputStuffing() bool { return m.inputStuffing }

// SetInputStuffing marks the packet as artificially inserted input stuffing.
func (m *Metadata) SetInputStuffing(on bool) { m.inputStuffing = on }

// Nullified reports whether a processor explicitly turned the packet into
// a null packet.
func (m *Metadata) Nullified() bool { return m.nullified }

// SetNullified records that a processor turned the packet into a null packet.
func (m *Metadata) SetNullified(on bool) { m.nullified = on }

// Flush reports whether buffered packets up to this one should be handed
// to the next stage as soon as possible.
func (m *Metadata) Flush() bool { return m.flush }

// SetFlush requests an early handoff of buffered packets.
func (m *Metadata) SetFlush(on bool) { m.flush = on }

// BitrateChanged reports whether the processor signaled a bitrate change,
// asking the executor to query its Bitrate method.
func (m *Metadata) BitrateChanged() bool { return m.bitrateChanged }

// SetBitrateChanged signals that the processor changed the stream bitrate.
func (m *Metadata) SetBitrateChanged(on bool) { m.bitrateChanged = on }
