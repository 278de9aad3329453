/*
	Package volume holds the in-memory representation of a 3-d labeled volume:
	a flat array of uint64 labels plus geometry metadata.  One Buffer is owned
	by one sync session per participant; it is mutated either by local edit
	application or by reconciliation of remote payloads.
*/
package volume

import (
	"fmt"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// Buffer is the current label volume for one participant.  Label 0 means
// "unlabeled".  Invariant: len(Labels) == Dims.NumVoxels().
type Buffer struct {
	// Dims are the (z, y, x) dimensions of the volume.
	Dims voxelsync.Point3d

	// Spacing is the per-axis voxel spacing in physical units.
	Spacing [3]float64

	// Origin is the physical-space position of voxel (0, 0, 0).
	Origin [3]float64

	// Labels is the flat label array with x varying fastest.
	Labels []uint64

	// SegmentNames maps label -> human-readable segment name.  The table may
	// be partial or stale; it is merged, never truncated, on reconciliation.
	SegmentNames map[uint64]string
}

// New returns a zeroed Buffer with the given dimensions.
func New(dims voxelsync.Point3d, spacing, origin [3]float64) *Buffer {
	return &Buffer{
		Dims:    dims,
		Spacing: spacing,
		Origin:  origin,
		Labels:  make([]uint64, dims.NumVoxels()),
	}
}

// NewFromLabels returns a Buffer wrapping the given flat label array.  It
// errors if the array length does not match the dimensions.
func NewFromLabels(dims voxelsync.Point3d, spacing, origin [3]float64, labels []uint64) (*Buffer, error) {
	if int64(len(labels)) != dims.NumVoxels() {
		return nil, fmt.Errorf("label array length %d does not match dimensions %s (%d voxels)",
			len(labels), dims, dims.NumVoxels())
	}
	return &Buffer{Dims: dims, Spacing: spacing, Origin: origin, Labels: labels}, nil
}

// NumVoxels returns the total voxel count.
func (b *Buffer) NumVoxels() int64 {
	return b.Dims.NumVoxels()
}

// LabelAt returns the label at voxel (z, y, x).
func (b *Buffer) LabelAt(z, y, x int32) uint64 {
	return b.Labels[b.Dims.FlatIndex(voxelsync.Point3d{z, y, x})]
}

// SetLabelAt writes the label at voxel (z, y, x).
func (b *Buffer) SetLabelAt(z, y, x int32, label uint64) {
	b.Labels[b.Dims.FlatIndex(voxelsync.Point3d{z, y, x})] = label
}

// Snapshot returns a deep copy of the buffer, used to capture a diffing
// baseline that later mutation of the original cannot disturb.
func (b *Buffer) Snapshot() *Buffer {
	dup := &Buffer{
		Dims:    b.Dims,
		Spacing: b.Spacing,
		Origin:  b.Origin,
		Labels:  make([]uint64, len(b.Labels)),
	}
	copy(dup.Labels, b.Labels)
	if b.SegmentNames != nil {
		dup.SegmentNames = make(map[uint64]string, len(b.SegmentNames))
		for label, name := range b.SegmentNames {
			dup.SegmentNames[label] = name
		}
	}
	return dup
}

// Equals reports whether two buffers have identical dimensions and identical
// label array contents.  Spacing, origin and segment names do not participate
// in equality.
func (b *Buffer) Equals(other *Buffer) bool {
	if other == nil || b.Dims != other.Dims {
		return false
	}
	for i, label := range b.Labels {
		if label != other.Labels[i] {
			return false
		}
	}
	return true
}

// MergeSegmentNames folds the given label -> name table into the buffer's
// own, overwriting entries for labels present in both.  Names already known
// locally survive when the incoming table omits them.
func (b *Buffer) MergeSegmentNames(names map[uint64]string) {
	if len(names) == 0 {
		return
	}
	if b.SegmentNames == nil {
		b.SegmentNames = make(map[uint64]string, len(names))
	}
	for label, name := range names {
		b.SegmentNames[label] = name
	}
}

// MaxLabel returns the largest label value in the buffer.
func (b *Buffer) MaxLabel() uint64 {
	var max uint64
	for _, label := range b.Labels {
		if label > max {
			max = label
		}
	}
	return max
}
