package volume

import (
	"fmt"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// Delta is a sparse set of voxel changes relative to an agreed baseline.
// Indices and Values are parallel; indices are unique with last write
// winning if a producer emits duplicates.
type Delta struct {
	// Indices are the changed voxel coordinates in (z, y, x) order.
	Indices []voxelsync.Point3d

	// Values are the new labels, parallel to Indices.
	Values []uint64

	// SourceDims is the geometry the indices were computed against, so a
	// receiver with different geometry can rescale them.
	SourceDims voxelsync.Point3d

	// Timestamp is epoch milliseconds at delta creation.
	Timestamp int64
}

// Validate checks the parallel-sequence invariant and that every index is
// within SourceDims.
func (d *Delta) Validate() error {
	if len(d.Indices) != len(d.Values) {
		return fmt.Errorf("delta has %d indices but %d values", len(d.Indices), len(d.Values))
	}
	for _, pt := range d.Indices {
		if !d.SourceDims.Contains(pt) {
			return fmt.Errorf("delta index %s outside source dimensions %s", pt, d.SourceDims)
		}
	}
	return nil
}

// NumChanges returns the number of changed voxels.
func (d *Delta) NumChanges() int {
	return len(d.Indices)
}
