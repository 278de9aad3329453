/*
	Package reconcile applies remote payloads (sparse deltas or full
	snapshots) to a local label volume, resampling indices when the two
	sides disagree about geometry.  Geometry mismatch is never fatal and
	never surfaced to the user; it is always resolved by nearest-neighbor
	index mapping.
*/
package reconcile

import (
	"fmt"

	"github.com/janelia-flyem/voxelsync/volume"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// ApplyDelta writes a remote delta into the local buffer.
//
// If the delta was computed against different dimensions, each index is
// rescaled per axis into local index space, tolerating concurrent local
// geometry edits made while the delta was in flight.  Last write wins for
// duplicate (post-rescale) indices.  Out-of-range indices are skipped, not
// fatal: a non-nil *ApplyError reports how many were dropped while the
// remainder was applied.
func ApplyDelta(local *volume.Buffer, delta *volume.Delta) error {
	if local == nil || delta == nil {
		return fmt.Errorf("cannot apply delta: nil buffer or delta")
	}
	if len(delta.Indices) != len(delta.Values) {
		return fmt.Errorf("cannot apply delta: %d indices but %d values",
			len(delta.Indices), len(delta.Values))
	}

	rescale := delta.SourceDims != local.Dims
	if rescale {
		voxelsync.Debugf("rescaling delta indices from %s to %s\n", delta.SourceDims, local.Dims)
	}

	skipped := 0
	for i, pt := range delta.Indices {
		if rescale {
			pt = rescalePoint(pt, delta.SourceDims, local.Dims)
		}
		if !local.Dims.Contains(pt) {
			skipped++
			continue
		}
		local.Labels[local.Dims.FlatIndex(pt)] = delta.Values[i]
	}

	if skipped > 0 {
		return &voxelsync.ApplyError{Skipped: skipped, Total: len(delta.Indices)}
	}
	return nil
}

// rescalePoint maps a source-space voxel coordinate into local index space:
// per axis, localIndex = round(srcIndex * localDim / srcDim), i.e. the same
// nearest-neighbor mapping used when resampling baselines, applied in the
// source -> local direction.
func rescalePoint(pt, srcDims, localDims voxelsync.Point3d) voxelsync.Point3d {
	return voxelsync.Point3d{
		volume.MapIndex(pt[0], srcDims[0], localDims[0]),
		volume.MapIndex(pt[1], srcDims[1], localDims[1]),
		volume.MapIndex(pt[2], srcDims[2], localDims[2]),
	}
}

// ApplyFull replaces the local buffer wholesale with a remote snapshot.
// The local segment-name table is merged with (never truncated by) the
// incoming one, so names already known locally survive even when the
// snapshot payload omits them.
func ApplyFull(local *volume.Buffer, snapshot *volume.Buffer) error {
	if local == nil || snapshot == nil {
		return fmt.Errorf("cannot apply snapshot: nil buffer")
	}
	if int64(len(snapshot.Labels)) != snapshot.Dims.NumVoxels() {
		return fmt.Errorf("snapshot label array length %d does not match dims %s",
			len(snapshot.Labels), snapshot.Dims)
	}

	local.Dims = snapshot.Dims
	local.Spacing = snapshot.Spacing
	local.Origin = snapshot.Origin
	local.Labels = make([]uint64, len(snapshot.Labels))
	copy(local.Labels, snapshot.Labels)
	local.MergeSegmentNames(snapshot.SegmentNames)
	return nil
}
