package volume

import (
	"math"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// Label volumes edited in different geometry (a peer resized or re-cropped
// its volume mid-session) must be reconciled without interpolation, since
// averaging label IDs is meaningless.  Nearest-neighbor index mapping keeps
// both peers' index spaces aligned: for each destination voxel, the source
// voxel is srcIndex = round(dstIndex / scale) with scale = dstDim / srcDim,
// clamped to the valid range.

// MapIndex maps a single per-axis destination index into source index space.
func MapIndex(dst, dstDim, srcDim int32) int32 {
	if srcDim == dstDim {
		return dst
	}
	scale := float64(dstDim) / float64(srcDim)
	src := int32(math.Round(float64(dst) / scale))
	if src < 0 {
		src = 0
	} else if src >= srcDim {
		src = srcDim - 1
	}
	return src
}

// MapPoint maps a (z, y, x) coordinate from dstDims index space into srcDims
// index space using nearest-neighbor mapping, clamped to bounds.
func MapPoint(pt, dstDims, srcDims voxelsync.Point3d) voxelsync.Point3d {
	return voxelsync.Point3d{
		MapIndex(pt[0], dstDims[0], srcDims[0]),
		MapIndex(pt[1], dstDims[1], srcDims[1]),
		MapIndex(pt[2], dstDims[2], srcDims[2]),
	}
}

// ResampleLabels resamples a flat label array from srcDims onto dstDims.
// The mapping is deterministic though not lossless.
func ResampleLabels(src []uint64, srcDims, dstDims voxelsync.Point3d) []uint64 {
	if srcDims == dstDims {
		dup := make([]uint64, len(src))
		copy(dup, src)
		return dup
	}
	dst := make([]uint64, dstDims.NumVoxels())
	var pt voxelsync.Point3d
	i := int64(0)
	for z := int32(0); z < dstDims[0]; z++ {
		sz := MapIndex(z, dstDims[0], srcDims[0])
		for y := int32(0); y < dstDims[1]; y++ {
			sy := MapIndex(y, dstDims[1], srcDims[1])
			for x := int32(0); x < dstDims[2]; x++ {
				pt = voxelsync.Point3d{sz, sy, MapIndex(x, dstDims[2], srcDims[2])}
				dst[i] = src[srcDims.FlatIndex(pt)]
				i++
			}
		}
	}
	return dst
}

// Resample returns a copy of the buffer resampled onto the given dimensions.
// Spacing is scaled so the physical extent is preserved.
func (b *Buffer) Resample(dims voxelsync.Point3d) *Buffer {
	dup := &Buffer{
		Dims:   dims,
		Origin: b.Origin,
		Labels: ResampleLabels(b.Labels, b.Dims, dims),
	}
	for axis := 0; axis < 3; axis++ {
		if dims[axis] > 0 {
			dup.Spacing[axis] = b.Spacing[axis] * float64(b.Dims[axis]) / float64(dims[axis])
		}
	}
	if b.SegmentNames != nil {
		dup.SegmentNames = make(map[uint64]string, len(b.SegmentNames))
		for label, name := range b.SegmentNames {
			dup.SegmentNames[label] = name
		}
	}
	return dup
}
