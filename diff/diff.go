/*
	Package diff detects what changed in a local label volume since the last
	synchronization baseline and decides whether the change set travels as a
	sparse delta or forces a full snapshot resend.
*/
package diff

import (
	"time"

	"github.com/janelia-flyem/voxelsync/volume"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// Engine compares volume states against a baseline.
type Engine struct {
	fullResyncRatio float64
}

// NewEngine returns a diff engine.  A ratio <= 0 selects the default.
func NewEngine(fullResyncRatio float64) *Engine {
	if fullResyncRatio <= 0 {
		fullResyncRatio = voxelsync.DefaultFullResyncRatio
	}
	return &Engine{fullResyncRatio: fullResyncRatio}
}

// Result is the outcome of a comparison.  Exactly one of the following
// holds: FullRequired is set, Delta is non-nil, or neither (no change, so
// nothing to send).
type Result struct {
	// Delta holds the sparse change set when one is worth sending.
	Delta *volume.Delta

	// FullRequired is set when no usable baseline exists or the change
	// ratio exceeds the configured threshold.
	FullRequired bool
}

// Compute compares current against the previous baseline.
//
// A nil previous is the bootstrap case and forces a full snapshot.  A
// baseline of different geometry is first resampled onto the current
// dimensions with nearest-neighbor index mapping, so moving or resizing a
// volume between syncs never desynchronizes the two peers' index spaces.
func (e *Engine) Compute(previous, current *volume.Buffer) Result {
	if current == nil {
		return Result{}
	}
	if previous == nil {
		return Result{FullRequired: true}
	}

	prevLabels := previous.Labels
	if previous.Dims != current.Dims {
		prevLabels = volume.ResampleLabels(previous.Labels, previous.Dims, current.Dims)
	}

	dims := current.Dims
	total := dims.NumVoxels()
	maxChanges := int64(float64(total) * e.fullResyncRatio)

	var indices []voxelsync.Point3d
	var values []uint64
	var changed int64

	i := int64(0)
	for z := int32(0); z < dims[0]; z++ {
		for y := int32(0); y < dims[1]; y++ {
			for x := int32(0); x < dims[2]; x++ {
				if current.Labels[i] != prevLabels[i] {
					changed++
					if changed > maxChanges {
						return Result{FullRequired: true}
					}
					indices = append(indices, voxelsync.Point3d{z, y, x})
					values = append(values, current.Labels[i])
				}
				i++
			}
		}
	}

	if changed == 0 {
		return Result{}
	}
	return Result{Delta: &volume.Delta{
		Indices:    indices,
		Values:     values,
		SourceDims: dims,
		Timestamp:  time.Now().UnixMilli(),
	}}
}
