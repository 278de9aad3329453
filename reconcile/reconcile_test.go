package reconcile

import (
	"errors"
	"testing"

	"github.com/janelia-flyem/voxelsync/diff"
	"github.com/janelia-flyem/voxelsync/volume"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

func newBuffer(dims voxelsync.Point3d) *volume.Buffer {
	return volume.New(dims, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
}

func TestDiffApplyInverse(t *testing.T) {
	// For same-shape buffers A, B: applying computeDelta(A, B) to a copy of
	// A yields a buffer equal to B whenever a delta (not FullRequired) is
	// returned.
	dims := voxelsync.Point3d{3, 4, 5}
	a := newBuffer(dims)
	a.SetLabelAt(0, 0, 0, 1)
	a.SetLabelAt(2, 3, 4, 2)

	b := a.Snapshot()
	b.SetLabelAt(0, 0, 0, 3)
	b.SetLabelAt(1, 2, 2, 4)
	b.SetLabelAt(2, 3, 4, 0)

	r := diff.NewEngine(0).Compute(a, b)
	if r.Delta == nil {
		t.Fatalf("Expected a delta, got %+v\n", r)
	}

	target := a.Snapshot()
	if err := ApplyDelta(target, r.Delta); err != nil {
		t.Fatalf("ApplyDelta error: %v\n", err)
	}
	if !target.Equals(b) {
		t.Errorf("Applying the diff of A and B to A did not reproduce B\n")
	}
}

func TestApplyDeltaScenario(t *testing.T) {
	// Zero-baseline (2,2,2) copy plus Delta{(0,0,0) -> 1} yields exactly
	// that voxel set and all others zero.
	local := newBuffer(voxelsync.Point3d{2, 2, 2})
	d := &volume.Delta{
		Indices:    []voxelsync.Point3d{{0, 0, 0}},
		Values:     []uint64{1},
		SourceDims: voxelsync.Point3d{2, 2, 2},
	}
	if err := ApplyDelta(local, d); err != nil {
		t.Fatalf("ApplyDelta error: %v\n", err)
	}
	for z := int32(0); z < 2; z++ {
		for y := int32(0); y < 2; y++ {
			for x := int32(0); x < 2; x++ {
				want := uint64(0)
				if z == 0 && y == 0 && x == 0 {
					want = 1
				}
				if got := local.LabelAt(z, y, x); got != want {
					t.Errorf("Voxel (%d,%d,%d): expected %d, got %d\n", z, y, x, want, got)
				}
			}
		}
	}
}

func TestApplyDeltaLastWriteWins(t *testing.T) {
	local := newBuffer(voxelsync.Point3d{2, 2, 2})
	d := &volume.Delta{
		Indices:    []voxelsync.Point3d{{1, 1, 1}, {1, 1, 1}},
		Values:     []uint64{5, 9},
		SourceDims: voxelsync.Point3d{2, 2, 2},
	}
	if err := ApplyDelta(local, d); err != nil {
		t.Fatalf("ApplyDelta error: %v\n", err)
	}
	if got := local.LabelAt(1, 1, 1); got != 9 {
		t.Errorf("Expected last write 9 to win, got %d\n", got)
	}
}

func TestApplyDeltaRescalesIndices(t *testing.T) {
	// Delta computed against 4x4x4 arrives at a peer that concurrently
	// resized to 8x8x8: indices are rescaled, not dropped.
	local := newBuffer(voxelsync.Point3d{8, 8, 8})
	d := &volume.Delta{
		Indices:    []voxelsync.Point3d{{3, 3, 3}},
		Values:     []uint64{7},
		SourceDims: voxelsync.Point3d{4, 4, 4},
	}
	if err := ApplyDelta(local, d); err != nil {
		t.Fatalf("ApplyDelta error: %v\n", err)
	}
	// src 3 with local/src scale 2 maps to round(3*2) = 6
	if got := local.LabelAt(6, 6, 6); got != 7 {
		t.Errorf("Expected rescaled write at (6,6,6), got %d there and volume max %d\n",
			got, local.MaxLabel())
	}
}

func TestApplyDeltaSkipsOutOfRange(t *testing.T) {
	local := newBuffer(voxelsync.Point3d{2, 2, 2})
	d := &volume.Delta{
		// Same dims, so no rescale: the out-of-bounds index is skipped and
		// the valid one applied.
		Indices:    []voxelsync.Point3d{{5, 5, 5}, {0, 1, 0}},
		Values:     []uint64{3, 4},
		SourceDims: voxelsync.Point3d{2, 2, 2},
	}
	err := ApplyDelta(local, d)
	var applyErr *voxelsync.ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("Expected ApplyError, got %v\n", err)
	}
	if applyErr.Skipped != 1 || applyErr.Total != 2 {
		t.Errorf("Expected 1 of 2 skipped, got %+v\n", applyErr)
	}
	if got := local.LabelAt(0, 1, 0); got != 4 {
		t.Errorf("Valid index should still be applied, got %d\n", got)
	}
}

func TestApplyFullReplacesAndMergesNames(t *testing.T) {
	local := newBuffer(voxelsync.Point3d{2, 2, 2})
	local.SetLabelAt(0, 0, 0, 1)
	local.MergeSegmentNames(map[uint64]string{1: "liver", 2: "kidney"})

	snapshot := volume.New(voxelsync.Point3d{3, 3, 3}, [3]float64{2, 2, 2}, [3]float64{1, 1, 1})
	snapshot.SetLabelAt(2, 2, 2, 8)
	snapshot.MergeSegmentNames(map[uint64]string{2: "right kidney", 8: "spleen"})

	if err := ApplyFull(local, snapshot); err != nil {
		t.Fatalf("ApplyFull error: %v\n", err)
	}
	if local.Dims != snapshot.Dims {
		t.Errorf("Dims not replaced: %s\n", local.Dims)
	}
	if !local.Equals(snapshot) {
		t.Errorf("Labels not replaced wholesale\n")
	}
	if local.Spacing != snapshot.Spacing || local.Origin != snapshot.Origin {
		t.Errorf("Geometry metadata not replaced\n")
	}

	// Local names survive; incoming names win on collision.
	want := map[uint64]string{1: "liver", 2: "right kidney", 8: "spleen"}
	for label, name := range want {
		if local.SegmentNames[label] != name {
			t.Errorf("Label %d: expected %q, got %q\n", label, name, local.SegmentNames[label])
		}
	}

	// Mutating local afterwards must not touch the snapshot's array.
	local.SetLabelAt(0, 0, 0, 42)
	if snapshot.LabelAt(0, 0, 0) == 42 {
		t.Errorf("ApplyFull aliased the snapshot's label array\n")
	}
}

func TestApplyFullOmittedNamesSurvive(t *testing.T) {
	local := newBuffer(voxelsync.Point3d{1, 1, 1})
	local.MergeSegmentNames(map[uint64]string{3: "lesion"})

	snapshot := newBuffer(voxelsync.Point3d{1, 1, 1})
	if err := ApplyFull(local, snapshot); err != nil {
		t.Fatalf("ApplyFull error: %v\n", err)
	}
	if local.SegmentNames[3] != "lesion" {
		t.Errorf("Snapshot without names truncated the local table\n")
	}
}
