package voxelsync

import "testing"

func TestPoint3d(t *testing.T) {
	dims := Point3d{4, 5, 6}
	if dims.NumVoxels() != 120 {
		t.Errorf("Expected 120 voxels for dims %s, got %d\n", dims, dims.NumVoxels())
	}
	if dims.Z() != 4 || dims.Y() != 5 || dims.X() != 6 {
		t.Errorf("Bad component accessors for %s\n", dims)
	}
	if dims.String() != "(4,5,6)" {
		t.Errorf("Bad String(): %s\n", dims.String())
	}

	// x varies fastest in flat index order
	if i := dims.FlatIndex(Point3d{0, 0, 0}); i != 0 {
		t.Errorf("Expected flat index 0, got %d\n", i)
	}
	if i := dims.FlatIndex(Point3d{0, 0, 1}); i != 1 {
		t.Errorf("Expected flat index 1, got %d\n", i)
	}
	if i := dims.FlatIndex(Point3d{0, 1, 0}); i != 6 {
		t.Errorf("Expected flat index 6, got %d\n", i)
	}
	if i := dims.FlatIndex(Point3d{1, 0, 0}); i != 30 {
		t.Errorf("Expected flat index 30, got %d\n", i)
	}
	if i := dims.FlatIndex(Point3d{3, 4, 5}); i != 119 {
		t.Errorf("Expected flat index 119, got %d\n", i)
	}
}

func TestPoint3dBounds(t *testing.T) {
	dims := Point3d{2, 2, 2}
	if !dims.Contains(Point3d{0, 0, 0}) || !dims.Contains(Point3d{1, 1, 1}) {
		t.Errorf("In-bounds points reported out of bounds\n")
	}
	for _, pt := range []Point3d{{2, 0, 0}, {0, -1, 0}, {0, 0, 2}, {-1, -1, -1}} {
		if dims.Contains(pt) {
			t.Errorf("Out-of-bounds point %s reported in bounds\n", pt)
		}
	}

	if got := dims.Clamp(Point3d{5, -3, 1}); got != (Point3d{1, 0, 1}) {
		t.Errorf("Bad clamp: got %s\n", got)
	}
}

func TestVersionCompatible(t *testing.T) {
	if !VersionCompatible(Version) {
		t.Errorf("Engine version %s should be compatible with itself\n", Version)
	}
	if !VersionCompatible("") {
		t.Errorf("Empty peer version should be treated as compatible\n")
	}
	if !VersionCompatible("garbage") {
		t.Errorf("Unparseable peer version should be treated as compatible\n")
	}
	if VersionCompatible("99.0.0") {
		t.Errorf("Major version mismatch should be incompatible\n")
	}
}
