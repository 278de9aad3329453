package voxelsync

import "fmt"

// Point3d is an ordered (z, y, x) triple of 32-bit signed integers.  The
// z, y, x ordering matches the layout of label arrays on the wire, where z
// varies slowest.  It is used both for voxel coordinates and for volume
// dimensions.
type Point3d [3]int32

// Z, Y and X return the respective components.
func (p Point3d) Z() int32 { return p[0] }
func (p Point3d) Y() int32 { return p[1] }
func (p Point3d) X() int32 { return p[2] }

// NumDims returns the dimensionality of this point.
func (p Point3d) NumDims() uint8 {
	return 3
}

// Value returns the value at the specified dimension (0 = z, 1 = y, 2 = x).
func (p Point3d) Value(dim uint8) int32 {
	return p[dim]
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// NumVoxels returns the number of voxels in a volume with these dimensions.
func (p Point3d) NumVoxels() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

// FlatIndex returns the offset of voxel pt into a flat label array with
// dimensions p, with x varying fastest.
func (p Point3d) FlatIndex(pt Point3d) int64 {
	return (int64(pt[0])*int64(p[1])+int64(pt[1]))*int64(p[2]) + int64(pt[2])
}

// Contains returns true if voxel coordinate pt lies within a volume of
// dimensions p.
func (p Point3d) Contains(pt Point3d) bool {
	for dim := uint8(0); dim < 3; dim++ {
		if pt[dim] < 0 || pt[dim] >= p[dim] {
			return false
		}
	}
	return true
}

// Clamp returns pt with each component clamped to [0, dim-1] for a volume of
// dimensions p.
func (p Point3d) Clamp(pt Point3d) Point3d {
	for dim := uint8(0); dim < 3; dim++ {
		if pt[dim] < 0 {
			pt[dim] = 0
		} else if pt[dim] >= p[dim] {
			pt[dim] = p[dim] - 1
		}
	}
	return pt
}
