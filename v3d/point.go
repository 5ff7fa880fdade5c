package v3d

import (
	"fmt"
	"strconv"
	"strings"
)

// Point3d is an ordered (x, y, z) voxel coordinate or size.
type Point3d [3]int32

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// AddScalar adds a scalar value to this point.
func (p Point3d) AddScalar(value int32) Point3d {
	return Point3d{p[0] + value, p[1] + value, p[2] + value}
}

// Max returns a Point where each of its elements are the maximum of two points' elements.
func (p Point3d) Max(p2 Point3d) Point3d {
	result := p
	for dim := 0; dim < 3; dim++ {
		if p[dim] < p2[dim] {
			result[dim] = p2[dim]
		}
	}
	return result
}

// Min returns a Point where each of its elements are the minimum of two points' elements.
func (p Point3d) Min(p2 Point3d) Point3d {
	result := p
	for dim := 0; dim < 3; dim++ {
		if p[dim] > p2[dim] {
			result[dim] = p2[dim]
		}
	}
	return result
}

// Prod returns the product of the point's elements, e.g., the number of voxels
// in a volume of this size.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// StringToPoint3d parses a string of the form "x<sep>y<sep>z".
func StringToPoint3d(str, sep string) (Point3d, error) {
	var p Point3d
	elems := strings.Split(str, sep)
	if len(elems) != 3 {
		return p, fmt.Errorf("can't parse %q as 3d point: need 3 values separated by %q", str, sep)
	}
	for dim, elem := range elems {
		i, err := strconv.ParseInt(strings.TrimSpace(elem), 10, 32)
		if err != nil {
			return p, fmt.Errorf("can't parse %q as 3d point: %v", str, err)
		}
		p[dim] = int32(i)
	}
	return p, nil
}

// Extents3d is an inclusive axis-aligned box of voxels: every coordinate c with
// MinPoint[d] <= c[d] <= MaxPoint[d] on all axes.
type Extents3d struct {
	MinPoint Point3d
	MaxPoint Point3d
}

// NewExtents3d returns the box with the given origin and size.
func NewExtents3d(offset, size Point3d) Extents3d {
	return Extents3d{
		MinPoint: offset,
		MaxPoint: offset.Add(size).AddScalar(-1),
	}
}

// Size returns the number of voxels along each axis, which is zero or negative
// along some axis for an empty box.
func (ext Extents3d) Size() Point3d {
	return ext.MaxPoint.Sub(ext.MinPoint).AddScalar(1)
}

// Empty returns true if the box contains no voxels.
func (ext Extents3d) Empty() bool {
	for dim := 0; dim < 3; dim++ {
		if ext.MaxPoint[dim] < ext.MinPoint[dim] {
			return true
		}
	}
	return false
}

// NumVoxels returns the number of voxels within the box.
func (ext Extents3d) NumVoxels() int64 {
	if ext.Empty() {
		return 0
	}
	return ext.Size().Prod()
}

// Contains returns true if the point is within the box.
func (ext Extents3d) Contains(p Point3d) bool {
	for dim := 0; dim < 3; dim++ {
		if p[dim] < ext.MinPoint[dim] || p[dim] > ext.MaxPoint[dim] {
			return false
		}
	}
	return true
}

// Intersect returns the intersection of two boxes and whether it holds any voxels.
func (ext Extents3d) Intersect(ext2 Extents3d) (Extents3d, bool) {
	result := Extents3d{
		MinPoint: ext.MinPoint.Max(ext2.MinPoint),
		MaxPoint: ext.MaxPoint.Min(ext2.MaxPoint),
	}
	return result, !result.Empty()
}

// Translate returns the box shifted so that the given point becomes the origin.
func (ext Extents3d) Translate(origin Point3d) Extents3d {
	return Extents3d{
		MinPoint: ext.MinPoint.Sub(origin),
		MaxPoint: ext.MaxPoint.Sub(origin),
	}
}

func (ext Extents3d) String() string {
	return fmt.Sprintf("%s -> %s", ext.MinPoint, ext.MaxPoint)
}
