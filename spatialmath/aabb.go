package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// AABB is an axis-aligned box given by its inclusive min and max corners.
type AABB struct {
	Min r3.Vector
	Max r3.Vector
}

// NewAABB returns the box spanning min to max. Degenerate (flat) boxes are allowed.
func NewAABB(min, max r3.Vector) (AABB, error) {
	if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
		return AABB{}, newInvertedBoundsError(min, max)
	}
	return AABB{Min: min, Max: max}, nil
}

// NewCube returns the axis-aligned cube with the given center and side length.
func NewCube(center r3.Vector, sideLength float64) AABB {
	half := r3.Vector{X: sideLength / 2, Y: sideLength / 2, Z: sideLength / 2}
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

func (b AABB) String() string {
	return fmt.Sprintf("AABB{min:(%.3f, %.3f, %.3f) max:(%.3f, %.3f, %.3f)}",
		b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}

// Center returns the midpoint of the box.
func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// HalfSize returns half of the box's extent along each axis.
func (b AABB) HalfSize() r3.Vector {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Contains reports whether p lies in the box, boundary included.
func (b AABB) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Corners returns the eight vertices of the box.
func (b AABB) Corners() [8]r3.Vector {
	var out [8]r3.Vector
	for i := range out {
		c := b.Min
		if i&4 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&1 != 0 {
			c.Z = b.Max.Z
		}
		out[i] = c
	}
	return out
}

// Relation classifies other against b.
func (b AABB) Relation(other AABB) Relation {
	if other.Max.X < b.Min.X || other.Min.X > b.Max.X ||
		other.Max.Y < b.Min.Y || other.Min.Y > b.Max.Y ||
		other.Max.Z < b.Min.Z || other.Min.Z > b.Max.Z {
		return Outside
	}
	if b.Contains(other.Min) && b.Contains(other.Max) {
		return Inside
	}
	return Intersecting
}

// Translate returns the box shifted by offset.
func (b AABB) Translate(offset r3.Vector) AABB {
	return AABB{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// ToOBB expresses the box as an oriented box with an identity rotation.
func (b AABB) ToOBB() OBB {
	return OBB{Pose: NewPoseFromPoint(b.Center()), HalfSize: b.HalfSize()}
}

// cornersInside reports whether every corner of box satisfies contains.
func cornersInside(box AABB, contains func(r3.Vector) bool) bool {
	for _, c := range box.Corners() {
		if !contains(c) {
			return false
		}
	}
	return true
}
