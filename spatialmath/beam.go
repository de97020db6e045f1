package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// OrientedBeam is a rectangular beam swept infinitely along the z axis of its own frame. Pose maps
// the beam frame into the enclosing frame; HalfExtent bounds the cross section along x and y.
type OrientedBeam struct {
	Pose       Pose
	HalfExtent [2]float64
}

// NewOrientedBeam returns a beam with the given pose and cross section half extents.
func NewOrientedBeam(pose Pose, halfExtent [2]float64) (OrientedBeam, error) {
	if halfExtent[0] < 0 || halfExtent[1] < 0 {
		return OrientedBeam{}, newBadGeometryDimensionsError("oriented beam", halfExtent)
	}
	if pose == nil {
		pose = NewZeroPose()
	}
	return OrientedBeam{Pose: pose, HalfExtent: halfExtent}, nil
}

func (b OrientedBeam) String() string {
	return fmt.Sprintf("OrientedBeam{pose:%v half:(%.3f, %.3f)}", b.Pose, b.HalfExtent[0], b.HalfExtent[1])
}

// Contains reports whether p lies within the beam's cross section.
func (b OrientedBeam) Contains(p r3.Vector) bool {
	return b.ContainsFunc()(p)
}

// ContainsFunc returns a containment test with the inverse pose computed once.
func (b OrientedBeam) ContainsFunc() func(r3.Vector) bool {
	inv := PoseInverse(b.Pose)
	hx, hy := b.HalfExtent[0], b.HalfExtent[1]
	return func(p r3.Vector) bool {
		local := TransformPoint(inv, p)
		return math.Abs(local.X) <= hx && math.Abs(local.Y) <= hy
	}
}

// Relation classifies box against b.
func (b OrientedBeam) Relation(box AABB) Relation {
	u0 := RotateVector(b.Pose, r3.Vector{X: 1})
	u1 := RotateVector(b.Pose, r3.Vector{Y: 1})
	axis := RotateVector(b.Pose, r3.Vector{Z: 1})
	hA := box.HalfSize()
	t := b.Pose.Point().Sub(box.Center())
	if beamSeparatedFromAABB([3]float64{hA.X, hA.Y, hA.Z}, u0, u1, axis, b.HalfExtent[0], b.HalfExtent[1], t) {
		return Outside
	}
	if cornersInside(box, b.ContainsFunc()) {
		return Inside
	}
	return Intersecting
}

// Transform premultiplies the beam pose with toPremultiply.
func (b OrientedBeam) Transform(toPremultiply Pose) OrientedBeam {
	return OrientedBeam{Pose: Compose(toPremultiply, b.Pose), HalfExtent: b.HalfExtent}
}
