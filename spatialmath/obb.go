package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// OBB is an oriented box. Pose maps the box frame, in which the box is centered at the origin
// and axis aligned, into the enclosing frame.
type OBB struct {
	Pose     Pose
	HalfSize r3.Vector
}

// NewOBB returns an oriented box with the given pose and half extents.
func NewOBB(pose Pose, halfSize r3.Vector) (OBB, error) {
	if halfSize.X < 0 || halfSize.Y < 0 || halfSize.Z < 0 {
		return OBB{}, newBadGeometryDimensionsError("oriented box", halfSize)
	}
	if pose == nil {
		pose = NewZeroPose()
	}
	return OBB{Pose: pose, HalfSize: halfSize}, nil
}

func (o OBB) String() string {
	return fmt.Sprintf("OBB{pose:%v half:(%.3f, %.3f, %.3f)}", o.Pose, o.HalfSize.X, o.HalfSize.Y, o.HalfSize.Z)
}

// Contains reports whether p, given in the enclosing frame, lies within the box.
func (o OBB) Contains(p r3.Vector) bool {
	return o.ContainsFunc()(p)
}

// ContainsFunc returns a containment test with the inverse pose computed once, for use on hot paths.
func (o OBB) ContainsFunc() func(r3.Vector) bool {
	inv := PoseInverse(o.Pose)
	half := o.HalfSize
	return func(p r3.Vector) bool {
		return containsLocal(TransformPoint(inv, p), half)
	}
}

// Relation classifies box against o.
func (o OBB) Relation(box AABB) Relation {
	axes := [3]r3.Vector{
		RotateVector(o.Pose, r3.Vector{X: 1}),
		RotateVector(o.Pose, r3.Vector{Y: 1}),
		RotateVector(o.Pose, r3.Vector{Z: 1}),
	}
	hA := box.HalfSize()
	t := o.Pose.Point().Sub(box.Center())
	if obbSeparatedFromAABB(
		[3]float64{hA.X, hA.Y, hA.Z},
		axes,
		[3]float64{o.HalfSize.X, o.HalfSize.Y, o.HalfSize.Z},
		t,
	) {
		return Outside
	}
	if cornersInside(box, o.ContainsFunc()) {
		return Inside
	}
	return Intersecting
}

// Transform premultiplies the box pose with toPremultiply, moving the box into a new frame.
func (o OBB) Transform(toPremultiply Pose) OBB {
	return OBB{Pose: Compose(toPremultiply, o.Pose), HalfSize: o.HalfSize}
}

func containsLocal(local, half r3.Vector) bool {
	return math.Abs(local.X) <= half.X && math.Abs(local.Y) <= half.Y && math.Abs(local.Z) <= half.Z
}
