package octree

import (
	"github.com/golang/geo/r3"

	"go.viam.com/cloudquery/spatialmath"
)

// PointCulling tests points and octree nodes against a query region.
type PointCulling interface {
	// Contains reports whether p lies in the region.
	Contains(p r3.Vector) bool

	// Intersects classifies a node's bounding box against the region. Outside must only be
	// returned when no point of the box can be contained.
	Intersects(box spatialmath.AABB) spatialmath.Relation

	// Transform returns the same region expressed in another frame, where pose maps the current
	// frame into the new one: Transform(pose).Contains(pose*p) == Contains(p).
	Transform(pose spatialmath.Pose) PointCulling
}

type allPointsCulling struct{}

func (allPointsCulling) Contains(r3.Vector) bool { return true }

func (allPointsCulling) Intersects(spatialmath.AABB) spatialmath.Relation { return spatialmath.Inside }

func (c allPointsCulling) Transform(spatialmath.Pose) PointCulling { return c }

type aabbCulling struct {
	box spatialmath.AABB
}

func (c aabbCulling) Contains(p r3.Vector) bool {
	return c.box.Contains(p)
}

func (c aabbCulling) Intersects(box spatialmath.AABB) spatialmath.Relation {
	return c.box.Relation(box)
}

// Transform keeps the box axis aligned for pure translations and turns it into an oriented box
// otherwise.
func (c aabbCulling) Transform(pose spatialmath.Pose) PointCulling {
	if spatialmath.IsTranslationOnly(pose) {
		return aabbCulling{box: c.box.Translate(pose.Point())}
	}
	return newOBBCulling(c.box.ToOBB().Transform(pose))
}

type obbCulling struct {
	obb      spatialmath.OBB
	contains func(r3.Vector) bool
}

func newOBBCulling(obb spatialmath.OBB) obbCulling {
	return obbCulling{obb: obb, contains: obb.ContainsFunc()}
}

func (c obbCulling) Contains(p r3.Vector) bool {
	return c.contains(p)
}

func (c obbCulling) Intersects(box spatialmath.AABB) spatialmath.Relation {
	return c.obb.Relation(box)
}

func (c obbCulling) Transform(pose spatialmath.Pose) PointCulling {
	return newOBBCulling(c.obb.Transform(pose))
}

type beamCulling struct {
	beam     spatialmath.OrientedBeam
	contains func(r3.Vector) bool
}

func newBeamCulling(beam spatialmath.OrientedBeam) beamCulling {
	return beamCulling{beam: beam, contains: beam.ContainsFunc()}
}

func (c beamCulling) Contains(p r3.Vector) bool {
	return c.contains(p)
}

func (c beamCulling) Intersects(box spatialmath.AABB) spatialmath.Relation {
	return c.beam.Relation(box)
}

func (c beamCulling) Transform(pose spatialmath.Pose) PointCulling {
	return newBeamCulling(c.beam.Transform(pose))
}

type frustumCulling struct {
	frustum spatialmath.Frustum
}

func (c frustumCulling) Contains(p r3.Vector) bool {
	return c.frustum.Contains(p)
}

func (c frustumCulling) Intersects(box spatialmath.AABB) spatialmath.Relation {
	return c.frustum.Relation(box)
}

func (c frustumCulling) Transform(pose spatialmath.Pose) PointCulling {
	return frustumCulling{frustum: c.frustum.Transform(pose)}
}
