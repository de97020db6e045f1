package octree

import (
	"github.com/go-gl/mathgl/mgl64"

	"go.viam.com/cloudquery/spatialmath"
)

// NumPointsPerBatch is the batch size used when none is given.
const NumPointsPerBatch = 500000

// PointLocation is the region a query selects. The set of regions is closed: AllPoints,
// AABBLocation, FrustumLocation, OBBLocation and OrientedBeamLocation.
type PointLocation interface {
	isPointLocation()
}

// AllPoints selects every point.
type AllPoints struct{}

// AABBLocation selects the points inside an axis-aligned box.
type AABBLocation struct {
	Box spatialmath.AABB
}

// FrustumLocation selects the points inside the view volume of a clip-from-frame matrix.
type FrustumLocation struct {
	Matrix mgl64.Mat4
}

// OBBLocation selects the points inside an oriented box.
type OBBLocation struct {
	Box spatialmath.OBB
}

// OrientedBeamLocation selects the points inside an infinite beam.
type OrientedBeamLocation struct {
	Beam spatialmath.OrientedBeam
}

func (AllPoints) isPointLocation()            {}
func (AABBLocation) isPointLocation()         {}
func (FrustumLocation) isPointLocation()      {}
func (OBBLocation) isPointLocation()          {}
func (OrientedBeamLocation) isPointLocation() {}

// PointQuery describes which points to fetch. When GlobalFromLocal is set, Location is
// interpreted in the local frame and positions are returned in that frame as well.
type PointQuery struct {
	Location        PointLocation
	GlobalFromLocal spatialmath.Pose
}

// NewPointQuery returns a query for location without a local frame.
func NewPointQuery(location PointLocation) *PointQuery {
	return &PointQuery{Location: location}
}

// Culling returns the predicate for the query's location, expressed in the octree's global frame.
// A nil location selects all points.
func (q *PointQuery) Culling() (PointCulling, error) {
	var culling PointCulling
	switch loc := q.Location.(type) {
	case nil, AllPoints:
		return allPointsCulling{}, nil
	case AABBLocation:
		culling = aabbCulling{box: loc.Box}
	case FrustumLocation:
		culling = frustumCulling{frustum: spatialmath.NewFrustum(loc.Matrix)}
	case OBBLocation:
		culling = newOBBCulling(loc.Box)
	case OrientedBeamLocation:
		culling = newBeamCulling(loc.Beam)
	default:
		return nil, NewUnsupportedLocationError(q.Location)
	}
	if q.GlobalFromLocal != nil {
		culling = culling.Transform(q.GlobalFromLocal)
	}
	return culling, nil
}

// LocalFromGlobal returns the transform that brings global positions into the query's local
// frame, or nil when the query has none.
func (q *PointQuery) LocalFromGlobal() spatialmath.Pose {
	if q.GlobalFromLocal == nil {
		return nil
	}
	return spatialmath.PoseInverse(q.GlobalFromLocal)
}
