package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Frustum is the view volume of a projection matrix. Matrix maps the enclosing frame into clip
// space, and a point is inside when -w <= x, y, z <= w after projection (OpenGL conventions).
type Frustum struct {
	Matrix mgl64.Mat4
	planes [6]mgl64.Vec4
}

// NewFrustum extracts the six clip planes of clipFromFrame (Gribb & Hartmann). Plane normals
// point into the frustum.
func NewFrustum(clipFromFrame mgl64.Mat4) Frustum {
	row0, row1, row2, row3 := clipFromFrame.Row(0), clipFromFrame.Row(1), clipFromFrame.Row(2), clipFromFrame.Row(3)
	return Frustum{
		Matrix: clipFromFrame,
		planes: [6]mgl64.Vec4{
			row3.Add(row0), row3.Sub(row0),
			row3.Add(row1), row3.Sub(row1),
			row3.Add(row2), row3.Sub(row2),
		},
	}
}

// Contains reports whether p lies on the inner side of all six planes.
func (f Frustum) Contains(p r3.Vector) bool {
	for _, plane := range f.planes {
		if planeDistance(plane, p) < 0 {
			return false
		}
	}
	return true
}

// Relation classifies box against the frustum. The test is conservative: a box reported as
// Intersecting may still lie outside near the frustum's corners.
func (f Frustum) Relation(box AABB) Relation {
	result := Inside
	for _, plane := range f.planes {
		positive, negative := box.Min, box.Max
		if plane[0] >= 0 {
			positive.X, negative.X = box.Max.X, box.Min.X
		}
		if plane[1] >= 0 {
			positive.Y, negative.Y = box.Max.Y, box.Min.Y
		}
		if plane[2] >= 0 {
			positive.Z, negative.Z = box.Max.Z, box.Min.Z
		}
		if planeDistance(plane, positive) < 0 {
			return Outside
		}
		if planeDistance(plane, negative) < 0 {
			result = Intersecting
		}
	}
	return result
}

// Transform re-expresses the frustum in the frame reached by toPremultiply.
func (f Frustum) Transform(toPremultiply Pose) Frustum {
	return NewFrustum(f.Matrix.Mul4(PoseToMat4(PoseInverse(toPremultiply))))
}

func planeDistance(plane mgl64.Vec4, p r3.Vector) float64 {
	return plane[0]*p.X + plane[1]*p.Y + plane[2]*p.Z + plane[3]
}
