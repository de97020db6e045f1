package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose represents a rigid transform: a rotation followed by a translation. A pose named
// bFromA maps coordinates expressed in frame A into frame B.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type basicPose struct {
	point r3.Vector
	q     quat.Number
}

// NewPose returns a pose with the given translation and orientation.
func NewPose(point r3.Vector, o Orientation) Pose {
	if o == nil {
		o = NewZeroOrientation()
	}
	return &basicPose{point: point, q: normalizeQuat(o.Quaternion())}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return &basicPose{point: point, q: quat.Number{Real: 1}}
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return &basicPose{q: quat.Number{Real: 1}}
}

func (p *basicPose) Point() r3.Vector {
	return p.point
}

func (p *basicPose) Orientation() Orientation {
	q := quaternion(p.q)
	return &q
}

func (p *basicPose) String() string {
	aa := QuatToR4AA(p.q)
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f TH:%.3f RX:%.3f RY:%.3f RZ:%.3f}",
		p.point.X, p.point.Y, p.point.Z, aa.Theta, aa.RX, aa.RY, aa.RZ)
}

// Compose returns the pose equivalent to applying b and then a, i.e. cFromA = Compose(cFromB, bFromA).
func Compose(a, b Pose) Pose {
	qa := a.Orientation().Quaternion()
	return &basicPose{
		point: a.Point().Add(rotate(qa, b.Point())),
		q:     normalizeQuat(quat.Mul(qa, b.Orientation().Quaternion())),
	}
}

// PoseInverse returns the transform that undoes p.
func PoseInverse(p Pose) Pose {
	qInv := quat.Conj(p.Orientation().Quaternion())
	return &basicPose{
		point: rotate(qInv, p.Point()).Mul(-1),
		q:     qInv,
	}
}

// TransformPoint applies p to the position v.
func TransformPoint(p Pose, v r3.Vector) r3.Vector {
	return rotate(p.Orientation().Quaternion(), v).Add(p.Point())
}

// RotateVector applies only the rotational part of p to v.
func RotateVector(p Pose, v r3.Vector) r3.Vector {
	return rotate(p.Orientation().Quaternion(), v)
}

// IsTranslationOnly reports whether p has no rotational component.
func IsTranslationOnly(p Pose) bool {
	return QuaternionAlmostEqual(p.Orientation().Quaternion(), quat.Number{Real: 1}, 1e-12)
}

// PoseAlmostEqual checks translation and orientation within a fixed tolerance.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-8)
}

// PoseAlmostEqualEps checks translation within epsilon and orientation within 1e-5.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	return R3VectorAlmostEqual(a.Point(), b.Point(), epsilon) && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}

// R3VectorAlmostEqual compares two r3.Vectors componentwise.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}

// PoseToMat4 returns the homogeneous matrix of p.
func PoseToMat4(p Pose) mgl64.Mat4 {
	q := p.Orientation().Quaternion()
	rot := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}.Mat4()
	pt := p.Point()
	return mgl64.Translate3D(pt.X, pt.Y, pt.Z).Mul4(rot)
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}
