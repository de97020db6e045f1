package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestPoseCompose(t *testing.T) {
	a := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &R4AA{Theta: math.Pi / 2, RZ: 1})
	b := NewPose(r3.Vector{X: -4, Y: 0, Z: 1}, &R4AA{Theta: 0.3, RX: 1})
	c := NewPose(r3.Vector{X: 0, Y: 7, Z: 0}, &R4AA{Theta: 2.1, RX: 1, RY: -1, RZ: 0.5})
	p := r3.Vector{X: 0.25, Y: -8, Z: 2}

	t.Run("applies right to left", func(t *testing.T) {
		composed := TransformPoint(Compose(a, b), p)
		stepwise := TransformPoint(a, TransformPoint(b, p))
		test.That(t, R3VectorAlmostEqual(composed, stepwise, 1e-9), test.ShouldBeTrue)
	})

	t.Run("associative", func(t *testing.T) {
		test.That(t, PoseAlmostEqual(Compose(Compose(a, b), c), Compose(a, Compose(b, c))), test.ShouldBeTrue)
	})

	t.Run("inverse", func(t *testing.T) {
		test.That(t, PoseAlmostEqual(Compose(a, PoseInverse(a)), NewZeroPose()), test.ShouldBeTrue)
		test.That(t, PoseAlmostEqual(Compose(PoseInverse(c), c), NewZeroPose()), test.ShouldBeTrue)
		back := TransformPoint(PoseInverse(b), TransformPoint(b, p))
		test.That(t, R3VectorAlmostEqual(back, p, 1e-9), test.ShouldBeTrue)
	})

	t.Run("rotation about z", func(t *testing.T) {
		got := TransformPoint(a, r3.Vector{X: 1})
		test.That(t, R3VectorAlmostEqual(got, r3.Vector{X: 1, Y: 3, Z: 3}, 1e-9), test.ShouldBeTrue)
	})
}

func TestPoseToMat4(t *testing.T) {
	pose := NewPose(r3.Vector{X: 1, Y: -2, Z: 0.5}, &R4AA{Theta: 1.1, RX: 0.2, RY: 1, RZ: -0.4})
	p := r3.Vector{X: 3, Y: 1, Z: -2}
	m := PoseToMat4(pose)
	v := m.Mul4x1([4]float64{p.X, p.Y, p.Z, 1})
	test.That(t, R3VectorAlmostEqual(r3.Vector{X: v[0], Y: v[1], Z: v[2]}, TransformPoint(pose, p), 1e-9), test.ShouldBeTrue)
	test.That(t, v[3], test.ShouldAlmostEqual, 1)
}

func TestIsTranslationOnly(t *testing.T) {
	test.That(t, IsTranslationOnly(NewPoseFromPoint(r3.Vector{X: 4})), test.ShouldBeTrue)
	test.That(t, IsTranslationOnly(NewPose(r3.Vector{}, &R4AA{Theta: 0.01, RZ: 1})), test.ShouldBeFalse)
	// the negated identity quaternion is still no rotation
	test.That(t, IsTranslationOnly(NewPose(r3.Vector{}, NewOrientationFromQuaternion(quat.Number{Real: -1}))), test.ShouldBeTrue)
}

func TestR4AAConversion(t *testing.T) {
	for _, aa := range []*R4AA{
		{Theta: 0.5, RX: 1},
		{Theta: 2.5, RX: 0, RY: 0.6, RZ: 0.8},
		{Theta: math.Pi - 0.01, RX: -1},
	} {
		back := QuatToR4AA(aa.ToQuat())
		test.That(t, back.Theta, test.ShouldAlmostEqual, aa.Theta)
		test.That(t, back.RX, test.ShouldAlmostEqual, aa.RX)
		test.That(t, back.RY, test.ShouldAlmostEqual, aa.RY)
		test.That(t, back.RZ, test.ShouldAlmostEqual, aa.RZ)
	}

	zero := &R4AA{Theta: 1}
	test.That(t, zero.ToQuat(), test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, QuatToR4AA(quat.Number{Real: 1}), test.ShouldResemble, NewR4AA())
}
