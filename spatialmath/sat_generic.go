package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// satEpsilon is added to |R[i][j]| so near-parallel edge pairs do not produce false separations.
const satEpsilon = 1e-10

// obbSeparatedFromAABB runs the 15-axis separating axis test between an axis-aligned box with
// half sizes hA and an oriented box with unit axes axesB, half sizes hB and center offset t
// (center of B minus center of A), using Ericson's R-matrix formulation
// ("Real-Time Collision Detection" Ch. 4.4). Since A is axis aligned, R[i][j] is simply
// component i of B's j-th axis.
func obbSeparatedFromAABB(hA [3]float64, axesB [3]r3.Vector, hB [3]float64, t r3.Vector) bool {
	var r, absR [3][3]float64
	for j := 0; j < 3; j++ {
		col := [3]float64{axesB[j].X, axesB[j].Y, axesB[j].Z}
		for i := 0; i < 3; i++ {
			r[i][j] = col[i]
			absR[i][j] = math.Abs(col[i]) + satEpsilon
		}
	}
	tv := [3]float64{t.X, t.Y, t.Z}

	// face axes of A
	for i := 0; i < 3; i++ {
		rb := hB[0]*absR[i][0] + hB[1]*absR[i][1] + hB[2]*absR[i][2]
		if math.Abs(tv[i]) > hA[i]+rb {
			return true
		}
	}

	// face axes of B
	for j := 0; j < 3; j++ {
		ra := hA[0]*absR[0][j] + hA[1]*absR[1][j] + hA[2]*absR[2][j]
		proj := tv[0]*r[0][j] + tv[1]*r[1][j] + tv[2]*r[2][j]
		if math.Abs(proj) > ra+hB[j] {
			return true
		}
	}

	// edge axes a_i x b_j
	for i := 0; i < 3; i++ {
		i1, i2 := (i+1)%3, (i+2)%3
		for j := 0; j < 3; j++ {
			j1, j2 := (j+1)%3, (j+2)%3
			ra := hA[i1]*absR[i2][j] + hA[i2]*absR[i1][j]
			rb := hB[j1]*absR[i][j2] + hB[j2]*absR[i][j1]
			if math.Abs(tv[i2]*r[i1][j]-tv[i1]*r[i2][j]) > ra+rb {
				return true
			}
		}
	}
	return false
}

// beamSeparatedFromAABB tests separation between an axis-aligned box and a beam whose cross
// section spans u0, u1 with half sizes h0, h1 and which extends forever along axis. Only axes
// perpendicular to the beam direction can separate the two.
func beamSeparatedFromAABB(hA [3]float64, u0, u1, axis r3.Vector, h0, h1 float64, t r3.Vector) bool {
	candidates := []r3.Vector{
		{X: 1}, {Y: 1}, {Z: 1},
		u0, u1,
		axis.Cross(r3.Vector{X: 1}),
		axis.Cross(r3.Vector{Y: 1}),
		axis.Cross(r3.Vector{Z: 1}),
	}
	for _, l := range candidates {
		n := l.Norm()
		if n < 1e-9 {
			continue
		}
		l = l.Mul(1 / n)
		if math.Abs(l.Dot(axis)) > 1e-9 {
			continue
		}
		ra := hA[0]*math.Abs(l.X) + hA[1]*math.Abs(l.Y) + hA[2]*math.Abs(l.Z)
		rb := h0*math.Abs(l.Dot(u0)) + h1*math.Abs(l.Dot(u1))
		if math.Abs(t.Dot(l)) > ra+rb {
			return true
		}
	}
	return false
}
