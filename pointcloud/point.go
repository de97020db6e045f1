package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Point is a single sample of a point cloud as produced by octree traversal. Position is always
// expressed in the octree's global frame.
type Point struct {
	Position r3.Vector
	Color    color.NRGBA

	// Intensity is only meaningful when HasIntensity is set.
	Intensity    float32
	HasIntensity bool
}

// NewPoint returns a colored point without intensity.
func NewPoint(p r3.Vector, c color.NRGBA) Point {
	return Point{Position: p, Color: c}
}

// NewPointWithIntensity returns a colored point carrying an intensity value.
func NewPointWithIntensity(p r3.Vector, c color.NRGBA, intensity float32) Point {
	return Point{Position: p, Color: c, Intensity: intensity, HasIntensity: true}
}

// RGBA255 returns the color channels as a vector of bytes, the layout of the color layer.
func (p Point) RGBA255() [4]uint8 {
	return [4]uint8{p.Color.R, p.Color.G, p.Color.B, p.Color.A}
}
