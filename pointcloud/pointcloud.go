// Package pointcloud defines the points produced by octree traversal and the columnar batches
// they are grouped into before being handed to consumers.
package pointcloud

import "github.com/golang/geo/r3"

// Names of the attribute layers carried by a PointData.
const (
	ColorLayer     = "color"
	IntensityLayer = "intensity"
)

// LayerData holds one attribute for every point of a batch, index aligned with the batch's
// positions. The set of implementations is closed to this package.
type LayerData interface {
	Len() int
	isLayerData()
}

// U8Vec4Layer stores four bytes per point, e.g. RGBA colors.
type U8Vec4Layer [][4]uint8

// Len returns the number of points in the layer.
func (l U8Vec4Layer) Len() int { return len(l) }

func (U8Vec4Layer) isLayerData() {}

// F32Layer stores one float32 per point, e.g. intensities.
type F32Layer []float32

// Len returns the number of points in the layer.
func (l F32Layer) Len() int { return len(l) }

func (F32Layer) isLayerData() {}

// PointData is a batch of points in column layout. The order of Position is arrival order and
// carries no spatial meaning. Every layer in Layers has exactly len(Position) entries; a
// consumer owns a PointData once it has been delivered.
type PointData struct {
	Position []r3.Vector
	Layers   map[string]LayerData
}

// Len returns the number of points in the batch.
func (pd *PointData) Len() int {
	return len(pd.Position)
}

// Color returns the color layer, if present.
func (pd *PointData) Color() (U8Vec4Layer, bool) {
	l, ok := pd.Layers[ColorLayer].(U8Vec4Layer)
	return l, ok
}

// Intensity returns the intensity layer, if present.
func (pd *PointData) Intensity() (F32Layer, bool) {
	l, ok := pd.Layers[IntensityLayer].(F32Layer)
	return l, ok
}
