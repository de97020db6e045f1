package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about a set of points: their bounds and which optional attributes they carry.
type MetaData struct {
	HasIntensity bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	count int
}

// NewMetaData returns an empty MetaData ready to be merged into.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the metadata with a new point.
func (meta *MetaData) Merge(p Point) {
	if p.HasIntensity {
		meta.HasIntensity = true
	}
	v := p.Position
	meta.MinX = math.Min(meta.MinX, v.X)
	meta.MinY = math.Min(meta.MinY, v.Y)
	meta.MinZ = math.Min(meta.MinZ, v.Z)
	meta.MaxX = math.Max(meta.MaxX, v.X)
	meta.MaxY = math.Max(meta.MaxY, v.Y)
	meta.MaxZ = math.Max(meta.MaxZ, v.Z)
	meta.count++
}

// Count returns how many points were merged.
func (meta *MetaData) Count() int {
	return meta.count
}

// Center returns the center of the bounds. It is the origin when nothing has been merged.
func (meta *MetaData) Center() r3.Vector {
	if meta.count == 0 {
		return r3.Vector{}
	}
	return r3.Vector{
		X: (meta.MinX + meta.MaxX) / 2,
		Y: (meta.MinY + meta.MaxY) / 2,
		Z: (meta.MinZ + meta.MaxZ) / 2,
	}
}

// MaxSideLength returns the largest extent of the bounds along any axis.
func (meta *MetaData) MaxSideLength() float64 {
	if meta.count == 0 {
		return 0
	}
	return math.Max(meta.MaxX-meta.MinX, math.Max(meta.MaxY-meta.MinY, meta.MaxZ-meta.MinZ))
}

// MetaDataFromPoints merges every point of points.
func MetaDataFromPoints(points []Point) MetaData {
	meta := NewMetaData()
	for _, p := range points {
		meta.Merge(p)
	}
	return meta
}
