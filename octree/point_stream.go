package octree

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/cloudquery/pointcloud"
	"go.viam.com/cloudquery/spatialmath"
)

// missingIntensity pads the intensity layer for points that carry none, keeping it aligned with
// the positions.
var missingIntensity = float32(math.NaN())

// maxReserve bounds the first allocation of a stream so that small nodes queried with a large
// batch size do not each reserve a full batch. Once a stream has filled a batch it reserves the
// full capacity.
const maxReserve = 1 << 16

// PointStream accumulates points into columnar batches of at most capacity points and hands each
// completed batch to emit. A PointStream is owned by a single goroutine.
type PointStream struct {
	capacity        int
	localFromGlobal spatialmath.Pose
	emit            func(*pointcloud.PointData) error

	position     []r3.Vector
	color        [][4]uint8
	intensity    []float32
	hasIntensity bool
	filled       bool
}

// NewPointStream returns a stream emitting batches of at most capacity points. If localFromGlobal
// is non-nil every position is transformed by it before being buffered.
func NewPointStream(capacity int, localFromGlobal spatialmath.Pose, emit func(*pointcloud.PointData) error) *PointStream {
	if capacity <= 0 {
		capacity = NumPointsPerBatch
	}
	return &PointStream{
		capacity:        capacity,
		localFromGlobal: localFromGlobal,
		emit:            emit,
	}
}

// Len returns the number of buffered points.
func (s *PointStream) Len() int {
	return len(s.position)
}

// Push buffers p without emitting anything.
func (s *PointStream) Push(p pointcloud.Point) {
	if s.position == nil {
		s.reserve()
	}
	position := p.Position
	if s.localFromGlobal != nil {
		position = spatialmath.TransformPoint(s.localFromGlobal, position)
	}
	if p.HasIntensity && !s.hasIntensity {
		s.hasIntensity = true
		s.intensity = make([]float32, len(s.position), cap(s.position))
		for i := range s.intensity {
			s.intensity[i] = missingIntensity
		}
	}

	s.position = append(s.position, position)
	s.color = append(s.color, p.RGBA255())
	if s.hasIntensity {
		if p.HasIntensity {
			s.intensity = append(s.intensity, p.Intensity)
		} else {
			s.intensity = append(s.intensity, missingIntensity)
		}
	}
}

// PushAndMaybeFlush buffers p and flushes once the batch is full.
func (s *PointStream) PushAndMaybeFlush(p pointcloud.Point) error {
	s.Push(p)
	if len(s.position) >= s.capacity {
		s.filled = true
		return s.Flush()
	}
	return nil
}

// Flush emits the buffered points as one batch, if there are any, and returns emit's error
// unchanged. It must be called once after the last push so a partial batch is not lost.
func (s *PointStream) Flush() error {
	if len(s.position) == 0 {
		return nil
	}
	layers := map[string]pointcloud.LayerData{
		pointcloud.ColorLayer: pointcloud.U8Vec4Layer(s.color),
	}
	if s.hasIntensity {
		layers[pointcloud.IntensityLayer] = pointcloud.F32Layer(s.intensity)
	}
	batch := &pointcloud.PointData{Position: s.position, Layers: layers}

	// the batch now owns the buffers; fresh ones are reserved on the next push
	s.position, s.color, s.intensity, s.hasIntensity = nil, nil, nil, false
	return s.emit(batch)
}

func (s *PointStream) reserve() {
	n := s.capacity
	if !s.filled && n > maxReserve {
		n = maxReserve
	}
	s.position = make([]r3.Vector, 0, n)
	s.color = make([][4]uint8, 0, n)
}
