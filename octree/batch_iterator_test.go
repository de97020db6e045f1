package octree

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/cloudquery/pointcloud"
	"go.viam.com/cloudquery/spatialmath"
	"go.viam.com/cloudquery/utils"
)

// listOctree keeps one node per slice entry and reports every non-empty node.
type listOctree struct {
	nodes [][]pointcloud.Point
}

func (o *listOctree) NodesInLocation(ctx context.Context, query *PointQuery, fn func(NodeID) bool) error {
	for i, n := range o.nodes {
		if len(n) == 0 {
			continue
		}
		if !fn(NodeID(i)) {
			return nil
		}
	}
	return nil
}

func (o *listOctree) PointsInNode(ctx context.Context, query *PointQuery, id NodeID, fn func(pointcloud.Point) bool) error {
	if int(id) >= len(o.nodes) {
		return NewUnknownNodeError(id)
	}
	culling, err := query.Culling()
	if err != nil {
		return err
	}
	for _, p := range o.nodes[id] {
		if !culling.Contains(p.Position) {
			continue
		}
		if !fn(p) {
			return nil
		}
	}
	return nil
}

// failingOctree fails or panics while traversing one of its nodes.
type failingOctree struct {
	listOctree
	failNode NodeID
	panics   bool
}

var errNodeCorrupt = errors.New("node is corrupt")

func (o *failingOctree) PointsInNode(ctx context.Context, query *PointQuery, id NodeID, fn func(pointcloud.Point) bool) error {
	if id == o.failNode {
		if o.panics {
			panic("corrupt node")
		}
		return errNodeCorrupt
	}
	return o.listOctree.PointsInNode(ctx, query, id, fn)
}

func pointsAlongX(xs ...float64) []pointcloud.Point {
	points := make([]pointcloud.Point, 0, len(xs))
	for _, x := range xs {
		points = append(points, pointcloud.NewPoint(r3.Vector{X: x}, white))
	}
	return points
}

func collectBatches(t *testing.T, it *BatchIterator) ([]int, []r3.Vector) {
	t.Helper()
	var sizes []int
	var positions []r3.Vector
	err := it.TryForEachBatch(context.Background(), func(batch *pointcloud.PointData) error {
		sizes = append(sizes, batch.Len())
		positions = append(positions, batch.Position...)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	return sizes, positions
}

func sortedXs(positions []r3.Vector) []float64 {
	xs := make([]float64, 0, len(positions))
	for _, p := range positions {
		xs = append(xs, p.X)
	}
	sort.Float64s(xs)
	return xs
}

func TestBatchIteratorSingleNode(t *testing.T) {
	box, err := spatialmath.NewAABB(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 5, Y: 1, Z: 1})
	test.That(t, err, test.ShouldBeNil)
	octree := &listOctree{nodes: [][]pointcloud.Point{pointsAlongX(0, 1, 2, 10)}}

	it := NewBatchIterator([]Octree{octree}, NewPointQuery(AABBLocation{Box: box}), 2,
		WithLogger(golog.NewTestLogger(t)))
	sizes, positions := collectBatches(t, it)
	test.That(t, sizes, test.ShouldResemble, []int{2, 1})
	test.That(t, sortedXs(positions), test.ShouldResemble, []float64{0, 1, 2})
}

func TestBatchIteratorNoPoints(t *testing.T) {
	octree := &listOctree{nodes: [][]pointcloud.Point{nil, nil}}
	calls := 0
	it := NewBatchIterator([]Octree{octree}, NewPointQuery(AllPoints{}), 2)
	err := it.TryForEachBatch(context.Background(), func(*pointcloud.PointData) error {
		calls++
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 0)

	t.Run("nodes without matching points", func(t *testing.T) {
		box, err := spatialmath.NewAABB(r3.Vector{X: 100}, r3.Vector{X: 101})
		test.That(t, err, test.ShouldBeNil)
		octree := &listOctree{nodes: [][]pointcloud.Point{pointsAlongX(0, 1), pointsAlongX(2)}}
		it := NewBatchIterator([]Octree{octree}, NewPointQuery(AABBLocation{Box: box}), 2)
		err = it.TryForEachBatch(context.Background(), func(*pointcloud.PointData) error {
			calls++
			return nil
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, calls, test.ShouldEqual, 0)
	})
}

func TestBatchIteratorInvalidArguments(t *testing.T) {
	noop := func(*pointcloud.PointData) error { return nil }

	err := NewBatchIterator(nil, NewPointQuery(AllPoints{}), 1).TryForEachBatch(context.Background(), noop)
	test.That(t, err, test.ShouldBeError, newNoOctreesError())

	err = NewBatchIterator([]Octree{&listOctree{}}, nil, 1).TryForEachBatch(context.Background(), noop)
	test.That(t, err, test.ShouldBeError, newNilQueryError())
}

func TestBatchIteratorAllPoints(t *testing.T) {
	var nodes [][]pointcloud.Point
	var want []float64
	for i := 0; i < 20; i++ {
		var xs []float64
		for j := 0; j < 37; j++ {
			xs = append(xs, float64(i*100+j))
		}
		want = append(want, xs...)
		nodes = append(nodes, pointsAlongX(xs...))
	}
	sort.Float64s(want)
	octrees := []Octree{&listOctree{nodes: nodes[:10]}, &listOctree{nodes: nodes[10:]}}

	for _, workers := range []int{1, 3, 64} {
		it := NewBatchIterator(octrees, NewPointQuery(AllPoints{}), 16, WithWorkers(workers), WithChannelCapacity(1))
		sizes, positions := collectBatches(t, it)
		for _, s := range sizes {
			test.That(t, s, test.ShouldBeGreaterThan, 0)
			test.That(t, s, test.ShouldBeLessThanOrEqualTo, 16)
		}
		test.That(t, sortedXs(positions), test.ShouldResemble, want)
	}
}

func TestBatchIteratorIdempotent(t *testing.T) {
	octree := &listOctree{nodes: [][]pointcloud.Point{pointsAlongX(0, 1, 2), pointsAlongX(3, 4), pointsAlongX(5)}}
	it := NewBatchIterator([]Octree{octree}, NewPointQuery(AllPoints{}), 2)

	_, first := collectBatches(t, it)
	_, second := collectBatches(t, it)
	test.That(t, sortedXs(first), test.ShouldResemble, sortedXs(second))
}

func TestBatchIteratorDisjointRegions(t *testing.T) {
	octree := &listOctree{nodes: [][]pointcloud.Point{pointsAlongX(0, 1, 2, 3), pointsAlongX(4, 5, 6, 7)}}
	left, err := spatialmath.NewAABB(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 2.5, Y: 1, Z: 1})
	test.That(t, err, test.ShouldBeNil)
	right, err := spatialmath.NewAABB(r3.Vector{X: 2.6, Y: -1, Z: -1}, r3.Vector{X: 10, Y: 1, Z: 1})
	test.That(t, err, test.ShouldBeNil)

	_, all := collectBatches(t, NewBatchIterator([]Octree{octree}, NewPointQuery(AllPoints{}), 3))
	_, l := collectBatches(t, NewBatchIterator([]Octree{octree}, NewPointQuery(AABBLocation{Box: left}), 3))
	_, r := collectBatches(t, NewBatchIterator([]Octree{octree}, NewPointQuery(AABBLocation{Box: right}), 3))

	test.That(t, len(l)+len(r), test.ShouldEqual, len(all))
	test.That(t, sortedXs(append(l, r...)), test.ShouldResemble, sortedXs(all))
}

func TestBatchIteratorLocalFrame(t *testing.T) {
	globalFromLocal := spatialmath.NewPose(
		r3.Vector{X: 5, Y: -2, Z: 1},
		&spatialmath.R4AA{Theta: 0.7, RX: 0, RY: 1, RZ: 1},
	)
	localPoints := []r3.Vector{{X: 0.5, Y: 0.5, Z: 0.5}, {X: -0.9, Y: 0, Z: 0.2}, {X: 3, Y: 3, Z: 3}}
	var global []pointcloud.Point
	for _, p := range localPoints {
		global = append(global, pointcloud.NewPoint(spatialmath.TransformPoint(globalFromLocal, p), white))
	}
	octree := &listOctree{nodes: [][]pointcloud.Point{global}}

	box, err := spatialmath.NewAABB(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, err, test.ShouldBeNil)
	query := &PointQuery{Location: AABBLocation{Box: box}, GlobalFromLocal: globalFromLocal}

	_, positions := collectBatches(t, NewBatchIterator([]Octree{octree}, query, 10))
	test.That(t, len(positions), test.ShouldEqual, 2)
	for i, p := range positions {
		test.That(t, spatialmath.R3VectorAlmostEqual(p, localPoints[i], 1e-9), test.ShouldBeTrue)
	}
}

func TestBatchIteratorCallbackError(t *testing.T) {
	var nodes [][]pointcloud.Point
	for i := 0; i < 50; i++ {
		nodes = append(nodes, pointsAlongX(0, 1, 2, 3, 4, 5, 6, 7))
	}
	octree := &listOctree{nodes: nodes}
	stop := errors.New("stop")

	calls := 0
	it := NewBatchIterator([]Octree{octree}, NewPointQuery(AllPoints{}), 2, WithWorkers(4), WithChannelCapacity(2))
	done := make(chan error, 1)
	go func() {
		done <- it.TryForEachBatch(context.Background(), func(*pointcloud.PointData) error {
			calls++
			return stop
		})
	}()

	select {
	case err := <-done:
		test.That(t, err, test.ShouldEqual, stop)
	case <-time.After(10 * time.Second):
		t.Fatal("iterator did not terminate after the callback failed")
	}
	test.That(t, calls, test.ShouldEqual, 1)
}

func TestBatchIteratorTraversalError(t *testing.T) {
	octree := &failingOctree{
		listOctree: listOctree{nodes: [][]pointcloud.Point{pointsAlongX(0, 1), pointsAlongX(2, 3), pointsAlongX(4)}},
		failNode:   1,
	}
	it := NewBatchIterator([]Octree{&listOctree{nodes: [][]pointcloud.Point{pointsAlongX(9)}}, octree},
		NewPointQuery(AllPoints{}), 1, WithWorkers(1))
	err := it.TryForEachBatch(context.Background(), func(*pointcloud.PointData) error { return nil })
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, errNodeCorrupt), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "traversing node 1 of octree 1")
}

func TestBatchIteratorTraversalPanic(t *testing.T) {
	octree := &failingOctree{
		listOctree: listOctree{nodes: [][]pointcloud.Point{pointsAlongX(0, 1), pointsAlongX(2, 3)}},
		failNode:   0,
		panics:     true,
	}
	it := NewBatchIterator([]Octree{octree}, NewPointQuery(AllPoints{}), 1)
	err := it.TryForEachBatch(context.Background(), func(*pointcloud.PointData) error { return nil })
	test.That(t, err, test.ShouldNotBeNil)
	var panicErr *utils.PanicError
	test.That(t, errors.As(err, &panicErr), test.ShouldBeTrue)
	test.That(t, panicErr.Value, test.ShouldEqual, "corrupt node")
}

func TestBatchIteratorCancelledContext(t *testing.T) {
	var nodes [][]pointcloud.Point
	for i := 0; i < 10; i++ {
		nodes = append(nodes, pointsAlongX(0, 1, 2, 3))
	}
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	it := NewBatchIterator([]Octree{&listOctree{nodes: nodes}}, NewPointQuery(AllPoints{}), 1, WithWorkers(2), WithChannelCapacity(1))
	err := it.TryForEachBatch(ctx, func(*pointcloud.PointData) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			cancel()
		}
		return nil
	})
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, atomic.LoadInt32(&calls), test.ShouldBeLessThan, 40)
}

func TestBatchIteratorDeadline(t *testing.T) {
	var nodes [][]pointcloud.Point
	for i := 0; i < 10; i++ {
		nodes = append(nodes, pointsAlongX(0, 1, 2, 3))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	it := NewBatchIterator([]Octree{&listOctree{nodes: nodes}}, NewPointQuery(AllPoints{}), 1, WithWorkers(2), WithChannelCapacity(1))
	err := it.TryForEachBatch(ctx, func(*pointcloud.PointData) error {
		<-ctx.Done()
		return nil
	})
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrBatchChannelClosed), test.ShouldBeTrue)
}

func TestBatchChannelClosedError(t *testing.T) {
	err := newBatchChannelClosedError(context.Canceled)
	test.That(t, errors.Is(err, ErrBatchChannelClosed), test.ShouldBeTrue)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "batch channel closed: context canceled")
	test.That(t, errors.Is(newBatchChannelClosedError(nil), context.Canceled), test.ShouldBeTrue)
}

func TestBatchIteratorPerNodeOrder(t *testing.T) {
	const numNodes, pointsPerNode, batchSize = 8, 10, 3
	var nodes [][]pointcloud.Point
	for n := 0; n < numNodes; n++ {
		xs := make([]float64, 0, pointsPerNode)
		for j := 0; j < pointsPerNode; j++ {
			xs = append(xs, float64(n*1000+j))
		}
		nodes = append(nodes, pointsAlongX(xs...))
	}
	it := NewBatchIterator([]Octree{&listOctree{nodes: nodes}}, NewPointQuery(AllPoints{}), batchSize, WithWorkers(4))

	perNode := map[int][][]float64{}
	err := it.TryForEachBatch(context.Background(), func(batch *pointcloud.PointData) error {
		test.That(t, batch.Len(), test.ShouldBeGreaterThan, 0)
		node := int(batch.Position[0].X) / 1000
		xs := make([]float64, 0, batch.Len())
		for _, p := range batch.Position {
			test.That(t, int(p.X)/1000, test.ShouldEqual, node)
			xs = append(xs, p.X)
		}
		perNode[node] = append(perNode[node], xs)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(perNode), test.ShouldEqual, numNodes)

	for node, batches := range perNode {
		var all []float64
		for i, xs := range batches {
			if i < len(batches)-1 {
				test.That(t, len(xs), test.ShouldEqual, batchSize)
			} else {
				test.That(t, len(xs), test.ShouldBeLessThanOrEqualTo, batchSize)
			}
			all = append(all, xs...)
		}
		test.That(t, len(all), test.ShouldEqual, pointsPerNode)
		for j, x := range all {
			test.That(t, x, test.ShouldEqual, float64(node*1000+j))
		}
	}
}

func TestBatchIteratorNilLocation(t *testing.T) {
	octree := &listOctree{nodes: [][]pointcloud.Point{pointsAlongX(0)}}
	it := NewBatchIterator([]Octree{octree}, NewPointQuery(nil), 1)
	_, positions := collectBatches(t, it)
	test.That(t, len(positions), test.ShouldEqual, 1)
}
