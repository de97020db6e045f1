package octree

import (
	"context"
	"time"

	"go.opencensus.io/trace"
	"go.uber.org/zap"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/cloudquery/pointcloud"
	"go.viam.com/cloudquery/spatialmath"
	"go.viam.com/cloudquery/utils"
)

// workItem is one node to traverse, tagged with the octree it belongs to.
type workItem struct {
	octreeIndex int
	octree      Octree
	node        NodeID
}

// BatchIterator runs a PointQuery against one or more octrees and delivers the matching points in
// batches.
type BatchIterator struct {
	octrees   []Octree
	query     *PointQuery
	batchSize int
	opts      iteratorOptions
}

// NewBatchIterator returns an iterator over the points of octrees matched by query, grouped in
// batches of at most batchSize points. A batchSize <= 0 selects NumPointsPerBatch.
func NewBatchIterator(octrees []Octree, query *PointQuery, batchSize int, opts ...IteratorOption) *BatchIterator {
	if batchSize <= 0 {
		batchSize = NumPointsPerBatch
	}
	o := iteratorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop().Sugar()
	}
	if o.workers <= 0 {
		o.workers = utils.ParallelFactor
	}
	if o.channelCapacity <= 0 {
		o.channelCapacity = DefaultChannelCapacity
	}
	return &BatchIterator{
		octrees:   octrees,
		query:     query,
		batchSize: batchSize,
		opts:      o,
	}
}

// TryForEachBatch calls fn with every batch of matching points. fn is only ever called from the
// calling goroutine, one batch at a time, in the order batches arrive; batches of one node keep
// their order while batches of different nodes interleave. It returns nil once all points have
// been delivered, or the first error from node enumeration, traversal or fn. After fn fails it
// is not called again and the remaining workers are cancelled before TryForEachBatch returns.
// When ctx ends first the returned error matches both ErrBatchChannelClosed and ctx.Err().
func (it *BatchIterator) TryForEachBatch(ctx context.Context, fn func(*pointcloud.PointData) error) error {
	ctx, span := trace.StartSpan(ctx, "octree::BatchIterator::TryForEachBatch")
	defer span.End()

	if len(it.octrees) == 0 {
		return newNoOctreesError()
	}
	if it.query == nil {
		return newNilQueryError()
	}
	start := time.Now()

	work, err := it.workItems(ctx)
	if err != nil {
		return err
	}
	span.AddAttributes(trace.Int64Attribute("work_items", int64(len(work))))
	if len(work) == 0 {
		it.opts.logger.Debugw("no nodes match query", "octrees", len(it.octrees))
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := min(it.opts.workers, len(work))
	it.opts.logger.Debugw("starting point query",
		"octrees", len(it.octrees), "nodes", len(work), "workers", numWorkers, "batch_size", it.batchSize)

	batches := make(chan *pointcloud.PointData, it.opts.channelCapacity)
	localFromGlobal := it.query.LocalFromGlobal()
	g, gctx := errgroup.WithContext(ctx)

	queue := make(chan workItem)
	g.Go(func() error {
		defer close(queue)
		for _, w := range work {
			select {
			case queue <- w:
			case <-gctx.Done():
				return newBatchChannelClosedError(gctx.Err())
			}
		}
		return nil
	})
	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			for w := range queue {
				if err := gctx.Err(); err != nil {
					return newBatchChannelClosedError(err)
				}
				if err := it.traverse(gctx, w, localFromGlobal, batches); err != nil {
					return err
				}
			}
			return nil
		})
	}

	workersDone := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		workersDone <- g.Wait()
		close(batches)
	})

	var numBatches, numPoints int
	var callbackErr error
	for batch := range batches {
		if callbackErr != nil {
			// discard until every worker has observed the cancellation
			continue
		}
		if err := fn(batch); err != nil {
			callbackErr = err
			cancel()
			continue
		}
		numBatches++
		numPoints += batch.Len()
	}
	workerErr := <-workersDone

	it.opts.logger.Debugw("finished point query",
		"batches", numBatches, "points", numPoints, "duration", time.Since(start))
	span.AddAttributes(
		trace.Int64Attribute("batches", int64(numBatches)),
		trace.Int64Attribute("points", int64(numPoints)),
	)
	if callbackErr != nil {
		return callbackErr
	}
	return workerErr
}

// workItems flattens the matching nodes of every octree into one list.
func (it *BatchIterator) workItems(ctx context.Context) ([]workItem, error) {
	var work []workItem
	for i, o := range it.octrees {
		err := o.NodesInLocation(ctx, it.query, func(id NodeID) bool {
			work = append(work, workItem{octreeIndex: i, octree: o, node: id})
			return true
		})
		if err != nil {
			return nil, newNodeEnumerationError(i, err)
		}
	}
	return work, nil
}

// traverse streams one node's points through a private PointStream onto batches.
func (it *BatchIterator) traverse(
	ctx context.Context,
	w workItem,
	localFromGlobal spatialmath.Pose,
	batches chan<- *pointcloud.PointData,
) (err error) {
	defer utils.RecoverToError(&err, "traversing node")

	send := func(batch *pointcloud.PointData) error {
		select {
		case batches <- batch:
			return nil
		case <-ctx.Done():
			return newBatchChannelClosedError(ctx.Err())
		}
	}
	stream := NewPointStream(it.batchSize, localFromGlobal, send)

	var pushErr error
	if err := w.octree.PointsInNode(ctx, it.query, w.node, func(p pointcloud.Point) bool {
		pushErr = stream.PushAndMaybeFlush(p)
		return pushErr == nil
	}); err != nil {
		return newTraversalError(w, err)
	}
	if pushErr != nil {
		return pushErr
	}
	return stream.Flush()
}
