package octree

import (
	"github.com/edaniels/golog"
)

// DefaultChannelCapacity is the number of undelivered batches a query buffers before its workers
// block.
const DefaultChannelCapacity = 100

type iteratorOptions struct {
	logger          golog.Logger
	workers         int
	channelCapacity int
}

// IteratorOption configures a BatchIterator.
type IteratorOption func(*iteratorOptions)

// WithLogger sets the logger of the iterator.
func WithLogger(logger golog.Logger) IteratorOption {
	return func(o *iteratorOptions) {
		o.logger = logger
	}
}

// WithWorkers bounds the number of goroutines traversing nodes at once. Values <= 0 select
// utils.ParallelFactor.
func WithWorkers(n int) IteratorOption {
	return func(o *iteratorOptions) {
		o.workers = n
	}
}

// WithChannelCapacity sets how many undelivered batches may be queued. Values <= 0 select
// DefaultChannelCapacity.
func WithChannelCapacity(n int) IteratorOption {
	return func(o *iteratorOptions) {
		o.channelCapacity = n
	}
}

// WithIteratorConfig applies the non-zero fields of cfg.
func WithIteratorConfig(cfg IteratorConfig) IteratorOption {
	return func(o *iteratorOptions) {
		if cfg.Workers > 0 {
			o.workers = cfg.Workers
		}
		if cfg.ChannelCapacity > 0 {
			o.channelCapacity = cfg.ChannelCapacity
		}
	}
}

// BasicOctreeOption configures a BasicOctree.
type BasicOctreeOption func(*BasicOctree)

// WithMaxPointsPerNode sets how many points a leaf holds before it is split.
func WithMaxPointsPerNode(n int) BasicOctreeOption {
	return func(o *BasicOctree) {
		if n > 0 {
			o.maxPointsPerNode = n
		}
	}
}
