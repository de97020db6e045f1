package octree

import (
	"context"

	"github.com/pkg/errors"
)

// ErrBatchChannelClosed is matched by errors returned once a query's batch channel has shut down.
// Such errors also wrap the context error that shut it down, so errors.Is(err, context.Canceled)
// holds for a query cancelled by its caller.
var ErrBatchChannelClosed = errors.New("batch channel closed")

type batchChannelClosedError struct {
	cause error
}

func (e *batchChannelClosedError) Error() string {
	return ErrBatchChannelClosed.Error() + ": " + e.cause.Error()
}

func (e *batchChannelClosedError) Is(target error) bool {
	return target == ErrBatchChannelClosed
}

func (e *batchChannelClosedError) Unwrap() error {
	return e.cause
}

func newBatchChannelClosedError(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	return errors.WithStack(&batchChannelClosedError{cause: cause})
}

// NewUnknownNodeError is returned when a node id does not belong to the octree.
func NewUnknownNodeError(id NodeID) error {
	return errors.Errorf("node %d not found in octree", id)
}

// NewUnsupportedLocationError is returned when a query's location is not one of the known shapes.
func NewUnsupportedLocationError(location interface{}) error {
	return errors.Errorf("unsupported point location type %T", location)
}

// NewPointOutOfBoundsError is returned when a point cannot be placed inside an octree.
func NewPointOutOfBoundsError() error {
	return errors.New("error point is outside the bounds of this octree")
}

func newNoOctreesError() error {
	return errors.New("batch iterator requires at least one octree")
}

func newNilQueryError() error {
	return errors.New("batch iterator requires a point query")
}

func newTraversalError(w workItem, err error) error {
	return errors.Wrapf(err, "traversing node %d of octree %d", w.node, w.octreeIndex)
}

func newNodeEnumerationError(octreeIndex int, err error) error {
	return errors.Wrapf(err, "enumerating nodes of octree %d", octreeIndex)
}
