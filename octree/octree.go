// Package octree executes spatial queries against octrees: it turns a region into a culling
// predicate, fans traversal of the matching nodes out over a bounded pool of workers, and
// delivers the points as fixed size columnar batches to a single consumer.
package octree

import (
	"context"

	"go.viam.com/cloudquery/pointcloud"
)

// Each node in the basic octree is either an internal node which links to other nodes, an empty
// leaf, or a filled leaf holding points.
const (
	InternalNode = NodeType(iota)
	LeafNodeEmpty
	LeafNodeFilled
)

// NodeType represents the possible types of nodes in an octree.
type NodeType uint8

// NodeID identifies a node within the octree that produced it. It carries no meaning outside of
// that octree.
type NodeID uint64

// Octree is the read-only traversal capability a query runs against. Implementations must allow
// concurrent calls to both methods and must not be mutated while a query is running.
type Octree interface {
	// NodesInLocation calls fn for every node whose volume may contain points matching the query.
	// Reporting extra nodes is allowed; omitting a node with matching points is not. Enumeration
	// stops early when fn returns false.
	NodesInLocation(ctx context.Context, query *PointQuery, fn func(id NodeID) bool) error

	// PointsInNode calls fn for every point of the node that the query's culling accepts, in an
	// order that is stable for a given node and query. Traversal stops early when fn returns false.
	PointsInNode(ctx context.Context, query *PointQuery, id NodeID, fn func(p pointcloud.Point) bool) error
}
