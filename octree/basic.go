package octree

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/cloudquery/pointcloud"
	"go.viam.com/cloudquery/spatialmath"
)

const (
	// DefaultMaxPointsPerNode is the number of points a leaf holds before it is split.
	DefaultMaxPointsPerNode = 1024

	// maxDepth stops splitting of leaves whose points cannot be separated, e.g. duplicates.
	maxDepth = 21

	// how many points are visited between two checks of the context
	ctxCheckInterval = 4096

	boundsPadding = 1e-9
)

// BasicOctree is an in-memory octree whose leaves hold up to a fixed number of points. It is
// built with Set and queried through the Octree interface; it must not be mutated while a query
// runs against it.
type BasicOctree struct {
	logger           golog.Logger
	root             *basicOctree
	nodes            map[NodeID]*basicOctree
	nextID           NodeID
	maxPointsPerNode int
	meta             pointcloud.MetaData
}

// basicOctree is one node of a BasicOctree with its center, side length and node data.
type basicOctree struct {
	id         NodeID
	node       basicOctreeNode
	center     r3.Vector
	sideLength float64
	depth      int
	size       int
}

// basicOctreeNode is the type of node along with its children (should they exist) or its points.
type basicOctreeNode struct {
	nodeType NodeType
	children []*basicOctree
	points   []pointcloud.Point
}

// New creates a new empty basic octree with specified center and side.
func New(
	ctx context.Context,
	center r3.Vector,
	sideLength float64,
	logger golog.Logger,
	opts ...BasicOctreeOption,
) (*BasicOctree, error) {
	if sideLength <= 0 || math.IsNaN(sideLength) || math.IsInf(sideLength, 0) {
		return nil, errors.Errorf("invalid side length (%.2f) for octree", sideLength)
	}

	octree := &BasicOctree{
		logger:           logger,
		nodes:            map[NodeID]*basicOctree{},
		maxPointsPerNode: DefaultMaxPointsPerNode,
		meta:             pointcloud.NewMetaData(),
	}
	for _, opt := range opts {
		opt(octree)
	}
	octree.root = octree.newNode(center, sideLength, 0)
	return octree, nil
}

// NewFromPoints creates a basic octree just large enough to hold points and inserts all of them.
func NewFromPoints(
	ctx context.Context,
	points []pointcloud.Point,
	logger golog.Logger,
	opts ...BasicOctreeOption,
) (*BasicOctree, error) {
	_, span := trace.StartSpan(ctx, "octree::NewFromPoints")
	defer span.End()

	meta := pointcloud.MetaDataFromPoints(points)
	side := meta.MaxSideLength()
	// pad so that points on the bounds stay inside despite rounding of the center
	side = side*1.0001 + 1e-6

	octree, err := New(ctx, meta.Center(), side, logger, opts...)
	if err != nil {
		return nil, err
	}
	for i, p := range points {
		if err := octree.Set(p); err != nil {
			return nil, errors.Wrapf(err, "inserting point %d", i)
		}
	}
	logger.Debugw("built octree", "points", octree.Size(), "nodes", len(octree.nodes), "side", side)
	return octree, nil
}

// Size returns the number of points stored in the octree.
func (octree *BasicOctree) Size() int {
	return octree.root.size
}

// MetaData returns the metadata of the points stored in the octree.
func (octree *BasicOctree) MetaData() pointcloud.MetaData {
	return octree.meta
}

// Bounds returns the cube covered by the octree.
func (octree *BasicOctree) Bounds() spatialmath.AABB {
	return octree.root.bounds()
}

// Set adds p to the octree. It iterates through the tree until it finds the leaf containing p;
// a leaf that grows beyond the maximum number of points is split into octants and its points
// are moved into the new children.
func (octree *BasicOctree) Set(p pointcloud.Point) error {
	if !octree.root.checkPointPlacement(p.Position) {
		return NewPointOutOfBoundsError()
	}
	if err := octree.set(octree.root, p); err != nil {
		return err
	}
	octree.meta.Merge(p)
	return nil
}

func (octree *BasicOctree) set(n *basicOctree, p pointcloud.Point) error {
	for n.node.nodeType == InternalNode {
		n.size++
		n = n.node.children[n.octant(p.Position)]
	}
	n.size++
	n.node.nodeType = LeafNodeFilled
	n.node.points = append(n.node.points, p)

	if len(n.node.points) > octree.maxPointsPerNode && n.depth < maxDepth {
		return octree.splitIntoOctants(n)
	}
	return nil
}

// splitIntoOctants turns a filled leaf into an internal node with eight children and moves its
// points down. The node keeps its id.
func (octree *BasicOctree) splitIntoOctants(n *basicOctree) error {
	switch n.node.nodeType {
	case InternalNode:
		return errors.New("error attempted to split internal node")
	case LeafNodeEmpty:
		return errors.New("error attempted to split empty leaf node")
	case LeafNodeFilled:
	}

	children := make([]*basicOctree, 0, 8)
	newSideLength := n.sideLength / 2
	for _, i := range []float64{-1.0, 1.0} {
		for _, j := range []float64{-1.0, 1.0} {
			for _, k := range []float64{-1.0, 1.0} {
				centerOffset := r3.Vector{
					X: i * newSideLength / 2.,
					Y: j * newSideLength / 2.,
					Z: k * newSideLength / 2.,
				}
				children = append(children, octree.newNode(n.center.Add(centerOffset), newSideLength, n.depth+1))
			}
		}
	}

	points := n.node.points
	n.node = basicOctreeNode{nodeType: InternalNode, children: children}
	n.size = 0
	for _, p := range points {
		// recursing into set splits any child that ends up over capacity
		if err := octree.set(n, p); err != nil {
			return err
		}
	}
	return nil
}

func (octree *BasicOctree) newNode(center r3.Vector, sideLength float64, depth int) *basicOctree {
	n := &basicOctree{
		id:         octree.nextID,
		node:       basicOctreeNode{nodeType: LeafNodeEmpty},
		center:     center,
		sideLength: sideLength,
		depth:      depth,
	}
	octree.nodes[n.id] = n
	octree.nextID++
	return n
}

// At returns the first point stored at exactly the given position.
func (octree *BasicOctree) At(x, y, z float64) (pointcloud.Point, bool) {
	v := r3.Vector{X: x, Y: y, Z: z}
	n := octree.root
	if !n.checkPointPlacement(v) {
		return pointcloud.Point{}, false
	}
	for n.node.nodeType == InternalNode {
		n = n.node.children[n.octant(v)]
	}
	for _, p := range n.node.points {
		if p.Position.ApproxEqual(v) {
			return p, true
		}
	}
	return pointcloud.Point{}, false
}

// NodesInLocation reports every filled leaf whose cube is not entirely outside the query region.
// Subtrees outside of the region are never visited.
func (octree *BasicOctree) NodesInLocation(ctx context.Context, query *PointQuery, fn func(id NodeID) bool) error {
	culling, err := query.Culling()
	if err != nil {
		return err
	}
	var walk func(n *basicOctree) bool
	walk = func(n *basicOctree) bool {
		if n.size == 0 {
			return true
		}
		if culling.Intersects(n.cullingBounds()) == spatialmath.Outside {
			return true
		}
		if n.node.nodeType == LeafNodeFilled {
			return fn(n.id)
		}
		for _, child := range n.node.children {
			if !walk(child) {
				return false
			}
		}
		return ctx.Err() == nil
	}
	walk(octree.root)
	return ctx.Err()
}

// PointsInNode calls fn for each point below the node with the given id that the query's region
// contains. When the node lies entirely inside the region its points are not tested one by one.
func (octree *BasicOctree) PointsInNode(
	ctx context.Context,
	query *PointQuery,
	id NodeID,
	fn func(p pointcloud.Point) bool,
) error {
	n, ok := octree.nodes[id]
	if !ok {
		return NewUnknownNodeError(id)
	}
	culling, err := query.Culling()
	if err != nil {
		return err
	}

	visited := 0
	var walk func(n *basicOctree) (bool, error)
	walk = func(n *basicOctree) (bool, error) {
		if n.size == 0 {
			return true, nil
		}
		rel := culling.Intersects(n.cullingBounds())
		if rel == spatialmath.Outside {
			return true, nil
		}
		if n.node.nodeType == InternalNode {
			for _, child := range n.node.children {
				if cont, err := walk(child); !cont || err != nil {
					return cont, err
				}
			}
			return true, nil
		}
		for _, p := range n.node.points {
			visited++
			if visited%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return false, err
				}
			}
			if rel != spatialmath.Inside && !culling.Contains(p.Position) {
				continue
			}
			if !fn(p) {
				return false, nil
			}
		}
		return true, nil
	}
	_, err = walk(n)
	return err
}

// octant returns the index of the child of n containing v.
func (n *basicOctree) octant(v r3.Vector) int {
	idx := 0
	if v.X >= n.center.X {
		idx |= 4
	}
	if v.Y >= n.center.Y {
		idx |= 2
	}
	if v.Z >= n.center.Z {
		idx |= 1
	}
	return idx
}

// checkPointPlacement checks if the given point is within the bounds of the node.
func (n *basicOctree) checkPointPlacement(p r3.Vector) bool {
	half := n.sideLength / 2
	return math.Abs(p.X-n.center.X) <= half &&
		math.Abs(p.Y-n.center.Y) <= half &&
		math.Abs(p.Z-n.center.Z) <= half
}

func (n *basicOctree) bounds() spatialmath.AABB {
	return spatialmath.NewCube(n.center, n.sideLength)
}

// cullingBounds pads bounds so that points on a split plane, which may round to just outside of
// their leaf, are never culled.
func (n *basicOctree) cullingBounds() spatialmath.AABB {
	return spatialmath.NewCube(n.center, n.sideLength*(1+boundsPadding))
}
