package tile

import (
	"sort"
	"sync"
	"trackmap/common"
	"trackmap/container"
	"trackmap/geometry"
	"trackmap/quadtree"
	"trackmap/util"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

var (
	ErrOutsideTile = errors.New("Position is outside of the tile")
	ErrUnknownNode = errors.New("Node does not exist")
)

// DefaultMaxDepth limits the quadtree of a tile. With 0.1° tiles the smallest cells are less than 20cm wide.
const DefaultMaxDepth = 16

const (
	tileBaseSize = 128
	nodeSize     = 48
	indexSize    = 64 // Per node, for the quadtree items and owner map.
)

// Tile holds the nodes of one grid cell. Node IDs are stable handles, removed IDs are reused by later nodes. The
// quadtree over the nodes is built on the first spatial query and kept up to date afterward, it's never persisted.
//
// A tile is safe for concurrent use.
type Tile struct {
	mutex    sync.Mutex
	id       uint64
	cell     common.CellIndex
	bound    geometry.Rectangle
	maxDepth int
	nodes    *container.StableIndex[Node]
	index    *quadtree.Index
}

func New(id uint64, cell common.CellIndex, bound geometry.Rectangle) *Tile {
	return &Tile{
		id:       id,
		cell:     cell,
		bound:    bound,
		maxDepth: DefaultMaxDepth,
		nodes:    container.NewStableIndex[Node](),
	}
}

// NewForCell creates an empty tile for the grid cell.
func NewForCell(grid common.Grid, cell common.CellIndex) *Tile {
	return New(grid.TileID(cell), cell, grid.Bound(cell))
}

func (t *Tile) ID() uint64 { return t.id }

func (t *Tile) Cell() common.CellIndex { return t.cell }

func (t *Tile) Bound() geometry.Rectangle { return t.bound }

func (t *Tile) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.nodes.Len()
}

// SizeEstimate returns the approximate memory usage in bytes.
func (t *Tile) SizeEstimate() int64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return int64(tileBaseSize + t.nodes.Cap()*nodeSize + t.nodes.Len()*indexSize)
}

func (t *Tile) Node(id int) (Node, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.nodes.Get(id)
}

// Each calls f for all nodes in ascending ID order until f returns false.
func (t *Tile) Each(f func(id int, node Node) bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.nodes.Each(f)
}

// AddNode stores the node and returns its ID.
func (t *Tile) AddNode(node Node) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.bound.Contains(node.Position) {
		return -1, errors.Wrapf(ErrOutsideTile, "Unable to add node at %v to tile %d", node.Position, t.id)
	}

	node.Heading = NormalizeHeading(node.Heading)
	id := t.nodes.Insert(node)
	if t.index != nil && !t.index.AddPoint(id) {
		util.LogBug("Node %d of tile %d could not be added to the quadtree", id, t.id)
	}
	return id, nil
}

func (t *Tile) RemoveNode(id int) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.nodes.Has(id) {
		return false
	}
	if t.index != nil {
		t.index.Remove(id)
	}
	t.nodes.Remove(id)
	return true
}

// MoveNode sets a new position of the node.
func (t *Tile) MoveNode(id int, position orb.Point) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	node, ok := t.nodes.Get(id)
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "Unable to move node %d of tile %d", id, t.id)
	}
	node.Position = position
	return t.replace(id, node)
}

// AverageFix merges a GPS fix into the node: position and heading become the average of all observations.
func (t *Tile) AverageFix(id int, position orb.Point, heading float64) (Node, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	node, ok := t.nodes.Get(id)
	if !ok {
		return Node{}, errors.Wrapf(ErrUnknownNode, "Unable to average fix into node %d of tile %d", id, t.id)
	}

	averaged := node.averaged(position, heading)
	err := t.replace(id, averaged)
	if err != nil {
		return node, err
	}
	return averaged, nil
}

func (t *Tile) replace(id int, node Node) error {
	if !t.bound.Contains(node.Position) {
		return errors.Wrapf(ErrOutsideTile, "Unable to move node %d to %v", id, node.Position)
	}

	err := t.nodes.Set(id, node)
	if err != nil {
		return err
	}

	if t.index != nil {
		quadtreeId, ok := t.index.Find(id)
		if !ok || !t.index.MovePoint(quadtreeId, node.Position) {
			util.LogBug("Node %d of tile %d could not be moved within the quadtree", id, t.id)
		}
	}
	return nil
}

// NodesInRectangle returns the IDs of all nodes within the rectangle in ascending order.
func (t *Tile) NodesInRectangle(rectangle geometry.Rectangle) []int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return sortedPoints(t.quadtree().QueryRectangle(rectangle))
}

// NodesInTrapezoid returns the IDs of all nodes within the trapezoid in ascending order.
func (t *Tile) NodesInTrapezoid(trapezoid geometry.Trapezoid) []int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return sortedPoints(t.quadtree().QueryTrapezoid(trapezoid))
}

// NodesInCorridor returns the IDs of all nodes within halfWidth around the line segment.
func (t *Tile) NodesInCorridor(from orb.Point, to orb.Point, halfWidth float64) []int {
	return t.NodesInTrapezoid(geometry.NewCorridor(from, to, halfWidth))
}

// NodesNear returns the IDs of all nodes within the radius whose heading differs at most by the tolerance from the
// given heading. A tolerance of 180 or more accepts all headings. Distances are planar in degrees. The closest node
// comes first.
func (t *Tile) NodesNear(position orb.Point, radius float64, heading float64, tolerance float64) []int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	candidates := t.quadtree().QueryRectangle(geometry.RectangleAround(position, radius))

	var ids []int
	distances := map[int]float64{}
	for _, candidate := range candidates {
		node, _ := t.nodes.Get(candidate.Point)
		distance := planar.Distance(position, node.Position)
		if distance > radius {
			continue
		}
		if tolerance < 180 && HeadingDifference(heading, node.Heading) > tolerance {
			continue
		}
		ids = append(ids, candidate.Point)
		distances[candidate.Point] = distance
	}

	sort.Slice(ids, func(i, j int) bool {
		if distances[ids[i]] == distances[ids[j]] {
			return ids[i] < ids[j]
		}
		return distances[ids[i]] < distances[ids[j]]
	})
	return ids
}

// quadtree returns the index and builds it first if needed. Must be called with the lock held.
func (t *Tile) quadtree() *quadtree.Index {
	if t.index != nil {
		return t.index
	}

	t.index = quadtree.NewIndex(t.bound, t.maxDepth, nodePositions{t.nodes})
	t.nodes.Each(func(id int, _ Node) bool {
		if !t.index.AddPoint(id) {
			util.LogBug("Node %d of tile %d could not be added to the quadtree", id, t.id)
		}
		return true
	})

	sigolo.Tracef("Built quadtree of tile %d with %d nodes", t.id, t.index.Len())
	return t.index
}

// nodePositions provides the node positions to the quadtree.
type nodePositions struct {
	nodes *container.StableIndex[Node]
}

func (n nodePositions) Position(point int) (orb.Point, bool) {
	node, ok := n.nodes.Get(point)
	return node.Position, ok
}

func sortedPoints(ids []quadtree.Id) []int {
	points := make([]int, len(ids))
	for i, id := range ids {
		points[i] = id.Point
	}
	sort.Ints(points)
	return points
}
