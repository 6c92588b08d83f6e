package quadtree

import (
	"trackmap/container"
	"trackmap/geometry"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
)

// PositionSource provides the current position of an indexed point.
type PositionSource interface {
	Position(point int) (orb.Point, bool)
}

// Index is a dynamic point quadtree within a fixed span rectangle. Items are subdivided until the points of a leaf are
// separated or the maximum depth is reached, in which case the leaf holds all colliding points.
//
// The index is not safe for concurrent use.
type Index struct {
	span     geometry.Rectangle
	maxDepth int
	root     int
	items    *container.StableIndex[*item]
	owners   map[int]int // Point to the arena handle of its leaf.
	source   PositionSource
}

func NewIndex(span geometry.Rectangle, maxDepth int, source PositionSource) *Index {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Index{
		span:     span,
		maxDepth: maxDepth,
		root:     noItem,
		items:    container.NewStableIndex[*item](),
		owners:   map[int]int{},
		source:   source,
	}
}

func (idx *Index) Span() geometry.Rectangle { return idx.span }

func (idx *Index) MaxDepth() int { return idx.maxDepth }

// Len returns the number of indexed points.
func (idx *Index) Len() int { return len(idx.owners) }

func (idx *Index) IsEmpty() bool { return idx.root == noItem }

// Clear removes all points and items.
func (idx *Index) Clear() {
	idx.root = noItem
	idx.items.Clear()
	idx.owners = map[int]int{}
}

// Find returns a fresh Id for the given point.
func (idx *Index) Find(point int) (Id, bool) {
	leaf, ok := idx.owners[point]
	if !ok {
		return Id{}, false
	}
	return Id{Point: point, leaf: leaf}, true
}

// AddPoint inserts the point at the position reported by the position source. It returns false if the point is already
// indexed, unknown to the source or outside the span of the index.
func (idx *Index) AddPoint(point int) bool {
	if _, ok := idx.owners[point]; ok {
		return false
	}

	position, ok := idx.source.Position(point)
	if !ok {
		sigolo.Debugf("Point %d has no position and can't be added to the quadtree", point)
		return false
	}
	if !idx.span.Contains(position) {
		sigolo.Debugf("Point %d at %v is outside the quadtree span %s", point, position, idx.span)
		return false
	}

	idx.insert(point, position)
	return true
}

// RemovePoint removes the point of the given Id and repairs the tree. It returns false for stale Ids.
func (idx *Index) RemovePoint(id Id) bool {
	if !idx.isValid(id) {
		sigolo.Debugf("Stale quadtree Id for point %d", id.Point)
		return false
	}

	idx.removeFromLeaf(id.Point, id.leaf)
	return true
}

// Remove is like RemovePoint but looks up the owning leaf of the point itself.
func (idx *Index) Remove(point int) bool {
	id, ok := idx.Find(point)
	if !ok {
		return false
	}
	return idx.RemovePoint(id)
}

// MovePoint relocates the point to the new position. The position source has to report the new position already. When
// the new position stays within the span of the owning leaf, nothing changes. Otherwise, the point is removed and
// inserted again. It returns false for stale Ids and for new positions outside the span of the index.
func (idx *Index) MovePoint(id Id, newPosition orb.Point) bool {
	if !idx.isValid(id) {
		sigolo.Debugf("Stale quadtree Id for point %d", id.Point)
		return false
	}
	if !idx.span.Contains(newPosition) {
		sigolo.Debugf("New position %v of point %d is outside the quadtree span %s", newPosition, id.Point, idx.span)
		return false
	}

	leaf, _ := idx.items.Get(id.leaf)
	if leaf.span.Contains(newPosition) {
		return true
	}

	idx.removeFromLeaf(id.Point, id.leaf)
	idx.insert(id.Point, newPosition)
	return true
}

// QueryRectangle returns all points within the rectangle.
func (idx *Index) QueryRectangle(rectangle geometry.Rectangle) []Id {
	var result []Id
	if idx.root != noItem {
		idx.queryRectangle(idx.root, rectangle, &result)
	}
	return result
}

// QueryTrapezoid returns all points within the trapezoid. Candidates are collected via its bounding rectangle and then
// filtered by the edge tests of the trapezoid.
func (idx *Index) QueryTrapezoid(trapezoid geometry.Trapezoid) []Id {
	candidates := idx.QueryRectangle(trapezoid.BoundingRectangle())

	result := candidates[:0]
	for _, candidate := range candidates {
		position, ok := idx.source.Position(candidate.Point)
		if ok && trapezoid.Contains(position) {
			result = append(result, candidate)
		}
	}
	return result
}

func (idx *Index) isValid(id Id) bool {
	leaf, ok := idx.owners[id.Point]
	if !ok || leaf != id.leaf {
		return false
	}
	it, ok := idx.items.Get(leaf)
	return ok && it.isLeaf()
}

func (idx *Index) item(ref int) *item {
	it, ok := idx.items.Get(ref)
	if !ok {
		panic("quadtree item handle is not in use")
	}
	return it
}

func (idx *Index) newLeaf(span geometry.Rectangle, depth int, parent int, slot geometry.Quadrant, points ...int) int {
	leaf := newItem(span, depth, parent, slot)
	leaf.points = append([]int{}, points...)
	ref := idx.items.Insert(leaf)
	for _, point := range points {
		idx.owners[point] = ref
	}
	return ref
}

// link puts the item into the given slot of the parent or makes it the root when there's no parent.
func (idx *Index) link(ref int, parent int, slot geometry.Quadrant) {
	it := idx.item(ref)
	it.parent = parent
	it.slot = slot
	if parent == noItem {
		idx.root = ref
		return
	}
	idx.item(parent).children[slot] = ref
}

// slotCell returns the rectangle and depth of the slot the item occupies.
func (idx *Index) slotCell(parent int, slot geometry.Quadrant) (geometry.Rectangle, int) {
	if parent == noItem {
		return idx.span, 0
	}
	p := idx.item(parent)
	return p.span.QuadrantRectangle(slot), p.depth + 1
}
