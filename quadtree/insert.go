package quadtree

import (
	"trackmap/geometry"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
)

func (idx *Index) insert(point int, position orb.Point) {
	if idx.root == noItem {
		idx.root = idx.newLeaf(idx.span, 0, noItem, geometry.NorthEast, point)
		return
	}
	idx.insertBelow(idx.root, point, position)
}

// insertBelow descends from the given item and adds the point to the first free slot or leaf on its way.
func (idx *Index) insertBelow(ref int, point int, position orb.Point) {
	for {
		it := idx.item(ref)

		if it.isLeaf() {
			it.points = append(it.points, point)
			idx.owners[point] = ref
			idx.split(ref)
			return
		}

		if !it.span.Contains(position) {
			// The item got a smaller span than its slot when a chain was collapsed above it.
			idx.separate(ref, point, position)
			return
		}

		quadrant := it.span.Quadrant(position)
		child := it.children[quadrant]
		if child == noItem {
			it.children[quadrant] = idx.newLeaf(it.span.QuadrantRectangle(quadrant), it.depth+1, ref, quadrant, point)
			return
		}

		ref = child
	}
}

// split subdivides a leaf with several points until they are distributed to different leaves or the maximum depth is
// reached. The leaf item itself becomes the internal item of the cell separating the points.
func (idx *Index) split(ref int) {
	leaf := idx.item(ref)
	if len(leaf.points) < 2 {
		return
	}

	positions := make([]orb.Point, len(leaf.points))
	for i, point := range leaf.points {
		position, ok := idx.source.Position(point)
		if !ok {
			sigolo.Debugf("Point %d has no position, keep all %d points of quadtree leaf together", point, len(leaf.points))
			return
		}
		positions[i] = position
	}

	cell := leaf.span
	depth := leaf.depth
	for depth < idx.maxDepth {
		quadrant, same := sameQuadrant(cell, positions)
		if !same {
			break
		}
		cell = cell.QuadrantRectangle(quadrant)
		depth++
	}

	if depth >= idx.maxDepth {
		// All points share a cell of the maximum depth
		return
	}

	sigolo.Tracef("Split quadtree leaf %s with %d points at %s (depth %d)", leaf.span, len(leaf.points), cell, depth)

	groups := [4][]int{}
	for i, point := range leaf.points {
		quadrant := cell.Quadrant(positions[i])
		groups[quadrant] = append(groups[quadrant], point)
	}

	leaf.points = nil
	leaf.span = cell
	leaf.depth = depth

	for _, quadrant := range geometry.Quadrants {
		if len(groups[quadrant]) == 0 {
			continue
		}
		child := idx.newLeaf(cell.QuadrantRectangle(quadrant), depth+1, ref, quadrant, groups[quadrant]...)
		idx.item(ref).children[quadrant] = child
		idx.split(child)
	}
}

// separate creates a new internal item in the slot of the given item whose span is the smallest cell holding both, the
// span of the existing item and the new point.
func (idx *Index) separate(ref int, point int, position orb.Point) {
	existing := idx.item(ref)
	parent := existing.parent
	slot := existing.slot
	existingCenter := existing.span.Center()

	cell, depth := idx.slotCell(parent, slot)
	for depth < existing.depth {
		existingQuadrant := cell.Quadrant(existingCenter)
		if existingQuadrant != cell.Quadrant(position) {
			break
		}
		cell = cell.QuadrantRectangle(existingQuadrant)
		depth++
	}

	sigolo.Tracef("Separate quadtree item %s from point %d at %s (depth %d)", existing.span, point, cell, depth)

	separator := idx.items.Insert(newItem(cell, depth, parent, slot))
	idx.link(separator, parent, slot)

	idx.link(ref, separator, cell.Quadrant(existingCenter))

	quadrant := cell.Quadrant(position)
	idx.item(separator).children[quadrant] = idx.newLeaf(cell.QuadrantRectangle(quadrant), depth+1, separator, quadrant, point)
}

func sameQuadrant(cell geometry.Rectangle, positions []orb.Point) (geometry.Quadrant, bool) {
	quadrant := cell.Quadrant(positions[0])
	for _, position := range positions[1:] {
		if cell.Quadrant(position) != quadrant {
			return quadrant, false
		}
	}
	return quadrant, true
}
