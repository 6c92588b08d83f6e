package quadtree

import (
	"trackmap/geometry"
)

const noItem = -1

// item is a node of the tree. Items are stored in the arena of the index and reference each other by arena handles.
// An item is either a leaf (points, no children) or internal (children, no points).
type item struct {
	span     geometry.Rectangle
	depth    int               // Subdivision level of the span, the span of the whole index has depth 0.
	parent   int               // Arena handle of the parent or noItem for the root.
	slot     geometry.Quadrant // Child slot within the parent.
	children [4]int
	points   []int
}

func newItem(span geometry.Rectangle, depth int, parent int, slot geometry.Quadrant) *item {
	return &item{
		span:     span,
		depth:    depth,
		parent:   parent,
		slot:     slot,
		children: [4]int{noItem, noItem, noItem, noItem},
	}
}

func (i *item) isLeaf() bool {
	return i.childCount() == 0
}

func (i *item) childCount() int {
	count := 0
	for _, child := range i.children {
		if child != noItem {
			count++
		}
	}
	return count
}

// onlyChild returns the single child of this item and false if there are zero or more than one children.
func (i *item) onlyChild() (int, bool) {
	if i.childCount() != 1 {
		return noItem, false
	}
	for _, child := range i.children {
		if child != noItem {
			return child, true
		}
	}
	return noItem, false
}

func (i *item) removePoint(point int) bool {
	for k, p := range i.points {
		if p == point {
			i.points = append(i.points[:k], i.points[k+1:]...)
			return true
		}
	}
	return false
}

// Id is a query result. Besides the point it references the leaf owning the point, which makes removing and moving the
// point cheap. An Id becomes stale as soon as its leaf is split or removed, i.e. after any modification of the tree
// affecting this point. Stale Ids are rejected by the index, fetch a fresh one via Find or a query.
type Id struct {
	Point int
	leaf  int
}
