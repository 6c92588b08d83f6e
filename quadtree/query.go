package quadtree

import (
	"trackmap/geometry"
)

func (idx *Index) queryRectangle(ref int, rectangle geometry.Rectangle, result *[]Id) {
	it := idx.item(ref)
	if !rectangle.Intersects(it.span) {
		return
	}

	if rectangle.ContainsRectangle(it.span) {
		idx.collect(ref, result)
		return
	}

	if it.isLeaf() {
		for _, point := range it.points {
			position, ok := idx.source.Position(point)
			if ok && rectangle.Contains(position) {
				*result = append(*result, Id{Point: point, leaf: ref})
			}
		}
		return
	}

	for _, child := range it.children {
		if child != noItem {
			idx.queryRectangle(child, rectangle, result)
		}
	}
}

// collect adds all points of the subtree without checking their positions.
func (idx *Index) collect(ref int, result *[]Id) {
	it := idx.item(ref)
	for _, point := range it.points {
		*result = append(*result, Id{Point: point, leaf: ref})
	}
	for _, child := range it.children {
		if child != noItem {
			idx.collect(child, result)
		}
	}
}

// All returns Ids of all indexed points.
func (idx *Index) All() []Id {
	var result []Id
	if idx.root != noItem {
		idx.collect(idx.root, &result)
	}
	return result
}
