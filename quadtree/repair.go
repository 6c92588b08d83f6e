package quadtree

import (
	"github.com/hauke96/sigolo/v2"
)

func (idx *Index) removeFromLeaf(point int, ref int) {
	leaf := idx.item(ref)
	leaf.removePoint(point)
	delete(idx.owners, point)

	if len(leaf.points) == 0 {
		idx.repair(ref)
	}
}

// repair deletes the empty leaf and collapses the chain of single-child items that might remain above it. The surviving
// item is linked directly under the first ancestor with at least two children or becomes the root.
func (idx *Index) repair(emptyLeaf int) {
	leaf := idx.item(emptyLeaf)
	parent := leaf.parent
	idx.items.Remove(emptyLeaf)

	if parent == noItem {
		idx.root = noItem
		return
	}

	parentItem := idx.item(parent)
	parentItem.children[leaf.slot] = noItem

	if parentItem.isLeaf() {
		// Parent lost its last child, so it's empty as well
		idx.repair(parent)
		return
	}

	survivor, ok := parentItem.onlyChild()
	if !ok {
		return
	}

	top := parent
	for {
		ancestor := idx.item(top).parent
		if ancestor == noItem || idx.item(ancestor).childCount() != 1 {
			break
		}
		top = ancestor
	}

	topItem := idx.item(top)
	anchor := topItem.parent
	slot := topItem.slot

	// Free the chain from the parent up to the top item
	for ref := parent; ; {
		next := idx.item(ref).parent
		idx.items.Remove(ref)
		if ref == top {
			break
		}
		ref = next
	}

	idx.link(survivor, anchor, slot)

	survivorItem := idx.item(survivor)
	sigolo.Tracef("Collapsed quadtree chain, item %s moved to depth %d", survivorItem.span, survivorItem.depth)

	if survivorItem.isLeaf() {
		// Leaves span their whole slot, internal items keep the cell separating their children.
		survivorItem.span, survivorItem.depth = idx.slotCell(anchor, slot)
		if len(survivorItem.points) > 1 {
			idx.split(survivor)
		}
	}
}
