package geometry

import (
	"testing"
	"trackmap/util"

	"github.com/paulmach/orb"
)

func TestTrapezoid_cornersAreOrderedClockwise(t *testing.T) {
	// Arrange
	a := orb.Point{0, 0}
	b := orb.Point{4, 0}
	c := orb.Point{3, 2}
	d := orb.Point{1, 2}

	// Act
	trapezoid := NewTrapezoid(a, c, b, d)

	// Assert
	corners := trapezoid.Corners()
	util.AssertTrue(t, IsClockwise(corners[:]...))
	util.AssertFalse(t, IsClockwise(a, b, c, d))
	util.AssertEqual(t, NewRectangle(orb.Point{0, 0}, orb.Point{4, 2}), trapezoid.BoundingRectangle())
}

func TestTrapezoid_contains(t *testing.T) {
	// Arrange: counter-clockwise input is reordered
	trapezoid := NewTrapezoid(orb.Point{0, 0}, orb.Point{4, 0}, orb.Point{3, 2}, orb.Point{1, 2})

	// Assert
	util.AssertTrue(t, trapezoid.Contains(orb.Point{2, 1}))
	util.AssertTrue(t, trapezoid.Contains(orb.Point{0.5, 0.5}))
	util.AssertTrue(t, trapezoid.Contains(orb.Point{0, 0}))
	util.AssertFalse(t, trapezoid.Contains(orb.Point{0.2, 1.5}))
	util.AssertFalse(t, trapezoid.Contains(orb.Point{3.9, 1.9}))
	util.AssertFalse(t, trapezoid.Contains(orb.Point{5, 1}))
}

func TestTrapezoid_containsAllEdges(t *testing.T) {
	// Arrange
	trapezoid := NewTrapezoid(orb.Point{0, 0}, orb.Point{0, 2}, orb.Point{2, 2}, orb.Point{2, 0})

	// Act & Assert
	for _, p := range []orb.Point{{0, 1}, {1, 0}, {2, 1}, {1, 2}, {2, 2}, {2, 0}, {0, 2}} {
		util.AssertTrue(t, trapezoid.Contains(p))
		util.AssertTrue(t, trapezoid.BoundingRectangle().Contains(p))
	}
	util.AssertFalse(t, trapezoid.Contains(orb.Point{2.0001, 1}))
	util.AssertFalse(t, trapezoid.Contains(orb.Point{1, 2.0001}))
	util.AssertFalse(t, trapezoid.Contains(orb.Point{-0.0001, 1}))
}

func TestTrapezoid_containsImpliesBoundingRectangle(t *testing.T) {
	trapezoid := NewTrapezoid(orb.Point{1, 0}, orb.Point{6, 1}, orb.Point{5, 5}, orb.Point{0, 3})
	bound := trapezoid.BoundingRectangle()

	for x := -1.0; x < 7; x += 0.25 {
		for y := -1.0; y < 6; y += 0.25 {
			p := orb.Point{x, y}
			if trapezoid.Contains(p) {
				util.AssertTrue(t, bound.Contains(p))
			}
		}
	}
}

func TestTrapezoid_corridor(t *testing.T) {
	// Act
	corridor := NewCorridor(orb.Point{0, 0}, orb.Point{4, 4}, 1)

	// Assert
	util.AssertTrue(t, corridor.Contains(orb.Point{2, 2}))
	util.AssertTrue(t, corridor.Contains(orb.Point{2.5, 2}))
	util.AssertFalse(t, corridor.Contains(orb.Point{4, 0}))
	util.AssertFalse(t, corridor.Contains(orb.Point{0, 3}))
	util.AssertFalse(t, corridor.Contains(orb.Point{5, 5}))
}

func TestTrapezoid_isRightOfEdge(t *testing.T) {
	trapezoid := NewTrapezoid(orb.Point{0, 0}, orb.Point{0, 2}, orb.Point{2, 2}, orb.Point{2, 0})
	inside := orb.Point{1, 1}
	outside := orb.Point{3, 3}

	outsideCount := 0
	for i := 0; i < 4; i++ {
		util.AssertTrue(t, trapezoid.IsRightOfEdge(i, inside))
		if !trapezoid.IsRightOfEdge(i, outside) {
			outsideCount++
		}
	}
	util.AssertEqual(t, 2, outsideCount)
}
