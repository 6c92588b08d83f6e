package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Trapezoid is an arbitrary four-corner region including its edges. The corners are stored in clockwise order, the
// bounding rectangle is computed once on construction.
type Trapezoid struct {
	corners [4]orb.Point
	bound   Rectangle
}

// NewTrapezoid creates a trapezoid from four corners given in any order. The corners are sorted clockwise around their
// centroid since the edge tests in Contains only work for clockwise corners.
func NewTrapezoid(a orb.Point, b orb.Point, c orb.Point, d orb.Point) Trapezoid {
	corners := [4]orb.Point{a, b, c, d}

	centroid := orb.Point{
		(a.X() + b.X() + c.X() + d.X()) / 4,
		(a.Y() + b.Y() + c.Y() + d.Y()) / 4,
	}
	sort.SliceStable(corners[:], func(i, j int) bool {
		angleI := math.Atan2(corners[i].Y()-centroid.Y(), corners[i].X()-centroid.X())
		angleJ := math.Atan2(corners[j].Y()-centroid.Y(), corners[j].X()-centroid.X())
		// Descending angle is clockwise
		return angleI > angleJ
	})

	minPoint := corners[0]
	maxPoint := corners[0]
	for _, corner := range corners[1:] {
		minPoint = orb.Point{math.Min(minPoint.X(), corner.X()), math.Min(minPoint.Y(), corner.Y())}
		maxPoint = orb.Point{math.Max(maxPoint.X(), corner.X()), math.Max(maxPoint.Y(), corner.Y())}
	}

	// Rectangles are half-open, the upper edges are moved outwards to keep the east and north corners inside
	maxPoint = orb.Point{math.Nextafter(maxPoint.X(), math.Inf(1)), math.Nextafter(maxPoint.Y(), math.Inf(1))}

	return Trapezoid{
		corners: corners,
		bound:   Rectangle{Min: minPoint, Max: maxPoint},
	}
}

// NewCorridor creates the rectangular trapezoid around the segment from->to extending halfWidth to both sides.
func NewCorridor(from orb.Point, to orb.Point, halfWidth float64) Trapezoid {
	dx := to.X() - from.X()
	dy := to.Y() - from.Y()
	length := math.Hypot(dx, dy)
	if length == 0 {
		dx, dy, length = 1, 0, 1
	}

	// Normal of the segment scaled to the half width
	nx := -dy / length * halfWidth
	ny := dx / length * halfWidth

	return NewTrapezoid(
		orb.Point{from.X() + nx, from.Y() + ny},
		orb.Point{to.X() + nx, to.Y() + ny},
		orb.Point{to.X() - nx, to.Y() - ny},
		orb.Point{from.X() - nx, from.Y() - ny},
	)
}

// Corners returns the corners in clockwise order.
func (t Trapezoid) Corners() [4]orb.Point {
	return t.corners
}

// BoundingRectangle contains every point of the trapezoid, including the ones on its east and north edges.
func (t Trapezoid) BoundingRectangle() Rectangle {
	return t.bound
}

// IsRightOfEdge is the orientation test of p against the directed edge from corner i to corner i+1. Points on the edge
// count as right of it.
func (t Trapezoid) IsRightOfEdge(i int, p orb.Point) bool {
	a := t.corners[i%4]
	b := t.corners[(i+1)%4]
	return cross(a, b, p) <= 0
}

// Contains returns true when p is within the bounding rectangle and on the inner side of all four edges. Points on an
// edge are contained.
func (t Trapezoid) Contains(p orb.Point) bool {
	if !t.bound.Contains(p) {
		return false
	}
	for i := 0; i < 4; i++ {
		if !t.IsRightOfEdge(i, p) {
			return false
		}
	}
	return true
}

// IsClockwise checks the orientation of the given corner sequence using the shoelace sum.
func IsClockwise(corners ...orb.Point) bool {
	sum := 0.0
	for i := range corners {
		a := corners[i]
		b := corners[(i+1)%len(corners)]
		sum += (b.X() - a.X()) * (b.Y() + a.Y())
	}
	return sum > 0
}

// cross is the z component of (b-a) x (p-a). It's positive when p is left of the directed line a->b.
func cross(a orb.Point, b orb.Point, p orb.Point) float64 {
	return (b.X()-a.X())*(p.Y()-a.Y()) - (b.Y()-a.Y())*(p.X()-a.X())
}
