package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Quadrant is one of the four parts of a rectangle split at its center.
type Quadrant int

const (
	NorthEast Quadrant = iota
	SouthEast
	SouthWest
	NorthWest
)

var Quadrants = [4]Quadrant{NorthEast, SouthEast, SouthWest, NorthWest}

func (q Quadrant) String() string {
	switch q {
	case NorthEast:
		return "NE"
	case SouthEast:
		return "SE"
	case SouthWest:
		return "SW"
	case NorthWest:
		return "NW"
	}
	return fmt.Sprintf("Quadrant(%d)", int(q))
}

// Rectangle is an axis-aligned box. Min is lower or equal to Max on both axes. Point containment is half-open, i.e. the
// Min edges belong to the rectangle and the Max edges don't.
type Rectangle struct {
	Min orb.Point
	Max orb.Point
}

// NewRectangle creates the rectangle spanned by the two corners, which may be given in any order.
func NewRectangle(a orb.Point, b orb.Point) Rectangle {
	return Rectangle{
		Min: orb.Point{math.Min(a.X(), b.X()), math.Min(a.Y(), b.Y())},
		Max: orb.Point{math.Max(a.X(), b.X()), math.Max(a.Y(), b.Y())},
	}
}

// RectangleFromBound converts an orb bound. Orb bounds are closed, the resulting rectangle is half-open.
func RectangleFromBound(bound orb.Bound) Rectangle {
	return NewRectangle(bound.Min, bound.Max)
}

// RectangleAround returns the square of the given half side length centered on p.
func RectangleAround(p orb.Point, halfSide float64) Rectangle {
	return NewRectangle(
		orb.Point{p.X() - halfSide, p.Y() - halfSide},
		orb.Point{p.X() + halfSide, p.Y() + halfSide},
	)
}

func (r Rectangle) Bound() orb.Bound {
	return orb.Bound{Min: r.Min, Max: r.Max}
}

func (r Rectangle) Width() float64 { return r.Max.X() - r.Min.X() }

func (r Rectangle) Height() float64 { return r.Max.Y() - r.Min.Y() }

func (r Rectangle) Center() orb.Point {
	return orb.Point{(r.Min.X() + r.Max.X()) / 2, (r.Min.Y() + r.Max.Y()) / 2}
}

// Contains checks the point against the half-open intervals [Min, Max) of both axes.
func (r Rectangle) Contains(p orb.Point) bool {
	return p.X() >= r.Min.X() && p.X() < r.Max.X() &&
		p.Y() >= r.Min.Y() && p.Y() < r.Max.Y()
}

// IsFinite returns false when a coordinate of the rectangle is NaN or infinite.
func (r Rectangle) IsFinite() bool {
	for _, v := range []float64{r.Min.X(), r.Min.Y(), r.Max.X(), r.Max.Y()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ContainsRectangle returns true when the other rectangle lies completely within r.
func (r Rectangle) ContainsRectangle(other Rectangle) bool {
	return other.Min.X() >= r.Min.X() && other.Max.X() <= r.Max.X() &&
		other.Min.Y() >= r.Min.Y() && other.Max.Y() <= r.Max.Y()
}

// Intersects returns true when both rectangles share an area, touching edges don't count since both are half-open.
func (r Rectangle) Intersects(other Rectangle) bool {
	return r.Min.X() < other.Max.X() && other.Min.X() < r.Max.X() &&
		r.Min.Y() < other.Max.Y() && other.Min.Y() < r.Max.Y()
}

// Quadrant returns the quadrant of p relative to the center of r. Points on the center lines belong to the north or
// east side.
func (r Rectangle) Quadrant(p orb.Point) Quadrant {
	center := r.Center()
	east := p.X() >= center.X()
	north := p.Y() >= center.Y()

	switch {
	case north && east:
		return NorthEast
	case east:
		return SouthEast
	case north:
		return NorthWest
	default:
		return SouthWest
	}
}

// QuadrantRectangle returns the part of r that belongs to the given quadrant.
func (r Rectangle) QuadrantRectangle(q Quadrant) Rectangle {
	center := r.Center()
	switch q {
	case NorthEast:
		return Rectangle{Min: center, Max: r.Max}
	case SouthEast:
		return Rectangle{Min: orb.Point{center.X(), r.Min.Y()}, Max: orb.Point{r.Max.X(), center.Y()}}
	case SouthWest:
		return Rectangle{Min: r.Min, Max: center}
	default:
		return Rectangle{Min: orb.Point{r.Min.X(), center.Y()}, Max: orb.Point{center.X(), r.Max.Y()}}
	}
}

func (r Rectangle) String() string {
	return fmt.Sprintf("(%g,%g)-(%g,%g)", r.Min.X(), r.Min.Y(), r.Max.X(), r.Max.Y())
}
