package tile

import (
	"math"

	"github.com/paulmach/orb"
)

// Node is a point of the road network. Its position and heading are averages of all GPS fixes assigned to it.
type Node struct {
	Position     orb.Point
	Heading      float64 // Degrees clockwise from north in [0, 360).
	Observations int
}

func NormalizeHeading(heading float64) float64 {
	heading = math.Mod(heading, 360)
	if heading < 0 {
		heading += 360
	}
	return heading
}

// HeadingDifference returns the smallest angle between both headings in [0, 180].
func HeadingDifference(a float64, b float64) float64 {
	difference := math.Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if difference > 180 {
		difference = 360 - difference
	}
	return difference
}

// PlanarHeading returns the direction from one position to another treating lon/lat as planar coordinates.
func PlanarHeading(from orb.Point, to orb.Point) float64 {
	return NormalizeHeading(math.Atan2(to.Lon()-from.Lon(), to.Lat()-from.Lat()) * 180 / math.Pi)
}

// averaged returns the node with the fix merged into it. Each observation has the same weight, headings are averaged
// as unit vectors so that 350° and 10° result in 0°.
func (n Node) averaged(position orb.Point, heading float64) Node {
	weight := float64(n.Observations)
	total := weight + 1

	lon := (n.Position.Lon()*weight + position.Lon()) / total
	lat := (n.Position.Lat()*weight + position.Lat()) / total

	nodeHeading := n.Heading * math.Pi / 180
	fixHeading := heading * math.Pi / 180
	sin := math.Sin(nodeHeading)*weight + math.Sin(fixHeading)
	cos := math.Cos(nodeHeading)*weight + math.Cos(fixHeading)
	averagedHeading := n.Heading
	if sin != 0 || cos != 0 {
		averagedHeading = NormalizeHeading(math.Atan2(sin, cos) * 180 / math.Pi)
	}

	return Node{
		Position:     orb.Point{lon, lat},
		Heading:      averagedHeading,
		Observations: n.Observations + 1,
	}
}
