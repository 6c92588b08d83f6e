package common

import (
	"math"
	"trackmap/geometry"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type CellIndex [2]int

func (c CellIndex) X() int { return c[0] }

func (c CellIndex) Y() int { return c[1] }

func (c CellIndex) isBelowOrLeftOf(other CellIndex) bool {
	return c.X() < other.X() || c.Y() < other.Y()
}

func (c CellIndex) isAboveOrRightOf(other CellIndex) bool {
	return c.X() > other.X() || c.Y() > other.Y()
}

type CellExtent [2]CellIndex

func (c CellExtent) LowerLeftCell() CellIndex { return c[0] }

func (c CellExtent) UpperRightCell() CellIndex { return c[1] }

func (c CellExtent) Expand(cell CellIndex) CellExtent {
	if c.Contains(cell) {
		return c
	}

	minX := min(c.LowerLeftCell().X(), cell.X())
	minY := min(c.LowerLeftCell().Y(), cell.Y())
	maxX := max(c.UpperRightCell().X(), cell.X())
	maxY := max(c.UpperRightCell().Y(), cell.Y())

	return CellExtent{
		CellIndex{minX, minY},
		CellIndex{maxX, maxY},
	}
}

func (c CellExtent) Contains(cell CellIndex) bool {
	return !cell.isAboveOrRightOf(c.UpperRightCell()) && !cell.isBelowOrLeftOf(c.LowerLeftCell())
}

// Count returns the number of cells within the extent.
func (c CellExtent) Count() int {
	return (c.UpperRightCell().X() - c.LowerLeftCell().X() + 1) * (c.UpperRightCell().Y() - c.LowerLeftCell().Y() + 1)
}

func (c CellExtent) GetCellIndices() []CellIndex {
	var indices []CellIndex

	for x := c.LowerLeftCell().X(); x <= c.UpperRightCell().X(); x++ {
		for y := c.LowerLeftCell().Y(); y <= c.UpperRightCell().Y(); y++ {
			indices = append(indices, CellIndex{x, y})
		}
	}

	return indices
}

// Grid divides the world (lon -180..180, lat -90..90) into square cells of CellSize degrees. Each cell is one tile, its
// TileID is the row-major number of the cell.
type Grid struct {
	CellSize float64
	columns  int
	rows     int
}

func NewGrid(cellSize float64) (Grid, error) {
	if cellSize <= 0 || cellSize > 180 {
		return Grid{}, errors.Errorf("Invalid cell size %f, it must be in (0, 180]", cellSize)
	}
	return Grid{
		CellSize: cellSize,
		columns:  int(math.Ceil(360 / cellSize)),
		rows:     int(math.Ceil(180 / cellSize)),
	}, nil
}

func (g Grid) Columns() int { return g.columns }

func (g Grid) Rows() int { return g.rows }

// CellOf returns the cell whose Bound contains the coordinate. Coordinates on the upper world border belong to the last
// cell.
func (g Grid) CellOf(p orb.Point) CellIndex {
	x := clamp(int(math.Floor((p.Lon()+180)/g.CellSize)), g.columns-1)
	for x > 0 && p.Lon() < g.lonEdge(x) {
		x--
	}
	for x < g.columns-1 && p.Lon() >= g.lonEdge(x+1) {
		x++
	}

	y := clamp(int(math.Floor((p.Lat()+90)/g.CellSize)), g.rows-1)
	for y > 0 && p.Lat() < g.latEdge(y) {
		y--
	}
	for y < g.rows-1 && p.Lat() >= g.latEdge(y+1) {
		y++
	}

	return CellIndex{x, y}
}

func clamp(v int, upper int) int {
	return max(0, min(v, upper))
}

// lonEdge is the western edge of column x. The eastern edge of the last column lies just beyond 180 so that the world
// border is part of it.
func (g Grid) lonEdge(x int) float64 {
	edge := float64(x)*g.CellSize - 180
	if x >= g.columns {
		return math.Nextafter(max(edge, 180), math.Inf(1))
	}
	return edge
}

// latEdge is the southern edge of row y, see lonEdge.
func (g Grid) latEdge(y int) float64 {
	edge := float64(y)*g.CellSize - 90
	if y >= g.rows {
		return math.Nextafter(max(edge, 90), math.Inf(1))
	}
	return edge
}

// Bound returns the rectangle covered by the cell. Neighbouring cells share their edges, so every coordinate lies in
// exactly one cell bound.
func (g Grid) Bound(cell CellIndex) geometry.Rectangle {
	return geometry.NewRectangle(
		orb.Point{g.lonEdge(cell.X()), g.latEdge(cell.Y())},
		orb.Point{g.lonEdge(cell.X() + 1), g.latEdge(cell.Y() + 1)},
	)
}

func (g Grid) TileID(cell CellIndex) uint64 {
	return uint64(cell.Y())*uint64(g.columns) + uint64(cell.X())
}

func (g Grid) CellOfTile(id uint64) (CellIndex, error) {
	if id >= uint64(g.columns)*uint64(g.rows) {
		return CellIndex{}, errors.Errorf("Tile ID %d is outside of the grid with %dx%d cells", id, g.columns, g.rows)
	}
	return CellIndex{int(id % uint64(g.columns)), int(id / uint64(g.columns))}, nil
}

// Extent returns the cells touched by the rectangle.
func (g Grid) Extent(rectangle geometry.Rectangle) CellExtent {
	return CellExtent{g.CellOf(rectangle.Min), g.CellOf(rectangle.Max)}
}
