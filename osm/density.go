package osm

import (
	"trackmap/common"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// DensityAggregator counts the nodes per grid cell and determines the cell extent of the input data.
type DensityAggregator struct {
	CellToNodeCount     map[common.CellIndex]int
	InputDataCellExtent *common.CellExtent
	grid                common.Grid
}

func NewDensityAggregator(grid common.Grid) *DensityAggregator {
	return &DensityAggregator{
		CellToNodeCount: map[common.CellIndex]int{},
		grid:            grid,
	}
}

func (a *DensityAggregator) Name() string {
	return "DensityAggregator"
}

func (a *DensityAggregator) Init() error {
	return nil
}

func (a *DensityAggregator) HandleNode(node *osm.Node) error {
	cell := a.grid.CellOf(orb.Point{node.Lon, node.Lat})
	a.CellToNodeCount[cell]++

	if a.InputDataCellExtent == nil {
		a.InputDataCellExtent = &common.CellExtent{cell, cell}
	} else {
		newExtent := a.InputDataCellExtent.Expand(cell)
		a.InputDataCellExtent = &newExtent
	}

	return nil
}

func (a *DensityAggregator) HandleWay(way *osm.Way) error {
	return nil
}

func (a *DensityAggregator) HandleRelation(relation *osm.Relation) error {
	return nil
}

func (a *DensityAggregator) Done() error {
	return nil
}

// DensestCell returns the cell with the most nodes.
func (a *DensityAggregator) DensestCell() (common.CellIndex, int) {
	var densest common.CellIndex
	maxCount := 0
	for cell, count := range a.CellToNodeCount {
		if count > maxCount || (count == maxCount && (cell.Y() < densest.Y() || (cell.Y() == densest.Y() && cell.X() < densest.X()))) {
			densest = cell
			maxCount = count
		}
	}
	return densest, maxCount
}
