package importing

import (
	"context"
	"trackmap/tile"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
)

// roadHighwayValues are the highway tag values of roads vehicles drive on.
var roadHighwayValues = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// RoadNodeImporter adds the nodes of road ways to the tile store. The heading of a node is the direction of the way
// towards its next node. Nodes shared by several ways are added once with the heading of the first way. The import stops
// with the context error once the context is done.
type RoadNodeImporter struct {
	ImportedNodes int
	ImportedWays  int

	ctx       context.Context
	tiles     *tile.Store
	positions map[osm.NodeID]orb.Point
	imported  map[osm.NodeID]bool
}

func NewRoadNodeImporter(ctx context.Context, tiles *tile.Store) *RoadNodeImporter {
	return &RoadNodeImporter{
		ctx:   ctx,
		tiles: tiles,
	}
}

func (i *RoadNodeImporter) Name() string {
	return "RoadNodeImporter"
}

func (i *RoadNodeImporter) Init() error {
	i.positions = map[osm.NodeID]orb.Point{}
	i.imported = map[osm.NodeID]bool{}
	return nil
}

func (i *RoadNodeImporter) HandleNode(node *osm.Node) error {
	i.positions[node.ID] = node.Point()
	return nil
}

func (i *RoadNodeImporter) HandleWay(way *osm.Way) error {
	if err := i.ctx.Err(); err != nil {
		return errors.Wrapf(err, "Import stopped at way %d", way.ID)
	}

	if !roadHighwayValues[way.Tags.Find("highway")] || len(way.Nodes) < 2 {
		return nil
	}

	positions := make([]orb.Point, len(way.Nodes))
	for index, wayNode := range way.Nodes {
		position, ok := i.positions[wayNode.ID]
		if !ok {
			sigolo.Debugf("Way %d references unknown node %d, skip way", way.ID, wayNode.ID)
			return nil
		}
		positions[index] = position
	}

	for index, wayNode := range way.Nodes {
		if i.imported[wayNode.ID] {
			continue
		}

		var heading float64
		if index < len(positions)-1 {
			heading = tile.PlanarHeading(positions[index], positions[index+1])
		} else {
			heading = tile.PlanarHeading(positions[index-1], positions[index])
		}

		ref, err := i.tiles.AddNode(tile.Node{
			Position:     positions[index],
			Heading:      heading,
			Observations: 1,
		})
		if err != nil {
			return errors.Wrapf(err, "Unable to add node %d of way %d", wayNode.ID, way.ID)
		}
		sigolo.Tracef("Added node %d of way %d as node %d of tile %d", wayNode.ID, way.ID, ref.ID, ref.Tile)

		i.imported[wayNode.ID] = true
		i.ImportedNodes++
	}

	i.ImportedWays++
	return nil
}

func (i *RoadNodeImporter) HandleRelation(relation *osm.Relation) error {
	return nil
}

func (i *RoadNodeImporter) Done() error {
	i.positions = nil
	i.imported = nil
	return nil
}
