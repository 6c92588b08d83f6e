package tile

import (
	"trackmap/cache"
	"trackmap/common"
	"trackmap/util"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type tileRecord struct {
	CellX int32
	CellY int32
	Slots []slotRecord // All slots up to the highest node ID, free slots keep their place so that IDs stay stable.
}

type slotRecord struct {
	Used         bool
	Lon          float64
	Lat          float64
	Heading      float32
	Observations int32
}

var tileSchema = util.BinarySchema{
	Items: []util.BinaryItem{
		&util.BinaryDataItem{FieldName: "CellX", BinaryType: util.DatatypeInt32},
		&util.BinaryDataItem{FieldName: "CellY", BinaryType: util.DatatypeInt32},
		&util.BinaryCollectionItem{
			FieldName: "Slots",
			ItemSchema: util.BinarySchema{
				Items: []util.BinaryItem{
					&util.BinaryDataItem{FieldName: "Used", BinaryType: util.DatatypeByte},
					&util.BinaryDataItem{FieldName: "Lon", BinaryType: util.DatatypeFloat64},
					&util.BinaryDataItem{FieldName: "Lat", BinaryType: util.DatatypeFloat64},
					&util.BinaryDataItem{FieldName: "Heading", BinaryType: util.DatatypeFloat32},
					&util.BinaryDataItem{FieldName: "Observations", BinaryType: util.DatatypeInt32},
				},
			},
		},
	},
}

// Codec converts tiles to their binary record. The quadtree isn't stored, it's rebuilt when needed.
type Codec struct {
	grid common.Grid
}

func NewCodec(grid common.Grid) Codec {
	return Codec{grid: grid}
}

var _ cache.Codec[uint64, *Tile] = Codec{}

func (c Codec) Encode(tile *Tile) ([]byte, error) {
	tile.mutex.Lock()
	record := tileRecord{
		CellX: int32(tile.cell.X()),
		CellY: int32(tile.cell.Y()),
		Slots: make([]slotRecord, tile.nodes.Cap()),
	}
	tile.nodes.Each(func(id int, node Node) bool {
		record.Slots[id] = slotRecord{
			Used:         true,
			Lon:          node.Position.Lon(),
			Lat:          node.Position.Lat(),
			Heading:      float32(node.Heading),
			Observations: int32(node.Observations),
		}
		return true
	})
	tile.mutex.Unlock()

	data, err := tileSchema.Marshal(record)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to encode tile %d", tile.id)
	}
	return data, nil
}

func (c Codec) Decode(id uint64, data []byte) (*Tile, error) {
	record := tileRecord{}
	err := tileSchema.Unmarshal(&record, data)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode tile %d", id)
	}

	cell := common.CellIndex{int(record.CellX), int(record.CellY)}
	expectedCell, err := c.grid.CellOfTile(id)
	if err != nil {
		return nil, err
	}
	if cell != expectedCell {
		return nil, errors.Errorf("Tile %d contains cell %v but belongs to cell %v, the grid probably changed", id, cell, expectedCell)
	}

	tile := NewForCell(c.grid, cell)
	for slot, nodeRecord := range record.Slots {
		if !nodeRecord.Used {
			continue
		}
		node := Node{
			Position:     orb.Point{nodeRecord.Lon, nodeRecord.Lat},
			Heading:      float64(nodeRecord.Heading),
			Observations: int(nodeRecord.Observations),
		}
		err = tile.nodes.Restore(slot, node)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to restore node %d of tile %d", slot, id)
		}
	}

	return tile, nil
}
