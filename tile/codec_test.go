package tile

import (
	"testing"
	"trackmap/common"
	"trackmap/geometry"
	"trackmap/util"

	"github.com/paulmach/orb"
)

func TestCodec_roundTripKeepsIds(t *testing.T) {
	// Arrange
	grid, _ := common.NewGrid(1)
	codec := NewCodec(grid)
	tile := NewForCell(grid, common.CellIndex{190, 143})
	addNodes(t, tile,
		Node{Position: orb.Point{10.1, 53.1}, Heading: 45, Observations: 3},
		Node{Position: orb.Point{10.2, 53.2}, Heading: 90, Observations: 1},
		Node{Position: orb.Point{10.3, 53.3}, Heading: 180, Observations: 7},
	)
	tile.RemoveNode(1)

	// Act
	data, err := codec.Encode(tile)
	util.AssertNil(t, err)
	decoded, err := codec.Decode(tile.ID(), data)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, tile.ID(), decoded.ID())
	util.AssertEqual(t, tile.Cell(), decoded.Cell())
	util.AssertEqual(t, tile.Bound(), decoded.Bound())
	util.AssertEqual(t, 2, decoded.Len())
	_, ok := decoded.Node(1)
	util.AssertFalse(t, ok)

	node, ok := decoded.Node(2)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, orb.Point{10.3, 53.3}, node.Position)
	util.AssertApprox(t, 180, node.Heading, 0.0001)
	util.AssertEqual(t, 7, node.Observations)

	// Freed ID is reused after decoding
	id, err := decoded.AddNode(Node{Position: orb.Point{10.4, 53.4}})
	util.AssertNil(t, err)
	util.AssertEqual(t, 1, id)
	util.AssertEqual(t, []int{0, 1, 2}, decoded.NodesInRectangle(decoded.Bound().QuadrantRectangle(geometry.SouthWest)))
}

func TestCodec_emptyTile(t *testing.T) {
	// Arrange
	grid, _ := common.NewGrid(1)
	codec := NewCodec(grid)
	tile := NewForCell(grid, common.CellIndex{0, 0})

	// Act
	data, err := codec.Encode(tile)
	util.AssertNil(t, err)
	decoded, err := codec.Decode(0, data)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 12, len(data))
	util.AssertEqual(t, 0, decoded.Len())
}

func TestCodec_decodeWrongTile(t *testing.T) {
	// Arrange
	grid, _ := common.NewGrid(1)
	codec := NewCodec(grid)
	data, err := codec.Encode(NewForCell(grid, common.CellIndex{1, 0}))
	util.AssertNil(t, err)

	// Act
	_, err = codec.Decode(0, data)

	// Assert
	util.AssertNotNil(t, err)
}

func TestCodec_decodeCorruptData(t *testing.T) {
	// Arrange
	grid, _ := common.NewGrid(1)
	codec := NewCodec(grid)

	// Act
	_, err := codec.Decode(0, []byte{0, 0, 0, 0, 0, 0, 0, 0, 255, 255, 255, 255})

	// Assert
	util.AssertNotNil(t, err)
}
