package importing

import (
	"context"
	"os"
	"path"
	"testing"
	"trackmap/cache"
	"trackmap/common"
	"trackmap/geometry"
	"trackmap/storage"
	"trackmap/tile"
	"trackmap/util"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

const testOsmData = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="53.5" lon="10.5" version="1"/>
  <node id="2" lat="53.5" lon="10.6" version="1"/>
  <node id="3" lat="53.6" lon="10.6" version="1"/>
  <node id="4" lat="53.7" lon="10.7" version="1"/>
  <node id="5" lat="53.5" lon="11.5" version="1"/>
  <way id="10" version="1">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="3"/>
    <tag k="highway" v="residential"/>
  </way>
  <way id="11" version="1">
    <nd ref="3"/>
    <nd ref="4"/>
    <tag k="building" v="yes"/>
  </way>
  <way id="12" version="1">
    <nd ref="2"/>
    <nd ref="5"/>
    <tag k="highway" v="primary"/>
  </way>
</osm>
`

func writeTestFile(t *testing.T, name string, content string) string {
	filename := path.Join(t.TempDir(), name)
	err := os.WriteFile(filename, []byte(content), 0644)
	util.AssertNil(t, err)
	return filename
}

func newTestTileStore(t *testing.T, store storage.Store) *tile.Store {
	grid, err := common.NewGrid(1)
	util.AssertNil(t, err)
	tiles, err := tile.NewStore(grid, store, cache.Options[uint64, *tile.Tile]{})
	util.AssertNil(t, err)
	return tiles
}

func TestImport(t *testing.T) {
	// Arrange
	filename := writeTestFile(t, "roads.osm", testOsmData)
	memory := storage.NewMemoryStore()
	tiles := newTestTileStore(t, memory)

	// Act
	err := Import(context.Background(), filename, tiles)

	// Assert
	util.AssertNil(t, err)

	used, err := memory.UsedIDs(tile.Table)
	util.AssertNil(t, err)
	util.AssertEqual(t, []uint64{143*360 + 190, 143*360 + 191}, used)

	nodes, err := tiles.NodesInRectangle(geometry.NewRectangle(orb.Point{10, 53}, orb.Point{12, 54}))
	util.AssertNil(t, err)
	util.AssertEqual(t, 4, len(nodes))

	headings := map[orb.Point]float64{}
	for _, ref := range nodes {
		util.AssertEqual(t, 1, ref.Node.Observations)
		headings[ref.Node.Position] = ref.Node.Heading
	}
	util.AssertApprox(t, 90, headings[orb.Point{10.5, 53.5}], 0.000001)
	util.AssertApprox(t, 0, headings[orb.Point{10.6, 53.5}], 0.000001)
	util.AssertApprox(t, 0, headings[orb.Point{10.6, 53.6}], 0.000001)
	util.AssertApprox(t, 90, headings[orb.Point{11.5, 53.5}], 0.000001)
	_, ok := headings[orb.Point{10.7, 53.7}]
	util.AssertFalse(t, ok)
}

func TestImport_unsupportedFile(t *testing.T) {
	// Arrange
	filename := writeTestFile(t, "roads.geojson", "{}")
	tiles := newTestTileStore(t, nil)

	// Act
	err := Import(context.Background(), filename, tiles)

	// Assert
	util.AssertNotNil(t, err)
}

func TestRoadNodeImporter_skipsWaysWithUnknownNodes(t *testing.T) {
	// Arrange
	filename := writeTestFile(t, "roads.osm", `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="53.5" lon="10.5" version="1"/>
  <way id="10" version="1">
    <nd ref="1"/>
    <nd ref="2"/>
    <tag k="highway" v="service"/>
  </way>
</osm>
`)
	tiles := newTestTileStore(t, nil)

	// Act
	err := Import(context.Background(), filename, tiles)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 0, tiles.Len())
}

func TestImport_cancelled(t *testing.T) {
	// Arrange
	filename := writeTestFile(t, "roads.osm", testOsmData)
	tiles := newTestTileStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	err := Import(ctx, filename, tiles)

	// Assert
	util.AssertTrue(t, errors.Is(err, context.Canceled))
	util.AssertEqual(t, 0, tiles.Len())
}

func TestImport_nodesOnFloatingPointCellEdges(t *testing.T) {
	// Arrange
	filename := writeTestFile(t, "roads.osm", `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="50" lon="0.3" version="1"/>
  <node id="2" lat="50.3" lon="0.7" version="1"/>
  <node id="3" lat="50.7" lon="0.9" version="1"/>
  <way id="10" version="1">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="3"/>
    <tag k="highway" v="residential"/>
  </way>
</osm>
`)
	grid, err := common.NewGrid(0.1)
	util.AssertNil(t, err)
	tiles, err := tile.NewStore(grid, nil, cache.Options[uint64, *tile.Tile]{})
	util.AssertNil(t, err)

	// Act
	err = Import(context.Background(), filename, tiles)

	// Assert
	util.AssertNil(t, err)
	nodes, err := tiles.NodesInRectangle(geometry.NewRectangle(orb.Point{0, 49.5}, orb.Point{1, 51}))
	util.AssertNil(t, err)
	util.AssertEqual(t, 3, len(nodes))
}
