package osm

import (
	"os"
	"path"
	"testing"
	"trackmap/common"
	"trackmap/util"

	"github.com/paulmach/osm"
)

type countingHandler struct {
	nodes     int
	ways      int
	relations int
	done      bool
}

func (h *countingHandler) Name() string { return "countingHandler" }

func (h *countingHandler) Init() error { return nil }

func (h *countingHandler) HandleNode(node *osm.Node) error {
	h.nodes++
	return nil
}

func (h *countingHandler) HandleWay(way *osm.Way) error {
	h.ways++
	return nil
}

func (h *countingHandler) HandleRelation(relation *osm.Relation) error {
	h.relations++
	return nil
}

func (h *countingHandler) Done() error {
	h.done = true
	return nil
}

func writeTestFile(t *testing.T, name string, content string) string {
	filename := path.Join(t.TempDir(), name)
	err := os.WriteFile(filename, []byte(content), 0644)
	util.AssertNil(t, err)
	return filename
}

func TestReader_read(t *testing.T) {
	// Arrange
	filename := writeTestFile(t, "data.osm", `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="53.5" lon="10.5" version="1"/>
  <node id="2" lat="53.5" lon="10.6" version="1"/>
  <node id="3" lat="54.5" lon="12.2" version="1"/>
  <way id="10" version="1">
    <nd ref="1"/>
    <nd ref="2"/>
  </way>
  <relation id="20" version="1">
    <member type="way" ref="10" role=""/>
  </relation>
</osm>
`)
	grid, err := common.NewGrid(1)
	util.AssertNil(t, err)
	handler := &countingHandler{}
	densityAggregator := NewDensityAggregator(grid)

	// Act
	err = NewReader().Read(filename, handler, densityAggregator)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 3, handler.nodes)
	util.AssertEqual(t, 1, handler.ways)
	util.AssertEqual(t, 1, handler.relations)
	util.AssertTrue(t, handler.done)

	util.AssertEqual(t, common.CellExtent{{190, 143}, {192, 144}}, *densityAggregator.InputDataCellExtent)
	densestCell, count := densityAggregator.DensestCell()
	util.AssertEqual(t, common.CellIndex{190, 143}, densestCell)
	util.AssertEqual(t, 2, count)
}

func TestReader_unsupportedFile(t *testing.T) {
	// Arrange
	filename := writeTestFile(t, "data.json", "{}")

	// Act
	err := NewReader().Read(filename, &countingHandler{})

	// Assert
	util.AssertNotNil(t, err)
}

func TestReader_missingFile(t *testing.T) {
	// Act
	err := NewReader().Read(path.Join(t.TempDir(), "missing.pbf"), &countingHandler{})

	// Assert
	util.AssertNotNil(t, err)
}
