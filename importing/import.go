package importing

import (
	"context"
	"time"
	ownOsm "trackmap/osm"
	"trackmap/tile"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

// Import seeds the road network with the nodes of all roads of the OSM file.
func Import(ctx context.Context, inputFile string, tiles *tile.Store) error {
	sigolo.Infof("Start import of file %s", inputFile)
	importStartTime := time.Now()

	densityAggregator := ownOsm.NewDensityAggregator(tiles.Grid())
	roadNodeImporter := NewRoadNodeImporter(ctx, tiles)

	err := ownOsm.NewReader().Read(inputFile, densityAggregator, roadNodeImporter)
	if err != nil {
		return err
	}

	err = tiles.Flush()
	if err != nil {
		return errors.Wrap(err, "Unable to flush imported tiles")
	}

	if densityAggregator.InputDataCellExtent != nil {
		densestCell, nodeCount := densityAggregator.DensestCell()
		sigolo.Debugf("Input data covers cells %v, densest cell %v has %d nodes", *densityAggregator.InputDataCellExtent, densestCell, nodeCount)
	}

	importDuration := time.Since(importStartTime)
	sigolo.Infof("Finished import of %d road nodes of %d ways in %s", roadNodeImporter.ImportedNodes, roadNodeImporter.ImportedWays, importDuration)

	return nil
}
