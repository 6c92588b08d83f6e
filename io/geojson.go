package io

import (
	"io"
	"os"
	"time"
	"trackmap/tile"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

func WriteNodesAsGeoJsonFile(nodes []tile.NodeRef, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to create GeoJSON file %s", filename)
	}

	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "Unable to close file handle for GeoJSON file %s", filename)
		}
	}()

	return WriteNodesAsGeoJson(nodes, file)
}

// WriteNodesAsGeoJson writes a feature collection with one point feature per node.
func WriteNodesAsGeoJson(nodes []tile.NodeRef, writer io.Writer) error {
	sigolo.Debugf("Write %d nodes to GeoJSON", len(nodes))
	writeStartTime := time.Now()

	featureCollection := NodesAsFeatureCollection(nodes)

	geojsonBytes, err := featureCollection.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Unable to marshal nodes to GeoJSON")
	}

	_, err = writer.Write(geojsonBytes)
	if err != nil {
		return errors.Wrap(err, "Unable to write GeoJSON")
	}

	sigolo.Debugf("Finished writing in %s", time.Since(writeStartTime))
	return nil
}

func NodesAsFeatureCollection(nodes []tile.NodeRef) *geojson.FeatureCollection {
	featureCollection := geojson.NewFeatureCollection()
	for _, node := range nodes {
		geoJsonFeature := geojson.NewFeature(node.Node.Position)

		geoJsonFeature.Properties["tile"] = node.Tile
		geoJsonFeature.Properties["id"] = node.ID
		geoJsonFeature.Properties["heading"] = node.Node.Heading
		geoJsonFeature.Properties["observations"] = node.Node.Observations

		featureCollection.Features = append(featureCollection.Features, geoJsonFeature)
	}
	return featureCollection
}
