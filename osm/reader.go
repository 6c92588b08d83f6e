package osm

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
)

// DataHandler receives the OSM objects of a file in the order of the file, which is nodes, ways and relations for
// regular OSM files.
type DataHandler interface {
	Name() string
	Init() error
	HandleNode(node *osm.Node) error
	HandleWay(way *osm.Way) error
	HandleRelation(relation *osm.Relation) error
	Done() error
}

type Reader struct {
	firstWayHasBeenProcessed      bool
	firstRelationHasBeenProcessed bool
}

func NewReader() *Reader {
	return &Reader{}
}

// Read passes all objects of the .osm or .pbf file to the handlers.
func (r *Reader) Read(filename string, handlers ...DataHandler) error {
	file, scanner, err := openScanner(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	sigolo.Infof("Start processing OSM data file %s", filename)
	processingStartTime := time.Now()

	err = r.read(scanner, handlers)
	if err != nil {
		return err
	}

	sigolo.Infof("Done processing OSM data in %s", time.Since(processingStartTime))
	return nil
}

func openScanner(filename string) (*os.File, osm.Scanner, error) {
	if !strings.HasSuffix(filename, ".osm") && !strings.HasSuffix(filename, ".pbf") {
		return nil, nil, errors.Errorf("Input file %s must be an .osm or .pbf file", filename)
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Unable to open OSM input file %s", filename)
	}

	var scanner osm.Scanner
	if strings.HasSuffix(filename, ".osm") {
		scanner = osmxml.New(context.Background(), file)
	} else {
		scanner = osmpbf.New(context.Background(), file, 1)
	}
	return file, scanner, nil
}

func (r *Reader) read(scanner osm.Scanner, handlers []DataHandler) error {
	for _, handler := range handlers {
		err := handler.Init()
		if err != nil {
			return errors.Wrapf(err, "Initializing OSM data handler '%s' failed", handler.Name())
		}
	}

	sigolo.Debug("Start processing nodes (1/3)")
	for scanner.Scan() {
		switch osmObj := scanner.Object().(type) {
		case *osm.Node:
			for _, handler := range handlers {
				err := handler.HandleNode(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling node %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Way:
			if !r.firstWayHasBeenProcessed {
				sigolo.Debug("Start processing ways (2/3)")
				r.firstWayHasBeenProcessed = true
			}

			for _, handler := range handlers {
				err := handler.HandleWay(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling way %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Relation:
			if !r.firstRelationHasBeenProcessed {
				sigolo.Debug("Start processing relations (3/3)")
				r.firstRelationHasBeenProcessed = true
			}

			for _, handler := range handlers {
				err := handler.HandleRelation(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling relation %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		}
	}

	if scanner.Err() != nil {
		return errors.Wrap(scanner.Err(), "Unable to read OSM data")
	}

	for _, handler := range handlers {
		err := handler.Done()
		if err != nil {
			return errors.Wrapf(err, "Calling done function on handler '%s' failed", handler.Name())
		}
	}

	err := scanner.Close()
	if err != nil {
		return errors.Wrapf(err, "Unable to close OSM scanner")
	}

	return nil
}
