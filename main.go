package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"trackmap/cache"
	"trackmap/common"
	"trackmap/geometry"
	"trackmap/importing"
	ownIo "trackmap/io"
	"trackmap/metrics/prom"
	"trackmap/storage"
	"trackmap/tile"
	"trackmap/web"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging      string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version      VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Database     string      `help:"The folder of the tile database." placeholder:"<folder>" default:"trackmap-db" short:"d"`
	CellSize     float64     `help:"The size of the tiles in degrees. Must not change once the database contains tiles." default:"0.1"`
	Compression  string      `help:"Compression of newly written tiles." enum:"none,lz4,zstd" default:"lz4"`
	MaxObjects   int         `help:"Maximum number of tiles in memory, 0 means unlimited." default:"1024"`
	MinObjects   int         `help:"Number of tiles the soft memory limit never evicts below." default:"16"`
	SoftMaxBytes int64       `help:"Tiles are evicted opportunistically above this number of bytes, 0 disables it." default:"268435456"`
	HardMaxBytes int64       `help:"Maximum number of bytes of all tiles in memory, 0 means unlimited." default:"536870912"`
	Import       struct {
		Input string `help:"The input file. Either .osm or .osm.pbf." placeholder:"<input-file>" arg:"" type:"existingfile"`
	} `cmd:"" help:"Imports the road nodes of the given OSM file into the tile database."`
	Serve struct {
		Port string `help:"The port of the HTTP API." default:"8080" short:"p"`
	} `cmd:"" help:"Starts the HTTP API."`
	Query struct {
		Bbox   string `help:"The bounding box as minLon,minLat,maxLon,maxLat." placeholder:"<bbox>" required:""`
		Output string `help:"The GeoJSON output file, stdout when empty." placeholder:"<file>" short:"o"`
	} `cmd:"" help:"Returns all nodes within the bounding box as GeoJSON."`
	Near struct {
		Lon       float64 `help:"Longitude of the position." required:""`
		Lat       float64 `help:"Latitude of the position." required:""`
		Radius    float64 `help:"Search radius in degrees." default:"0.001"`
		Heading   float64 `help:"Heading in degrees clockwise from north." default:"0"`
		Tolerance float64 `help:"Maximum heading difference in degrees, 180 matches all headings." default:"180"`
		Output    string  `help:"The GeoJSON output file, stdout when empty." placeholder:"<file>" short:"o"`
	} `cmd:"" help:"Returns the nodes near a position as GeoJSON, the closest first."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("trackmap"),
		kong.Description("A road network map built from GPS traces."),
		kong.Vars{
			"version": VERSION,
		},
	)

	if strings.ToLower(cli.Logging) == "debug" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	} else if strings.ToLower(cli.Logging) == "trace" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	} else if strings.ToLower(cli.Logging) == "info" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	} else {
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(signalCtx, ctx.Command())
	sigolo.FatalCheck(err)
}

// run executes the command. The tile store is flushed and the database closed also when the command failed or was
// interrupted.
func run(signalCtx context.Context, command string) (err error) {
	database, tiles, err := openTiles()
	if err != nil {
		return err
	}
	defer func() {
		closeErr := tiles.Close()
		if closeErr != nil {
			sigolo.Errorf("Unable to flush tiles: %+v", closeErr)
		}
		databaseErr := database.Close()
		if closeErr == nil {
			closeErr = databaseErr
		}
		if err == nil {
			err = closeErr
		}
	}()

	switch command {
	case "import <input>":
		return importing.Import(signalCtx, cli.Import.Input, tiles)
	case "serve":
		return web.Serve(signalCtx, cli.Serve.Port, tiles, prometheus.DefaultGatherer)
	case "query":
		rectangle, err := geometry.ParseBbox(cli.Query.Bbox)
		if err != nil {
			return err
		}

		nodes, err := tiles.NodesInRectangle(rectangle)
		if err != nil {
			return err
		}

		sigolo.Debugf("Found %d nodes", len(nodes))
		return writeNodes(nodes, cli.Query.Output)
	case "near":
		nodes, err := tiles.NodesNear(orb.Point{cli.Near.Lon, cli.Near.Lat}, cli.Near.Radius, cli.Near.Heading, cli.Near.Tolerance)
		if err != nil {
			return err
		}

		sigolo.Debugf("Found %d nodes", len(nodes))
		return writeNodes(nodes, cli.Near.Output)
	}

	return errors.Errorf("Unknown command '%s'", command)
}

func openTiles() (storage.Store, *tile.Store, error) {
	grid, err := common.NewGrid(cli.CellSize)
	if err != nil {
		return nil, nil, err
	}

	compression, err := storage.ParseCompression(cli.Compression)
	if err != nil {
		return nil, nil, err
	}

	levelDB, err := storage.OpenLevelDB(cli.Database)
	if err != nil {
		return nil, nil, err
	}

	database, err := storage.NewCompressed(levelDB, compression)
	if err != nil {
		closeAfterError(levelDB)
		return nil, nil, err
	}

	tiles, err := tile.NewStore(grid, database, cache.Options[uint64, *tile.Tile]{
		MaxObjects:   cli.MaxObjects,
		MinObjects:   cli.MinObjects,
		SoftMaxBytes: cli.SoftMaxBytes,
		HardMaxBytes: cli.HardMaxBytes,
		Metrics:      prom.New(prometheus.DefaultRegisterer, "trackmap", "tiles"),
	})
	if err != nil {
		closeAfterError(database)
		return nil, nil, err
	}

	return database, tiles, nil
}

func closeAfterError(database storage.Store) {
	err := database.Close()
	if err != nil {
		sigolo.Errorf("Unable to close database: %+v", err)
	}
}

func writeNodes(nodes []tile.NodeRef, output string) error {
	if output == "" {
		return ownIo.WriteNodesAsGeoJson(nodes, os.Stdout)
	}
	return ownIo.WriteNodesAsGeoJsonFile(nodes, output)
}
