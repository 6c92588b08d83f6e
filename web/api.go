package web

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"trackmap/geometry"
	ownIo "trackmap/io"
	"trackmap/tile"

	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultFixRadius        = 0.0002
	defaultHeadingTolerance = 45.0
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func NewErrorResponse(message string, err error) ErrorResponse {
	response := ErrorResponse{
		Error: message,
	}
	if err != nil {
		response.Details = err.Error()
	}
	return response
}

type FixRequest struct {
	Lon       float64  `json:"lon"`
	Lat       float64  `json:"lat"`
	Heading   float64  `json:"heading"`
	Radius    *float64 `json:"radius"`
	Tolerance *float64 `json:"tolerance"`
}

type FixResponse struct {
	Tile         uint64  `json:"tile"`
	ID           int     `json:"id"`
	Lon          float64 `json:"lon"`
	Lat          float64 `json:"lat"`
	Heading      float64 `json:"heading"`
	Observations int     `json:"observations"`
	Merged       bool    `json:"merged"`
}

// Serve runs the HTTP API until the context is done. Running requests are completed before Serve returns.
func Serve(ctx context.Context, port string, tiles *tile.Store, gatherer prometheus.Gatherer) error {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: NewRouter(tiles, gatherer),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sigolo.Infof("Stop server on port %s", port)
		shutdownErr <- server.Shutdown(context.Background())
	}()

	sigolo.Infof("Start server on port %s", port)
	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return errors.Wrapf(err, "Server on port %s stopped", port)
	}

	return errors.Wrap(<-shutdownErr, "Unable to shut down server")
}

// NewRouter creates the routes of the API. A nil gatherer disables the /metrics endpoint.
func NewRouter(tiles *tile.Store, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/nodes", func(writer http.ResponseWriter, request *http.Request) {
		rectangle, err := geometry.ParseBbox(request.URL.Query().Get("bbox"))
		if err != nil {
			writeErrorResponse(writer, http.StatusBadRequest, "Invalid bbox parameter", err)
			return
		}

		nodes, err := tiles.NodesInRectangle(rectangle)
		if err != nil {
			writeErrorResponse(writer, queryErrorStatus(err), "Error querying nodes", err)
			return
		}

		sigolo.Debugf("Found %d nodes in %s", len(nodes), rectangle)
		writeGeoJson(writer, nodes)
	}).Methods(http.MethodGet)

	r.HandleFunc("/nodes/near", func(writer http.ResponseWriter, request *http.Request) {
		query := request.URL.Query()
		lon, lonErr := parseFloatParameter(query.Get("lon"), "lon", nil)
		lat, latErr := parseFloatParameter(query.Get("lat"), "lat", nil)
		radius, radiusErr := parseFloatParameter(query.Get("radius"), "radius", nil)
		heading, headingErr := parseFloatParameter(query.Get("heading"), "heading", ptr(0.0))
		tolerance, toleranceErr := parseFloatParameter(query.Get("tolerance"), "tolerance", ptr(180.0))
		for _, err := range []error{lonErr, latErr, radiusErr, headingErr, toleranceErr} {
			if err != nil {
				writeErrorResponse(writer, http.StatusBadRequest, "Invalid query parameter", err)
				return
			}
		}

		nodes, err := tiles.NodesNear(orb.Point{lon, lat}, radius, heading, tolerance)
		if err != nil {
			writeErrorResponse(writer, queryErrorStatus(err), "Error querying nodes", err)
			return
		}

		sigolo.Debugf("Found %d nodes near %v", len(nodes), orb.Point{lon, lat})
		writeGeoJson(writer, nodes)
	}).Methods(http.MethodGet)

	r.HandleFunc("/tiles/{id}/nodes", func(writer http.ResponseWriter, request *http.Request) {
		id, err := strconv.ParseUint(mux.Vars(request)["id"], 10, 64)
		if err != nil {
			writeErrorResponse(writer, http.StatusBadRequest, "Invalid tile ID", err)
			return
		}

		nodes, ok, err := tiles.NodesOfTile(id, func(id uint64, err error) {
			if err != nil {
				sigolo.Errorf("Prefetching tile %d failed: %+v", id, err)
			}
		})
		if err != nil {
			writeErrorResponse(writer, http.StatusBadRequest, "Unable to get tile", err)
			return
		}
		if !ok {
			writer.Header().Set("Retry-After", "1")
			writeErrorResponse(writer, http.StatusAccepted, fmt.Sprintf("Tile %d is being loaded, retry later", id), nil)
			return
		}

		writeGeoJson(writer, nodes)
	}).Methods(http.MethodGet)

	r.HandleFunc("/tiles/{id}", func(writer http.ResponseWriter, request *http.Request) {
		id, err := strconv.ParseUint(mux.Vars(request)["id"], 10, 64)
		if err != nil {
			writeErrorResponse(writer, http.StatusBadRequest, "Invalid tile ID", err)
			return
		}

		err = tiles.Erase(id)
		if err != nil {
			writeErrorResponse(writer, http.StatusConflict, fmt.Sprintf("Unable to erase tile %d", id), err)
			return
		}

		sigolo.Infof("Erased tile %d", id)
		writer.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/fixes", func(writer http.ResponseWriter, request *http.Request) {
		fix := &FixRequest{}
		err := json.NewDecoder(request.Body).Decode(fix)
		if err != nil {
			writeErrorResponse(writer, http.StatusBadRequest, "Error reading fix from HTTP body", err)
			return
		}

		radius := defaultFixRadius
		if fix.Radius != nil {
			radius = *fix.Radius
		}
		tolerance := defaultHeadingTolerance
		if fix.Tolerance != nil {
			tolerance = *fix.Tolerance
		}

		ref, merged, err := tiles.AddFix(orb.Point{fix.Lon, fix.Lat}, fix.Heading, radius, tolerance)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, tile.ErrOutsideTile) {
				status = http.StatusBadRequest
			}
			writeErrorResponse(writer, status, "Error adding fix", err)
			return
		}

		writeJson(writer, http.StatusOK, FixResponse{
			Tile:         ref.Tile,
			ID:           ref.ID,
			Lon:          ref.Node.Position.Lon(),
			Lat:          ref.Node.Position.Lat(),
			Heading:      ref.Node.Heading,
			Observations: ref.Node.Observations,
			Merged:       merged,
		})
	}).Methods(http.MethodPost)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

func ptr(f float64) *float64 { return &f }

func queryErrorStatus(err error) int {
	if errors.Is(err, tile.ErrQueryTooLarge) || errors.Is(err, tile.ErrInvalidQuery) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// parseFloatParameter returns the default value for empty parameters or an error if there's no default.
func parseFloatParameter(value string, name string, defaultValue *float64) (float64, error) {
	if value == "" {
		if defaultValue == nil {
			return 0, errors.Errorf("Missing parameter '%s'", name)
		}
		return *defaultValue, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "Invalid number '%s' for parameter '%s'", value, name)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("Number '%s' for parameter '%s' is not finite", value, name)
	}
	return f, nil
}

func writeGeoJson(writer http.ResponseWriter, nodes []tile.NodeRef) {
	writer.Header().Set("Access-Control-Allow-Origin", "*")
	writer.Header().Set("Content-Type", "application/geo+json")

	err := ownIo.WriteNodesAsGeoJson(nodes, writer)
	if err != nil {
		sigolo.Errorf("Error writing query result: %+v", err)
	}
}

func writeJson(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Access-Control-Allow-Origin", "*")
	writer.Header().Set("Content-Type", "application/json")

	responseBytes, err := json.Marshal(body)
	if err != nil {
		sigolo.Errorf("Error marshalling response object: %+v", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	writer.WriteHeader(status)
	_, err = writer.Write(responseBytes)
	if err != nil {
		sigolo.Errorf("Error writing response: %+v", err)
	}
}

func writeErrorResponse(writer http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		sigolo.Errorf("%s: %+v", message, err)
	} else {
		sigolo.Debugf("%s: %v", message, err)
	}
	writeJson(writer, status, NewErrorResponse(message, err))
}
