package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
	"trackmap/cache"
	"trackmap/common"
	"trackmap/metrics/prom"
	"trackmap/storage"
	"trackmap/tile"
	"trackmap/util"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestTiles(t *testing.T, store storage.Store, metrics cache.Metrics) *tile.Store {
	grid, err := common.NewGrid(1)
	util.AssertNil(t, err)
	tiles, err := tile.NewStore(grid, store, cache.Options[uint64, *tile.Tile]{Metrics: metrics})
	util.AssertNil(t, err)
	return tiles
}

func request(t *testing.T, router *mux.Router, method string, url string, body string) *httptest.ResponseRecorder {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, url, bodyReader))
	return recorder
}

func decodeFeatures(t *testing.T, recorder *httptest.ResponseRecorder) []*geojson.Feature {
	featureCollection, err := geojson.UnmarshalFeatureCollection(recorder.Body.Bytes())
	util.AssertNil(t, err)
	return featureCollection.Features
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	response := ErrorResponse{}
	err := json.Unmarshal(recorder.Body.Bytes(), &response)
	util.AssertNil(t, err)
	return response
}

func TestApi_nodesInBbox(t *testing.T) {
	// Arrange
	tiles := newTestTiles(t, nil, nil)
	for _, position := range []orb.Point{{10.5, 53.5}, {11.5, 53.5}, {12.5, 53.5}} {
		_, err := tiles.AddNode(tile.Node{Position: position, Observations: 1})
		util.AssertNil(t, err)
	}
	router := NewRouter(tiles, nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/nodes?bbox=10,53,12,54", "")

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, "application/geo+json", recorder.Header().Get("Content-Type"))
	features := decodeFeatures(t, recorder)
	util.AssertEqual(t, 2, len(features))
}

func TestApi_nodesInBboxInvalid(t *testing.T) {
	// Arrange
	router := NewRouter(newTestTiles(t, nil, nil), nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/nodes?bbox=10,53", "")

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	response := decodeError(t, recorder)
	util.AssertEqual(t, "Invalid bbox parameter", response.Error)
	util.AssertEqual(t, "Expected four comma separated numbers in bbox '10,53' but found 2", response.Details)
}

func TestApi_nodesInBboxNotFinite(t *testing.T) {
	// Arrange
	router := NewRouter(newTestTiles(t, nil, nil), nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/nodes?bbox=NaN,53,12,54", "")

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, "Invalid bbox parameter", decodeError(t, recorder).Error)
}

func TestApi_nodesInBboxTooLarge(t *testing.T) {
	// Arrange
	tiles := newTestTiles(t, nil, nil)
	router := NewRouter(tiles, nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/nodes?bbox=-180,-90,180,90", "")

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, "Error querying nodes", decodeError(t, recorder).Error)
	util.AssertEqual(t, 0, tiles.Len())
}

func TestApi_nodesNearTooLarge(t *testing.T) {
	// Arrange
	tiles := newTestTiles(t, nil, nil)
	router := NewRouter(tiles, nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/nodes/near?lon=10.5&lat=53.5&radius=1e6", "")

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, 0, tiles.Len())

	// Act
	recorder = request(t, router, http.MethodGet, "/nodes/near?lon=10.5&lat=53.5&radius=Inf", "")

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, "Invalid query parameter", decodeError(t, recorder).Error)
}

func TestApi_nodesNear(t *testing.T) {
	// Arrange
	tiles := newTestTiles(t, nil, nil)
	for _, node := range []tile.Node{
		{Position: orb.Point{10.5, 53.5}, Heading: 0},
		{Position: orb.Point{10.501, 53.5}, Heading: 180},
		{Position: orb.Point{10.6, 53.5}, Heading: 0},
	} {
		_, err := tiles.AddNode(node)
		util.AssertNil(t, err)
	}
	router := NewRouter(tiles, nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/nodes/near?lon=10.5&lat=53.5&radius=0.01", "")

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, 2, len(decodeFeatures(t, recorder)))

	// Act
	recorder = request(t, router, http.MethodGet, "/nodes/near?lon=10.5&lat=53.5&radius=0.01&heading=10&tolerance=20", "")

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	features := decodeFeatures(t, recorder)
	util.AssertEqual(t, 1, len(features))
	util.AssertEqual(t, orb.Point{10.5, 53.5}, features[0].Geometry)
}

func TestApi_nodesNearMissingParameter(t *testing.T) {
	// Arrange
	router := NewRouter(newTestTiles(t, nil, nil), nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/nodes/near?lon=10.5&radius=0.01", "")

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, "Missing parameter 'lat'", decodeError(t, recorder).Details)
}

func TestApi_fixes(t *testing.T) {
	// Arrange
	router := NewRouter(newTestTiles(t, nil, nil), nil)

	// Act
	first := request(t, router, http.MethodPost, "/fixes", `{"lon": 10.5, "lat": 53.5, "heading": 90}`)
	second := request(t, router, http.MethodPost, "/fixes", `{"lon": 10.5001, "lat": 53.5, "heading": 100}`)

	// Assert
	util.AssertEqual(t, http.StatusOK, first.Code)
	util.AssertEqual(t, http.StatusOK, second.Code)

	firstResponse := FixResponse{}
	util.AssertNil(t, json.Unmarshal(first.Body.Bytes(), &firstResponse))
	util.AssertFalse(t, firstResponse.Merged)
	util.AssertEqual(t, 1, firstResponse.Observations)

	secondResponse := FixResponse{}
	util.AssertNil(t, json.Unmarshal(second.Body.Bytes(), &secondResponse))
	util.AssertTrue(t, secondResponse.Merged)
	util.AssertEqual(t, firstResponse.ID, secondResponse.ID)
	util.AssertEqual(t, 2, secondResponse.Observations)
	util.AssertApprox(t, 95, secondResponse.Heading, 0.000001)
}

func TestApi_fixesInvalidBody(t *testing.T) {
	// Arrange
	router := NewRouter(newTestTiles(t, nil, nil), nil)

	// Act
	recorder := request(t, router, http.MethodPost, "/fixes", `{"lon": "east"}`)

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, "Error reading fix from HTTP body", decodeError(t, recorder).Error)
}

func TestApi_tileNodesArePrefetched(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestTiles(t, memory, nil)
	ref, err := tiles.AddNode(tile.Node{Position: orb.Point{10.5, 53.5}, Observations: 1})
	util.AssertNil(t, err)
	util.AssertNil(t, tiles.Close())

	tiles = newTestTiles(t, memory, nil)
	defer tiles.Close()
	router := NewRouter(tiles, nil)
	url := "/tiles/" + strconv.FormatUint(ref.Tile, 10) + "/nodes"

	// Act
	recorder := request(t, router, http.MethodGet, url, "")

	// Assert
	util.AssertEqual(t, http.StatusAccepted, recorder.Code)
	util.AssertEqual(t, "1", recorder.Header().Get("Retry-After"))

	deadline := time.Now().Add(5 * time.Second)
	for recorder.Code == http.StatusAccepted && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		recorder = request(t, router, http.MethodGet, url, "")
	}
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, 1, len(decodeFeatures(t, recorder)))
}

func TestApi_invalidTileID(t *testing.T) {
	// Arrange
	router := NewRouter(newTestTiles(t, nil, nil), nil)

	// Act
	recorder := request(t, router, http.MethodGet, "/tiles/abc/nodes", "")
	outsideGrid := request(t, router, http.MethodGet, "/tiles/64800/nodes", "")

	// Assert
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, http.StatusBadRequest, outsideGrid.Code)
}

func TestApi_eraseTile(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestTiles(t, memory, nil)
	ref, err := tiles.AddNode(tile.Node{Position: orb.Point{10.5, 53.5}, Observations: 1})
	util.AssertNil(t, err)
	util.AssertNil(t, tiles.Flush())
	router := NewRouter(tiles, nil)

	// Act
	recorder := request(t, router, http.MethodDelete, "/tiles/"+strconv.FormatUint(ref.Tile, 10), "")

	// Assert
	util.AssertEqual(t, http.StatusNoContent, recorder.Code)
	used, err := memory.UsedIDs(tile.Table)
	util.AssertNil(t, err)
	util.AssertEqual(t, 0, len(used))

	recorder = request(t, router, http.MethodGet, "/nodes?bbox=10,53,11,54", "")
	util.AssertEqual(t, 0, len(decodeFeatures(t, recorder)))
}

func TestApi_metrics(t *testing.T) {
	// Arrange
	registry := prometheus.NewRegistry()
	tiles := newTestTiles(t, nil, prom.New(registry, "trackmap", "tiles"))
	router := NewRouter(tiles, registry)
	_, err := tiles.AddNode(tile.Node{Position: orb.Point{10.5, 53.5}, Observations: 1})
	util.AssertNil(t, err)

	// Act
	recorder := request(t, router, http.MethodGet, "/metrics", "")

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertMatch(t, `trackmap_tiles_misses_total 1`, recorder.Body.String())
	util.AssertMatch(t, `trackmap_tiles_size_entries 1`, recorder.Body.String())
}

func TestServe_stopsWhenContextIsDone(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "0", newTestTiles(t, nil, nil), nil)
	}()

	// Act
	cancel()

	// Assert
	select {
	case err := <-done:
		util.AssertNil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server didn't stop after the context was cancelled")
	}
}
