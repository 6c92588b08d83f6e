package tile

import (
	"math"
	"testing"
	"trackmap/cache"
	"trackmap/common"
	"trackmap/geometry"
	"trackmap/storage"
	"trackmap/util"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

func newTestStore(t *testing.T, store storage.Store, options cache.Options[uint64, *Tile]) *Store {
	grid, err := common.NewGrid(1)
	util.AssertNil(t, err)
	tiles, err := NewStore(grid, store, options)
	util.AssertNil(t, err)
	return tiles
}

func TestStore_addNodeAndReload(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestStore(t, memory, cache.Options[uint64, *Tile]{})

	// Act
	ref, err := tiles.AddNode(Node{Position: orb.Point{10.5, 53.5}, Heading: 90, Observations: 1})
	util.AssertNil(t, err)
	util.AssertNil(t, tiles.Close())

	tiles = newTestStore(t, memory, cache.Options[uint64, *Tile]{})
	handle, err := tiles.Checkout(ref.Tile)

	// Assert
	util.AssertNil(t, err)
	defer handle.Release()
	util.AssertEqual(t, uint64(143*360+190), ref.Tile)
	util.AssertEqual(t, 1, handle.Tile().Len())
	node, ok := handle.Tile().Node(ref.ID)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, orb.Point{10.5, 53.5}, node.Position)
}

func TestStore_emptyTilesAreNotPersisted(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestStore(t, memory, cache.Options[uint64, *Tile]{})

	// Act
	handle, err := tiles.CheckoutAt(orb.Point{10.5, 53.5})
	util.AssertNil(t, err)
	util.AssertEqual(t, 0, handle.Tile().Len())
	util.AssertEqual(t, tiles.Grid().Bound(common.CellIndex{190, 143}), handle.Tile().Bound())
	handle.Release()
	util.AssertNil(t, tiles.Close())

	// Assert
	used, err := memory.UsedIDs(Table)
	util.AssertNil(t, err)
	util.AssertEqual(t, 0, len(used))
}

func TestStore_evictedTilesAreSaved(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestStore(t, memory, cache.Options[uint64, *Tile]{MaxObjects: 1})

	// Act
	first, err := tiles.AddNode(Node{Position: orb.Point{10.5, 53.5}})
	util.AssertNil(t, err)
	second, err := tiles.AddNode(Node{Position: orb.Point{12.5, 53.5}})
	util.AssertNil(t, err)

	// Assert
	util.AssertEqual(t, 1, tiles.Len())
	_, ok, err := memory.Load(Table, first.Tile)
	util.AssertNil(t, err)
	util.AssertTrue(t, ok)
	_, ok, err = memory.Load(Table, second.Tile)
	util.AssertNil(t, err)
	util.AssertFalse(t, ok)

	handle, err := tiles.Checkout(first.Tile)
	util.AssertNil(t, err)
	util.AssertEqual(t, 1, handle.Tile().Len())
	handle.Release()
}

func TestStore_queriesAcrossTiles(t *testing.T) {
	// Arrange
	tiles := newTestStore(t, nil, cache.Options[uint64, *Tile]{})
	for _, position := range []orb.Point{{10.98, 53.5}, {11.01, 53.5}, {11.5, 53.5}, {10.9, 53.9}} {
		_, err := tiles.AddNode(Node{Position: position})
		util.AssertNil(t, err)
	}

	// Act
	near, err := tiles.NodesNear(orb.Point{11, 53.5}, 0.05, 0, 180)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 2, len(near))
	util.AssertEqual(t, orb.Point{11.01, 53.5}, near[0].Node.Position)
	util.AssertEqual(t, orb.Point{10.98, 53.5}, near[1].Node.Position)
	util.AssertTrue(t, near[0].Tile != near[1].Tile)

	// Act
	inRectangle, err := tiles.NodesInRectangle(geometry.NewRectangle(orb.Point{10.5, 53}, orb.Point{11.6, 53.8}))

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 3, len(inRectangle))
}

func TestStore_queryAreaTooLarge(t *testing.T) {
	// Arrange
	tiles := newTestStore(t, nil, cache.Options[uint64, *Tile]{})

	// Act
	_, err := tiles.NodesInRectangle(geometry.NewRectangle(orb.Point{-180, -90}, orb.Point{180, 90}))

	// Assert
	util.AssertTrue(t, errors.Is(err, ErrQueryTooLarge))
	util.AssertEqual(t, 0, tiles.Len())

	// Act
	_, err = tiles.NodesNear(orb.Point{10, 53}, 1000, 0, 180)

	// Assert
	util.AssertTrue(t, errors.Is(err, ErrQueryTooLarge))
	util.AssertEqual(t, 0, tiles.Len())
}

func TestStore_queryAreaNotFinite(t *testing.T) {
	// Arrange
	tiles := newTestStore(t, nil, cache.Options[uint64, *Tile]{})

	// Act
	_, err := tiles.NodesNear(orb.Point{10, 53}, math.Inf(1), 0, 180)

	// Assert
	util.AssertTrue(t, errors.Is(err, ErrInvalidQuery))

	// Act
	_, err = tiles.NodesInRectangle(geometry.NewRectangle(orb.Point{math.NaN(), 53}, orb.Point{11, 54}))

	// Assert
	util.AssertTrue(t, errors.Is(err, ErrInvalidQuery))
}

func TestStore_addFixOnFloatingPointCellEdge(t *testing.T) {
	// Arrange
	grid, err := common.NewGrid(0.1)
	util.AssertNil(t, err)
	tiles, err := NewStore(grid, nil, cache.Options[uint64, *Tile]{})
	util.AssertNil(t, err)

	for _, position := range []orb.Point{{0.3, 50}, {0.7, 50.3}, {-0.3, -0.1}, {180, 90}} {
		// Act
		ref, merged, err := tiles.AddFix(position, 0, 0.0001, 30)

		// Assert
		util.AssertNil(t, err)
		util.AssertFalse(t, merged)
		util.AssertEqual(t, position, ref.Node.Position)
	}
}

func TestStore_prefetch(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestStore(t, memory, cache.Options[uint64, *Tile]{})
	ref, err := tiles.AddNode(Node{Position: orb.Point{10.5, 53.5}})
	util.AssertNil(t, err)
	util.AssertNil(t, tiles.Close())
	tiles = newTestStore(t, memory, cache.Options[uint64, *Tile]{})
	defer tiles.Close()

	done := make(chan error, 1)

	// Act
	handle, ok, err := tiles.Prefetch(ref.Tile, func(id uint64, err error) {
		done <- err
	})

	// Assert
	util.AssertNil(t, err)
	util.AssertFalse(t, ok)
	util.AssertNil(t, handle)
	util.AssertNil(t, <-done)

	handle, ok, err = tiles.Prefetch(ref.Tile, nil)
	util.AssertNil(t, err)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 1, handle.Tile().Len())
	handle.Release()
}

func TestStore_invalidTileID(t *testing.T) {
	// Arrange
	tiles := newTestStore(t, nil, cache.Options[uint64, *Tile]{})

	// Act
	_, err := tiles.Checkout(360 * 180)

	// Assert
	util.AssertNotNil(t, err)
}

func TestStore_compressedLevelDB(t *testing.T) {
	// Arrange
	levelDB, err := storage.OpenLevelDB(t.TempDir())
	util.AssertNil(t, err)
	compressed, err := storage.NewCompressed(levelDB, storage.CompressionLZ4)
	util.AssertNil(t, err)
	defer compressed.Close()
	tiles := newTestStore(t, compressed, cache.Options[uint64, *Tile]{})

	for i := 0; i < 100; i++ {
		_, err = tiles.AddNode(Node{Position: orb.Point{10.001 + float64(i)*0.001, 53.5}, Observations: 1})
		util.AssertNil(t, err)
	}
	util.AssertNil(t, tiles.Close())

	// Act
	tiles = newTestStore(t, compressed, cache.Options[uint64, *Tile]{})
	nodes, err := tiles.NodesInRectangle(geometry.NewRectangle(orb.Point{10, 53}, orb.Point{10.0505, 54}))

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 50, len(nodes))
}

func TestStore_addFix(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestStore(t, memory, cache.Options[uint64, *Tile]{})

	// Act
	first, merged, err := tiles.AddFix(orb.Point{10.5, 53.5}, 90, 0.01, 30)
	util.AssertNil(t, err)
	util.AssertFalse(t, merged)

	second, merged, err := tiles.AddFix(orb.Point{10.504, 53.5}, 80, 0.01, 30)
	util.AssertNil(t, err)
	util.AssertTrue(t, merged)

	third, merged, err := tiles.AddFix(orb.Point{10.504, 53.5}, 270, 0.01, 30)
	util.AssertNil(t, err)
	util.AssertFalse(t, merged)

	// Assert
	util.AssertEqual(t, first.ID, second.ID)
	util.AssertEqual(t, 2, second.Node.Observations)
	util.AssertApprox(t, 10.502, second.Node.Position.Lon(), 0.0000001)
	util.AssertApprox(t, 85, second.Node.Heading, 0.0000001)
	util.AssertTrue(t, third.ID != first.ID)
	util.AssertEqual(t, 1, third.Node.Observations)

	util.AssertNil(t, tiles.Close())
	_, ok, err := memory.Load(Table, first.Tile)
	util.AssertNil(t, err)
	util.AssertTrue(t, ok)
}

func TestStore_nodesOfTile(t *testing.T) {
	// Arrange
	memory := storage.NewMemoryStore()
	tiles := newTestStore(t, memory, cache.Options[uint64, *Tile]{})
	ref, err := tiles.AddNode(Node{Position: orb.Point{10.5, 53.5}, Observations: 1})
	util.AssertNil(t, err)
	_, err = tiles.AddNode(Node{Position: orb.Point{10.6, 53.5}, Observations: 1})
	util.AssertNil(t, err)
	util.AssertNil(t, tiles.Close())
	tiles = newTestStore(t, memory, cache.Options[uint64, *Tile]{})
	defer tiles.Close()

	done := make(chan error, 1)

	// Act
	nodes, ok, err := tiles.NodesOfTile(ref.Tile, func(id uint64, err error) {
		done <- err
	})

	// Assert
	util.AssertNil(t, err)
	util.AssertFalse(t, ok)
	util.AssertEqual(t, 0, len(nodes))
	util.AssertNil(t, <-done)

	// Act
	nodes, ok, err = tiles.NodesOfTile(ref.Tile, nil)

	// Assert
	util.AssertNil(t, err)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 2, len(nodes))
	util.AssertEqual(t, 0, nodes[0].ID)
	util.AssertEqual(t, orb.Point{10.6, 53.5}, nodes[1].Node.Position)
}
