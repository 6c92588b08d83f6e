package tile

import (
	"sort"
	"trackmap/cache"
	"trackmap/common"
	"trackmap/geometry"
	"trackmap/storage"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

const (
	Table = "tiles"

	// MaxQueryTiles limits the number of tiles a single area query may check out.
	MaxQueryTiles = 4096
)

var (
	ErrInvalidQuery  = errors.New("Query area is not finite")
	ErrQueryTooLarge = errors.New("Query area covers too many tiles")
)

// NodeRef identifies a node globally.
type NodeRef struct {
	Tile uint64
	ID   int
	Node Node
}

// Handle is a checkout of a tile. Absent tiles are handed out empty and only persisted once they're modified.
type Handle struct {
	handle *cache.Handle[uint64, *Tile]
	tile   *Tile
}

func (h *Handle) ID() uint64 { return h.handle.Key() }

func (h *Handle) Tile() *Tile { return h.tile }

// Modify calls the function with the tile and marks the tile as dirty when the function succeeded. Tile operations
// returning an error leave the tile unchanged.
func (h *Handle) Modify(f func(tile *Tile) error) error {
	err := f(h.tile)
	if err != nil {
		return err
	}
	h.handle.MarkDirty()
	return nil
}

func (h *Handle) Release() {
	h.handle.Release()
}

// Store hands out the tiles of a grid through a cache.
type Store struct {
	grid  common.Grid
	cache *cache.Cache[uint64, *Tile]
}

// NewStore creates the tile cache. The persistence and size estimation of the options are set here, a nil store
// results in a non-persistent cache.
func NewStore(grid common.Grid, store storage.Store, options cache.Options[uint64, *Tile]) (*Store, error) {
	if store == nil {
		options.NonPersistent = true
	} else {
		options.Persistence = cache.NewStorePersistence[uint64, *Tile](store, Table, NewCodec(grid))
	}
	options.SizeOf = func(tile *Tile) int64 {
		return tile.SizeEstimate()
	}

	tileCache, err := cache.New(options)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create tile cache")
	}

	return &Store{
		grid:  grid,
		cache: tileCache,
	}, nil
}

func (s *Store) Grid() common.Grid { return s.grid }

// Checkout returns the tile with the given ID. It must be released after use.
func (s *Store) Checkout(id uint64) (*Handle, error) {
	cell, err := s.grid.CellOfTile(id)
	if err != nil {
		return nil, err
	}

	handle, err := s.cache.Get(id)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to check out tile %d", id)
	}
	return s.wrap(handle, cell), nil
}

// CheckoutAt returns the tile containing the position.
func (s *Store) CheckoutAt(position orb.Point) (*Handle, error) {
	return s.Checkout(s.grid.TileID(s.grid.CellOf(position)))
}

// Prefetch returns the tile if it's resident. Otherwise, it's loaded in the background and the notifier is called once
// it's available.
func (s *Store) Prefetch(id uint64, notifier cache.Notifier[uint64]) (*Handle, bool, error) {
	cell, err := s.grid.CellOfTile(id)
	if err != nil {
		return nil, false, err
	}

	handle, ok := s.cache.GetOrPrefetch(id, notifier)
	if !ok {
		return nil, false, nil
	}
	return s.wrap(handle, cell), true, nil
}

func (s *Store) wrap(handle *cache.Handle[uint64, *Tile], cell common.CellIndex) *Handle {
	tile := handle.Value()
	if !handle.Found() {
		tile = handle.Fill(NewForCell(s.grid, cell))
	}
	return &Handle{
		handle: handle,
		tile:   tile,
	}
}

// AddNode stores the node in the tile containing its position.
func (s *Store) AddNode(node Node) (NodeRef, error) {
	handle, err := s.CheckoutAt(node.Position)
	if err != nil {
		return NodeRef{}, err
	}
	defer handle.Release()

	var id int
	err = handle.Modify(func(tile *Tile) error {
		var addErr error
		id, addErr = tile.AddNode(node)
		return addErr
	})
	if err != nil {
		return NodeRef{}, err
	}

	node, _ = handle.Tile().Node(id)
	return NodeRef{Tile: handle.ID(), ID: id, Node: node}, nil
}

// AddFix merges a GPS fix into the closest node of its tile within the radius whose heading differs at most by the
// tolerance. A new node is created when there's no such node. The returned flag is true when the fix was merged.
func (s *Store) AddFix(position orb.Point, heading float64, radius float64, tolerance float64) (NodeRef, bool, error) {
	handle, err := s.CheckoutAt(position)
	if err != nil {
		return NodeRef{}, false, err
	}
	defer handle.Release()

	var node Node
	var id int
	merged := false
	err = handle.Modify(func(tile *Tile) error {
		candidates := tile.NodesNear(position, radius, heading, tolerance)
		if len(candidates) > 0 {
			var averageErr error
			id = candidates[0]
			node, averageErr = tile.AverageFix(id, position, heading)
			if averageErr == nil {
				merged = true
				return nil
			}
			if !errors.Is(averageErr, ErrOutsideTile) {
				return averageErr
			}
			sigolo.Debugf("Averaged node %d leaves tile %d, add fix as new node", id, tile.ID())
		}

		var addErr error
		node = Node{Position: position, Heading: NormalizeHeading(heading), Observations: 1}
		id, addErr = tile.AddNode(node)
		return addErr
	})
	if err != nil {
		return NodeRef{}, false, errors.Wrapf(err, "Unable to add fix at %v to tile %d", position, handle.ID())
	}

	return NodeRef{Tile: handle.ID(), ID: id, Node: node}, merged, nil
}

// NodesOfTile returns all nodes of a resident tile. Tiles that aren't resident are prefetched and the notifier is called
// once they're available, the returned flag is false then.
func (s *Store) NodesOfTile(id uint64, notifier cache.Notifier[uint64]) ([]NodeRef, bool, error) {
	handle, ok, err := s.Prefetch(id, notifier)
	if err != nil || !ok {
		return nil, false, err
	}
	defer handle.Release()

	var result []NodeRef
	handle.Tile().Each(func(nodeID int, node Node) bool {
		result = append(result, NodeRef{Tile: id, ID: nodeID, Node: node})
		return true
	})
	return result, true, nil
}

// NodesInRectangle collects the nodes of all tiles touched by the rectangle.
func (s *Store) NodesInRectangle(rectangle geometry.Rectangle) ([]NodeRef, error) {
	var result []NodeRef

	err := s.eachTile(rectangle, func(tile *Tile) {
		for _, id := range tile.NodesInRectangle(rectangle) {
			node, _ := tile.Node(id)
			result = append(result, NodeRef{Tile: tile.ID(), ID: id, Node: node})
		}
	})

	return result, err
}

// NodesNear collects matching nodes of all tiles within the radius, see Tile.NodesNear. The closest node comes first.
func (s *Store) NodesNear(position orb.Point, radius float64, heading float64, tolerance float64) ([]NodeRef, error) {
	var result []NodeRef

	err := s.eachTile(geometry.RectangleAround(position, radius), func(tile *Tile) {
		for _, id := range tile.NodesNear(position, radius, heading, tolerance) {
			node, _ := tile.Node(id)
			result = append(result, NodeRef{Tile: tile.ID(), ID: id, Node: node})
		}
	})

	sort.SliceStable(result, func(i, j int) bool {
		return planar.Distance(position, result[i].Node.Position) < planar.Distance(position, result[j].Node.Position)
	})
	return result, err
}

func (s *Store) eachTile(rectangle geometry.Rectangle, f func(tile *Tile)) error {
	if !rectangle.IsFinite() {
		return errors.Wrapf(ErrInvalidQuery, "Unable to query %s", rectangle)
	}

	extent := s.grid.Extent(rectangle)
	if extent.Count() > MaxQueryTiles {
		return errors.Wrapf(ErrQueryTooLarge, "Unable to query %s covering %d tiles, at most %d are allowed", rectangle, extent.Count(), MaxQueryTiles)
	}

	for _, cell := range extent.GetCellIndices() {
		id := s.grid.TileID(cell)

		handle, err := s.Checkout(id)
		if err != nil {
			return err
		}
		if handle.Tile().Len() > 0 {
			f(handle.Tile())
		}
		handle.Release()
	}
	return nil
}

// Erase removes the tile from the cache and the store.
func (s *Store) Erase(id uint64) error {
	return s.cache.Erase(id)
}

func (s *Store) Flush() error {
	return s.cache.FlushAll()
}

func (s *Store) Len() int { return s.cache.Len() }

func (s *Store) Size() int64 { return s.cache.Size() }

// Close flushes all modified tiles. The underlying storage.Store is not closed.
func (s *Store) Close() error {
	sigolo.Debugf("Close tile store with %d resident tiles", s.cache.Len())
	return s.cache.Close()
}
