package storage

import (
	"sort"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("Store is closed")

// Store persists binary records under integer ids. Records are grouped into tables, each table has its own id space.
// Freed ids are remembered so that they can be handed out again before new ids are used.
type Store interface {
	// Load returns the record with the given id. A missing record is not an error, the second return value is false then.
	Load(table string, id uint64) ([]byte, bool, error)

	Save(table string, id uint64, data []byte) error

	// Erase removes the record and marks its id as free.
	Erase(table string, id uint64) error

	// UsedIDs returns the ids of all stored records in ascending order.
	UsedIDs(table string) ([]uint64, error)

	// FreeIDs returns all erased ids that weren't reused yet in ascending order. The last element is always the next
	// unused id, which is larger than all used and free ids.
	FreeIDs(table string) ([]uint64, error)

	Close() error
}

// withNextUnused appends the smallest id larger than all given ids.
func withNextUnused(free []uint64, used []uint64) []uint64 {
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })

	next := uint64(0)
	if len(used) > 0 && used[len(used)-1]+1 > next {
		next = used[len(used)-1] + 1
	}
	if len(free) > 0 && free[len(free)-1]+1 > next {
		next = free[len(free)-1] + 1
	}

	return append(free, next)
}
