package storage

import (
	"sort"
	"sync"
)

type memoryTable struct {
	records map[uint64][]byte
	free    map[uint64]bool
}

// MemoryStore keeps all records in maps. It's used for tests and for runs without a database.
type MemoryStore struct {
	sync.Mutex
	tables map[string]*memoryTable
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: map[string]*memoryTable{},
	}
}

func (s *MemoryStore) table(name string) *memoryTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memoryTable{
			records: map[uint64][]byte{},
			free:    map[uint64]bool{},
		}
		s.tables[name] = t
	}
	return t
}

func (s *MemoryStore) Load(table string, id uint64) ([]byte, bool, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	data, ok := s.table(table).records[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemoryStore) Save(table string, id uint64, data []byte) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return ErrClosed
	}

	t := s.table(table)
	t.records[id] = append([]byte(nil), data...)
	delete(t.free, id)
	return nil
}

func (s *MemoryStore) Erase(table string, id uint64) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return ErrClosed
	}

	t := s.table(table)
	delete(t.records, id)
	t.free[id] = true
	return nil
}

func (s *MemoryStore) UsedIDs(table string) ([]uint64, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	return s.usedIDs(table), nil
}

func (s *MemoryStore) usedIDs(table string) []uint64 {
	var ids []uint64
	for id := range s.table(table).records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStore) FreeIDs(table string) ([]uint64, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var free []uint64
	for id := range s.table(table).free {
		free = append(free, id)
	}
	return withNextUnused(free, s.usedIDs(table)), nil
}

func (s *MemoryStore) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	return nil
}
