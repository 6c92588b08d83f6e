package storage

import (
	"encoding/binary"
	"sync"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

const (
	recordKind = byte('r')
	freeKind   = byte('f')
)

// LevelDBStore keeps all tables in one LevelDB database. Keys consist of the table name, a zero byte, a kind byte
// (record or free marker) and the big endian id, so that iterating over a prefix yields ascending ids.
type LevelDBStore struct {
	sync.RWMutex
	database *leveldb.DB
	path     string
}

func OpenLevelDB(path string) (*LevelDBStore, error) {
	database, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open LevelDB database at %s", path)
	}

	sigolo.Debugf("Opened LevelDB database at %s", path)

	return &LevelDBStore{
		database: database,
		path:     path,
	}, nil
}

func tablePrefix(table string, kind byte) []byte {
	prefix := make([]byte, 0, len(table)+2)
	prefix = append(prefix, table...)
	return append(prefix, 0, kind)
}

func tableKey(table string, kind byte, id uint64) []byte {
	key := tablePrefix(table, kind)
	return binary.BigEndian.AppendUint64(key, id)
}

func (s *LevelDBStore) Load(table string, id uint64) ([]byte, bool, error) {
	s.RLock()
	defer s.RUnlock()
	if s.database == nil {
		return nil, false, ErrClosed
	}

	data, err := s.database.Get(tableKey(table, recordKind, id), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "Unable to load record %d of table %s", id, table)
	}

	return data, true, nil
}

func (s *LevelDBStore) Save(table string, id uint64, data []byte) error {
	s.RLock()
	defer s.RUnlock()
	if s.database == nil {
		return ErrClosed
	}

	batch := new(leveldb.Batch)
	batch.Put(tableKey(table, recordKind, id), data)
	batch.Delete(tableKey(table, freeKind, id))

	err := s.database.Write(batch, nil)
	if err != nil {
		return errors.Wrapf(err, "Unable to save record %d of table %s", id, table)
	}
	return nil
}

func (s *LevelDBStore) Erase(table string, id uint64) error {
	s.RLock()
	defer s.RUnlock()
	if s.database == nil {
		return ErrClosed
	}

	batch := new(leveldb.Batch)
	batch.Delete(tableKey(table, recordKind, id))
	batch.Put(tableKey(table, freeKind, id), nil)

	err := s.database.Write(batch, nil)
	if err != nil {
		return errors.Wrapf(err, "Unable to erase record %d of table %s", id, table)
	}
	return nil
}

func (s *LevelDBStore) UsedIDs(table string) ([]uint64, error) {
	s.RLock()
	defer s.RUnlock()
	if s.database == nil {
		return nil, ErrClosed
	}

	return s.ids(table, recordKind)
}

func (s *LevelDBStore) FreeIDs(table string) ([]uint64, error) {
	s.RLock()
	defer s.RUnlock()
	if s.database == nil {
		return nil, ErrClosed
	}

	free, err := s.ids(table, freeKind)
	if err != nil {
		return nil, err
	}

	used, err := s.ids(table, recordKind)
	if err != nil {
		return nil, err
	}

	return withNextUnused(free, used), nil
}

func (s *LevelDBStore) ids(table string, kind byte) ([]uint64, error) {
	prefix := tablePrefix(table, kind)
	iter := s.database.NewIterator(ldb_util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ids []uint64
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(prefix)+8 {
			return nil, errors.Errorf("Invalid key of length %d in table %s", len(key), table)
		}
		ids = append(ids, binary.BigEndian.Uint64(key[len(prefix):]))
	}

	err := iter.Error()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to iterate over ids of table %s", table)
	}

	return ids, nil
}

func (s *LevelDBStore) Close() error {
	s.Lock()
	defer s.Unlock()
	if s.database == nil {
		return nil
	}

	err := s.database.Close()
	s.database = nil
	if err != nil {
		return errors.Wrapf(err, "Unable to close LevelDB database at %s", s.path)
	}

	sigolo.Debugf("Closed LevelDB database at %s", s.path)
	return nil
}
