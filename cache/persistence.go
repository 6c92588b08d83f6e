package cache

import (
	"trackmap/storage"

	"github.com/pkg/errors"
)

// Persistence loads and saves cache values. A missing value is not an error, Load returns false as second value then.
type Persistence[K Key, V any] interface {
	Load(key K) (V, bool, error)
	Save(key K, value V) error
	Erase(key K) error

	// UsedKeys and FreeKeys are used to reconstruct the key space for Cache.Create. FreeKeys contains the next unused
	// key as last element.
	UsedKeys() ([]K, error)
	FreeKeys() ([]K, error)
}

// Codec converts values to and from their persisted binary form.
type Codec[K Key, V any] interface {
	Encode(value V) ([]byte, error)
	Decode(key K, data []byte) (V, error)
}

// StorePersistence stores encoded values in one table of a storage.Store.
type StorePersistence[K Key, V any] struct {
	store storage.Store
	table string
	codec Codec[K, V]
}

func NewStorePersistence[K Key, V any](store storage.Store, table string, codec Codec[K, V]) *StorePersistence[K, V] {
	return &StorePersistence[K, V]{
		store: store,
		table: table,
		codec: codec,
	}
}

var _ Persistence[uint64, []byte] = &StorePersistence[uint64, []byte]{}

func (p *StorePersistence[K, V]) Load(key K) (V, bool, error) {
	var value V

	data, ok, err := p.store.Load(p.table, uint64(key))
	if err != nil || !ok {
		return value, false, err
	}

	value, err = p.codec.Decode(key, data)
	if err != nil {
		return value, false, errors.Wrapf(err, "Unable to decode value %d of table %s", key, p.table)
	}

	return value, true, nil
}

func (p *StorePersistence[K, V]) Save(key K, value V) error {
	data, err := p.codec.Encode(value)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode value %d of table %s", key, p.table)
	}
	return p.store.Save(p.table, uint64(key), data)
}

func (p *StorePersistence[K, V]) Erase(key K) error {
	return p.store.Erase(p.table, uint64(key))
}

func (p *StorePersistence[K, V]) UsedKeys() ([]K, error) {
	ids, err := p.store.UsedIDs(p.table)
	return toKeys[K](ids), err
}

func (p *StorePersistence[K, V]) FreeKeys() ([]K, error) {
	ids, err := p.store.FreeIDs(p.table)
	return toKeys[K](ids), err
}

func toKeys[K Key](ids []uint64) []K {
	keys := make([]K, len(ids))
	for i, id := range ids {
		keys[i] = K(id)
	}
	return keys
}
