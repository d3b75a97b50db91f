package store

import (
	"encoding/binary"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/kvcontainer/pkg/block"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
)

// ============================================================================
// Metadata Table
// ============================================================================

// metadataTable stores counters as 8-byte big-endian values under
// namespace+key.
type metadataTable struct {
	s  *kvStore
	ns string
}

func (t *metadataTable) key(k string) []byte {
	return []byte(t.ns + k)
}

func encodeCounter(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func (t *metadataTable) Get(key string) (uint64, bool, error) {
	if err := t.s.checkOpen(); err != nil {
		return 0, false, err
	}

	var (
		value uint64
		found bool
	)
	err := t.s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(t.key(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("counter %q has %d bytes, want 8", key, len(val))
			}
			value = binary.BigEndian.Uint64(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, containererrors.NewIOError(t.s.path, "failed to read metadata "+key, err)
	}
	return value, found, nil
}

func (t *metadataTable) Put(key string, value uint64) error {
	if err := t.s.checkOpen(); err != nil {
		return err
	}
	return t.s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(t.key(key), encodeCounter(value))
	})
}

func (t *metadataTable) Delete(key string) error {
	if err := t.s.checkOpen(); err != nil {
		return err
	}
	return t.s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(t.key(key))
	})
}

func (t *metadataTable) PutWithBatch(b *Batch, key string, value uint64) {
	b.put(t.key(key), encodeCounter(value))
}

func (t *metadataTable) DeleteWithBatch(b *Batch, key string) {
	b.remove(t.key(key))
}

// ============================================================================
// Block Data Table
// ============================================================================

type blockTable struct {
	s  *kvStore
	ns string
}

func (t *blockTable) key(k string) []byte {
	return []byte(t.ns + k)
}

func (t *blockTable) Get(key string) (*block.Data, error) {
	if err := t.s.checkOpen(); err != nil {
		return nil, err
	}

	var raw []byte
	err := t.s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(t.key(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, containererrors.NewNotFoundError(key, "block")
	}
	if err != nil {
		return nil, containererrors.NewIOError(t.s.path, "failed to read block "+key, err)
	}
	return block.Decode(key, raw)
}

func (t *blockTable) Put(key string, value *block.Data) error {
	if err := t.s.checkOpen(); err != nil {
		return err
	}
	buf, err := block.Encode(value)
	if err != nil {
		return err
	}
	return t.s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(t.key(key), buf)
	})
}

func (t *blockTable) Delete(key string) error {
	if err := t.s.checkOpen(); err != nil {
		return err
	}
	return t.s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(t.key(key))
	})
}

func (t *blockTable) PutWithBatch(b *Batch, key string, value *block.Data) error {
	buf, err := block.Encode(value)
	if err != nil {
		return err
	}
	b.put(t.key(key), buf)
	return nil
}

func (t *blockTable) DeleteWithBatch(b *Batch, key string) {
	b.remove(t.key(key))
}

func (t *blockTable) GetRangeKVs(startKey string, count int, prefix string, filters ...KeyFilter) ([]KeyValue, error) {
	return t.rangeKVs(startKey, count, prefix, false, filters)
}

func (t *blockTable) GetSequentialRangeKVs(startKey string, count int, prefix string, filters ...KeyFilter) ([]KeyValue, error) {
	return t.rangeKVs(startKey, count, prefix, true, filters)
}

func (t *blockTable) rangeKVs(startKey string, count int, prefix string, sequential bool, filters []KeyFilter) ([]KeyValue, error) {
	if count <= 0 {
		return nil, containererrors.NewInvalidArgumentError(fmt.Sprintf("invalid range count %d", count))
	}
	if err := t.s.checkOpen(); err != nil {
		return nil, err
	}

	scope := t.key(prefix)
	start := scope
	if startKey != "" {
		start = t.key(startKey)
	}

	var result []KeyValue
	err := t.s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = scope

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(scope) && len(result) < count; it.Next() {
			item := it.Item()
			local := string(item.Key()[len(scope):])
			if !passes(local, filters) {
				if sequential && len(result) > 0 {
					break
				}
				continue
			}

			full := string(item.Key()[len(t.ns):])
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			d, err := block.Decode(full, raw)
			if err != nil {
				return err
			}
			result = append(result, KeyValue{Key: full, Value: d})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (t *blockTable) Count(prefix string, filters ...KeyFilter) (int, error) {
	if err := t.s.checkOpen(); err != nil {
		return 0, err
	}

	scope := t.key(prefix)
	n := 0
	err := t.s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = scope
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(scope); it.Next() {
			if passes(string(it.Item().Key()[len(scope):]), filters) {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, containererrors.NewIOError(t.s.path, "failed to count blocks", err)
	}
	return n, nil
}
