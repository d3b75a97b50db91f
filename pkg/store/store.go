// Package store implements the schema-versioned container stores on top of
// BadgerDB.
//
// Every variant exposes the same capability set: a metadata table of
// unsigned counters, a block-data table of block records, a lazy block
// iterator scoped to one container and a key filter, and atomic batches.
//
//	V1  one private badger directory per container, single keyspace
//	V2  one private badger directory per container, partitioned keyspace
//	V3  one shared badger directory per volume, keys scoped by container prefix
//
// The variant is resolved once at open time by SchemaVersion.
package store

import (
	"fmt"

	"github.com/marmos91/kvcontainer/pkg/block"
)

// SchemaVersion is the on-disk layout revision of a container store.
type SchemaVersion string

const (
	SchemaV1 SchemaVersion = "1"
	SchemaV2 SchemaVersion = "2"
	SchemaV3 SchemaVersion = "3"
)

// Valid reports whether v is a schema version this build understands.
func (v SchemaVersion) Valid() bool {
	switch v {
	case SchemaV1, SchemaV2, SchemaV3:
		return true
	}
	return false
}

// Shared reports whether stores of this version are shared per volume.
func (v SchemaVersion) Shared() bool {
	return v == SchemaV3
}

// ContainerPrefix returns the key prefix scoping a container in a shared
// (V3) store. Ids are fixed width so no prefix is a prefix of another.
func ContainerPrefix(containerID int64) string {
	return fmt.Sprintf("%016x|", uint64(containerID))
}

// Store is an open container store of any schema version.
type Store interface {
	// SchemaVersion returns the variant this store was opened as.
	SchemaVersion() SchemaVersion

	// Path returns the store directory.
	Path() string

	MetadataTable() MetadataTable
	BlockDataTable() BlockDataTable

	// BlockIterator returns a lazy iterator over the blocks of one container
	// whose container-local keys pass filter.
	BlockIterator(containerID int64, filter KeyFilter) (BlockIterator, error)

	// ContainerPrefix returns the key prefix for containerID: empty for the
	// private variants.
	ContainerPrefix(containerID int64) string

	// NewBatch starts a batch of writes across both tables.
	NewBatch() *Batch

	// CommitBatch applies all operations of b atomically.
	CommitBatch(b *Batch) error

	// RemoveContainer deletes every metadata and block key of containerID.
	// Only meaningful for shared stores; private stores are removed whole.
	RemoveContainer(containerID int64) error

	// Close stops the store and releases its directory lock.
	Close() error

	// Closed reports whether Close has been called.
	Closed() bool
}

// MetadataTable maps string keys to unsigned counters.
type MetadataTable interface {
	// Get returns the counter and whether it was present.
	Get(key string) (uint64, bool, error)
	Put(key string, value uint64) error
	Delete(key string) error
	PutWithBatch(b *Batch, key string, value uint64)
	DeleteWithBatch(b *Batch, key string)
}

// KeyValue is one entry returned by a block table range scan.
type KeyValue struct {
	Key   string
	Value *block.Data
}

// BlockDataTable maps block keys to block records.
type BlockDataTable interface {
	// Get returns the record under key or a NotFound error.
	Get(key string) (*block.Data, error)
	Put(key string, value *block.Data) error
	Delete(key string) error
	PutWithBatch(b *Batch, key string, value *block.Data) error
	DeleteWithBatch(b *Batch, key string)

	// GetRangeKVs returns up to count entries under prefix, starting at
	// startKey (or the beginning of prefix when empty), skipping keys that
	// fail any filter. Filters see the key with prefix stripped.
	GetRangeKVs(startKey string, count int, prefix string, filters ...KeyFilter) ([]KeyValue, error)

	// GetSequentialRangeKVs is like GetRangeKVs but stops at the first key
	// that fails a filter once at least one key has matched.
	GetSequentialRangeKVs(startKey string, count int, prefix string, filters ...KeyFilter) ([]KeyValue, error)

	// Count returns the number of keys under prefix passing all filters,
	// without decoding values.
	Count(prefix string, filters ...KeyFilter) (int, error)
}

// BlockIterator iterates the blocks of one container lazily.
//
// NextBlock always advances: when a record fails to decode it returns a
// BlockParse error and the next call continues with the following entry.
type BlockIterator interface {
	HasNext() bool
	NextBlock() (*block.Data, error)
	SeekToFirst()
	Close() error
}

// Options configures the underlying badger instance.
type Options struct {
	// SyncWrites makes every commit fsync before returning.
	SyncWrites bool

	// MemTableSize is the size of each memtable in bytes.
	MemTableSize int64

	// BlockCacheSize is the block cache size in bytes. Zero disables it.
	BlockCacheSize int64

	// IndexCacheSize is the index cache size in bytes. Zero keeps indices in memory.
	IndexCacheSize int64

	// ValueLogFileSize is the maximum size of one value log file in bytes.
	ValueLogFileSize int64

	// NumVersionsToKeep is how many versions of each key badger retains.
	NumVersionsToKeep int
}

// DefaultOptions returns options sized for a node hosting many containers.
func DefaultOptions() Options {
	return Options{
		SyncWrites:        true,
		MemTableSize:      16 << 20,
		BlockCacheSize:    32 << 20,
		IndexCacheSize:    0,
		ValueLogFileSize:  64 << 20,
		NumVersionsToKeep: 1,
	}
}
