package store

import (
	"fmt"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/kvcontainer/internal/logger"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
)

// ============================================================================
// Key Namespace Design
// ============================================================================
//
// Schema  Table        Physical key
// ===========================================================================
// V1      metadata     #BLOCKCOUNT, #BYTESUSED, ...
// V1      block data   <localID>, #deleting#<localID>
// V2      metadata     metadata/#BLOCKCOUNT
// V2      block data   block_data/<localID>, block_data/#deleting#<localID>
// V3      metadata     metadata/<containerPrefix>#BLOCKCOUNT
// V3      block data   block_data/<containerPrefix><localID>
//
// V1 keeps metadata and blocks in one keyspace, so scans over its block table
// must use LiveBlockFilter to skip the "#" metadata keys.

const (
	nsMetadata  = "metadata/"
	nsBlockData = "block_data/"
)

// kvStore is the badger-backed state common to every variant.
type kvStore struct {
	version  SchemaVersion
	path     string
	db       *badgerdb.DB
	metadata *metadataTable
	blocks   *blockTable
	closed   atomic.Bool
}

func newKVStore(version SchemaVersion, path string, db *badgerdb.DB, metaNS, blockNS string) *kvStore {
	s := &kvStore{version: version, path: path, db: db}
	s.metadata = &metadataTable{s: s, ns: metaNS}
	s.blocks = &blockTable{s: s, ns: blockNS}
	return s
}

func (s *kvStore) SchemaVersion() SchemaVersion { return s.version }
func (s *kvStore) Path() string                 { return s.path }
func (s *kvStore) MetadataTable() MetadataTable { return s.metadata }
func (s *kvStore) BlockDataTable() BlockDataTable {
	return s.blocks
}

func (s *kvStore) Closed() bool {
	return s.closed.Load()
}

func (s *kvStore) checkOpen() error {
	if s.closed.Load() {
		return containererrors.NewClosedError("store " + s.path)
	}
	return nil
}

func (s *kvStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store %s: %w", s.path, err)
	}
	logger.Debug("Store closed", logger.KeyStorePath, s.path, logger.KeySchemaVersion, string(s.version))
	return nil
}

// dropKeys deletes every key under the given physical prefixes.
func (s *kvStore) dropKeys(prefixes ...[]byte) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for _, prefix := range prefixes {
			opts := badgerdb.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ============================================================================
// Variants
// ============================================================================

// schemaOneStore keeps metadata and blocks in one undifferentiated keyspace.
type schemaOneStore struct {
	*kvStore
}

func (s *schemaOneStore) ContainerPrefix(int64) string { return "" }

func (s *schemaOneStore) BlockIterator(_ int64, filter KeyFilter) (BlockIterator, error) {
	return s.newBlockIterator("", filter)
}

func (s *schemaOneStore) RemoveContainer(int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.DropAll()
}

// schemaTwoStore partitions a private keyspace into metadata and block data.
type schemaTwoStore struct {
	*kvStore
}

func (s *schemaTwoStore) ContainerPrefix(int64) string { return "" }

func (s *schemaTwoStore) BlockIterator(_ int64, filter KeyFilter) (BlockIterator, error) {
	return s.newBlockIterator("", filter)
}

func (s *schemaTwoStore) RemoveContainer(int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.dropKeys([]byte(nsMetadata), []byte(nsBlockData))
	return err
}

// schemaThreeStore is the per-volume store shared by all V3 containers.
type schemaThreeStore struct {
	*kvStore
}

func (s *schemaThreeStore) ContainerPrefix(containerID int64) string {
	return ContainerPrefix(containerID)
}

func (s *schemaThreeStore) BlockIterator(containerID int64, filter KeyFilter) (BlockIterator, error) {
	return s.newBlockIterator(ContainerPrefix(containerID), filter)
}

func (s *schemaThreeStore) RemoveContainer(containerID int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	prefix := ContainerPrefix(containerID)
	n, err := s.dropKeys([]byte(nsMetadata+prefix), []byte(nsBlockData+prefix))
	if err != nil {
		return fmt.Errorf("failed to remove container %d from %s: %w", containerID, s.path, err)
	}
	logger.Debug("Removed container keys from shared store",
		logger.KeyContainerID, containerID,
		logger.KeyStorePath, s.path,
		logger.KeyCount, n)
	return nil
}

// ============================================================================
// Open / Create
// ============================================================================

// Open opens an existing store of the given schema version. An unknown
// version fails permanently with UnrecognizedSchemaVersion.
func Open(version SchemaVersion, path string, opts Options) (Store, error) {
	return open(version, path, opts, false)
}

// Create creates a new store at path, which must not exist yet.
func Create(version SchemaVersion, path string, opts Options) (Store, error) {
	return open(version, path, opts, true)
}

func open(version SchemaVersion, path string, opts Options, create bool) (Store, error) {
	if !version.Valid() {
		return nil, containererrors.NewUnrecognizedSchemaVersionError(string(version))
	}

	db, err := openBadger(path, opts, create)
	if err != nil {
		return nil, err
	}

	var s Store
	switch version {
	case SchemaV1:
		s = &schemaOneStore{newKVStore(version, path, db, "", "")}
	case SchemaV2:
		s = &schemaTwoStore{newKVStore(version, path, db, nsMetadata, nsBlockData)}
	case SchemaV3:
		s = &schemaThreeStore{newKVStore(version, path, db, nsMetadata, nsBlockData)}
	}

	logger.Debug("Store opened",
		logger.KeyStorePath, path,
		logger.KeySchemaVersion, string(version),
		"created", create)
	return s, nil
}
