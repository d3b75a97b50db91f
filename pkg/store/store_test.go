package store

import (
	"path/filepath"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/kvcontainer/pkg/block"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

func testOptions() Options {
	return Options{
		SyncWrites:        false,
		MemTableSize:      8 << 20,
		BlockCacheSize:    1 << 20,
		ValueLogFileSize:  4 << 20,
		NumVersionsToKeep: 1,
	}
}

func createStore(t *testing.T, version SchemaVersion) Store {
	t.Helper()
	s, err := Create(version, filepath.Join(t.TempDir(), "container.db"), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testBlock(containerID, localID int64, lengths ...uint64) *block.Data {
	d := block.NewData(block.ID{ContainerID: containerID, LocalID: localID})
	var offset uint64
	for i, n := range lengths {
		d.AddChunk(block.ChunkInfo{Name: "chunk_" + string(rune('a'+i)), Offset: offset, Len: n})
		offset += n
	}
	return d
}

func rawPut(t *testing.T, s Store, key string, value []byte) {
	t.Helper()
	var db *badgerdb.DB
	switch v := s.(type) {
	case *schemaOneStore:
		db = v.db
	case *schemaTwoStore:
		db = v.db
	case *schemaThreeStore:
		db = v.db
	}
	require.NotNil(t, db)
	require.NoError(t, db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	}))
}

func drain(t *testing.T, it BlockIterator) (blocks []*block.Data, parseErrors int) {
	t.Helper()
	for it.HasNext() {
		b, err := it.NextBlock()
		if err != nil {
			require.True(t, containererrors.IsBlockParse(err), "unexpected error: %v", err)
			parseErrors++
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, parseErrors
}

// ============================================================================
// Open / Create
// ============================================================================

func TestOpen_UnrecognizedSchemaVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "db")
	_, err := Open(SchemaVersion("4"), path, testOptions())
	require.Error(t, err)
	assert.Equal(t, containererrors.ErrUnrecognizedSchemaVersion, containererrors.CodeOf(err))

	_, err = Create(SchemaVersion(""), path, testOptions())
	assert.Equal(t, containererrors.ErrUnrecognizedSchemaVersion, containererrors.CodeOf(err))
}

func TestOpen_MissingStore(t *testing.T) {
	t.Parallel()

	_, err := Open(SchemaV2, filepath.Join(t.TempDir(), "absent.db"), testOptions())
	require.Error(t, err)
	assert.True(t, containererrors.IsMissingStoreFile(err))
}

func TestCreate_ExistingPath(t *testing.T) {
	t.Parallel()

	path := t.TempDir()
	_, err := Create(SchemaV1, path, testOptions())
	assert.Equal(t, containererrors.ErrAlreadyExists, containererrors.CodeOf(err))
}

func TestOpen_AlreadyOpenIsBusy(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV2)

	_, err := Open(SchemaV2, s.Path(), testOptions())
	require.Error(t, err)
	assert.True(t, containererrors.IsResourceBusy(err))
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.db")
	s, err := Create(SchemaV2, path, testOptions())
	require.NoError(t, err)
	require.NoError(t, s.MetadataTable().Put("#BLOCKCOUNT", 3))
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())

	s, err = Open(SchemaV2, path, testOptions())
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.MetadataTable().Get("#BLOCKCOUNT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), v)
}

func TestClosedStore(t *testing.T) {
	t.Parallel()

	s, err := Create(SchemaV1, filepath.Join(t.TempDir(), "c.db"), testOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is a no-op")

	_, _, err = s.MetadataTable().Get("#BCSID")
	assert.Equal(t, containererrors.ErrClosed, containererrors.CodeOf(err))
	_, err = s.BlockIterator(1, nil)
	assert.Equal(t, containererrors.ErrClosed, containererrors.CodeOf(err))
}

// ============================================================================
// Tables
// ============================================================================

func TestMetadataTable(t *testing.T) {
	t.Parallel()

	for _, version := range []SchemaVersion{SchemaV1, SchemaV2, SchemaV3} {
		t.Run("V"+string(version), func(t *testing.T) {
			s := createStore(t, version)
			mt := s.MetadataTable()

			_, ok, err := mt.Get("#BYTESUSED")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, mt.Put("#BYTESUSED", 1<<40))
			v, ok, err := mt.Get("#BYTESUSED")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint64(1<<40), v)

			require.NoError(t, mt.Delete("#BYTESUSED"))
			_, ok, err = mt.Get("#BYTESUSED")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBlockDataTable_GetPutDelete(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV2)
	bt := s.BlockDataTable()

	_, err := bt.Get("1")
	assert.True(t, containererrors.IsNotFound(err))

	b := testBlock(1, 1, 10, 20)
	require.NoError(t, bt.Put("1", b))

	got, err := bt.Get("1")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	require.NoError(t, bt.Delete("1"))
	_, err = bt.Get("1")
	assert.True(t, containererrors.IsNotFound(err))
}

func TestBatch_IsAtomicAcrossTables(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV2)
	b := s.NewBatch()

	require.NoError(t, s.BlockDataTable().PutWithBatch(b, "5", testBlock(1, 5, 100)))
	s.MetadataTable().PutWithBatch(b, "#BLOCKCOUNT", 1)
	s.MetadataTable().PutWithBatch(b, "#BYTESUSED", 100)
	assert.Equal(t, 3, b.Len())

	// Nothing is visible before commit.
	_, ok, err := s.MetadataTable().Get("#BLOCKCOUNT")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CommitBatch(b))
	assert.Equal(t, 0, b.Len())

	v, ok, err := s.MetadataTable().Get("#BYTESUSED")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), v)

	_, err = s.BlockDataTable().Get("5")
	require.NoError(t, err)
}

func TestBatch_ForeignStore(t *testing.T) {
	t.Parallel()

	a := createStore(t, SchemaV2)
	b := createStore(t, SchemaV2)

	batch := a.NewBatch()
	a.MetadataTable().PutWithBatch(batch, "#BCSID", 1)
	assert.Error(t, b.CommitBatch(batch))
}

func TestCount_V1SkipsMetadataKeys(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV1)
	require.NoError(t, s.MetadataTable().Put("#BLOCKCOUNT", 2))
	require.NoError(t, s.MetadataTable().Put("#BYTESUSED", 30))
	require.NoError(t, s.BlockDataTable().Put("1", testBlock(1, 1, 10)))
	require.NoError(t, s.BlockDataTable().Put("2", testBlock(1, 2, 20)))
	require.NoError(t, s.BlockDataTable().Put(DeletingKey("3"), testBlock(1, 3, 5)))

	live, err := s.BlockDataTable().Count("", LiveBlockFilter())
	require.NoError(t, err)
	assert.Equal(t, 2, live)

	deleting, err := s.BlockDataTable().Count("", DeletingBlockFilter())
	require.NoError(t, err)
	assert.Equal(t, 1, deleting)

	all, err := s.BlockDataTable().Count("")
	require.NoError(t, err)
	assert.Equal(t, 5, all)
}

func TestRangeKVs_SequentialStopsAtGap(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV2)
	bt := s.BlockDataTable()
	require.NoError(t, bt.Put("a1", testBlock(1, 1, 1)))
	require.NoError(t, bt.Put("a2", testBlock(1, 2, 1)))
	require.NoError(t, bt.Put("b1", testBlock(1, 3, 1)))
	require.NoError(t, bt.Put("a3x", testBlock(1, 4, 1)))
	require.NoError(t, bt.Put("c1", testBlock(1, 5, 1)))

	onlyA := NewKeyPrefixFilter().AddFilter("a", false)

	// Key order: a1 a2 a3x b1 c1
	kvs, err := bt.GetRangeKVs("", 10, "", onlyA)
	require.NoError(t, err)
	assert.Len(t, kvs, 3)

	kvs, err = bt.GetRangeKVs("", 2, "", onlyA)
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, "a1", kvs[0].Key)
	assert.Equal(t, "a2", kvs[1].Key)

	notA2 := KeyFilterFunc(func(k string) bool { return k != "a2" })
	kvs, err = bt.GetSequentialRangeKVs("", 10, "", notA2)
	require.NoError(t, err)
	require.Len(t, kvs, 1)
	assert.Equal(t, "a1", kvs[0].Key)

	kvs, err = bt.GetRangeKVs("b1", 10, "")
	require.NoError(t, err)
	assert.Len(t, kvs, 2)

	_, err = bt.GetRangeKVs("", 0, "")
	assert.Equal(t, containererrors.ErrInvalidArgument, containererrors.CodeOf(err))
}

// ============================================================================
// Iterator
// ============================================================================

func TestBlockIterator_FiltersAndSkipsCorruptBlocks(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV1)
	require.NoError(t, s.MetadataTable().Put("#BCSID", 9))
	require.NoError(t, s.BlockDataTable().Put("1", testBlock(1, 1, 100)))
	rawPut(t, s, "2", []byte{0xff, 0xff})
	require.NoError(t, s.BlockDataTable().Put("3", testBlock(1, 3, 100)))
	require.NoError(t, s.BlockDataTable().Put(DeletingKey("4"), testBlock(1, 4, 50)))

	it, err := s.BlockIterator(1, LiveBlockFilter())
	require.NoError(t, err)
	defer it.Close()

	blocks, parseErrors := drain(t, it)
	assert.Len(t, blocks, 2)
	assert.Equal(t, 1, parseErrors)

	it.SeekToFirst()
	assert.True(t, it.HasNext())

	require.NoError(t, it.Close())
	assert.False(t, it.HasNext())
	_, err = it.NextBlock()
	assert.True(t, containererrors.IsNotFound(err))
}

func TestSchemaThree_ContainerIsolation(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV3)
	p1, p2 := s.ContainerPrefix(1), s.ContainerPrefix(2)
	assert.NotEqual(t, p1, p2)

	require.NoError(t, s.MetadataTable().Put(p1+"#BLOCKCOUNT", 2))
	require.NoError(t, s.MetadataTable().Put(p2+"#BLOCKCOUNT", 1))
	require.NoError(t, s.BlockDataTable().Put(p1+"1", testBlock(1, 1, 10)))
	require.NoError(t, s.BlockDataTable().Put(p1+DeletingKey("2"), testBlock(1, 2, 10)))
	require.NoError(t, s.BlockDataTable().Put(p2+"1", testBlock(2, 1, 10)))

	it, err := s.BlockIterator(1, LiveBlockFilter())
	require.NoError(t, err)
	blocks, _ := drain(t, it)
	require.NoError(t, it.Close())
	require.Len(t, blocks, 1)
	assert.Equal(t, int64(1), blocks[0].BlockID.ContainerID)

	n, err := s.BlockDataTable().Count(p1, DeletingBlockFilter())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.RemoveContainer(1))

	n, err = s.BlockDataTable().Count(p1)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err := s.MetadataTable().Get(p1 + "#BLOCKCOUNT")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.MetadataTable().Get(p2 + "#BLOCKCOUNT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)
	n, err = s.BlockDataTable().Count(p2, LiveBlockFilter())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSchemaTwo_RemoveContainer(t *testing.T) {
	t.Parallel()

	s := createStore(t, SchemaV2)
	assert.Empty(t, s.ContainerPrefix(7))
	require.NoError(t, s.MetadataTable().Put("#BLOCKCOUNT", 1))
	require.NoError(t, s.BlockDataTable().Put("1", testBlock(7, 1, 10)))

	require.NoError(t, s.RemoveContainer(7))
	n, err := s.BlockDataTable().Count("")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ============================================================================
// Filters
// ============================================================================

func TestKeyPrefixFilter(t *testing.T) {
	t.Parallel()

	live := LiveBlockFilter()
	assert.True(t, live.Filter("123"))
	assert.False(t, live.Filter("#BLOCKCOUNT"))
	assert.False(t, live.Filter(DeletingKey("123")))

	deleting := DeletingBlockFilter()
	assert.True(t, deleting.Filter("#deleting#123"))
	assert.False(t, deleting.Filter("123"))
	assert.False(t, deleting.Filter("#delTX"))

	assert.True(t, NewKeyPrefixFilter().Filter("anything"))

	f := NewKeyPrefixFilter().AddFilter("a", false).AddFilter("ab", true)
	assert.True(t, f.Filter("ax"))
	assert.False(t, f.Filter("abc"))
	assert.False(t, f.Filter("b"))
}

func TestSchemaVersion(t *testing.T) {
	t.Parallel()

	assert.True(t, SchemaV1.Valid())
	assert.False(t, SchemaVersion("0").Valid())
	assert.True(t, SchemaV3.Shared())
	assert.False(t, SchemaV2.Shared())
	assert.Equal(t, "0000000000000010|", ContainerPrefix(16))
}
