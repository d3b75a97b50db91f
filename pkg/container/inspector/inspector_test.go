package inspector

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/kvcontainer/pkg/block"
	"github.com/marmos91/kvcontainer/pkg/container"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"github.com/marmos91/kvcontainer/pkg/store"
	"github.com/marmos91/kvcontainer/pkg/store/dbcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() store.Options {
	return store.Options{
		MemTableSize:      8 << 20,
		BlockCacheSize:    1 << 20,
		ValueLogFileSize:  4 << 20,
		NumVersionsToKeep: 1,
	}
}

// setup creates a V3 container holding two blocks of 10 and 20 bytes, one
// of them pending deletion, and leases its store.
func setup(t *testing.T) (*container.Data, store.Store) {
	t.Helper()
	ctx := context.Background()
	volume := t.TempDir()
	require.NoError(t, container.InitVolume(volume, testOptions()))

	cache := dbcache.New(dbcache.Config{Options: testOptions()})
	t.Cleanup(func() { _ = cache.Close() })
	m := container.NewManager(container.ManagerConfig{StoreOptions: testOptions()}, cache)

	d := container.NewData(1, store.SchemaV3, volume)
	require.NoError(t, m.Create(ctx, d))
	for i, n := range []uint64{10, 20} {
		b := block.NewData(block.ID{ContainerID: d.ID, LocalID: int64(i + 1)})
		b.AddChunk(block.ChunkInfo{Name: "chunk", Len: n})
		require.NoError(t, m.PutBlock(ctx, d, b))
	}
	_, err := m.MarkBlocksForDeletion(ctx, d, 1, []int64{2})
	require.NoError(t, err)

	h, err := cache.Acquire(store.SchemaV3, d.StorePath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return d, h.Store()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeOff, false},
		{"off", ModeOff, false},
		{"Inspect", ModeInspect, false},
		{" repair ", ModeRepair, false},
		{"fix", ModeOff, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEnvironmentOverride(t *testing.T) {
	t.Setenv(EnvVar, "repair")
	assert.Equal(t, ModeRepair, New(ModeOff).Mode())

	t.Setenv(EnvVar, "bogus")
	assert.Equal(t, ModeInspect, New(ModeInspect).Mode())

	t.Setenv(EnvVar, "")
	assert.Equal(t, ModeInspect, New(ModeInspect).Mode())
}

func TestInspectConsistent(t *testing.T) {
	t.Setenv(EnvVar, "")
	d, s := setup(t)

	report, err := New(ModeInspect).Inspect(context.Background(), d, s)
	require.NoError(t, err)
	assert.Empty(t, report.Mismatches())
	assert.False(t, report.Repaired)
	assert.Len(t, report.Counters, 3)
}

func TestInspectReportsMismatch(t *testing.T) {
	t.Setenv(EnvVar, "")
	d, s := setup(t)
	require.NoError(t, s.MetadataTable().Put(d.MetadataKey(container.BlockCountKey), 99))
	require.NoError(t, s.MetadataTable().Delete(d.MetadataKey(container.BytesUsedKey)))

	report, err := New(ModeInspect).Inspect(context.Background(), d, s)
	require.NoError(t, err)

	mismatches := report.Mismatches()
	require.Len(t, mismatches, 2)
	assert.Equal(t, container.BlockCountKey, mismatches[0].Key)
	assert.Equal(t, uint64(99), mismatches[0].Persisted)
	assert.Equal(t, uint64(2), mismatches[0].Computed)
	assert.Equal(t, container.BytesUsedKey, mismatches[1].Key)
	assert.False(t, mismatches[1].Present)
	assert.False(t, report.Repaired)

	v, _, err := s.MetadataTable().Get(d.MetadataKey(container.BlockCountKey))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), v)
}

// corruptOnce makes the first block iterator yield one undecodable block
// before the real ones.
type corruptOnce struct {
	store.Store
	done bool
}

func (s *corruptOnce) BlockIterator(containerID int64, filter store.KeyFilter) (store.BlockIterator, error) {
	it, err := s.Store.BlockIterator(containerID, filter)
	if err != nil || s.done {
		return it, err
	}
	s.done = true
	return &corruptIterator{BlockIterator: it, pending: true}, nil
}

type corruptIterator struct {
	store.BlockIterator
	pending bool
}

func (it *corruptIterator) HasNext() bool { return it.pending || it.BlockIterator.HasNext() }

func (it *corruptIterator) NextBlock() (*block.Data, error) {
	if it.pending {
		it.pending = false
		return nil, containererrors.NewBlockParseError("3", errors.New("unexpected EOF"))
	}
	return it.BlockIterator.NextBlock()
}

func TestInspectCountsCorruptBlocks(t *testing.T) {
	t.Setenv(EnvVar, "")
	d, s := setup(t)

	report, err := New(ModeInspect).Inspect(context.Background(), d, &corruptOnce{Store: s})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CorruptBlocks)

	// The unreadable live row counts as a block but adds no bytes.
	mismatches := report.Mismatches()
	require.Len(t, mismatches, 1)
	assert.Equal(t, container.BlockCountKey, mismatches[0].Key)
	assert.Equal(t, uint64(2), mismatches[0].Persisted)
	assert.Equal(t, uint64(3), mismatches[0].Computed)
}

func TestRepairFixesCounters(t *testing.T) {
	t.Setenv(EnvVar, "")
	d, s := setup(t)
	require.NoError(t, s.MetadataTable().Put(d.MetadataKey(container.BytesUsedKey), 1))
	require.NoError(t, s.MetadataTable().Put(d.MetadataKey(container.PendingDeleteBlockCountKey), 7))
	d.SetBytesUsed(1)
	d.SetPendingDeletionBlocks(7)

	report, err := New(ModeRepair).Inspect(context.Background(), d, s)
	require.NoError(t, err)
	assert.True(t, report.Repaired)

	bytesUsed, ok, err := s.MetadataTable().Get(d.MetadataKey(container.BytesUsedKey))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(30), bytesUsed)

	pending, _, err := s.MetadataTable().Get(d.MetadataKey(container.PendingDeleteBlockCountKey))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pending)

	assert.Equal(t, int64(30), d.BytesUsed())
	assert.Equal(t, int64(1), d.PendingDeletionBlocks())
	assert.Equal(t, int64(2), d.BlockCount())
}

func TestProcessOffDoesNothing(t *testing.T) {
	t.Setenv(EnvVar, "")
	d, s := setup(t)
	require.NoError(t, s.MetadataTable().Put(d.MetadataKey(container.BlockCountKey), 99))

	require.NoError(t, New(ModeOff).Process(context.Background(), d, s))

	v, _, err := s.MetadataTable().Get(d.MetadataKey(container.BlockCountKey))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), v)
}
