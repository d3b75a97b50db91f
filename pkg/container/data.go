package container

import (
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/marmos91/kvcontainer/pkg/store"
)

// Metadata table keys. In a shared store each key is scoped by the
// container prefix.
const (
	BytesUsedKey               = "#BYTESUSED"
	BlockCountKey              = "#BLOCKCOUNT"
	PendingDeleteBlockCountKey = "#PENDINGDELETEBLOCKCOUNT"
	DeleteTxnKey               = "#delTX"
	BCSIDKey                   = "#BCSID"
)

// State is the replication state recorded in the container descriptor.
type State string

const (
	StateOpen        State = "OPEN"
	StateClosing     State = "CLOSING"
	StateQuasiClosed State = "QUASI_CLOSED"
	StateClosed      State = "CLOSED"
	StateUnhealthy   State = "UNHEALTHY"
	StateDeleted     State = "DELETED"
	StateRecovering  State = "RECOVERING"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateOpen, StateClosing, StateQuasiClosed, StateClosed,
		StateUnhealthy, StateDeleted, StateRecovering:
		return true
	}
	return false
}

// Lifecycle is the node-local lifecycle of a container.
type Lifecycle int32

const (
	Uninitialized Lifecycle = iota
	Active
	Removed
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Data describes one container on this node: its identity, on-disk
// locations and the in-memory counters reconciled from its store.
//
// Counters are safe for concurrent readers. Writes through Manager are
// serialized per container.
type Data struct {
	ID            int64
	SchemaVersion store.SchemaVersion
	ContainerType string
	LayoutVersion int
	MaxSize       uint64
	OriginNodeID  string
	State         State
	Checksum      string

	// VolumeRoot is the volume holding the container. Shared stores live
	// directly under it.
	VolumeRoot   string
	MetadataPath string
	ChunksPath   string

	blockCount      atomic.Int64
	bytesUsed       atomic.Int64
	pendingDeletion atomic.Int64
	deleteTxnID     atomic.Uint64
	bcsID           atomic.Uint64
	lifecycle       atomic.Int32

	writeMu sync.Mutex
}

// NewData returns a container laid out under volumeRoot by convention.
func NewData(id int64, version store.SchemaVersion, volumeRoot string) *Data {
	return &Data{
		ID:            id,
		SchemaVersion: version,
		ContainerType: DefaultContainerType,
		LayoutVersion: CurrentLayoutVersion,
		State:         StateOpen,
		VolumeRoot:    volumeRoot,
		MetadataPath:  MetadataDir(volumeRoot, id),
		ChunksPath:    ChunksDir(volumeRoot, id),
	}
}

// ============================================================================
// Counters
// ============================================================================

func (d *Data) BlockCount() int64            { return d.blockCount.Load() }
func (d *Data) BytesUsed() int64             { return d.bytesUsed.Load() }
func (d *Data) PendingDeletionBlocks() int64 { return d.pendingDeletion.Load() }
func (d *Data) DeleteTransactionID() uint64  { return d.deleteTxnID.Load() }
func (d *Data) BlockCommitSequenceID() uint64 {
	return d.bcsID.Load()
}

func (d *Data) SetBlockCount(n int64) { d.blockCount.Store(n) }
func (d *Data) SetBytesUsed(n int64)  { d.bytesUsed.Store(n) }

// SetPendingDeletionBlocks sets the pending-delete count, clamped at zero.
func (d *Data) SetPendingDeletionBlocks(n int64) {
	d.pendingDeletion.Store(max(n, 0))
}

// IncrPendingDeletionBlocks adds n to the pending-delete count.
func (d *Data) IncrPendingDeletionBlocks(n int64) {
	d.pendingDeletion.Add(n)
}

// DecrPendingDeletionBlocks subtracts n, never going below zero.
func (d *Data) DecrPendingDeletionBlocks(n int64) {
	for {
		cur := d.pendingDeletion.Load()
		next := max(cur-n, 0)
		if d.pendingDeletion.CompareAndSwap(cur, next) {
			return
		}
	}
}

// UpdateDeleteTransactionID adopts id if it is newer than the current one.
func (d *Data) UpdateDeleteTransactionID(id uint64) {
	advance(&d.deleteTxnID, id)
}

// UpdateBlockCommitSequenceID adopts id if it is newer than the current one.
func (d *Data) UpdateBlockCommitSequenceID(id uint64) {
	advance(&d.bcsID, id)
}

func advance(v *atomic.Uint64, id uint64) {
	for {
		cur := v.Load()
		if id <= cur || v.CompareAndSwap(cur, id) {
			return
		}
	}
}

// Lifecycle returns the node-local lifecycle state.
func (d *Data) Lifecycle() Lifecycle {
	return Lifecycle(d.lifecycle.Load())
}

func (d *Data) setLifecycle(l Lifecycle) {
	d.lifecycle.Store(int32(l))
}

// ============================================================================
// Keys and paths
// ============================================================================

// schema returns the schema version, treating unset as V1.
func (d *Data) schema() store.SchemaVersion {
	if d.SchemaVersion == "" {
		return store.SchemaV1
	}
	return d.SchemaVersion
}

// KeyPrefix returns the prefix scoping this container's keys.
func (d *Data) KeyPrefix() string {
	if d.schema().Shared() {
		return store.ContainerPrefix(d.ID)
	}
	return ""
}

// MetadataKey returns the metadata table key for name.
func (d *Data) MetadataKey(name string) string {
	return d.KeyPrefix() + name
}

// BlockKey returns the block table key of a live block.
func (d *Data) BlockKey(localID int64) string {
	return d.KeyPrefix() + strconv.FormatInt(localID, 10)
}

// DeletingBlockKey returns the block table key of a block pending deletion.
func (d *Data) DeletingBlockKey(localID int64) string {
	return d.KeyPrefix() + store.DeletingKey(strconv.FormatInt(localID, 10))
}

// StorePath returns the path of the store holding this container.
func (d *Data) StorePath() string {
	if d.schema().Shared() {
		return SharedStorePath(d.volumeRoot())
	}
	return PrivateStorePath(d.MetadataPath, d.ID)
}

// DescriptorPath returns the path of the container descriptor file.
func (d *Data) DescriptorPath() string {
	return filepath.Join(d.MetadataPath, strconv.FormatInt(d.ID, 10)+DescriptorExt)
}

// volumeRoot falls back to the conventional layout when VolumeRoot is unset.
func (d *Data) volumeRoot() string {
	if d.VolumeRoot != "" {
		return d.VolumeRoot
	}
	// <volume>/containers/<id>/metadata
	return filepath.Dir(filepath.Dir(filepath.Dir(d.MetadataPath)))
}
