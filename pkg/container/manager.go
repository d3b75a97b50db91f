// Package container manages the node-local lifecycle of key-value
// containers: creating their directories and store, loading them at
// startup, reconciling in-memory counters with what is persisted, and
// deleting them once empty.
package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"github.com/marmos91/kvcontainer/pkg/store"
	"github.com/marmos91/kvcontainer/pkg/store/dbcache"
)

// Inspector is the diagnostic/repair hook run at the end of every
// reconcile. Implementations decide for themselves whether they are enabled.
type Inspector interface {
	Process(ctx context.Context, d *Data, s store.Store) error
}

// NopInspector does nothing.
type NopInspector struct{}

// Process implements Inspector.
func (NopInspector) Process(context.Context, *Data, store.Store) error { return nil }

// Load outcomes reported to Metrics.
const (
	LoadOutcomeLoaded  = "loaded"
	LoadOutcomeSkipped = "skipped"
	LoadOutcomeFailed  = "failed"
)

// DeleteOutcomeDeleted is reported to Metrics for a successful delete.
// Refused deletes report the NotEmptyReason name, other failures "error".
const DeleteOutcomeDeleted = "deleted"

// Metrics records lifecycle outcomes. A nil Metrics disables recording.
type Metrics interface {
	RecordLoad(outcome string, duration time.Duration)
	RecordReconcile(fullScan bool, corruptBlocks int)
	RecordDelete(force bool, outcome string)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// StoreOptions is used when creating private stores.
	StoreOptions store.Options

	// DefaultSchemaVersion is used by Create when the container has none.
	DefaultSchemaVersion store.SchemaVersion

	// MaxSize is recorded in new descriptors.
	MaxSize uint64

	// OriginNodeID is recorded in new descriptors.
	OriginNodeID string
}

// Manager runs container lifecycle operations against a shared handle
// cache. Operations on the same container must be serialized by the caller.
type Manager struct {
	cfg       ManagerConfig
	cache     *dbcache.Cache
	verifier  Verifier
	inspector Inspector
	metrics   Metrics
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithVerifier sets the descriptor verifier. Default: ChecksumVerifier.
func WithVerifier(v Verifier) ManagerOption {
	return func(m *Manager) { m.verifier = v }
}

// WithInspector sets the reconcile hook. Default: NopInspector.
func WithInspector(i Inspector) ManagerOption {
	return func(m *Manager) { m.inspector = i }
}

// WithMetrics sets the outcome recorder.
func WithMetrics(metrics Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig, cache *dbcache.Cache, opts ...ManagerOption) *Manager {
	if cfg.DefaultSchemaVersion == "" {
		cfg.DefaultSchemaVersion = store.SchemaV3
	}
	m := &Manager{
		cfg:       cfg,
		cache:     cache,
		verifier:  ChecksumVerifier{},
		inspector: NopInspector{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache returns the handle cache used by the manager.
func (m *Manager) Cache() *dbcache.Cache {
	return m.cache
}

// ============================================================================
// Create
// ============================================================================

// CreateMetadata creates the metadata and chunks directories of a container
// and, for private schema versions, a new store at dbPath registered in the
// cache. Shared (V3) stores are created per volume by InitVolume.
//
// If the chunks directory cannot be created, the metadata directory and its
// parent are removed before returning.
func (m *Manager) CreateMetadata(ctx context.Context, metadataDir, chunksDir, dbPath string, version store.SchemaVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !version.Valid() {
		return containererrors.NewUnrecognizedSchemaVersionError(string(version))
	}

	if err := os.MkdirAll(metadataDir, 0o755); err != nil {
		return containererrors.NewDirectoryCreateError(metadataDir, err)
	}
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		if rmErr := os.RemoveAll(metadataDir); rmErr != nil {
			logger.Warn("Failed to roll back metadata directory", logger.KeyPath, metadataDir, logger.KeyError, rmErr)
		}
		parent := filepath.Dir(metadataDir)
		if rmErr := os.RemoveAll(parent); rmErr != nil {
			logger.Warn("Failed to roll back container directory", logger.KeyPath, parent, logger.KeyError, rmErr)
		}
		return containererrors.NewDirectoryCreateError(chunksDir, err)
	}

	if version.Shared() {
		return nil
	}

	s, err := store.Create(version, dbPath, m.cfg.StoreOptions)
	if err != nil {
		return err
	}
	if err := m.cache.Register(dbPath, s); err != nil {
		_ = s.Close()
		return fmt.Errorf("failed to register store %s: %w", dbPath, err)
	}
	return nil
}

// spanInfo describes d to tracing and to the log lines of the operation.
func (d *Data) spanInfo() telemetry.Container {
	return telemetry.Container{
		ID:            d.ID,
		SchemaVersion: string(d.schema()),
		StorePath:     d.StorePath(),
		Volume:        d.VolumeRoot,
	}
}

// Create lays out a new container, creates its store and writes its
// descriptor. Unset fields of d are filled from the manager config and the
// conventional layout.
func (m *Manager) Create(ctx context.Context, d *Data) (err error) {
	if d.SchemaVersion == "" {
		d.SchemaVersion = m.cfg.DefaultSchemaVersion
	}
	if d.MetadataPath == "" {
		d.MetadataPath = MetadataDir(d.VolumeRoot, d.ID)
	}
	if d.ChunksPath == "" {
		d.ChunksPath = ChunksDir(d.VolumeRoot, d.ID)
	}
	if d.ContainerType == "" {
		d.ContainerType = DefaultContainerType
	}
	if d.LayoutVersion == 0 {
		d.LayoutVersion = CurrentLayoutVersion
	}
	if d.State == "" {
		d.State = StateOpen
	}
	if d.MaxSize == 0 {
		d.MaxSize = m.cfg.MaxSize
	}
	if d.OriginNodeID == "" {
		d.OriginNodeID = m.cfg.OriginNodeID
	}

	ctx, span := telemetry.StartContainerSpan(ctx, telemetry.SpanContainerCreate, d.spanInfo())
	defer span.End()
	defer func() { telemetry.RecordError(ctx, err) }()

	if _, statErr := os.Stat(d.DescriptorPath()); statErr == nil {
		return containererrors.NewAlreadyExistsError(d.DescriptorPath())
	}

	if d.SchemaVersion.Shared() {
		if _, statErr := os.Stat(d.StorePath()); os.IsNotExist(statErr) {
			return containererrors.NewMissingStoreFileError(d.StorePath())
		}
	}

	if err := m.CreateMetadata(ctx, d.MetadataPath, d.ChunksPath, d.StorePath(), d.SchemaVersion); err != nil {
		return err
	}
	if err := WriteDescriptor(d); err != nil {
		return err
	}

	d.setLifecycle(Active)
	logger.InfoCtx(ctx, "Container created",
		logger.KeyContainerID, d.ID,
		logger.KeySchemaVersion, string(d.SchemaVersion),
		logger.KeyMetadataPath, d.MetadataPath)
	return nil
}

// ============================================================================
// Load
// ============================================================================

// Load recovers a container at node startup: it verifies the descriptor,
// opens the container's store and reconciles the in-memory counters.
//
// A missing store file is logged and returned as a MissingStoreFile error;
// the container stays unloaded and sibling containers are unaffected.
func (m *Manager) Load(ctx context.Context, d *Data) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartContainerSpan(ctx, telemetry.SpanContainerLoad, d.spanInfo())
	defer span.End()

	outcome := LoadOutcomeFailed
	defer func() {
		telemetry.RecordError(ctx, err)
		if m.metrics != nil {
			m.metrics.RecordLoad(outcome, time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.verifier.Verify(d); err != nil {
		logger.ErrorCtx(ctx, "Container descriptor verification failed",
			logger.KeyContainerID, d.ID, logger.KeyError, err)
		return err
	}

	if d.SchemaVersion == "" {
		d.SchemaVersion = store.SchemaV1
	}
	if !d.SchemaVersion.Valid() {
		return containererrors.NewUnrecognizedSchemaVersionError(string(d.SchemaVersion))
	}

	dbPath := d.StorePath()
	if _, statErr := os.Stat(dbPath); os.IsNotExist(statErr) {
		outcome = LoadOutcomeSkipped
		logger.ErrorCtx(ctx, "Container store is missing, skipping load",
			logger.KeyContainerID, d.ID, logger.KeyStorePath, dbPath)
		return containererrors.NewMissingStoreFileError(dbPath)
	}

	h, err := m.openForLoad(d.SchemaVersion, dbPath)
	if err != nil {
		return err
	}
	span.SetAttributes(telemetry.Uncached(h.Uncached()))

	_, reconcileErr := m.Reconcile(ctx, d, h.Store())
	closeErr := h.Close()
	if reconcileErr != nil {
		return reconcileErr
	}
	if closeErr != nil {
		if h.Uncached() {
			return fmt.Errorf("failed to close store %s: %w", dbPath, closeErr)
		}
		logger.WarnCtx(ctx, "Failed to release cached store", logger.KeyStorePath, dbPath, logger.KeyError, closeErr)
	}

	d.setLifecycle(Active)
	outcome = LoadOutcomeLoaded
	logger.DebugCtx(ctx, "Container loaded",
		logger.KeyContainerID, d.ID,
		logger.KeyBlockCount, d.BlockCount(),
		logger.KeyBytesUsed, d.BytesUsed(),
		logger.KeyDurationMs, logger.Duration(start))
	return nil
}

// openForLoad prefers a private one-shot instance for private stores so bulk
// startup does not fill the cache, falling back to the cache when the store
// is already open there.
func (m *Manager) openForLoad(version store.SchemaVersion, dbPath string) (*dbcache.Handle, error) {
	if version.Shared() {
		return m.cache.Acquire(version, dbPath)
	}

	h, err := m.cache.AcquireUncached(version, dbPath)
	if err == nil {
		return h, nil
	}
	if !containererrors.IsResourceBusy(err) {
		return nil, err
	}
	logger.Debug("Store busy, loading through cache", logger.KeyStorePath, dbPath)
	return m.cache.Acquire(version, dbPath)
}

// acquire leases the container's store from the cache.
func (m *Manager) acquire(d *Data) (*dbcache.Handle, error) {
	if d.Lifecycle() == Removed {
		return nil, containererrors.NewClosedError(fmt.Sprintf("container %d", d.ID))
	}
	return m.cache.Acquire(d.schema(), d.StorePath())
}

// View leases the container's store from the cache for the duration of fn.
func (m *Manager) View(d *Data, fn func(s store.Store) error) error {
	h, err := m.acquire(d)
	if err != nil {
		return err
	}
	fnErr := fn(h.Store())
	if err := h.Close(); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}

// ============================================================================
// Volume initialization
// ============================================================================

// InitVolume creates the volume directories and its shared store if they
// do not exist yet.
func InitVolume(volumeRoot string, opts store.Options) error {
	if err := os.MkdirAll(filepath.Join(volumeRoot, ContainersDirName), 0o755); err != nil {
		return containererrors.NewDirectoryCreateError(volumeRoot, err)
	}

	path := SharedStorePath(volumeRoot)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	s, err := store.Create(store.SchemaV3, path, opts)
	if err != nil {
		var se *containererrors.StoreError
		if errors.As(err, &se) && se.Code == containererrors.ErrAlreadyExists {
			return nil
		}
		return err
	}
	return s.Close()
}
