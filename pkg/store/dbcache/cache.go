// Package dbcache is the reference-counted registry of open container stores.
//
// Each open badger instance holds file descriptors, memtables and caches, so
// the node bounds how many are open at once and decides open/close by
// reference count instead of leaving it to callers:
//
//	h, err := cache.Acquire(store.SchemaV2, path) // opens or shares
//	defer h.Close()                                // closes at zero refs
//
// Open/close of one path is serialized by a striped lock; different paths
// proceed in parallel. No lock is held while callers use a handle.
package dbcache

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/marmos91/kvcontainer/internal/logger"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"github.com/marmos91/kvcontainer/pkg/store"
)

// Metrics receives cache events. A nil Metrics disables recording.
type Metrics interface {
	SetOpenStores(n int)
	RecordHit()
	RecordMiss()
	RecordEviction(reason string)
}

// Opener opens the store at path as the given schema version.
type Opener func(version store.SchemaVersion, path string) (store.Store, error)

// Config bounds the cache.
type Config struct {
	// MaxOpenStores is the number of cached instances kept open at once.
	// Zero means unbounded.
	MaxOpenStores int

	// LockStripes is the number of per-path lock stripes. Default: 64.
	LockStripes int

	// Options is used by the default opener.
	Options store.Options
}

// Option customizes a Cache.
type Option func(*Cache)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithOpener replaces the default store.Open based opener.
func WithOpener(open Opener) Option {
	return func(c *Cache) { c.open = open }
}

// Cache is the registry of shared store instances. It is constructed
// explicitly and torn down with Close.
type Cache struct {
	cfg     Config
	open    Opener
	metrics Metrics
	stripes []sync.Mutex

	mu        sync.Mutex
	entries   map[string]*entry
	exclusive map[string]chan struct{} // paths held by uncached handles
	opening   int
	clock     uint64
	closed    bool
}

type entry struct {
	path     string
	store    store.Store
	refs     int
	pinned   bool
	lastUsed uint64
}

// New creates a cache.
func New(cfg Config, opts ...Option) *Cache {
	if cfg.LockStripes <= 0 {
		cfg.LockStripes = 64
	}
	c := &Cache{
		cfg:       cfg,
		stripes:   make([]sync.Mutex, cfg.LockStripes),
		entries:   make(map[string]*entry),
		exclusive: make(map[string]chan struct{}),
	}
	c.open = func(version store.SchemaVersion, path string) (store.Store, error) {
		return store.Open(version, path, cfg.Options)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) stripe(path string) *sync.Mutex {
	return &c.stripes[xxhash.Sum64String(path)%uint64(len(c.stripes))]
}

// touchLocked marks e as most recently used. Caller holds c.mu.
func (c *Cache) touchLocked(e *entry) {
	c.clock++
	e.lastUsed = c.clock
}

func (c *Cache) reportOpenLocked() {
	if c.metrics != nil {
		c.metrics.SetOpenStores(len(c.entries))
	}
}

// ============================================================================
// Acquire / Release
// ============================================================================

// Acquire returns a handle on the store at path, opening it if it is not
// cached yet. If the path is currently held by an uncached handle, Acquire
// waits for that holder to release it and then opens it through the cache.
func (c *Cache) Acquire(version store.SchemaVersion, path string) (*Handle, error) {
	lock := c.stripe(path)

	for {
		lock.Lock()
		c.mu.Lock()

		if c.closed {
			c.mu.Unlock()
			lock.Unlock()
			return nil, containererrors.NewClosedError("store cache")
		}

		if done, held := c.exclusive[path]; held {
			c.mu.Unlock()
			lock.Unlock()
			<-done
			continue
		}

		if e, ok := c.entries[path]; ok {
			e.refs++
			c.touchLocked(e)
			c.mu.Unlock()
			lock.Unlock()
			if c.metrics != nil {
				c.metrics.RecordHit()
			}
			return &Handle{cache: c, entry: e, store: e.store, path: path}, nil
		}

		victim, err := c.reserveLocked(lock)
		if err != nil {
			c.mu.Unlock()
			lock.Unlock()
			return nil, err
		}
		c.opening++
		c.mu.Unlock()

		c.closeVictim(victim, lock)
		if c.metrics != nil {
			c.metrics.RecordMiss()
		}

		s, err := c.open(version, path)

		c.mu.Lock()
		c.opening--
		if err != nil {
			c.mu.Unlock()
			lock.Unlock()
			return nil, err
		}
		e := &entry{path: path, store: s, refs: 1, pinned: version.Shared()}
		c.touchLocked(e)
		c.entries[path] = e
		c.reportOpenLocked()
		c.mu.Unlock()
		lock.Unlock()

		logger.Debug("Store opened in cache",
			logger.KeyStorePath, path,
			logger.KeySchemaVersion, string(version),
			logger.KeyCacheSize, c.Len())
		return &Handle{cache: c, entry: e, store: s, path: path}, nil
	}
}

// AcquireUncached opens a private, unregistered instance for one-shot use.
// It fails with ResourceBusy when the path is cached or already held
// uncached; callers fall back to Acquire. Releasing the handle always
// closes the instance.
func (c *Cache) AcquireUncached(version store.SchemaVersion, path string) (*Handle, error) {
	lock := c.stripe(path)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, containererrors.NewClosedError("store cache")
	}
	if _, ok := c.entries[path]; ok {
		c.mu.Unlock()
		return nil, containererrors.NewResourceBusyError(path, "store is open in the cache")
	}
	if _, ok := c.exclusive[path]; ok {
		c.mu.Unlock()
		return nil, containererrors.NewResourceBusyError(path, "store is exclusively open")
	}
	done := make(chan struct{})
	c.exclusive[path] = done
	c.mu.Unlock()

	s, err := c.open(version, path)
	if err != nil {
		c.mu.Lock()
		delete(c.exclusive, path)
		c.mu.Unlock()
		close(done)
		return nil, err
	}
	return &Handle{cache: c, store: s, path: path, uncached: true, done: done}, nil
}

// Release gives back a handle. Cached instances close when the last lease is
// released, unless they are pinned shared stores. Uncached instances always
// close. Releasing the same handle twice is a no-op.
func (c *Cache) Release(h *Handle) error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}

	if h.uncached {
		err := h.store.Close()
		c.mu.Lock()
		if c.exclusive[h.path] == h.done {
			delete(c.exclusive, h.path)
		}
		c.mu.Unlock()
		close(h.done)
		return err
	}

	lock := c.stripe(h.path)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if c.entries[h.path] != h.entry {
		// Force-evicted or cache closed: the instance is already stopped.
		c.mu.Unlock()
		return nil
	}
	e := h.entry
	e.refs--
	if e.refs > 0 || e.pinned {
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, h.path)
	c.reportOpenLocked()
	c.mu.Unlock()

	return e.store.Close()
}

// ============================================================================
// Register / ForceEvict / Close
// ============================================================================

// Register installs a freshly created store under path. The entry starts
// with no leases and stays open until it is leased and released, evicted
// to make room, force-evicted, or the cache is closed.
func (c *Cache) Register(path string, s store.Store) error {
	lock := c.stripe(path)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return containererrors.NewClosedError("store cache")
	}
	if _, ok := c.entries[path]; ok {
		c.mu.Unlock()
		return containererrors.NewAlreadyExistsError(path)
	}
	if _, ok := c.exclusive[path]; ok {
		c.mu.Unlock()
		return containererrors.NewResourceBusyError(path, "store is exclusively open")
	}

	victim, err := c.reserveLocked(lock)
	if err != nil {
		// A created store is registered even past capacity; dropping it
		// would leak the open instance.
		logger.Warn("Store cache over capacity", logger.KeyStorePath, path, logger.KeyCacheSize, len(c.entries))
	}
	e := &entry{path: path, store: s, pinned: s.SchemaVersion().Shared()}
	c.touchLocked(e)
	c.entries[path] = e
	c.reportOpenLocked()
	c.mu.Unlock()

	c.closeVictim(victim, lock)
	return nil
}

// ForceEvict removes the store at path from the cache and closes it
// regardless of outstanding leases. Only deletion uses it, once the caller
// holds exclusive intent over the container.
func (c *Cache) ForceEvict(path string) error {
	lock := c.stripe(path)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, path)
	c.reportOpenLocked()
	c.mu.Unlock()

	if e.refs > 0 {
		logger.Warn("Force evicting store with outstanding leases",
			logger.KeyStorePath, path, logger.KeyRefCount, e.refs)
	}
	if c.metrics != nil {
		c.metrics.RecordEviction("force")
	}
	return e.store.Close()
}

// Close stops every cached instance. Later acquires fail with Closed.
// Uncached handles stay owned by their holders.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := c.entries
	c.entries = make(map[string]*entry)
	c.reportOpenLocked()
	c.mu.Unlock()

	var errs []error
	for path, e := range entries {
		lock := c.stripe(path)
		lock.Lock()
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
		lock.Unlock()
	}
	return errors.Join(errs...)
}

// ============================================================================
// Capacity
// ============================================================================

// reserveLocked makes room for one more cached instance. It returns an idle
// entry the caller must close with closeVictim after dropping c.mu. held is
// the stripe lock the caller already holds. Caller holds c.mu.
func (c *Cache) reserveLocked(held *sync.Mutex) (*entry, error) {
	if c.cfg.MaxOpenStores <= 0 || len(c.entries)+c.opening < c.cfg.MaxOpenStores {
		return nil, nil
	}

	var victim *entry
	for _, e := range c.entries {
		if e.refs > 0 || e.pinned {
			continue
		}
		if victim == nil || e.lastUsed < victim.lastUsed {
			victim = e
		}
	}
	if victim == nil {
		return nil, containererrors.NewResourceBusyError("", "store cache is full")
	}

	vlock := c.stripe(victim.path)
	if vlock != held && !vlock.TryLock() {
		return nil, containererrors.NewResourceBusyError(victim.path, "store cache is full")
	}
	delete(c.entries, victim.path)
	c.reportOpenLocked()
	return victim, nil
}

// closeVictim closes an entry chosen by reserveLocked and releases its
// stripe lock when it differs from held.
func (c *Cache) closeVictim(victim *entry, held *sync.Mutex) {
	if victim == nil {
		return
	}
	if err := victim.store.Close(); err != nil {
		logger.Error("Failed to close evicted store", logger.KeyStorePath, victim.path, logger.KeyError, err)
	}
	if vlock := c.stripe(victim.path); vlock != held {
		vlock.Unlock()
	}
	if c.metrics != nil {
		c.metrics.RecordEviction("capacity")
	}
	logger.Debug("Evicted idle store", logger.KeyStorePath, victim.path)
}

// ============================================================================
// Introspection
// ============================================================================

// Len returns the number of cached instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RefCount returns the number of outstanding leases on path and whether
// the path is cached.
func (c *Cache) RefCount(path string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return 0, false
	}
	return e.refs, true
}

// ============================================================================
// Handle
// ============================================================================

// Handle is a lease on an open store.
type Handle struct {
	cache    *Cache
	entry    *entry
	store    store.Store
	path     string
	uncached bool
	done     chan struct{}
	released atomic.Bool
}

// Store returns the leased store. It must not be used after Close.
func (h *Handle) Store() store.Store {
	return h.store
}

// Path returns the store path.
func (h *Handle) Path() string {
	return h.path
}

// Uncached reports whether the handle owns a private instance.
func (h *Handle) Uncached() bool {
	return h.uncached
}

// Close releases the handle.
func (h *Handle) Close() error {
	return h.cache.Release(h)
}
