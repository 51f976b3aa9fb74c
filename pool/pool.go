// Package pool assembles the page pool subsystem's root resource: one
// bounded PagePool shared by every store opened underneath a data
// directory. It plays the role the teacher's server.DB plays for its
// FileMgr/Log/BufferPool trio — a single object an embedder constructs once
// and opens stores against for the life of the process.
package pool

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/naveen246/kite-pagepool/metrics"
	"github.com/naveen246/kite-pagepool/pagepool"
	"github.com/naveen246/kite-pagepool/store"
	"github.com/naveen246/kite-pagepool/vfs"
)

// Config configures a Pool. Mirrors the fields a deployment would load from
// YAML via package config.
type Config struct {
	// Dir is the directory holding every store's data/log file pair.
	Dir string
	// PageShift sets page_size = 1 << PageShift for the whole pool.
	PageShift uint8
	// Capacity is page_capacity: the maximum number of buffers the pool will
	// ever allocate, shared across all stores opened in it.
	Capacity int

	Provider vfs.Provider // defaults to vfs.New() (real files) if nil
	Logger   *zap.Logger  // defaults to zap.NewNop() if nil
	Metrics  *metrics.Collector
}

// Pool is the root handle on a page-pool-backed data directory: one
// PagePool plus the set of stores currently open against it.
type Pool struct {
	mu deadlock.Mutex

	dir      string
	provider vfs.Provider
	logger   *zap.Logger

	pagePool *pagepool.PagePool
	stores   map[string]*store.Store // keyed by data file path
}

// Open constructs the pool's PagePool and prepares it to open stores under
// cfg.Dir; it does not itself open any store.
func Open(cfg Config) (*Pool, error) {
	if cfg.Dir == "" {
		return nil, errors.New("pool: Dir is required")
	}
	provider := cfg.Provider
	if provider == nil {
		provider = vfs.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pp, err := pagepool.New(pagepool.Config{
		PageShift: cfg.PageShift,
		Capacity:  cfg.Capacity,
		Logger:    logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "pool: open")
	}

	logger.Info("page pool opened",
		zap.String("dir", cfg.Dir),
		zap.Int("page_size", pp.PageSize()),
		zap.Int("capacity", cfg.Capacity),
		zap.String("capacity_bytes", humanize.IBytes(uint64(pp.PageSize())*uint64(cfg.Capacity))),
	)

	return &Pool{
		dir:      cfg.Dir,
		provider: provider,
		logger:   logger,
		pagePool: pp,
		stores:   make(map[string]*store.Store),
	}, nil
}

// PagePool returns the pool's shared buffer cache, for callers that need to
// call StorePage/UnpinStorePage/etc. directly.
func (pl *Pool) PagePool() *pagepool.PagePool { return pl.pagePool }

// Stats proxies PagePool.Stats for convenience.
func (pl *Pool) Stats() pagepool.Stats { return pl.pagePool.Stats() }

// OpenStore opens the data/log file pair name.data and name.log under the
// pool's directory (creating them only if opts.CreateIfMissing is set),
// registers the PagePool as the store's PageUnassigner, and tracks the store
// so Release can close it later.
func (pl *Pool) OpenStore(name string, opts vfs.OpenOptions) (*store.Store, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	dataPath := filepath.Join(pl.dir, name+".data")
	if _, exists := pl.stores[dataPath]; exists {
		return nil, errors.Newf("pool: store %q is already open", name)
	}
	logPath := filepath.Join(pl.dir, name+".log")

	s, err := store.Open(pl.provider, dataPath, logPath, pl.pagePool.PageShift(), opts, pl.pagePool, pl.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "pool: open store %q", name)
	}
	pl.stores[dataPath] = s
	return s, nil
}

// CloseStore closes and unregisters a single store by the name it was
// opened under.
func (pl *Pool) CloseStore(name string) error {
	pl.mu.Lock()
	dataPath := filepath.Join(pl.dir, name+".data")
	s, ok := pl.stores[dataPath]
	if ok {
		delete(pl.stores, dataPath)
	}
	pl.mu.Unlock()
	if !ok {
		return errors.Newf("pool: store %q is not open", name)
	}
	return s.Close()
}

// Release closes every store still open against this pool. A snapshot of
// the store set is taken first so that a store's own forced Close (from a
// writeback failure elsewhere) racing with Release never deadlocks or
// double-closes: Store.Close is idempotent, so closing an already-closed
// store here is harmless.
func (pl *Pool) Release() error {
	pl.mu.Lock()
	open := make([]*store.Store, 0, len(pl.stores))
	for _, s := range pl.stores {
		open = append(open, s)
	}
	pl.stores = make(map[string]*store.Store)
	pl.mu.Unlock()

	var firstErr error
	for _, s := range open {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := pl.pagePool.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	pl.logger.Info("page pool released", zap.Int("stores_closed", len(open)))
	return firstErr
}
