// Package pagepool implements the buffer cache at the center of the data
// model: a bounded set of fixed-size buffers shared across every open store,
// each either free, on the LRU list, or pinned and in active use. It is the
// component spec §4.2 describes as "the pool"; everything else in this
// module (vfs, page, store) exists to give it somewhere to read from, write
// to, and cache.
package pagepool

import (
	"github.com/cockroachdb/errors"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/naveen246/kite-pagepool/metrics"
	"github.com/naveen246/kite-pagepool/page"
)

// ErrPoolFull is returned by AllocPage (and anything that calls it) when
// every buffer is either pinned or the pool has reached page_capacity with
// nothing free or evictable.
var ErrPoolFull = errors.New("pagepool: no buffer available (pool full)")

// ResidentLister is the capability PinStorePages needs from a store: the
// ability to enumerate its currently-resident pages. *store.Store satisfies
// this; PagePool depends on the interface rather than the concrete type so
// that a test double can stand in for it.
type ResidentLister interface {
	EachResident(fn func(*page.Page))
}

// identityKey is the (store, page id) pair the identity map is keyed on.
// Two pages with the same id in different stores are distinct entries;
// page.StoreHandle implementations compare equal by pointer, matching spec
// §3's requirement that identity be a bijection onto assigned buffers.
type identityKey struct {
	store page.StoreHandle
	id    page.ID
}

// Config configures a new PagePool. PageShift and Capacity are required;
// Logger and Metrics default to no-ops if left nil.
type Config struct {
	// PageShift sets page_size = 1 << PageShift, the fixed buffer size every
	// page in the pool carries.
	PageShift uint8
	// Capacity is page_capacity: the maximum number of buffers the pool will
	// ever allocate.
	Capacity int

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// PagePool is the bounded buffer cache: a free list, an LRU list, and an
// identity map onto pinned/in-use buffers, satisfying page_count =
// |free|+|lru|+pinned at every observable point (spec §4.2, invariant 1).
//
// PagePool is guarded by a deadlock.Mutex even though spec §5 treats the
// pool as single-serialized-caller: the mutex buys nothing in correctness
// here but turns an accidental concurrent call (a bug, not a supported use)
// into a diagnosed deadlock report instead of silent data corruption,
// matching how the teacher's BufferPool guards itself.
type PagePool struct {
	mu deadlock.Mutex

	pageShift uint8
	pageSize  int
	capacity  int

	pageCount int
	freeList  page.BufferList
	lruList   page.BufferList
	// logList is reserved for a future write-ahead-log buffer class (spec
	// §4.2 names it alongside free_list/lru_list); nothing assigns pages to
	// it yet.
	logList page.BufferList

	identity map[identityKey]*page.Page

	logger  *zap.Logger
	metrics *metrics.Collector
}

// New validates cfg and returns an empty PagePool with no buffers allocated
// yet; AllocPage grows the pool lazily up to Capacity.
func New(cfg Config) (*PagePool, error) {
	if cfg.PageShift == 0 || cfg.PageShift > 31 {
		return nil, errors.Newf("pagepool: page_shift %d out of range", cfg.PageShift)
	}
	pageSize := 1 << cfg.PageShift
	if pageSize&(pageSize-1) != 0 {
		return nil, errors.Newf("pagepool: page size %d is not a power of two", pageSize)
	}
	if cfg.Capacity <= 0 {
		return nil, errors.New("pagepool: capacity must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewCollector()
	}

	return &PagePool{
		pageShift: cfg.PageShift,
		pageSize:  pageSize,
		capacity:  cfg.Capacity,
		identity:  make(map[identityKey]*page.Page),
		logger:    logger,
		metrics:   m,
	}, nil
}

// PageSize implements page.PoolHandle.
func (pp *PagePool) PageSize() int { return pp.pageSize }

// PageShift returns the page_shift this pool was configured with, so a
// caller opening a store can validate/write its header against it.
func (pp *PagePool) PageShift() uint8 { return pp.pageShift }

// Stats is a point-in-time snapshot of the pool's bookkeeping, for the
// inspection CLI and for tests asserting invariant 1.
type Stats struct {
	PageCount int
	Capacity  int
	Free      int
	LRU       int
	Pinned    int
}

// Stats returns a snapshot of the pool's current state.
func (pp *PagePool) Stats() Stats {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.statsLocked()
}

func (pp *PagePool) statsLocked() Stats {
	free, lru := pp.freeList.Len(), pp.lruList.Len()
	return Stats{
		PageCount: pp.pageCount,
		Capacity:  pp.capacity,
		Free:      free,
		LRU:       lru,
		Pinned:    pp.pageCount - free - lru,
	}
}

func (pp *PagePool) publishMetricsLocked() {
	s := pp.statsLocked()
	pp.metrics.PageCount.Set(float64(s.PageCount))
	pp.metrics.FreeCount.Set(float64(s.Free))
	pp.metrics.LRUCount.Set(float64(s.LRU))
	pp.metrics.PinnedCount.Set(float64(s.Pinned))
}

// StorePage is the pool's main entry point: return the buffer caching
// store/id, pinning it, reading from disk first if it isn't already
// resident (spec §4.2). mode is only consulted on a miss.
func (pp *PagePool) StorePage(store page.StoreHandle, id page.ID, mode page.FetchMode) (*page.Page, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	key := identityKey{store: store, id: id}
	if p, ok := pp.identity[key]; ok {
		pp.lruList.Remove(p)
		p.AddPin()
		pp.metrics.Hits.Inc()
		pp.publishMetricsLocked()
		return p, nil
	}
	pp.metrics.Misses.Inc()

	p, err := pp.allocPageLocked()
	if err != nil {
		return nil, err
	}
	if err := pp.assignPageToStoreLocked(p, store, id, mode); err != nil {
		return nil, err
	}
	pp.publishMetricsLocked()
	return p, nil
}

// UnpinStorePage releases one pin on an assigned page. Once the pin count
// reaches zero the page becomes eligible for eviction and moves to the tail
// of the LRU list (spec §4.2, invariant 4: free/LRU pages are never pinned).
func (pp *PagePool) UnpinStorePage(p *page.Page) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p.RemovePin()
	if p.IsUnpinned() {
		pp.lruList.PushBack(p)
	}
	pp.publishMetricsLocked()
}

// UnpinAndWriteStorePage writes the page back immediately (regardless of its
// dirty flag) and then unpins it, for callers that want a synchronous
// durability point rather than waiting for eviction.
func (pp *PagePool) UnpinAndWriteStorePage(p *page.Page) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	err := p.Store().WritePage(p)
	if err != nil {
		pp.metrics.WritebackErrors.Inc()
	} else {
		p.MarkDirty(false)
	}
	p.RemovePin()
	if p.IsUnpinned() {
		pp.lruList.PushBack(p)
	}
	pp.publishMetricsLocked()
	return err
}

// AllocPage returns a pinned, unassigned buffer ready for Assign: from the
// free list if one exists, by evicting the LRU victim if the pool is full,
// or by growing the pool if it has not yet reached capacity. Returns
// ErrPoolFull if every buffer is pinned and the pool is already at capacity
// (spec §4.2, §7).
func (pp *PagePool) AllocPage() (*page.Page, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p, err := pp.allocPageLocked()
	if err == nil {
		pp.publishMetricsLocked()
	}
	return p, err
}

func (pp *PagePool) allocPageLocked() (*page.Page, error) {
	if p := pp.freeList.PopFront(); p != nil {
		p.AddPin()
		return p, nil
	}
	if pp.pageCount < pp.capacity {
		p := page.New(pp)
		pp.pageCount++
		return p, nil
	}
	if victim := pp.lruList.PopFront(); victim != nil {
		victim.AddPin()
		pp.metrics.Evictions.Inc()
		if err := pp.unassignCore(victim); err != nil {
			// The writeback failed and the owning store has been forced
			// closed, but the buffer itself is still ours to reuse: the
			// eviction completes regardless, so the pool never leaks
			// capacity over an I/O error (spec §7).
			pp.logger.Warn("eviction writeback failed, store forced closed", zap.Error(err))
		}
		return victim, nil
	}
	pp.metrics.PoolFullErrors.Inc()
	return nil, ErrPoolFull
}

// AssignPageToStore gives an unassigned, pinned buffer (typically just
// returned by AllocPage) the identity (store, id), optionally reading its
// bytes from disk. On a read failure the buffer is rolled back to the free
// list rather than left in limbo (spec §7).
func (pp *PagePool) AssignPageToStore(p *page.Page, store page.StoreHandle, id page.ID, mode page.FetchMode) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	err := pp.assignPageToStoreLocked(p, store, id, mode)
	if err == nil {
		pp.publishMetricsLocked()
	}
	return err
}

func (pp *PagePool) assignPageToStoreLocked(p *page.Page, store page.StoreHandle, id page.ID, mode page.FetchMode) error {
	p.Assign(store, id)
	if mode == page.IgnorePageData {
		p.FillDebugPattern()
		p.MarkDirty(true)
	} else if err := store.ReadPage(p); err != nil {
		pp.metrics.ReadErrors.Inc()
		p.UnassignFromStore()
		store.PageUnassigned(p)
		p.RemovePin()
		if p.IsUnpinned() {
			pp.freeList.PushFront(p)
		}
		return errors.Wrapf(err, "pagepool: assign page %d", id)
	}
	store.PageAssigned(p)
	pp.identity[identityKey{store: store, id: id}] = p
	return nil
}

// UnassignPageFromStore is how PagePool satisfies store.PageUnassigner:
// Store.Close calls it, through that interface, for every page it drains.
// Unlike AllocPage's internal eviction (which keeps a reused victim pinned
// for immediate reassignment), a page reaching this entry point is being
// decommissioned outright — its store is going away and nothing will
// reassign it — so once the identity is cleared this also drops the pin
// Close added to satisfy UnassignFromStore's precondition and returns the
// buffer to the free list.
//
// If the writeback fails here, the core step below forces the store closed
// after clearing the page's identity, which re-enters Store.Close safely:
// Close is idempotent, and this call has already removed p from pool_pages
// by the time Close's own drain loop would see it again.
func (pp *PagePool) UnassignPageFromStore(p *page.Page) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	// Close pins a page that may still sit on the LRU list; take it off so
	// it can go onto the free list below.
	pp.lruList.Remove(p)
	err := pp.unassignCore(p)
	p.RemovePin()
	if p.IsUnpinned() {
		pp.freeList.PushFront(p)
	}
	pp.publishMetricsLocked()
	return err
}

// unassignCore does the shared write-back-then-clear-identity work behind
// both AllocPage's eviction path and the exported UnassignPageFromStore. It
// assumes p is pinned and pp.mu is held, and never touches p's pin count or
// list membership: callers decide what happens to the buffer afterward.
func (pp *PagePool) unassignCore(p *page.Page) error {
	handle := p.Store()
	id := p.PageID()

	var writeErr error
	if p.IsDirty() {
		writeErr = handle.WritePage(p)
		if writeErr != nil {
			pp.metrics.WritebackErrors.Inc()
		}
		// Cleared regardless of writeErr: dirty => assigned must hold at the
		// instant identity is cleared below, and a failed write means the
		// store is about to be force-closed anyway, so the in-memory content
		// is being abandoned either way.
		p.MarkDirty(false)
	}

	prevStore := p.UnassignFromStore()
	prevStore.PageUnassigned(p)
	delete(pp.identity, identityKey{store: handle, id: id})

	if writeErr != nil {
		// Must not hold pp.mu while re-entering the store: Close will call
		// back into this same PagePool's exported UnassignPageFromStore for
		// any other pages it still has resident, and pp.mu is not
		// reentrant.
		pp.mu.Unlock()
		closeErr := handle.Close()
		pp.mu.Lock()
		if closeErr != nil {
			pp.logger.Warn("store close after writeback failure also failed", zap.Error(closeErr))
		}
		return writeErr
	}
	return nil
}

// UnpinUnassignedPage releases the pin AllocPage/New leaves on a freshly
// allocated buffer that the caller decided not to Assign after all, putting
// it straight on the free list.
func (pp *PagePool) UnpinUnassignedPage(p *page.Page) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p.RemovePin()
	if p.IsUnpinned() {
		pp.freeList.PushFront(p)
	}
	pp.publishMetricsLocked()
}

// FetchStorePage reads (or, under IgnorePageData, debug-fills) an
// already-assigned page's bytes, for a caller that assigned a buffer itself
// via AssignPageToStore(..., IgnorePageData, ...) and now wants the real
// contents.
func (pp *PagePool) FetchStorePage(p *page.Page, mode page.FetchMode) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if mode == page.IgnorePageData {
		p.FillDebugPattern()
		p.MarkDirty(true)
		return nil
	}
	if err := p.Store().ReadPage(p); err != nil {
		pp.metrics.ReadErrors.Inc()
		return errors.Wrapf(err, "pagepool: fetch page %d", p.PageID())
	}
	return nil
}

// PinStorePage adds one pin to an already-resident page, removing it from
// the LRU list if this is the pin that makes it ineligible for eviction.
func (pp *PagePool) PinStorePage(p *page.Page) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.lruList.Remove(p)
	p.AddPin()
	pp.publishMetricsLocked()
}

// Close is the pool's destructor: called once every store backed by this
// pool has already been closed (and so has already drained its pages back
// to the free list), it logs a final snapshot. It does not forcibly evict
// anything itself — a page still pinned here means a caller leaked it, and
// silently reclaiming a pinned buffer would hand out memory still in use,
// so Close reports the leak instead of hiding it.
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	s := pp.statsLocked()
	if s.Pinned > 0 {
		pp.logger.Warn("page pool closed with pinned pages outstanding", zap.Int("pinned", s.Pinned))
	}
	pp.logger.Info("page pool closed", zap.Int("page_count", s.PageCount), zap.Int("capacity", s.Capacity))
	return nil
}

// PinStorePages pins every page currently resident for store in one call,
// returning them so the caller can release the pins later. Used to hold a
// store's whole working set in memory across a multi-step operation (spec
// §4.2).
func (pp *PagePool) PinStorePages(store ResidentLister) []*page.Page {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	var pinned []*page.Page
	store.EachResident(func(p *page.Page) {
		pp.lruList.Remove(p)
		p.AddPin()
		pinned = append(pinned, p)
	})
	pp.publishMetricsLocked()
	return pinned
}
