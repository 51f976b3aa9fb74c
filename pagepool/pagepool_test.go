package pagepool

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveen246/kite-pagepool/page"
	"github.com/naveen246/kite-pagepool/store"
	"github.com/naveen246/kite-pagepool/vfs"
)

// fakeStore is an in-memory page.StoreHandle + ResidentLister test double,
// standing in for *store.Store so pagepool's own tests don't need real
// files. It mimics the bookkeeping PagePool expects a StoreHandle to do:
// track its resident pages and record read/write/close activity.
type fakeStore struct {
	name          string
	data          map[page.ID][]byte
	resident      []*page.Page
	reads, writes int
	failNextRead  bool
	failNextWrite bool
	closed        bool
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{name: name, data: make(map[page.ID][]byte)}
}

func (s *fakeStore) ReadPage(p *page.Page) error {
	s.reads++
	if s.failNextRead {
		s.failNextRead = false
		return fmt.Errorf("fakeStore %s: simulated read failure", s.name)
	}
	if b, ok := s.data[p.PageID()]; ok {
		copy(p.Data(), b)
	}
	return nil
}

func (s *fakeStore) WritePage(p *page.Page) error {
	s.writes++
	if s.failNextWrite {
		s.failNextWrite = false
		return fmt.Errorf("fakeStore %s: simulated write failure", s.name)
	}
	buf := make([]byte, len(p.Data()))
	copy(buf, p.Data())
	s.data[p.PageID()] = buf
	return nil
}

func (s *fakeStore) PageAssigned(p *page.Page)   { s.resident = append(s.resident, p) }
func (s *fakeStore) Close() error                { s.closed = true; return nil }
func (s *fakeStore) PageUnassigned(p *page.Page) {
	for i, q := range s.resident {
		if q == p {
			s.resident = append(s.resident[:i], s.resident[i+1:]...)
			return
		}
	}
}
func (s *fakeStore) EachResident(fn func(*page.Page)) {
	snapshot := append([]*page.Page(nil), s.resident...)
	for _, p := range snapshot {
		fn(p)
	}
}

func newTestPool(t *testing.T, capacity int) *PagePool {
	t.Helper()
	pp, err := New(Config{PageShift: 9, Capacity: capacity})
	require.NoError(t, err)
	return pp
}

func assertConserved(t *testing.T, pp *PagePool) {
	t.Helper()
	s := pp.Stats()
	assert.Equal(t, s.PageCount, s.Free+s.LRU+s.Pinned,
		"page_count must equal |free|+|lru|+pinned")
	assert.LessOrEqual(t, s.PageCount, s.Capacity)
}

func TestStorePageCacheHitSkipsRead(t *testing.T) {
	pp := newTestPool(t, 2)
	s1 := newFakeStore("s1")

	p1, err := pp.StorePage(s1, 1, page.FetchPageData)
	require.NoError(t, err)
	assert.Equal(t, 1, s1.reads)

	p2, err := pp.StorePage(s1, 1, page.FetchPageData)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, s1.reads, "second StorePage call must be a cache hit")
	assert.Equal(t, 2, p1.PinCount())
	assertConserved(t, pp)
}

func TestAllocPageReusesFreeListLIFO(t *testing.T) {
	pp := newTestPool(t, 2)

	p1, err := pp.AllocPage()
	require.NoError(t, err)
	pp.UnpinUnassignedPage(p1)
	assert.Equal(t, 1, pp.Stats().Free)

	p2, err := pp.AllocPage()
	require.NoError(t, err)
	assert.Same(t, p1, p2, "AllocPage must reuse the free list before growing")
	pp.UnpinUnassignedPage(p2)
	assertConserved(t, pp)
}

func TestLRUEvictionFlushesDirtyVictim(t *testing.T) {
	pp := newTestPool(t, 1)
	s1, s2 := newFakeStore("s1"), newFakeStore("s2")

	p1, err := pp.StorePage(s1, 1, page.IgnorePageData)
	require.NoError(t, err)
	copy(p1.Data(), []byte("dirty payload"))
	pp.UnpinStorePage(p1)
	assert.Equal(t, 1, pp.Stats().LRU)

	p2, err := pp.StorePage(s2, 2, page.IgnorePageData)
	require.NoError(t, err)
	assert.Same(t, p1, p2, "with capacity 1 the only buffer must be recycled")
	assert.Equal(t, 1, s1.writes, "dirty LRU victim must be flushed before reuse")
	assert.False(t, s1.closed)
	assertConserved(t, pp)
}

func TestWritebackFailureDuringEvictionForcesStoreClosed(t *testing.T) {
	pp := newTestPool(t, 1)
	s1, s2 := newFakeStore("s1"), newFakeStore("s2")

	p1, err := pp.StorePage(s1, 1, page.IgnorePageData)
	require.NoError(t, err)
	pp.UnpinStorePage(p1)
	s1.failNextWrite = true

	p2, err := pp.StorePage(s2, 2, page.FetchPageData)
	require.NoError(t, err, "eviction completes even though the writeback failed")
	assert.Same(t, p1, p2)
	assert.True(t, s1.closed, "a failed writeback must force the owning store closed")
	assertConserved(t, pp)
}

func TestPoolFullWhenEverythingPinned(t *testing.T) {
	pp := newTestPool(t, 1)
	s1 := newFakeStore("s1")

	_, err := pp.StorePage(s1, 1, page.FetchPageData)
	require.NoError(t, err)

	s2 := newFakeStore("s2")
	_, err = pp.StorePage(s2, 2, page.FetchPageData)
	assert.ErrorIs(t, err, ErrPoolFull)
	assertConserved(t, pp)
}

func TestReadFailureRollsBackToFreeList(t *testing.T) {
	pp := newTestPool(t, 1)
	s1 := newFakeStore("s1")
	s1.failNextRead = true

	_, err := pp.StorePage(s1, 7, page.FetchPageData)
	assert.Error(t, err)

	stats := pp.Stats()
	assert.Equal(t, 1, stats.PageCount, "the buffer must not be leaked")
	assert.Equal(t, 1, stats.Free, "a failed read must roll the buffer back to the free list")
	assert.Equal(t, 0, stats.Pinned)
}

func TestUnpinAndWriteStorePageIsSynchronous(t *testing.T) {
	pp := newTestPool(t, 1)
	s1 := newFakeStore("s1")

	p, err := pp.StorePage(s1, 1, page.IgnorePageData)
	require.NoError(t, err)
	copy(p.Data(), []byte("flush me"))

	require.NoError(t, pp.UnpinAndWriteStorePage(p))
	assert.Equal(t, 1, s1.writes)
	assert.False(t, p.IsDirty())
	assertConserved(t, pp)
}

func TestPinStorePagesPinsWholeWorkingSet(t *testing.T) {
	pp := newTestPool(t, 4)
	s1 := newFakeStore("s1")

	var pages []*page.Page
	for i := page.ID(1); i <= 3; i++ {
		p, err := pp.StorePage(s1, i, page.FetchPageData)
		require.NoError(t, err)
		pp.UnpinStorePage(p)
		pages = append(pages, p)
	}
	assert.Equal(t, 3, pp.Stats().LRU)

	pinned := pp.PinStorePages(s1)
	assert.Len(t, pinned, 3)
	assert.Equal(t, 0, pp.Stats().LRU, "pinning resident pages must remove them from the LRU list")
	assert.Equal(t, 3, pp.Stats().Pinned)

	for _, p := range pages {
		pp.UnpinStorePage(p)
	}
	assertConserved(t, pp)
}

func TestPagePoolCloseIsSafeWithNothingOutstanding(t *testing.T) {
	pp := newTestPool(t, 2)
	p, err := pp.StorePage(newFakeStore("s1"), 1, page.FetchPageData)
	require.NoError(t, err)
	pp.UnpinStorePage(p)

	assert.NoError(t, pp.Close())
}

// TestStoreCloseDrainsThroughRealPagePool wires a real store.Store to a real
// PagePool (rather than fakeStore) to exercise the cross-package re-entrancy
// path end to end: Store.Close enumerates pool_pages and calls back into
// PagePool.UnassignPageFromStore for each.
func TestStoreCloseDrainsThroughRealPagePool(t *testing.T) {
	pp := newTestPool(t, 4)
	dir := t.TempDir()
	s, err := store.Open(vfs.New(), filepath.Join(dir, "data"), filepath.Join(dir, "log"),
		9, vfs.OpenOptions{CreateIfMissing: true}, pp, nil)
	require.NoError(t, err)

	for i := page.ID(1); i <= 3; i++ {
		p, err := pp.StorePage(s, i, page.IgnorePageData)
		require.NoError(t, err)
		copy(p.Data(), []byte("payload"))
		pp.UnpinStorePage(p)
	}
	assert.Equal(t, 3, s.PageCount())

	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.PageCount())
	stats := pp.Stats()
	assert.Equal(t, 3, stats.Free, "pages decommissioned by Close must return to the free list")
	assert.Equal(t, 0, stats.Pinned)
	assertConserved(t, pp)
}

// TestFaultInjectorWritebackForcesRealStoreClosed is Scenario C run against
// real files: a vfs.FaultInjector, rather than a fakeStore, supplies the
// IoError on the eviction writeback.
func TestFaultInjectorWritebackForcesRealStoreClosed(t *testing.T) {
	pp := newTestPool(t, 1)
	dir := t.TempDir()
	fi := vfs.NewFaultInjector(vfs.New())
	s, err := store.Open(fi, filepath.Join(dir, "data"), filepath.Join(dir, "log"),
		9, vfs.OpenOptions{CreateIfMissing: true}, pp, nil)
	require.NoError(t, err)

	p, err := pp.StorePage(s, 1, page.IgnorePageData)
	require.NoError(t, err)
	copy(p.Data(), []byte("pattern X"))
	pp.UnpinStorePage(p)

	fi.FailNextWrite()
	s2, err := store.Open(vfs.New(), filepath.Join(dir, "data2"), filepath.Join(dir, "log2"),
		9, vfs.OpenOptions{CreateIfMissing: true}, pp, nil)
	require.NoError(t, err)

	_, err = pp.StorePage(s2, 1, page.FetchPageData)
	require.NoError(t, err, "eviction recycles the buffer even though the writeback failed")
	assert.Equal(t, store.Closed, s.State())
}

// TestRandomizedOperationsPreserveConservation runs a deterministic sequence
// of StorePage/Unpin operations across a few stores and asserts the
// page_count = |free|+|lru|+pinned invariant after every step.
func TestRandomizedOperationsPreserveConservation(t *testing.T) {
	pp := newTestPool(t, 6)
	stores := []*fakeStore{newFakeStore("a"), newFakeStore("b"), newFakeStore("c")}
	var held []*page.Page

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		switch {
		case len(held) == 0 || r.Intn(2) == 0:
			st := stores[r.Intn(len(stores))]
			id := page.ID(r.Intn(20) + 1)
			p, err := pp.StorePage(st, id, page.FetchPageData)
			if err == nil {
				held = append(held, p)
			} else {
				assert.ErrorIs(t, err, ErrPoolFull)
			}
		default:
			idx := r.Intn(len(held))
			p := held[idx]
			held = append(held[:idx], held[idx+1:]...)
			pp.UnpinStorePage(p)
		}
		assertConserved(t, pp)
	}
}
