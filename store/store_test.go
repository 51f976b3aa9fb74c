package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveen246/kite-pagepool/page"
	"github.com/naveen246/kite-pagepool/vfs"
)

const testPageShift = 9 // 512 bytes

type testPool struct{ size int }

func (p testPool) PageSize() int { return p.size }

// stubUnassigner mimics just enough of PagePool.UnassignPageFromStore to
// exercise Store.Close's drain loop in isolation from the real pool.
type stubUnassigner struct {
	s       *Store
	failNextWrite bool
}

func (u *stubUnassigner) UnassignPageFromStore(p *page.Page) error {
	if p.IsDirty() {
		if u.failNextWrite {
			u.failNextWrite = false
			p.MarkDirty(false)
			prevStore := p.UnassignFromStore()
			prevStore.PageUnassigned(p)
			p.RemovePin()
			return assertIOErr
		}
		if err := u.s.WritePage(p); err != nil {
			return err
		}
		p.MarkDirty(false)
	}
	prevStore := p.UnassignFromStore()
	prevStore.PageUnassigned(p)
	p.RemovePin()
	return nil
}

type ioErr string

func (e ioErr) Error() string { return string(e) }

const assertIOErr = ioErr("simulated write failure")

func openTestStore(t *testing.T, dir string) (*Store, *stubUnassigner) {
	t.Helper()
	s, err := Open(vfs.New(), filepath.Join(dir, "data"), filepath.Join(dir, "log"),
		testPageShift, vfs.OpenOptions{CreateIfMissing: true}, nil, nil)
	require.NoError(t, err)
	u := &stubUnassigner{s: s}
	s.unassigner = u
	return s, u
}

func TestOpenCreatesHeaderAndReopenValidates(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)
	assert.Equal(t, Opened, s.State())
	assert.NoError(t, s.Close())

	s2, err := Open(vfs.New(), filepath.Join(dir, "data"), filepath.Join(dir, "log"),
		testPageShift, vfs.OpenOptions{}, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}

func TestOpenRejectsMismatchedPageShift(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)
	require.NoError(t, s.Close())

	_, err := Open(vfs.New(), filepath.Join(dir, "data"), filepath.Join(dir, "log"),
		testPageShift+1, vfs.OpenOptions{}, nil, nil)
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestReadWritePageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)
	defer s.Close()

	pool := testPool{size: 1 << testPageShift}
	p := page.New(pool)
	p.Assign(s, page.ID(3))
	s.PageAssigned(p)

	copy(p.Data(), []byte("hello store"))
	require.NoError(t, s.WritePage(p))

	p2 := page.New(pool)
	p2.Assign(s, page.ID(3))
	require.NoError(t, s.ReadPage(p2))
	assert.Equal(t, p.Data()[:11], p2.Data()[:11])
	assert.False(t, p2.IsDirty())
}

func TestReadWritePageZeroReserved(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)
	defer s.Close()

	pool := testPool{size: 1 << testPageShift}
	p := page.New(pool)
	p.Assign(s, page.ID(0))

	assert.ErrorIs(t, s.ReadPage(p), ErrPageZeroReserved)
	assert.ErrorIs(t, s.WritePage(p), ErrPageZeroReserved)
}

func TestPageAssignedTracksResidentCount(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)
	defer s.Close()

	pool := testPool{size: 1 << testPageShift}
	p1 := page.New(pool)
	p1.Assign(s, page.ID(1))
	s.PageAssigned(p1)
	p2 := page.New(pool)
	p2.Assign(s, page.ID(2))
	s.PageAssigned(p2)
	assert.Equal(t, 2, s.PageCount())

	s.PageUnassigned(p1)
	assert.Equal(t, 1, s.PageCount())
}

func TestCloseDrainsResidentPages(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)

	pool := testPool{size: 1 << testPageShift}
	for i := page.ID(1); i <= 4; i++ {
		p := page.New(pool)
		p.Assign(s, i)
		s.PageAssigned(p)
		p.RemovePin() // Close re-pins before unassigning
	}
	assert.Equal(t, 4, s.PageCount())

	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.PageCount())
	assert.Equal(t, Closed, s.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, Closed, s.State())
}

func TestCloseToleratesWriteFailureAndStillDrains(t *testing.T) {
	dir := t.TempDir()
	s, u := openTestStore(t, dir)
	u.failNextWrite = true

	pool := testPool{size: 1 << testPageShift}
	p := page.New(pool)
	p.Assign(s, page.ID(1))
	s.PageAssigned(p)
	p.MarkDirty(true)
	p.RemovePin()

	err := s.Close()
	assert.Error(t, err)
	assert.Equal(t, Closed, s.State())
	assert.Equal(t, 0, s.PageCount())
}

func TestRegisterUnregisterTxn(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir)
	defer s.Close()

	id := s.RegisterTxn()
	assert.Contains(t, s.liveTxns, id)
	s.UnregisterTxn(id)
	assert.NotContains(t, s.liveTxns, id)
}
