// Package store owns one data file and one log file on behalf of the page
// pool: it mediates the I/O a PagePool performs for pages identified to it,
// tracks which buffers currently cache its pages, and drives the
// Open -> Closing -> Closed lifecycle spec §4.3 requires.
package store

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/naveen246/kite-pagepool/page"
	"github.com/naveen246/kite-pagepool/vfs"
)

// State is a Store's lifecycle stage (spec §3).
type State int

const (
	Opened State = iota
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Opened:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// PageUnassigner is the PagePool operation a Store invokes on itself while
// draining pool_pages during Close. Store depends only on this interface,
// not on package pagepool, so PagePool (which already depends on Store via
// page.StoreHandle) can implement it without an import cycle.
type PageUnassigner interface {
	UnassignPageFromStore(p *page.Page) error
}

// ErrPageZeroReserved is returned by ReadPage/WritePage for page id 0: the
// store header, never handed out by dynamic allocation (spec §6).
var ErrPageZeroReserved = errors.New("store: page 0 is reserved for the header")

// Store is a paged data file plus a log file, opened through a vfs.Provider.
type Store struct {
	mu deadlock.Mutex

	id       string
	dataPath string
	pageSize int

	dataFile vfs.BlockFile
	logFile  vfs.RandomFile

	poolPages  page.ResidentList
	state      State
	unassigner PageUnassigner
	logger     *zap.Logger

	liveTxns map[uint64]struct{}
	nextTxID atomic.Uint64
}

// Open opens (or creates) the store's data and log files, validating or
// writing the page-0 header depending on whether the file already existed.
// unassigner is normally the PagePool the store will be registered with.
func Open(provider vfs.Provider, dataPath, logPath string, pageShift uint8, opts vfs.OpenOptions, unassigner PageUnassigner, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := 1 << pageShift

	dataFile, err := provider.OpenBlockFile(dataPath, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open data file %s", dataPath)
	}

	size, err := dataFile.Size()
	if err != nil {
		dataFile.Close()
		return nil, errors.Wrapf(err, "store: stat data file %s", dataPath)
	}

	headerBuf := make([]byte, pageSize)
	if size == 0 {
		newHeader(pageShift).encode(headerBuf)
		if err := dataFile.WriteAt(headerBuf, 0); err != nil {
			dataFile.Close()
			return nil, errors.Wrapf(err, "store: write header %s", dataPath)
		}
	} else {
		if err := dataFile.ReadAt(headerBuf, 0); err != nil {
			dataFile.Close()
			return nil, errors.Wrapf(err, "store: read header %s", dataPath)
		}
		h, err := decodeHeader(headerBuf)
		if err != nil {
			dataFile.Close()
			return nil, err
		}
		if h.pageShift != pageShift {
			dataFile.Close()
			return nil, errors.Wrapf(ErrBadHeader, "store: %s was opened with page_shift %d, pool uses %d", dataPath, h.pageShift, pageShift)
		}
	}

	logFile, err := provider.OpenRandomFile(logPath, opts)
	if err != nil {
		dataFile.Close()
		return nil, errors.Wrapf(err, "store: open log file %s", logPath)
	}

	s := &Store{
		id:         uuid.NewString(),
		dataPath:   dataPath,
		pageSize:   pageSize,
		dataFile:   dataFile,
		logFile:    logFile,
		unassigner: unassigner,
		logger:     logger.With(zap.String("store", dataPath)),
		liveTxns:   make(map[uint64]struct{}),
	}
	s.logger.Debug("store opened", zap.Int64("size_bytes", size), zap.Int("page_size", pageSize))
	return s, nil
}

// ID returns a stable, process-unique identifier for this store, used only
// for logging/metrics labels; identity equality for the page pool's cache is
// by the *Store pointer, not by this string.
func (s *Store) ID() string { return s.id }

// State returns the store's current lifecycle stage.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PageCount returns the number of pages currently resident in the pool on
// this store's behalf.
func (s *Store) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolPages.Len()
}

// ReadPage reads page_size bytes at p.PageID()*page_size from the data file
// into p.Data(), and clears the dirty flag (spec §4.3).
func (s *Store) ReadPage(p *page.Page) error {
	if p.PageID() == 0 {
		return ErrPageZeroReserved
	}
	offset := int64(p.PageID()) * int64(s.pageSize)
	if err := s.dataFile.ReadAt(p.Data(), offset); err != nil {
		return errors.Wrapf(err, "store: read page %d", p.PageID())
	}
	p.MarkDirty(false)
	return nil
}

// WritePage writes p's buffer to the data file at p.PageID()*page_size. The
// caller clears the dirty flag once this returns successfully (spec §4.3).
func (s *Store) WritePage(p *page.Page) error {
	if p.PageID() == 0 {
		return ErrPageZeroReserved
	}
	offset := int64(p.PageID()) * int64(s.pageSize)
	if err := s.dataFile.WriteAt(p.Data(), offset); err != nil {
		return errors.Wrapf(err, "store: write page %d", p.PageID())
	}
	return nil
}

// PageAssigned registers p as resident. Called by PagePool immediately after
// Page.Assign.
func (s *Store) PageAssigned(p *page.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolPages.Add(p)
}

// PageUnassigned removes p from the resident set. Called by PagePool
// immediately after Page.UnassignFromStore.
func (s *Store) PageUnassigned(p *page.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolPages.Remove(p)
}

// EachResident calls fn for every page currently resident in the pool on
// this store's behalf. Used by PagePool.PinStorePages to pin a store's whole
// working set at once (spec §4.2).
func (s *Store) EachResident(fn func(*page.Page)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolPages.Each(fn)
}

// RegisterTxn/UnregisterTxn give the (out-of-scope) transaction manager a
// place to record which transactions are currently live against this store,
// per the data model's "intrusive list of its live transactions" (spec §3).
// The page pool itself never consults this; it exists so Store's shape
// matches the full data model even though transaction semantics are out of
// scope here.
func (s *Store) RegisterTxn() uint64 {
	id := s.nextTxID.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveTxns[id] = struct{}{}
	return id
}

func (s *Store) UnregisterTxn(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.liveTxns, id)
}

// Close transitions Open -> Closing -> Closed, draining every resident page
// (writing back dirty ones, tolerating I/O errors since closing is already
// terminal) before marking itself Closed. Idempotent: a call made while
// already Closing or Closed is a no-op, which is what makes the re-entrant
// path safe — UnassignPageFromStore may itself call Close again if a
// writeback fails during this very drain, and that nested call must not
// restart the loop (spec §5).
func (s *Store) Close() error {
	s.mu.Lock()
	if s.state != Opened {
		s.mu.Unlock()
		return nil
	}
	s.state = Closing
	s.mu.Unlock()

	var lastErr error
	for {
		s.mu.Lock()
		p := s.poolPages.PopHead()
		s.mu.Unlock()
		if p == nil {
			break
		}
		p.AddPin()
		if err := s.unassigner.UnassignPageFromStore(p); err != nil {
			s.logger.Warn("error draining page on close", zap.Error(err))
			lastErr = err
		}
	}

	if err := s.dataFile.Close(); err != nil {
		lastErr = err
	}
	if err := s.logFile.Close(); err != nil {
		lastErr = err
	}

	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	s.logger.Debug("store closed")
	return lastErr
}
