// Package page defines the buffer entry cached by a PagePool: a fixed-size
// byte buffer plus the control block (identity, pin count, dirty flag, list
// linkage) that a PagePool and Store manipulate to implement the buffer
// cache contract.
package page

import "fmt"

// ID identifies a page within a store's data file. ID 0 is reserved for the
// store header and is never handed out by dynamic allocation; the free-page
// manager (out of scope here) uses it as a "no such page" sentinel.
type ID uint64

// FetchMode controls whether StorePage reads the page's bytes from disk.
type FetchMode int

const (
	// FetchPageData reads the page's bytes from the owning store.
	FetchPageData FetchMode = iota
	// IgnorePageData skips the read and marks the buffer dirty instead. The
	// caller must overwrite the buffer before the next writeback.
	IgnorePageData
)

// debugFillByte is written across a buffer's contents when it is assigned
// with IgnorePageData, so that a caller who forgets to overwrite it produces
// a recognizable pattern in a hex dump rather than stale data from whatever
// page last occupied the buffer.
const debugFillByte = 0xCD

// Page is one buffer-cache slot: a fixed-size buffer plus the control block
// a PagePool uses to track its identity, pin count, dirty flag, and list
// membership. A Page is created once by its owning pool and is recycled
// through Assign/UnassignFromStore for the rest of its life; it is never
// moved to another pool.
type Page struct {
	owner PoolHandle
	buf   []byte

	store StoreHandle
	id    ID
	pins  int
	dirty bool

	// lruPrev/lruNext/lruList track membership in exactly one of a PagePool's
	// free_list or lru_list. lruList is nil when the page is off both lists
	// (pinned, or newly allocated and not yet assigned).
	lruPrev, lruNext *Page
	lruList          *BufferList

	// residentPrev/residentNext/resident track membership in the owning
	// store's pool_pages list. resident is false when the page is unassigned.
	residentPrev, residentNext *Page
	resident                   bool
}

// New creates a page owned by owner, with a buffer of owner.PageSize() bytes.
// The returned page is pinned once and unassigned, mirroring AllocPage's
// "grow" path: the caller is expected to Assign it or release the pin.
func New(owner PoolHandle) *Page {
	return &Page{
		owner: owner,
		buf:   make([]byte, owner.PageSize()),
		pins:  1,
	}
}

// Data returns the page's raw buffer. The returned slice is stable for the
// life of the Page and is exactly owner.PageSize() bytes long.
func (p *Page) Data() []byte { return p.buf }

// Owner returns the pool this page was born into.
func (p *Page) Owner() PoolHandle { return p.owner }

// Assigned reports whether the page currently caches a store page.
func (p *Page) Assigned() bool { return p.store != nil }

// Store returns the store this page is assigned to. Only meaningful when
// Assigned() is true.
func (p *Page) Store() StoreHandle { return p.store }

// PageID returns the page-id this page is assigned to. Only meaningful when
// Assigned() is true.
func (p *Page) PageID() ID { return p.id }

// IsDirty reports whether the page has been modified since it was last read
// from or written to its store. Always false while unassigned.
func (p *Page) IsDirty() bool { return p.dirty }

// PinCount returns the current pin count.
func (p *Page) PinCount() int { return p.pins }

// IsUnpinned reports whether the pin count is zero.
func (p *Page) IsUnpinned() bool { return p.pins == 0 }

// OnList reports whether the page currently sits on a free_list/lru_list.
func (p *Page) OnList() bool { return p.lruList != nil }

// AddPin increments the pin count. Pinning an already-pinned page is normal
// (multiple callers may hold a pin concurrently); there is no upper bound
// other than int overflow, which indicates a caller leak and is a
// programming error.
func (p *Page) AddPin() {
	if p.pins == int(^uint(0)>>1) {
		panic("page: pin count overflow, caller leaked pins")
	}
	p.pins++
}

// RemovePin decrements the pin count. Panics if the page is not pinned:
// unpinning an unpinned page is a programming error (spec §7).
func (p *Page) RemovePin() {
	if p.pins <= 0 {
		panic("page: RemovePin on an unpinned page")
	}
	p.pins--
}

// MarkDirty sets or clears the dirty flag. Setting it true requires the page
// to be assigned (spec §4.1); clearing it is always legal (a successful
// writeback clears it before the page is unassigned).
func (p *Page) MarkDirty(dirty bool) {
	if dirty && p.store == nil {
		panic("page: MarkDirty(true) on an unassigned page")
	}
	p.dirty = dirty
}

// Assign gives the page a new identity. Preconditions (spec §4.1): the page
// must be pinned, unassigned, not dirty, and off every list. After Assign,
// the caller (PagePool) must call store.PageAssigned(p) to register the page
// in the store's resident-page list; Assign does not do this itself because
// package page does not reach into Store internals.
func (p *Page) Assign(store StoreHandle, id ID) {
	if p.pins == 0 {
		panic("page: Assign on an unpinned page")
	}
	if p.store != nil {
		panic("page: Assign on an already-assigned page")
	}
	if p.dirty {
		panic("page: Assign on a dirty page")
	}
	if p.lruList != nil {
		panic("page: Assign on a page still on a list")
	}
	p.store = store
	p.id = id
}

// FillDebugPattern overwrites the buffer with a recognizable byte pattern.
// Called by FetchStorePage when FetchMode is IgnorePageData, so that a
// caller who forgets to overwrite the buffer before the next writeback
// leaves an unmistakable trace instead of silently persisting garbage from
// whatever page previously occupied this buffer.
func (p *Page) FillDebugPattern() {
	for i := range p.buf {
		p.buf[i] = debugFillByte
	}
}

// UnassignFromStore clears the page's identity. Preconditions (spec §4.1):
// the page must be pinned and assigned. The caller (PagePool) is responsible
// for writing the page back first if dirty and clearing the dirty flag
// before calling this, so that the invariant dirty => assigned holds at the
// instant identity is cleared; UnassignFromStore itself only asserts that
// precondition, it does not perform the writeback. After UnassignFromStore,
// the caller must call store.PageUnassigned(p).
func (p *Page) UnassignFromStore() StoreHandle {
	if p.pins == 0 {
		panic("page: UnassignFromStore on an unpinned page")
	}
	if p.store == nil {
		panic("page: UnassignFromStore on an unassigned page")
	}
	if p.dirty {
		panic("page: UnassignFromStore on a still-dirty page")
	}
	prevStore := p.store
	p.store = nil
	p.id = 0
	return prevStore
}

func (p *Page) String() string {
	if !p.Assigned() {
		return fmt.Sprintf("Page{unassigned pins=%d}", p.pins)
	}
	return fmt.Sprintf("Page{id=%d pins=%d dirty=%v}", p.id, p.pins, p.dirty)
}
