package page

// PoolHandle is the narrow view of a PagePool that a Page needs to hold a
// permanent, non-owning back-pointer to its birth pool. It exists so that
// package page never imports package pagepool: the pool implements this
// interface, the page package only depends on the interface.
type PoolHandle interface {
	// PageSize returns the fixed buffer size every Page in this pool carries.
	PageSize() int
}

// StoreHandle is the narrow view of a Store that a Page's identity refers to.
// A Page never calls these directly; PagePool does, on the page's behalf,
// which keeps package page free of any import on package store.
//
// Two StoreHandle values are the same store iff they compare equal with ==;
// implementations must be backed by a stable pointer.
type StoreHandle interface {
	// ReadPage reads page p.ID()'s bytes from the store's data file into p.
	ReadPage(p *Page) error
	// WritePage writes p's buffer to the store's data file at p.ID().
	WritePage(p *Page) error
	// PageAssigned registers p in the store's resident-page list. Called once
	// immediately after Assign.
	PageAssigned(p *Page)
	// PageUnassigned removes p from the store's resident-page list. Called
	// once immediately after UnassignFromStore.
	PageUnassigned(p *Page)
	// Close forces the store closed, writing back what it can. Invoked by the
	// pool when a writeback error makes the store's on-disk state untrustworthy.
	Close() error
}
