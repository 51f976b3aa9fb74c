package page

// BufferList is an intrusive doubly-linked list of unpinned pages: either a
// PagePool's free_list (LIFO reuse order) or its lru_list (strict
// least-recently-used order). Both lists share the same push/pop/remove
// operations; the ordering difference (LIFO vs LRU) is entirely in which
// push/pop method the caller uses, not in the list's mechanics.
//
// Pages carry their own prev/next pointers (lruPrev/lruNext), so list
// operations never allocate.
type BufferList struct {
	head, tail *Page
	size       int
}

// Len returns the number of pages currently on the list.
func (l *BufferList) Len() int { return l.size }

// PushBack appends p to the tail. Used by the LRU list (a page just unpinned
// becomes most-recently-used); the free list uses PushFront instead, see
// below.
func (l *BufferList) PushBack(p *Page) {
	if p.lruList != nil {
		panic("page: PushBack on a page already on a list")
	}
	p.lruList = l
	p.lruPrev = l.tail
	p.lruNext = nil
	if l.tail != nil {
		l.tail.lruNext = p
	} else {
		l.head = p
	}
	l.tail = p
	l.size++
}

// PushFront prepends p to the head. Used by the free list so that the most
// recently retired buffer is the next one PopFront returns (LIFO reuse,
// spec §4.2, for CPU cache locality).
func (l *BufferList) PushFront(p *Page) {
	if p.lruList != nil {
		panic("page: PushFront on a page already on a list")
	}
	p.lruList = l
	p.lruNext = l.head
	p.lruPrev = nil
	if l.head != nil {
		l.head.lruPrev = p
	} else {
		l.tail = p
	}
	l.head = p
	l.size++
}

// PopFront removes and returns the head of the list, or nil if empty. Used
// both to pop the LIFO free list and to pick the LRU eviction victim.
func (l *BufferList) PopFront() *Page {
	p := l.head
	if p == nil {
		return nil
	}
	l.remove(p)
	return p
}

// Remove detaches p from the list it's on. No-op if p is not on this list.
func (l *BufferList) Remove(p *Page) {
	if p.lruList != l {
		return
	}
	l.remove(p)
}

func (l *BufferList) remove(p *Page) {
	if p.lruPrev != nil {
		p.lruPrev.lruNext = p.lruNext
	} else {
		l.head = p.lruNext
	}
	if p.lruNext != nil {
		p.lruNext.lruPrev = p.lruPrev
	} else {
		l.tail = p.lruPrev
	}
	p.lruPrev, p.lruNext, p.lruList = nil, nil, nil
	l.size--
}

// ResidentList is the intrusive list a Store uses to track every Page
// currently assigned to it (pool_pages, spec §4.3), independent of the
// page's free_list/lru_list membership: a page can be simultaneously
// resident in its store's ResidentList and pinned off every BufferList, or
// resident and sitting in the pool's lru_list once unpinned.
type ResidentList struct {
	head, tail *Page
	size       int
}

// Len returns the number of pages currently resident.
func (l *ResidentList) Len() int { return l.size }

// Add registers p as resident. p must not already be resident in this list.
func (l *ResidentList) Add(p *Page) {
	if p.resident {
		panic("page: Add on a page already resident")
	}
	p.resident = true
	p.residentPrev = l.tail
	p.residentNext = nil
	if l.tail != nil {
		l.tail.residentNext = p
	} else {
		l.head = p
	}
	l.tail = p
	l.size++
}

// Remove detaches p. No-op if p is not resident in any list; which list a
// resident p belongs to is not checked, so p must be resident in this one.
func (l *ResidentList) Remove(p *Page) {
	if !p.resident {
		return
	}
	if p.residentPrev != nil {
		p.residentPrev.residentNext = p.residentNext
	} else {
		l.head = p.residentNext
	}
	if p.residentNext != nil {
		p.residentNext.residentPrev = p.residentPrev
	} else {
		l.tail = p.residentPrev
	}
	p.residentPrev, p.residentNext, p.resident = nil, nil, false
	l.size--
}

// PopHead removes and returns the first resident page, or nil if empty. Used
// by Store.Close to drain pool_pages one page at a time: popping the head
// instead of ranging over a snapshot keeps the loop correct even when
// unassigning a page re-enters the list (it never does for this list, but
// draining this way costs nothing and matches the re-entrancy discipline
// used for Close itself).
func (l *ResidentList) PopHead() *Page {
	p := l.head
	if p == nil {
		return nil
	}
	l.Remove(p)
	return p
}

// Each calls fn for every resident page, in a snapshot taken before the
// first call so that fn is free to mutate list membership (e.g. via pin).
func (l *ResidentList) Each(fn func(*Page)) {
	pages := make([]*Page, 0, l.size)
	for p := l.head; p != nil; p = p.residentNext {
		pages = append(pages, p)
	}
	for _, p := range pages {
		fn(p)
	}
}
