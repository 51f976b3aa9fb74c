package page

import "github.com/cespare/xxhash/v2"

// Checksum returns an xxhash64 digest of the page's current buffer contents.
// It is a diagnostic aid only: no path in this module calls or logs it, and
// it is never consulted by Assign/Unassign or by any correctness-bearing path.
func (p *Page) Checksum() uint64 {
	return xxhash.Sum64(p.buf)
}
