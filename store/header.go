package store

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// headerMagic identifies a file as a kite-pagepool data file. Chosen so a
// hex dump of page 0 is recognizable at a glance.
const headerMagic uint32 = 0x4b495445 // "KITE"

const headerVersion uint16 = 1

// headerSize is the number of bytes of page 0 the header actually uses; the
// rest of the page is reserved (zeroed) for future header fields, matching
// original_source's format/store_header.h layout.
const headerSize = 4 + 2 + 1

// ErrBadHeader is returned when page 0 does not look like a store header, or
// its recorded page_shift does not match the page pool that's opening it.
var ErrBadHeader = errors.New("store: bad or mismatched header")

type header struct {
	magic     uint32
	version   uint16
	pageShift uint8
}

func newHeader(pageShift uint8) header {
	return header{magic: headerMagic, version: headerVersion, pageShift: pageShift}
}

func (h header) encode(buf []byte) {
	if len(buf) < headerSize {
		panic("store: header buffer too small")
	}
	binary.BigEndian.PutUint32(buf[0:4], h.magic)
	binary.BigEndian.PutUint16(buf[4:6], h.version)
	buf[6] = h.pageShift
	for i := headerSize; i < len(buf); i++ {
		buf[i] = 0
	}
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, errors.Mark(errors.New("store: header buffer too small"), ErrBadHeader)
	}
	h := header{
		magic:     binary.BigEndian.Uint32(buf[0:4]),
		version:   binary.BigEndian.Uint16(buf[4:6]),
		pageShift: buf[6],
	}
	if h.magic != headerMagic {
		return header{}, errors.Mark(errors.Newf("store: bad magic %#x", h.magic), ErrBadHeader)
	}
	if h.version != headerVersion {
		return header{}, errors.Mark(errors.Newf("store: unsupported header version %d", h.version), ErrBadHeader)
	}
	return h, nil
}
