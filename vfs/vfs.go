// Package vfs is the block-access/random-access file seam Store is built on
// (spec §4.5, §6). It is deliberately narrow: a Store never touches os.File
// directly, so tests can swap in a FaultInjector to force IoError on a
// chosen call without standing up a real broken filesystem.
package vfs

import "github.com/cockroachdb/errors"

// ErrIO is the sentinel every BlockFile/RandomFile implementation wraps its
// underlying I/O errors with. Callers use errors.Is(err, ErrIO) rather than
// matching a concrete type, since the libc-backed implementation wraps
// *os.PathError/*fs.PathError and a test double wraps whatever it likes.
var ErrIO = errors.New("vfs: io error")

// BlockFile is a block-access file: every offset and byte count is a
// multiple of the page size the owning Store was opened with. Used for a
// store's data file.
type BlockFile interface {
	// ReadAt reads len(buf) bytes starting at offset into buf. Bytes past
	// the end of the file read as zeros.
	ReadAt(buf []byte, offset int64) error
	// WriteAt writes buf to the file starting at offset.
	WriteAt(buf []byte, offset int64) error
	// Size returns the current file size in bytes.
	Size() (int64, error)
	// Sync flushes any buffered writes to stable storage.
	Sync() error
	// Close releases the underlying file descriptor.
	Close() error
}

// RandomFile is an unrestricted-offset file, used for the log file. Its
// format is owned by the (out-of-scope) recovery layer; Store only opens and
// hands it over.
type RandomFile interface {
	ReadAt(buf []byte, offset int64) error
	WriteAt(buf []byte, offset int64) error
	Append(buf []byte) (offset int64, err error)
	Sync() error
	Close() error
}

// OpenOptions mirrors spec §6's store-open configuration.
type OpenOptions struct {
	CreateIfMissing bool
	ErrorIfExists   bool
}

// Provider opens the two file kinds a Store needs. The default
// implementation (New) is libc/os-backed; tests substitute a Provider that
// wraps it with a FaultInjector.
type Provider interface {
	OpenBlockFile(path string, opts OpenOptions) (BlockFile, error)
	OpenRandomFile(path string, opts OpenOptions) (RandomFile, error)
	Remove(path string) error
}
