package vfs

import "sync/atomic"

// FaultInjector wraps a Provider and can be told to fail the next read or
// write on the block files it opens with ErrIO; random (log) files pass
// through unwrapped. pagepool's real-file test of spec §8 Scenario C
// (writeback error) uses it, standing in for a real broken disk.
type FaultInjector struct {
	inner Provider

	failReadAfter  atomic.Int64 // <=0 disables; N means the Nth read fails
	failWriteAfter atomic.Int64
	reads          atomic.Int64
	writes         atomic.Int64
}

// NewFaultInjector wraps inner. By default nothing fails.
func NewFaultInjector(inner Provider) *FaultInjector {
	fi := &FaultInjector{inner: inner}
	fi.failReadAfter.Store(-1)
	fi.failWriteAfter.Store(-1)
	return fi
}

// FailNextRead arranges for the next ReadAt on any block file this injector
// produces to return ErrIO.
func (fi *FaultInjector) FailNextRead() { fi.failReadAfter.Store(fi.reads.Load() + 1) }

// FailNextWrite arranges for the next WriteAt on any block file this
// injector produces to return ErrIO.
func (fi *FaultInjector) FailNextWrite() { fi.failWriteAfter.Store(fi.writes.Load() + 1) }

func (fi *FaultInjector) OpenBlockFile(path string, opts OpenOptions) (BlockFile, error) {
	f, err := fi.inner.OpenBlockFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &faultyBlockFile{BlockFile: f, fi: fi}, nil
}

func (fi *FaultInjector) OpenRandomFile(path string, opts OpenOptions) (RandomFile, error) {
	return fi.inner.OpenRandomFile(path, opts)
}

func (fi *FaultInjector) Remove(path string) error { return fi.inner.Remove(path) }

type faultyBlockFile struct {
	BlockFile
	fi *FaultInjector
}

func (f *faultyBlockFile) ReadAt(buf []byte, offset int64) error {
	n := f.fi.reads.Add(1)
	if want := f.fi.failReadAfter.Load(); want > 0 && n == want {
		return ErrIO
	}
	return f.BlockFile.ReadAt(buf, offset)
}

func (f *faultyBlockFile) WriteAt(buf []byte, offset int64) error {
	n := f.fi.writes.Add(1)
	if want := f.fi.failWriteAfter.Load(); want > 0 && n == want {
		return ErrIO
	}
	return f.BlockFile.WriteAt(buf, offset)
}
