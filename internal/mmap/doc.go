// Package mmap provides read-only memory-mapped access to committed page files.
//
// A mapping gives zero-copy access to every committed page of a store, which
// is what the read-only page manager hands out as page buffers:
//
//	m, err := mmap.Open("store.vf")
//	if err != nil { ... }
//	defer m.Close()
//
//	header, _ := m.Slice(0, pageSize)
//	m.Advise(mmap.AccessSequential)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (madvise is a no-op)
//
// # Thread Safety
//
// A Mapping is safe for concurrent read access. Close is idempotent, but
// callers must ensure no goroutine touches slices obtained from Bytes or
// Slice after Close returns.
package mmap
