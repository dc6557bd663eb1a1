// Package mmap provides anonymous memory mappings used as arena backing store.
//
// # Overview
//
// Arenas are carved from large read-write anonymous mappings that live
// outside the Go heap. The garbage collector never scans them, and unmapping
// returns the pages to the operating system immediately.
//
// # Usage
//
//	m, err := mmap.MapAnon(1 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes()
//
//	// Give back the physical pages behind an idle range.
//	_ = m.Decommit(offset, size)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2)
//   - Windows: VirtualAlloc/VirtualFree (Advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and guarded by an atomic flag. Callers must make sure no
// goroutine touches Bytes() after Close returns.
package mmap
