package mmap

import "os"

// Decommit gives the physical memory behind [offset, offset+size) back to
// the operating system. The mapping stays valid and the range reads as zero
// once touched again. Only the OS pages fully inside the range are dropped.
func (m *Mapping) Decommit(offset, size int) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if offset < 0 || size < 0 || offset+size > m.size {
		return ErrOutOfBounds
	}
	start, end := osPageRange(offset, offset+size, os.Getpagesize())
	if start >= end {
		return nil
	}
	return osAdvise(m.data[start:end], AccessDontNeed)
}

// osPageRange shrinks [start, end) to the whole OS pages it contains.
func osPageRange(start, end, pageSize int) (int, int) {
	start = (start + pageSize - 1) &^ (pageSize - 1)
	end &^= pageSize - 1
	return start, end
}
