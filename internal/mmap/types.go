package mmap

import "errors"

// AccessPattern provides hints to the kernel about how memory will be used.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessRandom expects the memory to be accessed randomly.
	AccessRandom
	// AccessWillNeed expects the memory to be touched soon.
	AccessWillNeed
	// AccessDontNeed lets the kernel drop the physical pages. The range reads
	// back as zeros on next touch.
	AccessDontNeed
)

var (
	// ErrClosed is returned when attempting to use a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for non-positive mapping sizes.
	ErrInvalidSize = errors.New("mmap: invalid mapping size")
	// ErrOutOfBounds is returned when a region falls outside the mapping.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
)
