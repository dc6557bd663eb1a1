package heapcore

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocationFailed is matched by every allocation failure.
	ErrAllocationFailed = errors.New("allocation failed")
	// ErrCollectionInProgress is returned for a collection requested while a
	// pass is running.
	ErrCollectionInProgress = errors.New("collection in progress")
	// ErrInvalidGeneration is returned for a generation outside [0, NumGenerations).
	ErrInvalidGeneration = errors.New("invalid generation")
	// ErrInvalidType is returned when Allocate is called with a nil Type.
	ErrInvalidType = errors.New("invalid type")
	// ErrClosed is returned after the runtime has been closed.
	ErrClosed = errors.New("runtime closed")
)

// AllocationError reports that the allocator could not supply storage for an
// object. It matches ErrAllocationFailed; the allocator error, usually
// alloc.ErrOutOfMemory, can be accessed via errors.Unwrap.
type AllocationError struct {
	Type  string
	Size  int
	cause error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed: %s (%d bytes): %v", e.Type, e.Size, e.cause)
}

func (e *AllocationError) Unwrap() error { return e.cause }

// Is reports whether target is ErrAllocationFailed.
func (e *AllocationError) Is(target error) bool { return target == ErrAllocationFailed }
