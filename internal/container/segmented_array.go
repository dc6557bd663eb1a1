// Package container implements index-addressed storage for object headers.
package container

import (
	"sync"
	"sync/atomic"
)

const (
	// segmentBits determines the size of each segment.
	// 12 bits = 4096 items per segment.
	segmentBits = 12
	segmentSize = 1 << segmentBits
	segmentMask = segmentSize - 1
)

// SegmentedArray is an append-grown array of fixed-size segments.
//
// Segments are never moved once allocated, so a pointer returned by Ptr stays
// valid for the lifetime of the array. Lookups are lock-free; growth is
// serialized by a mutex and published atomically.
type SegmentedArray[T any] struct {
	segments atomic.Pointer[[]*Segment[T]]
	mu       sync.Mutex // Protects growth
}

// Segment is a fixed-size array of items.
type Segment[T any] struct {
	items [segmentSize]T
}

// NewSegmentedArray creates a new SegmentedArray.
func NewSegmentedArray[T any]() *SegmentedArray[T] {
	sa := &SegmentedArray[T]{}
	segments := make([]*Segment[T], 0)
	sa.segments.Store(&segments)
	return sa
}

// Ptr returns a stable pointer to the item at index, or nil if the segment
// holding index has not been allocated.
func (sa *SegmentedArray[T]) Ptr(index uint32) *T {
	segments := *sa.segments.Load()
	segIdx := int(index >> segmentBits)
	if segIdx >= len(segments) || segments[segIdx] == nil {
		return nil
	}
	return &segments[segIdx].items[index&segmentMask]
}

// Grow ensures index is addressable and returns a pointer to it.
func (sa *SegmentedArray[T]) Grow(index uint32) *T {
	if p := sa.Ptr(index); p != nil {
		return p
	}

	sa.mu.Lock()
	defer sa.mu.Unlock()

	current := *sa.segments.Load()
	segIdx := int(index >> segmentBits)

	grown := current
	if segIdx >= len(grown) {
		grown = make([]*Segment[T], segIdx+1)
		copy(grown, current)
	}
	if grown[segIdx] == nil {
		grown[segIdx] = &Segment[T]{}
	}

	sa.segments.Store(&grown)
	return &grown[segIdx].items[index&segmentMask]
}

// Capacity returns the number of addressable items.
func (sa *SegmentedArray[T]) Capacity() int {
	return len(*sa.segments.Load()) * segmentSize
}
