package alloc

import (
	"github.com/hupe1980/heapcore/internal/mmap"
)

// Region is one mapping handed out by a BackingStore.
type Region interface {
	// Bytes returns the zero-initialized memory of the region.
	Bytes() []byte
	// Close returns the memory to the store.
	Close() error
}

// Decommitter is implemented by regions that can drop the physical pages of
// an idle range while keeping the address range mapped.
type Decommitter interface {
	Decommit(offset, size int) error
}

// BackingStore supplies arena memory.
type BackingStore interface {
	Map(size int) (Region, error)
	Name() string
}

// MemoryBudget is charged for every mapping before the store is asked for it.
// *resource.Controller implements it.
type MemoryBudget interface {
	AcquireMemory(bytes int64) error
	ReleaseMemory(bytes int64)
}

// MmapStore maps anonymous memory outside the Go heap.
type MmapStore struct{}

// Map implements BackingStore.
func (MmapStore) Map(size int) (Region, error) {
	m, err := mmap.MapAnon(size)
	if err != nil {
		return nil, err
	}
	return mmapRegion{m}, nil
}

// Name implements BackingStore.
func (MmapStore) Name() string { return "mmap" }

// mmapRegion implements Region and Decommitter through the mapping.
type mmapRegion struct {
	*mmap.Mapping
}

var _ Decommitter = mmapRegion{}

// GoHeapStore allocates arenas as Go byte slices. It suits platforms without
// anonymous mappings and tests that want the race detector to see arena
// memory.
type GoHeapStore struct{}

// Map implements BackingStore.
func (GoHeapStore) Map(size int) (Region, error) {
	if size <= 0 {
		return nil, mmap.ErrInvalidSize
	}
	return &heapRegion{buf: make([]byte, size)}, nil
}

// Name implements BackingStore.
func (GoHeapStore) Name() string { return "go-heap" }

type heapRegion struct {
	buf []byte
}

func (r *heapRegion) Bytes() []byte { return r.buf }

func (r *heapRegion) Close() error {
	r.buf = nil
	return nil
}
