// Package alloc provides the size-classed slab allocator of the memory core.
//
// Memory is obtained from a BackingStore in large Arenas (1 MiB by default).
// Each arena is divided into Pages (16 KiB by default); a page in use serves a
// single size class and keeps a free stack of block indices plus an occupancy
// bitset. Requests are rounded up to the nearest size class through a lookup
// table, so Allocate and Free are O(1) amortized.
//
// # Heaps
//
// Every mutator thread allocates from its own Heap, a private pool of arenas.
// The allocation and local free paths take no locks. A block freed by a heap
// that does not own it is handed to the owner through a mutex-guarded remote
// queue and applied the next time the owner allocates:
//
//	al, _ := alloc.New(alloc.Config{})
//	h, _ := al.NewHeap()
//
//	b, err := h.Allocate(48) // served from the 48-byte class
//	if errors.Is(err, alloc.ErrOutOfMemory) {
//	    // backing store or budget exhausted
//	}
//	copy(b.Bytes(), payload)
//	_ = h.Free(b)
//
// # Reclamation
//
// Pages count live blocks. A page that becomes empty goes back to its arena
// but remembers its class and free stack, so reusing it for the same class
// needs no re-initialization. An arena whose pages are all empty is unmapped
// and its bytes returned to the MemoryBudget.
//
// # Oversized Requests
//
// Requests larger than the biggest size class get a dedicated mapping that is
// released as soon as the block is freed.
package alloc
