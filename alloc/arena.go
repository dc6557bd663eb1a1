package alloc

import (
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// pageRef addresses a page by its arena and its index inside the arena.
// Page lists link pages through pageRefs instead of raw pointers into arena
// memory.
type pageRef struct {
	a   *arena
	idx uint16
}

func (r pageRef) valid() bool { return r.a != nil }

func (r pageRef) page() *page { return &r.a.pages[r.idx] }

// page is the bookkeeping for one page of an arena. The memory itself lives
// in the arena's region.
type page struct {
	class     int // -1 until first initialized
	blockSize int
	nblocks   int
	free      []uint16 // free stack of block indices
	carved    int      // blocks ever handed out from untouched space
	live      int
	used      *bitset.BitSet

	prev, next pageRef // links in the heap's partial list for class
	partial    bool
}

func (p *page) init(class, blockSize, pageSize int) {
	p.class = class
	p.blockSize = blockSize
	p.nblocks = pageSize / blockSize
	p.free = p.free[:0]
	p.carved = 0
	p.live = 0
	if p.used == nil || p.used.Len() < uint(p.nblocks) { //nolint:gosec // nblocks is positive
		p.used = bitset.New(uint(p.nblocks)) //nolint:gosec // nblocks is positive
	} else {
		p.used.ClearAll()
	}
}

// take hands out a block index. hit reports whether it came from the free
// stack rather than untouched space.
func (p *page) take() (idx uint16, hit bool) {
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
		return idx, true
	}
	idx = uint16(p.carved) //nolint:gosec // carved < nblocks <= MaxUint16
	p.carved++
	return idx, false
}

func (p *page) full() bool {
	return len(p.free) == 0 && p.carved == p.nblocks
}

// arena is one backing-store mapping. Small-block arenas are divided into
// pages; large arenas hold exactly one block.
type arena struct {
	id       uint32
	owner    atomic.Pointer[Heap]
	region   Region
	data     []byte
	pageSize int

	pages      []page
	emptyPages []uint16 // pages that held blocks before and are empty now
	untouched  int      // next never-used page index
	slot       int      // index in the owner's arena slice

	large     bool
	size      int
	usedPages atomic.Int32 // pages with live blocks
	live      atomic.Int64 // live blocks
	released  atomic.Bool
}

func (a *arena) freePages() int {
	return len(a.emptyPages) + len(a.pages) - a.untouched
}

// takePage returns a page able to serve class. retained reports that the page
// already carries an initialized free stack for that class.
func (a *arena) takePage(class int) (idx uint16, retained, ok bool) {
	for i := len(a.emptyPages) - 1; i >= 0; i-- {
		if a.pages[a.emptyPages[i]].class == class {
			idx = a.emptyPages[i]
			last := len(a.emptyPages) - 1
			a.emptyPages[i] = a.emptyPages[last]
			a.emptyPages = a.emptyPages[:last]
			return idx, true, true
		}
	}
	if a.untouched < len(a.pages) {
		idx = uint16(a.untouched) //nolint:gosec // pages per arena <= MaxUint16
		a.untouched++
		return idx, false, true
	}
	if n := len(a.emptyPages); n > 0 {
		idx = a.emptyPages[n-1]
		a.emptyPages = a.emptyPages[:n-1]
		return idx, false, true
	}
	return 0, false, false
}

// releasePage records that the page at idx holds no live blocks anymore.
func (a *arena) releasePage(idx uint16) {
	a.emptyPages = append(a.emptyPages, idx)
	a.usedPages.Add(-1)
}

func (a *arena) pageBytes(idx uint16) (offset, size int) {
	return int(idx) * a.pageSize, a.pageSize
}
