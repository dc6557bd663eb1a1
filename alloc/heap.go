package alloc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/heapcore/internal/conv"
)

// Heap is a per-thread pool of arenas. Allocate and Free must be called
// from the owning goroutine; frees of foreign blocks are routed to the
// owning heap's remote queue, which is safe from any goroutine.
type Heap struct {
	id uint32
	al *Allocator

	partial  []pageRef // per class: head of the list of pages with free blocks
	retained []int     // per class: empty pages still carrying a free stack
	arenas   []*arena
	large    map[uint32]*arena
	empty    int // arenas with no used pages

	mu        sync.Mutex // guards remote, adoptedBy, detached
	remote    []Block
	pending   atomic.Bool
	adoptedBy *Heap
	detached  bool
}

// ID returns the heap id.
func (h *Heap) ID() uint32 { return h.id }

// Allocate returns a zeroed block of at least size bytes.
func (h *Heap) Allocate(size int) (Block, error) {
	if h.al.closed.Load() {
		return Block{}, ErrClosed
	}
	if h.isDetached() {
		return Block{}, ErrHeapDetached
	}
	if h.pending.Load() {
		h.Drain()
	}

	class, ok := h.al.classes.classFor(size)
	if !ok {
		return h.allocLarge(size)
	}

	// Recycled blocks of a retained page are preferred over carving fresh
	// space from the head page.
	ref := h.partial[class]
	if !ref.valid() || (len(ref.page().free) == 0 && h.retained[class] > 0) {
		var err error
		if ref, err = h.refill(class); err != nil {
			return Block{}, err
		}
	}

	a, p := ref.a, ref.page()
	idx, hit := p.take()
	p.used.Set(uint(idx))
	p.live++
	if p.live == 1 {
		a.usedPages.Add(1)
		if a.usedPages.Load() == 1 {
			h.empty--
		}
	}
	a.live.Add(1)
	if p.full() {
		h.unlinkPage(ref)
	}

	cs := &h.al.stats.classes[class]
	cs.allocs.Add(1)
	cs.live.Add(1)
	if hit {
		cs.hits.Add(1)
	} else {
		cs.misses.Add(1)
	}

	b := Block{a: a, page: ref.idx, index: idx}
	clear(b.Bytes())
	return b, nil
}

// refill links a page able to serve class at the head of its partial list.
func (h *Heap) refill(class int) (pageRef, error) {
	if h.retained[class] > 0 {
		if ref, ok := h.takeRetained(class); ok {
			return ref, nil
		}
	}

	for adopted := h.adoptAbandoned(); adopted; adopted = h.adoptAbandoned() {
		if ref := h.partial[class]; ref.valid() {
			return ref, nil
		}
	}

	var best *arena
	for _, a := range h.arenas {
		if a.freePages() == 0 {
			continue
		}
		if best == nil || a.usedPages.Load() > best.usedPages.Load() {
			best = a
		}
	}
	if best == nil {
		a, err := h.al.mapArena(h, h.al.cfg.ArenaSize, false)
		if err != nil {
			return pageRef{}, err
		}
		h.addArena(a)
		best = a
	}

	idx, retained, ok := best.takePage(class)
	if !ok {
		return pageRef{}, fmt.Errorf("%w: arena %d has no free page", ErrOutOfMemory, best.id)
	}
	return h.installPage(best, idx, class, retained), nil
}

// takeRetained finds an empty page that last served class.
func (h *Heap) takeRetained(class int) (pageRef, bool) {
	for _, a := range h.arenas {
		for i, idx := range a.emptyPages {
			if a.pages[idx].class != class {
				continue
			}
			last := len(a.emptyPages) - 1
			a.emptyPages[i] = a.emptyPages[last]
			a.emptyPages = a.emptyPages[:last]
			return h.installPage(a, idx, class, true), true
		}
	}
	return pageRef{}, false
}

func (h *Heap) installPage(a *arena, idx uint16, class int, retained bool) pageRef {
	p := &a.pages[idx]
	if retained {
		h.retained[class]--
	} else {
		if p.class >= 0 && p.carved > 0 {
			// Empty page recycled from another class.
			h.retained[p.class]--
			h.al.stats.classes[p.class].pages.Add(-1)
		}
		p.init(class, h.al.classes.blockSize(class), a.pageSize)
		h.al.stats.classes[class].pages.Add(1)
	}
	ref := pageRef{a: a, idx: idx}
	h.linkPage(ref)
	return ref
}

func (h *Heap) linkPage(ref pageRef) {
	p := ref.page()
	if p.partial {
		return
	}
	head := h.partial[p.class]
	p.prev = pageRef{}
	p.next = head
	if head.valid() {
		head.page().prev = ref
	}
	h.partial[p.class] = ref
	p.partial = true
}

func (h *Heap) unlinkPage(ref pageRef) {
	p := ref.page()
	if !p.partial {
		return
	}
	if p.prev.valid() {
		p.prev.page().next = p.next
	} else {
		h.partial[p.class] = p.next
	}
	if p.next.valid() {
		p.next.page().prev = p.prev
	}
	p.prev, p.next = pageRef{}, pageRef{}
	p.partial = false
}

func (h *Heap) addArena(a *arena) {
	a.slot = len(h.arenas)
	h.arenas = append(h.arenas, a)
	if a.usedPages.Load() == 0 {
		h.empty++
	}
}

func (h *Heap) removeArena(a *arena) {
	last := len(h.arenas) - 1
	moved := h.arenas[last]
	h.arenas[a.slot] = moved
	moved.slot = a.slot
	h.arenas[last] = nil
	h.arenas = h.arenas[:last]
	for _, idx := range a.emptyPages {
		if c := a.pages[idx].class; c >= 0 {
			h.retained[c]--
			h.al.stats.classes[c].pages.Add(-1)
		}
	}
}

func (h *Heap) allocLarge(size int) (Block, error) {
	rounded, ok := conv.AddUint64(uint64(size), uint64(h.al.cfg.PageSize-1)) //nolint:gosec // size > 0
	if !ok {
		h.al.stats.allocFailures.Add(1)
		return Block{}, fmt.Errorf("%w: %d bytes", ErrOutOfMemory, size)
	}
	mapped, err := conv.Uint64ToInt64(rounded &^ uint64(h.al.cfg.PageSize-1)) //nolint:gosec // page size > 0
	if err != nil {
		h.al.stats.allocFailures.Add(1)
		return Block{}, fmt.Errorf("%w: %d bytes", ErrOutOfMemory, size)
	}

	a, err := h.al.mapArena(h, int(mapped), true)
	if err != nil {
		return Block{}, err
	}
	a.live.Store(1)
	a.usedPages.Store(1)
	h.large[a.id] = a

	h.al.stats.largeAllocs.Add(1)
	h.al.stats.largeLive.Add(1)
	h.al.stats.largeBytes.Add(int64(a.size))
	return Block{a: a}, nil
}

// Free returns b to its page. Blocks owned by another heap are queued on that
// heap and applied by its owner; double frees of such blocks are reported to
// the allocator's FaultHandler when the owner drains them.
func (h *Heap) Free(b Block) error {
	if b.a == nil {
		return ErrInvalidBlock
	}
	if b.a.released.Load() {
		return fmt.Errorf("%w: %s", ErrDoubleFree, b)
	}
	if owner := b.a.owner.Load(); owner != h {
		owner.pushRemote(b)
		h.al.stats.remoteFrees.Add(1)
		return nil
	}
	return h.freeLocal(b)
}

func (h *Heap) freeLocal(b Block) error {
	a := b.a
	if a.released.Load() {
		return fmt.Errorf("%w: %s", ErrDoubleFree, b)
	}
	if a.large {
		delete(h.large, a.id)
		a.live.Store(0)
		a.usedPages.Store(0)
		h.al.stats.largeFrees.Add(1)
		h.al.stats.largeLive.Add(-1)
		h.al.stats.largeBytes.Add(-int64(a.size))
		return h.al.unmapArena(a)
	}

	if int(b.page) >= len(a.pages) {
		return fmt.Errorf("%w: %s", ErrInvalidBlock, b)
	}
	p := &a.pages[b.page]
	if int(b.index) >= p.nblocks || !p.used.Test(uint(b.index)) {
		return fmt.Errorf("%w: %s", ErrDoubleFree, b)
	}

	p.used.Clear(uint(b.index))
	p.free = append(p.free, b.index)
	p.live--
	a.live.Add(-1)

	cs := &h.al.stats.classes[p.class]
	cs.frees.Add(1)
	cs.live.Add(-1)

	ref := pageRef{a: a, idx: b.page}
	if p.live > 0 {
		h.linkPage(ref)
		return nil
	}

	h.unlinkPage(ref)
	a.releasePage(b.page)
	h.retained[p.class]++
	if h.al.cfg.DecommitEmptyPages {
		if d, ok := a.region.(Decommitter); ok {
			off, size := a.pageBytes(b.page)
			if err := d.Decommit(off, size); err != nil {
				return fmt.Errorf("alloc: decommit page %d of arena %d: %w", b.page, a.id, err)
			}
		}
	}

	if a.usedPages.Load() > 0 {
		return nil
	}
	h.empty++
	if h.empty <= h.al.cfg.RetainEmptyArenas {
		return nil
	}
	h.empty--
	h.removeArena(a)
	return h.al.unmapArena(a)
}

func (h *Heap) pushRemote(b Block) {
	target := h
	for {
		target.mu.Lock()
		next := target.adoptedBy
		if next == nil {
			target.remote = append(target.remote, b)
			target.pending.Store(true)
			target.mu.Unlock()
			return
		}
		target.mu.Unlock()
		target = next
	}
}

// Drain applies frees queued by other heaps. Allocate drains automatically.
func (h *Heap) Drain() {
	h.mu.Lock()
	queued := h.remote
	h.remote = nil
	h.pending.Store(false)
	h.mu.Unlock()

	for _, b := range queued {
		if b.a.owner.Load() != h {
			// Reparented since it was queued.
			b.a.owner.Load().pushRemote(b)
			continue
		}
		if err := h.freeLocal(b); err != nil {
			h.al.cfg.FaultHandler(err)
		}
	}
}

// Detach abandons the heap. An empty heap is unmapped immediately; otherwise
// its arenas are adopted by the next heap that runs out of pages.
func (h *Heap) Detach() error {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return nil
	}
	h.detached = true
	h.mu.Unlock()

	h.Drain()

	if len(h.large) == 0 && h.empty == len(h.arenas) {
		var errs []error
		for len(h.arenas) > 0 {
			a := h.arenas[len(h.arenas)-1]
			h.removeArena(a)
			if err := h.al.unmapArena(a); err != nil {
				errs = append(errs, err)
			}
		}
		h.empty = 0
		h.al.forgetHeap(h)
		return errors.Join(errs...)
	}

	h.al.abandon(h)
	return nil
}

func (h *Heap) isDetached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detached
}

// adoptAbandoned reparents the arenas of one abandoned heap to h.
func (h *Heap) adoptAbandoned() bool {
	from := h.al.popAbandoned()
	if from == nil {
		return false
	}

	from.mu.Lock()
	from.adoptedBy = h
	queued := from.remote
	from.remote = nil
	from.pending.Store(false)
	from.mu.Unlock()

	for _, a := range from.arenas {
		a.owner.Store(h)
		h.addArena(a)
	}
	for c := range from.retained {
		h.retained[c] += from.retained[c]
	}
	for c, head := range from.partial {
		for ref := head; ref.valid(); {
			next := ref.page().next
			ref.page().partial = false
			h.linkPage(ref)
			ref = next
		}
		from.partial[c] = pageRef{}
	}
	for id, a := range from.large {
		a.owner.Store(h)
		h.large[id] = a
	}
	from.arenas, from.large = nil, nil

	for _, b := range queued {
		if err := h.freeLocal(b); err != nil {
			h.al.cfg.FaultHandler(err)
		}
	}
	return true
}

// LiveBlocks returns the number of blocks currently allocated from h.
func (h *Heap) LiveBlocks() int64 {
	var n int64
	for _, a := range h.arenas {
		n += a.live.Load()
	}
	return n + int64(len(h.large))
}
