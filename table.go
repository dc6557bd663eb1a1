package heapcore

import (
	"github.com/hupe1980/heapcore/alloc"
	"github.com/hupe1980/heapcore/internal/container"
)

const (
	flagLive uint8 = 1 << iota
	flagImmortal
	flagTracked
	flagFinalized
	flagCollecting
	flagDying   // destruction has begun; weak references no longer resolve
	flagRetrack // untracked while queued for destruction
)

// gcGen values beyond the collectable generations.
const (
	genUntracked   int8 = -1
	genPermanent   int8 = NumGenerations
	genUnreachable int8 = NumGenerations + 1
)

// header is the out-of-line bookkeeping of one managed object.
type header struct {
	gen    uint32 // slot generation, bumped on free
	flags  uint8
	gcGen  int8
	refcnt uint64
	typ    Type
	block  alloc.Block

	// Generation list links, as slot indices. 0 terminates.
	prev, next uint32
	// Scratch count used by the tracer.
	gcRefs int64
}

func (h *header) is(flag uint8) bool { return h.flags&flag != 0 }

// table stores headers in stable segments. Slot 0 is reserved so that a zero
// index can terminate lists.
type table struct {
	slots *container.SegmentedArray[header]
	free  []uint32
	next  uint32
}

func newTable() table {
	return table{
		slots: container.NewSegmentedArray[header](),
		next:  1,
	}
}

// alloc returns a fresh live header.
func (t *table) alloc() (uint32, *header) {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = t.next
		t.next++
	}
	h := t.slots.Grow(idx)
	h.flags = flagLive
	h.gcGen = genUntracked
	return idx, h
}

// release retires a slot. Old Refs to it stop resolving.
func (t *table) release(idx uint32) {
	h := t.slots.Ptr(idx)
	*h = header{gen: h.gen + 1}
	t.free = append(t.free, idx)
}

// at returns the header at idx without validation.
func (t *table) at(idx uint32) *header {
	return t.slots.Ptr(idx)
}

// lookup resolves a Ref to its live header.
func (t *table) lookup(ref Ref) (*header, bool) {
	idx := ref.index()
	if idx == 0 || idx >= t.next {
		return nil, false
	}
	h := t.slots.Ptr(idx)
	if h == nil || !h.is(flagLive) || h.gen != ref.gen() {
		return nil, false
	}
	return h, true
}

// ref returns the current Ref of the live slot idx.
func (t *table) ref(idx uint32) Ref {
	return makeRef(idx, t.slots.Ptr(idx).gen)
}

// each calls fn for every live slot in index order until fn returns false.
func (t *table) each(fn func(idx uint32, h *header) bool) {
	for idx := uint32(1); idx < t.next; idx++ {
		h := t.slots.Ptr(idx)
		if h == nil || !h.is(flagLive) {
			continue
		}
		if !fn(idx, h) {
			return
		}
	}
}
