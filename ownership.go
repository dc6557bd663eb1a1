package heapcore

import (
	"fmt"
	"math"

	"github.com/hupe1980/heapcore/alloc"
)

// Acquire adds one reference to o.
func (rt *Runtime) Acquire(o Object) { rt.AcquireN(o, 1) }

// AcquireN adds n references to o in one step. It is a no-op for immortal
// objects and for n == 0.
func (rt *Runtime) AcquireN(o Object, n uint64) {
	h := rt.header("acquire", o.ref)
	if n == 0 || h.is(flagImmortal) {
		return
	}
	if h.refcnt > math.MaxUint64-n {
		rt.fault(FaultRefCountOverflow, "acquire", o.ref, h.typ,
			fmt.Sprintf("count %d + %d", h.refcnt, n))
	}
	h.refcnt += n
	rt.stats.acquires.Add(int64(n)) //nolint:gosec // counter wraps harmlessly
}

// Release drops one reference to o. Dropping the last reference destroys the
// object: weak references are invalidated, the object is finalized (once per
// life), untracked and cleared, weak callbacks run and its block is freed.
// Releasing an object whose count is already zero is a fault.
func (rt *Runtime) Release(o Object) {
	rt.release(rt.heap, o.ref)
}

func (rt *Runtime) release(heap *alloc.Heap, ref Ref) {
	h := rt.header("release", ref)
	if h.is(flagImmortal) {
		return
	}
	if h.refcnt == 0 {
		rt.fault(FaultDoubleRelease, "release", ref, h.typ, "count already zero")
	}
	rt.stats.releases.Add(1)
	h.refcnt--
	if h.refcnt > 0 {
		return
	}
	if h.is(flagCollecting) {
		rt.fault(FaultReentrantFree, "release", ref, h.typ, "object is being collected")
	}
	rt.dealloc(heap, ref.index())
}

// Immortalize exempts o from counting for the rest of the run.
func (rt *Runtime) Immortalize(o Object) {
	h := rt.header("immortalize", o.ref)
	if h.is(flagImmortal) {
		return
	}
	h.flags |= flagImmortal
	rt.stats.immortal.Add(1)
}

// dealloc destroys the object at idx, or queues it when destruction is
// already nested too deeply. A queued object leaves its generation at once,
// so no collection can reach it before the outermost call drains the queue.
func (rt *Runtime) dealloc(heap *alloc.Heap, idx uint32) {
	if rt.depth >= rt.opts.deallocDepth {
		h := rt.tbl.at(idx)
		h.flags |= flagDying
		if h.is(flagTracked) {
			h.flags |= flagRetrack
		}
		rt.retire(idx, h)
		rt.trash = append(rt.trash, makeRef(idx, h.gen))
		rt.stats.deferred.Add(1)
		return
	}

	rt.depth++
	defer func() { rt.depth-- }()
	rt.destroy(heap, idx)

	if rt.depth > 1 {
		return
	}
	for len(rt.trash) > 0 {
		n := len(rt.trash) - 1
		next := rt.trash[n]
		rt.trash = rt.trash[:n]
		if h, ok := rt.tbl.lookup(next); ok && h.refcnt == 0 {
			rt.destroy(heap, next.index())
		}
	}
}

// retire removes a dying object from the tracer's generations.
func (rt *Runtime) retire(idx uint32, h *header) {
	if !h.is(flagTracked) {
		return
	}
	rt.untrack(idx, h)
	if rt.gens[0].count.Load() > 0 {
		rt.gens[0].count.Add(-1)
	}
}

// destroy runs the direct destruction path of an object whose count reached
// zero.
func (rt *Runtime) destroy(heap *alloc.Heap, idx uint32) {
	h := rt.tbl.at(idx)
	ref := makeRef(idx, h.gen)
	obj := Object{rt: rt, ref: ref}
	typ := h.typ

	h.flags |= flagDying
	dead := rt.invalidateWeakRefs(ref)

	if !h.is(flagFinalized) {
		// The finalizer sees a count of one; dropping it again is re-entrant.
		h.flags |= flagFinalized | flagCollecting
		h.refcnt = 1
		rt.invoke("finalize", ref, typ, func() { typ.Finalize(obj) })
		rt.stats.finalized.Add(1)
		h.flags &^= flagCollecting
		h.refcnt--
		if h.refcnt > 0 {
			if h.is(flagRetrack) {
				rt.track(idx, h)
			}
			h.flags &^= flagDying | flagRetrack
			rt.stats.resurrected.Add(1)
			rt.runWeakCallbacks(dead)
			return
		}
	}

	rt.retire(idx, h)
	rt.invoke("clear", ref, typ, func() { typ.Clear(obj) })
	// Weak references created by the finalizer or by clear die here too.
	dead = append(dead, rt.invalidateWeakRefs(ref)...)
	rt.runWeakCallbacks(dead)
	rt.free(heap, idx, h)
}

// free returns the object's block and retires its slot.
func (rt *Runtime) free(heap *alloc.Heap, idx uint32, h *header) int {
	ref := makeRef(idx, h.gen)
	size := h.block.Size()
	if err := heap.Free(h.block); err != nil {
		rt.fault(FaultBlockDoubleFree, "free", ref, h.typ, err.Error())
	}
	rt.tbl.release(idx)
	rt.stats.freed.Add(1)
	rt.stats.live.Add(-1)
	return size
}
