package heapcore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// externallyHeld is the scratch count given to immortal candidates so that
// no amount of internal references can make them look unreachable.
const externallyHeld = math.MaxInt64 / 2

// CollectionResult describes one collection pass.
type CollectionResult struct {
	Generation     int
	Examined       int
	Collected      int
	Resurrected    int
	BytesReclaimed int64
	Duration       time.Duration
}

// RequestCollection collects gen and every younger generation. It runs even
// when automatic collection is disabled. A pass always runs to completion.
func (rt *Runtime) RequestCollection(gen int) (CollectionResult, error) {
	if rt.closed.Load() {
		return CollectionResult{}, ErrClosed
	}
	if gen < 0 || gen >= NumGenerations {
		return CollectionResult{}, fmt.Errorf("%w: %d", ErrInvalidGeneration, gen)
	}
	if rt.collecting {
		return CollectionResult{}, ErrCollectionInProgress
	}
	if rt.scheduled >= 0 && rt.scheduled <= gen {
		rt.scheduled = -1
	}
	return rt.collect(gen), nil
}

// Collect runs a full collection.
func (rt *Runtime) Collect() (CollectionResult, error) {
	return rt.RequestCollection(NumGenerations - 1)
}

// IsCollecting reports whether a pass is running.
func (rt *Runtime) IsCollecting() bool { return rt.collecting }

func (rt *Runtime) collect(gen int) CollectionResult {
	start := time.Now()
	rt.collecting = true
	defer func() { rt.collecting = false }()

	young := &rt.gens[gen].list
	for i := 0; i < gen; i++ {
		rt.tbl.splice(young, &rt.gens[i].list)
	}

	candidates := rt.updateRefs(young, gen)
	rt.subtractRefs(young, candidates)
	unreachable := roaring.AndNot(candidates, rt.reachable(young, candidates))

	res := CollectionResult{
		Generation: gen,
		Examined:   int(candidates.GetCardinality()), //nolint:gosec // bounded by slot count
	}

	rt.moveUnreachable(young, unreachable)
	survivors := young.len()
	if gen < NumGenerations-1 {
		next := int8(gen + 1) //nolint:gosec // gen < NumGenerations
		rt.tbl.retag(young, next)
		rt.tbl.splice(&rt.gens[next].list, young)
		if int(next) == NumGenerations-1 {
			rt.longLivedPending += survivors
		}
	} else {
		rt.longLivedPending = 0
		rt.longLivedTotal = survivors
	}

	if !unreachable.IsEmpty() {
		res.Collected, res.Resurrected, res.BytesReclaimed = rt.sweepUnreachable(unreachable)
	}

	for i := 0; i <= gen; i++ {
		rt.gens[i].count.Store(0)
	}
	if gen+1 < NumGenerations {
		rt.gens[gen+1].count.Add(1)
	}

	g := &rt.gens[gen].stats
	g.collections.Add(1)
	g.examined.Add(int64(res.Examined))
	g.collected.Add(int64(res.Collected))
	g.resurrected.Add(int64(res.Resurrected))
	g.bytesReclaimed.Add(res.BytesReclaimed)

	res.Duration = time.Since(start)
	rt.metrics.RecordCollection(gen, res.Collected, res.Resurrected, res.Duration)
	rt.log.LogCollection(context.Background(), res)
	return res
}

// updateRefs copies every candidate's count into its scratch counter.
func (rt *Runtime) updateRefs(young *genList, gen int) *roaring.Bitmap {
	candidates := roaring.New()
	for idx := young.head; idx != 0; {
		h := rt.tbl.at(idx)
		h.gcGen = int8(gen) //nolint:gosec // gen < NumGenerations
		if h.is(flagImmortal) || h.refcnt > externallyHeld {
			h.gcRefs = externallyHeld
		} else {
			h.gcRefs = int64(h.refcnt)
		}
		candidates.Add(idx)
		idx = h.next
	}
	return candidates
}

// subtractRefs removes every reference between candidates from the scratch
// counters. What is left counts references from outside the set.
func (rt *Runtime) subtractRefs(young *genList, candidates *roaring.Bitmap) {
	for idx := young.head; idx != 0; {
		h := rt.tbl.at(idx)
		parent := makeRef(idx, h.gen)
		typ := h.typ
		typ.Traverse(Object{rt: rt, ref: parent}, func(child Ref) {
			ch := rt.checkChild(parent, typ, child)
			if ch == nil || !candidates.Contains(child.index()) {
				return
			}
			ch.gcRefs--
			if ch.gcRefs < 0 {
				rt.fault(FaultTraverseContract, "collect", child, ch.typ,
					fmt.Sprintf("more references visited than counted (from %s)", parent))
			}
		})
		idx = h.next
	}
}

// checkChild validates an edge reported by traverse.
func (rt *Runtime) checkChild(parent Ref, typ Type, child Ref) *header {
	if child.IsZero() {
		return nil
	}
	ch, ok := rt.tbl.lookup(child)
	if !ok {
		rt.fault(FaultTraverseContract, "collect", parent, typ,
			fmt.Sprintf("traverse reported freed object %s", child))
	}
	return ch
}

// reachable returns the candidates reachable from a candidate that is held
// from outside the set.
func (rt *Runtime) reachable(young *genList, candidates *roaring.Bitmap) *roaring.Bitmap {
	reach := roaring.New()
	var stack []uint32
	for idx := young.head; idx != 0; idx = rt.tbl.at(idx).next {
		if rt.tbl.at(idx).gcRefs > 0 {
			reach.Add(idx)
			stack = append(stack, idx)
		}
	}

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := rt.tbl.at(idx)
		h.typ.Traverse(Object{rt: rt, ref: makeRef(idx, h.gen)}, func(child Ref) {
			ci := child.index()
			if child.IsZero() || !candidates.Contains(ci) || reach.Contains(ci) {
				return
			}
			reach.Add(ci)
			stack = append(stack, ci)
		})
	}
	return reach
}

// moveUnreachable moves the unreachable candidates into the sweep list.
func (rt *Runtime) moveUnreachable(young *genList, unreachable *roaring.Bitmap) {
	it := unreachable.Iterator()
	for it.HasNext() {
		idx := it.Next()
		h := rt.tbl.at(idx)
		rt.tbl.remove(young, idx)
		rt.tbl.push(&rt.sweep, idx)
		h.gcGen = genUnreachable
	}
}

// sweepUnreachable destroys an unreachable batch. Every object is pinned
// while the batch is cleared and finalized, so edges inside the batch cannot
// free a sibling early. Per object, clear happens before finalize, which
// happens before the block is freed.
func (rt *Runtime) sweepUnreachable(unreachable *roaring.Bitmap) (collected, resurrected int, bytes int64) {
	batch := unreachable.ToArray()

	var dead []*WeakRef
	for _, idx := range batch {
		h := rt.tbl.at(idx)
		h.flags |= flagCollecting | flagDying
		h.refcnt++
		dead = append(dead, rt.invalidateWeakRefs(makeRef(idx, h.gen))...)
	}

	for _, idx := range batch {
		h := rt.tbl.at(idx)
		obj := Object{rt: rt, ref: makeRef(idx, h.gen)}
		typ := h.typ
		rt.invoke("clear", obj.ref, typ, func() { typ.Clear(obj) })
		if !h.is(flagFinalized) {
			h.flags |= flagFinalized
			rt.invoke("finalize", obj.ref, typ, func() { typ.Finalize(obj) })
			rt.stats.finalized.Add(1)
		}
	}

	rt.runWeakCallbacks(dead)

	for _, idx := range batch {
		h := rt.tbl.at(idx)
		h.flags &^= flagCollecting
		h.refcnt--
		if h.refcnt > 0 {
			h.flags &^= flagDying
			// Resurrected by a finalizer or a weak reference callback.
			if h.is(flagTracked) {
				rt.tbl.remove(&rt.sweep, idx)
				rt.tbl.push(&rt.gens[NumGenerations-1].list, idx)
				h.gcGen = NumGenerations - 1
			}
			rt.stats.resurrected.Add(1)
			resurrected++
			continue
		}

		ref := makeRef(idx, h.gen)
		late := rt.invalidateWeakRefs(ref)
		rt.untrack(idx, h)
		bytes += int64(rt.free(rt.heap, idx, h))
		rt.runWeakCallbacks(late)
		collected++
	}
	return collected, resurrected, bytes
}
