package heapcore

import (
	"log/slog"
	"sync/atomic"
)

// generation is one age partition of tracked objects.
type generation struct {
	list      genList
	count     atomic.Int64 // allocations (gen 0) or younger passes (gen 1, 2)
	threshold int
	stats     genCounters
}

type genCounters struct {
	collections    atomic.Int64
	collected      atomic.Int64
	bytesReclaimed atomic.Int64
	resurrected    atomic.Int64
	examined       atomic.Int64
}

func (rt *Runtime) listFor(gcGen int8) *genList {
	switch {
	case gcGen >= 0 && gcGen < NumGenerations:
		return &rt.gens[gcGen].list
	case gcGen == genPermanent:
		return &rt.permanent
	case gcGen == genUnreachable:
		return &rt.sweep
	default:
		return nil
	}
}

func (rt *Runtime) track(idx uint32, h *header) {
	h.flags |= flagTracked
	h.gcGen = 0
	rt.tbl.push(&rt.gens[0].list, idx)
}

func (rt *Runtime) untrack(idx uint32, h *header) {
	if !h.is(flagTracked) {
		return
	}
	if l := rt.listFor(h.gcGen); l != nil {
		rt.tbl.remove(l, idx)
	}
	h.flags &^= flagTracked
	h.gcGen = genUntracked
}

// schedule picks the oldest generation over its threshold. A full pass also
// requires the objects promoted into the oldest generation since the last
// full pass to exceed a quarter of those that survived it.
func (rt *Runtime) schedule() {
	if !rt.enabled || rt.collecting || rt.scheduled >= 0 || rt.gens[0].threshold == 0 {
		return
	}
	for i := NumGenerations - 1; i >= 0; i-- {
		g := &rt.gens[i]
		if g.count.Load() <= int64(g.threshold) {
			continue
		}
		if i == NumGenerations-1 && rt.longLivedPending < rt.longLivedTotal/4 {
			continue
		}
		rt.scheduled = i
		return
	}
}

// runScheduled runs the scheduled pass if the pacer allows it.
func (rt *Runtime) runScheduled() (CollectionResult, bool) {
	if rt.scheduled < 0 || rt.collecting || !rt.enabled || rt.closed.Load() {
		return CollectionResult{}, false
	}
	if !rt.ctrl.AllowCollection() {
		rt.stats.pacedOut.Add(1)
		return CollectionResult{}, false
	}
	gen := rt.scheduled
	rt.scheduled = -1
	return rt.collect(gen), true
}

// SafePoint tells the runtime that no partially constructed object is
// reachable. Frees queued by other threads are applied and a scheduled
// collection runs. It reports whether a pass ran.
func (rt *Runtime) SafePoint() (CollectionResult, bool) {
	if rt.closed.Load() {
		return CollectionResult{}, false
	}
	rt.heap.Drain()
	return rt.runScheduled()
}

// Enable turns automatic collection on.
func (rt *Runtime) Enable() {
	rt.enabled = true
	rt.schedule()
}

// Disable turns automatic collection off. Explicit requests still run.
func (rt *Runtime) Disable() {
	rt.enabled = false
	rt.scheduled = -1
}

// IsEnabled reports whether automatic collection is on.
func (rt *Runtime) IsEnabled() bool { return rt.enabled }

// Freeze moves every tracked object into the permanent generation, which
// collections ignore.
func (rt *Runtime) Freeze() error {
	if rt.collecting {
		return ErrCollectionInProgress
	}
	for i := range rt.gens {
		rt.tbl.retag(&rt.gens[i].list, genPermanent)
		rt.tbl.splice(&rt.permanent, &rt.gens[i].list)
	}
	rt.gens[0].count.Store(0)
	rt.scheduled = -1
	rt.debug("heap frozen", slog.Int("frozen", rt.permanent.len()))
	return nil
}

// Unfreeze moves the permanent generation back into the oldest generation.
func (rt *Runtime) Unfreeze() error {
	if rt.collecting {
		return ErrCollectionInProgress
	}
	rt.tbl.retag(&rt.permanent, NumGenerations-1)
	rt.tbl.splice(&rt.gens[NumGenerations-1].list, &rt.permanent)
	return nil
}

// FreezeCount returns the size of the permanent generation.
func (rt *Runtime) FreezeCount() int { return rt.permanent.len() }

// Track adds o to the young generation if it is not tracked yet.
func (rt *Runtime) Track(o Object) {
	h := rt.header("track", o.ref)
	if h.is(flagTracked) {
		return
	}
	rt.track(o.ref.index(), h)
}

// Untrack removes o from the tracer's generations.
func (rt *Runtime) Untrack(o Object) {
	rt.untrack(o.ref.index(), rt.header("untrack", o.ref))
}

// IsTracked reports whether o is in a generation or the permanent set.
func (rt *Runtime) IsTracked(o Object) bool {
	return rt.header("is tracked", o.ref).is(flagTracked)
}

// Counts returns the per-generation counters.
func (rt *Runtime) Counts() [NumGenerations]int {
	var out [NumGenerations]int
	for i := range rt.gens {
		out[i] = int(rt.gens[i].count.Load())
	}
	return out
}

// Thresholds returns the per-generation thresholds.
func (rt *Runtime) Thresholds() [NumGenerations]int {
	var out [NumGenerations]int
	for i := range rt.gens {
		out[i] = rt.gens[i].threshold
	}
	return out
}
