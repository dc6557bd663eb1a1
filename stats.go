package heapcore

import (
	"sync/atomic"

	"github.com/hupe1980/heapcore/alloc"
)

// ObjectStats counts ownership activity.
type ObjectStats struct {
	Allocated          int64 `json:"allocated"`
	Freed              int64 `json:"freed"`
	Live               int64 `json:"live"`
	Immortal           int64 `json:"immortal"`
	Acquires           int64 `json:"acquires"`
	Releases           int64 `json:"releases"`
	Finalized          int64 `json:"finalized"`
	Resurrected        int64 `json:"resurrected"`
	Unraisable         int64 `json:"unraisable"`
	DeferredDeallocs   int64 `json:"deferredDeallocs"`
	AllocationFailures int64 `json:"allocationFailures"`
}

// WeakRefStats counts weak reference activity.
type WeakRefStats struct {
	Created     int64 `json:"created"`
	Invalidated int64 `json:"invalidated"`
	Callbacks   int64 `json:"callbacks"`
	Live        int64 `json:"live"`
}

// GenerationStats describes one generation.
type GenerationStats struct {
	Collections    int64 `json:"collections"`
	Examined       int64 `json:"examined"`
	Collected      int64 `json:"collected"`
	BytesReclaimed int64 `json:"bytesReclaimed"`
	Resurrected    int64 `json:"resurrected"`
	Count          int64 `json:"count"`
	Threshold      int   `json:"threshold"`
	Members        int   `json:"members"`
}

// Stats is a snapshot of every counter of the runtime.
//
// Note on semantics:
//   - Live, Immortal, WeakRefs.Live, Count, Threshold, Members and Frozen
//     describe current state and survive ResetStats
//   - everything else is monotonic and zeroed by ResetStats
type Stats struct {
	Allocator      alloc.Stats                     `json:"allocator"`
	Objects        ObjectStats                     `json:"objects"`
	WeakRefs       WeakRefStats                    `json:"weakRefs"`
	Generations    [NumGenerations]GenerationStats `json:"generations"`
	Frozen         int                             `json:"frozen"`
	PacedOut       int64                           `json:"pacedOut"`
	MemoryUsed     int64                           `json:"memoryUsed"`
	MemoryPeak     int64                           `json:"memoryPeak"`
	MemoryLimit    int64                           `json:"memoryLimit"`
	TotalCollected int64                           `json:"totalCollected"`
}

type runtimeStats struct {
	allocated       atomic.Int64
	freed           atomic.Int64
	live            atomic.Int64
	immortal        atomic.Int64
	acquires        atomic.Int64
	releases        atomic.Int64
	finalized       atomic.Int64
	resurrected     atomic.Int64
	unraisable      atomic.Int64
	deferred        atomic.Int64
	allocFailures   atomic.Int64
	weakCreated     atomic.Int64
	weakInvalidated atomic.Int64
	weakCallbacks   atomic.Int64
	weakLive        atomic.Int64
	pacedOut        atomic.Int64
}

// QueryStats returns a snapshot of all counters. It is safe to call from any
// goroutine and never alters allocator or tracer behavior. After Close it
// returns the final snapshot.
func (rt *Runtime) QueryStats() Stats {
	if final := rt.final.Load(); final != nil {
		return *final
	}
	return rt.snapshot()
}

func (rt *Runtime) snapshot() Stats {
	s := Stats{
		Allocator: rt.al.Stats(),
		Objects: ObjectStats{
			Allocated:          rt.stats.allocated.Load(),
			Freed:              rt.stats.freed.Load(),
			Live:               rt.stats.live.Load(),
			Immortal:           rt.stats.immortal.Load(),
			Acquires:           rt.stats.acquires.Load(),
			Releases:           rt.stats.releases.Load(),
			Finalized:          rt.stats.finalized.Load(),
			Resurrected:        rt.stats.resurrected.Load(),
			Unraisable:         rt.stats.unraisable.Load(),
			DeferredDeallocs:   rt.stats.deferred.Load(),
			AllocationFailures: rt.stats.allocFailures.Load(),
		},
		WeakRefs: WeakRefStats{
			Created:     rt.stats.weakCreated.Load(),
			Invalidated: rt.stats.weakInvalidated.Load(),
			Callbacks:   rt.stats.weakCallbacks.Load(),
			Live:        rt.stats.weakLive.Load(),
		},
		Frozen:      rt.permanent.len(),
		PacedOut:    rt.stats.pacedOut.Load(),
		MemoryUsed:  rt.ctrl.MemoryUsage(),
		MemoryPeak:  rt.ctrl.MemoryPeak(),
		MemoryLimit: rt.ctrl.MemoryLimit(),
	}
	for i := range rt.gens {
		g := &rt.gens[i]
		s.Generations[i] = GenerationStats{
			Collections:    g.stats.collections.Load(),
			Examined:       g.stats.examined.Load(),
			Collected:      g.stats.collected.Load(),
			BytesReclaimed: g.stats.bytesReclaimed.Load(),
			Resurrected:    g.stats.resurrected.Load(),
			Count:          g.count.Load(),
			Threshold:      g.threshold,
			Members:        g.list.len(),
		}
		s.TotalCollected += s.Generations[i].Collected
	}
	return s
}

// ResetStats zeroes the monotonic counters of the runtime and its allocator.
// It is a no-op after Close.
func (rt *Runtime) ResetStats() {
	if rt.closed.Load() {
		return
	}
	rt.al.ResetStats()
	for _, c := range []*atomic.Int64{
		&rt.stats.allocated, &rt.stats.freed, &rt.stats.acquires, &rt.stats.releases,
		&rt.stats.finalized, &rt.stats.resurrected, &rt.stats.unraisable, &rt.stats.deferred,
		&rt.stats.allocFailures, &rt.stats.weakCreated, &rt.stats.weakInvalidated,
		&rt.stats.weakCallbacks, &rt.stats.pacedOut,
	} {
		c.Store(0)
	}
	for i := range rt.gens {
		g := &rt.gens[i].stats
		g.collections.Store(0)
		g.examined.Store(0)
		g.collected.Store(0)
		g.bytesReclaimed.Store(0)
		g.resurrected.Store(0)
	}
}
