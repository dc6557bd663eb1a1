package alloc

import (
	"cmp"
	"slices"
	"sync/atomic"
)

// ClassStats is the accounting of one size class.
type ClassStats struct {
	Class          int   `json:"class"`
	Size           int   `json:"size"`
	Allocs         int64 `json:"allocs"`
	Frees          int64 `json:"frees"`
	FreelistHits   int64 `json:"freelistHits"`
	FreelistMisses int64 `json:"freelistMisses"`
	LiveBlocks     int64 `json:"liveBlocks"`
	Pages          int64 `json:"pages"`
}

// ArenaStats describes one mapped arena.
type ArenaStats struct {
	ID         uint32 `json:"id"`
	Heap       uint32 `json:"heap"`
	Bytes      int    `json:"bytes"`
	Pages      int    `json:"pages"`
	UsedPages  int    `json:"usedPages"`
	LiveBlocks int64  `json:"liveBlocks"`
	Large      bool   `json:"large"`
}

// Stats is a snapshot of allocator accounting.
//
// Note on semantics:
//   - Allocs, Frees, FreelistHits, FreelistMisses, ArenasMapped,
//     ArenasReleased, LargeAllocs, LargeFrees, RemoteFrees and AllocFailures
//     are monotonic and zeroed by ResetStats
//   - LiveBlocks, Pages, ActiveArenas, BytesMapped, LargeLive and LargeBytes
//     describe current state and survive ResetStats
type Stats struct {
	Classes        []ClassStats `json:"classes"`
	Arenas         []ArenaStats `json:"arenas"`
	ArenasMapped   int64        `json:"arenasMapped"`
	ArenasReleased int64        `json:"arenasReleased"`
	ActiveArenas   int          `json:"activeArenas"`
	BytesMapped    int64        `json:"bytesMapped"`
	LargeAllocs    int64        `json:"largeAllocs"`
	LargeFrees     int64        `json:"largeFrees"`
	LargeLive      int64        `json:"largeLive"`
	LargeBytes     int64        `json:"largeBytes"`
	RemoteFrees    int64        `json:"remoteFrees"`
	AllocFailures  int64        `json:"allocFailures"`
	Heaps          int          `json:"heaps"`
}

// TotalAllocs sums small and large allocations.
func (s Stats) TotalAllocs() int64 {
	n := s.LargeAllocs
	for _, c := range s.Classes {
		n += c.Allocs
	}
	return n
}

// TotalFrees sums small and large frees.
func (s Stats) TotalFrees() int64 {
	n := s.LargeFrees
	for _, c := range s.Classes {
		n += c.Frees
	}
	return n
}

// LiveBlocks sums live small and large blocks.
func (s Stats) LiveBlocks() int64 {
	n := s.LargeLive
	for _, c := range s.Classes {
		n += c.LiveBlocks
	}
	return n
}

type classCounters struct {
	allocs atomic.Int64
	frees  atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
	live   atomic.Int64
	pages  atomic.Int64
}

type allocStats struct {
	classes        []classCounters
	arenasMapped   atomic.Int64
	arenasReleased atomic.Int64
	bytesMapped    atomic.Int64
	largeAllocs    atomic.Int64
	largeFrees     atomic.Int64
	largeLive      atomic.Int64
	largeBytes     atomic.Int64
	remoteFrees    atomic.Int64
	allocFailures  atomic.Int64
}

func (s *allocStats) init(classes int) {
	s.classes = make([]classCounters, classes)
}

// Stats returns a snapshot of the allocator counters. It is safe to call
// from any goroutine and never changes allocator state.
func (al *Allocator) Stats() Stats {
	st := Stats{
		Classes:        make([]ClassStats, al.classes.len()),
		ArenasMapped:   al.stats.arenasMapped.Load(),
		ArenasReleased: al.stats.arenasReleased.Load(),
		BytesMapped:    al.stats.bytesMapped.Load(),
		LargeAllocs:    al.stats.largeAllocs.Load(),
		LargeFrees:     al.stats.largeFrees.Load(),
		LargeLive:      al.stats.largeLive.Load(),
		LargeBytes:     al.stats.largeBytes.Load(),
		RemoteFrees:    al.stats.remoteFrees.Load(),
		AllocFailures:  al.stats.allocFailures.Load(),
	}
	for i := range st.Classes {
		c := &al.stats.classes[i]
		st.Classes[i] = ClassStats{
			Class:          i,
			Size:           al.classes.blockSize(i),
			Allocs:         c.allocs.Load(),
			Frees:          c.frees.Load(),
			FreelistHits:   c.hits.Load(),
			FreelistMisses: c.misses.Load(),
			LiveBlocks:     c.live.Load(),
			Pages:          c.pages.Load(),
		}
	}

	al.mu.Lock()
	st.Heaps = len(al.heaps)
	st.Arenas = make([]ArenaStats, 0, len(al.registry))
	for _, a := range al.registry {
		as := ArenaStats{
			ID:         a.id,
			Bytes:      a.size,
			Pages:      len(a.pages),
			UsedPages:  int(a.usedPages.Load()),
			LiveBlocks: a.live.Load(),
			Large:      a.large,
		}
		if owner := a.owner.Load(); owner != nil {
			as.Heap = owner.id
		}
		st.Arenas = append(st.Arenas, as)
	}
	al.mu.Unlock()

	slices.SortFunc(st.Arenas, func(x, y ArenaStats) int {
		return cmp.Compare(x.ID, y.ID)
	})
	st.ActiveArenas = len(st.Arenas)
	return st
}

// ResetStats zeroes the monotonic counters. Gauges are left untouched.
func (al *Allocator) ResetStats() {
	for i := range al.stats.classes {
		c := &al.stats.classes[i]
		c.allocs.Store(0)
		c.frees.Store(0)
		c.hits.Store(0)
		c.misses.Store(0)
	}
	al.stats.arenasMapped.Store(0)
	al.stats.arenasReleased.Store(0)
	al.stats.largeAllocs.Store(0)
	al.stats.largeFrees.Store(0)
	al.stats.remoteFrees.Store(0)
	al.stats.allocFailures.Store(0)
}
