package alloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/heapcore/internal/conv"
)

var (
	// ErrOutOfMemory is returned when the backing store or the memory budget
	// cannot supply another mapping.
	ErrOutOfMemory = errors.New("alloc: out of memory")
	// ErrDoubleFree is returned when a block is freed that is not live.
	ErrDoubleFree = errors.New("alloc: double free")
	// ErrInvalidBlock is returned for the zero Block or a block from another allocator.
	ErrInvalidBlock = errors.New("alloc: invalid block")
	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("alloc: invalid config")
	// ErrClosed is returned after the allocator has been closed.
	ErrClosed = errors.New("alloc: allocator closed")
	// ErrHeapDetached is returned when a detached heap is used for allocation.
	ErrHeapDetached = errors.New("alloc: heap detached")
)

const (
	// DefaultPageSize is the default page size (16 KiB).
	DefaultPageSize = 16 * 1024
	// DefaultArenaSize is the default arena size (1 MiB).
	DefaultArenaSize = 1024 * 1024
	// MinPageSize is the smallest accepted page size.
	MinPageSize = 4096
)

// Config configures an Allocator. Zero values select defaults.
type Config struct {
	// SizeClasses is the ascending block size table. Defaults to DefaultSizeClasses.
	SizeClasses []int
	// PageSize must be a power of two of at least MinPageSize.
	PageSize int
	// ArenaSize must be a multiple of PageSize.
	ArenaSize int
	// Store supplies arena memory. Defaults to MmapStore.
	Store BackingStore
	// Budget is charged for every mapping. Optional.
	Budget MemoryBudget
	// DecommitEmptyPages drops the physical memory of pages that become empty.
	DecommitEmptyPages bool
	// RetainEmptyArenas is the number of fully empty arenas a heap keeps
	// mapped instead of unmapping them.
	RetainEmptyArenas int
	// Logger receives arena lifecycle events at debug level.
	Logger *slog.Logger
	// FaultHandler receives errors detected while applying remote frees.
	// Defaults to panicking with the error.
	FaultHandler func(error)
}

func (c *Config) setDefaults() {
	if len(c.SizeClasses) == 0 {
		c.SizeClasses = DefaultSizeClasses
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.ArenaSize == 0 {
		c.ArenaSize = DefaultArenaSize
	}
	if c.Store == nil {
		c.Store = MmapStore{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.FaultHandler == nil {
		c.FaultHandler = func(err error) { panic(err) }
	}
}

func (c *Config) validate() error {
	if c.PageSize < MinPageSize || !conv.IsPowerOfTwo(c.PageSize) {
		return fmt.Errorf("%w: page size %d must be a power of two >= %d", ErrInvalidConfig, c.PageSize, MinPageSize)
	}
	if c.ArenaSize < c.PageSize || c.ArenaSize%c.PageSize != 0 {
		return fmt.Errorf("%w: arena size %d must be a multiple of page size %d", ErrInvalidConfig, c.ArenaSize, c.PageSize)
	}
	if _, err := conv.IntToUint16(c.ArenaSize/c.PageSize - 1); err != nil {
		return fmt.Errorf("%w: arena size %d holds too many pages", ErrInvalidConfig, c.ArenaSize)
	}
	if c.RetainEmptyArenas < 0 {
		return fmt.Errorf("%w: negative RetainEmptyArenas", ErrInvalidConfig)
	}
	return nil
}

// Allocator owns every heap and arena of one runtime.
type Allocator struct {
	cfg     Config
	classes *sizeClasses
	log     *slog.Logger

	mu        sync.Mutex
	heaps     map[uint32]*Heap
	abandoned []*Heap
	registry  map[uint32]*arena

	nextArena atomic.Uint32
	nextHeap  atomic.Uint32

	stats  allocStats
	closed atomic.Bool
}

// New validates cfg and creates an Allocator. No memory is mapped until the
// first allocation.
func New(cfg Config) (*Allocator, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	classes, err := newSizeClasses(cfg.SizeClasses, cfg.PageSize)
	if err != nil {
		return nil, err
	}

	al := &Allocator{
		cfg:      cfg,
		classes:  classes,
		log:      cfg.Logger.With(slog.String("component", "alloc"), slog.String("store", cfg.Store.Name())),
		heaps:    make(map[uint32]*Heap),
		registry: make(map[uint32]*arena),
	}
	al.stats.init(classes.len())
	return al, nil
}

// NewHeap creates a heap for one mutator thread.
func (al *Allocator) NewHeap() (*Heap, error) {
	if al.closed.Load() {
		return nil, ErrClosed
	}

	h := &Heap{
		id:       al.nextHeap.Add(1),
		al:       al,
		partial:  make([]pageRef, al.classes.len()),
		retained: make([]int, al.classes.len()),
		large:    make(map[uint32]*arena),
	}

	al.mu.Lock()
	al.heaps[h.id] = h
	al.mu.Unlock()
	return h, nil
}

// ClassFor returns the size-class index serving size, or -1 when size needs
// a dedicated large mapping.
func (al *Allocator) ClassFor(size int) int {
	class, ok := al.classes.classFor(size)
	if !ok {
		return -1
	}
	return class
}

// SizeClasses returns a copy of the size-class table.
func (al *Allocator) SizeClasses() []int {
	out := make([]int, al.classes.len())
	copy(out, al.classes.sizes)
	return out
}

// PageSize returns the configured page size.
func (al *Allocator) PageSize() int { return al.cfg.PageSize }

// ArenaSize returns the configured arena size.
func (al *Allocator) ArenaSize() int { return al.cfg.ArenaSize }

// mapArena charges the budget and maps size bytes for owner.
func (al *Allocator) mapArena(owner *Heap, size int, large bool) (*arena, error) {
	if al.cfg.Budget != nil {
		if err := al.cfg.Budget.AcquireMemory(int64(size)); err != nil {
			al.stats.allocFailures.Add(1)
			return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
	}

	region, err := al.cfg.Store.Map(size)
	if err != nil {
		if al.cfg.Budget != nil {
			al.cfg.Budget.ReleaseMemory(int64(size))
		}
		al.stats.allocFailures.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	a := &arena{
		id:       al.nextArena.Add(1),
		region:   region,
		data:     region.Bytes(),
		pageSize: al.cfg.PageSize,
		large:    large,
		size:     size,
	}
	if !large {
		a.pages = make([]page, size/al.cfg.PageSize)
		for i := range a.pages {
			a.pages[i].class = -1
		}
	}
	a.owner.Store(owner)

	al.mu.Lock()
	al.registry[a.id] = a
	al.mu.Unlock()

	al.stats.arenasMapped.Add(1)
	al.stats.bytesMapped.Add(int64(size))
	al.log.LogAttrs(context.Background(), slog.LevelDebug, "arena mapped",
		slog.Uint64("arena", uint64(a.id)),
		slog.Uint64("heap", uint64(owner.id)),
		slog.Int("bytes", size),
		slog.Bool("large", large))
	return a, nil
}

// unmapArena returns an arena to the backing store. The caller has already
// removed it from its heap.
func (al *Allocator) unmapArena(a *arena) error {
	if a.released.Swap(true) {
		return nil
	}

	al.mu.Lock()
	delete(al.registry, a.id)
	al.mu.Unlock()

	err := a.region.Close()
	a.data = nil
	if al.cfg.Budget != nil {
		al.cfg.Budget.ReleaseMemory(int64(a.size))
	}

	al.stats.arenasReleased.Add(1)
	al.stats.bytesMapped.Add(-int64(a.size))
	al.log.LogAttrs(context.Background(), slog.LevelDebug, "arena released",
		slog.Uint64("arena", uint64(a.id)),
		slog.Int("bytes", a.size),
		slog.Bool("large", a.large))
	if err != nil {
		return fmt.Errorf("alloc: unmap arena %d: %w", a.id, err)
	}
	return nil
}

func (al *Allocator) abandon(h *Heap) {
	al.mu.Lock()
	al.abandoned = append(al.abandoned, h)
	al.mu.Unlock()
}

func (al *Allocator) popAbandoned() *Heap {
	al.mu.Lock()
	defer al.mu.Unlock()
	n := len(al.abandoned)
	if n == 0 {
		return nil
	}
	h := al.abandoned[n-1]
	al.abandoned[n-1] = nil
	al.abandoned = al.abandoned[:n-1]
	delete(al.heaps, h.id)
	return h
}

func (al *Allocator) forgetHeap(h *Heap) {
	al.mu.Lock()
	delete(al.heaps, h.id)
	al.mu.Unlock()
}

// Close unmaps every arena still held. Blocks become invalid. Close is
// idempotent.
func (al *Allocator) Close() error {
	if al.closed.Swap(true) {
		return nil
	}

	al.mu.Lock()
	arenas := make([]*arena, 0, len(al.registry))
	for _, a := range al.registry {
		arenas = append(arenas, a)
	}
	al.heaps = make(map[uint32]*Heap)
	al.abandoned = nil
	al.mu.Unlock()

	var errs []error
	for _, a := range arenas {
		if err := al.unmapArena(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
