package heapcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hupe1980/heapcore/alloc"
	"github.com/hupe1980/heapcore/internal/resource"
)

// Runtime is the memory core of one dynamic-object runtime: it owns the
// allocator, the header table, the weak reference table and the cycle tracer.
//
// A Runtime is driven by one logical mutator at a time. Only QueryStats may
// be called concurrently with the mutator.
type Runtime struct {
	opts    options
	log     *Logger
	metrics MetricsCollector

	ctrl *resource.Controller
	al   *alloc.Allocator
	heap *alloc.Heap

	tbl  table
	weak map[Ref]*weakChain

	gens             [NumGenerations]generation
	permanent        genList
	sweep            genList // unreachable batch of the running pass
	enabled          bool
	collecting       bool
	scheduled        int
	longLivedTotal   int
	longLivedPending int

	depth int   // nesting of object destruction
	trash []Ref // destructions deferred past the depth limit

	stats  runtimeStats
	closed atomic.Bool
	final  atomic.Pointer[Stats]
}

// New creates a Runtime. Configuration is validated here and fixed for the
// lifetime of the runtime.
func New(optFns ...Option) (*Runtime, error) {
	o := applyOptions(optFns)

	for i, th := range o.thresholds {
		if th < 0 {
			return nil, fmt.Errorf("%w: negative threshold %d for generation %d", alloc.ErrInvalidConfig, th, i)
		}
	}

	ctrl := resource.NewController(resource.Config{
		MemoryLimitBytes:     o.memoryLimit,
		CollectionsPerSecond: o.collectionsPerSec,
	})

	var rt *Runtime
	al, err := alloc.New(alloc.Config{
		SizeClasses:        o.sizeClasses,
		PageSize:           o.pageSize,
		ArenaSize:          o.arenaSize,
		Store:              o.store,
		Budget:             ctrl,
		DecommitEmptyPages: o.decommit,
		RetainEmptyArenas:  o.retainArenas,
		Logger:             o.logger.Logger,
		FaultHandler: func(err error) {
			rt.fault(FaultBlockDoubleFree, "remote free", 0, nil, err.Error())
		},
	})
	if err != nil {
		return nil, err
	}

	heap, err := al.NewHeap()
	if err != nil {
		return nil, err
	}

	rt = &Runtime{
		opts:      o,
		log:       o.logger,
		metrics:   o.metricsCollector,
		ctrl:      ctrl,
		al:        al,
		heap:      heap,
		tbl:       newTable(),
		weak:      make(map[Ref]*weakChain),
		enabled:   o.autoCollect,
		scheduled: -1,
	}
	for i := range rt.gens {
		rt.gens[i].threshold = o.thresholds[i]
	}
	return rt, nil
}

// Allocator exposes the underlying allocator, for diagnostics.
func (rt *Runtime) Allocator() *alloc.Allocator { return rt.al }

// Object returns the handle for ref without validating it. Operations on a
// handle whose object has been freed fault.
func (rt *Runtime) Object(ref Ref) Object {
	return Object{rt: rt, ref: ref}
}

// Resolve returns the object named by ref if it is still alive.
func (rt *Runtime) Resolve(ref Ref) (Object, bool) {
	if _, ok := rt.tbl.lookup(ref); !ok {
		return Object{}, false
	}
	return Object{rt: rt, ref: ref}, true
}

// header resolves ref or faults with a use after free.
func (rt *Runtime) header(op string, ref Ref) *header {
	h, ok := rt.tbl.lookup(ref)
	if !ok {
		rt.fault(FaultUseAfterFree, op, ref, nil, "stale or unknown reference")
	}
	return h
}

// Allocate creates an object of typ with a reference count of one. Containers
// are tracked in the young generation. A scheduled collection runs first
// unless collection is deferred to safe points.
func (rt *Runtime) Allocate(typ Type) (Object, error) {
	return rt.allocate(rt.heap, typ)
}

func (rt *Runtime) allocate(heap *alloc.Heap, typ Type) (Object, error) {
	if rt.closed.Load() {
		return Object{}, ErrClosed
	}
	if typ == nil {
		return Object{}, fmt.Errorf("%w: nil type", ErrInvalidType)
	}
	if !rt.opts.deferred {
		rt.runScheduled()
	}

	size := typ.Size()
	blk, err := heap.Allocate(size)
	if err != nil {
		rt.stats.allocFailures.Add(1)
		rt.metrics.RecordAllocationFailure(size, err)
		rt.log.LogAllocationFailure(context.Background(), typ.Name(), size, err)
		return Object{}, &AllocationError{Type: typ.Name(), Size: size, cause: err}
	}

	idx, h := rt.tbl.alloc()
	h.refcnt = 1
	h.typ = typ
	h.block = blk
	rt.stats.allocated.Add(1)
	rt.stats.live.Add(1)

	if typ.IsContainer() {
		rt.track(idx, h)
		rt.gens[0].count.Add(1)
		rt.schedule()
	}
	return Object{rt: rt, ref: makeRef(idx, h.gen)}, nil
}

// Close releases every arena. Objects still alive are not finalized; they
// are reported as leaks. After Close, QueryStats returns the final snapshot.
func (rt *Runtime) Close() error {
	if rt.closed.Swap(true) {
		return nil
	}
	start := time.Now()

	snap := rt.snapshot()
	err := rt.al.Close()
	snap.Allocator = rt.al.Stats()
	rt.final.Store(&snap)

	rt.log.LogClose(context.Background(), snap.Objects.Live, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("heapcore: close: %w", err)
	}
	return nil
}

// invoke runs a type or weak reference callback. Panics other than faults
// are unraisable: they are logged and counted and the caller continues.
func (rt *Runtime) invoke(callback string, ref Ref, typ Type, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if f, ok := r.(*Fault); ok {
			panic(f)
		}
		name := ""
		if typ != nil {
			name = typ.Name()
		}
		rt.stats.unraisable.Add(1)
		rt.log.LogUnraisable(context.Background(), callback, ref, name, r)
	}()
	fn()
}

func (rt *Runtime) debug(msg string, attrs ...slog.Attr) {
	rt.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}
