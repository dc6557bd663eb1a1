package heapcore

import (
	"log/slog"

	"github.com/hupe1980/heapcore/alloc"
)

// NumGenerations is the number of collectable generations.
const NumGenerations = 3

// DefaultThresholds are the per-generation collection thresholds.
var DefaultThresholds = [NumGenerations]int{700, 10, 10}

// DefaultDeallocDepth bounds nested deallocation before frees are deferred.
const DefaultDeallocDepth = 50

type options struct {
	sizeClasses       []int
	pageSize          int
	arenaSize         int
	store             alloc.BackingStore
	memoryLimit       int64
	decommit          bool
	retainArenas      int
	thresholds        [NumGenerations]int
	autoCollect       bool
	deferred          bool
	collectionsPerSec float64
	deallocDepth      int
	metricsCollector  MetricsCollector
	logger            *Logger
	faultHook         func(*Fault)
}

// Option configures a Runtime. Configuration is fixed once New returns.
type Option func(*options)

// WithSizeClasses sets the allocator's size-class table.
// Sizes must ascend in multiples of 16 and fit a page.
func WithSizeClasses(sizes ...int) Option {
	return func(o *options) {
		o.sizeClasses = sizes
	}
}

// WithPageSize sets the allocator page size (a power of two, at least 4 KiB).
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithArenaSize sets the size of each arena mapping (a multiple of the page size).
func WithArenaSize(size int) Option {
	return func(o *options) {
		o.arenaSize = size
	}
}

// WithBackingStore sets where arena memory comes from. Defaults to
// anonymous mappings.
func WithBackingStore(store alloc.BackingStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithMemoryLimit caps the bytes mapped for arenas. Allocations beyond the
// limit fail with ErrAllocationFailed. 0 means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithDecommitEmptyPages returns the physical memory of empty pages to the OS.
func WithDecommitEmptyPages(enabled bool) Option {
	return func(o *options) {
		o.decommit = enabled
	}
}

// WithRetainedArenas keeps up to n fully empty arenas per heap mapped.
func WithRetainedArenas(n int) Option {
	return func(o *options) {
		o.retainArenas = n
	}
}

// WithThresholds sets the collection thresholds of the three generations.
// A generation is scheduled when its count exceeds its threshold; a zero
// young threshold disables automatic collection.
func WithThresholds(young, middle, old int) Option {
	return func(o *options) {
		o.thresholds = [NumGenerations]int{young, middle, old}
	}
}

// WithAutoCollect enables or disables threshold-triggered collection.
// Enabled by default.
func WithAutoCollect(enabled bool) Option {
	return func(o *options) {
		o.autoCollect = enabled
	}
}

// WithDeferredCollection makes scheduled passes run only at SafePoint instead
// of also at the start of the next Allocate.
func WithDeferredCollection(deferred bool) Option {
	return func(o *options) {
		o.deferred = deferred
	}
}

// WithMaxCollectionsPerSecond paces automatic passes with a token bucket.
// 0 means unpaced.
func WithMaxCollectionsPerSecond(n float64) Option {
	return func(o *options) {
		o.collectionsPerSec = n
	}
}

// WithDeallocDepth bounds how deeply releases may nest before further
// deallocations are queued and drained by the outermost release.
func WithDeallocDepth(depth int) Option {
	return func(o *options) {
		o.deallocDepth = depth
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := heapcore.NewJSONLogger(slog.LevelDebug)
//	rt, _ := heapcore.New(heapcore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFaultHook registers fn to receive every consistency fault before the
// runtime panics with it.
func WithFaultHook(fn func(*Fault)) Option {
	return func(o *options) {
		o.faultHook = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		thresholds:       DefaultThresholds,
		autoCollect:      true,
		deallocDepth:     DefaultDeallocDepth,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.deallocDepth <= 0 {
		o.deallocDepth = DefaultDeallocDepth
	}
	return o
}
