// Package promstats exports a heapcore stats snapshot as Prometheus metrics.
//
//	rt, _ := heapcore.New()
//	prometheus.MustRegister(promstats.New(rt))
//	http.Handle("/metrics", promhttp.Handler())
//
// Every scrape takes one snapshot with QueryStats, so all series of a scrape
// are mutually consistent.
package promstats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/heapcore"
	"github.com/hupe1980/heapcore/alloc"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "heapcore"

// Source supplies stats snapshots. *heapcore.Runtime implements it.
type Source interface {
	QueryStats() heapcore.Stats
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace   string
	constLabels prometheus.Labels
}

// WithNamespace replaces DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithConstLabels attaches labels to every exported series, e.g. to tell
// several runtimes apart.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *options) {
		o.constLabels = labels
	}
}

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*heapcore.Stats) float64
}

type genMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*heapcore.GenerationStats) float64
}

type classMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*alloc.ClassStats) float64
}

// Collector is a prometheus.Collector over a Source.
type Collector struct {
	src     Source
	scalars []metric
	gens    []genMetric
	classes []classMetric
}

var _ prometheus.Collector = (*Collector)(nil)

// New creates a Collector reading from src.
func New(src Source, optFns ...Option) *Collector {
	o := options{namespace: DefaultNamespace}
	for _, fn := range optFns {
		fn(&o)
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(o.namespace, "", name), help, labels, o.constLabels)
	}
	gauge, counter := prometheus.GaugeValue, prometheus.CounterValue

	c := &Collector{src: src}
	c.scalars = []metric{
		{desc("objects_live", "Managed objects currently alive."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.Live) }},
		{desc("objects_immortal", "Objects exempt from reference counting."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.Immortal) }},
		{desc("objects_allocated_total", "Objects allocated."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.Allocated) }},
		{desc("objects_freed_total", "Objects freed."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.Freed) }},
		{desc("objects_finalized_total", "Finalizers run."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.Finalized) }},
		{desc("objects_resurrected_total", "Objects resurrected by finalizers."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.Resurrected) }},
		{desc("deferred_deallocs_total", "Deallocations deferred past the nesting limit."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.DeferredDeallocs) }},
		{desc("unraisable_total", "Panics recovered from type and weak reference callbacks."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.Unraisable) }},
		{desc("allocation_failures_total", "Allocations the allocator could not serve."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Objects.AllocationFailures) }},
		{desc("weakrefs_live", "Registered weak references."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.WeakRefs.Live) }},
		{desc("weakref_callbacks_total", "Weak reference callbacks run."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.WeakRefs.Callbacks) }},
		{desc("frozen_objects", "Objects in the permanent generation."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.Frozen) }},
		{desc("collections_paced_out_total", "Scheduled passes postponed by the pacer."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.PacedOut) }},
		{desc("memory_used_bytes", "Bytes charged against the memory budget."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.MemoryUsed) }},
		{desc("memory_peak_bytes", "Highest memory_used_bytes seen."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.MemoryPeak) }},
		{desc("memory_limit_bytes", "Memory budget, 0 if unlimited."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.MemoryLimit) }},
		{desc("arenas_active", "Arenas currently mapped."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.Allocator.ActiveArenas) }},
		{desc("arena_mapped_bytes", "Bytes of arena mappings."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.Allocator.BytesMapped) }},
		{desc("large_blocks_live", "Live blocks above the largest size class."), gauge,
			func(s *heapcore.Stats) float64 { return float64(s.Allocator.LargeLive) }},
		{desc("remote_frees_total", "Blocks freed by a thread other than their owner."), counter,
			func(s *heapcore.Stats) float64 { return float64(s.Allocator.RemoteFrees) }},
	}
	c.gens = []genMetric{
		{desc("collections_total", "Collection passes per generation.", "generation"), counter,
			func(g *heapcore.GenerationStats) float64 { return float64(g.Collections) }},
		{desc("collected_total", "Objects reclaimed by the tracer per generation.", "generation"), counter,
			func(g *heapcore.GenerationStats) float64 { return float64(g.Collected) }},
		{desc("collected_bytes_total", "Bytes reclaimed by the tracer per generation.", "generation"), counter,
			func(g *heapcore.GenerationStats) float64 { return float64(g.BytesReclaimed) }},
		{desc("generation_members", "Tracked objects per generation.", "generation"), gauge,
			func(g *heapcore.GenerationStats) float64 { return float64(g.Members) }},
		{desc("generation_count", "Trigger counter per generation.", "generation"), gauge,
			func(g *heapcore.GenerationStats) float64 { return float64(g.Count) }},
		{desc("generation_threshold", "Trigger threshold per generation.", "generation"), gauge,
			func(g *heapcore.GenerationStats) float64 { return float64(g.Threshold) }},
	}
	c.classes = []classMetric{
		{desc("class_allocs_total", "Block allocations per size class.", "size"), counter,
			func(v *alloc.ClassStats) float64 { return float64(v.Allocs) }},
		{desc("class_frees_total", "Block frees per size class.", "size"), counter,
			func(v *alloc.ClassStats) float64 { return float64(v.Frees) }},
		{desc("class_freelist_hits_total", "Allocations served from a free list.", "size"), counter,
			func(v *alloc.ClassStats) float64 { return float64(v.FreelistHits) }},
		{desc("class_freelist_misses_total", "Allocations carved from untouched space.", "size"), counter,
			func(v *alloc.ClassStats) float64 { return float64(v.FreelistMisses) }},
		{desc("class_live_blocks", "Live blocks per size class.", "size"), gauge,
			func(v *alloc.ClassStats) float64 { return float64(v.LiveBlocks) }},
		{desc("class_pages", "Pages serving each size class.", "size"), gauge,
			func(v *alloc.ClassStats) float64 { return float64(v.Pages) }},
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.scalars {
		ch <- m.desc
	}
	for _, m := range c.gens {
		ch <- m.desc
	}
	for _, m := range c.classes {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.QueryStats()

	for _, m := range c.scalars {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(&st))
	}
	for i := range st.Generations {
		label := strconv.Itoa(i)
		for _, m := range c.gens {
			ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(&st.Generations[i]), label)
		}
	}
	for i := range st.Allocator.Classes {
		cs := &st.Allocator.Classes[i]
		label := strconv.Itoa(cs.Size)
		for _, m := range c.classes {
			ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(cs), label)
		}
	}
}
