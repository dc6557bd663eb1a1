package heapcore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems. The promstats
// package exports the full stats snapshot to Prometheus instead.
type MetricsCollector interface {
	// RecordCollection is called after each collection pass.
	RecordCollection(generation, collected, resurrected int, duration time.Duration)

	// RecordAllocationFailure is called when the allocator cannot serve size bytes.
	RecordAllocationFailure(size int, err error)

	// RecordFault is called for every consistency fault before the runtime panics.
	RecordFault(kind FaultKind)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCollection(int, int, int, time.Duration) {}
func (NoopMetricsCollector) RecordAllocationFailure(int, error)            {}
func (NoopMetricsCollector) RecordFault(FaultKind)                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	Collections         [NumGenerations]atomic.Int64
	Collected           atomic.Int64
	Resurrected         atomic.Int64
	CollectionNanos     atomic.Int64
	AllocationFailures  atomic.Int64
	AllocationFailBytes atomic.Int64
	Faults              atomic.Int64
}

// RecordCollection implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollection(generation, collected, resurrected int, duration time.Duration) {
	if generation >= 0 && generation < NumGenerations {
		b.Collections[generation].Add(1)
	}
	b.Collected.Add(int64(collected))
	b.Resurrected.Add(int64(resurrected))
	b.CollectionNanos.Add(duration.Nanoseconds())
}

// RecordAllocationFailure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocationFailure(size int, _ error) {
	b.AllocationFailures.Add(1)
	b.AllocationFailBytes.Add(int64(size))
}

// RecordFault implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFault(FaultKind) {
	b.Faults.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		Collected:          b.Collected.Load(),
		Resurrected:        b.Resurrected.Load(),
		AllocationFailures: b.AllocationFailures.Load(),
		Faults:             b.Faults.Load(),
	}
	var passes int64
	for i := range b.Collections {
		s.Collections[i] = b.Collections[i].Load()
		passes += s.Collections[i]
	}
	if passes > 0 {
		s.CollectionAvgNanos = b.CollectionNanos.Load() / passes
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Collections        [NumGenerations]int64
	Collected          int64
	Resurrected        int64
	CollectionAvgNanos int64
	AllocationFailures int64
	Faults             int64
}
