package resource

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for mapped arena memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// CollectionsPerSecond caps automatic collection passes.
	// If 0, automatic passes are not paced.
	CollectionsPerSecond float64

	// CollectionBurst is the number of automatic passes allowed back to back.
	// If 0, defaults to 1.
	CollectionBurst int
}

// Controller tracks mapped memory and paces automatic collections.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64
	memPeak atomic.Int64

	pacer *rate.Limiter // nil if unpaced
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.CollectionBurst <= 0 {
		cfg.CollectionBurst = 1
	}

	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.CollectionsPerSecond > 0 {
		c.pacer = rate.NewLimiter(rate.Limit(cfg.CollectionsPerSecond), cfg.CollectionBurst)
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
// Non-blocking - callers surface the failure to their own callers.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	used := c.memUsed.Add(bytes)
	for {
		peak := c.memPeak.Load()
		if used <= peak || c.memPeak.CompareAndSwap(peak, used) {
			break
		}
	}
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryPeak returns the highest memory usage observed.
func (c *Controller) MemoryPeak() int64 {
	if c == nil {
		return 0
	}
	return c.memPeak.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AllowCollection reports whether an automatic collection may run now.
func (c *Controller) AllowCollection() bool {
	return c.AllowCollectionAt(time.Now())
}

// AllowCollectionAt is AllowCollection with an explicit clock.
func (c *Controller) AllowCollectionAt(now time.Time) bool {
	if c == nil || c.pacer == nil {
		return true
	}
	return c.pacer.AllowN(now, 1)
}
