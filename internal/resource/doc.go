// Package resource governs the two budgets of the memory core.
//
//   - Memory: a hard cap on bytes mapped for arenas (non-blocking, fail-fast)
//   - Collection pacing: a token bucket limiting automatic collection passes
//
// # Architecture
//
//	┌───────────────────────────────────────────┐
//	│                Controller                 │
//	├─────────────────────┬─────────────────────┤
//	│  Memory Limit       │  Collection Pacer   │
//	│  (weighted sem)     │  (token bucket)     │
//	├─────────────────────┼─────────────────────┤
//	│  AcquireMemory      │  AllowCollection    │
//	│  ReleaseMemory      │  AllowCollectionAt  │
//	│  MemoryUsage/Peak   │                     │
//	└─────────────────────┴─────────────────────┘
//
// # Memory Management
//
// The allocator charges every arena mapping against the controller before it
// asks the backing store for memory. AcquireMemory never blocks; when the
// limit would be exceeded it returns ErrMemoryLimitExceeded and the allocation
// that needed the arena fails:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	if err := rc.AcquireMemory(1 << 20); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(1 << 20)
//
// # Collection Pacing
//
// Automatic cycle collection passes triggered by allocation thresholds ask
// AllowCollection first. Explicit collection requests bypass the pacer.
//
// # Nil Safety
//
// All methods handle a nil Controller: memory is unlimited and untracked,
// collections are always allowed.
package resource
