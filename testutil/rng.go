package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Sizes returns n payload sizes in [1,maxSize].
func (r *RNG) Sizes(n, maxSize int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, n)
	for i := range out {
		out[i] = 1 + r.rand.Intn(maxSize)
	}
	return out
}

// Ops returns a random sequence of n acquire (true) and release (false)
// steps that never drops below one reference and nets to zero extra
// references. n is rounded down to an even number.
func (r *RNG) Ops(n int) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n &^= 1
	ops := make([]bool, 0, n)
	held, acquires := 0, n/2
	for len(ops) < n {
		if acquires > 0 && (held == 0 || r.rand.Intn(2) == 0) {
			ops = append(ops, true)
			held++
			acquires--
			continue
		}
		ops = append(ops, false)
		held--
	}
	return ops
}
