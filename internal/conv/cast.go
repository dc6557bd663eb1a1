package conv

import (
	"fmt"
	"math"
)

// IntToUint16 converts v to uint16, failing on negative or oversized values.
func IntToUint16(v int) (uint16, error) {
	if v < 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("conv: %d out of range for uint16", v)
	}
	return uint16(v), nil
}

// Uint64ToInt64 converts v to int64, failing when v exceeds math.MaxInt64.
func Uint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("conv: %d out of range for int64", v)
	}
	return int64(v), nil
}

// AddUint64 returns a+b and false when the sum would overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// RoundUp rounds v up to the next multiple of align. align must be a power
// of two.
func RoundUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}

// IsPowerOfTwo reports whether v is a positive power of two.
func IsPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
