package alloc

import (
	"fmt"

	"github.com/hupe1980/heapcore/internal/conv"
)

const (
	// Alignment is the granularity of every size class.
	Alignment = 16
	// MaxSizeClasses bounds the class table so class indices fit a byte.
	MaxSizeClasses = 255
)

// DefaultSizeClasses is 16..512 bytes in steps of Alignment.
var DefaultSizeClasses = defaultSizeClasses()

func defaultSizeClasses() []int {
	classes := make([]int, 0, 512/Alignment)
	for size := Alignment; size <= 512; size += Alignment {
		classes = append(classes, size)
	}
	return classes
}

// sizeClasses maps request sizes to class indices in O(1).
type sizeClasses struct {
	sizes  []int
	lookup []uint8 // lookup[(size+Alignment-1)/Alignment] = class index
}

func newSizeClasses(sizes []int, pageSize int) (*sizeClasses, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: empty size class table", ErrInvalidConfig)
	}
	if len(sizes) > MaxSizeClasses {
		return nil, fmt.Errorf("%w: %d size classes exceed %d", ErrInvalidConfig, len(sizes), MaxSizeClasses)
	}

	prev := 0
	for _, size := range sizes {
		if size <= prev || size%Alignment != 0 {
			return nil, fmt.Errorf("%w: size classes must ascend in multiples of %d (got %d after %d)",
				ErrInvalidConfig, Alignment, size, prev)
		}
		if size > pageSize {
			return nil, fmt.Errorf("%w: size class %d larger than page size %d", ErrInvalidConfig, size, pageSize)
		}
		prev = size
	}
	if _, err := conv.IntToUint16(pageSize / sizes[0]); err != nil {
		return nil, fmt.Errorf("%w: page size %d holds too many %d-byte blocks", ErrInvalidConfig, pageSize, sizes[0])
	}

	maxSize := sizes[len(sizes)-1]
	lookup := make([]uint8, maxSize/Alignment+1)
	class := 0
	for i := range lookup {
		for sizes[class] < i*Alignment {
			class++
		}
		lookup[i] = uint8(class) //nolint:gosec // bounded by MaxSizeClasses
	}

	own := make([]int, len(sizes))
	copy(own, sizes)
	return &sizeClasses{sizes: own, lookup: lookup}, nil
}

// classFor returns the class serving size. ok is false for sizes that need a
// dedicated large mapping.
func (sc *sizeClasses) classFor(size int) (class int, ok bool) {
	if size <= 0 {
		return 0, true
	}
	if size > sc.sizes[len(sc.sizes)-1] {
		return -1, false
	}
	return int(sc.lookup[conv.RoundUp(size, Alignment)/Alignment]), true
}

func (sc *sizeClasses) blockSize(class int) int {
	return sc.sizes[class]
}

func (sc *sizeClasses) len() int {
	return len(sc.sizes)
}
