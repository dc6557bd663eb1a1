package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentedArray_Grow(t *testing.T) {
	sa := NewSegmentedArray[int]()
	assert.Nil(t, sa.Ptr(0))
	assert.Equal(t, 0, sa.Capacity())

	p := sa.Grow(5)
	require.NotNil(t, p)
	*p = 42

	assert.Equal(t, 42, *sa.Ptr(5))
	assert.Equal(t, segmentSize, sa.Capacity())
}

func TestSegmentedArray_PointerStability(t *testing.T) {
	sa := NewSegmentedArray[uint64]()

	first := sa.Grow(1)
	*first = 7

	// Growing far past the first segment must not move existing items.
	far := sa.Grow(segmentSize*3 + 1)
	*far = 9

	assert.Same(t, first, sa.Ptr(1))
	assert.Equal(t, uint64(7), *sa.Ptr(1))
	assert.Equal(t, uint64(9), *sa.Ptr(segmentSize*3+1))
	assert.Equal(t, segmentSize*4, sa.Capacity())
}

func TestSegmentedArray_Sparse(t *testing.T) {
	sa := NewSegmentedArray[string]()
	sa.Grow(segmentSize * 2)

	assert.Nil(t, sa.Ptr(0), "skipped segment stays unallocated")
	assert.NotNil(t, sa.Ptr(segmentSize*2))
	assert.Nil(t, sa.Ptr(segmentSize*10))
}
