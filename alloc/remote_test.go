package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestHeap_RemoteFree(t *testing.T) {
	al, owner := newTestAllocator(t, Config{})

	const n = 4000
	blocks := make([]Block, 0, n)
	for range n {
		b, err := owner.Allocate(64)
		require.NoError(t, err)
		blocks = append(blocks, b)
	}

	var g errgroup.Group
	const workers = 4
	for w := range workers {
		g.Go(func() error {
			h, err := al.NewHeap()
			if err != nil {
				return err
			}
			for i := w; i < n; i += workers {
				if err := h.Free(blocks[i]); err != nil {
					return err
				}
			}
			return h.Detach()
		})
	}
	g.Go(func() error {
		// The owner keeps allocating while remote frees arrive.
		for range 500 {
			b, err := owner.Allocate(64)
			if err != nil {
				return err
			}
			if err := owner.Free(b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	owner.Drain()
	assert.Equal(t, int64(0), owner.LiveBlocks())

	st := al.Stats()
	assert.Equal(t, int64(n), st.RemoteFrees)
	assert.Equal(t, int64(0), st.LiveBlocks())
	assert.Equal(t, 0, st.ActiveArenas)
	assert.Equal(t, 1, st.Heaps, "empty worker heaps are dropped on detach")
}

func TestHeap_RemoteDoubleFree(t *testing.T) {
	var (
		mu     sync.Mutex
		faults []error
	)
	al, owner := newTestAllocator(t, Config{
		FaultHandler: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			faults = append(faults, err)
		},
	})
	other, err := al.NewHeap()
	require.NoError(t, err)

	keep, err := owner.Allocate(32)
	require.NoError(t, err)
	b, err := owner.Allocate(32)
	require.NoError(t, err)

	require.NoError(t, other.Free(b))
	require.NoError(t, other.Free(b))
	owner.Drain()

	require.Len(t, faults, 1)
	assert.ErrorIs(t, faults[0], ErrDoubleFree)
	require.NoError(t, owner.Free(keep))
}

func TestHeap_DetachAndAdopt(t *testing.T) {
	al, h1 := newTestAllocator(t, Config{})

	blocks := make([]Block, 0, 100)
	for range 100 {
		b, err := h1.Allocate(128)
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	large, err := h1.Allocate(64 << 10)
	require.NoError(t, err)

	require.NoError(t, h1.Detach())
	require.NoError(t, h1.Detach())
	_, err = h1.Allocate(128)
	require.ErrorIs(t, err, ErrHeapDetached)

	h2, err := al.NewHeap()
	require.NoError(t, err)

	// Queued on the abandoned heap until adoption.
	require.NoError(t, h2.Free(blocks[0]))

	b, err := h2.Allocate(128)
	require.NoError(t, err)
	assert.Equal(t, blocks[0].ArenaID(), b.ArenaID(), "adopted arena serves the request")
	assert.Equal(t, int64(1), al.Stats().Classes[al.ClassFor(128)].FreelistHits)

	for _, a := range al.Stats().Arenas {
		assert.Equal(t, h2.ID(), a.Heap)
	}

	for _, blk := range blocks[1:] {
		require.NoError(t, h2.Free(blk))
	}
	require.NoError(t, h2.Free(b))
	require.NoError(t, h2.Free(large))

	st := al.Stats()
	assert.Equal(t, int64(0), st.LiveBlocks())
	assert.Equal(t, 0, st.ActiveArenas)
	assert.Equal(t, int64(1), st.RemoteFrees)
}

func TestHeap_DetachEmpty(t *testing.T) {
	al, h := newTestAllocator(t, Config{RetainEmptyArenas: 1})

	b, err := h.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(b))
	require.Equal(t, 1, al.Stats().ActiveArenas)

	require.NoError(t, h.Detach())
	st := al.Stats()
	assert.Equal(t, 0, st.ActiveArenas)
	assert.Equal(t, 0, st.Heaps)
}
