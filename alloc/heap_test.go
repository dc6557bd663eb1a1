package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_AllocateFree(t *testing.T) {
	al, h := newTestAllocator(t, Config{})

	b, err := h.Allocate(40)
	require.NoError(t, err)
	assert.False(t, b.IsZero())
	assert.Equal(t, 48, b.Size())
	assert.Equal(t, 2, b.Class())
	assert.Len(t, b.Bytes(), 48)
	assert.NotZero(t, b.ArenaID())
	assert.Contains(t, b.String(), "arena")

	st := al.Stats()
	assert.Equal(t, int64(1), st.Classes[2].Allocs)
	assert.Equal(t, int64(1), st.Classes[2].LiveBlocks)
	assert.Equal(t, int64(1), st.Classes[2].FreelistMisses)
	assert.Equal(t, int64(1), st.Classes[2].Pages)
	require.Len(t, st.Arenas, 1)
	assert.Equal(t, h.ID(), st.Arenas[0].Heap)
	assert.Equal(t, 1, st.Arenas[0].UsedPages)

	require.NoError(t, h.Free(b))
	st = al.Stats()
	assert.Equal(t, int64(1), st.Classes[2].Frees)
	assert.Equal(t, int64(0), st.Classes[2].LiveBlocks)
	assert.Equal(t, int64(0), st.Classes[2].Pages)
	assert.Equal(t, 0, st.ActiveArenas, "empty arena is unmapped")
	assert.Equal(t, int64(1), st.ArenasReleased)
}

func TestHeap_DistinctBlocks(t *testing.T) {
	_, h := newTestAllocator(t, Config{})

	seen := make(map[Block]struct{})
	for i := range 2000 {
		b, err := h.Allocate(16 + i%200)
		require.NoError(t, err)
		_, dup := seen[b]
		require.False(t, dup, "block %s handed out twice", b)
		seen[b] = struct{}{}
		b.Bytes()[0] = byte(i)
	}
	assert.Equal(t, int64(2000), h.LiveBlocks())
}

func TestHeap_FreelistReuse(t *testing.T) {
	al, h := newTestAllocator(t, Config{})

	blocks := make([]Block, 0, 1000)
	for range 1000 {
		b, err := h.Allocate(48)
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	before := al.Stats().Classes[2]
	require.Equal(t, int64(0), before.FreelistHits)

	for _, b := range blocks[:500] {
		require.NoError(t, h.Free(b))
	}
	for range 500 {
		_, err := h.Allocate(48)
		require.NoError(t, err)
	}

	after := al.Stats().Classes[2]
	assert.GreaterOrEqual(t, after.FreelistHits, int64(500))
	assert.Equal(t, before.Pages, after.Pages, "no fresh pages for reused blocks")
	assert.Equal(t, int64(1000), after.LiveBlocks)
	assert.Equal(t, 1, al.Stats().ActiveArenas)
}

func TestHeap_RoundTrip(t *testing.T) {
	al, h := newTestAllocator(t, Config{RetainEmptyArenas: 1})

	keep, err := h.Allocate(64)
	require.NoError(t, err)
	before := al.Stats()

	b, err := h.Allocate(64)
	require.NoError(t, err)
	require.NoError(t, h.Free(b))

	after := al.Stats()
	class := al.ClassFor(64)
	assert.Equal(t, before.Classes[class].LiveBlocks, after.Classes[class].LiveBlocks)
	assert.Equal(t, before.Classes[class].Pages, after.Classes[class].Pages)
	assert.Equal(t, after.Classes[class].Allocs-after.Classes[class].Frees,
		before.Classes[class].Allocs-before.Classes[class].Frees)
	assert.Equal(t, before.Arenas, after.Arenas)

	require.NoError(t, h.Free(keep))
}

func TestHeap_DoubleFree(t *testing.T) {
	t.Run("live arena", func(t *testing.T) {
		_, h := newTestAllocator(t, Config{})
		keep, err := h.Allocate(32)
		require.NoError(t, err)
		b, err := h.Allocate(32)
		require.NoError(t, err)

		require.NoError(t, h.Free(b))
		assert.ErrorIs(t, h.Free(b), ErrDoubleFree)
		require.NoError(t, h.Free(keep))
	})

	t.Run("released arena", func(t *testing.T) {
		_, h := newTestAllocator(t, Config{})
		b, err := h.Allocate(32)
		require.NoError(t, err)
		require.NoError(t, h.Free(b))
		assert.ErrorIs(t, h.Free(b), ErrDoubleFree)
	})

	t.Run("zero block", func(t *testing.T) {
		_, h := newTestAllocator(t, Config{})
		assert.ErrorIs(t, h.Free(Block{}), ErrInvalidBlock)
	})
}

func TestHeap_Large(t *testing.T) {
	al, h := newTestAllocator(t, Config{})

	b, err := h.Allocate(10_000)
	require.NoError(t, err)
	assert.Equal(t, -1, b.Class())
	assert.Equal(t, DefaultPageSize, b.Size())
	assert.Len(t, b.Bytes(), DefaultPageSize)
	assert.Contains(t, b.String(), "large")

	st := al.Stats()
	assert.Equal(t, int64(1), st.LargeAllocs)
	assert.Equal(t, int64(1), st.LargeLive)
	assert.Equal(t, int64(DefaultPageSize), st.LargeBytes)
	require.Len(t, st.Arenas, 1)
	assert.True(t, st.Arenas[0].Large)
	assert.Equal(t, int64(1), h.LiveBlocks())

	require.NoError(t, h.Free(b))
	st = al.Stats()
	assert.Equal(t, int64(1), st.LargeFrees)
	assert.Equal(t, int64(0), st.LargeLive)
	assert.Equal(t, 0, st.ActiveArenas)
	assert.ErrorIs(t, h.Free(b), ErrDoubleFree)
}

func TestHeap_RetainEmptyArenas(t *testing.T) {
	al, h := newTestAllocator(t, Config{RetainEmptyArenas: 1})

	b, err := h.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(b))
	assert.Equal(t, 1, al.Stats().ActiveArenas)

	b, err = h.Allocate(16)
	require.NoError(t, err)
	st := al.Stats()
	assert.Equal(t, int64(1), st.ArenasMapped)
	assert.Equal(t, int64(1), st.Classes[0].FreelistHits, "retained page keeps its free stack")
	require.NoError(t, h.Free(b))
}

func TestHeap_PageRecycledAcrossClasses(t *testing.T) {
	al, h := newTestAllocator(t, Config{
		PageSize:          4096,
		ArenaSize:         4096,
		RetainEmptyArenas: 1,
	})

	b, err := h.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(b))

	b, err = h.Allocate(512)
	require.NoError(t, err)

	st := al.Stats()
	assert.Equal(t, int64(1), st.ArenasMapped, "empty page reused instead of mapping")
	assert.Equal(t, int64(0), st.Classes[0].Pages)
	assert.Equal(t, int64(1), st.Classes[31].Pages)
	assert.Equal(t, int64(1), st.Classes[31].FreelistMisses)
	require.NoError(t, h.Free(b))
}

func TestHeap_PrefersLoadedArena(t *testing.T) {
	const perPage = 4096 / 512
	al, h := newTestAllocator(t, Config{PageSize: 4096, ArenaSize: 3 * 4096})

	alloc := func(n int) []Block {
		out := make([]Block, 0, n)
		for range n {
			b, err := h.Allocate(512)
			require.NoError(t, err)
			out = append(out, b)
		}
		return out
	}
	first := alloc(3 * perPage)
	second := alloc(2*perPage + 1)
	require.Equal(t, 2, al.Stats().ActiveArenas)

	// First arena keeps one used page, second keeps two.
	for _, b := range first[:2*perPage] {
		require.NoError(t, h.Free(b))
	}
	for _, b := range second[:perPage] {
		require.NoError(t, h.Free(b))
	}

	b, err := h.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, second[0].ArenaID(), b.ArenaID())
}

func BenchmarkHeap_AllocateFree(b *testing.B) {
	al, err := New(Config{})
	require.NoError(b, err)
	defer al.Close()
	h, err := al.NewHeap()
	require.NoError(b, err)

	keep, err := h.Allocate(64)
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		blk, err := h.Allocate(64)
		if err != nil {
			b.Fatal(err)
		}
		if err := h.Free(blk); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
	_ = h.Free(keep)
}
