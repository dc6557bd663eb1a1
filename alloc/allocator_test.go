package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/heapcore/internal/resource"
)

func newTestAllocator(t *testing.T, cfg Config) (*Allocator, *Heap) {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = GoHeapStore{}
	}
	al, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = al.Close() })

	h, err := al.NewHeap()
	require.NoError(t, err)
	return al, h
}

func TestNew_Config(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		al, err := New(Config{})
		require.NoError(t, err)
		defer al.Close()

		assert.Equal(t, DefaultPageSize, al.PageSize())
		assert.Equal(t, DefaultArenaSize, al.ArenaSize())
		assert.Equal(t, DefaultSizeClasses, al.SizeClasses())
		assert.Equal(t, -1, al.ClassFor(4096))
	})

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "page not power of two", cfg: Config{PageSize: 5000}},
		{name: "page too small", cfg: Config{PageSize: 2048}},
		{name: "arena not page multiple", cfg: Config{PageSize: 4096, ArenaSize: 6000}},
		{name: "arena smaller than page", cfg: Config{PageSize: 16384, ArenaSize: 4096}},
		{name: "too many pages", cfg: Config{PageSize: 4096, ArenaSize: 4096 * 70000}},
		{name: "negative retain", cfg: Config{RetainEmptyArenas: -1}},
		{name: "bad classes", cfg: Config{SizeClasses: []int{10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestAllocator_Close(t *testing.T) {
	al, h := newTestAllocator(t, Config{})

	b, err := h.Allocate(64)
	require.NoError(t, err)
	require.NotNil(t, b.Bytes())

	require.NoError(t, al.Close())
	require.NoError(t, al.Close())

	assert.Nil(t, b.Bytes())
	_, err = h.Allocate(64)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = al.NewHeap()
	assert.ErrorIs(t, err, ErrClosed)

	st := al.Stats()
	assert.Equal(t, 0, st.ActiveArenas)
	assert.Equal(t, int64(0), st.BytesMapped)
}

func TestAllocator_MemoryBudget(t *testing.T) {
	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: DefaultArenaSize})
	al, h := newTestAllocator(t, Config{Budget: ctrl})

	perArena := (DefaultArenaSize / DefaultPageSize) * (DefaultPageSize / 512)
	blocks := make([]Block, 0, perArena)
	for range perArena {
		b, err := h.Allocate(512)
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	assert.Equal(t, int64(DefaultArenaSize), ctrl.MemoryUsage())

	_, err := h.Allocate(512)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, int64(1), al.Stats().AllocFailures)

	_, err = h.Allocate(1 << 20)
	require.ErrorIs(t, err, ErrOutOfMemory)

	for _, b := range blocks {
		require.NoError(t, h.Free(b))
	}
	assert.Equal(t, int64(0), ctrl.MemoryUsage())
	assert.Equal(t, int64(DefaultArenaSize), ctrl.MemoryPeak())

	_, err = h.Allocate(512)
	assert.NoError(t, err)
}

type failingStore struct{}

var errStoreExhausted = errors.New("store exhausted")

func (failingStore) Map(int) (Region, error) { return nil, errStoreExhausted }
func (failingStore) Name() string            { return "failing" }

func TestAllocator_StoreFailure(t *testing.T) {
	al, h := newTestAllocator(t, Config{Store: failingStore{}})

	b, err := h.Allocate(16)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.ErrorIs(t, err, errStoreExhausted)
	assert.True(t, b.IsZero())

	st := al.Stats()
	assert.Equal(t, int64(1), st.AllocFailures)
	assert.Equal(t, int64(0), st.TotalAllocs())
}

func TestAllocator_MmapStore(t *testing.T) {
	al, h := newTestAllocator(t, Config{Store: MmapStore{}, DecommitEmptyPages: true})

	b, err := h.Allocate(100)
	require.NoError(t, err)
	data := b.Bytes()
	require.Len(t, data, 112)
	for i := range data {
		data[i] = 0xAB
	}

	keep, err := h.Allocate(100)
	require.NoError(t, err)
	require.NoError(t, h.Free(b))

	again, err := h.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 112), again.Bytes(), "blocks are zeroed when handed out")

	require.NoError(t, h.Free(again))
	require.NoError(t, h.Free(keep))
	assert.Equal(t, 0, al.Stats().ActiveArenas)
}
