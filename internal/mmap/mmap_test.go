package mmap

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(64 << 10)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 64<<10, m.Size())

	data := m.Bytes()
	require.Len(t, data, 64<<10)
	for i := 0; i < len(data); i += 4096 {
		assert.Equal(t, byte(0), data[i], "fresh mapping must be zeroed")
	}

	data[0] = 0xAB
	data[len(data)-1] = 0xCD
	assert.Equal(t, byte(0xAB), m.Bytes()[0])
	assert.Equal(t, byte(0xCD), m.Bytes()[len(data)-1])
}

func TestMapAnon_InvalidSize(t *testing.T) {
	_, err := MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapAnon(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMapping_CloseIdempotent(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
	assert.ErrorIs(t, m.Decommit(0, 16), ErrClosed)
}

func TestDecommit(t *testing.T) {
	page := os.Getpagesize()
	m, err := MapAnon(4 * page)
	require.NoError(t, err)
	defer m.Close()

	buf := m.Bytes()
	buf[page] = 7
	buf[3*page] = 9

	require.NoError(t, m.Decommit(page, page))
	if runtime.GOOS == "linux" {
		assert.Zero(t, buf[page], "decommitted page reads as zero")
	}
	assert.Equal(t, byte(9), buf[3*page])

	// A range smaller than one OS page drops nothing.
	buf[2*page+1] = 5
	require.NoError(t, m.Decommit(2*page, page/2))
	assert.Equal(t, byte(5), buf[2*page+1])

	assert.ErrorIs(t, m.Decommit(-1, 10), ErrOutOfBounds)
	assert.ErrorIs(t, m.Decommit(2*page, 4*page), ErrOutOfBounds)
}

func TestOSPageRange(t *testing.T) {
	tests := []struct {
		start, end int
		wantStart  int
		wantEnd    int
	}{
		{0, 8192, 0, 8192},
		{100, 8192, 4096, 8192},
		{4096, 12000, 4096, 8192},
		{100, 4000, 4096, 0},
	}
	for _, tt := range tests {
		s, e := osPageRange(tt.start, tt.end, 4096)
		assert.Equal(t, tt.wantStart, s)
		assert.Equal(t, tt.wantEnd, e)
	}
}
