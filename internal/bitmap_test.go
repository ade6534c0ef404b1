package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapSetGetClear(t *testing.T) {
	b := NewBitmap(130)
	assert.Equal(t, 130, b.Len())
	assert.Equal(t, 3, b.NumBlocks())

	b.Set(0)
	b.Set(63)
	b.Set(64)
	b.Set(129)
	assert.True(t, b.Get(0))
	assert.True(t, b.Get(63))
	assert.True(t, b.Get(64))
	assert.True(t, b.Get(129))
	assert.False(t, b.Get(1))
	assert.Equal(t, 4, b.Count())

	b.Clear(63)
	assert.False(t, b.Get(63))
	assert.Equal(t, 3, b.Count())
}

// TestBitmapTailZero pins the invariant that bits beyond Len() are always
// zero, including after SetAll and whole-block writes.
func TestBitmapTailZero(t *testing.T) {
	for _, length := range []int{1, 63, 64, 65, 100, 127, 128, 1000} {
		b := NewBitmap(length)
		b.SetAll()
		assert.Equal(t, length, b.Count(), "length %d", length)
		assert.False(t, b.Get(length))

		b.SetBlock(b.NumBlocks()-1, ^uint64(0))
		assert.Equal(t, length, b.Count(), "length %d after SetBlock", length)
	}
}

func TestBitmapForEachSet(t *testing.T) {
	b := NewBitmap(200)
	want := []int{0, 5, 63, 64, 70, 128, 199}
	for _, i := range want {
		b.Set(i)
	}

	var got []int
	b.ForEachSet(func(row int) bool {
		got = append(got, row)
		return true
	})
	assert.Equal(t, want, got)
}

func TestBitmapForEachSetEarlyStop(t *testing.T) {
	b := NewBitmap(128)
	b.SetAll()
	var got []int
	b.ForEachSet(func(row int) bool {
		got = append(got, row)
		return len(got) < 3
	})
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestBitmapForEachSetSkipsZeroBlocks(t *testing.T) {
	b := NewBitmap(64 * 1024)
	b.Set(64*1023 + 7)
	var got []int
	b.ForEachSet(func(row int) bool {
		got = append(got, row)
		return true
	})
	assert.Equal(t, []int{64*1023 + 7}, got)
}

func TestBitmapAnd(t *testing.T) {
	a := NewBitmap(100)
	b := NewBitmap(100)
	a.Set(1)
	a.Set(50)
	a.Set(99)
	b.Set(50)
	b.Set(99)
	b.Set(2)
	a.And(b)
	assert.Equal(t, 2, a.Count())
	assert.True(t, a.Get(50))
	assert.True(t, a.Get(99))
	assert.False(t, a.Get(1))
}

func TestBitmapBytesRoundTrip(t *testing.T) {
	b := NewBitmap(77)
	for _, i := range []int{0, 7, 8, 15, 40, 76} {
		b.Set(i)
	}
	data := b.ToBytes()
	require.Len(t, data, 10)
	// little-endian bit order: bits 0 and 7 live in byte 0
	assert.Equal(t, byte(0x81), data[0])

	back := BitmapFromBytes(data, 77)
	assert.True(t, b.Equal(back))
}

func TestBitmapEqualAndClone(t *testing.T) {
	a := NewBitmap(70)
	a.Set(3)
	a.Set(69)

	c := a.Clone()
	assert.True(t, a.Equal(c))
	c.Clear(3)
	assert.False(t, a.Equal(c))

	assert.False(t, a.Equal(NewBitmap(71)))
	assert.False(t, a.Equal(nil))
}
