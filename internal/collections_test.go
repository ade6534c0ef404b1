package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetAdd tests adding items to a set
func TestSetAdd(t *testing.T) {
	set := NewSet[int]()
	set.Add(1)
	set.Add(2)
	set.Add(3)

	assert.Equal(t, 3, set.Size())
	assert.True(t, set.Contains(1))
	assert.True(t, set.Contains(2))
	assert.True(t, set.Contains(3))
	assert.False(t, set.Contains(4))
}

// TestSetAddDuplicate tests that adding duplicate items doesn't increase size
func TestSetAddDuplicate(t *testing.T) {
	set := NewSet[string]()
	set.Add("apple")
	set.Add("apple")
	set.Add("apple")

	assert.Equal(t, 1, set.Size())
	assert.True(t, set.Contains("apple"))
}

// TestSetToSlice tests converting a set to a slice
func TestSetToSlice(t *testing.T) {
	set := NewSet[uint64]()
	set.Add(10)
	set.Add(20)

	slice := set.ToSlice()
	assert.Len(t, slice, 2)
	assert.ElementsMatch(t, []uint64{10, 20}, slice)
}
