package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderAllocDeallocTracksCachedBit(t *testing.T) {
	h := newHeader(0, 0x1000, 256)
	require.True(t, h.isFull())

	i, cached := h.allocSlot()
	assert.False(t, cached, "a freshly allocated slab has no cached objects")
	assert.False(t, h.isFull())

	h.deallocSlot(i, statusInitialized)
	assert.True(t, h.isFull())

	i2, cached2 := h.allocSlot()
	assert.Equal(t, i, i2)
	assert.True(t, cached2, "a slot freed as initialized must be reported cached on reuse")
}

func TestHeaderEmptyFull(t *testing.T) {
	h := newHeader(0, 0x2000, 256)
	var got []uint8
	for !h.isEmpty() {
		i, _ := h.allocSlot()
		got = append(got, i)
	}
	assert.Len(t, got, slotsPerSlab)
	assert.True(t, h.isEmpty())

	for _, i := range got {
		h.deallocSlot(i, statusUninitialized)
	}
	assert.True(t, h.isFull())
}
