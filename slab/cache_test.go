package slab

import (
	"testing"
	"time"
	"unsafe"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheLazilyCreatesClasses(t *testing.T) {
	backing := newHeapBackingAllocator(PageSize())
	c := NewCache(backing, func(Layout) InitPolicy { return NopInitPolicy{} })

	l8, err := NewLayout(8, 8)
	require.NoError(t, err)
	l16, err := NewLayout(16, 16)
	require.NoError(t, err)

	p1, err := c.Alloc(l8)
	require.NoError(t, err)
	p2, err := c.Alloc(l16)
	require.NoError(t, err)
	assert.Len(t, c.classes, 2)

	require.NoError(t, c.Dealloc(l8, p1))
	require.NoError(t, c.Dealloc(l16, p2))

	require.NotPanics(t, func() { c.Close() })
}

func TestCacheShrinkReclaimsFullyFreeSlabs(t *testing.T) {
	backing := newHeapBackingAllocator(PageSize())
	clk := clock.NewMock()
	c := newCache(backing, func(Layout) InitPolicy { return NopInitPolicy{} }, clk)
	l, err := NewLayout(8, 8)
	require.NoError(t, err)

	var ptrs []unsafe.Pointer
	for i := 0; i < slotsPerSlab; i++ {
		p, err := c.Alloc(l)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		require.NoError(t, c.Dealloc(l, p))
	}

	a := c.classes[l]
	a.ws.set(a.numFull)
	clk.Add(time.Duration(workingSetReclaimSeconds+1) * time.Second)
	c.Shrink()
	assert.Equal(t, 0, a.totalSlabs)
}
