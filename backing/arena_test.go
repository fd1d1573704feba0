package backing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/slabcache/slab"
)

func TestArenaAllocatorRoundTrip(t *testing.T) {
	a, err := NewArenaAllocator(1<<20, 4096)
	require.NoError(t, err)
	defer a.Close()

	layout := slab.Layout{Size: 4096, Align: 4096}
	p1, err := a.AllocSlab(layout)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0), uintptr(p1)%layout.Align, "every buddy block must be self-aligned")

	p2, err := a.AllocSlab(layout)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	a.DeallocSlab(p1, layout)
	a.DeallocSlab(p2, layout)
}

func TestArenaAllocatorCoalescesOnFree(t *testing.T) {
	a, err := NewArenaAllocator(1<<20, 4096)
	require.NoError(t, err)
	defer a.Close()

	small := slab.Layout{Size: 4096, Align: 4096}
	p1, err := a.AllocSlab(small)
	require.NoError(t, err)
	a.DeallocSlab(p1, small)

	big := slab.Layout{Size: uintptr(a.MaxAlign()), Align: a.MaxAlign()}
	p2, err := a.AllocSlab(big)
	require.NoError(t, err)
	assert.NotNil(t, p2, "after freeing the only allocation, the arena should coalesce back to one top-level block")
	a.DeallocSlab(p2, big)
}

func TestArenaAllocatorRejectsOversizedRequest(t *testing.T) {
	a, err := NewArenaAllocator(1<<16, 4096)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AllocSlab(slab.Layout{Size: uintptr(a.MaxAlign()) * 2, Align: 4096})
	assert.Error(t, err)
}

var _ slab.BackingAllocator = (*ArenaAllocator)(nil)
