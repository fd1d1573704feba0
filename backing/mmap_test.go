package backing

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/slabcache/slab"
)

func TestMmapAllocatorRoundTrip(t *testing.T) {
	b := NewMmapAllocator()
	layout := slab.Layout{Size: b.MaxAlign(), Align: b.MaxAlign()}

	region, err := b.AllocSlab(layout)
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, uintptr(0), uintptr(region)%layout.Align, "mmap must return a page-aligned address")

	buf := unsafe.Slice((*byte)(region), int(layout.Size))
	buf[0] = 0xff
	buf[len(buf)-1] = 0xff

	b.DeallocSlab(region, layout)
}

func TestMmapAllocatorRejectsOversizedAlign(t *testing.T) {
	b := NewMmapAllocator()
	_, err := b.AllocSlab(slab.Layout{Size: b.MaxAlign() * 2, Align: b.MaxAlign() * 2})
	assert.Error(t, err)
}
