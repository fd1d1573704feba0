// Package backing provides BackingAllocator implementations for the
// slab package: the external collaborator that actually produces and
// releases whole-slab memory regions (see slab.BackingAllocator).
package backing

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nmxmxh/slabcache/slab"
)

// MmapAllocator satisfies slab.BackingAllocator by carving regions out
// of anonymous mmap mappings, the way d176b14f_cznic-memory's pool
// allocator backs its pages. Every region handed out is its own
// mapping: mmap already guarantees page alignment, and reporting
// MaxAlign as exactly the page size means the aligned family never
// asks for a backing size larger than one page (slab.alignedFamily
// only selects a backing size <= MaxAlign), so a plain page-aligned
// address is always sufficiently aligned without resorting to
// over-mapping and trimming for larger power-of-two alignments.
type MmapAllocator struct{}

// NewMmapAllocator constructs the default backing allocator.
func NewMmapAllocator() *MmapAllocator { return &MmapAllocator{} }

func (MmapAllocator) MaxAlign() uintptr { return slab.PageSize() }

func (MmapAllocator) AllocSlab(l slab.Layout) (unsafe.Pointer, error) {
	if l.Align > slab.PageSize() {
		return nil, fmt.Errorf("backing: align %d exceeds page size %d", l.Align, slab.PageSize())
	}
	size := int(l.Size)
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("backing: mmap %d bytes: %w", size, err)
	}
	return unsafe.Pointer(&b[0]), nil
}

func (MmapAllocator) DeallocSlab(ptr unsafe.Pointer, l slab.Layout) {
	b := unsafe.Slice((*byte)(ptr), int(l.Size))
	if err := unix.Munmap(b); err != nil {
		// Matches the source's own posture: a dealloc-time OS failure
		// here is not a recoverable condition the caller can act on.
		panic(fmt.Sprintf("backing: munmap: %v", err))
	}
}
