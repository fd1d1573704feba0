package slab

import (
	"fmt"
	"unsafe"
)

// heapBackingAllocator is a test-only BackingAllocator that services
// regions from ordinary Go-heap byte slices instead of mmap. It
// reports a configurable MaxAlign so tests can force either the
// aligned or the large family without depending on the host's page
// size.
type heapBackingAllocator struct {
	maxAlign uintptr
	live     map[unsafe.Pointer][]byte
	failNext int // AllocSlab fails this many more times before succeeding
}

func newHeapBackingAllocator(maxAlign uintptr) *heapBackingAllocator {
	return &heapBackingAllocator{maxAlign: maxAlign, live: make(map[unsafe.Pointer][]byte)}
}

func (h *heapBackingAllocator) MaxAlign() uintptr { return h.maxAlign }

func (h *heapBackingAllocator) AllocSlab(l Layout) (unsafe.Pointer, error) {
	if h.failNext > 0 {
		h.failNext--
		return nil, fmt.Errorf("heapBackingAllocator: simulated failure")
	}
	// Over-allocate so a correctly-aligned address can be carved out
	// of a plain Go slice, whose own alignment guarantee is weaker
	// than what slab layouts may require.
	buf := make([]byte, int(l.Size+l.Align))
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := roundUp(base, l.Align)
	ptr := unsafe.Pointer(aligned)
	h.live[ptr] = buf
	return ptr, nil
}

func (h *heapBackingAllocator) DeallocSlab(ptr unsafe.Pointer, _ Layout) {
	delete(h.live, ptr)
}
