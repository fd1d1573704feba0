package slab

import (
	"fmt"
	"unsafe"
)

// largeFamily implements spec.md §4.4: a page-aligned backing region
// (size need not be a power of two) whose header lives out-of-band and
// is recovered through the process-wide pointerMap rather than address
// masking.
//
// spec.md suggests bootstrapping the header pool recursively with the
// aligned family. In a garbage-collected language that pool is simply
// the Go heap: header carries real Go pointer fields (prev/next for
// the freelist), and Go's own small-object allocator already serves
// exactly the role spec.md's "secondary small-object pool" describes,
// without the unsoundness of embedding GC-visible pointers inside
// GC-invisible backing memory (see DESIGN.md and the note on
// alignedFamily.live in aligned.go, which the same constraint shapes).
type largeFamily struct {
	objLayout  Layout
	regionSize uintptr
	maxColor   uint32
	nextColor  uint32

	backing BackingAllocator
	ptrs    *pointerMap
}

// largeBackingSize rounds N objects up to a whole number of pages and
// reports how many coloring steps fit the leftover space, per
// spec.md §3/§4.4.
func largeBackingSize(layout Layout) (size uintptr, maxColor uint32) {
	page := PageSize()
	raw := uintptr(slotsPerSlab) * layout.Size
	size = roundUp(raw, page)
	leftover := size - raw
	maxColor = uint32(leftover/layout.Align) + 1
	return size, maxColor
}

func newLargeFamily(layout Layout, backing BackingAllocator) (*largeFamily, error) {
	if backing.MaxAlign() < PageSize() {
		return nil, fmt.Errorf("slab: backing max align %d is below page size %d", backing.MaxAlign(), PageSize())
	}
	size, maxColor := largeBackingSize(layout)
	return &largeFamily{
		objLayout:  layout,
		regionSize: size,
		maxColor:   maxColor,
		backing:    backing,
		ptrs:       globalPointerMap,
	}, nil
}

func (f *largeFamily) layout() Layout { return f.objLayout }

func (f *largeFamily) regionLayout() Layout {
	return Layout{Size: f.regionSize, Align: PageSize()}
}

func (f *largeFamily) allocSlab() (*header, error) {
	region, err := f.backing.AllocSlab(f.regionLayout())
	if err != nil {
		return nil, err
	}
	base := uintptr(region)
	color := f.nextColor * uint32(f.objLayout.Align)
	f.nextColor = (f.nextColor + 1) % f.maxColor

	h := newHeader(color, base, f.regionSize)
	f.ptrs.insert(base, f.regionSize, h)
	return h, nil
}

func (f *largeFamily) deallocSlab(h *header) {
	f.ptrs.remove(h.regionBase)
	f.backing.DeallocSlab(unsafe.Pointer(h.regionBase), f.regionLayout())
}

func (f *largeFamily) slotAddr(h *header, i uint8) uintptr {
	return h.regionBase + uintptr(h.color) + uintptr(i)*f.objLayout.Size
}

func (f *largeFamily) allocSlot(h *header) (unsafe.Pointer, bool) {
	i, cached := h.allocSlot()
	return unsafe.Pointer(f.slotAddr(h, i)), cached
}

func (f *largeFamily) deallocSlot(obj unsafe.Pointer, status slotStatus) (*header, bool) {
	h, ok := f.ptrs.lookup(uintptr(obj))
	if !ok {
		panic("slab: dealloc of pointer not owned by this allocator")
	}
	wasEmpty := h.isEmpty()
	rel := uintptr(obj) - h.regionBase - uintptr(h.color)
	i := uint8(rel / f.objLayout.Size)
	h.deallocSlot(i, status)
	return h, wasEmpty
}
