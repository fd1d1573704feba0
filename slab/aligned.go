package slab

import (
	"fmt"
	"unsafe"
)

// backPtrSize is the width of the back-pointer this family writes at
// the base of every region it owns. Go's GC does not scan mmap'd (or
// otherwise non-Go-managed) memory, so the header itself cannot live
// inside the raw region the way the original C-style design embeds it
// — only a plain integer can safely live there. The back-pointer is
// purely a lookup aid: resolving an object pointer to its header is
// still a single mask plus one load, preserving the O(1), no-side-
// table property spec.md §4.3 calls for. alignedFamily.live is the
// actual GC root keeping the header alive (see DESIGN.md).
const backPtrSize = unsafe.Sizeof(uintptr(0))

// alignedFamily implements the aligned slab layout of spec.md §4.3:
// the backing region's size equals its own alignment (a power of two),
// so any object pointer's header is found by masking the pointer's low
// bits against (slabSize-1) — no auxiliary structure is consulted on
// the hot path.
type alignedFamily struct {
	objLayout Layout
	slabSize  uintptr // power of two; region size == region alignment
	slotStart uintptr // offset from region base to the uncolored slot 0
	maxColor  uint32
	nextColor uint32

	backing BackingAllocator
	live    map[uintptr]*header // GC root per live region, keyed by base
}

func alignedSlotStart(align uintptr) uintptr {
	return roundUp(backPtrSize, align)
}

// alignedBackingSize computes the smallest power of two backing region
// (and at least align) that fits the back-pointer plus N objects, per
// spec.md §4.3. Coloring pad is whatever space is left over once this
// size is chosen, per spec.md §3.
func alignedBackingSize(layout Layout) uintptr {
	need := alignedSlotStart(layout.Align) + uintptr(slotsPerSlab)*layout.Size
	size := layout.Align
	for size < need {
		size <<= 1
	}
	return size
}

func newAlignedFamily(layout Layout, backing BackingAllocator) (*alignedFamily, error) {
	slabSize := alignedBackingSize(layout)
	if slabSize > backing.MaxAlign() {
		return nil, fmt.Errorf("slab: aligned backing size %d exceeds backing max align %d", slabSize, backing.MaxAlign())
	}
	slotStart := alignedSlotStart(layout.Align)
	leftover := slabSize - slotStart - uintptr(slotsPerSlab)*layout.Size
	maxColor := uint32(leftover/layout.Align) + 1
	return &alignedFamily{
		objLayout: layout,
		slabSize:  slabSize,
		slotStart: slotStart,
		maxColor:  maxColor,
		backing:   backing,
		live:      make(map[uintptr]*header),
	}, nil
}

func (f *alignedFamily) layout() Layout { return f.objLayout }

func (f *alignedFamily) allocSlab() (*header, error) {
	regionLayout := Layout{Size: f.slabSize, Align: f.slabSize}
	region, err := f.backing.AllocSlab(regionLayout)
	if err != nil {
		return nil, err
	}

	base := uintptr(region)
	color := f.nextColor * uint32(f.objLayout.Align)
	f.nextColor = (f.nextColor + 1) % f.maxColor

	h := newHeader(color, base, f.slabSize)
	*(*uintptr)(region) = uintptr(unsafe.Pointer(h))
	f.live[base] = h
	return h, nil
}

func (f *alignedFamily) deallocSlab(h *header) {
	delete(f.live, h.regionBase)
	f.backing.DeallocSlab(unsafe.Pointer(h.regionBase), Layout{Size: f.slabSize, Align: f.slabSize})
}

func (f *alignedFamily) slotAddr(h *header, i uint8) uintptr {
	return h.regionBase + f.slotStart + uintptr(h.color) + uintptr(i)*f.objLayout.Size
}

func (f *alignedFamily) headerForRegion(base uintptr) *header {
	return (*header)(unsafe.Pointer(*(*uintptr)(unsafe.Pointer(base))))
}

func (f *alignedFamily) allocSlot(h *header) (unsafe.Pointer, bool) {
	i, cached := h.allocSlot()
	return unsafe.Pointer(f.slotAddr(h, i)), cached
}

func (f *alignedFamily) deallocSlot(obj unsafe.Pointer, status slotStatus) (*header, bool) {
	p := uintptr(obj)
	base := p &^ (f.slabSize - 1)
	h := f.headerForRegion(base)
	wasEmpty := h.isEmpty()
	rel := p - base - f.slotStart - uintptr(h.color)
	i := uint8(rel / f.objLayout.Size)
	h.deallocSlot(i, status)
	return h, wasEmpty
}
