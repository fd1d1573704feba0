package slab

import "unsafe"

// BackingAllocator is the external collaborator (spec.md §1, §6) that
// produces and releases whole-slab memory regions. Concrete
// implementations are deliberately out of scope for this package; see
// the sibling backing package for the two this repository ships, and
// DESIGN.md for why that split is preserved from the core engine.
type BackingAllocator interface {
	// AllocSlab returns a region matching exactly the requested
	// layout: len(region) == l.Size, and the region's address is a
	// multiple of l.Align.
	AllocSlab(l Layout) (unsafe.Pointer, error)
	// DeallocSlab releases a region previously returned by AllocSlab
	// with the same layout.
	DeallocSlab(ptr unsafe.Pointer, l Layout)
	// MaxAlign reports the largest alignment AllocSlab can satisfy;
	// must be >= PageSize().
	MaxAlign() uintptr
}
