package slab

import "unsafe"

// family embodies the aligned/large slab layout distinction of
// spec.md §4.3/§4.4 behind one interface, selected once at
// construction time (spec.md §9 "trait-over-family dispatch" — a
// tagged union rather than virtual dispatch at every call, since Go
// only gives us the latter via an interface; New picks the concrete
// type once and SizedSlabAllocator never branches on it again).
type family interface {
	// allocSlab acquires a new backing region and returns its header
	// unlinked (prev/next nil) with every slot free
	// (freeCount == slotsPerSlab).
	allocSlab() (*header, error)
	// deallocSlab releases h's backing region. h must have
	// freeCount == slotsPerSlab (fully free).
	deallocSlab(h *header)

	// allocSlot hands out one free slot from h and reports whether it
	// was previously cached.
	allocSlot(h *header) (unsafe.Pointer, bool)
	// deallocSlot returns obj to its owning slab, recording status,
	// and reports that slab plus whether it was empty beforehand.
	deallocSlot(obj unsafe.Pointer, status slotStatus) (h *header, wasEmpty bool)

	layout() Layout
}
