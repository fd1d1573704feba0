package slab

import "unsafe"

// InitPolicy is the external collaborator (spec.md §6) controlling
// whether handed-out objects are freshly constructed, reused from a
// cached state, or left uninitialized. The closed sum from spec.md §9
// ("default-construct, factory-by-value, raw-factory, nop") collapses
// here into two concrete policies plus the interface, since Go's
// untyped byte-slot surface (spec.md §1: ambient heap/typed
// integration is out of scope) makes "construct via closure" a uniform
// abstraction for both the default and raw-factory rows of the §6
// table, exactly as spec.md §9 anticipates ("implementations may
// collapse the first two if the target language admits a uniform
// constructor abstraction").
type InitPolicy interface {
	// Init is invoked whenever a slot is handed out by Alloc. cached
	// reports the init bitmap bit that was observed and cleared for
	// this slot; Init must construct a fresh object when cached is
	// false, and may rely on the existing contents when cached is true.
	Init(slot unsafe.Pointer, cached bool)
	// StatusOnFree reports the status to record when a slot is
	// returned via Dealloc.
	StatusOnFree() slotStatus
	// MinAlign reports the minimum alignment this policy requires.
	MinAlign() uintptr
}

// FactoryInitPolicy constructs objects in place via a caller-supplied
// factory whenever a slot is not already holding a cached, previously
// constructed object. It realizes the "Default"/factory-by-value and
// "raw-pointer factory" rows of spec.md §6's init policy table: both
// reduce, for untyped memory, to "call a function that writes a valid
// object into this slot."
type FactoryInitPolicy struct {
	// Factory writes a freshly constructed object into slot.
	Factory func(slot unsafe.Pointer)
	// Align is the alignment the constructed type requires.
	Align uintptr
}

func (p FactoryInitPolicy) Init(slot unsafe.Pointer, cached bool) {
	if !cached {
		p.Factory(slot)
	}
}

func (p FactoryInitPolicy) StatusOnFree() slotStatus { return statusInitialized }
func (p FactoryInitPolicy) MinAlign() uintptr        { return p.Align }

// NopInitPolicy leaves slots uninitialized: Alloc hands out raw
// memory, and freed slots are never reported as cached. This realizes
// the "Nop (uninitialized)" row of spec.md §6's table.
type NopInitPolicy struct{}

func (NopInitPolicy) Init(unsafe.Pointer, bool)      {}
func (NopInitPolicy) StatusOnFree() slotStatus       { return statusUninitialized }
func (NopInitPolicy) MinAlign() uintptr              { return 1 }
