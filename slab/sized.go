package slab

import (
	"fmt"
	"unsafe"

	"github.com/benbjohnson/clock"
	"github.com/sony/gobreaker"
)

// SizedSlabAllocator is the state machine spec.md §4.5 describes: it
// owns the freelist for a single (size, align) class, enforces the
// partial-before-full partition discipline, mediates with the chosen
// slab family, and drives working-set reclamation. It is single-writer
// (spec.md §5): callers must serialize Alloc/Dealloc externally.
type SizedSlabAllocator struct {
	freelist   freelist
	totalSlabs int
	numFull    int
	refcnt     int

	ws   *workingSet
	fam  family
	init InitPolicy

	// breaker guards slab acquisition: a backing allocator that is
	// persistently failing trips the breaker open so Alloc fails fast
	// with ErrExhausted instead of re-attempting a doomed mmap/syscall
	// on every single-object request (domain-stack addition; see
	// SPEC_FULL.md §3).
	breaker *gobreaker.CircuitBreaker
}

// New constructs a SizedSlabAllocator for the given object layout,
// initialization policy, and backing allocator. It performs the
// layout/family decision of spec.md §6: the aligned family is chosen
// whenever its required backing size fits within the backing
// allocator's max alignment, since it avoids the pointer→slab map;
// otherwise the large family is used. Configuration errors are
// reported eagerly, per spec.md §7.
func New(layout Layout, init InitPolicy, backing BackingAllocator) (*SizedSlabAllocator, error) {
	return newSizedSlabAllocator(layout, init, backing, clock.New())
}

func newSizedSlabAllocator(layout Layout, init InitPolicy, backing BackingAllocator, clk clock.Clock) (*SizedSlabAllocator, error) {
	layout = layout.withMinAlign(init.MinAlign())
	layout, err := NewLayout(layout.Size, layout.Align)
	if err != nil {
		return nil, err
	}
	if backing.MaxAlign() < PageSize() {
		return nil, fmt.Errorf("slab: backing max align %d is below page size %d", backing.MaxAlign(), PageSize())
	}

	var fam family
	if alignedBackingSize(layout) <= backing.MaxAlign() {
		fam, err = newAlignedFamily(layout, backing)
	} else {
		fam, err = newLargeFamily(layout, backing)
	}
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "slab-backing",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &SizedSlabAllocator{
		ws:      newWorkingSet(clk, 0),
		fam:     fam,
		init:    init,
		breaker: breaker,
	}, nil
}

// Layout reports the effective layout this allocator serves.
func (a *SizedSlabAllocator) Layout() Layout { return a.fam.layout() }

// Alloc hands out one object slot, per spec.md §4.5 step-by-step:
//  1. Acquire a new slab if the freelist is empty.
//  2. Take the freelist head.
//  3. If it was fully free, it is leaving the working set's "full" bucket.
//  4. Ask the family for a slot.
//  5. Unlink the slab if it's now empty.
//  6. Bump refcnt and run the init policy.
func (a *SizedSlabAllocator) Alloc() (unsafe.Pointer, error) {
	if a.freelist.size == 0 {
		if err := a.acquireSlab(); err != nil {
			return nil, ErrExhausted
		}
	}

	s := a.freelist.head
	if s.isFull() {
		a.numFull--
		a.ws.updateMin(a.numFull)
	}

	slot, cached := a.fam.allocSlot(s)
	if s.isEmpty() {
		a.freelist.removeFront()
	}

	a.refcnt++
	a.init.Init(slot, cached)
	return slot, nil
}

func (a *SizedSlabAllocator) acquireSlab() error {
	res, err := a.breaker.Execute(func() (interface{}, error) {
		return a.fam.allocSlab()
	})
	if err != nil {
		return err
	}
	h := res.(*header)
	a.freelist.pushBack(h)
	a.totalSlabs++
	a.numFull++
	return nil
}

// Dealloc returns a previously-allocated pointer. Double-free and
// foreign-pointer dealloc are undefined behavior by contract
// (spec.md §7). The aligned family does not detect them; the large
// family panics only when the pointer lies in no live large-family slab.
func (a *SizedSlabAllocator) Dealloc(slot unsafe.Pointer) {
	status := a.init.StatusOnFree()
	h, wasEmpty := a.fam.deallocSlot(slot, status)
	isFull := h.isFull()

	// Link table from spec.md §4.5.
	switch {
	case wasEmpty && isFull:
		a.freelist.pushBack(h)
		a.numFull++
	case wasEmpty && !isFull:
		a.freelist.pushFront(h)
	case !wasEmpty && isFull:
		a.freelist.moveToBack(h)
		a.numFull++
	case !wasEmpty && !isFull:
		// already partial and already in front region; no-op
	}

	if isFull {
		a.garbageCollectSlabs()
	}
	a.refcnt--
}

// garbageCollectSlabs implements spec.md §4.6: invoked on the dealloc
// edge that just made a slab fully free (and by Cache.Shrink), it does
// nothing until the working-set window has closed; once it has, it
// releases exactly the window's minimum fully-free count back to the
// backing allocator and starts a new window.
func (a *SizedSlabAllocator) garbageCollectSlabs() {
	minFull, closed := a.ws.refresh(workingSetReclaimSeconds)
	if !closed {
		return
	}
	for i := 0; i < minFull; i++ {
		h := a.freelist.removeBack()
		a.fam.deallocSlab(h)
		a.totalSlabs--
		a.numFull--
	}
	a.ws.set(a.numFull)
}

// Close releases every slab in the freelist back to the backing
// allocator. Closing with outstanding references is a contract
// violation (spec.md §7) and panics, matching the source's own
// assert_eq!(self.refcnt, 0) in its Drop impl.
func (a *SizedSlabAllocator) Close() {
	if a.refcnt != 0 {
		panic(fmt.Sprintf("slab: Close called with %d outstanding objects", a.refcnt))
	}
	for a.freelist.size > 0 {
		h := a.freelist.removeFront()
		a.fam.deallocSlab(h)
		a.totalSlabs--
	}
}

// CloseAfterPanic mirrors the source's unwind-safety behavior
// (original_source/slab-alloc/src/lib.rs SizedSlabAlloc::drop,
// "if panicking() { return }"): call it instead of Close from a
// deferred, recovered panic handler. It skips the refcnt check and
// releases nothing, leaving a documented memory leak rather than
// freeing slabs a recovered caller might still be holding objects
// from.
func (a *SizedSlabAllocator) CloseAfterPanic() {}
