package slab

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/benbjohnson/clock"
)

// Cache is additive sugar over the single-class core (spec.md's
// Non-goals explicitly exclude a built-in multi-size-class engine): an
// open registry of SizedSlabAllocators keyed by layout, reimagining
// the teacher's fixed ten-size-class table (threads/arena/slab.go) as
// a lazily-populated map over this package's single-class allocator
// instead of a hardcoded size ladder.
type Cache struct {
	mu      sync.Mutex
	backing BackingAllocator
	init    func(Layout) InitPolicy
	clk     clock.Clock
	classes map[Layout]*SizedSlabAllocator
}

// NewCache constructs a Cache that lazily creates one
// SizedSlabAllocator per distinct Layout requested of it. initFor
// supplies the InitPolicy for a newly seen layout; pass a function
// returning NopInitPolicy{} for a pure byte-slot cache.
func NewCache(backing BackingAllocator, initFor func(Layout) InitPolicy) *Cache {
	return newCache(backing, initFor, clock.New())
}

func newCache(backing BackingAllocator, initFor func(Layout) InitPolicy, clk clock.Clock) *Cache {
	return &Cache{
		backing: backing,
		init:    initFor,
		clk:     clk,
		classes: make(map[Layout]*SizedSlabAllocator),
	}
}

func (c *Cache) classFor(l Layout) (*SizedSlabAllocator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.classes[l]; ok {
		return a, nil
	}
	a, err := newSizedSlabAllocator(l, c.init(l), c.backing, c.clk)
	if err != nil {
		return nil, fmt.Errorf("slab: cache: class %+v: %w", l, err)
	}
	c.classes[l] = a
	return a, nil
}

// Alloc hands out one object of the given layout, creating that size
// class's allocator on first use.
func (c *Cache) Alloc(l Layout) (unsafe.Pointer, error) {
	a, err := c.classFor(l)
	if err != nil {
		return nil, err
	}
	return a.Alloc()
}

// Dealloc returns obj, previously obtained from Alloc(l), to its size
// class. The caller is responsible for passing the same layout used
// to allocate obj; Cache does not tag pointers with their class.
func (c *Cache) Dealloc(l Layout, obj unsafe.Pointer) error {
	a, err := c.classFor(l)
	if err != nil {
		return err
	}
	a.Dealloc(obj)
	return nil
}

// Shrink runs each registered size class's reclamation pass now,
// instead of waiting for it to be triggered incidentally by a dealloc
// that leaves a slab fully free. A class's pass releases slabs only if
// that class's working-set window has closed; otherwise it releases
// nothing. Non-goals exclude an explicit
// Trim() on the core engine itself; this is Cache's own convenience,
// not a core primitive.
func (c *Cache) Shrink() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.classes {
		a.garbageCollectSlabs()
	}
}

// Close closes every registered size class. It panics if any class
// has outstanding references, per SizedSlabAllocator.Close.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.classes {
		a.Close()
	}
}
