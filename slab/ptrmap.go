package slab

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// ptrEntry records one live large-family slab's address range.
type ptrEntry struct {
	base uintptr
	size uintptr
	hdr  *header
}

// pointerMap is the process-wide pointer→slab map of spec.md §3, §4.4,
// §5, and §9: it owns no slabs, only address-range records, is shared
// by every large-family allocator in the process, and is guarded by
// one mutex. Entries are kept sorted by base so lookup is an O(log n)
// binary search over an exact interval match (the "sorted array with
// interval search" option spec.md §3 explicitly allows).
//
// A bloom filter is consulted first against the page containing the
// probed pointer: every page a live region spans is recorded in the
// filter at insert time (github.com/bits-and-blooms/bloom/v3, also a
// teacher dependency — see core/mesh/gossip.go), so a filter miss
// proves the pointer cannot belong to any live large-family slab
// without touching the sorted search at all. This is the negative
// fast-path; a filter hit still falls through to the exact interval
// search below since bloom filters cannot rule out false positives.
type pointerMap struct {
	mu              sync.Mutex
	entries         []ptrEntry
	filter          *bloom.BloomFilter
	liveAtLastBuild int
}

var globalPointerMap = newPointerMap()

func newPointerMap() *pointerMap {
	return &pointerMap{filter: bloom.NewWithEstimates(1024, 0.01)}
}

func pageKey(page uintptr) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(page >> (8 * uint(i)))
	}
	return b[:]
}

func (m *pointerMap) insert(base, size uintptr, h *header) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].base >= base })
	m.entries = append(m.entries, ptrEntry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = ptrEntry{base: base, size: size, hdr: h}
	// Track the largest live set since the last rebuild, so remove can
	// tell when it has shrunk by half.
	if len(m.entries) > m.liveAtLastBuild {
		m.liveAtLastBuild = len(m.entries)
	}

	page := PageSize()
	for p := base; p < base+size; p += page {
		m.filter.Add(pageKey(p))
	}
}

func (m *pointerMap) remove(base uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].base >= base })
	if i < len(m.entries) && m.entries[i].base == base {
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
	}

	// Bloom filters cannot delete; an unbounded false-positive rate
	// would eventually defeat the negative fast-path, so rebuild once
	// the live set has shrunk to half of its largest size since the
	// last rebuild.
	if m.liveAtLastBuild > 0 && len(m.entries) <= m.liveAtLastBuild/2 {
		m.rebuildFilterLocked()
	}
}

func (m *pointerMap) rebuildFilterLocked() {
	f := bloom.NewWithEstimates(uint(len(m.entries))*8+16, 0.01)
	page := PageSize()
	for _, e := range m.entries {
		for p := e.base; p < e.base+e.size; p += page {
			f.Add(pageKey(p))
		}
	}
	m.filter = f
	m.liveAtLastBuild = len(m.entries)
}

// lookup resolves an object pointer to its owning large-family slab by
// finding the entry whose [base, base+size) interval contains ptr.
func (m *pointerMap) lookup(ptr uintptr) (*header, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	page := ptr &^ (PageSize() - 1)
	if !m.filter.Test(pageKey(page)) {
		return nil, false
	}

	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].base > ptr }) - 1
	if i < 0 || i >= len(m.entries) {
		return nil, false
	}
	e := m.entries[i]
	if ptr >= e.base && ptr < e.base+e.size {
		return e.hdr, true
	}
	return nil, false
}
