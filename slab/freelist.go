package slab

// freelist is the intrusive doubly linked list of spec.md §3/§9: slab
// links live inside the headers themselves, so no separate node
// allocation is needed and moveToBack is O(1) given a known node. This
// type provides only the mechanical operations; SizedSlabAllocator
// enforces the partial-before-full partition discipline by choosing
// front vs. back insertion per the link table in spec.md §4.5.
type freelist struct {
	head, tail *header
	size       int
}

func (f *freelist) pushFront(h *header) {
	h.prev = nil
	h.next = f.head
	if f.head != nil {
		f.head.prev = h
	}
	f.head = h
	if f.tail == nil {
		f.tail = h
	}
	f.size++
}

func (f *freelist) pushBack(h *header) {
	h.next = nil
	h.prev = f.tail
	if f.tail != nil {
		f.tail.next = h
	}
	f.tail = h
	if f.head == nil {
		f.head = h
	}
	f.size++
}

func (f *freelist) remove(h *header) {
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		f.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	} else {
		f.tail = h.prev
	}
	h.prev, h.next = nil, nil
	f.size--
}

func (f *freelist) moveToBack(h *header) {
	f.remove(h)
	f.pushBack(h)
}

func (f *freelist) removeFront() *header {
	h := f.head
	if h != nil {
		f.remove(h)
	}
	return h
}

func (f *freelist) removeBack() *header {
	h := f.tail
	if h != nil {
		f.remove(h)
	}
	return h
}
