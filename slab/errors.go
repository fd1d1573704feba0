package slab

import "errors"

// ErrExhausted is returned by Alloc when the backing allocator cannot
// supply a new slab and the freelist holds no free slots (spec.md §7).
// It is the only runtime failure this engine surfaces; everything else
// is a contract violation.
var ErrExhausted = errors.New("slab: exhausted")
