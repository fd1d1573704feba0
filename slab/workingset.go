package slab

import (
	"time"

	"github.com/benbjohnson/clock"
)

// workingSetReclaimSeconds is WORKING_PERIOD_SECONDS from spec.md §4.6:
// the rolling window used to size slab reclamation.
const workingSetReclaimSeconds = 15

// workingSet tracks, over a rolling window, the minimum value ever
// observed for a quantity (here, the count of fully-free slabs), per
// spec.md §4.6. The clock is the monotonic collaborator of spec.md §5;
// tests substitute clock.NewMock so the window can be advanced
// deterministically instead of sleeping in real time.
type workingSet struct {
	clk         clock.Clock
	windowStart time.Time
	min         int
}

func newWorkingSet(clk clock.Clock, initial int) *workingSet {
	return &workingSet{clk: clk, windowStart: clk.Now(), min: initial}
}

// updateMin records a new observation for the current window.
func (w *workingSet) updateMin(v int) {
	if v < w.min {
		w.min = v
	}
}

// refresh reports the window's minimum once at least windowSeconds
// have elapsed since the window began; otherwise it reports that the
// window has not yet closed. The caller is responsible for starting
// the next window via set, mirroring the source's own split between
// refresh and set (original_source/slab-alloc/src/lib.rs
// garbage_collect_slabs).
func (w *workingSet) refresh(windowSeconds int64) (min int, closed bool) {
	if w.clk.Now().Sub(w.windowStart) < time.Duration(windowSeconds)*time.Second {
		return 0, false
	}
	return w.min, true
}

// set begins a new window seeded with the given minimum.
func (w *workingSet) set(v int) {
	w.windowStart = w.clk.Now()
	w.min = v
}
