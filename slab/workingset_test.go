package slab

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestWorkingSetWindowMustElapse(t *testing.T) {
	clk := clock.NewMock()
	ws := newWorkingSet(clk, 5)

	_, closed := ws.refresh(workingSetReclaimSeconds)
	assert.False(t, closed)

	clk.Add(time.Duration(workingSetReclaimSeconds-1) * time.Second)
	_, closed = ws.refresh(workingSetReclaimSeconds)
	assert.False(t, closed)

	clk.Add(2 * time.Second)
	min, closed := ws.refresh(workingSetReclaimSeconds)
	assert.True(t, closed)
	assert.Equal(t, 5, min)
}

func TestWorkingSetTracksRollingMinimum(t *testing.T) {
	clk := clock.NewMock()
	ws := newWorkingSet(clk, 10)

	ws.updateMin(7)
	ws.updateMin(3)
	ws.updateMin(9)

	clk.Add(time.Duration(workingSetReclaimSeconds+1) * time.Second)
	min, closed := ws.refresh(workingSetReclaimSeconds)
	assert.True(t, closed)
	assert.Equal(t, 3, min)

	ws.set(min)
	_, closed = ws.refresh(workingSetReclaimSeconds)
	assert.False(t, closed, "set must begin a fresh window")
}
