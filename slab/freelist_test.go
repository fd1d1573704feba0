package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreelistOrdering(t *testing.T) {
	var fl freelist
	h1 := newHeader(1, 0x1000, 1)
	h2 := newHeader(2, 0x2000, 1)
	h3 := newHeader(3, 0x3000, 1)

	fl.pushBack(h1)
	fl.pushBack(h2)
	fl.pushFront(h3)

	assert.Equal(t, h3, fl.head)
	assert.Equal(t, h2, fl.tail)
	assert.Equal(t, 3, fl.size)

	fl.moveToBack(h3)
	assert.Equal(t, h1, fl.head)
	assert.Equal(t, h3, fl.tail)

	assert.Equal(t, h1, fl.removeFront())
	assert.Equal(t, h3, fl.removeBack())
	assert.Equal(t, 1, fl.size)
	assert.Equal(t, h2, fl.head)
	assert.Equal(t, h2, fl.tail)
}
