package backing

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nmxmxh/slabcache/slab"
)

// ArenaAllocator is an alternative slab.BackingAllocator that amortizes
// one large mmap across many slabs instead of MmapAllocator's one
// mapping per region, using a buddy (power-of-two) scheme adapted from
// the teacher's threads/arena/buddy.go. A buddy block's offset from
// the arena's base is always a multiple of its own size, so — just
// like MmapAllocator's page alignment — it satisfies the aligned
// family's "region address is a multiple of region size" requirement
// for any power-of-two layout up to the arena's largest level.
//
// Free-list links are written as plain uint32 offsets directly into
// the arena bytes, exactly as the teacher's SAB-based buddy allocator
// does; unlike slab.header's prev/next, these are never real Go
// pointers, so storing them in GC-invisible mmap'd memory is sound.
type ArenaAllocator struct {
	mu sync.Mutex

	mem  []byte
	base uintptr

	minBlock  uint32
	numLevels int

	freeLists   []uint32 // one per level; 0 means none (block 0 is reserved metadata)
	bitmap      []uint64 // 1 bit per minBlock-sized block
	blockLevels []uint8
}

// NewArenaAllocator maps totalSize bytes (rounded down to a multiple of
// minBlock) plus one reserved minBlock-sized header block, and carves
// it into buddy-managed allocatable blocks, largest power of two first.
func NewArenaAllocator(totalSize uint32, minBlock uint32) (*ArenaAllocator, error) {
	if minBlock == 0 || minBlock&(minBlock-1) != 0 {
		return nil, fmt.Errorf("backing: minBlock %d is not a power of two", minBlock)
	}
	numBlocks := totalSize / minBlock
	if numBlocks == 0 {
		return nil, fmt.Errorf("backing: totalSize %d smaller than minBlock %d", totalSize, minBlock)
	}
	numLevels := 1
	for (minBlock << uint(numLevels-1)) < totalSize {
		numLevels++
	}

	mapSize := int(minBlock) + int(numBlocks)*int(minBlock)
	mem, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("backing: mmap arena of %d bytes: %w", mapSize, err)
	}

	bitmapLen := (int(numBlocks) + 63) / 64
	a := &ArenaAllocator{
		mem:         mem,
		base:        uintptr(unsafe.Pointer(&mem[0])),
		minBlock:    minBlock,
		numLevels:   numLevels,
		freeLists:   make([]uint32, numLevels),
		bitmap:      make([]uint64, bitmapLen),
		blockLevels: make([]uint8, numBlocks),
	}

	remaining := numBlocks * minBlock
	offset := minBlock // block 0 is the reserved header block, never handed out
	for remaining >= minBlock {
		level := numLevels - 1
		for level >= 0 {
			size := a.levelToSize(level)
			if size <= remaining {
				a.addToFreeList(offset, level)
				offset += size
				remaining -= size
				break
			}
			level--
		}
	}
	return a, nil
}

func (a *ArenaAllocator) levelToSize(level int) uint32 { return a.minBlock << uint(level) }

func (a *ArenaAllocator) sizeToLevel(size uint32) (int, error) {
	level := 0
	blockSize := a.minBlock
	for blockSize < size {
		blockSize <<= 1
		level++
		if level >= a.numLevels {
			return 0, fmt.Errorf("backing: size %d exceeds arena's largest block %d", size, a.levelToSize(a.numLevels-1))
		}
	}
	return level, nil
}

// MaxAlign reports the arena's largest buddy block size: any
// power-of-two layout up to this size gets a self-aligned block.
func (a *ArenaAllocator) MaxAlign() uintptr {
	return uintptr(a.levelToSize(a.numLevels - 1))
}

func (a *ArenaAllocator) AllocSlab(l slab.Layout) (unsafe.Pointer, error) {
	size := uint32(l.Size)
	if size < a.minBlock {
		size = a.minBlock
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	level, err := a.sizeToLevel(size)
	if err != nil {
		return nil, err
	}
	offset := a.findFreeBlock(level)
	if offset == 0 {
		return nil, fmt.Errorf("backing: arena exhausted for level %d (%d bytes)", level, a.levelToSize(level))
	}
	a.markAllocated(offset, level)
	return unsafe.Pointer(&a.mem[offset]), nil
}

func (a *ArenaAllocator) DeallocSlab(ptr unsafe.Pointer, l slab.Layout) {
	offset := uint32(uintptr(ptr) - a.base)

	a.mu.Lock()
	defer a.mu.Unlock()

	level := int(a.blockLevels[(offset-a.minBlock)/a.minBlock])
	a.markFree(offset, level)
	a.coalesce(offset, level)
}

func (a *ArenaAllocator) findFreeBlock(level int) uint32 {
	if a.freeLists[level] != 0 {
		offset := a.freeLists[level]
		a.freeLists[level] = a.getNextFree(offset)
		return offset
	}
	for l := level + 1; l < a.numLevels; l++ {
		if a.freeLists[l] != 0 {
			return a.splitBlock(l, level)
		}
	}
	return 0
}

func (a *ArenaAllocator) splitBlock(fromLevel, toLevel int) uint32 {
	offset := a.freeLists[fromLevel]
	a.freeLists[fromLevel] = a.getNextFree(offset)

	for level := fromLevel - 1; level >= toLevel; level-- {
		blockSize := a.levelToSize(level)
		a.addToFreeList(offset+blockSize, level)
	}
	return offset
}

func (a *ArenaAllocator) coalesce(offset uint32, level int) {
	for level < a.numLevels-1 {
		blockSize := a.levelToSize(level)
		rel := offset - a.minBlock
		buddyRel := rel ^ blockSize
		buddyOffset := a.minBlock + buddyRel

		if !a.isFree(buddyOffset, level) {
			break
		}
		a.removeFromFreeList(buddyOffset, level)
		if buddyOffset < offset {
			offset = buddyOffset
		}
		level++
	}
	a.addToFreeList(offset, level)
}

func (a *ArenaAllocator) isFree(offset uint32, level int) bool {
	blockSize := a.levelToSize(level)
	numBlocks := blockSize / a.minBlock
	blockIndex := (offset - a.minBlock) / a.minBlock

	totalBlocks := uint32(len(a.blockLevels))
	if blockIndex+numBlocks > totalBlocks {
		return false
	}
	for i := uint32(0); i < numBlocks; i++ {
		bitIndex := blockIndex + i
		word := a.bitmap[bitIndex/64]
		if word&(1<<(bitIndex%64)) != 0 {
			return false
		}
	}
	return true
}

func (a *ArenaAllocator) markAllocated(offset uint32, level int) {
	a.setBlocks(offset, level, func(bitIndex uint32) { a.bitmap[bitIndex/64] |= 1 << (bitIndex % 64) })
	blockIndex := (offset - a.minBlock) / a.minBlock
	numBlocks := a.levelToSize(level) / a.minBlock
	for i := uint32(0); i < numBlocks; i++ {
		a.blockLevels[blockIndex+i] = uint8(level)
	}
}

func (a *ArenaAllocator) markFree(offset uint32, level int) {
	a.setBlocks(offset, level, func(bitIndex uint32) { a.bitmap[bitIndex/64] &^= 1 << (bitIndex % 64) })
}

func (a *ArenaAllocator) setBlocks(offset uint32, level int, do func(bitIndex uint32)) {
	blockIndex := (offset - a.minBlock) / a.minBlock
	numBlocks := a.levelToSize(level) / a.minBlock
	for i := uint32(0); i < numBlocks; i++ {
		do(blockIndex + i)
	}
}

func (a *ArenaAllocator) addToFreeList(offset uint32, level int) {
	next := a.freeLists[level]
	a.writeU32(offset, next)
	a.freeLists[level] = offset
}

func (a *ArenaAllocator) removeFromFreeList(offset uint32, level int) {
	if a.freeLists[level] == offset {
		a.freeLists[level] = a.getNextFree(offset)
		return
	}
	current := a.freeLists[level]
	for current != 0 {
		next := a.getNextFree(current)
		if next == offset {
			a.writeU32(current, a.getNextFree(offset))
			return
		}
		current = next
	}
}

func (a *ArenaAllocator) getNextFree(offset uint32) uint32 {
	if offset == 0 {
		return 0
	}
	return uint32(a.mem[offset]) |
		uint32(a.mem[offset+1])<<8 |
		uint32(a.mem[offset+2])<<16 |
		uint32(a.mem[offset+3])<<24
}

func (a *ArenaAllocator) writeU32(offset, value uint32) {
	a.mem[offset] = byte(value)
	a.mem[offset+1] = byte(value >> 8)
	a.mem[offset+2] = byte(value >> 16)
	a.mem[offset+3] = byte(value >> 24)
}

// Close unmaps the arena. Any slab regions still outstanding become
// invalid; callers must ensure every class using this arena has been
// closed first.
func (a *ArenaAllocator) Close() error {
	return unix.Munmap(a.mem)
}
