// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package malloc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
)

const (
	// headerSize is the size of the header preceding each block's payload.
	// It keeps every payload 16-byte aligned.
	headerSize = 16

	// minShift is log2 of the smallest block size (32 bytes).
	minShift = 5

	// NumClasses is the number of size classes: 32 bytes up to 2GB.
	NumClasses = 27

	// MaxAlloc is the largest payload a single allocation can hold.
	MaxAlloc = 1<<(NumClasses-1+minShift) - headerSize

	// DefaultPageClass is the class whose blocks are exactly one page.
	DefaultPageClass = 11

	// header layout: [class][tag][2 unused][size or next][prev][4 unused]
	offTag  = 1
	offSize = 4
	offNext = 4
	offPrev = 8

	tagUsed byte = 0xA5
	tagFree byte = 0x5F

	nilBlock = ^uint32(0)

	// heap offsets are 32-bit
	addrLimit = 1 << 32
)

// Ptr addresses a payload inside the heap's Memory. Null is never a valid payload.
type Ptr uint32

// Null is returned when an allocation cannot be satisfied.
const Null Ptr = 0

var (
	// ErrGrow indicates the memory refused to grow.
	ErrGrow = errors.New("malloc: memory growth refused")

	// ErrPageClass indicates a page class outside the supported range.
	ErrPageClass = errors.New("malloc: invalid page class")

	// ErrBase indicates a heap base that is not page aligned or lies beyond the memory.
	ErrBase = errors.New("malloc: invalid heap base")
)

// Options configures a Heap.
type Options struct {
	// PageClass is the smallest class obtained directly from Memory.Grow.
	// Its block size must be at least PageSize.
	PageClass int

	// Base is the offset in Memory where the heap begins. Memory below Base
	// is never touched. It must be a multiple of PageSize.
	Base int

	// Logger receives growth events. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the default values of Options.
func DefaultOptions() *Options {
	return &Options{
		PageClass: DefaultPageClass,
	}
}

// Stats is a snapshot of the heap's accounting.
type Stats struct {
	InUse     int // payload bytes currently allocated
	Blocks    int // blocks currently allocated
	Free      int // bytes held in free blocks, headers included
	Footprint int // bytes managed by the heap
	Grows     int // successful Memory.Grow calls
}

// Heap is a size-classed buddy allocator over a growable Memory.
//
// Block offsets are relative to the heap base, and a block of class c is
// always aligned to its own size, so a block's buddy is found by flipping
// bit c+5 of its offset. Free blocks are kept in per-class doubly linked
// lists threaded through their headers.
//
// A Heap is not safe for concurrent use.
type Heap struct {
	mem   Memory
	arena []byte // mem.Bytes()[base:], refreshed after every growth

	// heads holds the first free block of each class, or nilBlock.
	heads [NumClasses]uint32

	base      uint32
	end       uint64 // managed bytes past base
	pageClass int

	inUse  int
	blocks int
	grows  int

	log *slog.Logger
}

// NewHeap creates a heap on mem with default options.
func NewHeap(mem Memory) (*Heap, error) {
	return NewHeapWithOptions(mem, nil)
}

// NewHeapWithOptions creates a heap on mem. Any memory already present above
// opts.Base is adopted as free blocks.
func NewHeapWithOptions(mem Memory, opts *Options) (*Heap, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.PageClass < DefaultPageClass || opts.PageClass >= NumClasses {
		return nil, fmt.Errorf("%w: %d not in [%d, %d)", ErrPageClass, opts.PageClass, DefaultPageClass, NumClasses)
	}
	size := len(mem.Bytes())
	if opts.Base < 0 || opts.Base%PageSize != 0 || opts.Base > size || uint64(opts.Base) >= addrLimit {
		return nil, fmt.Errorf("%w: %d (memory size %d)", ErrBase, opts.Base, size)
	}
	h := &Heap{
		mem:       mem,
		base:      uint32(opts.Base),
		pageClass: opts.PageClass,
		log:       opts.Logger,
	}
	if h.log == nil {
		h.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for i := range h.heads {
		h.heads[i] = nilBlock
	}
	h.refresh()
	end := uint64(size - opts.Base)
	if uint64(h.base)+end > addrLimit {
		end = addrLimit - uint64(h.base)
	}
	end -= end % PageSize
	h.tile(0, end)
	h.end = end
	return h, nil
}

// Alloc allocates a block with room for at least n bytes and returns its
// payload address, or Null if n is unsupported or memory cannot grow.
// Alloc(0) returns a minimum-size block.
func (h *Heap) Alloc(n int) Ptr {
	if n < 0 || n > MaxAlloc {
		return Null
	}
	c := classFor(n + headerSize)
	b := h.pull(c)
	if b == nilBlock {
		return Null
	}
	h.arena[b] = byte(c)
	h.arena[b+offTag] = tagUsed
	h.putU32(b+offSize, uint32(n))
	h.inUse += n
	h.blocks++
	return Ptr(h.base + b + headerSize)
}

// Calloc allocates zeroed room for count elements of size bytes each.
func (h *Heap) Calloc(count, size int) Ptr {
	if count < 0 || size < 0 {
		return Null
	}
	hi, lo := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 || lo > MaxAlloc {
		return Null
	}
	p := h.Alloc(int(lo))
	if p != Null {
		clear(h.Bytes(p))
	}
	return p
}

// Realloc resizes the block at p to n bytes. A Null p behaves as Alloc, and
// n == 0 behaves as Free and returns Null. The block stays in place while n
// fits its class; otherwise the payload moves to a new block and p is released.
// On failure Null is returned and p is left untouched.
func (h *Heap) Realloc(p Ptr, n int) Ptr {
	if p == Null {
		return h.Alloc(n)
	}
	if n == 0 {
		h.Free(p)
		return Null
	}
	if n < 0 || n > MaxAlloc {
		return Null
	}
	b := h.block(p)
	old := int(h.u32(b + offSize))
	if n+headerSize <= blockSize(int(h.arena[b])) {
		h.putU32(b+offSize, uint32(n))
		h.inUse += n - old
		return p
	}
	q := h.Alloc(n)
	if q == Null {
		return Null
	}
	// Bytes(p) is resolved after Alloc, which may have grown the arena.
	copy(h.Bytes(q), h.Bytes(p))
	h.Free(p)
	return q
}

// Free returns the block at p to its free list, merging it with its buddy
// for as long as the buddy is free and of the same class.
// Freeing Null is a no-op. Freeing anything not returned by this heap,
// or freeing twice, is undefined.
func (h *Heap) Free(p Ptr) {
	if p == Null {
		return
	}
	b := h.block(p)
	c := int(h.arena[b])
	h.inUse -= int(h.u32(b + offSize))
	h.blocks--
	h.arena[b+offTag] = 0
	for c < NumClasses-1 {
		size := blockSize(c)
		buddy := b ^ uint32(size)
		if uint64(buddy) >= h.end || h.arena[buddy+offTag] != tagFree || int(h.arena[buddy]) != c {
			break
		}
		h.unlink(c, buddy)
		b &^= uint32(size)
		c++
	}
	h.push(c, b)
}

// Bytes returns the payload at p: its length is the requested size and its
// capacity extends to the end of the block. The slice is invalidated by any
// later allocation that grows the memory.
func (h *Heap) Bytes(p Ptr) []byte {
	b := h.block(p)
	start := b + headerSize
	return h.arena[start : start+h.u32(b+offSize) : b+uint32(blockSize(int(h.arena[b])))]
}

// Size returns the requested size of the block at p.
func (h *Heap) Size(p Ptr) int {
	return int(h.u32(h.block(p) + offSize))
}

// Cap returns the usable capacity of the block at p.
func (h *Heap) Cap(p Ptr) int {
	return blockSize(int(h.arena[h.block(p)])) - headerSize
}

// Owns reports whether p looks like a live allocation of this heap.
// It validates bounds, alignment and the block tag.
func (h *Heap) Owns(p Ptr) bool {
	if uint32(p) < h.base+headerSize || uint64(uint32(p)-h.base) >= h.end || p%headerSize != 0 {
		return false
	}
	b := h.block(p)
	c := int(h.arena[b])
	return h.arena[b+offTag] == tagUsed && c < NumClasses && b&uint32(blockSize(c)-1) == 0
}

// Stats returns the current accounting of the heap.
func (h *Heap) Stats() Stats {
	free := 0
	for c := range h.heads {
		for b := h.heads[c]; b != nilBlock; b = h.u32(b + offNext) {
			free += blockSize(c)
		}
	}
	return Stats{
		InUse:     h.inUse,
		Blocks:    h.blocks,
		Free:      free,
		Footprint: int(h.end),
		Grows:     h.grows,
	}
}

// pull removes a free block of class c from its list, splitting a larger
// block or growing the memory when the list is empty.
// The recursion depth is bounded by NumClasses.
func (h *Heap) pull(c int) uint32 {
	if b := h.heads[c]; b != nilBlock {
		h.unlink(c, b)
		return b
	}
	if c+1 < NumClasses && (c < h.pageClass || h.freeAbove(c)) {
		b := h.pull(c + 1)
		if b == nilBlock {
			return nilBlock
		}
		// keep the lower half, the upper half is its buddy
		h.push(c, b+uint32(blockSize(c)))
		return b
	}
	return h.grow(c)
}

func (h *Heap) freeAbove(c int) bool {
	for k := c + 1; k < NumClasses; k++ {
		if h.heads[k] != nilBlock {
			return true
		}
	}
	return false
}

// grow obtains one block of class c (c >= pageClass) from the memory.
// The block must be aligned to its size, so the gap between the current end
// and the aligned start is tiled with free blocks.
func (h *Heap) grow(c int) uint32 {
	size := uint64(blockSize(c))
	start := (h.end + size - 1) &^ (size - 1)
	end := start + size
	if uint64(h.base)+end > addrLimit {
		h.log.Warn("heap growth exceeds address space", "class", c, "end", end)
		return nilBlock
	}
	pages := int((end - h.end) / PageSize)
	if _, err := h.mem.Grow(pages); err != nil {
		h.log.Warn("heap growth failed", "class", c, "pages", pages, "error", err)
		return nilBlock
	}
	h.refresh()
	h.tile(h.end, start)
	h.end = end
	h.grows++
	h.log.Debug("heap grown", "class", c, "pages", pages, "footprint", end)
	return uint32(start)
}

// tile covers [from, to) with the largest aligned free blocks that fit.
// Both bounds must be multiples of PageSize.
func (h *Heap) tile(from, to uint64) {
	for from < to {
		c := NumClasses - 1
		for c > DefaultPageClass {
			size := uint64(blockSize(c))
			if from&(size-1) == 0 && from+size <= to {
				break
			}
			c--
		}
		h.push(c, uint32(from))
		from += uint64(blockSize(c))
	}
}

func (h *Heap) push(c int, b uint32) {
	head := h.heads[c]
	h.arena[b] = byte(c)
	h.arena[b+offTag] = tagFree
	h.putU32(b+offNext, head)
	h.putU32(b+offPrev, nilBlock)
	if head != nilBlock {
		h.putU32(head+offPrev, b)
	}
	h.heads[c] = b
}

func (h *Heap) unlink(c int, b uint32) {
	next := h.u32(b + offNext)
	prev := h.u32(b + offPrev)
	if prev == nilBlock {
		h.heads[c] = next
	} else {
		h.putU32(prev+offNext, next)
	}
	if next != nilBlock {
		h.putU32(next+offPrev, prev)
	}
	h.arena[b+offTag] = 0
}

func (h *Heap) refresh() {
	h.arena = h.mem.Bytes()[h.base:]
}

func (h *Heap) block(p Ptr) uint32 {
	return uint32(p) - h.base - headerSize
}

func (h *Heap) u32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(h.arena[off:])
}

func (h *Heap) putU32(off, v uint32) {
	binary.LittleEndian.PutUint32(h.arena[off:], v)
}

// blockSize returns the size of a block of class c, header included.
func blockSize(c int) int {
	return 1 << (c + minShift)
}

// classFor returns the smallest class whose blocks hold size bytes.
func classFor(size int) int {
	if size <= 1<<minShift {
		return 0
	}
	return bits.Len(uint(size-1)) - minShift
}
