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
	"fmt"

	"github.com/edsrzf/mmap-go"
)

// PageSize is the granularity of memory growth (64KB).
const PageSize = 64 * 1024

// Memory is the growth primitive a Heap draws its blocks from.
//
// Grow extends the memory by the given number of zero-initialized pages and
// returns the previous size in pages. A refused growth is reported as ErrGrow
// and leaves the memory unchanged. Bytes returns the whole memory; the slice
// returned before a Grow must not be used after it.
type Memory interface {
	Grow(pages int) (int, error)
	Bytes() []byte
}

var (
	_ Memory = &LinearMemory{}
	_ Memory = &MappedMemory{}
)

// LinearMemory is a Memory backed by a Go byte slice, reallocated on growth.
type LinearMemory struct {
	buf      []byte
	maxPages int
}

// NewLinearMemory creates a LinearMemory holding `pages` zeroed pages,
// which can grow up to maxPages.
func NewLinearMemory(pages, maxPages int) (*LinearMemory, error) {
	if pages < 0 || maxPages < pages {
		return nil, fmt.Errorf("invalid memory size: pages=%d maxPages=%d", pages, maxPages)
	}
	return &LinearMemory{buf: make([]byte, pages*PageSize), maxPages: maxPages}, nil
}

// Grow appends zeroed pages, reallocating the slice. It returns the old
// size in pages.
func (m *LinearMemory) Grow(pages int) (int, error) {
	old := len(m.buf) / PageSize
	if pages < 0 || old+pages > m.maxPages {
		return old, ErrGrow
	}
	n := (old + pages) * PageSize
	if n <= cap(m.buf) {
		// never shrunk, so the tail beyond len is still zero
		m.buf = m.buf[:n]
		return old, nil
	}
	ncap := cap(m.buf) * 2
	if ncap < n {
		ncap = n
	}
	if max := m.maxPages * PageSize; ncap > max {
		ncap = max
	}
	nbuf := make([]byte, n, ncap)
	copy(nbuf, m.buf)
	m.buf = nbuf
	return old, nil
}

// Bytes returns the current memory. The slice is invalidated by Grow.
func (m *LinearMemory) Bytes() []byte {
	return m.buf
}

// MappedMemory is a Memory backed by an anonymous mapping reserved up front.
// Growth only extends the visible length, so the backing storage never moves.
type MappedMemory struct {
	region mmap.MMap
	size   int
}

// NewMappedMemory reserves maxPages pages of anonymous memory, of which none
// are visible until grown. Call Close to release the mapping.
func NewMappedMemory(maxPages int) (*MappedMemory, error) {
	if maxPages <= 0 {
		return nil, fmt.Errorf("invalid memory size: maxPages=%d", maxPages)
	}
	region, err := mmap.MapRegion(nil, maxPages*PageSize, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("reserve %d pages: %w", maxPages, err)
	}
	return &MappedMemory{region: region}, nil
}

// Grow exposes more of the reserved region and returns the old size in
// pages. It fails with ErrGrow past the reservation.
func (m *MappedMemory) Grow(pages int) (int, error) {
	old := m.size / PageSize
	if m.region == nil || pages < 0 || m.size+pages*PageSize > len(m.region) {
		return old, ErrGrow
	}
	m.size += pages * PageSize
	return old, nil
}

// Bytes returns the visible part of the region.
func (m *MappedMemory) Bytes() []byte {
	return m.region[:m.size:m.size]
}

// Close unmaps the region. The memory must not be used afterwards.
func (m *MappedMemory) Close() error {
	if m.region == nil {
		return nil
	}
	err := m.region.Unmap()
	m.region = nil
	m.size = 0
	return err
}
