// Copyright 2024 The arcbuf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// chunk manages one contiguous region as a buddy tree.  Node ids start
// at 1 for the root; the two children of id are 2*id and 2*id+1.  Each
// node value holds the shallowest depth still allocatable beneath it;
// a fully allocated node is marked unusable (maxOrder + 1).
//
// A handle identifies an allocation inside the chunk: the low 32 bits
// are the buddy node id, and for subpage allocations bit 62 is set and
// bits 32..61 carry the bitmap slot.
type chunk struct {
	arena   *arena
	seg     memseg.Segment
	release func()

	nodeMap  []byte
	depthMap []byte
	subpages []*subpage

	pageSize      int
	pageShifts    int
	maxOrder      int
	chunkSize     int
	log2ChunkSize int
	maxLeaves     int
	unusable      byte
	freeBytes     int

	prev, next *chunk
	list       *chunkList
}

const subpageFlag = int64(0x4000000000000000)

func nodeIdx(handle int64) int {
	return int(int32(handle))
}

func bitmapIdx(handle int64) int {
	return int(handle >> 32)
}

func subpageHandle(nodeID, slot int) int64 {
	return subpageFlag | int64(slot|0x40000000)<<32 | int64(nodeID)
}

func newChunk(a *arena, seg memseg.Segment, release func()) *chunk {
	c := &chunk{
		arena:         a,
		seg:           seg,
		release:       release,
		pageSize:      a.pageSize,
		pageShifts:    a.pageShifts,
		maxOrder:      a.maxOrder,
		chunkSize:     a.chunkSize,
		log2ChunkSize: log2(a.chunkSize),
		maxLeaves:     1 << a.maxOrder,
		unusable:      byte(a.maxOrder + 1),
		freeBytes:     a.chunkSize,
	}
	c.nodeMap = make([]byte, c.maxLeaves<<1)
	c.depthMap = make([]byte, c.maxLeaves<<1)
	id := 1
	for d := 0; d <= c.maxOrder; d++ {
		width := 1 << d
		for i := 0; i < width; i++ {
			c.nodeMap[id] = byte(d)
			c.depthMap[id] = byte(d)
			id++
		}
	}
	c.subpages = make([]*subpage, c.maxLeaves)
	return c
}

func (c *chunk) depth(id int) byte {
	return c.depthMap[id]
}

func (c *chunk) runLength(id int) int {
	return 1 << (c.log2ChunkSize - int(c.depth(id)))
}

func (c *chunk) runOffset(id int) int {
	shift := id ^ (1 << c.depth(id))
	return shift * c.runLength(id)
}

func (c *chunk) leafIdx(id int) int {
	return id ^ c.maxLeaves
}

func (c *chunk) usage() int {
	free := c.freeBytes
	if free == 0 {
		return 100
	}
	p := free * 100 / c.chunkSize
	if p == 0 {
		return 99
	}
	return 100 - p
}

// allocateNode claims the leftmost free node at depth d, -1 when the
// tree has no room at that depth.
func (c *chunk) allocateNode(d int) int {
	id := 1
	initial := -(1 << d)
	if c.nodeMap[id] > byte(d) {
		return -1
	}
	for c.nodeMap[id] < byte(d) || id&initial == 0 {
		id <<= 1
		if c.nodeMap[id] > byte(d) {
			id ^= 1
		}
	}
	c.nodeMap[id] = c.unusable
	c.updateParentsAlloc(id)
	return id
}

func (c *chunk) updateParentsAlloc(id int) {
	for id > 1 {
		parent := id >> 1
		v1 := c.nodeMap[id]
		v2 := c.nodeMap[id^1]
		if v2 < v1 {
			v1 = v2
		}
		c.nodeMap[parent] = v1
		id = parent
	}
}

func (c *chunk) updateParentsFree(id int) {
	logChild := int(c.depth(id)) + 1
	for id > 1 {
		parent := id >> 1
		v1 := c.nodeMap[id]
		v2 := c.nodeMap[id^1]
		logChild--
		if v1 == byte(logChild) && v2 == byte(logChild) {
			// both halves free again, merge the buddies
			c.nodeMap[parent] = byte(logChild - 1)
		} else {
			if v2 < v1 {
				v1 = v2
			}
			c.nodeMap[parent] = v1
		}
		id = parent
	}
}

// allocate claims room for normCapacity bytes, returning a handle and
// whether the chunk had room.
func (c *chunk) allocate(normCapacity int) (int64, bool) {
	if normCapacity >= c.pageSize {
		return c.allocateRun(normCapacity)
	}
	return c.allocateSubpage(normCapacity)
}

func (c *chunk) allocateRun(normCapacity int) (int64, bool) {
	d := c.maxOrder - (log2(normCapacity) - c.pageShifts)
	id := c.allocateNode(d)
	if id < 0 {
		return 0, false
	}
	c.freeBytes -= c.runLength(id)
	return int64(id), true
}

func (c *chunk) allocateSubpage(normCapacity int) (int64, bool) {
	head := c.arena.subpagePoolHead(normCapacity)
	id := c.allocateNode(c.maxOrder)
	if id < 0 {
		return 0, false
	}
	c.freeBytes -= c.pageSize
	idx := c.leafIdx(id)
	s := c.subpages[idx]
	if s == nil {
		s = newSubpage(head, c, id, c.runOffset(id), c.pageSize, normCapacity)
		c.subpages[idx] = s
	} else {
		s.init(head, normCapacity)
	}
	h, ok := s.allocate()
	if !ok {
		return 0, false
	}
	return h, true
}

// free returns the allocation behind handle.  Subpage slots go back to
// their bitmap; when the bitmap empties the whole page returns to the
// buddy tree.
func (c *chunk) free(handle int64) {
	id := nodeIdx(handle)
	if handle&subpageFlag != 0 {
		s := c.subpages[c.leafIdx(id)]
		head := c.arena.subpagePoolHead(s.elemSize)
		retain := !c.arena.closed.Load()
		if s.free(head, bitmapIdx(handle)&0x3fffffff, retain) {
			return
		}
	}
	c.freeRun(id)
}

func (c *chunk) freeRun(id int) {
	c.freeBytes += c.runLength(id)
	c.nodeMap[id] = c.depth(id)
	c.updateParentsFree(id)
}

// segmentFor slices the region of an allocation down to the requested
// capacity.
func (c *chunk) segmentFor(handle int64, reqCapacity int) memseg.Segment {
	id := nodeIdx(handle)
	if handle&subpageFlag != 0 {
		s := c.subpages[c.leafIdx(id)]
		slot := bitmapIdx(handle) & 0x3fffffff
		return c.seg.Slice(s.runOffset+slot*s.elemSize, reqCapacity)
	}
	return c.seg.Slice(c.runOffset(id), reqCapacity)
}

// destroy hands the backing region back to the memory manager.
func (c *chunk) destroy() {
	c.release()
}
