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
	"math"
	"sync"
	"sync/atomic"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// arena owns chunks and the per-class subpage rings.  Chunks sit in
// usage-bucketed lists so allocation prefers moderately full chunks,
// which lets nearly empty ones drain and be destroyed.  One mutex
// covers the whole arena; shard caches in front of it absorb most
// traffic.
type arena struct {
	mgr       memseg.Manager
	pageSize  int
	pageShifts int
	maxOrder  int
	chunkSize int
	alignment int

	mu sync.Mutex

	tinyPools  []*subpage
	smallPools []*subpage

	qInit, q000, q025, q050, q075, q100 *chunkList

	// shard caches currently attached, for placement of new shards
	numAttached atomic.Int32
	closed      atomic.Bool

	allocationsTiny   atomic.Int64
	allocationsSmall  atomic.Int64
	allocationsNormal atomic.Int64
	allocationsHuge   atomic.Int64
	deallocations     atomic.Int64
	activeBytes       atomic.Int64
	chunkCount        atomic.Int64
}

// allocation records everything needed to free a pooled region.
type allocation struct {
	arena   *arena
	chunk   *chunk
	handle  int64
	seg     memseg.Segment
	normCap int
	reqCap  int
	huge    bool
	release func()
}

func newArena(cfg *Config, mgr memseg.Manager) *arena {
	a := &arena{
		mgr:        mgr,
		pageSize:   cfg.PageSize,
		pageShifts: pageShiftsOf(cfg.PageSize),
		maxOrder:   cfg.MaxOrder,
		chunkSize:  cfg.chunkSize(),
		alignment:  cfg.Alignment,
	}
	a.tinyPools = make([]*subpage, numTinyPools)
	for i := range a.tinyPools {
		a.tinyPools[i] = newSubpageHead(a.pageSize)
	}
	a.smallPools = make([]*subpage, numSmallPools(a.pageShifts))
	for i := range a.smallPools {
		a.smallPools[i] = newSubpageHead(a.pageSize)
	}

	a.q100 = newChunkList(a, 100, math.MaxInt32)
	a.q075 = newChunkList(a, 75, 100)
	a.q050 = newChunkList(a, 50, 100)
	a.q025 = newChunkList(a, 25, 75)
	a.q000 = newChunkList(a, 1, 50)
	a.qInit = newChunkList(a, math.MinInt32, 25)

	a.q100.next = nil
	a.q075.next = a.q100
	a.q050.next = a.q075
	a.q025.next = a.q050
	a.q000.next = a.q025
	a.qInit.next = a.q025

	a.q100.prev = a.q075
	a.q075.prev = a.q050
	a.q050.prev = a.q025
	a.q025.prev = a.q000
	a.q000.prev = nil
	// a drained init chunk stays put instead of being destroyed
	a.qInit.prev = a.qInit
	return a
}

// subpagePoolHead returns the ring sentinel for a normalized sub-page
// size.  Callers hold the arena lock.
func (a *arena) subpagePoolHead(normCapacity int) *subpage {
	if isTiny(normCapacity) {
		return a.tinyPools[tinyIdx(normCapacity)]
	}
	return a.smallPools[smallIdx(normCapacity)]
}

// allocate serves one request from the subpage rings, the chunk lists
// or a fresh chunk.
func (a *arena) allocate(reqCapacity int) (allocation, error) {
	normCap := normalizeCapacity(reqCapacity, a.alignment)
	if normCap > a.chunkSize {
		return a.allocateHuge(reqCapacity)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if normCap < a.pageSize {
		head := a.subpagePoolHead(normCap)
		if s := head.next; s != head {
			h, ok := s.allocate()
			if ok {
				a.countSmall(normCap)
				seg := s.chunk.segmentFor(h, reqCapacity)
				a.activeBytes.Add(int64(normCap))
				return allocation{arena: a, chunk: s.chunk, handle: h, seg: seg, normCap: normCap, reqCap: reqCapacity}, nil
			}
		}
	}

	al, err := a.allocateNormal(reqCapacity, normCap)
	if err != nil {
		return allocation{}, err
	}
	if normCap < a.pageSize {
		a.countSmall(normCap)
	} else {
		a.allocationsNormal.Add(1)
	}
	a.activeBytes.Add(int64(normCap))
	return al, nil
}

func (a *arena) countSmall(normCap int) {
	if isTiny(normCap) {
		a.allocationsTiny.Add(1)
	} else {
		a.allocationsSmall.Add(1)
	}
}

func (a *arena) allocateNormal(reqCapacity, normCap int) (allocation, error) {
	for _, l := range []*chunkList{a.q050, a.q025, a.q000, a.qInit, a.q075} {
		if al, ok := l.allocate(reqCapacity, normCap); ok {
			return al, nil
		}
	}

	seg, err := a.mgr.Allocate(a.chunkSize)
	if err != nil {
		return allocation{}, err
	}
	mgr := a.mgr
	c := newChunk(a, seg, func() { mgr.Release(seg) })
	a.chunkCount.Add(1)
	h, ok := c.allocate(normCap)
	if !ok {
		c.destroy()
		a.chunkCount.Add(-1)
		return allocation{}, aberr.NewAllocationFailure(normCap, "fresh chunk cannot hold request")
	}
	a.qInit.add(c)
	return allocation{arena: a, chunk: c, handle: h, seg: c.segmentFor(h, reqCapacity), normCap: normCap, reqCap: reqCapacity}, nil
}

func (a *arena) allocateHuge(reqCapacity int) (allocation, error) {
	seg, err := a.mgr.Allocate(reqCapacity)
	if err != nil {
		return allocation{}, err
	}
	mgr := a.mgr
	a.allocationsHuge.Add(1)
	a.activeBytes.Add(int64(reqCapacity))
	return allocation{
		arena:   a,
		seg:     seg,
		normCap: reqCapacity,
		reqCap:  reqCapacity,
		huge:    true,
		release: func() { mgr.Release(seg) },
	}, nil
}

// free returns an allocation to its chunk, possibly destroying the
// chunk once it drains.
func (a *arena) free(al allocation) {
	a.deallocations.Add(1)
	a.activeBytes.Add(-int64(al.normCap))
	if al.huge {
		al.release()
		return
	}
	a.mu.Lock()
	destroy := al.chunk.list.free(al.chunk, al.handle)
	if destroy == nil && a.closed.Load() && al.chunk.freeBytes == al.chunk.chunkSize {
		// after close, drained chunks leave regardless of their list
		if al.chunk.list != nil {
			al.chunk.list.remove(al.chunk)
		}
		destroy = al.chunk
	}
	a.mu.Unlock()
	if destroy != nil {
		destroy.destroy()
		a.chunkCount.Add(-1)
	}
}

// chunkList buckets chunks by usage percentage.  Chunks migrate to the
// neighbour list when allocation or freeing moves their usage outside
// [minUsage, maxUsage].
type chunkList struct {
	arena    *arena
	minUsage int
	maxUsage int
	head     *chunk
	next     *chunkList
	prev     *chunkList
}

func newChunkList(a *arena, minUsage, maxUsage int) *chunkList {
	return &chunkList{arena: a, minUsage: minUsage, maxUsage: maxUsage}
}

func (l *chunkList) allocate(reqCapacity, normCap int) (allocation, bool) {
	for c := l.head; c != nil; c = c.next {
		h, ok := c.allocate(normCap)
		if !ok {
			continue
		}
		if c.usage() >= l.maxUsage {
			l.remove(c)
			l.next.add(c)
		}
		return allocation{arena: l.arena, chunk: c, handle: h, seg: c.segmentFor(h, reqCapacity), normCap: normCap, reqCap: reqCapacity}, true
	}
	return allocation{}, false
}

// free returns the chunk to destroy, nil when the chunk stays pooled.
func (l *chunkList) free(c *chunk, handle int64) *chunk {
	c.free(handle)
	if c.usage() < l.minUsage {
		l.remove(c)
		return l.moveDown(c)
	}
	return nil
}

func (l *chunkList) moveDown(c *chunk) *chunk {
	target := l.prev
	for target != nil {
		if c.usage() >= target.minUsage || target.prev == target {
			target.add(c)
			return nil
		}
		target = target.prev
	}
	return c
}

func (l *chunkList) add(c *chunk) {
	if c.usage() >= l.maxUsage && l.next != nil {
		l.next.add(c)
		return
	}
	c.list = l
	c.prev = nil
	c.next = l.head
	if l.head != nil {
		l.head.prev = c
	}
	l.head = c
}

func (l *chunkList) remove(c *chunk) {
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		l.head = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	}
	c.prev = nil
	c.next = nil
	c.list = nil
}

// destroyFree releases every fully drained chunk, for allocator
// shutdown.  Chunks with live regions stay until their buffers close.
func (l *chunkList) destroyFree() {
	for c := l.head; c != nil; {
		next := c.next
		if c.freeBytes == c.chunkSize {
			l.remove(c)
			c.destroy()
			l.arena.chunkCount.Add(-1)
		}
		c = next
	}
}

// releaseIdlePages returns fully free pages parked in the class rings
// to their buddy trees.  Callers hold the arena lock.
func (a *arena) releaseIdlePages() {
	for _, heads := range [][]*subpage{a.tinyPools, a.smallPools} {
		for _, head := range heads {
			for s := head.next; s != head; {
				next := s.next
				if s.numAvail == s.maxNumElems {
					s.doNotDestroy = false
					s.removeFromPool()
					s.chunk.freeRun(s.nodeID)
				}
				s = next
			}
		}
	}
}
