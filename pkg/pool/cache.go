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
	"sync"
	"sync/atomic"
	_ "unsafe"

	"github.com/eapache/queue"
)

// Shard caches sit in front of the arenas.  A goroutine is routed to
// the shard of the P it happens to run on, so under steady state each
// ring is touched from one P and the mutexes are uncontended.  Freed
// regions park in a ring and are handed back out without taking the
// arena lock.

//go:linkname runtime_procPin runtime.procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
func runtime_procUnpin() int

func currentShard(numShards int) int {
	pid := runtime_procPin()
	runtime_procUnpin()
	return pid % numShards
}

// cacheRing parks freed allocations of one size class.
type cacheRing struct {
	mu  sync.Mutex
	q   *queue.Queue
	cap int
	// allocations served since the last trim; trim frees what the
	// interval did not touch
	used int
}

func newCacheRing(capacity int) *cacheRing {
	return &cacheRing{q: queue.New(), cap: capacity}
}

// add parks an allocation, reporting false when the ring is full.
func (r *cacheRing) add(al allocation) bool {
	if r.cap == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Length() >= r.cap {
		return false
	}
	r.q.Add(al)
	return true
}

// take hands back a parked allocation of this class.
func (r *cacheRing) take() (allocation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Length() == 0 {
		return allocation{}, false
	}
	al := r.q.Remove().(allocation)
	r.used++
	return al, true
}

// trim drops the entries this interval's traffic did not need.
func (r *cacheRing) trim() []allocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	excess := r.q.Length() - r.used
	r.used = 0
	if excess <= 0 {
		return nil
	}
	dropped := make([]allocation, 0, excess)
	for i := 0; i < excess && r.q.Length() > 0; i++ {
		dropped = append(dropped, r.q.Remove().(allocation))
	}
	return dropped
}

// drain empties the ring completely.
func (r *cacheRing) drain() []allocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.q.Length()
	dropped := make([]allocation, 0, n)
	for i := 0; i < n; i++ {
		dropped = append(dropped, r.q.Remove().(allocation))
	}
	return dropped
}

// shardCache is one P's set of rings, attached to the arena that had
// the fewest shards when the pool started.
type shardCache struct {
	arena *arena

	tinyRings   []*cacheRing
	smallRings  []*cacheRing
	normalRings []*cacheRing

	maxCachedCapacity int
	trimInterval      int
	sinceTrim         atomic.Int64

	hits   atomic.Int64
	misses atomic.Int64
}

func newShardCache(cfg *Config, a *arena) *shardCache {
	sc := &shardCache{
		arena:             a,
		maxCachedCapacity: cfg.MaxCachedBufferCapacity,
		trimInterval:      cfg.CacheTrimInterval,
	}
	a.numAttached.Add(1)
	sc.tinyRings = make([]*cacheRing, numTinyPools)
	for i := range sc.tinyRings {
		sc.tinyRings[i] = newCacheRing(cfg.SmallCacheSize)
	}
	sc.smallRings = make([]*cacheRing, numSmallPools(a.pageShifts))
	for i := range sc.smallRings {
		sc.smallRings[i] = newCacheRing(cfg.SmallCacheSize)
	}
	numNormal := 0
	for size := a.pageSize; size <= sc.maxCachedCapacity && size <= a.chunkSize; size <<= 1 {
		numNormal++
	}
	sc.normalRings = make([]*cacheRing, numNormal)
	for i := range sc.normalRings {
		sc.normalRings[i] = newCacheRing(cfg.NormalCacheSize)
	}
	return sc
}

// ringFor returns the ring serving a normalized capacity, nil when the
// class is not cacheable.
func (sc *shardCache) ringFor(normCap int) *cacheRing {
	if normCap < sc.arena.pageSize {
		if isTiny(normCap) {
			return sc.tinyRings[tinyIdx(normCap)]
		}
		return sc.smallRings[smallIdx(normCap)]
	}
	if normCap > sc.maxCachedCapacity {
		return nil
	}
	i := log2(normCap) - sc.arena.pageShifts
	if i >= len(sc.normalRings) {
		return nil
	}
	return sc.normalRings[i]
}

// allocate serves a request from the rings when possible.
func (sc *shardCache) allocate(reqCapacity int) (allocation, bool) {
	normCap := normalizeCapacity(reqCapacity, sc.arena.alignment)
	if normCap > sc.arena.chunkSize {
		return allocation{}, false
	}
	r := sc.ringFor(normCap)
	if r == nil {
		sc.misses.Add(1)
		return allocation{}, false
	}
	al, ok := r.take()
	if !ok {
		sc.misses.Add(1)
		return allocation{}, false
	}
	sc.hits.Add(1)
	al.seg = al.chunk.segmentFor(al.handle, reqCapacity)
	al.reqCap = reqCapacity
	sc.countAllocation()
	return al, true
}

// park keeps a freed allocation for reuse, reporting false when the
// allocation must go back to its arena.
func (sc *shardCache) park(al allocation) bool {
	if al.huge {
		return false
	}
	r := sc.ringFor(al.normCap)
	if r == nil {
		return false
	}
	if !r.add(al) {
		return false
	}
	sc.countAllocation()
	return true
}

func (sc *shardCache) countAllocation() {
	if sc.trimInterval <= 0 {
		return
	}
	if sc.sinceTrim.Add(1) >= int64(sc.trimInterval) {
		sc.sinceTrim.Store(0)
		sc.trim()
	}
}

func (sc *shardCache) forEachRing(fn func(*cacheRing)) {
	for _, r := range sc.tinyRings {
		fn(r)
	}
	for _, r := range sc.smallRings {
		fn(r)
	}
	for _, r := range sc.normalRings {
		fn(r)
	}
}

// trim returns unused parked regions to the arena.
func (sc *shardCache) trim() {
	sc.forEachRing(func(r *cacheRing) {
		for _, al := range r.trim() {
			al.arena.free(al)
		}
	})
}

// drain empties every ring back into the arena.
func (sc *shardCache) drain() {
	sc.forEachRing(func(r *cacheRing) {
		for _, al := range r.drain() {
			al.arena.free(al)
		}
	})
	sc.arena.numAttached.Add(-1)
}
