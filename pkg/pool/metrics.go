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

// ArenaMetrics is a point-in-time snapshot of one arena's counters.
type ArenaMetrics struct {
	AllocationsTiny   int64
	AllocationsSmall  int64
	AllocationsNormal int64
	AllocationsHuge   int64
	Deallocations     int64
	ActiveBytes       int64
	ChunkCount        int64
}

// Metrics aggregates allocator counters across arenas and shard caches.
type Metrics struct {
	Arenas []ArenaMetrics

	AllocationsTiny   int64
	AllocationsSmall  int64
	AllocationsNormal int64
	AllocationsHuge   int64
	Deallocations     int64
	ActiveBytes       int64
	ChunkCount        int64

	CacheHits   int64
	CacheMisses int64
}

func (a *arena) metrics() ArenaMetrics {
	return ArenaMetrics{
		AllocationsTiny:   a.allocationsTiny.Load(),
		AllocationsSmall:  a.allocationsSmall.Load(),
		AllocationsNormal: a.allocationsNormal.Load(),
		AllocationsHuge:   a.allocationsHuge.Load(),
		Deallocations:     a.deallocations.Load(),
		ActiveBytes:       a.activeBytes.Load(),
		ChunkCount:        a.chunkCount.Load(),
	}
}

// Metrics snapshots the allocator's counters.  The snapshot is not
// atomic across arenas; concurrent traffic can skew totals slightly.
func (p *Allocator) Metrics() Metrics {
	var m Metrics
	m.Arenas = make([]ArenaMetrics, len(p.arenas))
	for i, a := range p.arenas {
		am := a.metrics()
		m.Arenas[i] = am
		m.AllocationsTiny += am.AllocationsTiny
		m.AllocationsSmall += am.AllocationsSmall
		m.AllocationsNormal += am.AllocationsNormal
		m.AllocationsHuge += am.AllocationsHuge
		m.Deallocations += am.Deallocations
		m.ActiveBytes += am.ActiveBytes
		m.ChunkCount += am.ChunkCount
	}
	for _, sc := range p.shards {
		m.CacheHits += sc.hits.Load()
		m.CacheMisses += sc.misses.Load()
	}
	return m
}
