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

// Package pool recycles buffer memory through arenas of buddy-managed
// chunks with per-shard front caches, so steady-state allocation does
// not touch the memory manager at all.
package pool

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/arcbuf/arcbuf/pkg/buf"
	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/logutil"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// Allocator is a pooling buf.Allocator.  Regions come out of buddy
// chunks owned by arenas; closed buffers hand their region to the
// current shard's cache and from there back to the arena.
type Allocator struct {
	cfg    Config
	mgr    memseg.Manager
	arenas []*arena
	shards []*shardCache

	workers *ants.Pool
	stop    chan struct{}
	closed  atomic.Bool
}

var _ buf.Allocator = (*Allocator)(nil)

// New builds a pooled allocator.  The zero Config is adjusted to the
// defaults.
func New(cfg Config) (*Allocator, error) {
	cfg.Adjust()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mgr, ok := memseg.Get(cfg.Manager)
	if !ok {
		return nil, aberr.NewBadConfig("unknown memory manager %q", cfg.Manager)
	}

	p := &Allocator{
		cfg:  cfg,
		mgr:  mgr,
		stop: make(chan struct{}),
	}
	p.arenas = make([]*arena, cfg.NumArenas)
	for i := range p.arenas {
		p.arenas[i] = newArena(&cfg, mgr)
	}

	numShards := runtime.GOMAXPROCS(0)
	p.shards = make([]*shardCache, numShards)
	for i := range p.shards {
		p.shards[i] = newShardCache(&cfg, p.leastUsedArena())
	}

	if cfg.CacheTrimIntervalMillis > 0 {
		workers, err := ants.NewPool(1)
		if err != nil {
			return nil, aberr.NewInternalError("cannot start trim worker: %s", err.Error())
		}
		p.workers = workers
		if err := workers.Submit(p.trimLoop); err != nil {
			workers.Release()
			return nil, aberr.NewInternalError("cannot start trim worker: %s", err.Error())
		}
	}

	logutil.Info("buffer pool",
		zap.String("manager", cfg.Manager),
		zap.Int("arenas", cfg.NumArenas),
		zap.Int("shards", numShards),
		zap.Int("page size", cfg.PageSize),
		zap.Int("chunk size", cfg.chunkSize()),
	)
	return p, nil
}

// leastUsedArena picks the arena with the fewest attached shards.
func (p *Allocator) leastUsedArena() *arena {
	best := p.arenas[0]
	for _, a := range p.arenas[1:] {
		if a.numAttached.Load() < best.numAttached.Load() {
			best = a
		}
	}
	return best
}

func (p *Allocator) trimLoop() {
	ticker := time.NewTicker(p.cfg.trimInterval())
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.TrimCaches()
		}
	}
}

// TrimCaches releases unused cached regions back to the arenas.  The
// timed worker calls this on its interval; callers under memory
// pressure may call it directly.
func (p *Allocator) TrimCaches() {
	for _, sc := range p.shards {
		sc.trim()
	}
}

func (p *Allocator) shard() *shardCache {
	return p.shards[currentShard(len(p.shards))]
}

// allocateSegment is the shared allocation path, also serving buffers
// that grow.
func (p *Allocator) allocateSegment(size int) (memseg.Segment, func(), error) {
	if p.closed.Load() {
		return memseg.Segment{}, nil, aberr.NewInvalidState("allocator is closed")
	}
	sc := p.shard()
	al, ok := sc.allocate(size)
	if !ok {
		var err error
		al, err = sc.arena.allocate(size)
		if err != nil {
			return memseg.Segment{}, nil, err
		}
	}
	if !al.huge {
		// runs are recycled, callers expect zeroed regions
		clear(al.seg.Bytes())
	}
	release := func() { p.free(al) }
	return al.seg, release, nil
}

func (p *Allocator) free(al allocation) {
	if !p.closed.Load() && p.shard().park(al) {
		return
	}
	al.arena.free(al)
}

// Allocate returns an owned buffer backed by pooled memory.
func (p *Allocator) Allocate(ctx context.Context, size int) (buf.Buffer, error) {
	if size < 0 {
		return nil, aberr.NewInvalidInput("cannot allocate %d bytes", size)
	}
	req := size
	if req == 0 {
		req = 1
	}
	seg, release, err := p.allocateSegment(req)
	if err != nil {
		return nil, err
	}
	b := buf.FromSegment(seg.Slice(0, size), release, poolControl{p})
	return b, nil
}

// Pooling reports true.
func (p *Allocator) Pooling() bool {
	return true
}

// Close drains the caches and destroys every drained chunk.  Buffers
// still alive keep their memory; each chunk is released to the memory
// manager once its last buffer closes.
func (p *Allocator) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stop)
	if p.workers != nil {
		p.workers.Release()
	}
	for _, a := range p.arenas {
		a.closed.Store(true)
	}
	for _, sc := range p.shards {
		sc.drain()
	}
	for _, a := range p.arenas {
		a.mu.Lock()
		a.releaseIdlePages()
		for _, l := range []*chunkList{a.qInit, a.q000, a.q025, a.q050, a.q075, a.q100} {
			l.destroyFree()
		}
		a.mu.Unlock()
	}
	return nil
}

// poolControl lets pooled buffers grow out of the same pool.
type poolControl struct {
	p *Allocator
}

func (c poolControl) AllocateSegment(size int) (memseg.Segment, func(), error) {
	return c.p.allocateSegment(size)
}
