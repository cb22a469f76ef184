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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheRing(t *testing.T) {
	r := newCacheRing(2)
	require.True(t, r.add(allocation{reqCap: 1}))
	require.True(t, r.add(allocation{reqCap: 2}))
	require.False(t, r.add(allocation{reqCap: 3}))

	al, ok := r.take()
	require.True(t, ok)
	require.Equal(t, 1, al.reqCap)

	// the take above counts as used, only the idle entry is trimmed
	require.Empty(t, r.trim())
	dropped := r.trim()
	require.Len(t, dropped, 1)
	require.Equal(t, 2, dropped[0].reqCap)

	_, ok = r.take()
	require.False(t, ok)

	require.True(t, r.add(allocation{reqCap: 4}))
	require.Len(t, r.drain(), 1)

	zero := newCacheRing(0)
	require.False(t, zero.add(allocation{}))
}

func TestShardCacheParkAndServe(t *testing.T) {
	a, _ := testArena(t)
	cfg := testConfig()
	sc := newShardCache(&cfg, a)
	require.EqualValues(t, 1, a.numAttached.Load())

	al, err := a.allocate(64)
	require.NoError(t, err)
	require.True(t, sc.park(al))

	got, ok := sc.allocate(64)
	require.True(t, ok)
	require.Equal(t, al.handle, got.handle)
	require.Equal(t, 64, got.seg.Len())
	require.EqualValues(t, 1, sc.hits.Load())

	_, ok = sc.allocate(64)
	require.False(t, ok)
	require.EqualValues(t, 1, sc.misses.Load())

	a.free(got)
	sc.drain()
	require.EqualValues(t, 0, a.numAttached.Load())
}

func TestShardCacheRejectsUncacheable(t *testing.T) {
	a, cfg := testArena(t)
	cfg.MaxCachedBufferCapacity = cfg.PageSize
	sc := newShardCache(&cfg, a)

	// bigger than the cache ceiling, straight back to the arena
	al, err := a.allocate(2 * cfg.PageSize)
	require.NoError(t, err)
	require.False(t, sc.park(al))
	a.free(al)

	// huge regions never park
	huge, err := a.allocate(cfg.chunkSize() + 1)
	require.NoError(t, err)
	require.False(t, sc.park(huge))
	a.free(huge)

	sc.drain()
}

func TestShardCacheTrim(t *testing.T) {
	a, cfg := testArena(t)
	sc := newShardCache(&cfg, a)

	al, err := a.allocate(64)
	require.NoError(t, err)
	require.True(t, sc.park(al))

	// the parked entry served nothing, trim returns it to the arena
	sc.trim()
	require.EqualValues(t, 1, a.deallocations.Load())
	_, ok := sc.allocate(64)
	require.False(t, ok)

	sc.drain()
}

func TestCurrentShard(t *testing.T) {
	for i := 0; i < 64; i++ {
		s := currentShard(4)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, 4)
	}
}
