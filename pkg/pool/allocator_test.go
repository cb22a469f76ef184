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
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
)

func testAllocator(t *testing.T) *Allocator {
	p, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func TestPoolAllocate(t *testing.T) {
	p := testAllocator(t)
	ctx := context.Background()
	require.True(t, p.Pooling())

	b, err := p.Allocate(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 100, b.Capacity())
	require.Equal(t, 0, b.ReadableBytes())
	require.Equal(t, 100, b.WritableBytes())

	require.NoError(t, b.WriteUint32(0xdeadbeef))
	v, err := b.GetUint32(0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)
	b.Close()
	require.False(t, b.IsAccessible())
}

func TestPoolAllocateZeroed(t *testing.T) {
	p := testAllocator(t)
	ctx := context.Background()

	b, err := p.Allocate(ctx, 64)
	require.NoError(t, err)
	require.NoError(t, b.Fill(0xff))
	b.Close()

	// recycled regions come back clean
	b, err = p.Allocate(ctx, 64)
	require.NoError(t, err)
	for i := 0; i < b.Capacity(); i++ {
		u, err := b.GetUint8(i)
		require.NoError(t, err)
		require.Equal(t, uint8(0), u)
	}
	b.Close()
}

func TestPoolAllocateEdges(t *testing.T) {
	p := testAllocator(t)
	ctx := context.Background()

	_, err := p.Allocate(ctx, -1)
	require.True(t, aberr.IsCode(err, aberr.ErrInvalidInput))

	b, err := p.Allocate(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 0, b.Capacity())
	b.Close()
}

func TestPoolAllocateHuge(t *testing.T) {
	p := testAllocator(t)
	ctx := context.Background()

	size := p.cfg.chunkSize() + 1
	b, err := p.Allocate(ctx, size)
	require.NoError(t, err)
	require.Equal(t, size, b.Capacity())
	require.NoError(t, b.SetUint8(size-1, 0x7f))
	b.Close()

	m := p.Metrics()
	require.EqualValues(t, 1, m.AllocationsHuge)
	require.EqualValues(t, 1, m.Deallocations)
}

func TestPoolGrow(t *testing.T) {
	p := testAllocator(t)
	ctx := context.Background()

	b, err := p.Allocate(ctx, 16)
	require.NoError(t, err)
	require.NoError(t, b.WriteUint64(0x0102030405060708))
	require.NoError(t, b.EnsureWritable(5000))
	require.GreaterOrEqual(t, b.WritableBytes(), 5000)
	v, err := b.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v)
	b.Close()
}

func TestPoolMetrics(t *testing.T) {
	p := testAllocator(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		b, err := p.Allocate(ctx, 128)
		require.NoError(t, err)
		b.Close()
	}

	m := p.Metrics()
	require.Len(t, m.Arenas, p.cfg.NumArenas)
	require.GreaterOrEqual(t, m.AllocationsTiny, int64(1))
	require.GreaterOrEqual(t, m.CacheHits+m.CacheMisses, int64(8))
}

func TestPoolClose(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	b, err := p.Allocate(ctx, 32)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Allocate(ctx, 1)
	require.True(t, aberr.IsCode(err, aberr.ErrInvalidState))

	// live buffers outlast the pool and release on close
	require.NoError(t, b.WriteUint16(0xbeef))
	b.Close()
}

func TestPoolTrimWorker(t *testing.T) {
	cfg := testConfig()
	cfg.CacheTrimIntervalMillis = 5
	p, err := New(cfg)
	require.NoError(t, err)

	b, err := p.Allocate(context.Background(), 256)
	require.NoError(t, err)
	b.Close()
	require.NoError(t, p.Close())
}

func TestPoolConcurrent(t *testing.T) {
	p := testAllocator(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				size := (g+1)*37 + i
				b, err := p.Allocate(ctx, size)
				require.NoError(t, err)
				require.NoError(t, b.WriteUint8(byte(i)))
				u, err := b.GetUint8(0)
				require.NoError(t, err)
				require.Equal(t, byte(i), u)
				b.Close()
			}
		}(g)
	}
	wg.Wait()

	m := p.Metrics()
	require.GreaterOrEqual(t, m.CacheHits+m.CacheMisses, int64(1600))
	total := m.AllocationsTiny + m.AllocationsSmall + m.AllocationsNormal + m.AllocationsHuge
	require.GreaterOrEqual(t, total+m.CacheHits, int64(1600))
}
