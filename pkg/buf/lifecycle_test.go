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

package buf

import (
	"context"
	"encoding/binary"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// tracked returns an owned buffer whose region release flips released.
func tracked(t *testing.T, size int, released *atomic.Bool) Buffer {
	mgr := memseg.Heap()
	seg, err := mgr.Allocate(size)
	require.NoError(t, err)
	return FromSegment(seg, func() {
		mgr.Release(seg)
		released.Store(true)
	}, nil)
}

func TestArcDrop(t *testing.T) {
	var n atomic.Int32
	arc := NewArcDrop(func() { n.Add(1) })
	require.Equal(t, int32(1), arc.Count())

	arc.Acquire()
	require.Equal(t, int32(2), arc.Count())
	arc.Close()
	require.Equal(t, int32(0), n.Load())
	arc.Close()
	require.Equal(t, int32(1), n.Load())

	require.Panics(t, func() { arc.Close() })
	require.Panics(t, func() { arc.Acquire() })
}

func TestCloseReleasesRegion(t *testing.T) {
	var released atomic.Bool
	b := tracked(t, 16, &released)
	require.True(t, b.IsOwned())
	b.Close()
	require.True(t, released.Load())
}

func TestSliceBorrows(t *testing.T) {
	var released atomic.Bool
	b := tracked(t, 8, &released)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3, 4}))
	require.NoError(t, b.Skip(1))

	v, err := b.Slice()
	require.NoError(t, err)
	require.Equal(t, 3, v.Capacity())
	require.Equal(t, 3, v.ReadableBytes())
	require.Equal(t, 1, b.BorrowCount())
	require.False(t, b.IsOwned())
	require.False(t, v.IsOwned())

	// a borrowed parent cannot transfer or split
	_, err = b.Send()
	require.True(t, aberr.IsCode(err, aberr.ErrNotOwned))
	_, err = b.Split()
	require.True(t, aberr.IsCode(err, aberr.ErrNotOwned))
	_, err = v.Send()
	require.True(t, aberr.IsCode(err, aberr.ErrNotOwned))

	// views observe writes to the parent
	require.NoError(t, b.SetUint8(1, 9))
	got, err := v.GetUint8(0)
	require.NoError(t, err)
	require.Equal(t, uint8(9), got)

	v.Close()
	require.Equal(t, 0, b.BorrowCount())
	require.True(t, b.IsOwned())
	require.False(t, released.Load())

	b.Close()
	require.True(t, released.Load())
}

func TestSliceOutlivesParent(t *testing.T) {
	var released atomic.Bool
	b := tracked(t, 8, &released)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3}))

	v, err := b.Slice()
	require.NoError(t, err)
	b.Close()
	require.False(t, released.Load())

	got, err := v.GetUint8(0)
	require.NoError(t, err)
	require.Equal(t, uint8(1), got)
	v.Close()
	require.True(t, released.Load())
}

func TestSliceReadOnlyPropagates(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteUint8(1))
	b.MakeReadOnly()

	v, err := b.Slice()
	require.NoError(t, err)
	defer v.Close()
	require.True(t, v.ReadOnly())
	require.True(t, aberr.IsCode(v.SetUint8(0, 2), aberr.ErrReadOnly))
}

func TestSplit(t *testing.T) {
	var released atomic.Bool
	b := tracked(t, 8, &released)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3, 4, 5, 6}))
	require.NoError(t, b.Skip(2))

	front, err := b.SplitAt(4)
	require.NoError(t, err)
	require.True(t, front.IsOwned())
	require.True(t, b.IsOwned())

	require.Equal(t, 4, front.Capacity())
	require.Equal(t, 2, front.ReaderOffset())
	require.Equal(t, 4, front.WriterOffset())
	require.Equal(t, 4, b.Capacity())
	require.Equal(t, 0, b.ReaderOffset())
	require.Equal(t, 2, b.WriterOffset())

	got := make([]byte, 2)
	require.NoError(t, front.ReadBytes(got))
	require.Equal(t, []byte{3, 4}, got)
	require.NoError(t, b.ReadBytes(got))
	require.Equal(t, []byte{5, 6}, got)

	// both halves stay independently usable and sendable
	s, err := front.Send()
	require.NoError(t, err)
	r, err := s.Receive()
	require.NoError(t, err)
	r.Close()
	require.False(t, released.Load())
	b.Close()
	require.True(t, released.Load())
}

func TestSplitAtWriterOffset(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3}))

	front, err := b.Split()
	require.NoError(t, err)
	defer front.Close()
	require.Equal(t, 3, front.Capacity())
	require.Equal(t, 3, front.ReadableBytes())
	require.Equal(t, 5, b.Capacity())
	require.Equal(t, 0, b.ReadableBytes())
	require.Equal(t, 5, b.WritableBytes())
}

func TestSend(t *testing.T) {
	var released atomic.Bool
	b := tracked(t, 8, &released)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3, 4}))
	require.NoError(t, b.Skip(1))

	s, err := b.Send()
	require.NoError(t, err)
	// the origin dies before the token is usable
	require.False(t, b.IsAccessible())
	_, err = b.Send()
	require.True(t, aberr.IsCode(err, aberr.ErrBufferClosed))

	done := make(chan Buffer, 1)
	go func() {
		r, err := s.Receive()
		if err != nil {
			close(done)
			return
		}
		done <- r
	}()
	r := <-done
	require.NotNil(t, r)
	require.True(t, r.IsOwned())
	require.Equal(t, 1, r.ReaderOffset())
	require.Equal(t, 4, r.WriterOffset())
	got := make([]byte, 3)
	require.NoError(t, r.ReadBytes(got))
	require.Equal(t, []byte{2, 3, 4}, got)

	_, err = s.Receive()
	require.True(t, aberr.IsCode(err, aberr.ErrSendConsumed))
	s.Close()

	require.False(t, released.Load())
	r.Close()
	require.True(t, released.Load())
}

func TestSendDiscard(t *testing.T) {
	var released atomic.Bool
	b := tracked(t, 8, &released)

	s, err := b.Send()
	require.NoError(t, err)
	s.Close()
	require.True(t, released.Load())

	_, err = s.Receive()
	require.True(t, aberr.IsCode(err, aberr.ErrSendConsumed))
}

func TestSendPreservesState(t *testing.T) {
	b := alloc(t, 8)
	b.SetOrder(binary.LittleEndian)
	require.NoError(t, b.WriteUint16(0x0102))
	b.MakeReadOnly()

	s, err := b.Send()
	require.NoError(t, err)
	r, err := s.Receive()
	require.NoError(t, err)
	defer r.Close()
	require.True(t, r.ReadOnly())
	require.Equal(t, binary.ByteOrder(binary.LittleEndian), r.Order())
	v, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), v)
}

func TestFinalizerBackstop(t *testing.T) {
	start := LeakCount()
	func() {
		b, err := HeapAllocator().Allocate(context.Background(), 64)
		require.NoError(t, err)
		_ = b.WriteUint8(1)
		// dropped without Close
	}()
	require.Eventually(t, func() bool {
		runtime.GC()
		return LeakCount() > start
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConstSupplier(t *testing.T) {
	mgr := memseg.Heap()

	s, err := NewConstSupplier(mgr, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	b1, err := s.Get()
	require.NoError(t, err)
	b2, err := s.Get()
	require.NoError(t, err)

	require.True(t, b1.IsOwned())
	require.True(t, b1.ReadOnly())
	require.Equal(t, 4, b1.ReadableBytes())
	require.True(t, aberr.IsCode(b1.WriteUint8(0), aberr.ErrReadOnly))

	v1, err := b1.ReadUint32()
	require.NoError(t, err)
	v2, err := b2.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), v1)
	require.Equal(t, v1, v2)

	// owned const buffers transfer like any other
	snd, err := b1.Send()
	require.NoError(t, err)
	r, err := snd.Receive()
	require.NoError(t, err)
	r.Close()
	b2.Close()

	s.Close()
	_, err = s.Get()
	require.True(t, aberr.IsCode(err, aberr.ErrBufferClosed))
	// every hold is gone, the shared region was released
	require.Equal(t, int32(0), s.arc.Count())
}

func TestCopyOf(t *testing.T) {
	b, err := CopyOf(context.Background(), HeapAllocator(), []byte{9, 8, 7})
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, 3, b.ReadableBytes())
	got := make([]byte, 3)
	require.NoError(t, b.ReadBytes(got))
	require.Equal(t, []byte{9, 8, 7}, got)
}

func TestAllocatorClosed(t *testing.T) {
	a := HeapAllocator()
	require.False(t, a.Pooling())
	require.NoError(t, a.Close())
	_, err := a.Allocate(context.Background(), 1)
	require.True(t, aberr.IsCode(err, aberr.ErrInvalidState))
}
