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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
)

func alloc(t *testing.T, size int) Buffer {
	b, err := HeapAllocator().Allocate(context.Background(), size)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestOffsets(t *testing.T) {
	b := alloc(t, 16)
	require.Equal(t, 16, b.Capacity())
	require.Equal(t, 0, b.ReaderOffset())
	require.Equal(t, 0, b.WriterOffset())
	require.Equal(t, 0, b.ReadableBytes())
	require.Equal(t, 16, b.WritableBytes())

	require.NoError(t, b.WriteUint32(1))
	require.Equal(t, 4, b.WriterOffset())
	require.Equal(t, 4, b.ReadableBytes())
	require.Equal(t, 12, b.WritableBytes())

	_, err := b.ReadUint64()
	require.True(t, aberr.IsCode(err, aberr.ErrIndexOutOfRange))
	require.Equal(t, 0, b.ReaderOffset())

	v, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)
	require.Equal(t, 4, b.ReaderOffset())

	require.True(t, aberr.IsCode(b.SetReaderOffset(5), aberr.ErrIndexOutOfRange))
	require.NoError(t, b.SetReaderOffset(0))
	require.True(t, aberr.IsCode(b.SetWriterOffset(17), aberr.ErrIndexOutOfRange))
	require.NoError(t, b.SetWriterOffset(16))
	require.Equal(t, 16, b.ReadableBytes())

	require.NoError(t, b.Skip(10))
	require.Equal(t, 10, b.ReaderOffset())
	require.True(t, aberr.IsCode(b.Skip(7), aberr.ErrIndexOutOfRange))

	b.ResetOffsets()
	require.Equal(t, 0, b.ReaderOffset())
	require.Equal(t, 0, b.WriterOffset())
}

func TestBigEndianAccessors(t *testing.T) {
	b := alloc(t, 32)
	require.Equal(t, binary.ByteOrder(binary.BigEndian), b.Order())

	require.NoError(t, b.WriteUint32(0x01020304))
	for i, want := range []uint8{1, 2, 3, 4} {
		got, err := b.GetUint8(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	require.NoError(t, b.WriteUint16(0xcafe))
	require.NoError(t, b.WriteUint64(0x1122334455667788))

	v32, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), v32)
	v16, err := b.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0xcafe), v16)
	v64, err := b.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x1122334455667788), v64)
}

func TestLittleEndianAccessors(t *testing.T) {
	b := alloc(t, 16)
	b.SetOrder(binary.LittleEndian)

	require.NoError(t, b.WriteUint32(0x01020304))
	for i, want := range []uint8{4, 3, 2, 1} {
		got, err := b.GetUint8(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	v, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), v)
}

func TestSignedAndFloatAccessors(t *testing.T) {
	b := alloc(t, 64)

	require.NoError(t, b.WriteInt8(-1))
	require.NoError(t, b.WriteInt16(-2))
	require.NoError(t, b.WriteInt32(-3))
	require.NoError(t, b.WriteInt64(-4))
	require.NoError(t, b.WriteFloat32(1.5))
	require.NoError(t, b.WriteFloat64(-2.25))

	i8, err := b.ReadInt8()
	require.NoError(t, err)
	require.Equal(t, int8(-1), i8)
	i16, err := b.ReadInt16()
	require.NoError(t, err)
	require.Equal(t, int16(-2), i16)
	i32, err := b.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-3), i32)
	i64, err := b.ReadInt64()
	require.NoError(t, err)
	require.Equal(t, int64(-4), i64)
	f32, err := b.ReadFloat32()
	require.NoError(t, err)
	require.Equal(t, float32(1.5), f32)
	f64, err := b.ReadFloat64()
	require.NoError(t, err)
	require.Equal(t, -2.25, f64)
}

func TestMediumAccessors(t *testing.T) {
	b := alloc(t, 16)

	require.NoError(t, b.WriteUint24(0xabcdef))
	for i, want := range []uint8{0xab, 0xcd, 0xef} {
		got, err := b.GetUint8(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	u, err := b.ReadUint24()
	require.NoError(t, err)
	require.Equal(t, uint32(0xabcdef), u)

	// the top byte of a too-wide value is dropped
	require.NoError(t, b.SetUint24(4, 0x11fffffe))
	u, err = b.GetUint24(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0xfffffe), u)
	s, err := b.GetInt24(4)
	require.NoError(t, err)
	require.Equal(t, int32(-2), s)

	require.NoError(t, b.SetInt24(8, -3))
	s, err = b.GetInt24(8)
	require.NoError(t, err)
	require.Equal(t, int32(-3), s)
}

func TestIndexedAccessorBounds(t *testing.T) {
	b := alloc(t, 8)

	// indexed access is bounded by capacity, not the cursors
	require.NoError(t, b.SetUint32(4, 7))
	v, err := b.GetUint32(4)
	require.NoError(t, err)
	require.Equal(t, uint32(7), v)

	_, err = b.GetUint32(5)
	require.True(t, aberr.IsCode(err, aberr.ErrIndexOutOfRange))
	_, err = b.GetUint8(-1)
	require.True(t, aberr.IsCode(err, aberr.ErrIndexOutOfRange))
	require.True(t, aberr.IsCode(b.SetUint64(1, 0), aberr.ErrIndexOutOfRange))
}

func TestReadOnly(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteUint32(42))
	b.MakeReadOnly()
	require.True(t, b.ReadOnly())

	require.True(t, aberr.IsCode(b.WriteUint8(1), aberr.ErrReadOnly))
	require.True(t, aberr.IsCode(b.SetUint8(0, 1), aberr.ErrReadOnly))
	require.True(t, aberr.IsCode(b.Fill(0), aberr.ErrReadOnly))
	require.True(t, aberr.IsCode(b.SetWriterOffset(8), aberr.ErrReadOnly))
	require.True(t, aberr.IsCode(b.Compact(), aberr.ErrReadOnly))

	v, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)
}

func TestFill(t *testing.T) {
	b := alloc(t, 4)
	require.NoError(t, b.Fill(0xaa))
	for i := 0; i < 4; i++ {
		v, err := b.GetUint8(i)
		require.NoError(t, err)
		require.Equal(t, uint8(0xaa), v)
	}
}

func TestWrap(t *testing.T) {
	bs := []byte{1, 2, 3, 4}
	b := Wrap(bs)
	defer b.Close()
	require.Equal(t, 4, b.Capacity())
	require.Equal(t, 4, b.ReadableBytes())
	v, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), v)

	// the bytes stay shared with the caller
	require.NoError(t, b.SetUint8(0, 9))
	require.Equal(t, byte(9), bs[0])
}

func TestCompact(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3, 4, 5}))
	require.NoError(t, b.Skip(2))

	require.NoError(t, b.Compact())
	require.Equal(t, 0, b.ReaderOffset())
	require.Equal(t, 3, b.WriterOffset())
	var got [3]byte
	require.NoError(t, b.ReadBytes(got[:]))
	require.Equal(t, []byte{3, 4, 5}, got[:])
}

func TestEnsureWritableByCompaction(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteUint64(0x0102030405060708))
	_, err := b.ReadUint32()
	require.NoError(t, err)

	require.NoError(t, b.EnsureWritable(4))
	// compaction sufficed, no new region
	require.Equal(t, 8, b.Capacity())
	require.Equal(t, 4, b.WritableBytes())
	v, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x05060708), v)
}

func TestEnsureWritableGrows(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteUint64(0xdeadbeefcafef00d))

	require.NoError(t, b.EnsureWritable(1))
	require.GreaterOrEqual(t, b.Capacity(), 16)
	require.GreaterOrEqual(t, b.WritableBytes(), 1)
	v, err := b.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeefcafef00d), v)

	require.True(t, aberr.IsCode(
		b.EnsureWritableGrowth(-1, 0, false), aberr.ErrInvalidInput))
}

func TestCopy(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3, 4}))
	require.NoError(t, b.Skip(1))

	c, err := b.Copy()
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, 3, c.Capacity())
	require.Equal(t, 3, c.ReadableBytes())

	// copies are independent
	require.NoError(t, c.SetUint8(0, 9))
	v, err := b.GetUint8(1)
	require.NoError(t, err)
	require.Equal(t, uint8(2), v)

	empty, err := b.CopyRange(0, 0)
	require.NoError(t, err)
	defer empty.Close()
	require.Equal(t, 0, empty.Capacity())

	_, err = b.CopyRange(4, 8)
	require.True(t, aberr.IsCode(err, aberr.ErrIndexOutOfRange))
}

func TestCopyInto(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3, 4}))

	dst := make([]byte, 4)
	require.NoError(t, b.CopyInto(1, dst, 2, 2))
	require.Equal(t, []byte{0, 0, 2, 3}, dst)

	require.True(t, aberr.IsCode(b.CopyInto(6, dst, 0, 4), aberr.ErrIndexOutOfRange))
	require.True(t, aberr.IsCode(b.CopyInto(0, dst, 3, 2), aberr.ErrInvalidInput))

	other := alloc(t, 8)
	require.NoError(t, b.CopyIntoBuffer(0, other, 4, 4))
	v, err := other.GetUint32(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), v)
}

func TestCopyIntoBufferSelfOverlap(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteUint64(0x0102030405060708))

	require.NoError(t, b.CopyIntoBuffer(0, b, 3, 5))
	v, err := b.GetUint64(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030102030405), v)
}

func TestReadWriteBytes(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3}))
	require.True(t, aberr.IsCode(b.WriteBytes(make([]byte, 6)), aberr.ErrIndexOutOfRange))

	got := make([]byte, 3)
	require.NoError(t, b.ReadBytes(got))
	require.Equal(t, []byte{1, 2, 3}, got)
	require.True(t, aberr.IsCode(b.ReadBytes(got), aberr.ErrIndexOutOfRange))
}

func TestWriteBufferBytes(t *testing.T) {
	src := alloc(t, 8)
	require.NoError(t, src.WriteBytes([]byte{5, 6, 7}))

	dst := alloc(t, 8)
	require.NoError(t, dst.WriteBufferBytes(src))
	require.Equal(t, 0, src.ReadableBytes())
	require.Equal(t, 3, dst.ReadableBytes())
	got := make([]byte, 3)
	require.NoError(t, dst.ReadBytes(got))
	require.Equal(t, []byte{5, 6, 7}, got)
}

func TestForEachSingle(t *testing.T) {
	b := alloc(t, 8)
	require.NoError(t, b.WriteBytes([]byte{1, 2, 3, 4}))
	require.NoError(t, b.Skip(1))

	n, err := b.ForEachReadable(func(index int, c Component) bool {
		require.Equal(t, 0, index)
		require.Equal(t, 1, c.BufferOffset())
		require.Equal(t, []byte{2, 3, 4}, c.Bytes())
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = b.ForEachReadable(func(int, Component) bool { return false })
	require.NoError(t, err)
	require.Equal(t, -1, n)

	n, err = b.ForEachWritable(func(index int, c Component) bool {
		require.Equal(t, 4, c.Len())
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestClosedAccess(t *testing.T) {
	b, err := HeapAllocator().Allocate(context.Background(), 8)
	require.NoError(t, err)
	b.Close()
	require.False(t, b.IsAccessible())
	require.False(t, b.IsOwned())

	_, err = b.ReadUint8()
	require.True(t, aberr.IsCode(err, aberr.ErrBufferClosed))
	require.True(t, aberr.IsCode(b.WriteUint8(0), aberr.ErrBufferClosed))
	_, err = b.Slice()
	require.True(t, aberr.IsCode(err, aberr.ErrBufferClosed))

	// closing twice is fine
	b.Close()
}
