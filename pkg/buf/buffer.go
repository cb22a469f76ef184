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

// Package buf provides byte buffers with explicit lifetimes.  A buffer
// keeps two cursors over one backing region, a read offset and a write
// offset, with 0 <= read <= write <= capacity at all times.  Ownership
// is explicit: an owned buffer can be split, sent to another goroutine
// or resized, while borrowed views only read and write.  Every buffer
// must be closed; a finalizer backstop reclaims leaked regions and
// counts them.
package buf

import (
	"encoding/binary"

	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// Buffer is a region of memory with read and write cursors and typed,
// byte-order aware accessors.
//
// Streaming accessors (Read*, Write*) move the matching cursor and
// bound against the readable or writable byte count.  Indexed accessors
// (Get*, Set*) leave the cursors alone and bound against the capacity.
//
// Buffers are not safe for concurrent use.  To move a buffer between
// goroutines, use Send.
type Buffer interface {
	// Capacity reports the backing region size in bytes.
	Capacity() int
	// ReaderOffset reports the read cursor.
	ReaderOffset() int
	// SetReaderOffset moves the read cursor inside [0, WriterOffset].
	SetReaderOffset(off int) error
	// WriterOffset reports the write cursor.
	WriterOffset() int
	// SetWriterOffset moves the write cursor inside [ReaderOffset, Capacity].
	SetWriterOffset(off int) error
	// ReadableBytes is WriterOffset - ReaderOffset.
	ReadableBytes() int
	// WritableBytes is Capacity - WriterOffset.
	WritableBytes() int
	// Skip advances the read cursor by n readable bytes.
	Skip(n int) error
	// ResetOffsets moves both cursors to zero without touching data.
	ResetOffsets()

	// Fill writes v to every byte of the region, ignoring the cursors.
	Fill(v byte) error

	// Order reports the byte order of the multi-byte accessors.
	Order() binary.ByteOrder
	// SetOrder switches the byte order of the multi-byte accessors.
	SetOrder(order binary.ByteOrder)

	// ReadOnly reports whether writes are rejected.
	ReadOnly() bool
	// MakeReadOnly permanently turns off writes on this buffer.
	MakeReadOnly()

	// IsAccessible reports whether the buffer is still open.
	IsAccessible() bool
	// IsOwned reports whether this buffer holds its region exclusively,
	// with no outstanding borrows.  Split, Send and EnsureWritable
	// require ownership.
	IsOwned() bool
	// BorrowCount reports the outstanding views taken from this buffer.
	BorrowCount() int
	// Close releases this buffer's hold on the region.  The region is
	// freed when the last hold closes.  Closing twice is a no-op.
	Close()

	// Slice borrows the readable region as a view sharing the backing
	// memory.  The view carries its own cursors; data moves through
	// both.  While a view is live the origin is not owned.
	Slice() (Buffer, error)
	// SliceRange borrows length bytes starting at off.
	SliceRange(off, length int) (Buffer, error)

	// Split divides the buffer at the write offset.  The returned
	// buffer owns [0, WriterOffset) and this buffer keeps the rest,
	// with cursors shifted down.  Both halves are owned and disjoint.
	Split() (Buffer, error)
	// SplitAt divides the buffer at off.
	SplitAt(off int) (Buffer, error)

	// Send detaches the buffer into a one-shot transfer token.  The
	// buffer becomes inaccessible immediately; the receiving goroutine
	// obtains an equivalent owned buffer from the token.
	Send() (*Send, error)

	// Compact moves the readable bytes to the start of the region and
	// pulls both cursors down by the old read offset.  Requires
	// ownership.
	Compact() error
	// EnsureWritable makes room for at least size writable bytes,
	// compacting or reallocating as needed.  Requires ownership.
	EnsureWritable(size int) error
	// EnsureWritableGrowth is EnsureWritable with an explicit minimum
	// growth step and control over compaction.
	EnsureWritableGrowth(size, minGrowth int, allowCompaction bool) error

	// Copy returns an owned, writable copy of the readable bytes.
	Copy() (Buffer, error)
	// CopyRange returns an owned, writable copy of length bytes at off.
	CopyRange(off, length int) (Buffer, error)
	// CopyInto copies length bytes at srcPos into dst[dstPos:].
	CopyInto(srcPos int, dst []byte, dstPos, length int) error
	// CopyIntoBuffer copies length bytes at srcPos into dst at dstPos
	// using indexed writes, leaving all cursors alone.
	CopyIntoBuffer(srcPos int, dst Buffer, dstPos, length int) error

	// ReadBytes fills dst from the readable bytes and advances the read
	// cursor by len(dst).
	ReadBytes(dst []byte) error
	// WriteBytes appends src and advances the write cursor by len(src).
	WriteBytes(src []byte) error
	// WriteBufferBytes moves all readable bytes of src into this
	// buffer, advancing both buffers' cursors.
	WriteBufferBytes(src Buffer) error

	// OpenCursor iterates the readable bytes in ascending order.
	OpenCursor() (ByteCursor, error)
	// OpenCursorRange iterates length bytes from fromOffset upward.
	OpenCursorRange(fromOffset, length int) (ByteCursor, error)
	// OpenReverseCursor iterates the readable bytes in descending
	// order, starting at the last readable byte.
	OpenReverseCursor() (ByteCursor, error)
	// OpenReverseCursorRange iterates length bytes from fromOffset
	// downward.
	OpenReverseCursorRange(fromOffset, length int) (ByteCursor, error)

	// ForEachReadable passes each readable region to fn until fn
	// returns false.  Returns the number of regions visited, negated
	// when fn stopped the walk.
	ForEachReadable(fn func(index int, c Component) bool) (int, error)
	// ForEachWritable passes each writable region to fn until fn
	// returns false.  Returns the number of regions visited, negated
	// when fn stopped the walk.
	ForEachWritable(fn func(index int, c Component) bool) (int, error)

	ReadInt8() (int8, error)
	ReadUint8() (uint8, error)
	ReadInt16() (int16, error)
	ReadUint16() (uint16, error)
	ReadInt24() (int32, error)
	ReadUint24() (uint32, error)
	ReadInt32() (int32, error)
	ReadUint32() (uint32, error)
	ReadInt64() (int64, error)
	ReadUint64() (uint64, error)
	ReadFloat32() (float32, error)
	ReadFloat64() (float64, error)

	WriteInt8(v int8) error
	WriteUint8(v uint8) error
	WriteInt16(v int16) error
	WriteUint16(v uint16) error
	WriteInt24(v int32) error
	WriteUint24(v uint32) error
	WriteInt32(v int32) error
	WriteUint32(v uint32) error
	WriteInt64(v int64) error
	WriteUint64(v uint64) error
	WriteFloat32(v float32) error
	WriteFloat64(v float64) error

	GetInt8(index int) (int8, error)
	GetUint8(index int) (uint8, error)
	GetInt16(index int) (int16, error)
	GetUint16(index int) (uint16, error)
	GetInt24(index int) (int32, error)
	GetUint24(index int) (uint32, error)
	GetInt32(index int) (int32, error)
	GetUint32(index int) (uint32, error)
	GetInt64(index int) (int64, error)
	GetUint64(index int) (uint64, error)
	GetFloat32(index int) (float32, error)
	GetFloat64(index int) (float64, error)

	SetInt8(index int, v int8) error
	SetUint8(index int, v uint8) error
	SetInt16(index int, v int16) error
	SetUint16(index int, v uint16) error
	SetInt24(index int, v int32) error
	SetUint24(index int, v uint32) error
	SetInt32(index int, v int32) error
	SetUint32(index int, v uint32) error
	SetInt64(index int, v int64) error
	SetUint64(index int, v uint64) error
	SetFloat32(index int, v float32) error
	SetFloat64(index int, v float64) error
}

// Component is one contiguous region handed out by ForEachReadable or
// ForEachWritable.  The slice stays valid only inside the callback.
type Component struct {
	seg    memseg.Segment
	offset int
}

// Bytes exposes the region.  For readable walks the slice holds the
// readable bytes; for writable walks, the writable span.
func (c Component) Bytes() []byte {
	return c.seg.Bytes()
}

// Len reports the region size in bytes.
func (c Component) Len() int {
	return c.seg.Len()
}

// Native reports whether the region lives outside the Go heap.
func (c Component) Native() bool {
	return c.seg.Native()
}

// NativeAddress reports the region's address, zero for heap regions.
func (c Component) NativeAddress() uintptr {
	return c.seg.Addr()
}

// BufferOffset reports where this region starts inside the buffer the
// walk was opened on.
func (c Component) BufferOffset() int {
	return c.offset
}

// ByteCursor iterates bytes of a buffer without moving its cursors.
type ByteCursor interface {
	// ReadByte advances to the next byte, reporting false when the
	// iteration is exhausted.
	ReadByte() bool
	// Byte reports the byte most recently advanced to.
	Byte() byte
	// BytesLeft reports the bytes not yet advanced to.
	BytesLeft() int
	// CurrentOffset reports the buffer offset of the current byte, -1
	// before the first ReadByte.
	CurrentOffset() int
}
