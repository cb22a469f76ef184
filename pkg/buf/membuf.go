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
	"encoding/binary"
	"runtime"
	"sync/atomic"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// memBuffer is the single-region Buffer implementation.  Views, split
// halves and received sends are all memBuffers over (parts of) the same
// arc-counted region.
type memBuffer struct {
	seg   memseg.Segment
	arc   *ArcDrop
	clean *cleanable
	trace *tracer
	ctl   Control

	order binary.ByteOrder
	roff  int
	woff  int

	borrows  atomic.Int32
	shared   bool
	readOnly bool
	closed   bool
	parent   *memBuffer
}

// FromSegment wraps an allocated region into an owned buffer.  release
// runs once, when the last hold on the region closes.  ctl supplies
// fresh regions when the buffer grows; nil falls back to the default
// memory manager.
func FromSegment(seg memseg.Segment, release func(), ctl Control) Buffer {
	arc := NewArcDrop(release)
	b := newMemBuffer(seg, arc, ctl)
	b.trace.record("allocate")
	return b
}

// Wrap presents bs as an owned buffer with the write cursor at the end.
// The bytes are shared with the caller and never freed by the buffer.
func Wrap(bs []byte) Buffer {
	b := FromSegment(memseg.Wrap(bs), func() {}, nil).(*memBuffer)
	b.woff = len(bs)
	return b
}

// defaultOrder is the byte order of freshly created buffers.
func defaultOrder() binary.ByteOrder {
	return binary.BigEndian
}

func newMemBuffer(seg memseg.Segment, arc *ArcDrop, ctl Control) *memBuffer {
	b := &memBuffer{
		seg:   seg,
		arc:   arc,
		trace: newTracer(),
		ctl:   ctl,
		order: defaultOrder(),
	}
	b.clean = newCleanable(arc.Close, b.trace)
	armFinalizer(b)
	return b
}

// newView builds a borrowed or const child over a sub-range of b's
// region.  The caller has already taken the arc hold.
func (b *memBuffer) newView(seg memseg.Segment, shared bool, parent *memBuffer) *memBuffer {
	v := &memBuffer{
		seg:      seg,
		arc:      b.arc,
		trace:    newTracer(),
		ctl:      b.ctl,
		order:    b.order,
		shared:   shared,
		readOnly: b.readOnly,
		parent:   parent,
	}
	arc := b.arc
	if parent != nil {
		v.clean = newCleanable(func() {
			parent.borrows.Add(-1)
			arc.Close()
		}, v.trace)
	} else {
		v.clean = newCleanable(arc.Close, v.trace)
	}
	armFinalizer(v)
	return v
}

func (b *memBuffer) checkAccess() error {
	if b.closed {
		return aberr.NewBufferClosed()
	}
	return nil
}

func (b *memBuffer) checkOwned(op string) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if !b.IsOwned() {
		return aberr.NewNotOwned(op)
	}
	return nil
}

func (b *memBuffer) Capacity() int {
	return b.seg.Len()
}

func (b *memBuffer) ReaderOffset() int {
	return b.roff
}

func (b *memBuffer) SetReaderOffset(off int) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if off < 0 || off > b.woff {
		return aberr.NewIndexOutOfRange(off, b.woff, b.Capacity())
	}
	b.roff = off
	return nil
}

func (b *memBuffer) WriterOffset() int {
	return b.woff
}

func (b *memBuffer) SetWriterOffset(off int) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if b.readOnly {
		return aberr.NewReadOnly()
	}
	if off < b.roff || off > b.Capacity() {
		return aberr.NewIndexOutOfRange(off, b.woff, b.Capacity())
	}
	b.woff = off
	return nil
}

func (b *memBuffer) ReadableBytes() int {
	return b.woff - b.roff
}

func (b *memBuffer) WritableBytes() int {
	return b.Capacity() - b.woff
}

func (b *memBuffer) Skip(n int) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if n < 0 || n > b.ReadableBytes() {
		return aberr.NewIndexOutOfRange(b.roff+n, b.woff, b.Capacity())
	}
	b.roff += n
	return nil
}

func (b *memBuffer) ResetOffsets() {
	b.roff = 0
	b.woff = 0
}

func (b *memBuffer) Fill(v byte) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if b.readOnly {
		return aberr.NewReadOnly()
	}
	bs := b.seg.Bytes()
	for i := range bs {
		bs[i] = v
	}
	return nil
}

func (b *memBuffer) Order() binary.ByteOrder {
	return b.order
}

func (b *memBuffer) SetOrder(order binary.ByteOrder) {
	b.order = order
}

func (b *memBuffer) ReadOnly() bool {
	return b.readOnly
}

func (b *memBuffer) MakeReadOnly() {
	b.readOnly = true
}

func (b *memBuffer) IsAccessible() bool {
	return !b.closed
}

func (b *memBuffer) IsOwned() bool {
	return !b.closed && !b.shared && b.borrows.Load() == 0
}

func (b *memBuffer) BorrowCount() int {
	return int(b.borrows.Load())
}

func (b *memBuffer) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.trace.record("close")
	b.seg = memseg.Segment{}
	runtime.SetFinalizer(b, nil)
	b.clean.fire()
}

func (b *memBuffer) Slice() (Buffer, error) {
	return b.SliceRange(b.roff, b.ReadableBytes())
}

func (b *memBuffer) SliceRange(off, length int) (Buffer, error) {
	if err := b.checkAccess(); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+length > b.Capacity() {
		return nil, aberr.NewIndexOutOfRange(off+length, b.woff, b.Capacity())
	}
	b.arc.Acquire()
	b.borrows.Add(1)
	v := b.newView(b.seg.Slice(off, length), true, b)
	v.woff = length
	if b.readOnly {
		v.readOnly = true
	}
	b.trace.record("slice")
	v.trace.record("slice-view")
	return v, nil
}

func (b *memBuffer) Split() (Buffer, error) {
	return b.SplitAt(b.woff)
}

func (b *memBuffer) SplitAt(off int) (Buffer, error) {
	if err := b.checkOwned("split"); err != nil {
		return nil, err
	}
	if off < 0 || off > b.Capacity() {
		return nil, aberr.NewIndexOutOfRange(off, b.woff, b.Capacity())
	}
	b.arc.Acquire()
	front := b.newView(b.seg.Slice(0, off), false, nil)
	front.readOnly = b.readOnly
	if b.roff < off {
		front.roff = b.roff
	} else {
		front.roff = off
	}
	if b.woff < off {
		front.woff = b.woff
	} else {
		front.woff = off
	}

	b.seg = b.seg.Slice(off, b.Capacity()-off)
	if b.roff > off {
		b.roff -= off
	} else {
		b.roff = 0
	}
	if b.woff > off {
		b.woff -= off
	} else {
		b.woff = 0
	}
	b.trace.record("split")
	front.trace.record("split-front")
	return front, nil
}

func (b *memBuffer) Compact() error {
	if err := b.checkOwned("compact"); err != nil {
		return err
	}
	if b.readOnly {
		return aberr.NewReadOnly()
	}
	if b.roff == 0 {
		return nil
	}
	bs := b.seg.Bytes()
	copy(bs, bs[b.roff:b.woff])
	b.woff -= b.roff
	b.roff = 0
	return nil
}

func (b *memBuffer) EnsureWritable(size int) error {
	// growing by at least the current capacity keeps repeated appends
	// amortized
	return b.EnsureWritableGrowth(size, b.Capacity(), true)
}

func (b *memBuffer) EnsureWritableGrowth(size, minGrowth int, allowCompaction bool) error {
	if size < 0 || minGrowth < 0 {
		return aberr.NewInvalidInput("cannot ensure writable for a negative size: %d (min growth %d)", size, minGrowth)
	}
	if err := b.checkOwned("ensureWritable"); err != nil {
		return err
	}
	if b.readOnly {
		return aberr.NewReadOnly()
	}
	if b.WritableBytes() >= size {
		return nil
	}
	if allowCompaction && b.roff >= size-b.WritableBytes() {
		if err := b.Compact(); err != nil {
			return err
		}
		if b.WritableBytes() >= size {
			return nil
		}
	}

	growth := size - b.WritableBytes()
	if growth < minGrowth {
		growth = minGrowth
	}
	newCap := b.Capacity() + growth
	if newCap > memseg.MaxCapacity {
		return aberr.NewAllocationFailure(newCap, "beyond maximum buffer capacity")
	}

	seg, release, err := b.control().AllocateSegment(newCap)
	if err != nil {
		return err
	}
	copy(seg.Bytes(), b.seg.Bytes())

	// swap the region under the same buffer identity
	oldClean := b.clean
	arc := NewArcDrop(release)
	b.seg = seg
	b.arc = arc
	b.clean = newCleanable(arc.Close, b.trace)
	runtime.SetFinalizer(b, nil)
	armFinalizer(b)
	oldClean.fire()
	b.trace.record("grow")
	return nil
}

func (b *memBuffer) control() Control {
	if b.ctl != nil {
		return b.ctl
	}
	return managerControl{mgr: memseg.Default()}
}

func (b *memBuffer) Copy() (Buffer, error) {
	return b.CopyRange(b.roff, b.ReadableBytes())
}

func (b *memBuffer) CopyRange(off, length int) (Buffer, error) {
	if err := b.checkAccess(); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+length > b.Capacity() {
		return nil, aberr.NewIndexOutOfRange(off+length, b.woff, b.Capacity())
	}
	size := length
	if size == 0 {
		size = 1
	}
	seg, release, err := b.control().AllocateSegment(size)
	if err != nil {
		return nil, err
	}
	copy(seg.Bytes(), b.seg.Bytes()[off:off+length])
	c := newMemBuffer(seg, NewArcDrop(release), b.ctl)
	c.order = b.order
	c.woff = length
	if length == 0 {
		c.seg = seg.Slice(0, 0)
	}
	c.trace.record("copy")
	return c, nil
}

func (b *memBuffer) CopyInto(srcPos int, dst []byte, dstPos, length int) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if srcPos < 0 || length < 0 || srcPos+length > b.Capacity() {
		return aberr.NewIndexOutOfRange(srcPos+length, b.woff, b.Capacity())
	}
	if dstPos < 0 || dstPos+length > len(dst) {
		return aberr.NewInvalidInput("destination range [%d, %d) outside of destination length %d", dstPos, dstPos+length, len(dst))
	}
	copy(dst[dstPos:dstPos+length], b.seg.Bytes()[srcPos:srcPos+length])
	return nil
}

func (b *memBuffer) CopyIntoBuffer(srcPos int, dst Buffer, dstPos, length int) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if srcPos < 0 || length < 0 || srcPos+length > b.Capacity() {
		return aberr.NewIndexOutOfRange(srcPos+length, b.woff, b.Capacity())
	}
	src := b.seg.Bytes()
	// reverse order keeps overlapping same-buffer copies intact
	for i := length - 1; i >= 0; i-- {
		if err := dst.SetUint8(dstPos+i, src[srcPos+i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBuffer) ReadBytes(dst []byte) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if len(dst) > b.ReadableBytes() {
		return aberr.NewIndexOutOfRange(b.roff+len(dst), b.woff, b.Capacity())
	}
	copy(dst, b.seg.Bytes()[b.roff:])
	b.roff += len(dst)
	return nil
}

func (b *memBuffer) WriteBytes(src []byte) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if b.readOnly {
		return aberr.NewReadOnly()
	}
	if len(src) > b.WritableBytes() {
		return aberr.NewIndexOutOfRange(b.woff+len(src), b.woff, b.Capacity())
	}
	copy(b.seg.Bytes()[b.woff:], src)
	b.woff += len(src)
	return nil
}

func (b *memBuffer) WriteBufferBytes(src Buffer) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if b.readOnly {
		return aberr.NewReadOnly()
	}
	n := src.ReadableBytes()
	if n > b.WritableBytes() {
		return aberr.NewIndexOutOfRange(b.woff+n, b.woff, b.Capacity())
	}
	if sb, ok := src.(*memBuffer); ok {
		if err := sb.checkAccess(); err != nil {
			return err
		}
		copy(b.seg.Bytes()[b.woff:], sb.seg.Bytes()[sb.roff:sb.woff])
		b.woff += n
		sb.roff += n
		return nil
	}
	tmp := make([]byte, n)
	if err := src.ReadBytes(tmp); err != nil {
		return err
	}
	return b.WriteBytes(tmp)
}

func (b *memBuffer) ForEachReadable(fn func(index int, c Component) bool) (int, error) {
	if err := b.checkAccess(); err != nil {
		return 0, err
	}
	if b.ReadableBytes() == 0 {
		return 0, nil
	}
	c := Component{seg: b.seg.Slice(b.roff, b.ReadableBytes()), offset: b.roff}
	if !fn(0, c) {
		return -1, nil
	}
	return 1, nil
}

func (b *memBuffer) ForEachWritable(fn func(index int, c Component) bool) (int, error) {
	if err := b.checkAccess(); err != nil {
		return 0, err
	}
	if b.readOnly {
		return 0, aberr.NewReadOnly()
	}
	if b.WritableBytes() == 0 {
		return 0, nil
	}
	c := Component{seg: b.seg.Slice(b.woff, b.WritableBytes()), offset: b.woff}
	if !fn(0, c) {
		return -1, nil
	}
	return 1, nil
}
