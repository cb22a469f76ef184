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
	"sort"
	"sync/atomic"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// CompositeBuffer presents several regions as one logically contiguous
// buffer without copying.  The composite owns its components; composing
// transfers the parts in, so the originals are invalidated.
//
// Multi-byte accessors that straddle a component boundary assemble the
// value one byte at a time through the components, so they work at any
// offset at the cost of a torn access never touching memory outside
// the components.
type CompositeBuffer struct {
	alloc Allocator
	comps []*memBuffer
	// offsets[i] is the composite offset where comps[i] starts
	offsets  []int
	capacity int

	order binary.ByteOrder
	roff  int
	woff  int

	borrows  atomic.Int32
	shared   bool
	readOnly bool
	closed   bool
	parent   *CompositeBuffer
	trace    *tracer
}

var _ Buffer = (*CompositeBuffer)(nil)

// Compose builds a composite from owned buffers, taking them over.
// The parts are invalidated; the composite is their sole owner.  Empty
// parts are closed and dropped.  Composing zero parts yields an empty
// composite that can be extended later.
func Compose(alloc Allocator, parts ...Buffer) (*CompositeBuffer, error) {
	comps := make([]*memBuffer, 0, len(parts))
	for _, part := range parts {
		got, err := adoptPart(part)
		if err != nil {
			return nil, err
		}
		comps = append(comps, got...)
	}
	return newComposite(alloc, comps)
}

// ComposeSends builds a composite from transfer tokens, receiving each
// exactly once.
func ComposeSends(alloc Allocator, sends ...*Send) (*CompositeBuffer, error) {
	comps := make([]*memBuffer, 0, len(sends))
	for _, s := range sends {
		b, err := s.Receive()
		if err != nil {
			return nil, err
		}
		got, err := adoptPart(b)
		if err != nil {
			return nil, err
		}
		comps = append(comps, got...)
	}
	return newComposite(alloc, comps)
}

// adoptPart transfers ownership of part to the caller, flattening
// nested composites into their leaves.
func adoptPart(part Buffer) ([]*memBuffer, error) {
	switch p := part.(type) {
	case *memBuffer:
		s, err := p.Send()
		if err != nil {
			return nil, err
		}
		recv, err := s.Receive()
		if err != nil {
			return nil, err
		}
		leaf := recv.(*memBuffer)
		if leaf.Capacity() == 0 {
			leaf.Close()
			return nil, nil
		}
		return []*memBuffer{leaf}, nil
	case *CompositeBuffer:
		if err := p.checkOwned("compose"); err != nil {
			return nil, err
		}
		comps := p.comps
		p.dissolve()
		return comps, nil
	default:
		return nil, aberr.NewInvalidComposition("unsupported buffer implementation %T", part)
	}
}

// dissolve closes the composite shell while leaving the components
// alive for a new owner.
func (c *CompositeBuffer) dissolve() {
	c.closed = true
	c.comps = nil
	c.offsets = nil
}

func newComposite(alloc Allocator, comps []*memBuffer) (*CompositeBuffer, error) {
	c := &CompositeBuffer{
		alloc: alloc,
		comps: comps,
		order: defaultOrder(),
		trace: newTracer(),
	}
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	c.roff = 0
	c.woff = 0
	for _, comp := range comps {
		c.roff += comp.roff
		c.woff += comp.woff
	}
	c.trace.record("compose")
	return c, nil
}

// rebuild recomputes offsets, capacity and the read-only flag, and
// checks that the components form a consistent whole: a component with
// data or consumed bytes requires every component before it to be full
// or fully read, respectively, and read-only is all or nothing.
func (c *CompositeBuffer) rebuild() error {
	offsets := make([]int, len(c.comps))
	capacity := 0
	readOnly := false
	for i, comp := range c.comps {
		if comp.closed {
			return aberr.NewInvalidComposition("component %d is closed", i)
		}
		if i == 0 {
			readOnly = comp.readOnly
		} else if comp.readOnly != readOnly {
			return aberr.NewInvalidComposition("mixing read-only and writable components")
		}
		if comp.woff > 0 {
			for j := 0; j < i; j++ {
				if c.comps[j].woff < c.comps[j].Capacity() {
					return aberr.NewInvalidComposition(
						"component %d has data but component %d has writable space", i, j)
				}
			}
		}
		if comp.roff > 0 {
			for j := 0; j < i; j++ {
				if c.comps[j].roff < c.comps[j].Capacity() {
					return aberr.NewInvalidComposition(
						"component %d has consumed bytes but component %d has unread capacity", i, j)
				}
			}
		}
		offsets[i] = capacity
		capacity += comp.Capacity()
		if capacity > memseg.MaxCapacity {
			return aberr.NewInvalidComposition("combined capacity %d beyond maximum", capacity)
		}
	}
	c.offsets = offsets
	c.capacity = capacity
	c.readOnly = readOnly
	return nil
}

// locate finds the component covering composite offset off.
func (c *CompositeBuffer) locate(off int) int {
	i := sort.Search(len(c.offsets), func(i int) bool {
		return c.offsets[i] > off
	})
	return i - 1
}

func (c *CompositeBuffer) checkAccess() error {
	if c.closed {
		return aberr.NewBufferClosed()
	}
	return nil
}

func (c *CompositeBuffer) checkOwned(op string) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if !c.IsOwned() {
		return aberr.NewNotOwned(op)
	}
	return nil
}

func (c *CompositeBuffer) Capacity() int {
	return c.capacity
}

func (c *CompositeBuffer) ReaderOffset() int {
	return c.roff
}

func (c *CompositeBuffer) SetReaderOffset(off int) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if off < 0 || off > c.woff {
		return aberr.NewIndexOutOfRange(off, c.woff, c.capacity)
	}
	c.roff = off
	return nil
}

func (c *CompositeBuffer) WriterOffset() int {
	return c.woff
}

func (c *CompositeBuffer) SetWriterOffset(off int) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if c.readOnly {
		return aberr.NewReadOnly()
	}
	if off < c.roff || off > c.capacity {
		return aberr.NewIndexOutOfRange(off, c.woff, c.capacity)
	}
	c.woff = off
	return nil
}

func (c *CompositeBuffer) ReadableBytes() int {
	return c.woff - c.roff
}

func (c *CompositeBuffer) WritableBytes() int {
	return c.capacity - c.woff
}

func (c *CompositeBuffer) Skip(n int) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if n < 0 || n > c.ReadableBytes() {
		return aberr.NewIndexOutOfRange(c.roff+n, c.woff, c.capacity)
	}
	c.roff += n
	return nil
}

func (c *CompositeBuffer) ResetOffsets() {
	c.roff = 0
	c.woff = 0
}

func (c *CompositeBuffer) Fill(v byte) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if c.readOnly {
		return aberr.NewReadOnly()
	}
	for _, comp := range c.comps {
		if err := comp.Fill(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompositeBuffer) Order() binary.ByteOrder {
	return c.order
}

func (c *CompositeBuffer) SetOrder(order binary.ByteOrder) {
	c.order = order
}

func (c *CompositeBuffer) ReadOnly() bool {
	return c.readOnly
}

func (c *CompositeBuffer) MakeReadOnly() {
	c.readOnly = true
	for _, comp := range c.comps {
		comp.MakeReadOnly()
	}
}

func (c *CompositeBuffer) IsAccessible() bool {
	return !c.closed
}

func (c *CompositeBuffer) IsOwned() bool {
	if c.closed || c.shared || c.borrows.Load() != 0 {
		return false
	}
	for _, comp := range c.comps {
		if !comp.IsOwned() {
			return false
		}
	}
	return true
}

func (c *CompositeBuffer) BorrowCount() int {
	return int(c.borrows.Load())
}

func (c *CompositeBuffer) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.trace.record("close")
	for _, comp := range c.comps {
		comp.Close()
	}
	c.comps = nil
	c.offsets = nil
	if c.parent != nil {
		c.parent.borrows.Add(-1)
		c.parent = nil
	}
}

// ComponentCount reports the number of backing regions.
func (c *CompositeBuffer) ComponentCount() int {
	return len(c.comps)
}

func (c *CompositeBuffer) Slice() (Buffer, error) {
	return c.SliceRange(c.roff, c.ReadableBytes())
}

func (c *CompositeBuffer) SliceRange(off, length int) (Buffer, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+length > c.capacity {
		return nil, aberr.NewIndexOutOfRange(off+length, c.woff, c.capacity)
	}
	views := make([]*memBuffer, 0, len(c.comps))
	for i, comp := range c.comps {
		start := c.offsets[i]
		end := start + comp.Capacity()
		if end <= off || start >= off+length {
			continue
		}
		lo := 0
		if off > start {
			lo = off - start
		}
		hi := comp.Capacity()
		if off+length < end {
			hi = off + length - start
		}
		v, err := comp.SliceRange(lo, hi-lo)
		if err != nil {
			for _, done := range views {
				done.Close()
			}
			return nil, err
		}
		views = append(views, v.(*memBuffer))
	}
	child := &CompositeBuffer{
		alloc:  c.alloc,
		comps:  views,
		order:  c.order,
		shared: true,
		parent: c,
		trace:  newTracer(),
	}
	if err := child.rebuild(); err != nil {
		for _, v := range views {
			v.Close()
		}
		return nil, err
	}
	child.readOnly = c.readOnly
	child.woff = child.capacity
	c.borrows.Add(1)
	c.trace.record("slice")
	child.trace.record("slice-view")
	return child, nil
}

func (c *CompositeBuffer) Split() (Buffer, error) {
	return c.SplitAt(c.woff)
}

func (c *CompositeBuffer) SplitAt(off int) (Buffer, error) {
	if err := c.checkOwned("split"); err != nil {
		return nil, err
	}
	if off < 0 || off > c.capacity {
		return nil, aberr.NewIndexOutOfRange(off, c.woff, c.capacity)
	}
	return c.splitCommon(off)
}

// SplitComponentsFloor splits at the closest component boundary at or
// below off, so no component is cut.
func (c *CompositeBuffer) SplitComponentsFloor(off int) (Buffer, error) {
	if err := c.checkOwned("split"); err != nil {
		return nil, err
	}
	if off < 0 || off > c.capacity {
		return nil, aberr.NewIndexOutOfRange(off, c.woff, c.capacity)
	}
	return c.splitCommon(c.boundaryFloor(off))
}

// SplitComponentsCeil splits at the closest component boundary at or
// above off, so no component is cut.
func (c *CompositeBuffer) SplitComponentsCeil(off int) (Buffer, error) {
	if err := c.checkOwned("split"); err != nil {
		return nil, err
	}
	if off < 0 || off > c.capacity {
		return nil, aberr.NewIndexOutOfRange(off, c.woff, c.capacity)
	}
	floor := c.boundaryFloor(off)
	if floor == off {
		return c.splitCommon(off)
	}
	i := c.locate(off)
	return c.splitCommon(c.offsets[i] + c.comps[i].Capacity())
}

func (c *CompositeBuffer) boundaryFloor(off int) int {
	if off == c.capacity {
		return off
	}
	i := c.locate(off)
	if i < 0 {
		return 0
	}
	return c.offsets[i]
}

func (c *CompositeBuffer) splitCommon(off int) (Buffer, error) {
	var front []*memBuffer
	var rest []*memBuffer
	for i, comp := range c.comps {
		start := c.offsets[i]
		end := start + comp.Capacity()
		switch {
		case end <= off:
			front = append(front, comp)
		case start >= off:
			rest = append(rest, comp)
		default:
			head, err := comp.SplitAt(off - start)
			if err != nil {
				return nil, err
			}
			front = append(front, head.(*memBuffer))
			rest = append(rest, comp)
		}
	}

	fb := &CompositeBuffer{
		alloc: c.alloc,
		comps: front,
		order: c.order,
		trace: newTracer(),
	}
	if err := fb.rebuild(); err != nil {
		return nil, err
	}
	if c.roff < off {
		fb.roff = c.roff
	} else {
		fb.roff = off
	}
	if c.woff < off {
		fb.woff = c.woff
	} else {
		fb.woff = off
	}

	c.comps = rest
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	if c.roff > off {
		c.roff -= off
	} else {
		c.roff = 0
	}
	if c.woff > off {
		c.woff -= off
	} else {
		c.woff = 0
	}
	c.trace.record("split")
	fb.trace.record("split-front")
	return fb, nil
}

// ExtendWith appends a transferred buffer to the end of the composite.
// The extension must not break contiguity: it can only carry data if
// the composite is fully written, and consumed bytes only if the
// composite is fully read.
func (c *CompositeBuffer) ExtendWith(s *Send) error {
	if err := c.checkOwned("extendWith"); err != nil {
		return err
	}
	b, err := s.Receive()
	if err != nil {
		return err
	}
	got, err := adoptPart(b)
	if err != nil {
		return err
	}
	return c.extend(got)
}

func (c *CompositeBuffer) extend(got []*memBuffer) error {
	if len(got) == 0 {
		return nil
	}
	closeAll := func() {
		for _, g := range got {
			g.Close()
		}
	}
	extRoff, extWoff := 0, 0
	for _, g := range got {
		extRoff += g.roff
		extWoff += g.woff
	}
	if extWoff > 0 && c.woff < c.capacity {
		closeAll()
		return aberr.NewInvalidComposition("extension has data but composite has writable space")
	}
	if extRoff > 0 && c.roff < c.capacity {
		closeAll()
		return aberr.NewInvalidComposition("extension has consumed bytes but composite has unread capacity")
	}
	if len(c.comps) > 0 && got[0].readOnly != c.readOnly {
		closeAll()
		return aberr.NewInvalidComposition("mixing read-only and writable components")
	}
	c.comps = append(c.comps, got...)
	if err := c.rebuild(); err != nil {
		c.comps = c.comps[:len(c.comps)-len(got)]
		closeAll()
		if err2 := c.rebuild(); err2 != nil {
			return err2
		}
		return err
	}
	c.roff += extRoff
	c.woff += extWoff
	c.trace.record("extend")
	return nil
}

func (c *CompositeBuffer) Send() (*Send, error) {
	if err := c.checkOwned("send"); err != nil {
		return nil, err
	}
	comps := c.comps
	alloc := c.alloc
	order := c.order
	roff, woff := c.roff, c.woff
	readOnly := c.readOnly
	trace := c.trace
	trace.record("send")
	c.dissolve()

	return &Send{
		construct: func() Buffer {
			r := &CompositeBuffer{
				alloc:    alloc,
				comps:    comps,
				order:    order,
				roff:     roff,
				woff:     woff,
				readOnly: readOnly,
				trace:    trace,
			}
			// components were validated when composed
			if err := r.rebuild(); err != nil {
				panic(err)
			}
			r.trace.record("receive")
			return r
		},
		discard: func() {
			for _, comp := range comps {
				comp.Close()
			}
		},
	}, nil
}

// Compact moves the readable bytes to offset zero, one byte at a time
// across the component seams.
func (c *CompositeBuffer) Compact() error {
	if err := c.checkOwned("compact"); err != nil {
		return err
	}
	if c.readOnly {
		return aberr.NewReadOnly()
	}
	if c.roff == 0 {
		return nil
	}
	n := c.ReadableBytes()
	for i := 0; i < n; i++ {
		v, err := c.getByteAt(c.roff + i)
		if err != nil {
			return err
		}
		if err := c.setByteAt(i, v); err != nil {
			return err
		}
	}
	c.roff = 0
	c.woff = n
	return nil
}

func (c *CompositeBuffer) EnsureWritable(size int) error {
	return c.EnsureWritableGrowth(size, c.capacity, true)
}

func (c *CompositeBuffer) EnsureWritableGrowth(size, minGrowth int, allowCompaction bool) error {
	if size < 0 || minGrowth < 0 {
		return aberr.NewInvalidInput("cannot ensure writable for a negative size: %d (min growth %d)", size, minGrowth)
	}
	if err := c.checkOwned("ensureWritable"); err != nil {
		return err
	}
	if c.readOnly {
		return aberr.NewReadOnly()
	}
	if c.WritableBytes() >= size {
		return nil
	}
	if allowCompaction && c.roff >= size-c.WritableBytes() {
		if err := c.Compact(); err != nil {
			return err
		}
		if c.WritableBytes() >= size {
			return nil
		}
	}
	growth := size - c.WritableBytes()
	if growth < minGrowth {
		growth = minGrowth
	}
	if c.alloc == nil {
		return aberr.NewInvalidState("composite has no allocator to grow from")
	}
	ext, err := c.alloc.Allocate(context.Background(), growth)
	if err != nil {
		return err
	}
	got, err := adoptPart(ext)
	if err != nil {
		ext.Close()
		return err
	}
	if err := c.extend(got); err != nil {
		return err
	}
	c.trace.record("grow")
	return nil
}

// Decompose dismantles the composite and returns its components with
// the composite's cursors projected onto each.  The shell is closed;
// the caller owns the returned buffers.
func (c *CompositeBuffer) Decompose() ([]Buffer, error) {
	if err := c.checkOwned("decompose"); err != nil {
		return nil, err
	}
	out := make([]Buffer, len(c.comps))
	for i, comp := range c.comps {
		start := c.offsets[i]
		comp.roff = clampRange(c.roff-start, comp.Capacity())
		comp.woff = clampRange(c.woff-start, comp.Capacity())
		out[i] = comp
	}
	c.trace.record("decompose")
	c.dissolve()
	return out, nil
}

func clampRange(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *CompositeBuffer) Copy() (Buffer, error) {
	return c.CopyRange(c.roff, c.ReadableBytes())
}

func (c *CompositeBuffer) CopyRange(off, length int) (Buffer, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+length > c.capacity {
		return nil, aberr.NewIndexOutOfRange(off+length, c.woff, c.capacity)
	}
	if c.alloc == nil {
		return nil, aberr.NewInvalidState("composite has no allocator to copy from")
	}
	dst, err := c.alloc.Allocate(context.Background(), length)
	if err != nil {
		return nil, err
	}
	tmp := make([]byte, length)
	if err := c.CopyInto(off, tmp, 0, length); err != nil {
		dst.Close()
		return nil, err
	}
	if err := dst.WriteBytes(tmp); err != nil {
		dst.Close()
		return nil, err
	}
	dst.SetOrder(c.order)
	return dst, nil
}

func (c *CompositeBuffer) CopyInto(srcPos int, dst []byte, dstPos, length int) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if srcPos < 0 || length < 0 || srcPos+length > c.capacity {
		return aberr.NewIndexOutOfRange(srcPos+length, c.woff, c.capacity)
	}
	if dstPos < 0 || dstPos+length > len(dst) {
		return aberr.NewInvalidInput("destination range [%d, %d) outside of destination length %d", dstPos, dstPos+length, len(dst))
	}
	for length > 0 {
		i := c.locate(srcPos)
		comp := c.comps[i]
		local := srcPos - c.offsets[i]
		n := comp.Capacity() - local
		if n > length {
			n = length
		}
		if err := comp.CopyInto(local, dst, dstPos, n); err != nil {
			return err
		}
		srcPos += n
		dstPos += n
		length -= n
	}
	return nil
}

func (c *CompositeBuffer) CopyIntoBuffer(srcPos int, dst Buffer, dstPos, length int) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if srcPos < 0 || length < 0 || srcPos+length > c.capacity {
		return aberr.NewIndexOutOfRange(srcPos+length, c.woff, c.capacity)
	}
	// reverse order keeps overlapping same-buffer copies intact
	for i := length - 1; i >= 0; i-- {
		v, err := c.getByteAt(srcPos + i)
		if err != nil {
			return err
		}
		if err := dst.SetUint8(dstPos+i, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompositeBuffer) ReadBytes(dst []byte) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if len(dst) > c.ReadableBytes() {
		return aberr.NewIndexOutOfRange(c.roff+len(dst), c.woff, c.capacity)
	}
	if err := c.CopyInto(c.roff, dst, 0, len(dst)); err != nil {
		return err
	}
	c.roff += len(dst)
	return nil
}

func (c *CompositeBuffer) WriteBytes(src []byte) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if c.readOnly {
		return aberr.NewReadOnly()
	}
	if len(src) > c.WritableBytes() {
		return aberr.NewIndexOutOfRange(c.woff+len(src), c.woff, c.capacity)
	}
	pos := c.woff
	rem := src
	for len(rem) > 0 {
		i := c.locate(pos)
		comp := c.comps[i]
		local := pos - c.offsets[i]
		n := comp.Capacity() - local
		if n > len(rem) {
			n = len(rem)
		}
		copy(comp.seg.Bytes()[local:local+n], rem[:n])
		pos += n
		rem = rem[n:]
	}
	c.woff += len(src)
	return nil
}

func (c *CompositeBuffer) WriteBufferBytes(src Buffer) error {
	n := src.ReadableBytes()
	tmp := make([]byte, n)
	if err := src.ReadBytes(tmp); err != nil {
		return err
	}
	return c.WriteBytes(tmp)
}

func (c *CompositeBuffer) ForEachReadable(fn func(index int, comp Component) bool) (int, error) {
	if err := c.checkAccess(); err != nil {
		return 0, err
	}
	visited := 0
	pos := c.roff
	for pos < c.woff {
		i := c.locate(pos)
		comp := c.comps[i]
		local := pos - c.offsets[i]
		n := comp.Capacity() - local
		if pos+n > c.woff {
			n = c.woff - pos
		}
		if n > 0 {
			cm := Component{seg: comp.seg.Slice(local, n), offset: pos}
			if !fn(visited, cm) {
				return -(visited + 1), nil
			}
			visited++
		}
		pos += comp.Capacity() - local
	}
	return visited, nil
}

func (c *CompositeBuffer) ForEachWritable(fn func(index int, comp Component) bool) (int, error) {
	if err := c.checkAccess(); err != nil {
		return 0, err
	}
	if c.readOnly {
		return 0, aberr.NewReadOnly()
	}
	visited := 0
	pos := c.woff
	for pos < c.capacity {
		i := c.locate(pos)
		comp := c.comps[i]
		local := pos - c.offsets[i]
		n := comp.Capacity() - local
		if n > 0 {
			cm := Component{seg: comp.seg.Slice(local, n), offset: pos}
			if !fn(visited, cm) {
				return -(visited + 1), nil
			}
			visited++
		}
		pos += n
	}
	return visited, nil
}

func (c *CompositeBuffer) OpenCursor() (ByteCursor, error) {
	return c.OpenCursorRange(c.roff, c.ReadableBytes())
}

func (c *CompositeBuffer) OpenCursorRange(fromOffset, length int) (ByteCursor, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}
	if fromOffset < 0 || length < 0 || fromOffset+length > c.capacity {
		return nil, aberr.NewIndexOutOfRange(fromOffset, c.woff, c.capacity)
	}
	return &compositeCursor{c: c, next: fromOffset, end: fromOffset + length, cur: -1}, nil
}

func (c *CompositeBuffer) OpenReverseCursor() (ByteCursor, error) {
	return c.OpenReverseCursorRange(c.woff-1, c.ReadableBytes())
}

func (c *CompositeBuffer) OpenReverseCursorRange(fromOffset, length int) (ByteCursor, error) {
	if err := c.checkAccess(); err != nil {
		return nil, err
	}
	if length < 0 || (length > 0 && (fromOffset >= c.capacity || fromOffset-length+1 < 0)) {
		return nil, aberr.NewIndexOutOfRange(fromOffset, c.woff, c.capacity)
	}
	if length == 0 {
		return &compositeReverseCursor{c: c, next: -1, floor: 0, cur: -1}, nil
	}
	return &compositeReverseCursor{c: c, next: fromOffset, floor: fromOffset - length + 1, cur: -1}, nil
}

// compositeCursor walks components in order, delegating each span to a
// component-local batched cursor.
type compositeCursor struct {
	c     *CompositeBuffer
	inner ByteCursor
	next  int
	end   int
	cur   int
}

func (cc *compositeCursor) ReadByte() bool {
	if cc.inner == nil || !cc.inner.ReadByte() {
		if cc.next >= cc.end {
			return false
		}
		i := cc.c.locate(cc.next)
		comp := cc.c.comps[i]
		local := cc.next - cc.c.offsets[i]
		n := comp.Capacity() - local
		if cc.next+n > cc.end {
			n = cc.end - cc.next
		}
		cc.inner = newForwardCursor(comp.seg.Bytes(), local, n)
		if !cc.inner.ReadByte() {
			return false
		}
	}
	cc.cur = cc.next
	cc.next++
	return true
}

func (cc *compositeCursor) Byte() byte {
	return cc.inner.Byte()
}

func (cc *compositeCursor) BytesLeft() int {
	return cc.end - cc.next
}

func (cc *compositeCursor) CurrentOffset() int {
	return cc.cur
}

type compositeReverseCursor struct {
	c     *CompositeBuffer
	inner ByteCursor
	next  int
	floor int
	cur   int
}

func (cc *compositeReverseCursor) ReadByte() bool {
	if cc.inner == nil || !cc.inner.ReadByte() {
		if cc.next < cc.floor {
			return false
		}
		i := cc.c.locate(cc.next)
		comp := cc.c.comps[i]
		local := cc.next - cc.c.offsets[i]
		n := local + 1
		if cc.next-n+1 < cc.floor {
			n = cc.next - cc.floor + 1
		}
		cc.inner = newReverseCursor(comp.seg.Bytes(), local, n)
		if !cc.inner.ReadByte() {
			return false
		}
	}
	cc.cur = cc.next
	cc.next--
	return true
}

func (cc *compositeReverseCursor) Byte() byte {
	return cc.inner.Byte()
}

func (cc *compositeReverseCursor) BytesLeft() int {
	if cc.next < cc.floor {
		return 0
	}
	return cc.next - cc.floor + 1
}

func (cc *compositeReverseCursor) CurrentOffset() int {
	return cc.cur
}
