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
	"sync/atomic"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// Allocator hands out owned buffers.
type Allocator interface {
	// Allocate returns an owned buffer with size bytes of capacity and
	// both cursors at zero.
	Allocate(ctx context.Context, size int) (Buffer, error)
	// Pooling reports whether regions are recycled rather than freed.
	Pooling() bool
	// Close releases allocator-held resources.  Buffers already handed
	// out stay valid until closed themselves.
	Close() error
}

// Control supplies fresh regions to buffers that outgrow their current
// one.  The returned closure frees the region and runs at most once.
type Control interface {
	AllocateSegment(size int) (memseg.Segment, func(), error)
}

type managerControl struct {
	mgr memseg.Manager
}

func (c managerControl) AllocateSegment(size int) (memseg.Segment, func(), error) {
	seg, err := c.mgr.Allocate(size)
	if err != nil {
		return memseg.Segment{}, nil, err
	}
	mgr := c.mgr
	return seg, func() { mgr.Release(seg) }, nil
}

// unpooledAllocator allocates straight from a memory manager and frees
// on the final close.  A nil manager resolves per call through the
// context, falling back to the process default.
type unpooledAllocator struct {
	mgr    memseg.Manager
	closed atomic.Bool
}

// HeapAllocator returns an unpooled allocator over Go heap regions.
func HeapAllocator() Allocator {
	return &unpooledAllocator{mgr: memseg.Heap()}
}

// NativeAllocator returns an unpooled allocator over natively mapped
// regions.
func NativeAllocator() Allocator {
	return &unpooledAllocator{mgr: memseg.NativeManager()}
}

// ManagerAllocator returns an unpooled allocator over mgr.  With a nil
// mgr every allocation resolves its manager from the context.
func ManagerAllocator(mgr memseg.Manager) Allocator {
	return &unpooledAllocator{mgr: mgr}
}

func (a *unpooledAllocator) manager(ctx context.Context) memseg.Manager {
	if a.mgr != nil {
		return a.mgr
	}
	return memseg.FromContext(ctx)
}

func (a *unpooledAllocator) Allocate(ctx context.Context, size int) (Buffer, error) {
	if a.closed.Load() {
		return nil, aberr.NewInvalidState("allocator is closed")
	}
	if size < 0 {
		return nil, aberr.NewInvalidInput("cannot allocate %d bytes", size)
	}
	mgr := a.manager(ctx)
	ctl := managerControl{mgr: mgr}
	if size == 0 {
		seg, release, err := ctl.AllocateSegment(1)
		if err != nil {
			return nil, err
		}
		b := FromSegment(seg, release, ctl).(*memBuffer)
		b.seg = seg.Slice(0, 0)
		return b, nil
	}
	seg, release, err := ctl.AllocateSegment(size)
	if err != nil {
		return nil, err
	}
	return FromSegment(seg, release, ctl), nil
}

func (a *unpooledAllocator) Pooling() bool {
	return false
}

func (a *unpooledAllocator) Close() error {
	a.closed.Store(true)
	return nil
}

// CopyOf allocates a buffer from a and fills it with data, leaving the
// write cursor at len(data).
func CopyOf(ctx context.Context, a Allocator, data []byte) (Buffer, error) {
	b, err := a.Allocate(ctx, len(data))
	if err != nil {
		return nil, err
	}
	if err := b.WriteBytes(data); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// ConstSupplier shares one immutable region and stamps out independent
// read-only buffers over it.  Each buffer from Get is owned and can be
// sent across goroutines; the region is freed when the supplier and
// every buffer are closed.
type ConstSupplier struct {
	seg    memseg.Segment
	arc    *ArcDrop
	length int
	closed atomic.Bool
}

// NewConstSupplier copies data into a region from mgr, nil meaning the
// process default manager.
func NewConstSupplier(mgr memseg.Manager, data []byte) (*ConstSupplier, error) {
	if mgr == nil {
		mgr = memseg.Default()
	}
	size := len(data)
	if size == 0 {
		size = 1
	}
	seg, err := mgr.Allocate(size)
	if err != nil {
		return nil, err
	}
	copy(seg.Bytes(), data)
	release := func() { mgr.Release(seg) }
	return &ConstSupplier{
		seg:    seg.Slice(0, len(data)),
		arc:    NewArcDrop(release),
		length: len(data),
	}, nil
}

// Get returns a fresh owned, read-only buffer over the shared bytes,
// with the whole region readable.
func (s *ConstSupplier) Get() (Buffer, error) {
	if s.closed.Load() {
		return nil, aberr.NewBufferClosed()
	}
	s.arc.Acquire()
	arc := s.arc
	b := &memBuffer{
		seg:      s.seg,
		arc:      arc,
		trace:    newTracer(),
		order:    defaultOrder(),
		woff:     s.length,
		readOnly: true,
	}
	b.clean = newCleanable(arc.Close, b.trace)
	armFinalizer(b)
	b.trace.record("const-get")
	return b, nil
}

// Close drops the supplier's hold on the shared region.
func (s *ConstSupplier) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.arc.Close()
	}
}
