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

package memseg

import (
	"unsafe"
)

// MaxCapacity bounds every segment: capacity must be in [1, MaxCapacity].
const MaxCapacity = 1<<31 - 8

// Segment is an opaque handle to a contiguous byte region.  A segment is
// either heap backed (addr == 0) or native backed (addr is the mapped
// address).  Segments do not track their own lifetime; the Manager that
// produced a segment releases it exactly once.
type Segment struct {
	bs   []byte
	addr uintptr
}

// Wrap adapts an externally supplied byte slice into a heap segment.
// The caller retains responsibility for the slice's lifetime.
func Wrap(bs []byte) Segment {
	return Segment{bs: bs}
}

func (s Segment) Len() int {
	return len(s.bs)
}

// Native reports whether the segment is backed by natively mapped
// memory rather than a Go heap array.
func (s Segment) Native() bool {
	return s.addr != 0
}

// Addr returns the native address of the first byte, or 0 for heap
// segments.
func (s Segment) Addr() uintptr {
	return s.addr
}

// Bytes exposes the backing storage.  Bounds discipline is the caller's
// concern.
func (s Segment) Bytes() []byte {
	return s.bs
}

func (s Segment) IsNil() bool {
	return s.bs == nil
}

// Slice returns a sub-segment over [off, off+length).  The result
// aliases the parent's storage; releasing a sliced segment is always
// done through the parent.
func (s Segment) Slice(off, length int) Segment {
	sub := Segment{bs: s.bs[off : off+length : off+length]}
	if s.addr != 0 {
		sub.addr = s.addr + uintptr(off)
	}
	return sub
}

func nativeSegment(bs []byte) Segment {
	return Segment{
		bs:   bs,
		addr: uintptr(unsafe.Pointer(unsafe.SliceData(bs))),
	}
}
