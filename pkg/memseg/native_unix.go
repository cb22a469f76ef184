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

//go:build unix

package memseg

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
)

// NativeName is the registry key of the natively mapped manager.
const NativeName = "native"

type nativeManager struct {
	allocated atomic.Int64
}

var native = &nativeManager{}

// NativeManager returns the mmap-backed manager.
func NativeManager() Manager {
	return native
}

func (n *nativeManager) Name() string {
	return NativeName
}

func (n *nativeManager) Native() bool {
	return true
}

func (n *nativeManager) Allocate(size int) (Segment, error) {
	if err := checkSize(size); err != nil {
		return Segment{}, err
	}
	bs, err := unix.Mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return Segment{}, aberr.NewAllocationFailure(size, err.Error())
	}
	n.allocated.Add(int64(size))
	return nativeSegment(bs), nil
}

func (n *nativeManager) Release(s Segment) {
	if s.IsNil() {
		return
	}
	size := s.Len()
	if err := unix.Munmap(s.bs); err != nil {
		// The segment stays mapped; nothing more we can do here.
		return
	}
	n.allocated.Add(-int64(size))
}

func (n *nativeManager) Slice(s Segment, off, length int) Segment {
	return s.Slice(off, length)
}

func (n *nativeManager) Clear(s Segment) {
	clear(s.bs)
}

func (n *nativeManager) Allocated() int64 {
	return n.allocated.Load()
}

func init() {
	if err := Register(native); err != nil {
		panic(err)
	}
}
