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
	"sync/atomic"
)

// HeapName is the registry key of the heap-backed manager.
const HeapName = "heap"

type heapManager struct {
	allocated atomic.Int64
}

var heap = &heapManager{}

// Heap returns the heap-backed manager.
func Heap() Manager {
	return heap
}

func (h *heapManager) Name() string {
	return HeapName
}

func (h *heapManager) Native() bool {
	return false
}

func (h *heapManager) Allocate(size int) (Segment, error) {
	if err := checkSize(size); err != nil {
		return Segment{}, err
	}
	h.allocated.Add(int64(size))
	return Segment{bs: make([]byte, size)}, nil
}

func (h *heapManager) Release(s Segment) {
	if s.IsNil() {
		return
	}
	h.allocated.Add(-int64(s.Len()))
}

func (h *heapManager) Slice(s Segment, off, length int) Segment {
	return s.Slice(off, length)
}

func (h *heapManager) Clear(s Segment) {
	clear(s.bs)
}

func (h *heapManager) Allocated() int64 {
	return h.allocated.Load()
}

func init() {
	if err := Register(heap); err != nil {
		panic(err)
	}
}
