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
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
)

// Manager acquires and releases raw byte regions.  Implementations are
// stateless or internally synchronized; a single Manager serves many
// goroutines.
type Manager interface {
	// Name is the registry key of the implementation.
	Name() string
	// Native reports whether regions live outside the Go heap.
	Native() bool
	// Allocate acquires a zeroed region of exactly size bytes.
	Allocate(size int) (Segment, error)
	// Release returns a region acquired from Allocate.  Must be called
	// at most once per segment; sub-segments from Slice must not be
	// released.
	Release(Segment)
	// Slice narrows a segment without copying.
	Slice(s Segment, off, length int) Segment
	// Clear zeroes the segment.
	Clear(s Segment)
	// Allocated reports the bytes currently held from this manager.
	Allocated() int64
}

func checkSize(size int) error {
	if size < 1 || size > MaxCapacity {
		return aberr.NewInvalidInput("segment size %d out of range [1, %d]", size, MaxCapacity)
	}
	return nil
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Manager{}
)

// Register adds a manager implementation under its name.  Registering a
// duplicate name fails.
func Register(m Manager) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[m.Name()]; ok {
		return aberr.NewInvalidState("memory manager %q already registered", m.Name())
	}
	registry[m.Name()] = m
	return nil
}

// Get looks up a manager by implementation name.
func Get(name string) (Manager, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registry[name]
	return m, ok
}

// Each enumerates registered managers in name order until fn returns
// false.
func Each(fn func(Manager) bool) {
	registryMu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	for _, name := range names {
		m, ok := Get(name)
		if ok && !fn(m) {
			return
		}
	}
}

var processDefault atomic.Value // Manager

// SetDefault installs the process-wide default manager.
func SetDefault(m Manager) {
	processDefault.Store(&m)
}

// Default returns the process-wide default manager.
func Default() Manager {
	if v := processDefault.Load(); v != nil {
		return *(v.(*Manager))
	}
	return heap
}

type ctxKeyType struct{}

var ctxKey ctxKeyType

// WithManager scopes an override manager to the given context.  The
// override travels explicitly with the context rather than through
// process-global thread state.
func WithManager(ctx context.Context, m Manager) context.Context {
	return context.WithValue(ctx, ctxKey, m)
}

// FromContext resolves the active manager: the context override when
// present, the process default otherwise.
func FromContext(ctx context.Context) Manager {
	if ctx != nil {
		if m, ok := ctx.Value(ctxKey).(Manager); ok {
			return m
		}
	}
	return Default()
}
