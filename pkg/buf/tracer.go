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
	"hash/maphash"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Lifecycle tracing records where each buffer was allocated, borrowed,
// sent and closed.  It is off by default; the per-event cost is one
// stack capture plus a hash.

var traceEnabled atomic.Bool

// SetTracing toggles lifecycle tracing for buffers created afterwards.
func SetTracing(on bool) {
	traceEnabled.Store(on)
}

// TracingEnabled reports whether new buffers record lifecycle events.
func TracingEnabled() bool {
	return traceEnabled.Load()
}

type stackID uint64

func captureStack(skip int) stackID {
	pcs := pcsPool.Get().(*[]uintptr)

	n := runtime.Callers(2+skip, *pcs)
	*pcs = (*pcs)[:n]

	hasher := hasherPool.Get().(*maphash.Hash)
	defer func() {
		hasher.Reset()
		hasherPool.Put(hasher)
	}()
	for _, pc := range *pcs {
		hasher.Write(
			unsafe.Slice((*byte)(unsafe.Pointer(&pc)), unsafe.Sizeof(pc)),
		)
	}
	id := stackID(hasher.Sum64())

	if _, ok := stackIDToPCs.Load(id); ok {
		// recycle
		*pcs = (*pcs)[:cap(*pcs)]
		pcsPool.Put(pcs)
		return id
	}

	_, loaded := stackIDToPCs.LoadOrStore(id, pcs)
	if loaded {
		// recycle
		*pcs = (*pcs)[:cap(*pcs)]
		pcsPool.Put(pcs)
	}

	return id
}

var stackIDToPCs sync.Map // stackID -> *[]uintptr

var pcsPool = sync.Pool{
	New: func() any {
		slice := make([]uintptr, 64)
		return &slice
	},
}

var hashSeed = maphash.MakeSeed()

// all hashers in the pool share one seed
var hasherPool = sync.Pool{
	New: func() any {
		h := new(maphash.Hash)
		h.SetSeed(hashSeed)
		return h
	},
}

func (s stackID) String() string {
	v, ok := stackIDToPCs.Load(s)
	if !ok {
		return "<unknown stack>"
	}
	return pcsToString(*(v.(*[]uintptr)))
}

func pcsToString(pcs []uintptr) string {
	buf := new(strings.Builder)

	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()

		buf.WriteString(frame.Function)
		buf.WriteString("\n")
		buf.WriteString("\t")
		buf.WriteString(frame.File)
		buf.WriteString(":")
		buf.WriteString(strconv.Itoa(frame.Line))
		buf.WriteString("\n")

		if !more {
			break
		}
	}

	return buf.String()
}

type traceEvent struct {
	op    string
	stack stackID
}

type tracer struct {
	mu     sync.Mutex
	events []traceEvent
}

func newTracer() *tracer {
	if !traceEnabled.Load() {
		return nil
	}
	return &tracer{}
}

// record appends an event with the caller's stack.  A nil tracer
// records nothing.
func (t *tracer) record(op string) {
	if t == nil {
		return
	}
	ev := traceEvent{op: op, stack: captureStack(1)}
	t.mu.Lock()
	t.events = append(t.events, ev)
	t.mu.Unlock()
}

// dump renders the recorded events, newest last.
func (t *tracer) dump() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sb := new(strings.Builder)
	for i, ev := range t.events {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(": ")
		sb.WriteString(ev.op)
		sb.WriteString("\n")
		sb.WriteString(ev.stack.String())
	}
	return sb.String()
}
