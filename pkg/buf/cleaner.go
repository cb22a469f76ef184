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
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/arcbuf/arcbuf/pkg/logutil"
)

var leakCount atomic.Int64

// LeakCount reports the buffers reclaimed by the finalizer backstop
// instead of an explicit Close since process start.
func LeakCount() int64 {
	return leakCount.Load()
}

// cleanable returns one hold to the region, exactly once, whether
// through Close or through the finalizer backstop.  The release closure
// must not reference the buffer it guards, or the finalizer never runs.
type cleanable struct {
	done    atomic.Bool
	release func()
	trace   *tracer
}

func newCleanable(release func(), trace *tracer) *cleanable {
	return &cleanable{release: release, trace: trace}
}

// fire runs the release if this is the first settle.
func (c *cleanable) fire() bool {
	if !c.done.CompareAndSwap(false, true) {
		return false
	}
	c.release()
	return true
}

// disarm settles the cleanable without releasing.  Used when the hold
// migrates elsewhere, such as into a send.
func (c *cleanable) disarm() bool {
	return c.done.CompareAndSwap(false, true)
}

// armFinalizer installs the backstop on b.  Close disarms it through
// the shared cleanable; an unreachable, unclosed buffer is reclaimed
// here and counted as a leak.
func armFinalizer(b *memBuffer) {
	c := b.clean
	runtime.SetFinalizer(b, func(*memBuffer) {
		if c.fire() {
			leakCount.Add(1)
			fields := []zap.Field{zap.Int64("total-leaked", leakCount.Load())}
			if c.trace != nil {
				fields = append(fields, zap.String("lifecycle", c.trace.dump()))
			} else {
				fields = append(fields, zap.String("hint", "enable buf.SetTracing for allocation stacks"))
			}
			logutil.Warn("buffer reclaimed by finalizer, not closed", fields...)
		}
	})
}
