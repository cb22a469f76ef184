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
	"sync/atomic"
)

// ArcDrop counts the holds on one backing region and runs the release
// function exactly once, when the last hold closes.  A freshly
// allocated region starts with a single hold owned by the buffer that
// wraps it; slices, splits and const copies take further holds.
type ArcDrop struct {
	count   atomic.Int32
	release func()
}

// NewArcDrop returns an arc with one hold.  release may be nil for
// regions nobody needs to free, such as wrapped foreign slices.
func NewArcDrop(release func()) *ArcDrop {
	a := &ArcDrop{release: release}
	a.count.Store(1)
	return a
}

// Acquire takes another hold.  The caller must itself hold the arc;
// resurrecting a fully closed arc is a bug.
func (a *ArcDrop) Acquire() {
	if a.count.Add(1) <= 1 {
		panic("arcbuf: acquire on closed arc")
	}
}

// Close returns one hold.  The release function runs when the count
// reaches zero.
func (a *ArcDrop) Close() {
	n := a.count.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("arcbuf: arc closed more times than acquired")
	}
	if a.release != nil {
		a.release()
	}
}

// Count reports the live holds.
func (a *ArcDrop) Count() int32 {
	return a.count.Load()
}
