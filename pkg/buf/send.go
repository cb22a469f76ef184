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

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// Send is a one-shot token that carries an owned buffer between
// goroutines.  The origin buffer is invalidated before the token
// exists, so at no point are two usable handles to the same region
// alive.  Receive may be called exactly once, from any goroutine.
type Send struct {
	consumed  atomic.Bool
	construct func() Buffer
	discard   func()
}

// Receive materializes the transferred buffer.  A second call fails
// with a consumed-send error.
func (s *Send) Receive() (Buffer, error) {
	if !s.consumed.CompareAndSwap(false, true) {
		return nil, aberr.NewSendConsumed()
	}
	return s.construct(), nil
}

// Close discards an unreceived send and frees its hold on the region.
// Closing after Receive is a no-op.
func (s *Send) Close() {
	if !s.consumed.CompareAndSwap(false, true) {
		return
	}
	s.discard()
}

func (b *memBuffer) Send() (*Send, error) {
	if err := b.checkOwned("send"); err != nil {
		return nil, err
	}
	seg := b.seg
	arc := b.arc
	ctl := b.ctl
	order := b.order
	roff, woff := b.roff, b.woff
	readOnly := b.readOnly
	trace := b.trace
	trace.record("send")

	// invalidate the origin first; the hold migrates into the token
	b.closed = true
	b.seg = memseg.Segment{}
	runtime.SetFinalizer(b, nil)
	b.clean.disarm()

	return &Send{
		construct: func() Buffer {
			r := &memBuffer{
				seg:      seg,
				arc:      arc,
				trace:    trace,
				ctl:      ctl,
				order:    order,
				roff:     roff,
				woff:     woff,
				readOnly: readOnly,
			}
			r.clean = newCleanable(arc.Close, r.trace)
			armFinalizer(r)
			r.trace.record("receive")
			return r
		},
		discard: arc.Close,
	}, nil
}
