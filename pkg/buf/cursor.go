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
	"encoding/binary"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
)

// Cursors fetch eight bytes at a time when at least eight remain and
// then serve individual bytes out of the loaded word.  The batch word
// is big-endian for the forward cursor and consumed low-byte first for
// the reverse cursor, so both directions see the bytes in buffer order.

type forwardCursor struct {
	bs    []byte
	next  int
	end   int
	cur   int
	value byte
	batch uint64
	have  int
}

func newForwardCursor(bs []byte, from, length int) *forwardCursor {
	return &forwardCursor{bs: bs, next: from, end: from + length, cur: -1}
}

func (c *forwardCursor) ReadByte() bool {
	if c.next >= c.end {
		return false
	}
	if c.have == 0 && c.end-c.next >= 8 {
		c.batch = binary.BigEndian.Uint64(c.bs[c.next:])
		c.have = 8
	}
	if c.have > 0 {
		c.value = byte(c.batch >> 56)
		c.batch <<= 8
		c.have--
	} else {
		c.value = c.bs[c.next]
	}
	c.cur = c.next
	c.next++
	return true
}

func (c *forwardCursor) Byte() byte {
	return c.value
}

func (c *forwardCursor) BytesLeft() int {
	return c.end - c.next
}

func (c *forwardCursor) CurrentOffset() int {
	return c.cur
}

type reverseCursor struct {
	bs    []byte
	next  int
	floor int
	cur   int
	value byte
	batch uint64
	have  int
}

func newReverseCursor(bs []byte, from, length int) *reverseCursor {
	return &reverseCursor{bs: bs, next: from, floor: from - length + 1, cur: -1}
}

func (c *reverseCursor) ReadByte() bool {
	if c.next < c.floor {
		return false
	}
	if c.have == 0 && c.next-c.floor+1 >= 8 {
		c.batch = binary.BigEndian.Uint64(c.bs[c.next-7:])
		c.have = 8
	}
	if c.have > 0 {
		c.value = byte(c.batch)
		c.batch >>= 8
		c.have--
	} else {
		c.value = c.bs[c.next]
	}
	c.cur = c.next
	c.next--
	return true
}

func (c *reverseCursor) Byte() byte {
	return c.value
}

func (c *reverseCursor) BytesLeft() int {
	if c.next < c.floor {
		return 0
	}
	return c.next - c.floor + 1
}

func (c *reverseCursor) CurrentOffset() int {
	return c.cur
}

func (b *memBuffer) OpenCursor() (ByteCursor, error) {
	return b.OpenCursorRange(b.roff, b.ReadableBytes())
}

func (b *memBuffer) OpenCursorRange(fromOffset, length int) (ByteCursor, error) {
	if err := b.checkAccess(); err != nil {
		return nil, err
	}
	if fromOffset < 0 || length < 0 || fromOffset+length > b.Capacity() {
		return nil, aberr.NewIndexOutOfRange(fromOffset, b.woff, b.Capacity())
	}
	return newForwardCursor(b.seg.Bytes(), fromOffset, length), nil
}

func (b *memBuffer) OpenReverseCursor() (ByteCursor, error) {
	return b.OpenReverseCursorRange(b.woff-1, b.ReadableBytes())
}

func (b *memBuffer) OpenReverseCursorRange(fromOffset, length int) (ByteCursor, error) {
	if err := b.checkAccess(); err != nil {
		return nil, err
	}
	if length < 0 || (length > 0 && (fromOffset >= b.Capacity() || fromOffset-length+1 < 0)) {
		return nil, aberr.NewIndexOutOfRange(fromOffset, b.woff, b.Capacity())
	}
	if length == 0 {
		// degenerate cursor that yields nothing
		return newReverseCursor(b.seg.Bytes(), -1, 0), nil
	}
	return newReverseCursor(b.seg.Bytes(), fromOffset, length), nil
}
