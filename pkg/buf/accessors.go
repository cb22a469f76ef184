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
	"math"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
)

// prepRead bounds a streaming read of size bytes against the readable
// region and advances the read cursor.
func (b *memBuffer) prepRead(size int) (int, error) {
	if err := b.checkAccess(); err != nil {
		return 0, err
	}
	if b.roff+size > b.woff {
		return 0, aberr.NewIndexOutOfRange(b.roff, b.woff, b.Capacity())
	}
	off := b.roff
	b.roff += size
	return off, nil
}

// prepWrite bounds a streaming write of size bytes against the
// writable region and advances the write cursor.
func (b *memBuffer) prepWrite(size int) (int, error) {
	if err := b.checkAccess(); err != nil {
		return 0, err
	}
	if b.readOnly {
		return 0, aberr.NewReadOnly()
	}
	if b.woff+size > b.Capacity() {
		return 0, aberr.NewIndexOutOfRange(b.woff, b.woff, b.Capacity())
	}
	off := b.woff
	b.woff += size
	return off, nil
}

// prepGet bounds an indexed read of size bytes against the capacity.
func (b *memBuffer) prepGet(index, size int) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if index < 0 || index+size > b.Capacity() {
		return aberr.NewIndexOutOfRange(index, b.woff, b.Capacity())
	}
	return nil
}

// prepSet bounds an indexed write of size bytes against the capacity.
func (b *memBuffer) prepSet(index, size int) error {
	if err := b.checkAccess(); err != nil {
		return err
	}
	if b.readOnly {
		return aberr.NewReadOnly()
	}
	if index < 0 || index+size > b.Capacity() {
		return aberr.NewIndexOutOfRange(index, b.woff, b.Capacity())
	}
	return nil
}

func isLittle(order binary.ByteOrder) bool {
	return order == binary.ByteOrder(binary.LittleEndian)
}

func uint24(order binary.ByteOrder, bs []byte) uint32 {
	if isLittle(order) {
		return uint32(bs[0]) | uint32(bs[1])<<8 | uint32(bs[2])<<16
	}
	return uint32(bs[0])<<16 | uint32(bs[1])<<8 | uint32(bs[2])
}

func putUint24(order binary.ByteOrder, bs []byte, v uint32) {
	if isLittle(order) {
		bs[0] = byte(v)
		bs[1] = byte(v >> 8)
		bs[2] = byte(v >> 16)
		return
	}
	bs[0] = byte(v >> 16)
	bs[1] = byte(v >> 8)
	bs[2] = byte(v)
}

// signExtend24 widens a 24-bit two's complement value to 32 bits.
func signExtend24(v uint32) int32 {
	return int32(v<<8) >> 8
}

func (b *memBuffer) ReadInt8() (int8, error) {
	v, err := b.ReadUint8()
	return int8(v), err
}

func (b *memBuffer) ReadUint8() (uint8, error) {
	off, err := b.prepRead(1)
	if err != nil {
		return 0, err
	}
	return b.seg.Bytes()[off], nil
}

func (b *memBuffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *memBuffer) ReadUint16() (uint16, error) {
	off, err := b.prepRead(2)
	if err != nil {
		return 0, err
	}
	return b.order.Uint16(b.seg.Bytes()[off:]), nil
}

func (b *memBuffer) ReadInt24() (int32, error) {
	v, err := b.ReadUint24()
	return signExtend24(v), err
}

func (b *memBuffer) ReadUint24() (uint32, error) {
	off, err := b.prepRead(3)
	if err != nil {
		return 0, err
	}
	return uint24(b.order, b.seg.Bytes()[off:]), nil
}

func (b *memBuffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *memBuffer) ReadUint32() (uint32, error) {
	off, err := b.prepRead(4)
	if err != nil {
		return 0, err
	}
	return b.order.Uint32(b.seg.Bytes()[off:]), nil
}

func (b *memBuffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

func (b *memBuffer) ReadUint64() (uint64, error) {
	off, err := b.prepRead(8)
	if err != nil {
		return 0, err
	}
	return b.order.Uint64(b.seg.Bytes()[off:]), nil
}

func (b *memBuffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

func (b *memBuffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

func (b *memBuffer) WriteInt8(v int8) error {
	return b.WriteUint8(uint8(v))
}

func (b *memBuffer) WriteUint8(v uint8) error {
	off, err := b.prepWrite(1)
	if err != nil {
		return err
	}
	b.seg.Bytes()[off] = v
	return nil
}

func (b *memBuffer) WriteInt16(v int16) error {
	return b.WriteUint16(uint16(v))
}

func (b *memBuffer) WriteUint16(v uint16) error {
	off, err := b.prepWrite(2)
	if err != nil {
		return err
	}
	b.order.PutUint16(b.seg.Bytes()[off:], v)
	return nil
}

func (b *memBuffer) WriteInt24(v int32) error {
	return b.WriteUint24(uint32(v) & 0xffffff)
}

func (b *memBuffer) WriteUint24(v uint32) error {
	off, err := b.prepWrite(3)
	if err != nil {
		return err
	}
	putUint24(b.order, b.seg.Bytes()[off:], v)
	return nil
}

func (b *memBuffer) WriteInt32(v int32) error {
	return b.WriteUint32(uint32(v))
}

func (b *memBuffer) WriteUint32(v uint32) error {
	off, err := b.prepWrite(4)
	if err != nil {
		return err
	}
	b.order.PutUint32(b.seg.Bytes()[off:], v)
	return nil
}

func (b *memBuffer) WriteInt64(v int64) error {
	return b.WriteUint64(uint64(v))
}

func (b *memBuffer) WriteUint64(v uint64) error {
	off, err := b.prepWrite(8)
	if err != nil {
		return err
	}
	b.order.PutUint64(b.seg.Bytes()[off:], v)
	return nil
}

func (b *memBuffer) WriteFloat32(v float32) error {
	return b.WriteUint32(math.Float32bits(v))
}

func (b *memBuffer) WriteFloat64(v float64) error {
	return b.WriteUint64(math.Float64bits(v))
}

func (b *memBuffer) GetInt8(index int) (int8, error) {
	v, err := b.GetUint8(index)
	return int8(v), err
}

func (b *memBuffer) GetUint8(index int) (uint8, error) {
	if err := b.prepGet(index, 1); err != nil {
		return 0, err
	}
	return b.seg.Bytes()[index], nil
}

func (b *memBuffer) GetInt16(index int) (int16, error) {
	v, err := b.GetUint16(index)
	return int16(v), err
}

func (b *memBuffer) GetUint16(index int) (uint16, error) {
	if err := b.prepGet(index, 2); err != nil {
		return 0, err
	}
	return b.order.Uint16(b.seg.Bytes()[index:]), nil
}

func (b *memBuffer) GetInt24(index int) (int32, error) {
	v, err := b.GetUint24(index)
	return signExtend24(v), err
}

func (b *memBuffer) GetUint24(index int) (uint32, error) {
	if err := b.prepGet(index, 3); err != nil {
		return 0, err
	}
	return uint24(b.order, b.seg.Bytes()[index:]), nil
}

func (b *memBuffer) GetInt32(index int) (int32, error) {
	v, err := b.GetUint32(index)
	return int32(v), err
}

func (b *memBuffer) GetUint32(index int) (uint32, error) {
	if err := b.prepGet(index, 4); err != nil {
		return 0, err
	}
	return b.order.Uint32(b.seg.Bytes()[index:]), nil
}

func (b *memBuffer) GetInt64(index int) (int64, error) {
	v, err := b.GetUint64(index)
	return int64(v), err
}

func (b *memBuffer) GetUint64(index int) (uint64, error) {
	if err := b.prepGet(index, 8); err != nil {
		return 0, err
	}
	return b.order.Uint64(b.seg.Bytes()[index:]), nil
}

func (b *memBuffer) GetFloat32(index int) (float32, error) {
	v, err := b.GetUint32(index)
	return math.Float32frombits(v), err
}

func (b *memBuffer) GetFloat64(index int) (float64, error) {
	v, err := b.GetUint64(index)
	return math.Float64frombits(v), err
}

func (b *memBuffer) SetInt8(index int, v int8) error {
	return b.SetUint8(index, uint8(v))
}

func (b *memBuffer) SetUint8(index int, v uint8) error {
	if err := b.prepSet(index, 1); err != nil {
		return err
	}
	b.seg.Bytes()[index] = v
	return nil
}

func (b *memBuffer) SetInt16(index int, v int16) error {
	return b.SetUint16(index, uint16(v))
}

func (b *memBuffer) SetUint16(index int, v uint16) error {
	if err := b.prepSet(index, 2); err != nil {
		return err
	}
	b.order.PutUint16(b.seg.Bytes()[index:], v)
	return nil
}

func (b *memBuffer) SetInt24(index int, v int32) error {
	return b.SetUint24(index, uint32(v)&0xffffff)
}

func (b *memBuffer) SetUint24(index int, v uint32) error {
	if err := b.prepSet(index, 3); err != nil {
		return err
	}
	putUint24(b.order, b.seg.Bytes()[index:], v)
	return nil
}

func (b *memBuffer) SetInt32(index int, v int32) error {
	return b.SetUint32(index, uint32(v))
}

func (b *memBuffer) SetUint32(index int, v uint32) error {
	if err := b.prepSet(index, 4); err != nil {
		return err
	}
	b.order.PutUint32(b.seg.Bytes()[index:], v)
	return nil
}

func (b *memBuffer) SetInt64(index int, v int64) error {
	return b.SetUint64(index, uint64(v))
}

func (b *memBuffer) SetUint64(index int, v uint64) error {
	if err := b.prepSet(index, 8); err != nil {
		return err
	}
	b.order.PutUint64(b.seg.Bytes()[index:], v)
	return nil
}

func (b *memBuffer) SetFloat32(index int, v float32) error {
	return b.SetUint32(index, math.Float32bits(v))
}

func (b *memBuffer) SetFloat64(index int, v float64) error {
	return b.SetUint64(index, math.Float64bits(v))
}
