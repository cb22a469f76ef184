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
	"math"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
)

// Composite accessors assemble and scatter values one byte at a time
// through the component covering each offset, so a value crossing a
// seam never reads or writes outside the components.

func (c *CompositeBuffer) getByteAt(off int) (byte, error) {
	i := c.locate(off)
	return c.comps[i].GetUint8(off - c.offsets[i])
}

func (c *CompositeBuffer) setByteAt(off int, v byte) error {
	i := c.locate(off)
	return c.comps[i].SetUint8(off-c.offsets[i], v)
}

// getBits reads size bytes at index and packs them into the low bytes
// of a word following the composite's byte order.
func (c *CompositeBuffer) getBits(index, size int) (uint64, error) {
	var scratch [8]byte
	for i := 0; i < size; i++ {
		v, err := c.getByteAt(index + i)
		if err != nil {
			return 0, err
		}
		scratch[i] = v
	}
	var v uint64
	if isLittle(c.order) {
		for i := size - 1; i >= 0; i-- {
			v = v<<8 | uint64(scratch[i])
		}
	} else {
		for i := 0; i < size; i++ {
			v = v<<8 | uint64(scratch[i])
		}
	}
	return v, nil
}

func (c *CompositeBuffer) setBits(index, size int, v uint64) error {
	var scratch [8]byte
	if isLittle(c.order) {
		for i := 0; i < size; i++ {
			scratch[i] = byte(v >> (8 * i))
		}
	} else {
		for i := 0; i < size; i++ {
			scratch[i] = byte(v >> (8 * (size - 1 - i)))
		}
	}
	for i := 0; i < size; i++ {
		if err := c.setByteAt(index+i, scratch[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompositeBuffer) prepRead(size int) (int, error) {
	if err := c.checkAccess(); err != nil {
		return 0, err
	}
	if c.roff+size > c.woff {
		return 0, aberr.NewIndexOutOfRange(c.roff, c.woff, c.capacity)
	}
	off := c.roff
	c.roff += size
	return off, nil
}

func (c *CompositeBuffer) prepWrite(size int) (int, error) {
	if err := c.checkAccess(); err != nil {
		return 0, err
	}
	if c.readOnly {
		return 0, aberr.NewReadOnly()
	}
	if c.woff+size > c.capacity {
		return 0, aberr.NewIndexOutOfRange(c.woff, c.woff, c.capacity)
	}
	off := c.woff
	c.woff += size
	return off, nil
}

func (c *CompositeBuffer) prepGet(index, size int) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if index < 0 || index+size > c.capacity {
		return aberr.NewIndexOutOfRange(index, c.woff, c.capacity)
	}
	return nil
}

func (c *CompositeBuffer) prepSet(index, size int) error {
	if err := c.checkAccess(); err != nil {
		return err
	}
	if c.readOnly {
		return aberr.NewReadOnly()
	}
	if index < 0 || index+size > c.capacity {
		return aberr.NewIndexOutOfRange(index, c.woff, c.capacity)
	}
	return nil
}

func (c *CompositeBuffer) readBits(size int) (uint64, error) {
	off, err := c.prepRead(size)
	if err != nil {
		return 0, err
	}
	v, err := c.getBits(off, size)
	if err != nil {
		c.roff = off
		return 0, err
	}
	return v, nil
}

func (c *CompositeBuffer) writeBits(size int, v uint64) error {
	off, err := c.prepWrite(size)
	if err != nil {
		return err
	}
	if err := c.setBits(off, size, v); err != nil {
		c.woff = off
		return err
	}
	return nil
}

func (c *CompositeBuffer) ReadInt8() (int8, error) {
	v, err := c.ReadUint8()
	return int8(v), err
}

func (c *CompositeBuffer) ReadUint8() (uint8, error) {
	v, err := c.readBits(1)
	return uint8(v), err
}

func (c *CompositeBuffer) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

func (c *CompositeBuffer) ReadUint16() (uint16, error) {
	v, err := c.readBits(2)
	return uint16(v), err
}

func (c *CompositeBuffer) ReadInt24() (int32, error) {
	v, err := c.ReadUint24()
	return signExtend24(v), err
}

func (c *CompositeBuffer) ReadUint24() (uint32, error) {
	v, err := c.readBits(3)
	return uint32(v), err
}

func (c *CompositeBuffer) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

func (c *CompositeBuffer) ReadUint32() (uint32, error) {
	v, err := c.readBits(4)
	return uint32(v), err
}

func (c *CompositeBuffer) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}

func (c *CompositeBuffer) ReadUint64() (uint64, error) {
	return c.readBits(8)
}

func (c *CompositeBuffer) ReadFloat32() (float32, error) {
	v, err := c.ReadUint32()
	return math.Float32frombits(v), err
}

func (c *CompositeBuffer) ReadFloat64() (float64, error) {
	v, err := c.ReadUint64()
	return math.Float64frombits(v), err
}

func (c *CompositeBuffer) WriteInt8(v int8) error {
	return c.writeBits(1, uint64(uint8(v)))
}

func (c *CompositeBuffer) WriteUint8(v uint8) error {
	return c.writeBits(1, uint64(v))
}

func (c *CompositeBuffer) WriteInt16(v int16) error {
	return c.writeBits(2, uint64(uint16(v)))
}

func (c *CompositeBuffer) WriteUint16(v uint16) error {
	return c.writeBits(2, uint64(v))
}

func (c *CompositeBuffer) WriteInt24(v int32) error {
	return c.writeBits(3, uint64(uint32(v)&0xffffff))
}

func (c *CompositeBuffer) WriteUint24(v uint32) error {
	return c.writeBits(3, uint64(v&0xffffff))
}

func (c *CompositeBuffer) WriteInt32(v int32) error {
	return c.writeBits(4, uint64(uint32(v)))
}

func (c *CompositeBuffer) WriteUint32(v uint32) error {
	return c.writeBits(4, uint64(v))
}

func (c *CompositeBuffer) WriteInt64(v int64) error {
	return c.writeBits(8, uint64(v))
}

func (c *CompositeBuffer) WriteUint64(v uint64) error {
	return c.writeBits(8, v)
}

func (c *CompositeBuffer) WriteFloat32(v float32) error {
	return c.writeBits(4, uint64(math.Float32bits(v)))
}

func (c *CompositeBuffer) WriteFloat64(v float64) error {
	return c.writeBits(8, math.Float64bits(v))
}

func (c *CompositeBuffer) GetInt8(index int) (int8, error) {
	v, err := c.GetUint8(index)
	return int8(v), err
}

func (c *CompositeBuffer) GetUint8(index int) (uint8, error) {
	if err := c.prepGet(index, 1); err != nil {
		return 0, err
	}
	v, err := c.getBits(index, 1)
	return uint8(v), err
}

func (c *CompositeBuffer) GetInt16(index int) (int16, error) {
	v, err := c.GetUint16(index)
	return int16(v), err
}

func (c *CompositeBuffer) GetUint16(index int) (uint16, error) {
	if err := c.prepGet(index, 2); err != nil {
		return 0, err
	}
	v, err := c.getBits(index, 2)
	return uint16(v), err
}

func (c *CompositeBuffer) GetInt24(index int) (int32, error) {
	v, err := c.GetUint24(index)
	return signExtend24(v), err
}

func (c *CompositeBuffer) GetUint24(index int) (uint32, error) {
	if err := c.prepGet(index, 3); err != nil {
		return 0, err
	}
	v, err := c.getBits(index, 3)
	return uint32(v), err
}

func (c *CompositeBuffer) GetInt32(index int) (int32, error) {
	v, err := c.GetUint32(index)
	return int32(v), err
}

func (c *CompositeBuffer) GetUint32(index int) (uint32, error) {
	if err := c.prepGet(index, 4); err != nil {
		return 0, err
	}
	v, err := c.getBits(index, 4)
	return uint32(v), err
}

func (c *CompositeBuffer) GetInt64(index int) (int64, error) {
	v, err := c.GetUint64(index)
	return int64(v), err
}

func (c *CompositeBuffer) GetUint64(index int) (uint64, error) {
	if err := c.prepGet(index, 8); err != nil {
		return 0, err
	}
	return c.getBits(index, 8)
}

func (c *CompositeBuffer) GetFloat32(index int) (float32, error) {
	v, err := c.GetUint32(index)
	return math.Float32frombits(v), err
}

func (c *CompositeBuffer) GetFloat64(index int) (float64, error) {
	v, err := c.GetUint64(index)
	return math.Float64frombits(v), err
}

func (c *CompositeBuffer) SetInt8(index int, v int8) error {
	return c.SetUint8(index, uint8(v))
}

func (c *CompositeBuffer) SetUint8(index int, v uint8) error {
	if err := c.prepSet(index, 1); err != nil {
		return err
	}
	return c.setBits(index, 1, uint64(v))
}

func (c *CompositeBuffer) SetInt16(index int, v int16) error {
	return c.SetUint16(index, uint16(v))
}

func (c *CompositeBuffer) SetUint16(index int, v uint16) error {
	if err := c.prepSet(index, 2); err != nil {
		return err
	}
	return c.setBits(index, 2, uint64(v))
}

func (c *CompositeBuffer) SetInt24(index int, v int32) error {
	return c.SetUint24(index, uint32(v)&0xffffff)
}

func (c *CompositeBuffer) SetUint24(index int, v uint32) error {
	if err := c.prepSet(index, 3); err != nil {
		return err
	}
	return c.setBits(index, 3, uint64(v&0xffffff))
}

func (c *CompositeBuffer) SetInt32(index int, v int32) error {
	return c.SetUint32(index, uint32(v))
}

func (c *CompositeBuffer) SetUint32(index int, v uint32) error {
	if err := c.prepSet(index, 4); err != nil {
		return err
	}
	return c.setBits(index, 4, uint64(v))
}

func (c *CompositeBuffer) SetInt64(index int, v int64) error {
	return c.SetUint64(index, uint64(v))
}

func (c *CompositeBuffer) SetUint64(index int, v uint64) error {
	if err := c.prepSet(index, 8); err != nil {
		return err
	}
	return c.setBits(index, 8, v)
}

func (c *CompositeBuffer) SetFloat32(index int, v float32) error {
	return c.SetUint32(index, math.Float32bits(v))
}

func (c *CompositeBuffer) SetFloat64(index int, v float64) error {
	return c.SetUint64(index, math.Float64bits(v))
}
