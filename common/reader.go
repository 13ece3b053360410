// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package common

import (
	"encoding/binary"
	"errors"
)

var ErrUnderflow = errors.New("dtls: data underflow")

// Reader decodes big-endian fields from a byte slice. Reads past the end
// return zero values and latch ErrUnderflow, so decoders check Err() once.
type Reader struct {
	data []byte
	ofs  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(l int) []byte {
	if r.err != nil {
		return nil
	}
	if l < 0 || r.ofs+l > len(r.data) {
		r.err = ErrUnderflow
		r.ofs = len(r.data)
		return nil
	}
	b := r.data[r.ofs : r.ofs+l]
	r.ofs += l
	return b
}

func (r *Reader) GetUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) GetUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) GetUint24() uint32 {
	b := r.take(3)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func (r *Reader) GetUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) GetUint48() uint64 {
	b := r.take(6)
	if b == nil {
		return 0
	}
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 | uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

// GetBytes returns a copy, the caller may keep it after the source buffer is reused.
func (r *Reader) GetBytes(l int) []byte {
	b := r.take(l)
	if b == nil {
		return nil
	}
	out := make([]byte, l)
	copy(out, b)
	return out
}

func (r *Reader) Skip(l int) {
	r.take(l)
}

func (r *Reader) Remaining() int {
	return len(r.data) - r.ofs
}

func (r *Reader) Err() error {
	return r.err
}
