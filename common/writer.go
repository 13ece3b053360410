// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package common

import (
	"encoding/binary"
)

// Writer appends big endian wire fields to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

// PadTo zero fills the buffer up to l bytes.
func (w *Writer) PadTo(l int) {
	for len(w.buf) < l {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutUint8(value uint8) {
	w.buf = append(w.buf, value)
}

func (w *Writer) PutUint16(value uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, value)
}

func (w *Writer) PutUint24(value uint32) {
	w.buf = append(w.buf, byte(value>>16), byte(value>>8), byte(value))
}

func (w *Writer) PutUint32(value uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, value)
}

func (w *Writer) PutUint48(value uint64) {
	w.buf = append(w.buf, byte(value>>40), byte(value>>32), byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
}

func (w *Writer) PutString(value string) {
	w.buf = append(w.buf, value...)
}

func (w *Writer) PutBytes(value []byte) {
	w.buf = append(w.buf, value...)
}
