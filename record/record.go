// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

type ContentType uint8

const (
	ContentType_ChangeCipherSpec ContentType = 20
	ContentType_Alert            ContentType = 21
	ContentType_Handshake        ContentType = 22
	ContentType_Appdata          ContentType = 23
)

const HeaderSize = 13

var (
	ErrTooSmall   = errors.New("dtls: record too small")
	ErrBadLength  = errors.New("dtls: record length exceeds datagram")
	ErrBadVersion = errors.New("dtls: unsupported record version")
)

type Record struct {
	ContentType ContentType
	Version     uint16
	Epoch       uint16
	Sequence    uint64
	Length      uint16
	Data        []byte
}

func New(contentType ContentType, epoch uint16, sequence uint64, data []byte) *Record {
	return &Record{ContentType: contentType, Version: common.DtlsVersion12, Epoch: epoch, Sequence: sequence, Data: data, Length: uint16(len(data))}
}

// Parse decodes the first record in raw and returns the remainder of the
// datagram, nil when raw held exactly one record.
func Parse(raw []byte) (*Record, []byte, error) {

	rawLen := len(raw)
	if rawLen < HeaderSize {
		return nil, nil, ErrTooSmall
	}

	r := &Record{}
	r.ContentType = ContentType(raw[0])
	r.Version = binary.BigEndian.Uint16(raw[1:])
	i64 := binary.BigEndian.Uint64(raw[3:])
	r.Epoch = uint16(i64 >> 48)
	r.Sequence = i64 & 0x0000ffffffffffff
	r.Length = binary.BigEndian.Uint16(raw[11:])

	if r.Version != common.DtlsVersion12 && r.Version != common.DtlsVersion10 {
		return nil, nil, ErrBadVersion
	}
	end := HeaderSize + int(r.Length)
	if end > rawLen {
		return nil, nil, ErrBadLength
	}
	r.Data = raw[HeaderSize:end]

	var rem []byte
	if rawLen > end {
		rem = raw[end:]
	}
	return r, rem, nil
}

func (r *Record) SetData(data []byte) {
	r.Data = data
	r.Length = uint16(len(data))
}

func (r *Record) Bytes() []byte {
	w := common.NewWriter()
	w.PutUint8(uint8(r.ContentType))
	w.PutUint16(r.Version)
	w.PutUint16(r.Epoch)
	w.PutUint48(r.Sequence)
	w.PutUint16(r.Length)
	w.PutBytes(r.Data)
	return w.Bytes()
}

func (r *Record) IsHandshake() bool {
	return r.ContentType == ContentType_Handshake
}

func (r *Record) IsAlert() bool {
	return r.ContentType == ContentType_Alert
}

func (r *Record) IsAppData() bool {
	return r.ContentType == ContentType_Appdata
}

func (r *Record) Print() string {
	return fmt.Sprintf("contentType[%s] version[%X] epoch[%d] seq[%d] length[%d] data[%X]", TypeToString(r.ContentType), r.Version, r.Epoch, r.Sequence, r.Length, r.Data)
}

func TypeToString(t ContentType) string {
	switch t {
	case ContentType_ChangeCipherSpec:
		return "ChangeCipherSpec(20)"
	case ContentType_Alert:
		return "Alert(21)"
	case ContentType_Handshake:
		return "Handshake(22)"
	case ContentType_Appdata:
		return "AppData(23)"
	}
	return fmt.Sprintf("Unknown(%d)", t)
}
