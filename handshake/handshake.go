// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"errors"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

type HandshakeType uint8

const (
	Type_HelloRequest       HandshakeType = 0
	Type_ClientHello        HandshakeType = 1
	Type_ServerHello        HandshakeType = 2
	Type_HelloVerifyRequest HandshakeType = 3
	Type_Certificate        HandshakeType = 11
	Type_ServerKeyExchange  HandshakeType = 12
	Type_CertificateRequest HandshakeType = 13
	Type_ServerHelloDone    HandshakeType = 14
	Type_CertificateVerify  HandshakeType = 15
	Type_ClientKeyExchange  HandshakeType = 16
	Type_Finished           HandshakeType = 20
)

type CompressionMethod uint8

const (
	CompressionMethod_Null CompressionMethod = 0
)

// KeyExchange selects the layout of the key exchange messages, which
// cannot be told apart on the wire.
type KeyExchange uint8

const (
	KeyExchange_Psk   KeyExchange = 0
	KeyExchange_Ecdhe KeyExchange = 1
)

var (
	ErrMalformed = errors.New("dtls: malformed handshake message")
	ErrFragment  = errors.New("dtls: handshake fragment out of bounds")
)

type Payload interface {
	Parse(rdr *common.Reader) error
	Bytes() []byte
	Print() string
}

type Handshake struct {
	Header             Header
	Payload            Payload
	ClientHello        *clientHello
	ServerHello        *serverHello
	HelloVerifyRequest *helloVerifyRequest
	Certificate        *certificate
	ServerKeyExchange  *serverKeyExchange
	CertificateRequest *certificateRequest
	ServerHelloDone    *serverHelloDone
	CertificateVerify  *certificateVerify
	ClientKeyExchange  *clientKeyExchange
	Finished           *finished
	Unknown            *unknown
}

func (h *Handshake) Print() string {
	return fmt.Sprintf("%s ||| %s", h.Header.Print(), h.Payload.Print())
}

// Bytes encodes the message unfragmented, the header carries the full length.
func (h *Handshake) Bytes() []byte {
	payload := h.Payload.Bytes()
	h.Header.SetLength(len(payload))
	w := common.NewWriter()
	w.PutBytes(h.Header.Bytes())
	w.PutBytes(payload)
	return w.Bytes()
}

// Fragments encodes the message split into fragments whose bodies are at
// most maxLen bytes. A message that fits is returned as a single fragment.
func (h *Handshake) Fragments(maxLen int) [][]byte {
	payload := h.Payload.Bytes()
	h.Header.SetLength(len(payload))
	if maxLen <= 0 || len(payload) <= maxLen {
		return [][]byte{h.Bytes()}
	}
	var frags [][]byte
	for ofs := 0; ofs < len(payload); ofs += maxLen {
		end := ofs + maxLen
		if end > len(payload) {
			end = len(payload)
		}
		hdr := h.Header
		hdr.FragmentOfs = uint32(ofs)
		hdr.FragmentLen = uint32(end - ofs)
		w := common.NewWriter()
		w.PutBytes(hdr.Bytes())
		w.PutBytes(payload[ofs:end])
		frags = append(frags, w.Bytes())
	}
	return frags
}

func New(handshakeType HandshakeType) *Handshake {
	return newWithKeyExchange(handshakeType, KeyExchange_Psk)
}

func newWithKeyExchange(handshakeType HandshakeType, kx KeyExchange) *Handshake {
	hs := &Handshake{}
	hs.Header.HandshakeType = handshakeType

	switch handshakeType {
	case Type_ClientHello:
		hs.ClientHello = &clientHello{}
		hs.Payload = hs.ClientHello
	case Type_HelloVerifyRequest:
		hs.HelloVerifyRequest = &helloVerifyRequest{}
		hs.Payload = hs.HelloVerifyRequest
	case Type_ServerHello:
		hs.ServerHello = &serverHello{}
		hs.Payload = hs.ServerHello
	case Type_Certificate:
		hs.Certificate = &certificate{}
		hs.Payload = hs.Certificate
	case Type_ServerKeyExchange:
		hs.ServerKeyExchange = &serverKeyExchange{ecdhe: kx == KeyExchange_Ecdhe}
		hs.Payload = hs.ServerKeyExchange
	case Type_CertificateRequest:
		hs.CertificateRequest = &certificateRequest{}
		hs.Payload = hs.CertificateRequest
	case Type_ServerHelloDone:
		hs.ServerHelloDone = &serverHelloDone{}
		hs.Payload = hs.ServerHelloDone
	case Type_CertificateVerify:
		hs.CertificateVerify = &certificateVerify{}
		hs.Payload = hs.CertificateVerify
	case Type_ClientKeyExchange:
		hs.ClientKeyExchange = &clientKeyExchange{ecdhe: kx == KeyExchange_Ecdhe}
		hs.Payload = hs.ClientKeyExchange
	case Type_Finished:
		hs.Finished = &finished{}
		hs.Payload = hs.Finished
	default:
		hs.Unknown = &unknown{}
		hs.Payload = hs.Unknown
	}

	return hs
}

// Fragment is one handshake fragment as carried in a record.
type Fragment struct {
	Header Header
	Data   []byte
}

// Complete reports whether the fragment carries the whole message.
func (f *Fragment) Complete() bool {
	return f.Header.FragmentOfs == 0 && f.Header.FragmentLen == f.Header.Length
}

// SplitFragments decodes every handshake fragment packed in a record body.
func SplitFragments(raw []byte) ([]Fragment, error) {
	var frags []Fragment
	rdr := common.NewReader(raw)
	for rdr.Remaining() > 0 {
		f := Fragment{}
		f.Header.Parse(rdr)
		if rdr.Err() != nil {
			return nil, ErrMalformed
		}
		if f.Header.FragmentOfs+f.Header.FragmentLen > f.Header.Length {
			return nil, ErrFragment
		}
		f.Data = rdr.GetBytes(int(f.Header.FragmentLen))
		if rdr.Err() != nil {
			return nil, ErrMalformed
		}
		frags = append(frags, f)
	}
	return frags, nil
}

// ParseHandshake decodes one complete message, key exchanges as PSK.
func ParseHandshake(raw []byte) (*Handshake, error) {
	return Parse(raw, KeyExchange_Psk)
}

func Parse(raw []byte, kx KeyExchange) (*Handshake, error) {
	rdr := common.NewReader(raw)
	header := Header{}
	header.Parse(rdr)
	if rdr.Err() != nil {
		return nil, ErrMalformed
	}
	body := rdr.GetBytes(int(header.FragmentLen))
	if rdr.Err() != nil || header.FragmentOfs != 0 || header.FragmentLen != header.Length {
		return nil, ErrFragment
	}
	return ParseMessage(header, body, kx)
}

// ParseMessage decodes a reassembled message body.
func ParseMessage(header Header, body []byte, kx KeyExchange) (*Handshake, error) {
	h := newWithKeyExchange(header.HandshakeType, kx)
	h.Header = header
	rdr := common.NewReader(body)
	if err := h.Payload.Parse(rdr); err != nil {
		return nil, err
	}
	if rdr.Err() != nil {
		return nil, ErrMalformed
	}
	return h, nil
}

func TypeToString(t HandshakeType) string {
	switch t {
	case Type_HelloRequest:
		return "HelloRequest(0)"
	case Type_ClientHello:
		return "ClientHello(1)"
	case Type_ServerHello:
		return "ServerHello(2)"
	case Type_HelloVerifyRequest:
		return "HelloVerifyRequest(3)"
	case Type_Certificate:
		return "Certificate(11)"
	case Type_ServerKeyExchange:
		return "ServerKeyExchange(12)"
	case Type_CertificateRequest:
		return "CertificateRequest(13)"
	case Type_ServerHelloDone:
		return "ServerHelloDone(14)"
	case Type_CertificateVerify:
		return "CertificateVerify(15)"
	case Type_ClientKeyExchange:
		return "ClientKeyExchange(16)"
	case Type_Finished:
		return "Finished(20)"
	}
	return fmt.Sprintf("Unknown(%d)", int(t))
}
