// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package alert encodes the two byte alert protocol message.
package alert

import (
	"errors"
	"fmt"
)

// Alert levels.
const (
	TypeWarning uint8 = 1
	TypeFatal   uint8 = 2
)

// Alert descriptions, RFC 5246 section 7.2 plus RFC 4279.
const (
	DescCloseNotify            uint8 = 0
	DescUnexpectedMessage      uint8 = 10
	DescBadRecordMac           uint8 = 20
	DescDecryptionFailed       uint8 = 21
	DescRecordOverflow         uint8 = 22
	DescDecompressionFailure   uint8 = 30
	DescHandshakeFailure       uint8 = 40
	DescNoCertificate          uint8 = 41
	DescBadCertificate         uint8 = 42
	DescUnsupportedCertificate uint8 = 43
	DescCertificateRevoked     uint8 = 44
	DescCertificateExpired     uint8 = 45
	DescCertificateUnknown     uint8 = 46
	DescIllegalParameter       uint8 = 47
	DescUnknownCa              uint8 = 48
	DescAccessDenied           uint8 = 49
	DescDecodeError            uint8 = 50
	DescDecryptError           uint8 = 51
	DescExportRestriction      uint8 = 60
	DescProtocolVersion        uint8 = 70
	DescInsufficientSecurity   uint8 = 71
	DescInternalError          uint8 = 80
	DescUserCanceled           uint8 = 90
	DescNoRenegotiation        uint8 = 100
	DescUnsupportedExtension   uint8 = 110
	DescUnknownPskIdentity     uint8 = 115
)

// Size is the encoded length of an alert.
const Size = 2

var errShort = errors.New("dtls: alert too small")

var levelNames = map[uint8]string{
	TypeWarning: "warning",
	TypeFatal:   "fatal",
}

var descNames = map[uint8]string{
	DescCloseNotify:            "close notify",
	DescUnexpectedMessage:      "unexpected message",
	DescBadRecordMac:           "bad record mac",
	DescDecryptionFailed:       "decryption failed",
	DescRecordOverflow:         "record overflow",
	DescDecompressionFailure:   "decompression failure",
	DescHandshakeFailure:       "handshake failure",
	DescNoCertificate:          "no certificate",
	DescBadCertificate:         "bad certificate",
	DescUnsupportedCertificate: "unsupported certificate",
	DescCertificateRevoked:     "certificate revoked",
	DescCertificateExpired:     "certificate expired",
	DescCertificateUnknown:     "certificate unknown",
	DescIllegalParameter:       "illegal parameter",
	DescUnknownCa:              "unknown ca",
	DescAccessDenied:           "access denied",
	DescDecodeError:            "decode error",
	DescDecryptError:           "decrypt error",
	DescExportRestriction:      "export restriction",
	DescProtocolVersion:        "protocol version",
	DescInsufficientSecurity:   "insufficient security",
	DescInternalError:          "internal error",
	DescUserCanceled:           "user canceled",
	DescNoRenegotiation:        "no renegotiation",
	DescUnsupportedExtension:   "unsupported extension",
	DescUnknownPskIdentity:     "unknown psk identity",
}

type Alert struct {
	Type uint8
	Desc uint8
}

func New(level uint8, desc uint8) *Alert {
	return &Alert{Type: level, Desc: desc}
}

// Parse reads an alert from a record body. Trailing bytes are ignored.
func Parse(data []byte) (*Alert, error) {
	if len(data) < Size {
		return nil, errShort
	}
	return New(data[0], data[1]), nil
}

func (a *Alert) Bytes() []byte {
	return []byte{a.Type, a.Desc}
}

func (a *Alert) IsCloseNotify() bool { return a.Desc == DescCloseNotify }

func (a *Alert) IsFatal() bool { return a.Type == TypeFatal }

func (a *Alert) String() string {
	return TypeToString(a.Type) + ": " + DescToString(a.Desc)
}

func TypeToString(level uint8) string {
	return lookup(levelNames, level)
}

func DescToString(desc uint8) string {
	return lookup(descNames, desc)
}

func lookup(names map[uint8]string, v uint8) string {
	if name, ok := names[v]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", v)
}
