// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"errors"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/record"
)

type CipherSuite uint16

const (
	CipherSuite_TLS_PSK_WITH_AES_128_CCM_8              CipherSuite = 0xC0A8
	CipherSuite_TLS_PSK_WITH_AES_128_GCM_SHA256         CipherSuite = 0x00A8
	CipherSuite_TLS_PSK_WITH_AES_128_CBC_SHA256         CipherSuite = 0x00AE
	CipherSuite_TLS_PSK_WITH_CHACHA20_POLY1305_SHA256   CipherSuite = 0xCCAB
	CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8      CipherSuite = 0xC0AE
	CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 CipherSuite = 0xC02B
	CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256 CipherSuite = 0xC023
)

// Preference order used when offering or selecting suites.
var (
	PskCipherSuites = []CipherSuite{
		CipherSuite_TLS_PSK_WITH_AES_128_CCM_8,
		CipherSuite_TLS_PSK_WITH_AES_128_GCM_SHA256,
		CipherSuite_TLS_PSK_WITH_CHACHA20_POLY1305_SHA256,
		CipherSuite_TLS_PSK_WITH_AES_128_CBC_SHA256,
	}
	CertCipherSuites = []CipherSuite{
		CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8,
		CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
	}
)

var (
	ErrInvalidMac      = errors.New("dtls: mac invalid")
	ErrCipherTextShort = errors.New("dtls: ciphertext too short")
)

func (cs CipherSuite) NeedPsk() bool {
	switch cs {
	case CipherSuite_TLS_PSK_WITH_AES_128_CCM_8, CipherSuite_TLS_PSK_WITH_AES_128_GCM_SHA256,
		CipherSuite_TLS_PSK_WITH_AES_128_CBC_SHA256, CipherSuite_TLS_PSK_WITH_CHACHA20_POLY1305_SHA256:
		return true
	}
	return false
}

func (cs CipherSuite) NeedCert() bool {
	switch cs {
	case CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8, CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256:
		return true
	}
	return false
}

func (cs CipherSuite) String() string {
	switch cs {
	case CipherSuite_TLS_PSK_WITH_AES_128_CCM_8:
		return "TLS_PSK_WITH_AES_128_CCM_8(0xC0A8)"
	case CipherSuite_TLS_PSK_WITH_AES_128_GCM_SHA256:
		return "TLS_PSK_WITH_AES_128_GCM_SHA256(0x00A8)"
	case CipherSuite_TLS_PSK_WITH_AES_128_CBC_SHA256:
		return "TLS_PSK_WITH_AES_128_CBC_SHA256(0x00AE)"
	case CipherSuite_TLS_PSK_WITH_CHACHA20_POLY1305_SHA256:
		return "TLS_PSK_WITH_CHACHA20_POLY1305_SHA256(0xCCAB)"
	case CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8:
		return "TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8(0xC0AE)"
	case CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:
		return "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256(0xC02B)"
	case CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256:
		return "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256(0xC023)"
	}
	return fmt.Sprintf("Unknown(0x%X)", uint16(cs))
}

// Cipher protects application records once keys are established. Encrypt
// reads the cleartext from rec.Data and Decrypt the wire payload, both use
// the record header for the additional data.
type Cipher interface {
	KeyBlockSize() int
	KeyBlock(masterSecret []byte, rawKeyBlock []byte) *KeyBlock
	Encrypt(rec *record.Record, key []byte, iv []byte, mac []byte) ([]byte, error)
	Decrypt(rec *record.Record, key []byte, iv []byte, mac []byte) ([]byte, error)
}

func GetCipher(cipherSuite CipherSuite) Cipher {
	switch cipherSuite {
	case CipherSuite_TLS_PSK_WITH_AES_128_CCM_8, CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8:
		return cipherCcm
	case CipherSuite_TLS_PSK_WITH_AES_128_GCM_SHA256, CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:
		return cipherGcm
	case CipherSuite_TLS_PSK_WITH_CHACHA20_POLY1305_SHA256:
		return cipherChaCha
	case CipherSuite_TLS_PSK_WITH_AES_128_CBC_SHA256, CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256:
		return CipherCBC{}
	}
	return nil
}
