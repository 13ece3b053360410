// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/record"
)

// CipherAead covers the AEAD suites. AES modes carry an 8 byte explicit
// nonce on the wire; ChaCha20 derives the nonce from the record sequence
// (RFC 7905).
type CipherAead struct {
	name          string
	keyLen        int
	ivLen         int
	explicitNonce bool
	newAead       func(key []byte) (cipher.AEAD, error)
}

var (
	cipherCcm = CipherAead{name: "ccm", keyLen: 16, ivLen: 4, explicitNonce: true, newAead: func(key []byte) (cipher.AEAD, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return NewCCM(block, 8, 12)
	}}
	cipherGcm = CipherAead{name: "gcm", keyLen: 16, ivLen: 4, explicitNonce: true, newAead: func(key []byte) (cipher.AEAD, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}}
	cipherChaCha = CipherAead{name: "chacha20", keyLen: chacha20poly1305.KeySize, ivLen: chacha20poly1305.NonceSize, newAead: chacha20poly1305.New}
)

func (c CipherAead) KeyBlockSize() int {
	return 2*c.keyLen + 2*c.ivLen
}

func (c CipherAead) KeyBlock(masterSecret []byte, rawKeyBlock []byte) *KeyBlock {
	k, i := c.keyLen, c.ivLen
	return &KeyBlock{
		MasterSecret:   masterSecret,
		ClientWriteKey: rawKeyBlock[0:k],
		ServerWriteKey: rawKeyBlock[k : 2*k],
		ClientIV:       rawKeyBlock[2*k : 2*k+i],
		ServerIV:       rawKeyBlock[2*k+i : 2*k+2*i]}
}

func (c CipherAead) nonce(iv []byte, epoch uint16, seq uint64) []byte {
	if c.explicitNonce {
		return CreateNonce(iv, epoch, seq)
	}
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	var es [8]byte
	binary.BigEndian.PutUint64(es[:], uint64(epoch)<<48|seq&0x0000ffffffffffff)
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-8+i] ^= es[i]
	}
	return nonce
}

func (c CipherAead) Encrypt(rec *record.Record, key []byte, iv []byte, mac []byte) ([]byte, error) {
	aead, err := c.newAead(key)
	if err != nil {
		return nil, err
	}
	nonce := c.nonce(iv, rec.Epoch, rec.Sequence)
	aad := CreateAad(rec.Epoch, rec.Sequence, uint8(rec.ContentType), uint16(len(rec.Data)))

	if common.DebugEncryption {
		common.LogDebug("dtls: %s encrypt nonce[%X] aad[%X] clearText[%X][%d]", c.name, nonce, aad, rec.Data, len(rec.Data))
	}

	var out []byte
	if c.explicitNonce {
		out = make([]byte, 8, 8+len(rec.Data)+aead.Overhead())
		copy(out, nonce[len(iv):])
	}
	out = aead.Seal(out, nonce, rec.Data, aad)

	if common.DebugEncryption {
		common.LogDebug("dtls: %s encrypt cipherText[%X][%d]", c.name, out, len(out))
	}
	return out, nil
}

func (c CipherAead) Decrypt(rec *record.Record, key []byte, iv []byte, mac []byte) ([]byte, error) {
	aead, err := c.newAead(key)
	if err != nil {
		return nil, err
	}
	data := rec.Data
	var nonce []byte
	if c.explicitNonce {
		if len(data) < 8+aead.Overhead() {
			return nil, ErrCipherTextShort
		}
		nonce = make([]byte, 0, len(iv)+8)
		nonce = append(nonce, iv...)
		nonce = append(nonce, data[:8]...)
		data = data[8:]
	} else {
		if len(data) < aead.Overhead() {
			return nil, ErrCipherTextShort
		}
		nonce = c.nonce(iv, rec.Epoch, rec.Sequence)
	}
	aad := CreateAad(rec.Epoch, rec.Sequence, uint8(rec.ContentType), uint16(len(data)-aead.Overhead()))

	if common.DebugEncryption {
		common.LogDebug("dtls: %s decrypt nonce[%X] aad[%X] cipherText[%X][%d]", c.name, nonce, aad, data, len(data))
	}

	clearText, err := aead.Open(nil, nonce, data, aad)
	if err != nil {
		if common.DebugEncryption {
			common.LogWarn("dtls: %s decrypt failed: %s", c.name, err.Error())
		}
		return nil, ErrInvalidMac
	}
	return clearText, nil
}
