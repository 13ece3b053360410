// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/record"
)

// CipherCBC is AES-128-CBC with HMAC-SHA256, MAC-then-encrypt with an
// explicit per-record IV.
type CipherCBC struct{}

const cbcMacSize = sha256.Size

func (c CipherCBC) KeyBlockSize() int {
	return 128
}

func (c CipherCBC) KeyBlock(masterSecret []byte, rawKeyBlock []byte) *KeyBlock {
	return &KeyBlock{
		MasterSecret:   masterSecret,
		ClientMac:      rawKeyBlock[0:32],
		ServerMac:      rawKeyBlock[32:64],
		ClientWriteKey: rawKeyBlock[64:80],
		ServerWriteKey: rawKeyBlock[80:96],
		ClientIV:       rawKeyBlock[96:112],
		ServerIV:       rawKeyBlock[112:128]}
}

func newMac(epoch uint16, seq uint64, msgType uint8, data []byte, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(CreateAad(epoch, seq, msgType, uint16(len(data))))
	h.Write(data)
	return h.Sum(nil)
}

func (c CipherCBC) Encrypt(rec *record.Record, key []byte, iv []byte, mac []byte) ([]byte, error) {

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	blockSize := block.BlockSize()

	clearText := make([]byte, 0, len(rec.Data)+cbcMacSize+blockSize)
	clearText = append(clearText, rec.Data...)
	clearText = append(clearText, newMac(rec.Epoch, rec.Sequence, uint8(rec.ContentType), rec.Data, mac)...)

	paddingLen := blockSize - len(clearText)%blockSize
	for i := 0; i < paddingLen; i++ {
		clearText = append(clearText, byte(paddingLen-1))
	}

	if common.DebugEncryption {
		common.LogDebug("dtls: cbc encrypt paddingLen[%d] clearText[%X][%d]", paddingLen, clearText, len(clearText))
	}

	cipherText := make([]byte, blockSize+len(clearText))
	tiv := cipherText[:blockSize]
	if _, err := rand.Read(tiv); err != nil {
		return nil, err
	}
	cbc := cipher.NewCBCEncrypter(block, tiv)
	cbc.CryptBlocks(cipherText[blockSize:], clearText)

	if common.DebugEncryption {
		common.LogDebug("dtls: cbc encrypt cipherText[%X][%d]", cipherText, len(cipherText))
	}
	return cipherText, nil
}

func (c CipherCBC) Decrypt(rec *record.Record, key []byte, iv []byte, mac []byte) ([]byte, error) {

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	blockSize := block.BlockSize()

	if len(rec.Data) < 2*blockSize || len(rec.Data)%blockSize != 0 {
		return nil, ErrCipherTextShort
	}

	tiv := rec.Data[:blockSize]
	cipherText := rec.Data[blockSize:]

	cbc := cipher.NewCBCDecrypter(block, tiv)
	clearText := make([]byte, len(cipherText))
	cbc.CryptBlocks(clearText, cipherText)

	// padding and mac are checked together so timing does not leak which failed
	paddingLen, paddingGood := examinePadding(clearText)

	dataEnd := len(clearText) - cbcMacSize - paddingLen
	if dataEnd < 0 {
		dataEnd = 0
		paddingGood = 0
	}
	var expectedMAC []byte
	if dataEnd+cbcMacSize <= len(clearText) {
		expectedMAC = clearText[dataEnd : dataEnd+cbcMacSize]
	}
	clearText = clearText[:dataEnd]

	actualMAC := newMac(rec.Epoch, rec.Sequence, uint8(rec.ContentType), clearText, mac)
	if paddingGood != 255 || !hmac.Equal(actualMAC, expectedMAC) {
		return nil, ErrInvalidMac
	}

	if common.DebugEncryption {
		common.LogDebug("dtls: cbc decrypt clearText[%X][%d]", clearText, len(clearText))
	}
	return clearText, nil
}

func examinePadding(payload []byte) (toRemove int, good byte) {
	if len(payload) < 1 {
		return 0, 0
	}

	paddingLen := payload[len(payload)-1]
	t := uint(len(payload)-1) - uint(paddingLen)
	// MSB of t is zero when len(payload) >= paddingLen+1
	good = byte(int32(^t) >> 31)

	// maximum padding plus the length byte
	toCheck := 256
	if toCheck > len(payload) {
		toCheck = len(payload)
	}

	for i := 0; i < toCheck; i++ {
		t := uint(paddingLen) - uint(i)
		// MSB of t is zero when i <= paddingLen
		mask := byte(int32(^t) >> 31)
		b := payload[len(payload)-1-i]
		good &^= mask&paddingLen ^ mask&b
	}

	// AND the bits of good together and spread the result over the byte
	good &= good << 4
	good &= good << 2
	good &= good << 1
	good = uint8(int8(good) >> 7)

	toRemove = int(paddingLen) + 1

	return toRemove, good
}
