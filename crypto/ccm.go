// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"math"
)

// CCM is a block cipher in Counter with CBC-MAC mode (RFC 3610),
// providing authenticated encryption via the cipher.AEAD interface.
type CCM interface {
	cipher.AEAD
	// MaxLength returns the maximum plaintext length accepted by Seal,
	// 1<<(8*L) - 1 bounded by the platform int.
	MaxLength() int
}

type ccm struct {
	b cipher.Block
	M uint8
	L uint8
}

const ccmBlockSize = 16

var (
	errCcmOpen         = errors.New("ccm: message authentication failed")
	errCcmNonceSize    = errors.New("ccm: invalid nonce size")
	errCcmTooLarge     = errors.New("ccm: plaintext too large")
	errCcmCipherLength = errors.New("ccm: invalid ciphertext length")
)

// NewCCM wraps a 128-bit block cipher in CCM. tagsize is CCM's M and must be
// even in [4,16]; noncesize must be in [7,13] and gives L = 15-noncesize.
func NewCCM(b cipher.Block, tagsize, noncesize int) (CCM, error) {
	if b.BlockSize() != ccmBlockSize {
		return nil, errors.New("ccm: NewCCM requires 128-bit block cipher")
	}
	if tagsize < 4 || tagsize > 16 || tagsize&1 != 0 {
		return nil, errors.New("ccm: tagsize must be 4, 6, 8, 10, 12, 14, or 16")
	}
	lensize := 15 - noncesize
	if lensize < 2 || lensize > 8 {
		return nil, errCcmNonceSize
	}
	return &ccm{b: b, M: uint8(tagsize), L: uint8(lensize)}, nil
}

func (c *ccm) NonceSize() int { return 15 - int(c.L) }
func (c *ccm) Overhead() int  { return int(c.M) }
func (c *ccm) MaxLength() int { return maxlen(c.L, c.Overhead()) }

func maxlen(L uint8, tagsize int) int {
	max := (uint64(1) << (8 * L)) - 1
	if m64 := uint64(math.MaxInt64) - uint64(tagsize); L > 8 || max > m64 {
		max = m64
	}
	if max != uint64(int(max)) {
		return math.MaxInt32 - tagsize
	}
	return int(max)
}

func (c *ccm) cbcRound(mac, data []byte) {
	for i := 0; i < ccmBlockSize; i++ {
		mac[i] ^= data[i]
	}
	c.b.Encrypt(mac, mac)
}

func (c *ccm) cbcData(mac, data []byte) {
	for len(data) >= ccmBlockSize {
		c.cbcRound(mac, data[:ccmBlockSize])
		data = data[ccmBlockSize:]
	}
	if len(data) > 0 {
		var block [ccmBlockSize]byte
		copy(block[:], data)
		c.cbcRound(mac, block[:])
	}
}

func (c *ccm) tag(nonce, plaintext, adata []byte) ([]byte, error) {
	var mac [ccmBlockSize]byte

	if len(adata) > 0 {
		mac[0] |= 1 << 6
	}
	mac[0] |= (c.M - 2) << 2
	mac[0] |= c.L - 1
	if len(nonce) != c.NonceSize() {
		return nil, errCcmNonceSize
	}
	if len(plaintext) > c.MaxLength() {
		return nil, errCcmTooLarge
	}
	binary.BigEndian.PutUint64(mac[ccmBlockSize-8:], uint64(len(plaintext)))
	copy(mac[1:ccmBlockSize-c.L], nonce)
	c.b.Encrypt(mac[:], mac[:])

	var block [ccmBlockSize]byte
	if n := uint64(len(adata)); n > 0 {
		// first adata block carries the adata length
		i := 2
		if n <= 0xfeff {
			binary.BigEndian.PutUint16(block[:i], uint16(n))
		} else {
			block[0] = 0xfe
			block[1] = 0xff
			if n < uint64(1<<32) {
				i = 2 + 4
				binary.BigEndian.PutUint32(block[2:i], uint32(n))
			} else {
				i = 2 + 8
				binary.BigEndian.PutUint64(block[2:i], n)
			}
		}
		i = copy(block[i:], adata)
		c.cbcRound(mac[:], block[:])
		c.cbcData(mac[:], adata[i:])
	}

	if len(plaintext) > 0 {
		c.cbcData(mac[:], plaintext)
	}

	return mac[:c.M], nil
}

// sliceForAppend is taken from crypto/cipher/gcm.go.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}

func (c *ccm) counter(nonce []byte) (iv, s0 [ccmBlockSize]byte) {
	iv[0] = c.L - 1
	copy(iv[1:ccmBlockSize-c.L], nonce)
	c.b.Encrypt(s0[:], iv[:])
	iv[len(iv)-1] |= 1
	return
}

// Seal encrypts and authenticates plaintext and appends the result to dst.
// The nonce must be NonceSize() bytes and unique per key.
func (c *ccm) Seal(dst, nonce, plaintext, adata []byte) []byte {
	tag, err := c.tag(nonce, plaintext, adata)
	if err != nil {
		// cipher.AEAD leaves no room for an error return
		panic(err)
	}

	iv, s0 := c.counter(nonce)
	for i := 0; i < int(c.M); i++ {
		tag[i] ^= s0[i]
	}
	stream := cipher.NewCTR(c.b, iv[:])
	ret, out := sliceForAppend(dst, len(plaintext)+int(c.M))
	stream.XORKeyStream(out, plaintext)
	copy(out[len(plaintext):], tag)
	return ret
}

func (c *ccm) Open(dst, nonce, ciphertext, adata []byte) ([]byte, error) {
	if len(ciphertext) < int(c.M) || len(ciphertext) > c.MaxLength()+c.Overhead() {
		return nil, errCcmCipherLength
	}
	if len(nonce) != c.NonceSize() {
		return nil, errCcmNonceSize
	}

	tag := make([]byte, int(c.M))
	copy(tag, ciphertext[len(ciphertext)-int(c.M):])
	ciphertextWithoutTag := ciphertext[:len(ciphertext)-int(c.M)]

	iv, s0 := c.counter(nonce)
	for i := 0; i < int(c.M); i++ {
		tag[i] ^= s0[i]
	}
	stream := cipher.NewCTR(c.b, iv[:])

	// plaintext is only released once the tag checks out
	plaintext := make([]byte, len(ciphertextWithoutTag))
	stream.XORKeyStream(plaintext, ciphertextWithoutTag)
	expectedTag, err := c.tag(nonce, plaintext, adata)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(tag, expectedTag) != 1 {
		return nil, errCcmOpen
	}
	return append(dst, plaintext...), nil
}
