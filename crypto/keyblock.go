// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

const (
	AadAuthLen int = 13
)

// CreateNonce returns iv || epoch || seq, the AES AEAD record nonce.
func CreateNonce(iv []byte, epoch uint16, seq uint64) []byte {
	nonce := make([]byte, len(iv)+8)
	copy(nonce, iv)
	binary.BigEndian.PutUint64(nonce[len(iv):], uint64(epoch)<<48|seq&0x0000ffffffffffff)
	return nonce
}

func CreateAad(epoch uint16, seq uint64, msgType uint8, dataLen uint16) []byte {
	w := common.NewWriter()
	w.PutUint16(epoch)
	w.PutUint48(seq)
	w.PutUint8(msgType)
	w.PutUint16(common.DtlsVersion12)
	w.PutUint16(dataLen)
	return w.Bytes()
}

type KeyBlock struct {
	MasterSecret   []byte
	ClientMac      []byte
	ServerMac      []byte
	ClientWriteKey []byte
	ServerWriteKey []byte
	ClientIV       []byte
	ServerIV       []byte
}

func (kb *KeyBlock) Print() string {
	return fmt.Sprintf("ClientWriteKey[%X], ServerWriteKey[%X], ClientIV[%X], ServerIV[%X]", kb.ClientWriteKey, kb.ServerWriteKey, kb.ClientIV, kb.ServerIV)
}

// CreateKeyBlock expands masterSecret into the per-direction keys of cipherSuite.
func CreateKeyBlock(cipherSuite CipherSuite, masterSecret, clientRandom, serverRandom []byte) (*KeyBlock, error) {
	c := GetCipher(cipherSuite)
	if c == nil {
		return nil, fmt.Errorf("dtls: unsupported cipher suite %s", cipherSuite)
	}
	rawKeyBlock := GeneratePrf(masterSecret, serverRandom, clientRandom, "key expansion", c.KeyBlockSize())
	return c.KeyBlock(masterSecret, rawKeyBlock), nil
}
