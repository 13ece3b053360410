// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/qwerty-iot/dtlssocket/common"
)

const (
	MasterSecretLen int = 48
	FinishedLen     int = 12
)

// GeneratePrf is the TLS 1.2 P_SHA256 expansion of secret over label+random1+random2.
func GeneratePrf(key, random1, random2 []byte, label string, keyLen int) []byte {

	buf := make([]byte, 0, keyLen)

	seed := hmac.New(sha256.New, key)
	seed.Write([]byte(label))
	seed.Write(random1)
	seed.Write(random2)
	seedHash := seed.Sum(nil)

	hash := hmac.New(sha256.New, key)

	for len(buf) < keyLen {
		hash.Reset()
		hash.Write(seedHash)
		hash.Write([]byte(label))
		hash.Write(random1)
		hash.Write(random2)
		buf = hash.Sum(buf)

		seed.Reset()
		seed.Write(seedHash)
		seedHash = seed.Sum(nil)
	}

	return buf[:keyLen]
}

// GeneratePskPreMasterSecret builds the RFC 4279 plain PSK premaster:
// len || zeros(len) || len || psk.
func GeneratePskPreMasterSecret(psk []byte) []byte {
	w := common.NewWriter()
	w.PutUint16(uint16(len(psk)))
	w.PutBytes(make([]byte, len(psk)))
	w.PutUint16(uint16(len(psk)))
	w.PutBytes(psk)
	return w.Bytes()
}

func GenerateMasterSecret(preMasterSecret, clientRandom, serverRandom []byte) []byte {
	return GeneratePrf(preMasterSecret, clientRandom, serverRandom, "master secret", MasterSecretLen)
}

// GenerateFinished computes verify_data, label is "client" or "server".
func GenerateFinished(masterSecret []byte, label string, handshakeHash []byte) []byte {
	return GeneratePrf(masterSecret, []byte(" finished"), handshakeHash, label, FinishedLen)
}
