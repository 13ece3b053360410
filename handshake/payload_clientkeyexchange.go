// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"encoding/hex"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

// clientKeyExchange carries a PSK identity or the client's ECDHE point.
type clientKeyExchange struct {
	ecdhe     bool
	identity  []byte
	publicKey []byte
}

func (h *clientKeyExchange) InitPsk(identity []byte) {
	h.ecdhe = false
	h.identity = identity
}

func (h *clientKeyExchange) InitEcdhe(publicKey []byte) {
	h.ecdhe = true
	h.publicKey = publicKey
}

func (h *clientKeyExchange) Parse(rdr *common.Reader) error {
	if h.ecdhe {
		h.publicKey = rdr.GetBytes(int(rdr.GetUint8()))
	} else {
		h.identity = rdr.GetBytes(int(rdr.GetUint16()))
	}
	return nil
}

func (h *clientKeyExchange) Bytes() []byte {
	w := common.NewWriter()
	if h.ecdhe {
		w.PutUint8(uint8(len(h.publicKey)))
		w.PutBytes(h.publicKey)
	} else {
		w.PutUint16(uint16(len(h.identity)))
		w.PutBytes(h.identity)
	}
	return w.Bytes()
}

func (h *clientKeyExchange) Print() string {
	if h.ecdhe {
		return fmt.Sprintf("publicKey[%s][%d]", hex.EncodeToString(h.publicKey), len(h.publicKey))
	}
	return fmt.Sprintf("identity[%s][%d]", h.identity, len(h.identity))
}

func (h *clientKeyExchange) GetIdentity() []byte {
	return h.identity
}

func (h *clientKeyExchange) GetPublicKey() []byte {
	return h.publicKey
}
