// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"encoding/hex"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
)

type certificateVerify struct {
	signatureAlgorithm uint16
	signature          []byte
}

func (h *certificateVerify) Init(signature []byte) {
	h.signatureAlgorithm = crypto.SignatureAlgorithm_ECDSA_SHA256
	h.signature = signature
}

func (h *certificateVerify) GetSignature() []byte {
	return h.signature
}

func (h *certificateVerify) Parse(rdr *common.Reader) error {
	h.signatureAlgorithm = rdr.GetUint16()
	h.signature = rdr.GetBytes(int(rdr.GetUint16()))
	return nil
}

func (h *certificateVerify) Bytes() []byte {
	w := common.NewWriter()
	w.PutUint16(h.signatureAlgorithm)
	w.PutUint16(uint16(len(h.signature)))
	w.PutBytes(h.signature)
	return w.Bytes()
}

func (h *certificateVerify) Print() string {
	return fmt.Sprintf("signature[%s][%d]", hex.EncodeToString(h.signature), len(h.signature))
}
