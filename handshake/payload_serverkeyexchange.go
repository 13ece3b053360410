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

// serverKeyExchange is either a PSK identity hint or signed ECDHE params.
type serverKeyExchange struct {
	ecdhe bool

	identity []byte

	curve              crypto.EccCurve
	publicKey          []byte
	signatureAlgorithm uint16
	signature          []byte
}

func (h *serverKeyExchange) InitPsk(identity []byte) {
	h.ecdhe = false
	h.identity = identity
}

func (h *serverKeyExchange) InitCert(curve crypto.EccCurve, publicKey []byte, signature []byte) {
	h.ecdhe = true
	h.curve = curve
	h.publicKey = publicKey
	h.signatureAlgorithm = crypto.SignatureAlgorithm_ECDSA_SHA256
	h.signature = signature
}

func (h *serverKeyExchange) IsEcdhe() bool {
	return h.ecdhe
}

func (h *serverKeyExchange) GetIdentity() []byte {
	return h.identity
}

func (h *serverKeyExchange) GetCurve() crypto.EccCurve {
	return h.curve
}

func (h *serverKeyExchange) GetPublicKey() []byte {
	return h.publicKey
}

func (h *serverKeyExchange) GetSignatureAlgorithm() uint16 {
	return h.signatureAlgorithm
}

func (h *serverKeyExchange) GetSignature() []byte {
	return h.signature
}

// Params returns the signed ServerECDHParams block.
func (h *serverKeyExchange) Params() []byte {
	return crypto.EccKeyParams(h.curve, h.publicKey)
}

func (h *serverKeyExchange) Parse(rdr *common.Reader) error {
	if h.ecdhe {
		if rdr.GetUint8() != 0x03 {
			return ErrMalformed
		}
		h.curve = crypto.EccCurve(rdr.GetUint16())
		h.publicKey = rdr.GetBytes(int(rdr.GetUint8()))
		h.signatureAlgorithm = rdr.GetUint16()
		h.signature = rdr.GetBytes(int(rdr.GetUint16()))
	} else {
		if l := rdr.GetUint16(); l > 0 {
			h.identity = rdr.GetBytes(int(l))
		}
	}
	return nil
}

func (h *serverKeyExchange) Bytes() []byte {
	w := common.NewWriter()
	if h.ecdhe {
		w.PutBytes(h.Params())
		w.PutUint16(h.signatureAlgorithm)
		w.PutUint16(uint16(len(h.signature)))
		w.PutBytes(h.signature)
	} else {
		w.PutUint16(uint16(len(h.identity)))
		w.PutBytes(h.identity)
	}
	return w.Bytes()
}

func (h *serverKeyExchange) Print() string {
	if h.ecdhe {
		return fmt.Sprintf("eccCurve[%d] publicKey[%s] signature[%s]", h.curve, hex.EncodeToString(h.publicKey), hex.EncodeToString(h.signature))
	}
	return fmt.Sprintf("identity[%s][%d]", h.identity, len(h.identity))
}
