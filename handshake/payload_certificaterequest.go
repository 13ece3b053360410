// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

const certificateType_EcdsaSign uint8 = 0x40

type certificateRequest struct {
	certificateTypes    []uint8
	signatureAlgorithms []uint16
}

func (h *certificateRequest) Init() {
	h.certificateTypes = []uint8{certificateType_EcdsaSign}
	h.signatureAlgorithms = []uint16{0x0403}
}

func (h *certificateRequest) Parse(rdr *common.Reader) error {
	h.certificateTypes = rdr.GetBytes(int(rdr.GetUint8()))
	algs := common.NewReader(rdr.GetBytes(int(rdr.GetUint16())))
	for algs.Remaining() >= 2 {
		h.signatureAlgorithms = append(h.signatureAlgorithms, algs.GetUint16())
	}
	// certificate authorities are not used for selection
	rdr.Skip(int(rdr.GetUint16()))
	return nil
}

func (h *certificateRequest) Bytes() []byte {
	w := common.NewWriter()
	w.PutUint8(uint8(len(h.certificateTypes)))
	w.PutBytes(h.certificateTypes)
	w.PutUint16(uint16(len(h.signatureAlgorithms) * 2))
	for _, alg := range h.signatureAlgorithms {
		w.PutUint16(alg)
	}
	w.PutUint16(0)
	return w.Bytes()
}

func (h *certificateRequest) Print() string {
	return fmt.Sprintf("certificateTypes[%X] signatureAlgorithms[%04X]", h.certificateTypes, h.signatureAlgorithms)
}

func (h *certificateRequest) GetCertificateTypes() []uint8 {
	return h.certificateTypes
}
