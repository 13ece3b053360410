// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

type certificate struct {
	certs [][]byte
}

func (h *certificate) Init(certs [][]byte) {
	h.certs = certs
}

func (h *certificate) Parse(rdr *common.Reader) error {
	list := common.NewReader(rdr.GetBytes(int(rdr.GetUint24())))
	h.certs = [][]byte{}
	for list.Remaining() > 0 {
		cert := list.GetBytes(int(list.GetUint24()))
		if list.Err() != nil {
			return ErrMalformed
		}
		h.certs = append(h.certs, cert)
	}
	return nil
}

func (h *certificate) Bytes() []byte {
	w := common.NewWriter()
	totalLen := 0
	for _, cert := range h.certs {
		totalLen = totalLen + 3 + len(cert)
	}
	w.PutUint24(uint32(totalLen))
	for _, cert := range h.certs {
		w.PutUint24(uint32(len(cert)))
		w.PutBytes(cert)
	}
	return w.Bytes()
}

func (h *certificate) Print() string {
	certsStr := "certs["
	for idx, cert := range h.certs {
		certsStr += fmt.Sprintf("(%d)%X,", idx, cert)
	}
	certsStr += "]"
	return certsStr
}

func (h *certificate) GetCerts() [][]byte {
	return h.certs
}
