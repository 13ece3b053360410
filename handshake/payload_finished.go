// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"crypto/hmac"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
)

type finished struct {
	data []byte
}

func (h *finished) Init(masterSecret []byte, hash []byte, label string) {
	h.data = crypto.GenerateFinished(masterSecret, label, hash)
}

func (h *finished) Parse(rdr *common.Reader) error {
	h.data = rdr.GetBytes(crypto.FinishedLen)
	return nil
}

func (h *finished) Match(masterSecret []byte, hash []byte, label string) bool {
	return hmac.Equal(crypto.GenerateFinished(masterSecret, label, hash), h.data)
}

func (h *finished) Bytes() []byte {
	return h.data
}

func (h *finished) Print() string {
	return fmt.Sprintf("data[%X]", h.data)
}
