// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

type unknown struct {
	data []byte
}

func (h *unknown) Init() {
}

func (h *unknown) Parse(rdr *common.Reader) error {
	h.data = rdr.GetBytes(rdr.Remaining())
	return nil
}

func (h *unknown) Bytes() []byte {
	return h.data
}

func (h *unknown) Print() string {
	return fmt.Sprintf("data[%X]", h.data)
}
