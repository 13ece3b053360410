// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"github.com/qwerty-iot/dtlssocket/common"
)

type serverHelloDone struct {
}

func (h *serverHelloDone) Init() {
}

func (h *serverHelloDone) Parse(rdr *common.Reader) error {
	return nil
}

func (h *serverHelloDone) Bytes() []byte {
	return nil
}

func (h *serverHelloDone) Print() string {
	return ""
}
