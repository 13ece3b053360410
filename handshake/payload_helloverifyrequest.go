// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"fmt"

	"github.com/qwerty-iot/dtlssocket/common"
)

type helloVerifyRequest struct {
	version uint16
	cookie  []byte
}

func (h *helloVerifyRequest) Init(cookie []byte) {
	h.version = common.DtlsVersion10
	h.cookie = cookie
}

func (h *helloVerifyRequest) Parse(rdr *common.Reader) error {
	h.version = rdr.GetUint16()
	if l := rdr.GetUint8(); l > 0 {
		h.cookie = rdr.GetBytes(int(l))
	}
	return nil
}

func (h *helloVerifyRequest) Bytes() []byte {
	w := common.NewWriter()
	w.PutUint16(h.version)
	w.PutUint8(uint8(len(h.cookie)))
	w.PutBytes(h.cookie)
	return w.Bytes()
}

func (h *helloVerifyRequest) Print() string {
	return fmt.Sprintf("version[%X] cookie[%X][%d]", h.version, h.cookie, len(h.cookie))
}

func (h *helloVerifyRequest) GetCookie() []byte {
	return h.cookie
}
