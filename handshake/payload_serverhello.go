// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
)

type serverHello struct {
	version           uint16
	randomTime        uint32
	randomBytes       []byte
	sessionId         []byte
	cipherSuite       crypto.CipherSuite
	compressionMethod CompressionMethod
	extensions        []Extension
}

func (h *serverHello) Init(randomBytes []byte, sessionId []byte, cipherSuite crypto.CipherSuite) {
	h.version = common.DtlsVersion12
	h.randomBytes = randomBytes
	h.randomTime = binary.BigEndian.Uint32(h.randomBytes[:4])
	h.sessionId = sessionId
	h.cipherSuite = cipherSuite
	h.compressionMethod = CompressionMethod_Null
	if cipherSuite.NeedCert() {
		h.extensions = []Extension{{Type: Extension_EcPointFormats, Data: []byte{0x01, 0x00}}}
	}
}

func (h *serverHello) Parse(rdr *common.Reader) error {
	h.version = rdr.GetUint16()
	h.randomBytes = rdr.GetBytes(32)
	if h.randomBytes != nil {
		h.randomTime = binary.BigEndian.Uint32(h.randomBytes[:4])
	}
	if l := rdr.GetUint8(); l > 0 {
		h.sessionId = rdr.GetBytes(int(l))
	}
	h.cipherSuite = crypto.CipherSuite(rdr.GetUint16())
	h.compressionMethod = CompressionMethod(rdr.GetUint8())
	h.extensions = parseExtensions(rdr)
	return nil
}

func (h *serverHello) Bytes() []byte {
	w := common.NewWriter()
	w.PutUint16(h.version)
	w.PutBytes(h.randomBytes)
	w.PutUint8(uint8(len(h.sessionId)))
	w.PutBytes(h.sessionId)
	w.PutUint16(uint16(h.cipherSuite))
	w.PutUint8(uint8(h.compressionMethod))
	writeExtensions(w, h.extensions)
	return w.Bytes()
}

func (h *serverHello) Print() string {
	return fmt.Sprintf("version[%X] randomData[%s][%d bytes] sessionId[%X][%d] cipherSuite[%s] compressionMethod[%x]", h.version, time.Unix(int64(h.randomTime), 0).String(), len(h.randomBytes), h.sessionId, len(h.sessionId), h.cipherSuite.String(), uint8(h.compressionMethod))
}

func (h *serverHello) GetVersion() uint16 {
	return h.version
}

func (h *serverHello) GetRandom() (time.Time, []byte) {
	return time.Unix(int64(h.randomTime), 0), h.randomBytes
}

func (h *serverHello) GetSessionId() []byte {
	return h.sessionId
}

func (h *serverHello) GetCipherSuite() crypto.CipherSuite {
	return h.cipherSuite
}

func (h *serverHello) GetCompressionMethod() CompressionMethod {
	return h.compressionMethod
}
