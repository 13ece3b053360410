// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
)

const (
	Extension_SupportedGroups     uint16 = 10
	Extension_EcPointFormats      uint16 = 11
	Extension_SignatureAlgorithms uint16 = 13
)

type Extension struct {
	Type uint16
	Data []byte
}

type clientHello struct {
	version            uint16
	randomTime         uint32
	randomBytes        []byte
	sessionId          []byte
	cookie             []byte
	cipherSuites       []crypto.CipherSuite
	compressionMethods []CompressionMethod
	extensions         []Extension
}

func (h *clientHello) Init(sessionId []byte, randomBytes []byte, cookie []byte, cipherSuites []crypto.CipherSuite, compressionMethods []CompressionMethod) error {
	if len(randomBytes) < 4 {
		return errors.New("dtls: random data underflow")
	}
	h.version = common.DtlsVersion12
	h.randomBytes = randomBytes
	h.randomTime = binary.BigEndian.Uint32(h.randomBytes[:4])
	h.sessionId = sessionId
	h.cookie = cookie
	h.cipherSuites = cipherSuites
	h.compressionMethods = compressionMethods
	h.extensions = nil
	for _, cs := range cipherSuites {
		if cs.NeedCert() {
			h.extensions = eccExtensions()
			break
		}
	}
	return nil
}

// eccExtensions advertises secp256r1, uncompressed points and ecdsa_secp256r1_sha256.
func eccExtensions() []Extension {
	return []Extension{
		{Type: Extension_SupportedGroups, Data: []byte{0x00, 0x02, 0x00, 0x17}},
		{Type: Extension_EcPointFormats, Data: []byte{0x01, 0x00}},
		{Type: Extension_SignatureAlgorithms, Data: []byte{0x00, 0x02, 0x04, 0x03}},
	}
}

func (h *clientHello) Parse(rdr *common.Reader) error {
	h.version = rdr.GetUint16()
	h.randomBytes = rdr.GetBytes(32)
	if h.randomBytes != nil {
		h.randomTime = binary.BigEndian.Uint32(h.randomBytes[:4])
	}
	if l := rdr.GetUint8(); l > 0 {
		h.sessionId = rdr.GetBytes(int(l))
	}
	if l := rdr.GetUint8(); l > 0 {
		h.cookie = rdr.GetBytes(int(l))
	}
	if l := rdr.GetUint16(); l > 0 {
		h.cipherSuites = make([]crypto.CipherSuite, 0, l/2)
		for i := 0; i < int(l)/2; i++ {
			h.cipherSuites = append(h.cipherSuites, crypto.CipherSuite(rdr.GetUint16()))
		}
	}
	if l := rdr.GetUint8(); l > 0 {
		h.compressionMethods = make([]CompressionMethod, 0, l)
		for i := 0; i < int(l); i++ {
			h.compressionMethods = append(h.compressionMethods, CompressionMethod(rdr.GetUint8()))
		}
	}
	h.extensions = parseExtensions(rdr)
	return nil
}

func parseExtensions(rdr *common.Reader) []Extension {
	if rdr.Remaining() < 2 {
		return nil
	}
	ext := common.NewReader(rdr.GetBytes(int(rdr.GetUint16())))
	var exts []Extension
	for ext.Remaining() >= 4 {
		t := ext.GetUint16()
		d := ext.GetBytes(int(ext.GetUint16()))
		if ext.Err() != nil {
			break
		}
		exts = append(exts, Extension{Type: t, Data: d})
	}
	return exts
}

func writeExtensions(w *common.Writer, exts []Extension) {
	if len(exts) == 0 {
		return
	}
	l := 0
	for _, e := range exts {
		l += 4 + len(e.Data)
	}
	w.PutUint16(uint16(l))
	for _, e := range exts {
		w.PutUint16(e.Type)
		w.PutUint16(uint16(len(e.Data)))
		w.PutBytes(e.Data)
	}
}

func (h *clientHello) Bytes() []byte {
	w := common.NewWriter()
	w.PutUint16(h.version)
	w.PutBytes(h.randomBytes)
	w.PutUint8(uint8(len(h.sessionId)))
	w.PutBytes(h.sessionId)
	w.PutUint8(uint8(len(h.cookie)))
	w.PutBytes(h.cookie)
	w.PutUint16(uint16(len(h.cipherSuites) * 2))
	for _, cs := range h.cipherSuites {
		w.PutUint16(uint16(cs))
	}
	w.PutUint8(uint8(len(h.compressionMethods)))
	for _, cm := range h.compressionMethods {
		w.PutUint8(uint8(cm))
	}
	writeExtensions(w, h.extensions)
	return w.Bytes()
}

func (h *clientHello) Print() string {
	suites := make([]string, 0, len(h.cipherSuites))
	for _, suite := range h.cipherSuites {
		suites = append(suites, suite.String())
	}
	comprs := make([]string, 0, len(h.compressionMethods))
	for _, compr := range h.compressionMethods {
		comprs = append(comprs, fmt.Sprintf("0x%02X", uint8(compr)))
	}

	return fmt.Sprintf("version[0x%X] randomData[%s][%X] sessionId[%X][%d] cookie[%X][%d] advertisedCipherSuites[%s][%d] advertisedCompressionMethods[%s][%d] extensions[%d]", h.version, time.Unix(int64(h.randomTime), 0).String(), h.randomBytes, h.sessionId, len(h.sessionId), h.cookie, len(h.cookie), strings.Join(suites, ","), len(h.cipherSuites)*2, strings.Join(comprs, ","), len(h.compressionMethods), len(h.extensions))
}

func (h *clientHello) GetVersion() uint16 {
	return h.version
}

func (h *clientHello) GetRandom() (time.Time, []byte) {
	return time.Unix(int64(h.randomTime), 0), h.randomBytes
}

func (h *clientHello) GetCookie() []byte {
	return h.cookie
}

func (h *clientHello) HasSessionId() bool {
	return len(h.sessionId) > 0
}

func (h *clientHello) GetSessionId() []byte {
	return h.sessionId
}

func (h *clientHello) GetSessionIdStr() string {
	return hex.EncodeToString(h.sessionId)
}

func (h *clientHello) GetCipherSuites() []crypto.CipherSuite {
	return h.cipherSuites
}

func (h *clientHello) GetCompressionMethods() []CompressionMethod {
	return h.compressionMethods
}

func (h *clientHello) GetExtensions() []Extension {
	return h.extensions
}

// SelectCipherSuite returns the first of our suites, in our preference
// order, that the client offered, or 0.
func (h *clientHello) SelectCipherSuite(supported []crypto.CipherSuite) crypto.CipherSuite {
	for _, ours := range supported {
		for _, cipher := range h.cipherSuites {
			if ours == cipher {
				return cipher
			}
		}
	}
	return 0
}
