// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package common

import (
	"crypto/rand"
)

const (
	DtlsVersion10 uint16 = 0xFEFF
	DtlsVersion12 uint16 = 0xFEFD
)

// Debug flags gate byte-level dumps that are too noisy for the debug level alone.
var DebugHandshake bool = false
var DebugEncryption bool = false

func DebugAll() {
	DebugHandshake = true
	DebugEncryption = true
}

func RandomBytes(length int) []byte {
	rbuf := make([]byte, length)
	_, _ = rand.Read(rbuf)
	return rbuf
}
