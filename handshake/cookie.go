// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package handshake

import (
	"crypto/hmac"

	"github.com/zeebo/blake3"
)

const (
	CookieSecretLen = 32
	CookieLen       = 32
)

// MakeCookie binds a stateless cookie to the peer address and the client's
// hello parameters under a server secret of CookieSecretLen bytes.
func (h *clientHello) MakeCookie(secret []byte, peer string) ([]byte, error) {
	hash, err := blake3.NewKeyed(secret)
	if err != nil {
		return nil, err
	}
	hash.Write([]byte(peer))
	hash.Write([]byte{byte(h.version >> 8), byte(h.version)})
	hash.Write(h.randomBytes)
	hash.Write(h.sessionId)
	for _, cs := range h.cipherSuites {
		hash.Write([]byte{byte(cs >> 8), byte(cs)})
	}
	for _, cm := range h.compressionMethods {
		hash.Write([]byte{byte(cm)})
	}
	return hash.Sum(nil)[:CookieLen], nil
}

// VerifyCookie reports whether the hello echoes the cookie MakeCookie issues.
func (h *clientHello) VerifyCookie(secret []byte, peer string) bool {
	if len(h.cookie) == 0 {
		return false
	}
	expected, err := h.MakeCookie(secret, peer)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, h.cookie)
}
