// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"errors"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/session"
)

var (
	ErrNoAuthMaterial = errors.New("dtls: psk or private key required")
	ErrNoTransport    = errors.New("dtls: no transport")
	ErrClosed         = errors.New("dtls: socket closed")
	ErrNoAddress      = errors.New("dtls: remote address required")
)

// EngineError is a fatal error reported by the engine.
type EngineError struct {
	Code    int
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("dtls: engine error -0x%04X: %s", -e.Code, e.Message)
}

// Is matches engine errors by code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// IsPeerCloseNotify reports whether the error is the peer closing the session.
func (e *EngineError) IsPeerCloseNotify() bool {
	return e.Code == session.ErrCodePeerCloseNotify
}

// TransportError wraps a read failure of the datagram transport.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dtls: %s transport: %s", e.Transport, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
