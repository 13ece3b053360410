// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"github.com/qwerty-iot/dtlssocket/crypto"
	"github.com/qwerty-iot/dtlssocket/session"
	"github.com/qwerty-iot/dtlssocket/transport"
)

// Config describes one client socket. Credentials need either a PSK with
// its identity or a private key with its certificate.
type Config struct {
	// Address is the remote "host:port".
	Address string

	// Transport carries the datagrams. When nil the socket creates a UDP
	// handle that is bound on first send, or to BindAddress/BindPort.
	Transport transport.Transport
	// KeepTransport leaves a caller supplied Transport open on teardown.
	KeepTransport bool
	BindAddress   string
	BindPort      int

	Credentials

	// EngineFactory replaces the built-in DTLS engine.
	EngineFactory EngineFactory
	// CipherSuites and Verify tune the built-in engine.
	CipherSuites []crypto.CipherSuite
	Verify       session.VerifyMode
	MaxFragment  int

	// Hooks run in order on a goroutine of their own, never on the
	// socket's event loop, so they may call back into the socket.
	OnSecureConnect func(s *Socket)
	OnError         func(err error)
	OnClose         func(hadError bool)
}
