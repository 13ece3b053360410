// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"github.com/qwerty-iot/dtlssocket/crypto"
	"github.com/qwerty-iot/dtlssocket/session"
)

// Engine is the handshake and record layer behind a Socket. The socket
// calls it from one goroutine at a time and never after Close.
type Engine interface {
	// Connect starts the handshake.
	Connect()
	// Send encrypts application data, the ciphertext leaves through
	// EngineCallbacks.SendEncrypted.
	Send(data []byte)
	// Receive consumes a datagram and returns any application data in it.
	Receive(data []byte) []byte
	// Close shuts the session down and reports true when nothing was
	// sent, so the transport may close at once.
	Close() (noSend bool)
}

// EngineCallbacks are handed to the engine at construction. Defer posts fn
// to the socket's event loop, engines use it for their timers.
type EngineCallbacks struct {
	SendEncrypted     func(data []byte)
	HandshakeComplete func()
	Error             func(code int, msg string)
	Defer             func(fn func())
}

// Credentials carry the key material. Key, Certificate and CACertificate
// are PEM or DER.
type Credentials struct {
	Key           []byte
	Certificate   []byte
	CACertificate []byte
	PSK           []byte
	PSKIdentity   []byte
	DebugLevel    int
}

func (c *Credentials) valid() bool {
	return len(c.PSK) > 0 || len(c.Key) > 0
}

type EngineFactory func(creds Credentials, cb EngineCallbacks) (Engine, error)

// EngineOptions tune the built-in engine.
type EngineOptions struct {
	CipherSuites []crypto.CipherSuite
	Verify       session.VerifyMode
	MaxFragment  int
	Peer         string
}

// NewSessionEngineFactory returns a factory for client sessions of the
// built-in engine.
func NewSessionEngineFactory(opts EngineOptions) EngineFactory {
	return func(creds Credentials, cb EngineCallbacks) (Engine, error) {
		s, err := session.New(session.Config{
			Type:          session.TypeClient,
			Key:           creds.Key,
			Certificate:   creds.Certificate,
			CACertificate: creds.CACertificate,
			PSK:           creds.PSK,
			PSKIdentity:   creds.PSKIdentity,
			CipherSuites:  opts.CipherSuites,
			Verify:        opts.Verify,
			MaxFragment:   opts.MaxFragment,
			Peer:          opts.Peer,
			DebugLevel:    creds.DebugLevel,
		}, session.Callbacks{
			SendEncrypted:     cb.SendEncrypted,
			HandshakeComplete: cb.HandshakeComplete,
			Error:             cb.Error,
			Defer:             cb.Defer,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

var _ Engine = (*session.Session)(nil)
