// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"crypto/ecdsa"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
	"github.com/qwerty-iot/dtlssocket/handshake"
	"github.com/qwerty-iot/dtlssocket/keystore"
)

type Type string

const (
	TypeServer Type = "server"
	TypeClient Type = "client"
)

// VerifyMode controls what a failed peer certificate check does.
type VerifyMode int

const (
	// VerifyOptional logs a failed chain check and continues.
	VerifyOptional VerifyMode = iota
	// VerifyRequired aborts the handshake on a failed or missing chain.
	VerifyRequired
	// VerifyNone skips the chain check.
	VerifyNone
)

const (
	DefaultMaxFragment       = 1024
	DefaultRetransmitMin     = time.Second
	DefaultRetransmitMax     = 60 * time.Second
	DefaultMaxDatagram       = 1400
	maxBufferedMessages      = 16
	maxHandshakeMessageBytes = 1 << 16
)

var (
	ErrNoCredentials   = errors.New("dtls: no psk or key configured")
	ErrNoIdentity      = errors.New("dtls: psk requires an identity")
	ErrNoCertificate   = errors.New("dtls: key requires a certificate")
	ErrNoCipherSuites  = errors.New("dtls: no usable cipher suites")
	ErrUnsupportedType = errors.New("dtls: unsupported session type")
)

type Config struct {
	Type Type

	// Key is a P-256 ECDSA private key, Certificate its chain (leaf first)
	// and CACertificate the trust anchors for the peer, all PEM or DER.
	Key           []byte
	Certificate   []byte
	CACertificate []byte

	PSK         []byte
	PSKIdentity []byte

	// KeyStore resolves client identities on servers, the process wide
	// keystore.GetPsk is used when nil.
	KeyStore keystore.KeyStore

	CipherSuites      []crypto.CipherSuite
	Verify            VerifyMode
	RequestClientCert bool

	// Peer names the remote endpoint in logs and binds server cookies.
	Peer         string
	CookieSecret []byte

	MaxFragment   int
	MaxDatagram   int
	RetransmitMin time.Duration
	RetransmitMax time.Duration

	// DebugLevel raises this session's log verbosity: 1 info, 2 and up debug.
	DebugLevel int
}

// credentials is the parsed form of the key material in Config.
type credentials struct {
	key    *ecdsa.PrivateKey
	certs  [][]byte
	roots  *x509.CertPool
	psk    []byte
	pskId  []byte
	suites []crypto.CipherSuite
}

func loadCredentials(cfg *Config) (*credentials, error) {
	c := &credentials{psk: cfg.PSK, pskId: cfg.PSKIdentity}

	if len(cfg.Key) > 0 {
		key, err := crypto.ParsePrivateKey(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("dtls: load key: %w", err)
		}
		c.key = key
	}
	if len(cfg.Certificate) > 0 {
		certs, err := crypto.ParseCertificates(cfg.Certificate)
		if err != nil {
			return nil, fmt.Errorf("dtls: load certificate: %w", err)
		}
		c.certs = certs
	}
	if len(cfg.CACertificate) > 0 {
		roots, err := crypto.NewCertPool(cfg.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("dtls: load ca certificate: %w", err)
		}
		c.roots = roots
	}

	switch cfg.Type {
	case TypeClient:
		if c.key == nil && len(c.psk) == 0 {
			return nil, ErrNoCredentials
		}
		if len(c.psk) > 0 && len(c.pskId) == 0 {
			return nil, ErrNoIdentity
		}
	case TypeServer:
		if c.key != nil && len(c.certs) == 0 {
			return nil, ErrNoCertificate
		}
	default:
		return nil, ErrUnsupportedType
	}

	c.suites = c.usableSuites(cfg.Type, cfg.CipherSuites)
	if len(c.suites) == 0 {
		return nil, ErrNoCipherSuites
	}
	return c, nil
}

// usableSuites filters the requested suites, or the defaults, down to the
// ones the loaded material can serve. Certificate suites come first.
func (c *credentials) usableSuites(t Type, requested []crypto.CipherSuite) []crypto.CipherSuite {
	if len(requested) == 0 {
		requested = append(append([]crypto.CipherSuite{}, crypto.CertCipherSuites...), crypto.PskCipherSuites...)
	}
	var out []crypto.CipherSuite
	for _, cs := range requested {
		switch {
		case cs.NeedCert():
			if c.key == nil || (t == TypeServer && len(c.certs) == 0) {
				continue
			}
		case cs.NeedPsk():
			// servers look psks up per identity
			if t == TypeClient && len(c.psk) == 0 {
				continue
			}
		default:
			continue
		}
		out = append(out, cs)
	}
	return out
}

func (cfg *Config) setDefaults() {
	if cfg.MaxFragment <= 0 {
		cfg.MaxFragment = DefaultMaxFragment
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = DefaultMaxDatagram
	}
	if cfg.RetransmitMin <= 0 {
		cfg.RetransmitMin = DefaultRetransmitMin
	}
	if cfg.RetransmitMax < cfg.RetransmitMin {
		cfg.RetransmitMax = DefaultRetransmitMax
		if cfg.RetransmitMax < cfg.RetransmitMin {
			cfg.RetransmitMax = cfg.RetransmitMin
		}
	}
	if cfg.Type == TypeServer && len(cfg.CookieSecret) != handshake.CookieSecretLen {
		cfg.CookieSecret = common.RandomBytes(handshake.CookieSecretLen)
	}
}
