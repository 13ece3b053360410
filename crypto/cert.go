// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
)

var (
	ErrInvalidPrivateKey = errors.New("dtls: private key has invalid format")
	ErrPrivateKeyType    = errors.New("dtls: invalid private key type")
	ErrInvalidCert       = errors.New("dtls: certificate has invalid format")
)

// ParsePrivateKey accepts a PEM or DER encoded P-256 ECDSA key in SEC1 or PKCS8 form.
func ParsePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if !strings.HasSuffix(block.Type, "PRIVATE KEY") {
			return nil, ErrInvalidPrivateKey
		}
		der = block.Bytes
	}

	var key *ecdsa.PrivateKey
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		key = k
	} else if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		ek, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, ErrPrivateKeyType
		}
		key = ek
	} else {
		return nil, ErrInvalidPrivateKey
	}

	if key.Curve != elliptic.P256() {
		return nil, ErrPrivateKeyType
	}
	return key, nil
}

// ParseCertificates returns the DER blocks of a PEM bundle, or data itself
// when it is a single DER certificate.
func ParseCertificates(data []byte) ([][]byte, error) {
	var certs [][]byte
	rest := data
	for {
		block, r := pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, ErrInvalidCert
		}
		certs = append(certs, block.Bytes)
		rest = r
	}
	if len(certs) == 0 {
		if _, err := x509.ParseCertificate(data); err != nil {
			return nil, ErrInvalidCert
		}
		certs = append(certs, data)
	}
	return certs, nil
}

func NewCertPool(data []byte) (*x509.CertPool, error) {
	certs, err := ParseCertificates(data)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	for _, der := range certs {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, err
		}
		pool.AddCert(c)
	}
	return pool, nil
}

// VerifyChain validates a peer's certificate chain (leaf first) against roots.
func VerifyChain(chain [][]byte, roots *x509.CertPool) error {
	if len(chain) == 0 {
		return ErrNoCertificate
	}
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return err
	}
	intermediates := x509.NewCertPool()
	for _, der := range chain[1:] {
		if c, err := x509.ParseCertificate(der); err == nil {
			intermediates.AddCert(c)
		}
	}
	_, err = leaf.Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny}})
	return err
}
