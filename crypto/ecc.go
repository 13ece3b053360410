// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"math/big"

	"github.com/qwerty-iot/dtlssocket/common"
)

type EccCurve uint16

const (
	EccCurve_P256 EccCurve = 0x0017
)

const (
	SignatureAlgorithm_ECDSA_SHA256 uint16 = 0x0403
	namedCurveType                  uint8  = 3
)

var (
	ErrInvalidCurve     = errors.New("dtls: invalid ecc curve")
	ErrInvalidSignature = errors.New("dtls: invalid ecdsa signature")
	ErrSignatureFailed  = errors.New("dtls: signature mismatch")
	ErrNoCertificate    = errors.New("dtls: no certificates")
	ErrUnsupportedKey   = errors.New("dtls: unsupported certificate type")
)

// EccKeypair is an ephemeral ECDHE key, PublicKey is the uncompressed point.
type EccKeypair struct {
	Curve      EccCurve
	PublicKey  []byte
	privateKey *ecdh.PrivateKey
}

func NewEccKeypair(ec EccCurve) (*EccKeypair, error) {
	switch ec {
	case EccCurve_P256:
		key, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &EccKeypair{Curve: ec, PublicKey: key.PublicKey().Bytes(), privateKey: key}, nil
	}
	return nil, ErrInvalidCurve
}

// SharedSecret returns the x coordinate of the ECDH product, the premaster secret.
func (kp *EccKeypair) SharedSecret(peerPublicKey []byte) ([]byte, error) {
	pub, err := ecdh.P256().NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, err
	}
	return kp.privateKey.ECDH(pub)
}

// EccKeyParams encodes ServerECDHParams for a named curve.
func EccKeyParams(ec EccCurve, publicKey []byte) []byte {
	w := common.NewWriter()
	w.PutUint8(namedCurveType)
	w.PutUint16(uint16(ec))
	w.PutUint8(uint8(len(publicKey)))
	w.PutBytes(publicKey)
	return w.Bytes()
}

func eccKeyParamsHash(clientRandom, serverRandom, params []byte) []byte {
	h := sha256.New()
	h.Write(clientRandom)
	h.Write(serverRandom)
	h.Write(params)
	return h.Sum(nil)
}

func EccSignKeyParams(clientRandom, serverRandom, params []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, privateKey, eccKeyParamsHash(clientRandom, serverRandom, params))
}

func EccVerifyKeyParams(clientRandom, serverRandom, params []byte, sig []byte, certs [][]byte) error {
	return EccVerifySignature(eccKeyParamsHash(clientRandom, serverRandom, params), sig, certs)
}

// EccSignHash signs a precomputed digest, CertificateVerify signs the transcript hash.
func EccSignHash(hash []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, privateKey, hash)
}

type ecdsaSignature struct {
	R, S *big.Int
}

// EccVerifySignature checks sig over hash against the leaf of certs.
func EccVerifySignature(hash []byte, sig []byte, certs [][]byte) error {
	if len(certs) == 0 {
		return ErrNoCertificate
	}
	cert, err := x509.ParseCertificate(certs[0])
	if err != nil {
		return err
	}

	switch p := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		ecdsaSig := &ecdsaSignature{}
		if _, err := asn1.Unmarshal(sig, ecdsaSig); err != nil {
			return err
		}
		if ecdsaSig.R == nil || ecdsaSig.S == nil || ecdsaSig.R.Sign() <= 0 || ecdsaSig.S.Sign() <= 0 {
			return ErrInvalidSignature
		}
		if !ecdsa.Verify(p, hash, ecdsaSig.R, ecdsaSig.S) {
			return ErrSignatureFailed
		}
		return nil
	}
	return ErrUnsupportedKey
}
