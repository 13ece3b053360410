package crypto

import (
	"crypto/aes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/record"
)

func TestCryptoSuite(t *testing.T) {
	suite.Run(t, new(CryptoSuite))
}

type CryptoSuite struct {
	suite.Suite
}

func (s *CryptoSuite) TestCreateKeyBlock() {
	psk, _ := hex.DecodeString("0011223344")
	cr, _ := hex.DecodeString("00000001E68D63E65CDEF492AA9877330CA7EEB5C786487F31DAE89452104156")
	sr, _ := hex.DecodeString("5823185CF999576643D2E838C4FCAEAC6AE89C12C9E25517D95FE115C50BF080")

	ms := GenerateMasterSecret(GeneratePskPreMasterSecret(psk), cr, sr)
	kb, err := CreateKeyBlock(CipherSuite_TLS_PSK_WITH_AES_128_CCM_8, ms, cr, sr)

	require.Nil(s.T(), err)
	assert.Equal(s.T(), "1558b8bfc82eb58fdc576021312662f208e68a9e7ddec50d5f47a1841672d4d268e46bebe5a2954d63f1cda811df4faf", hex.EncodeToString(kb.MasterSecret))
	assert.Equal(s.T(), "ce3db22cd0931c3e752176b43eb1939a", hex.EncodeToString(kb.ClientWriteKey))
	assert.Equal(s.T(), "3501b84cf54e2654090e82abefcdccbd", hex.EncodeToString(kb.ServerWriteKey))
	assert.Equal(s.T(), "f21ce4e5", hex.EncodeToString(kb.ClientIV))
	assert.Equal(s.T(), "235a077a", hex.EncodeToString(kb.ServerIV))

	assert.Equal(s.T(), "ClientWriteKey[CE3DB22CD0931C3E752176B43EB1939A], ServerWriteKey[3501B84CF54E2654090E82ABEFCDCCBD], ClientIV[F21CE4E5], ServerIV[235A077A]", kb.Print())
}

func (s *CryptoSuite) TestCreateKeyBlockUnknownSuite() {
	_, err := CreateKeyBlock(CipherSuite(0x1234), make([]byte, 48), nil, nil)
	assert.NotNil(s.T(), err)
}

func (s *CryptoSuite) TestNonce() {
	iv, _ := hex.DecodeString("F21CE4E5")
	nonce := CreateNonce(iv, 1, 0)
	assert.Equal(s.T(), "f21ce4e50001000000000000", hex.EncodeToString(nonce))
}

func (s *CryptoSuite) TestAad() {
	aad := CreateAad(5, 10, 1, 26)
	assert.Equal(s.T(), "000500000000000a01fefd001a", hex.EncodeToString(aad))
	assert.Equal(s.T(), AadAuthLen, len(aad))
}

func (s *CryptoSuite) TestGenerateFinished() {
	ms, _ := hex.DecodeString("20A8A0E9172B0F7A1F370CF082B2FAD79BBC5F0757452B176695124960074985ED9D444A5D188D3397C74B3277EB1B0F")
	hash, _ := hex.DecodeString("777DBBC320A905D5BA76AD9323A986256991DD99FCDD265F4202A39C12C87F8F")

	assert.Equal(s.T(), "8c6ccb73e751bd05b36636af", hex.EncodeToString(GenerateFinished(ms, "client", hash)))
	assert.Equal(s.T(), GeneratePrf(ms, []byte(" finished"), hash, "client", 12), GenerateFinished(ms, "client", hash))
}

func (s *CryptoSuite) TestPskPreMasterSecret() {
	assert.Equal(s.T(), "000300000000030a0b0c", hex.EncodeToString(GeneratePskPreMasterSecret([]byte{0x0a, 0x0b, 0x0c})))
}

func (s *CryptoSuite) TestCcmRfc3610() {
	key, _ := hex.DecodeString("C0C1C2C3C4C5C6C7C8C9CACBCCCDCECF")
	nonce, _ := hex.DecodeString("00000003020100A0A1A2A3A4A5")
	aad, _ := hex.DecodeString("0001020304050607")
	plain, _ := hex.DecodeString("08090A0B0C0D0E0F101112131415161718191A1B1C1D1E")

	block, err := aes.NewCipher(key)
	require.Nil(s.T(), err)
	c, err := NewCCM(block, 8, 13)
	require.Nil(s.T(), err)

	sealed := c.Seal(nil, nonce, plain, aad)
	assert.Equal(s.T(), "588c979a61c663d2f066d0c2c0f989806d5f6b61dac38417e8d12cfdf926e0", hex.EncodeToString(sealed))

	opened, err := c.Open(nil, nonce, sealed, aad)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), plain, opened)

	sealed[0] ^= 0x01
	_, err = c.Open(nil, nonce, sealed, aad)
	assert.NotNil(s.T(), err)
}

func (s *CryptoSuite) TestCcmBadParams() {
	block, _ := aes.NewCipher(make([]byte, 16))
	_, err := NewCCM(block, 7, 12)
	assert.NotNil(s.T(), err)
	_, err = NewCCM(block, 8, 14)
	assert.NotNil(s.T(), err)
}

func (s *CryptoSuite) TestCipherSuites() {
	for _, cs := range append(append([]CipherSuite{}, PskCipherSuites...), CertCipherSuites...) {
		c := GetCipher(cs)
		require.NotNil(s.T(), c, cs.String())
		assert.True(s.T(), cs.NeedPsk() != cs.NeedCert(), cs.String())

		kb := c.KeyBlock(nil, common.RandomBytes(c.KeyBlockSize()))
		data := common.RandomBytes(50)
		rec := record.New(record.ContentType_Appdata, 1, 7, data)

		cipherText, err := c.Encrypt(rec, kb.ClientWriteKey, kb.ClientIV, kb.ClientMac)
		require.Nil(s.T(), err, cs.String())

		in := record.New(record.ContentType_Appdata, 1, 7, cipherText)
		clearText, err := c.Decrypt(in, kb.ClientWriteKey, kb.ClientIV, kb.ClientMac)
		assert.Nil(s.T(), err, cs.String())
		assert.Equal(s.T(), data, clearText, cs.String())

		// a different sequence number changes the additional data
		in = record.New(record.ContentType_Appdata, 1, 8, cipherText)
		_, err = c.Decrypt(in, kb.ClientWriteKey, kb.ClientIV, kb.ClientMac)
		assert.NotNil(s.T(), err, cs.String())

		in = record.New(record.ContentType_Appdata, 1, 7, cipherText[:4])
		_, err = c.Decrypt(in, kb.ClientWriteKey, kb.ClientIV, kb.ClientMac)
		assert.NotNil(s.T(), err, cs.String())
	}
	assert.Nil(s.T(), GetCipher(CipherSuite(0)))
	assert.Equal(s.T(), "TLS_PSK_WITH_AES_128_CCM_8(0xC0A8)", CipherSuite_TLS_PSK_WITH_AES_128_CCM_8.String())
	assert.Equal(s.T(), "Unknown(0x1234)", CipherSuite(0x1234).String())
}

func (s *CryptoSuite) TestCcmRecordLayout() {
	key := common.RandomBytes(16)
	iv := common.RandomBytes(4)
	rec := record.New(record.ContentType_Appdata, 1, 3, []byte("hello"))

	out, err := GetCipher(CipherSuite_TLS_PSK_WITH_AES_128_CCM_8).Encrypt(rec, key, iv, nil)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), 8+5+8, len(out))
	assert.Equal(s.T(), "0001000000000003", hex.EncodeToString(out[:8]))
}

func (s *CryptoSuite) TestExaminePadding() {
	l, good := examinePadding([]byte{1, 2, 3, 2, 2, 2})
	assert.Equal(s.T(), 3, l)
	assert.Equal(s.T(), byte(255), good)

	_, good = examinePadding([]byte{1, 2, 3, 1, 2, 2})
	assert.Equal(s.T(), byte(0), good)

	_, good = examinePadding([]byte{9})
	assert.Equal(s.T(), byte(0), good)
}

func (s *CryptoSuite) TestEcdhe() {
	a, err := NewEccKeypair(EccCurve_P256)
	require.Nil(s.T(), err)
	b, err := NewEccKeypair(EccCurve_P256)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), 65, len(a.PublicKey))

	s1, err := a.SharedSecret(b.PublicKey)
	require.Nil(s.T(), err)
	s2, err := b.SharedSecret(a.PublicKey)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), s1, s2)
	assert.Equal(s.T(), 32, len(s1))

	_, err = a.SharedSecret([]byte{4, 1, 2})
	assert.NotNil(s.T(), err)

	_, err = NewEccKeypair(EccCurve(29))
	assert.ErrorIs(s.T(), err, ErrInvalidCurve)

	params := EccKeyParams(EccCurve_P256, a.PublicKey)
	assert.Equal(s.T(), "03001741", hex.EncodeToString(params[:4]))
}

func (s *CryptoSuite) TestSignatures() {
	keyPem, certPem := testCertificate(s.T())

	key, err := ParsePrivateKey(keyPem)
	require.Nil(s.T(), err)
	certs, err := ParseCertificates(certPem)
	require.Nil(s.T(), err)
	require.Equal(s.T(), 1, len(certs))

	cr := common.RandomBytes(32)
	sr := common.RandomBytes(32)
	params := []byte{3, 0, 0x17, 1, 4}

	sig, err := EccSignKeyParams(cr, sr, params, key)
	require.Nil(s.T(), err)
	assert.Nil(s.T(), EccVerifyKeyParams(cr, sr, params, sig, certs))
	assert.NotNil(s.T(), EccVerifyKeyParams(sr, cr, params, sig, certs))

	hash := sha256.Sum256([]byte("transcript"))
	sig, err = EccSignHash(hash[:], key)
	require.Nil(s.T(), err)
	assert.Nil(s.T(), EccVerifySignature(hash[:], sig, certs))
	assert.ErrorIs(s.T(), EccVerifySignature(hash[:], sig, nil), ErrNoCertificate)

	pool, err := NewCertPool(certPem)
	require.Nil(s.T(), err)
	assert.Nil(s.T(), VerifyChain(certs, pool))
	assert.NotNil(s.T(), VerifyChain(certs, x509.NewCertPool()))
}

func (s *CryptoSuite) TestParseDer() {
	keyPem, certPem := testCertificate(s.T())

	kb, _ := pem.Decode(keyPem)
	_, err := ParsePrivateKey(kb.Bytes)
	assert.Nil(s.T(), err)

	cb, _ := pem.Decode(certPem)
	certs, err := ParseCertificates(cb.Bytes)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), 1, len(certs))

	_, err = ParsePrivateKey([]byte("junk"))
	assert.NotNil(s.T(), err)
	_, err = ParseCertificates([]byte("junk"))
	assert.ErrorIs(s.T(), err, ErrInvalidCert)
}

func (s *CryptoSuite) TestRejectNonP256() {
	k, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	der, _ := x509.MarshalECPrivateKey(k)
	_, err := ParsePrivateKey(der)
	assert.ErrorIs(s.T(), err, ErrPrivateKeyType)
}

func testCertificate(t *testing.T) ([]byte, []byte) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.Nil(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "dtls-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.Nil(t, err)
	keyDer, err := x509.MarshalECPrivateKey(key)
	require.Nil(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer}), pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
