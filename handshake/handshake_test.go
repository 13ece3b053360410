package handshake

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
)

func TestHandshakeSuite(t *testing.T) {
	suite.Run(t, new(HandshakeSuite))
}

type HandshakeSuite struct {
	suite.Suite
}

func (s *HandshakeSuite) TestTypeToString() {
	assert.Equal(s.T(), "ClientHello(1)", TypeToString(Type_ClientHello))
	assert.Equal(s.T(), "ServerHello(2)", TypeToString(Type_ServerHello))
	assert.Equal(s.T(), "HelloVerifyRequest(3)", TypeToString(Type_HelloVerifyRequest))
	assert.Equal(s.T(), "Certificate(11)", TypeToString(Type_Certificate))
	assert.Equal(s.T(), "ServerKeyExchange(12)", TypeToString(Type_ServerKeyExchange))
	assert.Equal(s.T(), "CertificateRequest(13)", TypeToString(Type_CertificateRequest))
	assert.Equal(s.T(), "ServerHelloDone(14)", TypeToString(Type_ServerHelloDone))
	assert.Equal(s.T(), "CertificateVerify(15)", TypeToString(Type_CertificateVerify))
	assert.Equal(s.T(), "ClientKeyExchange(16)", TypeToString(Type_ClientKeyExchange))
	assert.Equal(s.T(), "Finished(20)", TypeToString(Type_Finished))
	assert.Equal(s.T(), "Unknown(40)", TypeToString(HandshakeType(40)))
}

func (s *HandshakeSuite) TestClientHelloDecode() {
	hb, _ := hex.DecodeString("0100002a000000000000002afefd00000001145b1fb384c7e5ba7585664c931759ab2305c5e5f7b776635e176db600000002c0a80100")
	handshake, err := ParseHandshake(hb)

	require.Nil(s.T(), err)
	require.NotNil(s.T(), handshake.ClientHello)

	assert.Equal(s.T(), Type_ClientHello, handshake.Header.HandshakeType)
	assert.Equal(s.T(), uint32(0x2a), handshake.Header.Length)
	assert.Equal(s.T(), uint16(0), handshake.Header.Sequence)
	assert.Equal(s.T(), uint32(0), handshake.Header.FragmentOfs)
	assert.Equal(s.T(), uint32(0x2a), handshake.Header.FragmentLen)

	assert.Equal(s.T(), common.DtlsVersion12, handshake.ClientHello.version)
	assert.Equal(s.T(), uint32(1), handshake.ClientHello.randomTime)
	assert.Equal(s.T(), "00000001145b1fb384c7e5ba7585664c931759ab2305c5e5f7b776635e176db6", hex.EncodeToString(handshake.ClientHello.randomBytes))
	assert.Equal(s.T(), "", hex.EncodeToString(handshake.ClientHello.sessionId))
	assert.Nil(s.T(), handshake.ClientHello.GetCookie())
	assert.Equal(s.T(), []crypto.CipherSuite{crypto.CipherSuite_TLS_PSK_WITH_AES_128_CCM_8}, handshake.ClientHello.GetCipherSuites())
	assert.Nil(s.T(), handshake.ClientHello.GetExtensions())

	hb, _ = hex.DecodeString("0100004a000100000000004afefd00000001145b1fb384c7e5ba7585664c931759ab2305c5e5f7b776635e176db60020d76679b19ce7b6060c71dd9e55830ca2a8e02652a5b66ebe9a9c652ee75342d80002c0a80100")
	handshake, err = ParseHandshake(hb)

	require.Nil(s.T(), err)
	assert.Equal(s.T(), uint16(1), handshake.Header.Sequence)
	assert.Equal(s.T(), "d76679b19ce7b6060c71dd9e55830ca2a8e02652a5b66ebe9a9c652ee75342d8", hex.EncodeToString(handshake.ClientHello.GetCookie()))
	randTime, _ := handshake.ClientHello.GetRandom()
	assert.Equal(s.T(), time.Unix(1, 0), randTime)
}

func (s *HandshakeSuite) TestClientHelloEncode() {
	random := common.RandomBytes(32)
	cookie := common.RandomBytes(16)

	hs := New(Type_ClientHello)
	err := hs.ClientHello.Init(common.RandomBytes(24), random, cookie, []crypto.CipherSuite{crypto.CipherSuite_TLS_PSK_WITH_AES_128_CCM_8}, []CompressionMethod{CompressionMethod_Null})
	require.Nil(s.T(), err)

	handshake, err := ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)

	assert.Equal(s.T(), uint32(0x52), handshake.Header.Length)
	assert.Equal(s.T(), random, handshake.ClientHello.randomBytes)
	assert.Equal(s.T(), hs.ClientHello.sessionId, handshake.ClientHello.GetSessionId())
	assert.True(s.T(), handshake.ClientHello.HasSessionId())
	assert.Equal(s.T(), cookie, handshake.ClientHello.GetCookie())
	assert.Equal(s.T(), []CompressionMethod{CompressionMethod_Null}, handshake.ClientHello.GetCompressionMethods())
	assert.Nil(s.T(), handshake.ClientHello.GetExtensions())

	assert.NotNil(s.T(), hs.ClientHello.Init(nil, []byte{1}, nil, nil, nil))
}

func (s *HandshakeSuite) TestClientHelloEccExtensions() {
	hs := New(Type_ClientHello)
	_ = hs.ClientHello.Init(nil, common.RandomBytes(32), nil, crypto.CertCipherSuites, []CompressionMethod{CompressionMethod_Null})
	raw := hs.Bytes()

	// supported_groups, ec_point_formats(1, uncompressed), signature_algorithms
	assert.Equal(s.T(), "0016000a000400020017000b00020100000d000400020403", hex.EncodeToString(raw[len(raw)-24:]))

	handshake, err := ParseHandshake(raw)
	require.Nil(s.T(), err)
	require.Equal(s.T(), 3, len(handshake.ClientHello.GetExtensions()))
	assert.Equal(s.T(), Extension_EcPointFormats, handshake.ClientHello.GetExtensions()[1].Type)
	assert.Equal(s.T(), []byte{1, 0}, handshake.ClientHello.GetExtensions()[1].Data)

	assert.Equal(s.T(), crypto.CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, handshake.ClientHello.SelectCipherSuite([]crypto.CipherSuite{crypto.CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256}))
	assert.Equal(s.T(), crypto.CipherSuite(0), handshake.ClientHello.SelectCipherSuite(crypto.PskCipherSuites))
}

func (s *HandshakeSuite) TestCookie() {
	secret := common.RandomBytes(CookieSecretLen)
	hs := New(Type_ClientHello)
	_ = hs.ClientHello.Init(nil, common.RandomBytes(32), nil, crypto.PskCipherSuites, []CompressionMethod{CompressionMethod_Null})

	cookie, err := hs.ClientHello.MakeCookie(secret, "127.0.0.1:5684")
	require.Nil(s.T(), err)
	assert.Equal(s.T(), CookieLen, len(cookie))
	assert.False(s.T(), hs.ClientHello.VerifyCookie(secret, "127.0.0.1:5684"))

	hs.ClientHello.cookie = cookie
	assert.True(s.T(), hs.ClientHello.VerifyCookie(secret, "127.0.0.1:5684"))
	assert.False(s.T(), hs.ClientHello.VerifyCookie(secret, "127.0.0.1:5685"))
	assert.False(s.T(), hs.ClientHello.VerifyCookie(common.RandomBytes(CookieSecretLen), "127.0.0.1:5684"))

	_, err = hs.ClientHello.MakeCookie([]byte{1}, "x")
	assert.NotNil(s.T(), err)
}

func (s *HandshakeSuite) TestHelloVerifyRequest() {
	hb, _ := hex.DecodeString("030000230000000000000023fefd20d76679b19ce7b6060c71dd9e55830ca2a8e02652a5b66ebe9a9c652ee75342d8")
	handshake, err := ParseHandshake(hb)

	require.Nil(s.T(), err)
	require.NotNil(s.T(), handshake.HelloVerifyRequest)
	assert.Equal(s.T(), uint32(0x23), handshake.Header.Length)
	assert.Equal(s.T(), "d76679b19ce7b6060c71dd9e55830ca2a8e02652a5b66ebe9a9c652ee75342d8", hex.EncodeToString(handshake.HelloVerifyRequest.GetCookie()))

	cookie := common.RandomBytes(32)
	hs := New(Type_HelloVerifyRequest)
	hs.HelloVerifyRequest.Init(cookie)
	handshake, err = ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)
	assert.Equal(s.T(), common.DtlsVersion10, handshake.HelloVerifyRequest.version)
	assert.Equal(s.T(), cookie, handshake.HelloVerifyRequest.GetCookie())
}

func (s *HandshakeSuite) TestServerHelloDecode() {
	hb, _ := hex.DecodeString("020000460001000000000046fefd58218d545f4507f138c23097f5e754cf43cff524d0015aceda2be2d3794e1e892058218d541a9e9b958203308bc0d650408a6070dd1f99437db5bcc5d709322a85c0a800")
	handshake, err := ParseHandshake(hb)

	require.Nil(s.T(), err)
	require.NotNil(s.T(), handshake.ServerHello)

	assert.Equal(s.T(), uint16(1), handshake.Header.Sequence)
	assert.Equal(s.T(), uint32(0x58218d54), handshake.ServerHello.randomTime)
	assert.Equal(s.T(), "58218d541a9e9b958203308bc0d650408a6070dd1f99437db5bcc5d709322a85", hex.EncodeToString(handshake.ServerHello.GetSessionId()))
	assert.Equal(s.T(), crypto.CipherSuite_TLS_PSK_WITH_AES_128_CCM_8, handshake.ServerHello.GetCipherSuite())
	assert.Equal(s.T(), CompressionMethod_Null, handshake.ServerHello.GetCompressionMethod())
}

func (s *HandshakeSuite) TestServerHelloEncode() {
	random := common.RandomBytes(32)
	sessionId := common.RandomBytes(32)

	hs := New(Type_ServerHello)
	hs.ServerHello.Init(random, sessionId, crypto.CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8)

	handshake, err := ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)

	assert.Equal(s.T(), uint32(0x46+8), handshake.Header.Length)
	assert.Equal(s.T(), random, handshake.ServerHello.randomBytes)
	assert.Equal(s.T(), sessionId, handshake.ServerHello.GetSessionId())
	assert.Equal(s.T(), crypto.CipherSuite_TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8, handshake.ServerHello.GetCipherSuite())
	assert.Equal(s.T(), 1, len(handshake.ServerHello.extensions))
}

func (s *HandshakeSuite) TestServerHelloDone() {
	hb, _ := hex.DecodeString("0e0000000002000000000000")
	handshake, err := ParseHandshake(hb)

	require.Nil(s.T(), err)
	assert.NotNil(s.T(), handshake.ServerHelloDone)
	assert.Equal(s.T(), uint16(2), handshake.Header.Sequence)
	assert.Equal(s.T(), uint32(0), handshake.Header.Length)
}

func (s *HandshakeSuite) TestClientKeyExchange() {
	hb, _ := hex.DecodeString("1000000a000200000000000a00084964656e74697479")
	handshake, err := ParseHandshake(hb)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), "Identity", string(handshake.ClientKeyExchange.GetIdentity()))

	pub := common.RandomBytes(65)
	hs := New(Type_ClientKeyExchange)
	hs.ClientKeyExchange.InitEcdhe(pub)
	handshake, err = Parse(hs.Bytes(), KeyExchange_Ecdhe)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), uint32(66), handshake.Header.Length)
	assert.Equal(s.T(), pub, handshake.ClientKeyExchange.GetPublicKey())
}

func (s *HandshakeSuite) TestServerKeyExchange() {
	identity := common.RandomBytes(20)
	hs := New(Type_ServerKeyExchange)
	hs.ServerKeyExchange.InitPsk(identity)
	handshake, err := ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)
	assert.Equal(s.T(), uint32(0x16), handshake.Header.Length)
	assert.Equal(s.T(), identity, handshake.ServerKeyExchange.GetIdentity())

	pub := common.RandomBytes(65)
	sig := common.RandomBytes(71)
	hs = New(Type_ServerKeyExchange)
	hs.ServerKeyExchange.InitCert(crypto.EccCurve_P256, pub, sig)
	raw := hs.Bytes()
	assert.Equal(s.T(), "03001741", hex.EncodeToString(raw[HeaderSize:HeaderSize+4]))

	handshake, err = Parse(raw, KeyExchange_Ecdhe)
	require.Nil(s.T(), err)
	assert.True(s.T(), handshake.ServerKeyExchange.IsEcdhe())
	assert.Equal(s.T(), crypto.EccCurve_P256, handshake.ServerKeyExchange.GetCurve())
	assert.Equal(s.T(), pub, handshake.ServerKeyExchange.GetPublicKey())
	assert.Equal(s.T(), sig, handshake.ServerKeyExchange.GetSignature())
	assert.Equal(s.T(), crypto.SignatureAlgorithm_ECDSA_SHA256, handshake.ServerKeyExchange.GetSignatureAlgorithm())
	assert.Equal(s.T(), crypto.EccKeyParams(crypto.EccCurve_P256, pub), handshake.ServerKeyExchange.Params())
}

func (s *HandshakeSuite) TestCertificate() {
	certs := [][]byte{common.RandomBytes(100), common.RandomBytes(50)}
	hs := New(Type_Certificate)
	hs.Certificate.Init(certs)

	handshake, err := ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)
	assert.Equal(s.T(), uint32(3+3+100+3+50), handshake.Header.Length)
	assert.Equal(s.T(), certs, handshake.Certificate.GetCerts())

	raw := hs.Bytes()
	raw[HeaderSize+5] = 0xff
	_, err = ParseHandshake(raw)
	assert.NotNil(s.T(), err)
}

func (s *HandshakeSuite) TestCertificateRequest() {
	hs := New(Type_CertificateRequest)
	hs.CertificateRequest.Init()
	raw := hs.Bytes()
	assert.Equal(s.T(), "0140000204030000", hex.EncodeToString(raw[HeaderSize:]))

	handshake, err := ParseHandshake(raw)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), []uint8{0x40}, handshake.CertificateRequest.GetCertificateTypes())
}

func (s *HandshakeSuite) TestCertificateVerify() {
	sig := common.RandomBytes(70)
	hs := New(Type_CertificateVerify)
	hs.CertificateVerify.Init(sig)

	handshake, err := ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)
	assert.Equal(s.T(), sig, handshake.CertificateVerify.GetSignature())
	assert.Equal(s.T(), crypto.SignatureAlgorithm_ECDSA_SHA256, handshake.CertificateVerify.signatureAlgorithm)
}

func (s *HandshakeSuite) TestFinished() {
	masterSecret, _ := hex.DecodeString("611FB682880654FF7D61BA0072FE8AD628462670E9277318DE1A22AECD52F551AEE1DE3D12A84F82A959B098D46B71A1")
	hash, _ := hex.DecodeString("8A9B2FAC572122376390E4952FD3780246380E89DDCBE1D2FF4290D0039D6557")

	hs := New(Type_Finished)
	hs.Finished.Init(masterSecret, hash, "client")

	handshake, err := ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)
	assert.Equal(s.T(), uint32(0x0c), handshake.Header.Length)
	assert.Equal(s.T(), "31749ff769aa0444ee8f02b2", hex.EncodeToString(handshake.Finished.data))
	assert.True(s.T(), handshake.Finished.Match(masterSecret, hash, "client"))
	assert.False(s.T(), handshake.Finished.Match(masterSecret, hash, "server"))
}

func (s *HandshakeSuite) TestUnknown() {
	hs := New(HandshakeType(0xF1))
	hs.Unknown.Init()

	handshake, err := ParseHandshake(hs.Bytes())
	require.Nil(s.T(), err)
	assert.NotNil(s.T(), handshake.Unknown)
	assert.Equal(s.T(), HandshakeType(0xF1), handshake.Header.HandshakeType)
	assert.Equal(s.T(), uint32(0), handshake.Header.Length)
}

func (s *HandshakeSuite) TestFragments() {
	certs := [][]byte{common.RandomBytes(300)}
	hs := New(Type_Certificate)
	hs.Header.Sequence = 3
	hs.Certificate.Init(certs)

	frags := hs.Fragments(128)
	require.Equal(s.T(), 3, len(frags))

	var all []Fragment
	for _, f := range frags {
		parsed, err := SplitFragments(f)
		require.Nil(s.T(), err)
		all = append(all, parsed...)
	}
	assert.False(s.T(), all[0].Complete())
	assert.Equal(s.T(), uint32(306), all[2].Header.Length)
	assert.Equal(s.T(), uint32(256), all[2].Header.FragmentOfs)
	assert.Equal(s.T(), uint32(50), all[2].Header.FragmentLen)

	body := make([]byte, 0, 306)
	for _, f := range all {
		body = append(body, f.Data...)
	}
	handshake, err := ParseMessage(all[0].Header, body, KeyExchange_Psk)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), uint16(3), handshake.Header.Sequence)
	assert.Equal(s.T(), certs, handshake.Certificate.GetCerts())

	// a fragment is not a complete message
	_, err = ParseHandshake(frags[0])
	assert.ErrorIs(s.T(), err, ErrFragment)

	single := hs.Fragments(1024)
	assert.Equal(s.T(), 1, len(single))
}

func (s *HandshakeSuite) TestSplitMultiple() {
	a := New(Type_ServerHelloDone)
	b := New(Type_Finished)
	b.Finished.data = common.RandomBytes(12)
	raw := append(a.Bytes(), b.Bytes()...)

	frags, err := SplitFragments(raw)
	require.Nil(s.T(), err)
	require.Equal(s.T(), 2, len(frags))
	assert.True(s.T(), frags[1].Complete())
	assert.Equal(s.T(), Type_Finished, frags[1].Header.HandshakeType)

	_, err = SplitFragments(raw[:len(raw)-1])
	assert.NotNil(s.T(), err)
}

func (s *HandshakeSuite) TestMalformed() {
	_, err := ParseHandshake([]byte{1, 0, 0})
	assert.ErrorIs(s.T(), err, ErrMalformed)

	hb, _ := hex.DecodeString("0100002a000000000000002afefd00000001")
	_, err = ParseHandshake(hb)
	assert.NotNil(s.T(), err)
}
