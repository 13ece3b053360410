// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"errors"
	"fmt"

	"github.com/qwerty-iot/dtlssocket/alert"
	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
	"github.com/qwerty-iot/dtlssocket/handshake"
	"github.com/qwerty-iot/dtlssocket/keystore"
	"github.com/qwerty-iot/dtlssocket/record"
)

type step uint8

const (
	stepClientHello step = iota
	stepServerHello
	stepCertificate
	stepServerKeyExchange
	stepCertificateRequest
	stepServerHelloDone
	stepClientCertificate
	stepClientKeyExchange
	stepCertificateVerify
	stepChangeCipherSpec
	stepFinished
	stepDone
)

var errNoTrustAnchor = errors.New("dtls: no ca certificate configured")

// message is a handshake message under reassembly.
type message struct {
	header handshake.Header
	body   []byte
	have   []bool
	filled int
}

func (m *message) add(f handshake.Fragment) {
	ofs := int(f.Header.FragmentOfs)
	copy(m.body[ofs:], f.Data)
	for i := range f.Data {
		if !m.have[ofs+i] {
			m.have[ofs+i] = true
			m.filled++
		}
	}
}

func (m *message) complete() bool {
	return m.filled == len(m.body)
}

func (s *Session) handleHandshakeRecord(rec *record.Record) {
	frags, err := handshake.SplitFragments(rec.Data)
	if err != nil {
		s.logDebug("dropping handshake record: %s", err.Error())
		return
	}
	for _, f := range frags {
		if s.Type == TypeServer && s.hs.step == stepClientHello {
			s.handleInitialClientHello(rec, f)
			if !s.active() {
				return
			}
			continue
		}
		seq := f.Header.Sequence
		switch {
		case seq < s.hs.recvSeq:
			s.hs.dupSeen = true
		case seq >= s.hs.recvSeq+maxBufferedMessages:
			s.logDebug("dropping handshake fragment seq[%d], expecting %d", seq, s.hs.recvSeq)
		default:
			s.bufferFragment(f)
		}
	}
	s.processPending()
}

func (s *Session) bufferFragment(f handshake.Fragment) {
	m := s.hs.pending[f.Header.Sequence]
	if m == nil {
		if f.Header.Length > maxHandshakeMessageBytes {
			s.logDebug("dropping oversized handshake message of %d bytes", f.Header.Length)
			return
		}
		m = &message{header: f.Header, body: make([]byte, f.Header.Length), have: make([]bool, f.Header.Length)}
		s.hs.pending[f.Header.Sequence] = m
	}
	if m.header.HandshakeType != f.Header.HandshakeType || m.header.Length != f.Header.Length {
		s.logDebug("dropping inconsistent handshake fragment %s", f.Header.Print())
		return
	}
	m.add(f)
}

// processPending hands complete messages to the state machine in message
// sequence order.
func (s *Session) processPending() {
	for s.active() {
		m := s.hs.pending[s.hs.recvSeq]
		if m == nil || !m.complete() {
			return
		}
		delete(s.hs.pending, s.hs.recvSeq)
		s.hs.recvSeq++
		s.processMessage(m.header, m.body)
	}
}

func (s *Session) processMessage(header handshake.Header, body []byte) {
	header.FragmentOfs = 0
	header.FragmentLen = header.Length

	msg, err := handshake.ParseMessage(header, body, s.hs.kx)
	if err != nil {
		s.fail(ErrCodeBadInputData, alert.DescDecodeError, "decode %s: %s", handshake.TypeToString(header.HandshakeType), err.Error())
		return
	}
	if common.DebugHandshake {
		s.logDebug("read %s", msg.Print())
	}

	if s.state == stateEstablished {
		s.logInfo("ignoring %s on established session", handshake.TypeToString(header.HandshakeType))
		return
	}

	// the cookie exchange stays out of the transcript, a server that skips
	// it makes the first hello part of it
	if header.HandshakeType == handshake.Type_ServerHello && s.hs.initialHello != nil {
		s.hs.transcript.Write(s.hs.initialHello)
	}
	s.hs.initialHello = nil
	before := s.hs.transcript.Sum(nil)
	if header.HandshakeType != handshake.Type_HelloVerifyRequest {
		s.hs.transcript.Write(header.Bytes())
		s.hs.transcript.Write(body)
	}

	if s.Type == TypeClient {
		s.clientMessage(msg, before)
	} else {
		s.serverMessage(msg, before)
	}
}

func (s *Session) unexpected(msg *handshake.Handshake) {
	s.fail(ErrCodeUnexpectedMessage, alert.DescUnexpectedMessage, "unexpected %s", handshake.TypeToString(msg.Header.HandshakeType))
}

func (s *Session) handleChangeCipherSpec(rec *record.Record) {
	if s.hs.step != stepChangeCipherSpec {
		s.logDebug("ignoring change cipher spec")
		return
	}
	if len(rec.Data) != 1 || rec.Data[0] != 0x01 || s.keyBlock == nil {
		s.fail(ErrCodeUnexpectedMessage, alert.DescUnexpectedMessage, "invalid change cipher spec")
		return
	}
	s.readEpoch = 1
	s.hs.step = stepFinished
}

// verifyPeer checks a certificate chain against the configured roots.
// It returns false when the session failed.
func (s *Session) verifyPeer(certs [][]byte) bool {
	s.PeerCertificates = certs
	if s.cfg.Verify == VerifyNone {
		return true
	}
	var err error
	if s.creds.roots == nil {
		err = errNoTrustAnchor
	} else {
		err = crypto.VerifyChain(certs, s.creds.roots)
	}
	if err == nil {
		return true
	}
	if s.cfg.Verify == VerifyRequired {
		s.fail(ErrCodePeerVerifyFailed, alert.DescBadCertificate, "peer certificate: %s", err.Error())
		return false
	}
	s.logInfo("peer certificate not verified: %s", err.Error())
	return true
}

// establish installs the key block for the negotiated suite.
func (s *Session) establish(preMasterSecret []byte) bool {
	s.masterSecret = crypto.GenerateMasterSecret(preMasterSecret, s.clientRandom, s.serverRandom)
	kb, err := crypto.CreateKeyBlock(s.CipherSuite, s.masterSecret, s.clientRandom, s.serverRandom)
	if err != nil {
		s.fail(ErrCodeInternalError, alert.DescInternalError, "key block: %s", err.Error())
		return false
	}
	s.keyBlock = kb
	if common.DebugEncryption {
		s.logDebug("%s", kb.Print())
	}
	return true
}

func (s *Session) selectCipherSuite(cs crypto.CipherSuite) {
	s.CipherSuite = cs
	s.cipher = crypto.GetCipher(cs)
	if cs.NeedCert() {
		s.hs.kx = handshake.KeyExchange_Ecdhe
	} else {
		s.hs.kx = handshake.KeyExchange_Psk
	}
}

func (s *Session) completed() {
	s.state = stateEstablished
	s.hs.step = stepDone
	s.hs.pending = make(map[uint16]*message)
	s.stopTimer()
	s.logInfo("handshake complete, suite %s identity[%s]", s.CipherSuite, s.Identity)
	s.queue(func() {
		if s.cb.HandshakeComplete != nil {
			s.cb.HandshakeComplete()
		}
	})
}

func (s *Session) lookupPsk(identity string) []byte {
	if s.cfg.KeyStore != nil {
		psk, err := s.cfg.KeyStore.GetPsk(identity, s.cfg.Peer)
		if err != nil {
			s.logWarn("keystore lookup for %s: %s", identity, err.Error())
		}
		if psk != nil {
			return psk
		}
	} else if psk := keystore.GetPsk(identity, s.cfg.Peer); psk != nil {
		return psk
	}
	if len(s.creds.psk) > 0 && (len(s.creds.pskId) == 0 || string(s.creds.pskId) == identity) {
		return s.creds.psk
	}
	return nil
}

// client side

func (s *Session) sendClientHello() {
	msg := handshake.New(handshake.Type_ClientHello)
	err := msg.ClientHello.Init(nil, s.clientRandom, s.hs.cookie, s.creds.suites, []handshake.CompressionMethod{handshake.CompressionMethod_Null})
	if err != nil {
		s.fail(ErrCodeInternalError, noAlert, "client hello: %s", err.Error())
		return
	}
	s.hs.flight = nil
	s.addHandshake(msg, 0, len(s.hs.cookie) > 0)
	if len(s.hs.cookie) == 0 {
		s.hs.initialHello = msg.Bytes()
	}
	s.hs.step = stepServerHello
	s.transmit()
}

func (s *Session) offered(cs crypto.CipherSuite) bool {
	for _, o := range s.creds.suites {
		if o == cs {
			return true
		}
	}
	return false
}

func (s *Session) clientMessage(msg *handshake.Handshake, before []byte) {
	switch msg.Header.HandshakeType {
	case handshake.Type_HelloVerifyRequest:
		if s.hs.step != stepServerHello || len(s.hs.cookie) > 0 {
			s.unexpected(msg)
			return
		}
		s.hs.cookie = msg.HelloVerifyRequest.GetCookie()
		s.logDebug("received cookie [%X]", s.hs.cookie)
		s.sendClientHello()

	case handshake.Type_ServerHello:
		if s.hs.step != stepServerHello {
			s.unexpected(msg)
			return
		}
		sh := msg.ServerHello
		if sh.GetVersion() != common.DtlsVersion12 {
			s.fail(ErrCodeBadHsVersion, alert.DescProtocolVersion, "unsupported server version %X", sh.GetVersion())
			return
		}
		if !s.offered(sh.GetCipherSuite()) {
			s.fail(ErrCodeNoCipherChosen, alert.DescIllegalParameter, "server chose %s which was not offered", sh.GetCipherSuite())
			return
		}
		_, s.serverRandom = sh.GetRandom()
		s.Id = sh.GetSessionId()
		s.selectCipherSuite(sh.GetCipherSuite())
		if s.CipherSuite.NeedCert() {
			s.hs.step = stepCertificate
		} else {
			s.hs.step = stepServerKeyExchange
		}

	case handshake.Type_Certificate:
		if s.hs.step != stepCertificate {
			s.unexpected(msg)
			return
		}
		certs := msg.Certificate.GetCerts()
		if len(certs) == 0 {
			s.fail(ErrCodeBadHsCertificate, alert.DescBadCertificate, "server sent no certificate")
			return
		}
		if !s.verifyPeer(certs) {
			return
		}
		s.hs.step = stepServerKeyExchange

	case handshake.Type_ServerKeyExchange:
		if s.hs.step != stepServerKeyExchange {
			s.unexpected(msg)
			return
		}
		ske := msg.ServerKeyExchange
		if ske.IsEcdhe() {
			if ske.GetCurve() != crypto.EccCurve_P256 || ske.GetSignatureAlgorithm() != crypto.SignatureAlgorithm_ECDSA_SHA256 {
				s.fail(ErrCodeBadInputData, alert.DescIllegalParameter, "unsupported curve %d or signature %X", ske.GetCurve(), ske.GetSignatureAlgorithm())
				return
			}
			if err := crypto.EccVerifyKeyParams(s.clientRandom, s.serverRandom, ske.Params(), ske.GetSignature(), s.PeerCertificates); err != nil {
				s.fail(ErrCodePeerVerifyFailed, alert.DescDecryptError, "server key exchange signature: %s", err.Error())
				return
			}
			s.hs.peerPublicKey = ske.GetPublicKey()
		} else {
			s.logDebug("server identity hint [%s]", ske.GetIdentity())
		}
		s.hs.step = stepCertificateRequest

	case handshake.Type_CertificateRequest:
		if s.hs.step != stepCertificateRequest || !s.CipherSuite.NeedCert() {
			s.unexpected(msg)
			return
		}
		s.hs.certRequested = true
		s.hs.step = stepServerHelloDone

	case handshake.Type_ServerHelloDone:
		ok := s.hs.step == stepCertificateRequest || s.hs.step == stepServerHelloDone ||
			(s.hs.step == stepServerKeyExchange && !s.CipherSuite.NeedCert())
		if !ok {
			s.unexpected(msg)
			return
		}
		s.sendClientFinished()

	case handshake.Type_Finished:
		if s.hs.step != stepFinished {
			s.unexpected(msg)
			return
		}
		if !msg.Finished.Match(s.masterSecret, before, "server") {
			s.fail(ErrCodeBadHsFinished, alert.DescDecryptError, "server finished does not match")
			return
		}
		s.hs.flight = nil
		s.completed()

	default:
		s.unexpected(msg)
	}
}

func (s *Session) sendClientFinished() {
	s.hs.flight = nil

	if s.hs.certRequested {
		cert := handshake.New(handshake.Type_Certificate)
		var chain [][]byte
		if s.creds.key != nil {
			chain = s.creds.certs
		}
		cert.Certificate.Init(chain)
		s.addHandshake(cert, 0, true)
	}

	var preMasterSecret []byte
	cke := handshake.New(handshake.Type_ClientKeyExchange)
	if s.CipherSuite.NeedCert() {
		kp, err := crypto.NewEccKeypair(crypto.EccCurve_P256)
		if err != nil {
			s.fail(ErrCodeInternalError, alert.DescInternalError, "ecdhe keypair: %s", err.Error())
			return
		}
		preMasterSecret, err = kp.SharedSecret(s.hs.peerPublicKey)
		if err != nil {
			s.fail(ErrCodeBadInputData, alert.DescIllegalParameter, "ecdhe: %s", err.Error())
			return
		}
		cke.ClientKeyExchange.InitEcdhe(kp.PublicKey)
	} else {
		s.Identity = string(s.creds.pskId)
		preMasterSecret = crypto.GeneratePskPreMasterSecret(s.creds.psk)
		cke.ClientKeyExchange.InitPsk(s.creds.pskId)
	}
	s.addHandshake(cke, 0, true)

	if !s.establish(preMasterSecret) {
		return
	}

	if s.hs.certRequested && s.creds.key != nil && len(s.creds.certs) > 0 {
		sig, err := crypto.EccSignHash(s.hs.transcript.Sum(nil), s.creds.key)
		if err != nil {
			s.fail(ErrCodeInternalError, alert.DescInternalError, "certificate verify: %s", err.Error())
			return
		}
		cv := handshake.New(handshake.Type_CertificateVerify)
		cv.CertificateVerify.Init(sig)
		s.addHandshake(cv, 0, true)
	}

	s.addChangeCipherSpec()

	fin := handshake.New(handshake.Type_Finished)
	fin.Finished.Init(s.masterSecret, s.hs.transcript.Sum(nil), "client")
	s.addHandshake(fin, 1, true)

	s.hs.step = stepChangeCipherSpec
	s.transmit()
}

// server side

// handleInitialClientHello answers a ClientHello without holding state
// until it echoes a valid cookie.
func (s *Session) handleInitialClientHello(rec *record.Record, f handshake.Fragment) {
	if f.Header.HandshakeType != handshake.Type_ClientHello || !f.Complete() {
		s.logDebug("dropping %s while waiting for client hello", handshake.TypeToString(f.Header.HandshakeType))
		return
	}
	msg, err := handshake.ParseMessage(f.Header, f.Data, handshake.KeyExchange_Psk)
	if err != nil {
		s.logDebug("dropping client hello: %s", err.Error())
		return
	}
	ch := msg.ClientHello
	if ch.GetVersion() != common.DtlsVersion12 && ch.GetVersion() != common.DtlsVersion10 {
		s.fail(ErrCodeBadHsVersion, alert.DescProtocolVersion, "unsupported client version %X", ch.GetVersion())
		return
	}

	if !ch.VerifyCookie(s.cfg.CookieSecret, s.cfg.Peer) {
		cookie, err := ch.MakeCookie(s.cfg.CookieSecret, s.cfg.Peer)
		if err != nil {
			s.fail(ErrCodeInternalError, noAlert, "cookie: %s", err.Error())
			return
		}
		hvr := handshake.New(handshake.Type_HelloVerifyRequest)
		hvr.HelloVerifyRequest.Init(cookie)
		hvr.Header.Sequence = f.Header.Sequence
		s.logDebug("write %s", hvr.Print())
		s.output(record.New(record.ContentType_Handshake, 0, rec.Sequence, hvr.Bytes()).Bytes())
		return
	}

	s.hs.recvSeq = f.Header.Sequence + 1
	s.hs.sendSeq = f.Header.Sequence
	s.writeSeq[0] = rec.Sequence
	s.hs.transcript.Write(f.Header.Bytes())
	s.hs.transcript.Write(f.Data)
	_, s.clientRandom = ch.GetRandom()

	cs := ch.SelectCipherSuite(s.creds.suites)
	if cs == 0 {
		s.fail(ErrCodeNoCipherChosen, alert.DescHandshakeFailure, "no cipher suite in common")
		return
	}
	s.selectCipherSuite(cs)
	s.sendServerHello()
}

func (s *Session) sendServerHello() {
	s.hs.flight = nil

	sh := handshake.New(handshake.Type_ServerHello)
	sh.ServerHello.Init(s.serverRandom, s.Id, s.CipherSuite)
	s.addHandshake(sh, 0, true)

	if s.CipherSuite.NeedCert() {
		cert := handshake.New(handshake.Type_Certificate)
		cert.Certificate.Init(s.creds.certs)
		s.addHandshake(cert, 0, true)

		kp, err := crypto.NewEccKeypair(crypto.EccCurve_P256)
		if err != nil {
			s.fail(ErrCodeInternalError, alert.DescInternalError, "ecdhe keypair: %s", err.Error())
			return
		}
		s.hs.ecc = kp
		sig, err := crypto.EccSignKeyParams(s.clientRandom, s.serverRandom, crypto.EccKeyParams(kp.Curve, kp.PublicKey), s.creds.key)
		if err != nil {
			s.fail(ErrCodeInternalError, alert.DescInternalError, "sign key exchange: %s", err.Error())
			return
		}
		ske := handshake.New(handshake.Type_ServerKeyExchange)
		ske.ServerKeyExchange.InitCert(kp.Curve, kp.PublicKey, sig)
		s.addHandshake(ske, 0, true)

		if s.cfg.RequestClientCert {
			cr := handshake.New(handshake.Type_CertificateRequest)
			cr.CertificateRequest.Init()
			s.addHandshake(cr, 0, true)
			s.hs.certRequested = true
		}
	}

	shd := handshake.New(handshake.Type_ServerHelloDone)
	shd.ServerHelloDone.Init()
	s.addHandshake(shd, 0, true)

	if s.hs.certRequested {
		s.hs.step = stepClientCertificate
	} else {
		s.hs.step = stepClientKeyExchange
	}
	s.transmit()
}

func (s *Session) serverMessage(msg *handshake.Handshake, before []byte) {
	switch msg.Header.HandshakeType {
	case handshake.Type_ClientHello:
		s.logInfo("ignoring renegotiation attempt")

	case handshake.Type_Certificate:
		if s.hs.step != stepClientCertificate {
			s.unexpected(msg)
			return
		}
		certs := msg.Certificate.GetCerts()
		if len(certs) == 0 {
			if s.cfg.Verify == VerifyRequired {
				s.fail(ErrCodePeerVerifyFailed, alert.DescHandshakeFailure, "client sent no certificate")
				return
			}
		} else if !s.verifyPeer(certs) {
			return
		}
		s.hs.peerSentCert = len(certs) > 0
		s.hs.step = stepClientKeyExchange

	case handshake.Type_ClientKeyExchange:
		if s.hs.step != stepClientKeyExchange {
			s.unexpected(msg)
			return
		}
		var preMasterSecret []byte
		if s.CipherSuite.NeedCert() {
			var err error
			preMasterSecret, err = s.hs.ecc.SharedSecret(msg.ClientKeyExchange.GetPublicKey())
			if err != nil {
				s.fail(ErrCodeBadInputData, alert.DescIllegalParameter, "ecdhe: %s", err.Error())
				return
			}
		} else {
			s.Identity = string(msg.ClientKeyExchange.GetIdentity())
			psk := s.lookupPsk(s.Identity)
			if psk == nil {
				s.fail(ErrCodeUnknownIdentity, alert.DescUnknownPskIdentity, "no valid psk for identity [%s]", s.Identity)
				return
			}
			preMasterSecret = crypto.GeneratePskPreMasterSecret(psk)
		}
		if !s.establish(preMasterSecret) {
			return
		}
		if s.hs.peerSentCert {
			s.hs.step = stepCertificateVerify
		} else {
			s.hs.step = stepChangeCipherSpec
		}

	case handshake.Type_CertificateVerify:
		if s.hs.step != stepCertificateVerify {
			s.unexpected(msg)
			return
		}
		if err := crypto.EccVerifySignature(before, msg.CertificateVerify.GetSignature(), s.PeerCertificates); err != nil {
			s.fail(ErrCodePeerVerifyFailed, alert.DescDecryptError, "certificate verify: %s", err.Error())
			return
		}
		s.hs.step = stepChangeCipherSpec

	case handshake.Type_Finished:
		if s.hs.step != stepFinished {
			s.unexpected(msg)
			return
		}
		if !msg.Finished.Match(s.masterSecret, before, "client") {
			s.fail(ErrCodeBadHsFinished, alert.DescDecryptError, "client finished does not match")
			return
		}
		s.hs.flight = nil
		s.addChangeCipherSpec()
		fin := handshake.New(handshake.Type_Finished)
		fin.Finished.Init(s.masterSecret, s.hs.transcript.Sum(nil), "server")
		s.addHandshake(fin, 1, true)
		s.sendFlight()
		if s.active() {
			s.completed()
		}

	default:
		s.unexpected(msg)
	}
}

// IsClientHello reports whether data opens with an unencrypted ClientHello
// starting a new handshake, which on an established server session means
// the client restarted.
func IsClientHello(data []byte) bool {
	rec, _, err := record.Parse(data)
	if err != nil || rec.Epoch != 0 || !rec.IsHandshake() {
		return false
	}
	frags, err := handshake.SplitFragments(rec.Data)
	if err != nil || len(frags) == 0 {
		return false
	}
	return frags[0].Header.HandshakeType == handshake.Type_ClientHello && frags[0].Header.Sequence == 0
}

func (s *Session) String() string {
	return fmt.Sprintf("type[%s] peer[%s] suite[%s] identity[%s] id[%X]", s.Type, s.cfg.Peer, s.CipherSuite, s.Identity, s.Id)
}
