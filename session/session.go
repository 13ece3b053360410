// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"time"

	"github.com/qwerty-iot/dtlssocket/alert"
	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
	"github.com/qwerty-iot/dtlssocket/handshake"
	"github.com/qwerty-iot/dtlssocket/record"
)

// Callbacks connect a session to its owner. SendEncrypted may be called
// from inside any method, HandshakeComplete and Error only as the last
// action of one. Defer runs fn on the owner's serialized context; timers
// use it so that the owner never sees concurrent calls.
type Callbacks struct {
	SendEncrypted     func(data []byte)
	HandshakeComplete func()
	Error             func(code int, msg string)
	Defer             func(fn func())
}

type state uint8

// noAlert makes fail skip the fatal alert.
const noAlert uint8 = 0xFF

const (
	stateInit state = iota
	stateHandshaking
	stateEstablished
	stateFailed
	stateClosed
)

// Session is one DTLS 1.2 association. It is not safe for concurrent use,
// the owner serializes every call including the ones posted through Defer.
type Session struct {
	Id               []byte
	Type             Type
	Identity         string
	CipherSuite      crypto.CipherSuite
	PeerCertificates [][]byte
	Started          time.Time

	cfg   Config
	creds *credentials
	cb    Callbacks
	state state

	clientRandom []byte
	serverRandom []byte
	masterSecret []byte
	keyBlock     *crypto.KeyBlock
	cipher       crypto.Cipher

	writeEpoch uint16
	writeSeq   [2]uint64
	readEpoch  uint16
	replay     replayWindow

	peerClosed bool
	hs         handshakeState
	notify     []func()
}

type handshakeState struct {
	step         step
	kx           handshake.KeyExchange
	cookie       []byte
	initialHello []byte
	transcript   hash.Hash
	sendSeq      uint16
	recvSeq      uint16
	pending      map[uint16]*message

	ecc           *crypto.EccKeypair
	peerPublicKey []byte
	certRequested bool
	peerSentCert  bool

	flight  []flightRecord
	dupSeen bool
	timer   *time.Timer
	timerId int
	timeout time.Duration
}

// New validates the key material in cfg and returns an idle session.
// Clients start with Connect, servers wait for a ClientHello.
func New(cfg Config, cb Callbacks) (*Session, error) {
	creds, err := loadCredentials(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.setDefaults()

	s := &Session{Type: cfg.Type, cfg: cfg, creds: creds, cb: cb}
	s.hs.transcript = sha256.New()
	s.hs.pending = make(map[uint16]*message)
	s.hs.timeout = cfg.RetransmitMin

	if cfg.Type == TypeClient {
		s.clientRandom = newRandom()
		s.hs.step = stepServerHello
	} else {
		s.serverRandom = newRandom()
		s.Id = common.RandomBytes(32)
		s.hs.step = stepClientHello
	}
	return s, nil
}

func newRandom() []byte {
	w := common.NewWriter()
	w.PutUint32(uint32(time.Now().Unix()))
	w.PutBytes(common.RandomBytes(28))
	return w.Bytes()
}

// Connect sends the first ClientHello. It does nothing for servers or
// when called twice.
func (s *Session) Connect() {
	if s.state != stateInit {
		return
	}
	s.state = stateHandshaking
	s.Started = time.Now()
	if s.Type == TypeClient {
		s.sendClientHello()
	}
	s.flush()
}

// Send encrypts data into one or more application records of at most
// MaxFragment bytes each.
func (s *Session) Send(data []byte) {
	if s.state != stateEstablished {
		s.queue(func() { s.emitError(ErrCodeBadInputData, "send before handshake complete") })
		s.flush()
		return
	}
	for len(data) > 0 {
		n := len(data)
		if n > s.cfg.MaxFragment {
			n = s.cfg.MaxFragment
		}
		b, err := s.sealRecord(record.ContentType_Appdata, s.writeEpoch, data[:n])
		if err != nil {
			s.fail(ErrCodeInternalError, alert.DescInternalError, "encrypt: %s", err.Error())
			break
		}
		s.output(b)
		data = data[n:]
	}
	s.flush()
}

// Receive consumes one datagram and returns the application data it
// carried, nil when it only advanced the handshake or was dropped.
func (s *Session) Receive(data []byte) []byte {
	if s.state == stateFailed || s.state == stateClosed || s.peerClosed {
		return nil
	}
	if s.state == stateInit {
		s.state = stateHandshaking
		s.Started = time.Now()
	}

	var out []byte
	s.hs.dupSeen = false
	for len(data) > 0 && s.active() {
		rec, rem, err := record.Parse(data)
		if err != nil {
			s.logDebug("dropping datagram: %s", err.Error())
			break
		}
		data = rem

		if !s.openRecord(rec) {
			continue
		}
		s.logDebug("read %s", rec.Print())

		switch rec.ContentType {
		case record.ContentType_Handshake:
			s.handleHandshakeRecord(rec)
		case record.ContentType_ChangeCipherSpec:
			s.handleChangeCipherSpec(rec)
		case record.ContentType_Alert:
			s.handleAlert(rec)
		case record.ContentType_Appdata:
			if s.state == stateEstablished {
				out = append(out, rec.Data...)
			}
		default:
			s.logDebug("dropping record of type %s", record.TypeToString(rec.ContentType))
		}
	}
	if s.hs.dupSeen && s.active() {
		s.retransmitOnDuplicate()
	}

	s.flush()
	return out
}

// Close stops retransmission and, when established, sends close_notify.
// It reports true when nothing was sent so the owner need not wait.
func (s *Session) Close() bool {
	s.stopTimer()
	s.notify = nil
	established := s.state == stateEstablished
	s.state = stateClosed
	s.hs.flight = nil
	if !established {
		return true
	}
	s.sendAlert(alert.TypeWarning, alert.DescCloseNotify)
	return false
}

func (s *Session) Established() bool {
	return s.state == stateEstablished
}

func (s *Session) active() bool {
	return s.state == stateHandshaking || s.state == stateEstablished
}

// fail aborts the session, sends a fatal alert unless desc is noAlert and
// reports code to the owner.
func (s *Session) fail(code int, desc uint8, f string, args ...interface{}) {
	if !s.active() {
		return
	}
	msg := ErrorString(code)
	if f != "" {
		msg = fmt.Sprintf(f, args...)
	}
	s.logWarn("session failed: %s", msg)
	if desc != noAlert {
		s.sendAlert(alert.TypeFatal, desc)
	}
	s.state = stateFailed
	s.stopTimer()
	s.hs.flight = nil
	s.queue(func() { s.emitError(code, msg) })
}

func (s *Session) emitError(code int, msg string) {
	if s.cb.Error != nil {
		s.cb.Error(code, msg)
	}
}

func (s *Session) queue(fn func()) {
	s.notify = append(s.notify, fn)
}

// flush runs the queued owner notifications. A notification may close the
// session, the rest are then discarded.
func (s *Session) flush() {
	for len(s.notify) > 0 && s.state != stateClosed {
		fn := s.notify[0]
		s.notify = s.notify[1:]
		fn()
	}
	s.notify = nil
}

func (s *Session) deferCall(fn func()) {
	if s.cb.Defer != nil {
		s.cb.Defer(fn)
		return
	}
	fn()
}

func (s *Session) verbose(level string) bool {
	switch level {
	case common.LogLevelError, common.LogLevelWarn:
		return true
	case common.LogLevelInfo:
		return s.cfg.DebugLevel >= 1
	}
	return s.cfg.DebugLevel >= 2
}

func (s *Session) log(level string, f string, args ...interface{}) {
	if !common.LogEnabled(level) && !(s.cfg.DebugLevel > 0 && s.verbose(level)) {
		return
	}
	common.Logf(level, "dtls: [%s] "+f, append([]interface{}{s.cfg.Peer}, args...)...)
}

func (s *Session) logDebug(f string, args ...interface{}) {
	s.log(common.LogLevelDebug, f, args...)
}

func (s *Session) logInfo(f string, args ...interface{}) {
	s.log(common.LogLevelInfo, f, args...)
}

func (s *Session) logWarn(f string, args ...interface{}) {
	s.log(common.LogLevelWarn, f, args...)
}
