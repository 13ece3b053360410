// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"errors"
	"time"

	"github.com/qwerty-iot/dtlssocket/alert"
	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/handshake"
	"github.com/qwerty-iot/dtlssocket/record"
)

var errNoKeyBlock = errors.New("dtls: key block not initialized")

// flightRecord is one record of the last flight, kept in clear so that a
// retransmission can seal it again under a fresh sequence number.
type flightRecord struct {
	contentType record.ContentType
	epoch       uint16
	data        []byte
}

func (s *Session) writeKeys() (key []byte, iv []byte, mac []byte) {
	if s.Type == TypeClient {
		return s.keyBlock.ClientWriteKey, s.keyBlock.ClientIV, s.keyBlock.ClientMac
	}
	return s.keyBlock.ServerWriteKey, s.keyBlock.ServerIV, s.keyBlock.ServerMac
}

func (s *Session) readKeys() (key []byte, iv []byte, mac []byte) {
	if s.Type == TypeClient {
		return s.keyBlock.ServerWriteKey, s.keyBlock.ServerIV, s.keyBlock.ServerMac
	}
	return s.keyBlock.ClientWriteKey, s.keyBlock.ClientIV, s.keyBlock.ClientMac
}

// sealRecord encodes data as the next record of epoch, encrypted for any
// epoch past the first.
func (s *Session) sealRecord(contentType record.ContentType, epoch uint16, data []byte) ([]byte, error) {
	seq := s.writeSeq[epoch]
	s.writeSeq[epoch]++

	rec := record.New(contentType, epoch, seq, data)
	if epoch == 0 {
		if common.DebugHandshake {
			s.logDebug("write (unencrypted) %s", rec.Print())
		}
		return rec.Bytes(), nil
	}
	if s.keyBlock == nil || s.cipher == nil {
		return nil, errNoKeyBlock
	}
	key, iv, mac := s.writeKeys()
	cipherText, err := s.cipher.Encrypt(rec, key, iv, mac)
	if err != nil {
		return nil, err
	}
	rec.SetData(cipherText)
	if common.DebugEncryption {
		s.logDebug("write (encrypted) %s", rec.Print())
	}
	return rec.Bytes(), nil
}

// openRecord decides whether rec is processed and decrypts it in place.
func (s *Session) openRecord(rec *record.Record) bool {
	switch {
	case rec.Epoch == 0:
		if rec.IsAppData() {
			s.logDebug("dropping unencrypted application data")
			return false
		}
		if rec.IsAlert() && s.readEpoch > 0 {
			s.logDebug("dropping unencrypted alert after change cipher spec")
			return false
		}
		return true
	case rec.Epoch == 1 && s.readEpoch == 1:
		if !s.replay.check(rec.Sequence) {
			s.logDebug("dropping replayed record seq[%d]", rec.Sequence)
			return false
		}
		key, iv, mac := s.readKeys()
		clearText, err := s.cipher.Decrypt(rec, key, iv, mac)
		if err != nil {
			if s.state == stateHandshaking {
				if s.Type == TypeServer {
					s.logWarn("PSK is most likely invalid for identity: %s", s.Identity)
				}
				s.fail(ErrCodeInvalidMac, alert.DescBadRecordMac, "decrypt %s: %s", record.TypeToString(rec.ContentType), err.Error())
			} else {
				s.logDebug("dropping record that failed to decrypt: %s", err.Error())
			}
			return false
		}
		s.replay.accept(rec.Sequence)
		rec.SetData(clearText)
		return true
	}
	s.logDebug("dropping record of epoch %d", rec.Epoch)
	return false
}

func (s *Session) output(data []byte) {
	if s.cb.SendEncrypted != nil {
		s.cb.SendEncrypted(data)
	}
}

func (s *Session) sendAlert(alertType uint8, desc uint8) {
	a := alert.New(alertType, desc)
	b, err := s.sealRecord(record.ContentType_Alert, s.writeEpoch, a.Bytes())
	if err != nil {
		s.logWarn("failed to send alert %s: %s", a.String(), err.Error())
		return
	}
	s.logDebug("write alert %s", a.String())
	s.output(b)
}

func (s *Session) handleAlert(rec *record.Record) {
	a, err := alert.Parse(rec.Data)
	if err != nil {
		s.logDebug("dropping alert: %s", err.Error())
		return
	}
	switch {
	case a.IsCloseNotify():
		s.logInfo("received close notify")
		s.peerClosed = true
		s.stopTimer()
		s.queue(func() { s.emitError(ErrCodePeerCloseNotify, ErrorString(ErrCodePeerCloseNotify)) })
	case a.IsFatal():
		s.logWarn("received alert %s", a.String())
		s.fail(ErrCodeFatalAlert, noAlert, "fatal alert received: %s", alert.DescToString(a.Desc))
	default:
		s.logInfo("ignoring alert %s", a.String())
	}
}

// addHandshake appends msg to the flight being built, assigning the next
// message sequence and fragmenting it at MaxFragment.
func (s *Session) addHandshake(msg *handshake.Handshake, epoch uint16, hashed bool) {
	msg.Header.Sequence = s.hs.sendSeq
	s.hs.sendSeq++

	raw := msg.Bytes()
	if hashed {
		s.hs.transcript.Write(raw)
	}
	s.logDebug("write %s", msg.Print())

	for _, frag := range msg.Fragments(s.cfg.MaxFragment) {
		s.hs.flight = append(s.hs.flight, flightRecord{contentType: record.ContentType_Handshake, epoch: epoch, data: frag})
	}
}

func (s *Session) addChangeCipherSpec() {
	s.hs.flight = append(s.hs.flight, flightRecord{contentType: record.ContentType_ChangeCipherSpec, epoch: 0, data: []byte{0x01}})
	s.writeEpoch = 1
}

// sendFlight seals the current flight and packs the records into as few
// datagrams of at most MaxDatagram bytes as possible.
func (s *Session) sendFlight() {
	var dgram []byte
	for _, fr := range s.hs.flight {
		b, err := s.sealRecord(fr.contentType, fr.epoch, fr.data)
		if err != nil {
			s.fail(ErrCodeInternalError, alert.DescInternalError, "seal flight: %s", err.Error())
			return
		}
		if len(dgram) > 0 && len(dgram)+len(b) > s.cfg.MaxDatagram {
			s.output(dgram)
			dgram = nil
		}
		dgram = append(dgram, b...)
	}
	if len(dgram) > 0 {
		s.output(dgram)
	}
}

// transmit sends a new flight that expects an answer and arms the
// retransmission timer at its initial value.
func (s *Session) transmit() {
	s.hs.timeout = s.cfg.RetransmitMin
	s.sendFlight()
	if s.active() {
		s.startTimer()
	}
}

func (s *Session) retransmitOnDuplicate() {
	if len(s.hs.flight) == 0 {
		return
	}
	if s.state == stateEstablished && s.Type == TypeClient {
		return
	}
	s.logDebug("peer retransmitted, resending last flight")
	s.sendFlight()
}

func (s *Session) startTimer() {
	s.stopTimer()
	s.hs.timerId++
	id := s.hs.timerId
	s.hs.timer = time.AfterFunc(s.hs.timeout, func() {
		s.deferCall(func() { s.onTimeout(id) })
	})
}

func (s *Session) stopTimer() {
	if s.hs.timer != nil {
		s.hs.timer.Stop()
		s.hs.timer = nil
	}
	s.hs.timerId++
}

func (s *Session) onTimeout(id int) {
	if id != s.hs.timerId || s.state != stateHandshaking {
		return
	}
	if s.hs.timeout >= s.cfg.RetransmitMax {
		s.fail(ErrCodeTimeout, noAlert, "handshake timed out after %s", time.Since(s.Started).Round(time.Millisecond))
		s.flush()
		return
	}
	s.hs.timeout *= 2
	if s.hs.timeout > s.cfg.RetransmitMax {
		s.hs.timeout = s.cfg.RetransmitMax
	}
	s.logDebug("retransmitting flight, next timeout %s", s.hs.timeout)
	s.sendFlight()
	if s.active() {
		s.startTimer()
	}
	s.flush()
}
