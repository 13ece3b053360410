// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/session"
	"github.com/qwerty-iot/dtlssocket/transport"
	"github.com/qwerty-iot/dtlssocket/transport/udp"
)

type lifecycle uint8

const (
	stateActive lifecycle = iota
	stateEnding
	stateClosed
)

const eventQueueLen = 64

type writeRequest struct {
	data     []byte
	result   chan error
	finished bool
}

// Socket is a DTLS client connection over a datagram transport. It
// implements net.Conn: Write returns once the datagram carrying p has been
// handed to the transport, Read returns at most one decrypted record.
//
// All socket and engine state is owned by a single event loop goroutine.
type Socket struct {
	cfg    Config
	tr     transport.Transport
	remote transport.Peer

	events        chan func()
	ticks         []func()
	closed        chan struct{}
	done          chan struct{}
	handshakeDone chan struct{}
	hooks         emitter

	// owned by the event loop
	state            lifecycle
	connected        bool
	hadError         bool
	notifyOnClose    bool
	listening        bool
	engine           Engine
	transport        transport.Transport
	pending          *writeRequest
	parked           *writeRequest
	inflight         int
	transportClosing bool
	readerDone       bool
	err              error

	isConnected atomic.Bool
	writeSlot   chan struct{}

	rbuf *readBuffer

	readDeadline  *deadline
	writeDeadline *deadline
}

// New creates a socket for cfg.Address and starts the handshake on the
// first turn of its event loop. It fails with ErrNoAuthMaterial when
// neither a PSK nor a private key is configured.
func New(cfg *Config) (*Socket, error) {
	if cfg == nil || !cfg.Credentials.valid() {
		return nil, ErrNoAuthMaterial
	}
	if cfg.Address == "" {
		return nil, ErrNoAddress
	}

	t := cfg.Transport
	owned := t == nil
	if owned {
		t = udp.NewUdpHandle()
	}
	release := func() {
		if owned {
			_ = t.Shutdown()
		}
	}

	if cfg.BindAddress != "" || cfg.BindPort != 0 {
		if err := t.Bind(cfg.BindPort, cfg.BindAddress); err != nil {
			release()
			return nil, fmt.Errorf("dtls: bind %s:%d: %w", cfg.BindAddress, cfg.BindPort, err)
		}
	}

	remote, err := t.NewPeer(cfg.Address)
	if err != nil {
		release()
		return nil, fmt.Errorf("dtls: resolve %s: %w", cfg.Address, err)
	}

	s := &Socket{
		cfg:           *cfg,
		tr:            t,
		remote:        remote,
		events:        make(chan func(), eventQueueLen),
		closed:        make(chan struct{}),
		done:          make(chan struct{}),
		handshakeDone: make(chan struct{}),
		listening:     true,
		transport:     t,
		writeSlot:     make(chan struct{}, 1),
		rbuf:          newReadBuffer(false),
		readDeadline:  newDeadline(),
		writeDeadline: newDeadline(),
	}
	if owned {
		s.cfg.KeepTransport = false
	}

	factory := cfg.EngineFactory
	if factory == nil {
		factory = NewSessionEngineFactory(EngineOptions{
			CipherSuites: cfg.CipherSuites,
			Verify:       cfg.Verify,
			MaxFragment:  cfg.MaxFragment,
			Peer:         remote.String(),
		})
	}
	engine, err := factory(cfg.Credentials, EngineCallbacks{
		SendEncrypted:     s.sendEncrypted,
		HandshakeComplete: s.onHandshakeComplete,
		Error:             s.onEngineError,
		Defer:             s.deferred,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("dtls: create engine: %w", err)
	}
	s.engine = engine

	s.ticks = append(s.ticks, s.ready)
	go s.run()
	go s.readLoop(t)
	return s, nil
}

// Dial connects to address and waits for the handshake to finish.
func Dial(address string, cfg *Config) (*Socket, error) {
	return DialContext(context.Background(), address, cfg)
}

// DialContext is Dial with a context bounding the handshake.
func DialContext(ctx context.Context, address string, cfg *Config) (*Socket, error) {
	if cfg == nil {
		return nil, ErrNoAuthMaterial
	}
	c := *cfg
	c.Address = address
	s, err := New(&c)
	if err != nil {
		return nil, err
	}
	if err := s.Handshake(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Socket) run() {
	for {
		for len(s.ticks) > 0 {
			fn := s.ticks[0]
			s.ticks[0] = nil
			s.ticks = s.ticks[1:]
			fn()
		}
		if s.state == stateClosed {
			return
		}
		fn := <-s.events
		fn()
	}
}

// post hands fn to the event loop. It reports false once the socket is
// closed.
func (s *Socket) post(fn func()) bool {
	if isClosedChan(s.closed) {
		return false
	}
	select {
	case s.events <- fn:
		return true
	case <-s.closed:
		return false
	}
}

func (s *Socket) nextTick(fn func()) {
	s.ticks = append(s.ticks, fn)
}

func (s *Socket) deferred(fn func()) {
	s.post(func() {
		if s.engine != nil {
			fn()
		}
	})
}

func (s *Socket) ready() {
	if s.state != stateActive || s.transport == nil || s.engine == nil {
		return
	}
	s.logDebug("starting handshake")
	s.engine.Connect()
}

func (s *Socket) readLoop(t transport.Transport) {
	defer func() {
		if s.cfg.KeepTransport {
			if d, ok := t.(transport.Deadliner); ok {
				_ = d.SetReadDeadline(time.Time{})
			}
		}
	}()
	for {
		data, from, err := t.ReadPacket()
		if err != nil {
			switch {
			case transport.IsClosed(err):
				s.post(s.onTransportClosed)
				return
			case transport.IsTimeout(err):
				if isClosedChan(s.closed) {
					return
				}
				continue
			}
			if !s.post(func() { s.onTransportError(err) }) {
				return
			}
			continue
		}
		if !s.post(func() { s.onMessage(data, from) }) {
			return
		}
	}
}

func (s *Socket) onMessage(data []byte, from transport.Peer) {
	if !s.listening || s.engine == nil {
		return
	}
	if from != nil && from.String() != s.remote.String() {
		s.logDebug("dropping datagram from %s", from.String())
		return
	}
	sniffActivity(s.tr.Type(), SniffRead, s.remote.String(), s.tr.Local(), data)
	plain := s.engine.Receive(data)
	if len(plain) > 0 && s.state == stateActive {
		s.rbuf.push(plain)
	}
}

func (s *Socket) onTransportError(err error) {
	if s.state != stateActive {
		return
	}
	terr := &TransportError{Transport: s.tr.Type(), Err: err}
	s.hadError = true
	s.setErr(terr)
	s.emitError(terr)
	s.teardown()
}

func (s *Socket) onTransportClosed() {
	s.readerDone = true
	switch s.state {
	case stateActive:
		s.logInfo("transport closed")
		s.teardown()
	case stateEnding:
		if s.transportClosing {
			s.finalize()
		}
	}
}

func (s *Socket) sendEncrypted(data []byte) {
	req := s.pending
	s.pending = nil
	s.inflight++
	if s.transport == nil {
		s.nextTick(func() { s.sendComplete(req, ErrNoTransport) })
		return
	}
	sniffActivity(s.tr.Type(), SniffWrite, s.tr.Local(), s.remote.String(), data)
	err := s.remote.WritePacket(data)
	if err != nil {
		s.logDebug("failed to send %d bytes: %s", len(data), err.Error())
	}
	s.nextTick(func() { s.sendComplete(req, err) })
}

func (s *Socket) sendComplete(req *writeRequest, err error) {
	s.inflight--
	s.completeWrite(req, err)
	if s.state == stateEnding && s.notifyOnClose && s.inflight == 0 {
		s.closeTransport()
	}
}

func (s *Socket) onHandshakeComplete() {
	if s.connected || s.state != stateActive {
		return
	}
	s.connected = true
	s.isConnected.Store(true)
	close(s.handshakeDone)
	s.logInfo("handshake complete")

	hook := s.cfg.OnSecureConnect
	s.rbuf.promise()
	s.hooks.emit(func() {
		s.rbuf.setReady()
		if hook != nil {
			hook(s)
		}
	})

	if req := s.parked; req != nil {
		s.parked = nil
		s.nextTick(func() { s.submitWrite(req) })
	}
}

func (s *Socket) onEngineError(code int, msg string) {
	if s.state != stateActive {
		return
	}
	if code == session.ErrCodePeerCloseNotify {
		s.logInfo("peer closed the session")
		s.teardown()
		return
	}

	err := &EngineError{Code: code, Message: msg}
	s.hadError = true
	s.setErr(err)
	if req := s.pending; req != nil {
		s.pending = nil
		s.completeWrite(req, err)
	} else {
		s.emitError(err)
	}
	s.teardown()
}

func (s *Socket) submitWrite(req *writeRequest) {
	if s.state != stateActive || s.engine == nil {
		s.completeWrite(req, s.closeError())
		return
	}
	if !s.connected {
		s.parked = req
		return
	}
	s.pending = req
	s.engine.Send(req.data)
}

func (s *Socket) completeWrite(req *writeRequest, err error) {
	if req == nil || req.finished {
		return
	}
	req.finished = true
	req.result <- err
	select {
	case <-s.writeSlot:
	default:
	}
}

// teardown is the single way out of the active state.
func (s *Socket) teardown() {
	if s.state != stateActive {
		return
	}
	s.state = stateEnding
	s.listening = false
	s.rbuf.end()
	if req := s.parked; req != nil {
		s.parked = nil
		s.completeWrite(req, s.closeError())
	}

	noSend := true
	if s.engine != nil {
		noSend = s.engine.Close()
		s.engine = nil
	}
	if noSend || !s.notifyOnClose || s.inflight == 0 {
		s.closeTransport()
	}
}

func (s *Socket) closeTransport() {
	if s.transportClosing {
		return
	}
	s.transportClosing = true
	if s.transport == nil {
		s.finalize()
		return
	}
	if s.cfg.KeepTransport {
		if d, ok := s.transport.(transport.Deadliner); ok {
			_ = d.SetReadDeadline(time.Now())
		}
		s.finalize()
		return
	}
	if err := s.transport.Shutdown(); err != nil {
		s.logWarn("failed to shut down transport: %s", err.Error())
	}
	if s.readerDone {
		s.finalize()
	}
}

func (s *Socket) finalize() {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed
	s.transport = nil
	s.completeWrite(s.pending, ErrClosed)
	s.completeWrite(s.parked, ErrClosed)
	s.pending, s.parked = nil, nil

	hadError := s.hadError
	hook := s.cfg.OnClose
	s.cfg.OnSecureConnect, s.cfg.OnError, s.cfg.OnClose = nil, nil, nil
	s.logInfo("closed (error: %t)", hadError)

	close(s.closed)
	s.hooks.emit(func() {
		if hook != nil {
			hook(hadError)
		}
		close(s.done)
	})
}

func (s *Socket) setErr(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Socket) closeError() error {
	if s.err != nil {
		return s.err
	}
	return ErrClosed
}

func (s *Socket) emitError(err error) {
	hook := s.cfg.OnError
	if hook == nil {
		s.logWarn("%s", err.Error())
		return
	}
	s.hooks.emit(func() { hook(err) })
}

// Read returns decrypted application data, one record per call when b is
// large enough. It returns io.EOF once the socket has ended and the
// buffered data is consumed.
func (s *Socket) Read(b []byte) (int, error) {
	return s.rbuf.read(b, s.readDeadline)
}

// Write encrypts p and waits until its datagram has been sent. A write
// issued before the handshake completes is held until it does. Writes are
// serialized, only one is ever in flight.
//
// An expired write deadline fails Write before anything is queued. If the
// deadline passes while Write waits for the send, os.ErrDeadlineExceeded is
// returned but the record may still go out.
func (s *Socket) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if isClosedChan(s.writeDeadline.wait()) {
		return 0, os.ErrDeadlineExceeded
	}

	select {
	case s.writeSlot <- struct{}{}:
	case <-s.closed:
		return 0, ErrClosed
	case <-s.writeDeadline.wait():
		return 0, os.ErrDeadlineExceeded
	}

	req := &writeRequest{data: append([]byte(nil), p...), result: make(chan error, 1)}
	if !s.post(func() { s.submitWrite(req) }) {
		<-s.writeSlot
		return 0, ErrClosed
	}

	var err error
	select {
	case err = <-req.result:
	case <-s.closed:
		select {
		case err = <-req.result:
		default:
			err = ErrClosed
		}
	case <-s.writeDeadline.wait():
		return 0, os.ErrDeadlineExceeded
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close ends the socket gracefully: an established session sends
// close_notify and the transport is released once that datagram is out.
// Close does not wait, use Done for that.
func (s *Socket) Close() error {
	s.post(func() {
		if s.state != stateActive {
			return
		}
		s.notifyOnClose = true
		s.teardown()
	})
	return nil
}

// Handshake waits until the session is established. It returns the error
// that ended the socket if it closed first.
func (s *Socket) Handshake(ctx context.Context) error {
	select {
	case <-s.handshakeDone:
		return nil
	case <-s.closed:
		if isClosedChan(s.handshakeDone) {
			return nil
		}
		if s.err != nil {
			return s.err
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after the socket is fully torn down and OnClose returned.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) Connected() bool {
	return s.isConnected.Load()
}

// Bind binds the underlying transport.
func (s *Socket) Bind(port int, address string) error {
	result := make(chan error, 1)
	ok := s.post(func() {
		if s.state != stateActive || s.transport == nil {
			result <- ErrClosed
			return
		}
		result <- s.transport.Bind(port, address)
	})
	if !ok {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.closed:
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	}
}

// Address returns the local address of the transport, nil while unbound.
func (s *Socket) Address() net.Addr {
	return s.tr.Addr()
}

func (s *Socket) LocalAddr() net.Addr {
	return s.tr.Addr()
}

func (s *Socket) RemoteAddr() net.Addr {
	if p, ok := s.remote.(interface{ Addr() *net.UDPAddr }); ok {
		return p.Addr()
	}
	return peerAddr{network: s.tr.Type(), address: s.remote.String()}
}

func (s *Socket) SetDeadline(t time.Time) error {
	s.readDeadline.set(t)
	s.writeDeadline.set(t)
	return nil
}

func (s *Socket) SetReadDeadline(t time.Time) error {
	s.readDeadline.set(t)
	return nil
}

func (s *Socket) SetWriteDeadline(t time.Time) error {
	s.writeDeadline.set(t)
	return nil
}

func (s *Socket) String() string {
	return s.tr.Type() + "://" + s.remote.String()
}

func (s *Socket) logDebug(f string, args ...interface{}) {
	common.LogDebug("dtls: [%s] "+f, append([]interface{}{s.remote.String()}, args...)...)
}

func (s *Socket) logInfo(f string, args ...interface{}) {
	common.LogInfo("dtls: [%s] "+f, append([]interface{}{s.remote.String()}, args...)...)
}

func (s *Socket) logWarn(f string, args ...interface{}) {
	common.LogWarn("dtls: [%s] "+f, append([]interface{}{s.remote.String()}, args...)...)
}

type peerAddr struct {
	network string
	address string
}

func (a peerAddr) Network() string { return a.network }
func (a peerAddr) String() string  { return a.address }

// emitter runs hooks one after another on a goroutine started on demand.
type emitter struct {
	mux     sync.Mutex
	queue   []func()
	running bool
}

func (e *emitter) emit(fn func()) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.queue = append(e.queue, fn)
	if !e.running {
		e.running = true
		go e.drain()
	}
}

func (e *emitter) drain() {
	for {
		e.mux.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.mux.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.mux.Unlock()
		fn()
	}
}

var _ net.Conn = (*Socket)(nil)
