// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/crypto"
	"github.com/qwerty-iot/dtlssocket/handshake"
	"github.com/qwerty-iot/dtlssocket/keystore"
	"github.com/qwerty-iot/dtlssocket/session"
	"github.com/qwerty-iot/dtlssocket/transport"
	"github.com/qwerty-iot/dtlssocket/transport/udp"
)

const (
	DefaultBacklog          = 16
	DefaultHandshakeTimeout = 30 * time.Second
)

type HandshakeCompleteCallback func(peer string, identity string, duration time.Duration, err error)

// ListenerConfig holds the server side key material. PSK clients are
// resolved through KeyStore, or the process wide keystore when nil.
type ListenerConfig struct {
	Key           []byte
	Certificate   []byte
	CACertificate []byte
	KeyStore      keystore.KeyStore

	CipherSuites      []crypto.CipherSuite
	Verify            session.VerifyMode
	RequestClientCert bool
	CookieSecret      []byte
	MaxFragment       int
	DebugLevel        int

	// Backlog is the number of established connections waiting for Accept.
	Backlog int
	// HandshakeTimeout drops peers that do not finish in time.
	HandshakeTimeout time.Duration

	OnHandshake HandshakeCompleteCallback
}

// Listener accepts DTLS sessions on a shared datagram transport. Datagrams
// are routed to a per peer server session.
type Listener struct {
	cfg       ListenerConfig
	transport transport.Transport

	mux    sync.Mutex
	peers  map[string]*ServerConn
	accept chan *ServerConn

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	err       error
}

// Listen binds a UDP transport to address ("host:port") and starts
// accepting sessions on it.
func Listen(address string, cfg *ListenerConfig) (*Listener, error) {
	t, err := udp.Listen(address)
	if err != nil {
		return nil, fmt.Errorf("dtls: listen %s: %w", address, err)
	}
	l, err := NewListener(t, cfg)
	if err != nil {
		_ = t.Shutdown()
		return nil, err
	}
	return l, nil
}

// NewListener serves sessions on t. The listener owns t from here on.
func NewListener(t transport.Transport, cfg *ListenerConfig) (*Listener, error) {
	if cfg == nil {
		cfg = &ListenerConfig{}
	}
	l := &Listener{cfg: *cfg, transport: t, peers: make(map[string]*ServerConn)}
	if l.cfg.Backlog <= 0 {
		l.cfg.Backlog = DefaultBacklog
	}
	if l.cfg.HandshakeTimeout <= 0 {
		l.cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if len(l.cfg.CookieSecret) != handshake.CookieSecretLen {
		l.cfg.CookieSecret = common.RandomBytes(handshake.CookieSecretLen)
	}

	// fail early on bad key material rather than on the first ClientHello
	if _, err := session.New(l.sessionConfig("check"), session.Callbacks{}); err != nil {
		return nil, err
	}

	l.accept = make(chan *ServerConn, l.cfg.Backlog)
	l.done = make(chan struct{})
	l.stopped = make(chan struct{})
	go l.receiver()
	return l, nil
}

func (l *Listener) sessionConfig(peer string) session.Config {
	return session.Config{
		Type:              session.TypeServer,
		Key:               l.cfg.Key,
		Certificate:       l.cfg.Certificate,
		CACertificate:     l.cfg.CACertificate,
		KeyStore:          l.cfg.KeyStore,
		CipherSuites:      l.cfg.CipherSuites,
		Verify:            l.cfg.Verify,
		RequestClientCert: l.cfg.RequestClientCert,
		Peer:              peer,
		CookieSecret:      l.cfg.CookieSecret,
		MaxFragment:       l.cfg.MaxFragment,
		DebugLevel:        l.cfg.DebugLevel,
	}
}

func (l *Listener) receiver() {
	defer close(l.stopped)
	common.LogInfo("dtls: [%s][%s] receiver started", l.transport.Type(), l.transport.Local())
	for {
		data, peer, err := l.transport.ReadPacket()
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			if !transport.IsClosed(err) {
				common.LogWarn("dtls: [%s][%s] failed to read packet: %s", l.transport.Type(), l.transport.Local(), err.Error())
				l.mux.Lock()
				l.err = err
				l.mux.Unlock()
				go l.Close()
			}
			break
		}
		sniffActivity(l.transport.Type(), SniffRead, peer.String(), l.transport.Local(), data)

		c := l.route(peer, data)
		if c != nil {
			c.receive(data)
		}
	}
	common.LogInfo("dtls: [%s][%s] receiver stopped", l.transport.Type(), l.transport.Local())
}

// route finds the connection for peer. A ClientHello from an unknown peer,
// or one starting over on an established connection, opens a new one.
func (l *Listener) route(peer transport.Peer, data []byte) *ServerConn {
	key := peer.String()

	l.mux.Lock()
	c, found := l.peers[key]
	hello := session.IsClientHello(data)
	if found && !(hello && c.established.Load()) {
		l.mux.Unlock()
		return c
	}
	if !hello {
		l.mux.Unlock()
		common.LogDebug("dtls: [%s][%s] dropping packet from unknown peer %s", l.transport.Type(), l.transport.Local(), key)
		return nil
	}
	if isClosedChan(l.done) {
		l.mux.Unlock()
		return nil
	}
	n, err := l.newConn(peer)
	if err != nil {
		l.mux.Unlock()
		common.LogError("dtls: [%s][%s] failed to create session for %s: %s", l.transport.Type(), l.transport.Local(), key, err.Error())
		return nil
	}
	l.peers[key] = n
	l.mux.Unlock()

	if found {
		common.LogInfo("dtls: [%s][%s] peer %s started a new handshake, dropping old session", l.transport.Type(), l.transport.Local(), key)
		c.drop()
	} else {
		common.LogInfo("dtls: [%s][%s] new peer %s", l.transport.Type(), l.transport.Local(), key)
	}
	return n
}

func (l *Listener) newConn(peer transport.Peer) (*ServerConn, error) {
	c := &ServerConn{
		l:             l,
		peer:          peer,
		created:       time.Now(),
		rbuf:          newReadBuffer(true),
		readDeadline:  newDeadline(),
		writeDeadline: newDeadline(),
	}
	sess, err := session.New(l.sessionConfig(peer.String()), session.Callbacks{
		SendEncrypted:     c.sendEncrypted,
		HandshakeComplete: c.onHandshakeComplete,
		Error:             c.onError,
		Defer:             c.deferred,
	})
	if err != nil {
		return nil, err
	}
	c.sess = sess
	c.timer = time.AfterFunc(l.cfg.HandshakeTimeout, c.handshakeTimeout)
	return c, nil
}

func (l *Listener) remove(c *ServerConn) {
	key := c.peer.String()
	l.mux.Lock()
	if l.peers[key] == c {
		delete(l.peers, key)
	}
	l.mux.Unlock()
}

func (l *Listener) handshakeDone(c *ServerConn, identity string, err error) {
	if cb := l.cfg.OnHandshake; cb != nil {
		go cb(c.peer.String(), identity, time.Since(c.created), err)
	}
}

// AcceptConn waits for the next established session.
func (l *Listener) AcceptConn() (*ServerConn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.done:
		l.mux.Lock()
		defer l.mux.Unlock()
		if l.err != nil {
			return nil, l.err
		}
		return nil, ErrClosed
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.AcceptConn()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close sends close_notify to every established peer and shuts the
// transport down.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)

		l.mux.Lock()
		conns := make([]*ServerConn, 0, len(l.peers))
		for _, c := range l.peers {
			conns = append(conns, c)
		}
		l.mux.Unlock()

		for _, c := range conns {
			_ = c.Close()
		}
		err = l.transport.Shutdown()
		<-l.stopped
	})
	return err
}

func (l *Listener) Addr() net.Addr {
	return l.transport.Addr()
}

// Peers returns the number of tracked peers, established or not.
func (l *Listener) Peers() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return len(l.peers)
}

var _ net.Listener = (*Listener)(nil)

// ServerConn is one session accepted by a Listener. Unlike Socket it has no
// event loop, calls into the session are serialized by a mutex.
type ServerConn struct {
	l       *Listener
	peer    transport.Peer
	created time.Time

	mux     sync.Mutex
	sess    *session.Session
	timer   *time.Timer
	closed  bool
	err     error
	sendErr error

	established atomic.Bool

	rbuf          *readBuffer
	readDeadline  *deadline
	writeDeadline *deadline
}

func (c *ServerConn) receive(data []byte) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed {
		return
	}
	if plain := c.sess.Receive(data); len(plain) > 0 {
		c.rbuf.push(plain)
	}
}

func (c *ServerConn) deferred(fn func()) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if !c.closed {
		fn()
	}
}

func (c *ServerConn) sendEncrypted(data []byte) {
	sniffActivity(c.l.transport.Type(), SniffWrite, c.l.transport.Local(), c.peer.String(), data)
	if err := c.peer.WritePacket(data); err != nil && c.sendErr == nil {
		c.sendErr = err
	}
}

func (c *ServerConn) onHandshakeComplete() {
	c.established.Store(true)
	c.timer.Stop()
	common.LogInfo("dtls: [%s] handshake complete: %s", c.peer.String(), c.sess.String())
	c.l.handshakeDone(c, c.sess.Identity, nil)

	select {
	case c.l.accept <- c:
	default:
		common.LogWarn("dtls: [%s] accept backlog full, dropping session", c.peer.String())
		c.sess.Close()
		c.endLocked(ErrClosed)
	}
}

func (c *ServerConn) onError(code int, msg string) {
	if code == session.ErrCodePeerCloseNotify {
		c.endLocked(nil)
		return
	}
	err := &EngineError{Code: code, Message: msg}
	if !c.established.Load() {
		c.l.handshakeDone(c, c.sess.Identity, err)
	}
	c.endLocked(err)
}

func (c *ServerConn) handshakeTimeout() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed || c.established.Load() {
		return
	}
	err := &EngineError{Code: session.ErrCodeTimeout, Message: "handshake not completed in time"}
	c.sess.Close()
	c.l.handshakeDone(c, c.sess.Identity, err)
	c.endLocked(err)
}

func (c *ServerConn) endLocked(err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	c.timer.Stop()
	c.rbuf.end()
	c.l.remove(c)
}

// drop forgets the session without telling the peer.
func (c *ServerConn) drop() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed {
		return
	}
	c.sess.Close()
	c.closed = true
	c.err = ErrClosed
	c.timer.Stop()
	c.rbuf.end()
}

func (c *ServerConn) Read(b []byte) (int, error) {
	return c.rbuf.read(b, c.readDeadline)
}

// Write encrypts p and sends it. Datagram sends do not block, so the
// write deadline only rejects writes issued after it passed.
func (c *ServerConn) Write(p []byte) (int, error) {
	if isClosedChan(c.writeDeadline.wait()) {
		return 0, os.ErrDeadlineExceeded
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed {
		if c.err != nil {
			return 0, c.err
		}
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	c.sendErr = nil
	c.sess.Send(p)
	if c.closed && c.err != nil {
		return 0, c.err
	}
	if err := c.sendErr; err != nil {
		c.sendErr = nil
		return 0, err
	}
	return len(p), nil
}

// Close sends close_notify and forgets the peer.
func (c *ServerConn) Close() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed {
		return nil
	}
	c.sess.Close()
	c.endLocked(nil)
	return nil
}

// Identity is the PSK identity the peer authenticated with.
func (c *ServerConn) Identity() string {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.sess.Identity
}

// PeerCertificates returns the DER chain the peer presented, if any.
func (c *ServerConn) PeerCertificates() [][]byte {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.sess.PeerCertificates
}

func (c *ServerConn) LocalAddr() net.Addr {
	return c.l.transport.Addr()
}

func (c *ServerConn) RemoteAddr() net.Addr {
	if p, ok := c.peer.(interface{ Addr() *net.UDPAddr }); ok {
		return p.Addr()
	}
	return peerAddr{network: c.l.transport.Type(), address: c.peer.String()}
}

func (c *ServerConn) SetDeadline(t time.Time) error {
	c.readDeadline.set(t)
	c.writeDeadline.set(t)
	return nil
}

func (c *ServerConn) SetReadDeadline(t time.Time) error {
	c.readDeadline.set(t)
	return nil
}

func (c *ServerConn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.set(t)
	return nil
}

func (c *ServerConn) String() string {
	return c.l.transport.Type() + "://" + c.peer.String()
}

var _ net.Conn = (*ServerConn)(nil)
