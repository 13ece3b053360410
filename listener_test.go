package dtls

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/qwerty-iot/dtlssocket/keystore"
	"github.com/qwerty-iot/dtlssocket/session"
	"github.com/qwerty-iot/dtlssocket/transport/memory"
)

func TestListenerSuite(t *testing.T) {
	suite.Run(t, new(ListenerSuite))
}

type ListenerSuite struct {
	suite.Suite
}

type handshakeEvent struct {
	peer     string
	identity string
	err      error
}

func (s *ListenerSuite) pskListener(server *memory.Endpoint, events chan handshakeEvent) *Listener {
	ks := keystore.NewMemoryKeyStore()
	ks.AddKey("device", []byte("secretPSK"))
	l, err := NewListener(server, &ListenerConfig{
		KeyStore: ks,
		OnHandshake: func(peer string, identity string, duration time.Duration, err error) {
			if events != nil {
				events <- handshakeEvent{peer: peer, identity: identity, err: err}
			}
		},
	})
	require.Nil(s.T(), err)
	return l
}

func (s *ListenerSuite) accept(l *Listener) *ServerConn {
	result := make(chan *ServerConn, 1)
	go func() {
		c, err := l.AcceptConn()
		if err == nil {
			result <- c
		}
		close(result)
	}()
	select {
	case c := <-result:
		require.NotNil(s.T(), c)
		return c
	case <-time.After(waitFor):
		s.T().Fatal("no connection accepted")
	}
	return nil
}

func (s *ListenerSuite) TestAcceptAndEcho() {
	client, server := memory.NewPair("client", "server")
	events := make(chan handshakeEvent, 4)
	l := s.pskListener(server, events)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	sock, err := DialContext(ctx, "server", &Config{
		Transport:   client,
		Credentials: Credentials{PSK: []byte("secretPSK"), PSKIdentity: []byte("device")},
	})
	require.Nil(s.T(), err)
	assert.True(s.T(), sock.Connected())

	conn := s.accept(l)
	assert.Equal(s.T(), "device", conn.Identity())
	assert.Equal(s.T(), "client", conn.RemoteAddr().String())
	assert.Equal(s.T(), 1, l.Peers())

	select {
	case ev := <-events:
		assert.Nil(s.T(), ev.err)
		assert.Equal(s.T(), "client", ev.peer)
		assert.Equal(s.T(), "device", ev.identity)
	case <-time.After(waitFor):
		s.T().Fatal("no handshake callback")
	}

	_, err = sock.Write([]byte("ping"))
	require.Nil(s.T(), err)

	buf := make([]byte, 64)
	require.Nil(s.T(), conn.SetReadDeadline(time.Now().Add(waitFor)))
	n, err := conn.Read(buf)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), "ping", string(buf[:n]))

	_, err = conn.Write([]byte("pong"))
	require.Nil(s.T(), err)
	require.Nil(s.T(), sock.SetReadDeadline(time.Now().Add(waitFor)))
	n, err = sock.Read(buf)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), "pong", string(buf[:n]))

	// close_notify from the client ends the server side
	require.Nil(s.T(), sock.Close())
	select {
	case <-sock.Done():
	case <-time.After(waitFor):
		s.T().Fatal("socket did not close")
	}
	_, err = conn.Read(buf)
	assert.Equal(s.T(), io.EOF, err)
	require.Eventually(s.T(), func() bool { return l.Peers() == 0 }, waitFor, 5*time.Millisecond)
}

func (s *ListenerSuite) TestServerClose() {
	client, server := memory.NewPair("client", "server")
	l := s.pskListener(server, nil)
	defer l.Close()

	var mux sync.Mutex
	var closes []bool
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	sock, err := DialContext(ctx, "server", &Config{
		Transport:   client,
		Credentials: Credentials{PSK: []byte("secretPSK"), PSKIdentity: []byte("device")},
		OnClose: func(hadError bool) {
			mux.Lock()
			closes = append(closes, hadError)
			mux.Unlock()
		},
	})
	require.Nil(s.T(), err)

	conn := s.accept(l)
	require.Nil(s.T(), conn.Close())
	_, err = conn.Write([]byte("late"))
	assert.ErrorIs(s.T(), err, ErrClosed)

	select {
	case <-sock.Done():
	case <-time.After(waitFor):
		s.T().Fatal("socket did not see close_notify")
	}
	mux.Lock()
	assert.Equal(s.T(), []bool{false}, closes)
	mux.Unlock()
}

func (s *ListenerSuite) TestWrongPsk() {
	client, server := memory.NewPair("client", "server")
	events := make(chan handshakeEvent, 4)
	l := s.pskListener(server, events)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := DialContext(ctx, "server", &Config{
		Transport:   client,
		Credentials: Credentials{PSK: []byte("wrongPSK"), PSKIdentity: []byte("device")},
	})
	require.NotNil(s.T(), err)
	var ee *EngineError
	assert.True(s.T(), errors.As(err, &ee))

	select {
	case ev := <-events:
		require.NotNil(s.T(), ev.err)
		assert.True(s.T(), errors.Is(ev.err, &EngineError{Code: session.ErrCodeInvalidMac}), ev.err.Error())
	case <-time.After(waitFor):
		s.T().Fatal("no handshake callback")
	}
	require.Eventually(s.T(), func() bool { return l.Peers() == 0 }, waitFor, 5*time.Millisecond)
}

func (s *ListenerSuite) TestHandshakeTimeout() {
	_, server := memory.NewPair("client", "server")
	ks := keystore.NewMemoryKeyStore()
	events := make(chan handshakeEvent, 1)
	l, err := NewListener(server, &ListenerConfig{
		KeyStore:         ks,
		HandshakeTimeout: 50 * time.Millisecond,
		OnHandshake: func(peer string, identity string, duration time.Duration, err error) {
			events <- handshakeEvent{peer: peer, err: err}
		},
	})
	require.Nil(s.T(), err)
	defer l.Close()

	c, err := l.newConn(&namedPeer{name: "ghost"})
	require.Nil(s.T(), err)
	l.mux.Lock()
	l.peers["ghost"] = c
	l.mux.Unlock()

	select {
	case ev := <-events:
		assert.Equal(s.T(), "ghost", ev.peer)
		assert.ErrorIs(s.T(), ev.err, &EngineError{Code: session.ErrCodeTimeout})
	case <-time.After(waitFor):
		s.T().Fatal("handshake did not time out")
	}
	require.Eventually(s.T(), func() bool { return l.Peers() == 0 }, waitFor, 5*time.Millisecond)
}

func (s *ListenerSuite) TestCloseUnblocksAccept() {
	_, server := memory.NewPair("client", "server")
	l := s.pskListener(server, nil)

	result := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		result <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.Nil(s.T(), l.Close())
	assert.Nil(s.T(), l.Close())

	select {
	case err := <-result:
		assert.ErrorIs(s.T(), err, ErrClosed)
	case <-time.After(waitFor):
		s.T().Fatal("accept did not return")
	}
	assert.True(s.T(), server.Closed())
}

func (s *ListenerSuite) TestBadKeyMaterial() {
	_, server := memory.NewPair("client", "server")
	_, err := NewListener(server, &ListenerConfig{Key: []byte("not a key")})
	assert.NotNil(s.T(), err)
}

func (s *ListenerSuite) TestUdp() {
	ks := keystore.NewMemoryKeyStore()
	ks.AddKey("device", []byte("secretPSK"))
	l, err := Listen("127.0.0.1:0", &ListenerConfig{KeyStore: ks})
	require.Nil(s.T(), err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	sock, err := DialContext(ctx, l.Addr().String(), &Config{
		Credentials: Credentials{PSK: []byte("secretPSK"), PSKIdentity: []byte("device")},
		BindAddress: "127.0.0.1",
	})
	require.Nil(s.T(), err)
	defer sock.Close()
	assert.Equal(s.T(), l.Addr().String(), sock.RemoteAddr().String())
	assert.NotNil(s.T(), sock.LocalAddr())

	conn := s.accept(l)
	_, err = sock.Write([]byte("over udp"))
	require.Nil(s.T(), err)
	buf := make([]byte, 64)
	require.Nil(s.T(), conn.SetReadDeadline(time.Now().Add(waitFor)))
	n, err := conn.Read(buf)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), "over udp", string(buf[:n]))
}

func (s *ListenerSuite) TestSniffer() {
	client, server := memory.NewPair("client", "server")
	l := s.pskListener(server, nil)
	defer l.Close()

	var mux sync.Mutex
	ops := map[string]int{}
	SetSniffPacketsCallback(func(transportType string, op string, from string, to string, data []byte) {
		mux.Lock()
		ops[transportType+":"+op]++
		mux.Unlock()
	})
	defer SetSniffPacketsCallback(nil)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	sock, err := DialContext(ctx, "server", &Config{
		Transport:   client,
		Credentials: Credentials{PSK: []byte("secretPSK"), PSKIdentity: []byte("device")},
	})
	require.Nil(s.T(), err)
	defer sock.Close()

	require.Eventually(s.T(), func() bool {
		mux.Lock()
		defer mux.Unlock()
		return ops["memory:"+SniffRead] >= 4 && ops["memory:"+SniffWrite] >= 4
	}, waitFor, 5*time.Millisecond)
}
