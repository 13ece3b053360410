// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package memory

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/qwerty-iot/dtlssocket/transport"
)

const queueLen = 1024

// Addr is the net.Addr of an in-memory endpoint.
type Addr string

func (a Addr) Network() string { return "memory" }
func (a Addr) String() string  { return string(a) }

// Endpoint is one side of an in-memory datagram link. Datagrams are dropped
// when the receiving queue is full or the receiver has shut down.
type Endpoint struct {
	name   string
	remote *Endpoint
	inbox  chan []byte
	done   chan struct{}

	mux      sync.Mutex
	closed   bool
	bound    bool
	deadline time.Time
	wake     chan struct{}
	filter   func(data []byte) bool
}

// NewPair returns two endpoints wired to each other.
func NewPair(a, b string) (*Endpoint, *Endpoint) {
	ea := newEndpoint(a)
	eb := newEndpoint(b)
	ea.remote = eb
	eb.remote = ea
	return ea, eb
}

func newEndpoint(name string) *Endpoint {
	return &Endpoint{name: name, inbox: make(chan []byte, queueLen), done: make(chan struct{}), wake: make(chan struct{}, 1)}
}

// SetFilter installs a hook on outgoing datagrams, a false return drops the datagram.
func (e *Endpoint) SetFilter(f func(data []byte) bool) {
	e.mux.Lock()
	e.filter = f
	e.mux.Unlock()
}

func (e *Endpoint) Type() string {
	return "memory"
}

func (e *Endpoint) Local() string {
	return e.name
}

func (e *Endpoint) Addr() net.Addr {
	return Addr(e.name)
}

func (e *Endpoint) Bind(port int, address string) error {
	e.mux.Lock()
	defer e.mux.Unlock()
	if e.closed {
		return net.ErrClosed
	}
	if e.bound {
		return transport.ErrAlreadyBound
	}
	e.bound = true
	return nil
}

func (e *Endpoint) NewPeer(address string) (transport.Peer, error) {
	return &peer{local: e, remote: e.remote}, nil
}

func (e *Endpoint) ReadPacket() ([]byte, transport.Peer, error) {
	for {
		e.mux.Lock()
		deadline := e.deadline
		e.mux.Unlock()

		var timer *time.Timer
		var timeout <-chan time.Time
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return nil, nil, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(d)
			timeout = timer.C
		}

		var data []byte
		var err error
		woken := false
		select {
		case <-e.done:
			err = net.ErrClosed
		default:
			select {
			case data = <-e.inbox:
			case <-e.done:
				err = net.ErrClosed
			case <-timeout:
				err = os.ErrDeadlineExceeded
			case <-e.wake:
				woken = true
			}
		}
		if timer != nil {
			timer.Stop()
		}
		if woken {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return data, &peer{local: e, remote: e.remote}, nil
	}
}

func (e *Endpoint) SetReadDeadline(t time.Time) error {
	e.mux.Lock()
	e.deadline = t
	e.mux.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Endpoint) Shutdown() error {
	e.mux.Lock()
	defer e.mux.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)
	return nil
}

// Closed reports whether Shutdown has been called.
func (e *Endpoint) Closed() bool {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.closed
}

type peer struct {
	local  *Endpoint
	remote *Endpoint
}

func (p *peer) String() string {
	return p.remote.name
}

func (p *peer) WritePacket(data []byte) error {
	p.local.mux.Lock()
	closed := p.local.closed
	filter := p.local.filter
	p.local.mux.Unlock()
	if closed {
		return net.ErrClosed
	}
	if filter != nil && !filter(data) {
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case <-p.remote.done:
	case p.remote.inbox <- buf:
	default:
	}
	return nil
}
