// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package udp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/transport"
)

const maxPacketSize = 65535

type UdpPeer struct {
	addr   *net.UDPAddr
	handle *UdpHandle
}

// UdpHandle is a UDP transport. The socket is bound by Bind, or on the
// first write to an ephemeral port; ReadPacket waits until then.
type UdpHandle struct {
	opts options

	mux    sync.Mutex
	socket *net.UDPConn
	bound  chan struct{}
	done   chan struct{}
	closed bool
}

func NewUdpHandle(opts ...Option) *UdpHandle {
	u := &UdpHandle{bound: make(chan struct{}), done: make(chan struct{})}
	u.opts.network = "udp"
	for _, o := range opts {
		o(&u.opts)
	}
	return u
}

// Listen returns a handle already bound to listenAddress ("host:port").
func Listen(listenAddress string, opts ...Option) (*UdpHandle, error) {
	if len(listenAddress) == 0 {
		listenAddress = ":0"
	}
	host, portStr, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, transport.ErrBadAddress
	}
	u := NewUdpHandle(opts...)
	if err := u.Bind(port, host); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UdpHandle) Type() string {
	return "udp"
}

func (u *UdpHandle) Local() string {
	if a := u.Addr(); a != nil {
		return a.String()
	}
	return ""
}

func (u *UdpHandle) Addr() net.Addr {
	u.mux.Lock()
	defer u.mux.Unlock()
	if u.socket == nil {
		return nil
	}
	return u.socket.LocalAddr()
}

func (u *UdpHandle) Bind(port int, address string) error {
	u.mux.Lock()
	defer u.mux.Unlock()
	if u.closed {
		return net.ErrClosed
	}
	if u.socket != nil {
		return transport.ErrAlreadyBound
	}
	return u.bindLocked(net.JoinHostPort(address, strconv.Itoa(port)))
}

func (u *UdpHandle) bindLocked(listenAddress string) error {
	lc := net.ListenConfig{}
	if u.opts.reuseAddr {
		lc.Control = reuseControl
	}
	pc, err := lc.ListenPacket(context.Background(), u.opts.network, listenAddress)
	if err != nil {
		return err
	}
	socket := pc.(*net.UDPConn)
	if err := u.opts.apply(socket); err != nil {
		_ = socket.Close()
		return err
	}
	u.socket = socket
	close(u.bound)
	return nil
}

func (u *UdpHandle) conn() (*net.UDPConn, error) {
	u.mux.Lock()
	defer u.mux.Unlock()
	if u.closed {
		return nil, net.ErrClosed
	}
	if u.socket == nil {
		if err := u.bindLocked(":0"); err != nil {
			return nil, err
		}
	}
	return u.socket, nil
}

func (u *UdpHandle) ReadPacket() ([]byte, transport.Peer, error) {
	select {
	case <-u.bound:
	case <-u.done:
		return nil, nil, net.ErrClosed
	}
	buffer := make([]byte, maxPacketSize)
	length, from, err := u.socket.ReadFromUDP(buffer)
	if err != nil {
		if !transport.IsClosed(err) && !transport.IsTimeout(err) {
			common.LogError("dtls: failed to receive packet: %s", err.Error())
		}
		return nil, nil, err
	}
	return buffer[:length], &UdpPeer{addr: from, handle: u}, nil
}

func (u *UdpHandle) SetReadDeadline(t time.Time) error {
	u.mux.Lock()
	defer u.mux.Unlock()
	if u.socket == nil {
		return nil
	}
	return u.socket.SetReadDeadline(t)
}

func (u *UdpHandle) Shutdown() error {
	u.mux.Lock()
	defer u.mux.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	close(u.done)
	if u.socket != nil {
		return u.socket.Close()
	}
	return nil
}

func (u *UdpHandle) NewPeer(addr string) (transport.Peer, error) {
	ua, err := net.ResolveUDPAddr(u.opts.network, addr)
	if err != nil {
		return nil, err
	}
	return &UdpPeer{addr: ua, handle: u}, nil
}

func (p *UdpPeer) WritePacket(data []byte) error {
	socket, err := p.handle.conn()
	if err != nil {
		return err
	}
	_, err = socket.WriteToUDP(data, p.addr)
	return err
}

func (p *UdpPeer) String() string {
	return p.addr.String()
}

func (p *UdpPeer) Addr() *net.UDPAddr {
	return p.addr
}

type options struct {
	network    string
	reuseAddr  bool
	tos        int
	ttl        int
	readBuffer int
}

type Option func(*options)

// WithNetwork restricts the socket to "udp4" or "udp6".
func WithNetwork(network string) Option {
	return func(o *options) {
		o.network = network
	}
}

// WithReuseAddr sets SO_REUSEADDR and SO_REUSEPORT where supported.
func WithReuseAddr(reuse bool) Option {
	return func(o *options) {
		o.reuseAddr = reuse
	}
}

// WithTOS sets the IPv4 TOS byte or the IPv6 traffic class.
func WithTOS(tos int) Option {
	return func(o *options) {
		o.tos = tos
	}
}

// WithTTL sets the IPv4 TTL or the IPv6 hop limit.
func WithTTL(ttl int) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

func WithReadBuffer(size int) Option {
	return func(o *options) {
		o.readBuffer = size
	}
}

func (o *options) apply(socket *net.UDPConn) error {
	if o.readBuffer > 0 {
		if err := socket.SetReadBuffer(o.readBuffer); err != nil {
			return err
		}
	}
	if o.tos == 0 && o.ttl == 0 {
		return nil
	}
	la, _ := socket.LocalAddr().(*net.UDPAddr)
	if la != nil && la.IP.To4() != nil && !la.IP.IsUnspecified() || o.network == "udp4" {
		c := ipv4.NewConn(socket)
		if o.tos != 0 {
			if err := c.SetTOS(o.tos); err != nil {
				return err
			}
		}
		if o.ttl != 0 {
			if err := c.SetTTL(o.ttl); err != nil {
				return err
			}
		}
		return nil
	}
	c := ipv6.NewConn(socket)
	if o.tos != 0 {
		if err := c.SetTrafficClass(o.tos); err != nil {
			return err
		}
	}
	if o.ttl != 0 {
		if err := c.SetHopLimit(o.ttl); err != nil {
			return err
		}
	}
	return nil
}
