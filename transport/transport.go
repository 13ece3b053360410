// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"errors"
	"net"
	"time"
)

var (
	ErrAlreadyBound = errors.New("transport: already bound")
	ErrBadAddress   = errors.New("transport: invalid address")
)

// Transport is a datagram endpoint. ReadPacket blocks until a datagram
// arrives and returns net.ErrClosed once Shutdown has been called.
type Transport interface {
	Type() string
	Local() string
	Addr() net.Addr
	Bind(port int, address string) error
	NewPeer(address string) (Peer, error)
	ReadPacket() ([]byte, Peer, error)
	Shutdown() error
}

type Peer interface {
	String() string
	WritePacket(data []byte) error
}

// Deadliner is implemented by transports whose blocked ReadPacket can be
// released without shutting the transport down.
type Deadliner interface {
	SetReadDeadline(t time.Time) error
}

type NilPeer struct {
}

func (p *NilPeer) String() string {
	return "nil"
}

func (p *NilPeer) WritePacket(data []byte) error {
	return nil
}

// IsClosed reports whether err is the error a transport returns after Shutdown.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// IsTimeout reports whether err came from an expired read deadline.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
