// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"sync/atomic"
)

const (
	SniffWrite = "write"
	SniffRead  = "read"
)

// SniffPacketsCallback observes raw datagrams. It runs on its own
// goroutine and owns data.
type SniffPacketsCallback func(transportType string, op string, from string, to string, data []byte)

var sniffActivityCallback atomic.Value

func SetSniffPacketsCallback(callback SniffPacketsCallback) {
	sniffActivityCallback.Store(callback)
}

func sniffActivity(transportType string, op string, from string, to string, data []byte) {
	cb, _ := sniffActivityCallback.Load().(SniffPacketsCallback)
	if cb != nil {
		go cb(transportType, op, from, to, append([]byte(nil), data...))
	}
}
