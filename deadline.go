// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"sync"
	"time"
)

// deadline is a resettable point in time whose wait channel is closed once
// it passes.
type deadline struct {
	mux     sync.Mutex
	timer   *time.Timer
	expired chan struct{}
}

func newDeadline() *deadline {
	return &deadline{expired: make(chan struct{})}
}

func (d *deadline) set(t time.Time) {
	d.mux.Lock()
	defer d.mux.Unlock()

	if d.timer != nil && !d.timer.Stop() {
		<-d.expired
	}
	d.timer = nil

	closed := isClosedChan(d.expired)
	if t.IsZero() {
		if closed {
			d.expired = make(chan struct{})
		}
		return
	}

	if dur := time.Until(t); dur > 0 {
		if closed {
			d.expired = make(chan struct{})
		}
		expired := d.expired
		d.timer = time.AfterFunc(dur, func() {
			close(expired)
		})
		return
	}

	if !closed {
		close(d.expired)
	}
}

func (d *deadline) wait() chan struct{} {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.expired
}

func isClosedChan(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
