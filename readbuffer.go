// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"io"
	"os"
	"sync"
)

// readBuffer holds decrypted records until Read picks them up. Records are
// held back until the buffer is marked ready. Once promised, the buffer is
// going to become ready and end keeps its records.
type readBuffer struct {
	mux      sync.Mutex
	chunks   [][]byte
	ready    bool
	promised bool
	eof      bool
	wake     chan struct{}
}

func newReadBuffer(ready bool) *readBuffer {
	return &readBuffer{ready: ready, promised: ready, wake: make(chan struct{})}
}

func (r *readBuffer) push(data []byte) {
	r.mux.Lock()
	r.chunks = append(r.chunks, data)
	r.signalLocked()
	r.mux.Unlock()
}

// end makes Read return io.EOF once the buffered records are consumed. Records
// of a buffer that was never promised are discarded.
func (r *readBuffer) end() {
	r.mux.Lock()
	r.eof = true
	r.signalLocked()
	r.mux.Unlock()
}

func (r *readBuffer) promise() {
	r.mux.Lock()
	r.promised = true
	r.mux.Unlock()
}

func (r *readBuffer) setReady() {
	r.mux.Lock()
	r.ready = true
	r.signalLocked()
	r.mux.Unlock()
}

func (r *readBuffer) signalLocked() {
	close(r.wake)
	r.wake = make(chan struct{})
}

func (r *readBuffer) read(b []byte, dl *deadline) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		if isClosedChan(dl.wait()) {
			return 0, os.ErrDeadlineExceeded
		}
		r.mux.Lock()
		if len(r.chunks) > 0 && r.ready {
			n := copy(b, r.chunks[0])
			if n < len(r.chunks[0]) {
				r.chunks[0] = r.chunks[0][n:]
			} else {
				r.chunks[0] = nil
				r.chunks = r.chunks[1:]
			}
			r.mux.Unlock()
			return n, nil
		}
		if r.eof && (len(r.chunks) == 0 || !r.promised) {
			r.mux.Unlock()
			return 0, io.EOF
		}
		wake := r.wake
		r.mux.Unlock()

		select {
		case <-wake:
		case <-dl.wait():
			return 0, os.ErrDeadlineExceeded
		}
	}
}
