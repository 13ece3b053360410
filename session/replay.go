// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package session

const replayWindowSize = 64

// replayWindow tracks the last replayWindowSize sequence numbers below the
// highest one seen.
type replayWindow struct {
	seen   bool
	latest uint64
	mask   uint64
}

func (w *replayWindow) check(seq uint64) bool {
	if !w.seen || seq > w.latest {
		return true
	}
	diff := w.latest - seq
	if diff >= replayWindowSize {
		return false
	}
	return w.mask&(1<<diff) == 0
}

func (w *replayWindow) accept(seq uint64) {
	if !w.seen {
		w.seen = true
		w.latest = seq
		w.mask = 1
		return
	}
	if seq > w.latest {
		shift := seq - w.latest
		if shift >= replayWindowSize {
			w.mask = 1
		} else {
			w.mask = w.mask<<shift | 1
		}
		w.latest = seq
		return
	}
	w.mask |= 1 << (w.latest - seq)
}
