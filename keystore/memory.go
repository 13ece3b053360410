// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package keystore

import (
	"sync"
)

type MemoryKeyStore struct {
	mux  sync.RWMutex
	keys map[string][]byte
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string][]byte)}
}

func (ks *MemoryKeyStore) AddKey(identity string, psk []byte) {
	ks.mux.Lock()
	ks.keys[identity] = psk
	ks.mux.Unlock()
}

func (ks *MemoryKeyStore) RemoveKey(identity string) {
	ks.mux.Lock()
	delete(ks.keys, identity)
	ks.mux.Unlock()
}

func (ks *MemoryKeyStore) Len() int {
	ks.mux.RLock()
	defer ks.mux.RUnlock()
	return len(ks.keys)
}

func (ks *MemoryKeyStore) GetPsk(identity string, remoteAddr string) ([]byte, error) {
	ks.mux.RLock()
	psk, found := ks.keys[identity]
	ks.mux.RUnlock()
	if !found {
		return nil, nil
	}
	return psk, nil
}
