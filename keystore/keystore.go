// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package keystore

import (
	"sync"
)

// KeyStore resolves the PSK for an identity presented by remoteAddr. A nil
// key with a nil error means the identity is unknown to this store.
type KeyStore interface {
	GetPsk(identity string, remoteAddr string) ([]byte, error)
}

// Chain consults each store in turn and stops at the first hit or error.
type Chain []KeyStore

func (c Chain) GetPsk(identity string, remoteAddr string) ([]byte, error) {
	for _, ks := range c {
		psk, err := ks.GetPsk(identity, remoteAddr)
		if err != nil {
			return nil, err
		}
		if psk != nil {
			return psk, nil
		}
	}
	return nil, nil
}

var (
	keystoresMux sync.RWMutex
	keystores    Chain
)

// SetKeyStores replaces the process wide stores consulted by GetPsk.
func SetKeyStores(ks []KeyStore) {
	keystoresMux.Lock()
	keystores = Chain(ks)
	keystoresMux.Unlock()
}

func GetPsk(identity string, remoteAddr string) []byte {
	keystoresMux.RLock()
	c := keystores
	keystoresMux.RUnlock()
	psk, _ := c.GetPsk(identity, remoteAddr)
	return psk
}
