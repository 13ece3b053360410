// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package keystore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// FileEntry is one identity in a key file. Exactly one of Psk (raw string)
// or PskHex should be set.
type FileEntry struct {
	Identity string `json:"identity"`
	Psk      string `json:"psk,omitempty"`
	PskHex   string `json:"pskHex,omitempty"`
}

type fileFormat struct {
	Keys []FileEntry `json:"keys"`
}

var ErrNoIdentity = errors.New("keystore: entry without identity")

// LoadFile reads a JSON key file of the form {"keys":[{"identity":..,"pskHex":..}]}.
func LoadFile(path string) (*MemoryKeyStore, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*MemoryKeyStore, error) {
	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	ks := NewMemoryKeyStore()
	for idx, e := range f.Keys {
		if e.Identity == "" {
			return nil, fmt.Errorf("%w at index %d", ErrNoIdentity, idx)
		}
		psk := []byte(e.Psk)
		if e.PskHex != "" {
			var err error
			if psk, err = hex.DecodeString(e.PskHex); err != nil {
				return nil, fmt.Errorf("keystore: identity %s: %w", e.Identity, err)
			}
		}
		ks.AddKey(e.Identity, psk)
	}
	return ks, nil
}

// Save writes the store in the format LoadFile reads, keys hex encoded.
func (ks *MemoryKeyStore) Save(path string) error {
	ks.mux.RLock()
	f := fileFormat{Keys: make([]FileEntry, 0, len(ks.keys))}
	for id, psk := range ks.keys {
		f.Keys = append(f.Keys, FileEntry{Identity: id, PskHex: hex.EncodeToString(psk)})
	}
	ks.mux.RUnlock()
	raw, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), raw, 0600)
}
