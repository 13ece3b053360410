package keystore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestKeystoreSuite(t *testing.T) {
	suite.Run(t, new(KeystoreSuite))
}

type KeystoreSuite struct {
	suite.Suite
}

type failingStore struct{}

func (failingStore) GetPsk(identity string, remoteAddr string) ([]byte, error) {
	return nil, errors.New("backend down")
}

func (s *KeystoreSuite) TestMemory() {
	ks := NewMemoryKeyStore()
	ks.AddKey("id", []byte("secret"))

	psk, err := ks.GetPsk("id", "127.0.0.1:1")
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), []byte("secret"), psk)

	psk, err = ks.GetPsk("other", "127.0.0.1:1")
	assert.Nil(s.T(), err)
	assert.Nil(s.T(), psk)

	ks.RemoveKey("id")
	assert.Equal(s.T(), 0, ks.Len())
}

func (s *KeystoreSuite) TestChain() {
	a := NewMemoryKeyStore()
	a.AddKey("a", []byte{1})
	b := NewMemoryKeyStore()
	b.AddKey("b", []byte{2})

	c := Chain{a, b}
	psk, err := c.GetPsk("b", "")
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), []byte{2}, psk)

	c = Chain{a, failingStore{}, b}
	_, err = c.GetPsk("b", "")
	assert.NotNil(s.T(), err)
	psk, _ = c.GetPsk("a", "")
	assert.Equal(s.T(), []byte{1}, psk)
}

func (s *KeystoreSuite) TestGlobal() {
	defer SetKeyStores(nil)
	a := NewMemoryKeyStore()
	a.AddKey("a", []byte{1})
	SetKeyStores([]KeyStore{a})
	assert.Equal(s.T(), []byte{1}, GetPsk("a", ""))
	assert.Nil(s.T(), GetPsk("x", ""))
}

func (s *KeystoreSuite) TestParse() {
	ks, err := Parse([]byte(`{"keys":[{"identity":"Client_identity","psk":"secretPSK"},{"identity":"hexed","pskHex":"0011223344"}]}`))
	require.Nil(s.T(), err)

	psk, _ := ks.GetPsk("Client_identity", "")
	assert.Equal(s.T(), []byte("secretPSK"), psk)
	psk, _ = ks.GetPsk("hexed", "")
	assert.Equal(s.T(), []byte{0x00, 0x11, 0x22, 0x33, 0x44}, psk)

	_, err = Parse([]byte(`{"keys":[{"psk":"x"}]}`))
	assert.ErrorIs(s.T(), err, ErrNoIdentity)

	_, err = Parse([]byte(`{"keys":[{"identity":"x","pskHex":"zz"}]}`))
	assert.NotNil(s.T(), err)

	_, err = Parse([]byte(`not json`))
	assert.NotNil(s.T(), err)
}

func (s *KeystoreSuite) TestSaveLoad() {
	path := filepath.Join(s.T().TempDir(), "keys.json")
	ks := NewMemoryKeyStore()
	ks.AddKey("id", []byte{9, 8, 7})
	require.Nil(s.T(), ks.Save(path))

	loaded, err := LoadFile(path)
	require.Nil(s.T(), err)
	psk, _ := loaded.GetPsk("id", "")
	assert.Equal(s.T(), []byte{9, 8, 7}, psk)

	_, err = LoadFile(filepath.Join(s.T().TempDir(), "missing.json"))
	assert.NotNil(s.T(), err)
}
