// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk configuration, JSON or YAML by extension.
// Paths point to PEM or DER files.
type fileConfig struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	Listen     string `json:"listen" yaml:"listen"`
	Identity   string `json:"identity" yaml:"identity"`
	PskHex     string `json:"psk_hex" yaml:"psk_hex"`
	Key        string `json:"key" yaml:"key"`
	Cert       string `json:"cert" yaml:"cert"`
	CA         string `json:"ca" yaml:"ca"`
	Keystore   string `json:"keystore" yaml:"keystore"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	DebugLevel int    `json:"debug_level" yaml:"debug_level"`
	Timeout    string `json:"timeout" yaml:"timeout"`
}

func defaultConfig() *fileConfig {
	return &fileConfig{
		Host:     "localhost",
		Port:     5684,
		Listen:   ":5684",
		LogLevel: "warn",
		Timeout:  "30s",
	}
}

// loadConfig reads path over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (*fileConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *fileConfig) psk() ([]byte, error) {
	if c.PskHex == "" {
		return nil, nil
	}
	psk, err := hex.DecodeString(c.PskHex)
	if err != nil {
		return nil, fmt.Errorf("psk: %w", err)
	}
	return psk, nil
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(filepath.Clean(path))
}

// material loads the key, certificate and CA files named in c.
func (c *fileConfig) material() (key []byte, cert []byte, ca []byte, err error) {
	if key, err = readOptional(c.Key); err != nil {
		return nil, nil, nil, fmt.Errorf("key: %w", err)
	}
	if cert, err = readOptional(c.Cert); err != nil {
		return nil, nil, nil, fmt.Errorf("cert: %w", err)
	}
	if ca, err = readOptional(c.CA); err != nil {
		return nil, nil, nil, fmt.Errorf("ca: %w", err)
	}
	return key, cert, ca, nil
}
