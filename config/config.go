// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Package config loads postkit's CLI configuration from a TOML file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TLSConfig holds the CA certificate path used to verify the daemon
// when Address is dialed over TLS. A zero value means "use
// client.DefaultCACertPath()".
type TLSConfig struct {
	CAFile string `toml:"ca_file"`
}

// Config is postkit's on-disk CLI configuration.
type Config struct {
	// Address is the daemon's host:port.
	Address string `toml:"address"`
	// TLS is nil for plaintext connections (loopback only); non-nil
	// requests ConnectTLS.
	TLS *TLSConfig `toml:"tls"`
	// DefaultSerial is the device serial cmd/postkit operates on when
	// -serial isn't passed explicitly.
	DefaultSerial uint64 `toml:"default_serial"`
}

// Load decodes a TOML config file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("config: %s: address is required", path)
	}
	return &cfg, nil
}
