// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postkit.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPlaintext(t *testing.T) {
	path := writeTemp(t, `
address = "127.0.0.1:9999"
default_serial = 42
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Address)
	require.Equal(t, uint64(42), cfg.DefaultSerial)
	require.Nil(t, cfg.TLS)
}

func TestLoadTLS(t *testing.T) {
	path := writeTemp(t, `
address = "poststation.local:9999"

[tls]
ca_file = "/etc/postkit/ca-cert.pem"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.TLS)
	require.Equal(t, "/etc/postkit/ca-cert.pem", cfg.TLS.CAFile)
}

func TestLoadRequiresAddress(t *testing.T) {
	path := writeTemp(t, `default_serial = 1`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	require.Error(t, err)
}
