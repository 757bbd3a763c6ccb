// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package client

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultCACertPath returns the per-user location postkit looks for
// a CA certificate when the caller doesn't supply one explicitly.
func DefaultCACertPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("client: locate user config dir: %w", err)
	}
	return filepath.Join(dir, "postkit", "ca-cert.pem"), nil
}

// LoadCAPool reads a PEM-encoded CA certificate from path and returns
// a pool containing just that certificate. Self-signed certificates
// are permitted.
func LoadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("client: read CA cert %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("client: %s contains no usable PEM certificate", path)
	}
	return pool, nil
}
