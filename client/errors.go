// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Package client is postkit's typed RPC surface: the thing most
// callers import. It resolves endpoints/topics through a device's
// schema report, drives the rpc.Mux, and exposes a closed error
// taxonomy.
package client

import "fmt"

// ConnectionClosedError reports that the underlying pipe is gone: all
// in-flight requests fail and all subscriptions end.
type ConnectionClosedError struct{ inner error }

func NewConnectionClosedError(f string, a ...interface{}) *ConnectionClosedError {
	return &ConnectionClosedError{inner: fmt.Errorf(f, a...)}
}

func (e *ConnectionClosedError) Error() string { return "connection closed: " + e.inner.Error() }
func (e *ConnectionClosedError) Unwrap() error { return e.inner }

// ProtocolError reports a header/sequence/kind inconsistency, or a
// failed ping handshake.
type ProtocolError struct{ inner error }

func NewProtocolError(f string, a ...interface{}) *ProtocolError {
	return &ProtocolError{inner: fmt.Errorf(f, a...)}
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.inner.Error() }
func (e *ProtocolError) Unwrap() error { return e.inner }

// EncodingError reports that a typed decode failed against a locally
// supplied Go type — the caller's compile-time type disagrees with
// what the device actually reports in its schema.
type EncodingError struct{ inner error }

func NewEncodingError(f string, a ...interface{}) *EncodingError {
	return &EncodingError{inner: fmt.Errorf(f, a...)}
}

func (e *EncodingError) Error() string { return "encoding error: " + e.inner.Error() }
func (e *EncodingError) Unwrap() error { return e.inner }

// DynamicError reports that schema-directed encode/decode of a
// dynamic value failed.
type DynamicError struct{ inner error }

func NewDynamicError(f string, a ...interface{}) *DynamicError {
	return &DynamicError{inner: fmt.Errorf(f, a...)}
}

func (e *DynamicError) Error() string { return "dynamic error: " + e.inner.Error() }
func (e *DynamicError) Unwrap() error { return e.inner }

// ServerError reports a structural failure reported by the daemon
// itself: missing device, missing endpoint/topic, stream setup
// failure.
type ServerError struct{ inner error }

func NewServerError(f string, a ...interface{}) *ServerError {
	return &ServerError{inner: fmt.Errorf(f, a...)}
}

func (e *ServerError) Error() string { return "server error: " + e.inner.Error() }
func (e *ServerError) Unwrap() error { return e.inner }

// RemoteError reports that the device itself returned a wire error,
// or the daemon surfaced an upstream-device failure while proxying.
type RemoteError struct{ inner error }

func NewRemoteError(f string, a ...interface{}) *RemoteError {
	return &RemoteError{inner: fmt.Errorf(f, a...)}
}

func (e *RemoteError) Error() string { return "remote error: " + e.inner.Error() }
func (e *RemoteError) Unwrap() error { return e.inner }
