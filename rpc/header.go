// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Package rpc implements the asynchronous multiplexer that lets many
// concurrent callers share one transport.Link, correlating responses
// to requests by sequence number and fanning out topic frames to
// subscribers.
package rpc

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// Key is the 8-byte opaque endpoint/topic identifier used for
// wire-level routing. Two keys are the same iff their bytes are equal; postkit
// never derives a device endpoint's or topic's key itself, it only
// compares keys supplied by the schema report. Reserved paths get
// their keys from KeyForPath.
type Key [8]byte

// KeyForPath derives a stable Key from a path string. Real key
// derivation (hashing path + request/response type schemas) happens
// upstream of this SDK, in the daemon and the device toolchains; this
// helper computes postkit's reserved keys (the ping and error keys
// below, and the daemon's admin-plane endpoint keys in package client)
// and lets tests mint deterministic descriptor fixtures, without a
// full schema-hashing implementation.
func KeyForPath(path string) Key {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	var k Key
	binary.LittleEndian.PutUint64(k[:], h.Sum64())
	return k
}

// Equal reports whether two keys match over their full 8 bytes.
func (k Key) Equal(other Key) bool { return k == other }

// MarshalBinary/UnmarshalBinary let Key round-trip through any codec
// that understands encoding.BinaryMarshaler (notably CBOR, used for
// the admin-plane control messages in package client), as a plain
// 8-byte string rather than an array of 8 small integers.
func (k Key) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8)
	copy(out, k[:])
	return out, nil
}

func (k *Key) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("rpc: key must be 8 bytes, got %d", len(data))
	}
	copy(k[:], data)
	return nil
}

// Reserved paths and their keys.
const (
	PingPath  = "postcard-rpc/ping"
	ErrorPath = "postcard-rpc/error"
)

var (
	// PingKey identifies the connect-time ping round-trip endpoint.
	PingKey = KeyForPath(PingPath)
	// ErrorKey is the reserved key the daemon uses to report a
	// malformed request (transport.WireError body) in lieu of a
	// normal response.
	ErrorKey = KeyForPath(ErrorPath)
)

// SeqKind is the configured sequence-number width. Only the widest
// (32-bit) form is used on the connect path; no width negotiation is
// implemented.
type SeqKind uint8

const (
	Seq1 SeqKind = iota
	Seq2
	Seq4
)

// encodeRequestFrame lays out a request/response frame as
// key(8) || seq(4, LE) || body. Two header shapes ride on the same
// key type: 12 bytes for sequenced request/response frames, 8 bytes
// for unsequenced topic frames (see encodeTopicFrame); the dispatch
// loop tells them apart by which table recognizes the incoming key.
func encodeRequestFrame(key Key, seq uint32, body []byte) []byte {
	out := make([]byte, 12+len(body))
	copy(out[0:8], key[:])
	binary.LittleEndian.PutUint32(out[8:12], seq)
	copy(out[12:], body)
	return out
}

// encodeTopicFrame lays out a topic frame as key(8) || body, with no
// sequence number: topic messages are not individually correlated to
// a pending slot, only fanned out to subscribers of that key.
func encodeTopicFrame(key Key, body []byte) []byte {
	out := make([]byte, 8+len(body))
	copy(out[0:8], key[:])
	copy(out[8:], body)
	return out
}

func keyFromBytes(b []byte) Key {
	var k Key
	copy(k[:], b)
	return k
}
