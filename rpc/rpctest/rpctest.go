// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Package rpctest provides a loopback stub daemon for exercising the
// rpc and client packages end-to-end without a real Poststation
// process: it drives the far end of a net.Pipe like a minimal daemon,
// scriptable from the test body.
package rpctest

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onevariable/postkit/transport"
)

// Key mirrors rpc.Key's layout without importing package rpc (which
// would create an import cycle from rpc's own tests through here);
// both are plain [8]byte, so callers freely convert between them.
type Key [8]byte

// Daemon drives one side of a net.Pipe like a minimal Poststation: it
// answers the connect-time ping handshake when AnswerPing is called and
// exposes primitives for scripting further responses and topic pushes.
type Daemon struct {
	t    *testing.T
	conn net.Conn
	rx   *transport.Receiver
}

// NewPipe returns a client-side net.Conn (hand this to transport.New)
// and a Daemon driving the other end. The ping handshake is not
// answered until the caller runs AnswerPing.
func NewPipe(t *testing.T) (net.Conn, *Daemon) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close() })
	d := &Daemon{t: t, conn: serverConn, rx: transport.NewReceiver()}
	return clientConn, d
}

// ReadFrame blocks for the next complete frame sent by the client.
func (d *Daemon) ReadFrame() []byte {
	d.t.Helper()
	buf := make([]byte, 4096)
	for {
		n, err := d.conn.Read(buf)
		require.NoError(d.t, err)
		frames, err := d.rx.Feed(buf[:n])
		require.NoError(d.t, err)
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

// WriteFrame COBS-encodes and terminates raw, then writes it whole.
func (d *Daemon) WriteFrame(raw []byte) {
	d.t.Helper()
	_, err := d.conn.Write(transport.EncodeFrame(raw))
	require.NoError(d.t, err)
}

// AnswerPing reads one request frame (assumed to be the connect-time
// ping) and echoes its body back under the same key and sequence
// number.
func (d *Daemon) AnswerPing() {
	d.t.Helper()
	frame := d.ReadFrame()
	require.GreaterOrEqual(d.t, len(frame), 12)
	seq := binary.LittleEndian.Uint32(frame[8:12])
	d.WriteFrame(d.reqFrame(keyOf(frame[:8]), seq, frame[12:]))
}

// ReadRequest blocks for the next request/response-shaped frame
// (key+seq+body) and returns its key, sequence number, and body.
func (d *Daemon) ReadRequest() (key Key, seq uint32, body []byte) {
	d.t.Helper()
	frame := d.ReadFrame()
	require.GreaterOrEqual(d.t, len(frame), 12)
	return keyOf(frame[:8]), binary.LittleEndian.Uint32(frame[8:12]), frame[12:]
}

// Respond writes a normal response frame for a request previously
// read with ReadRequest, under the same key and sequence number.
func (d *Daemon) Respond(key Key, seq uint32, body []byte) {
	d.WriteFrame(d.reqFrame(key, seq, body))
}

// PushTopic writes an unsequenced topic frame under key.
func (d *Daemon) PushTopic(key Key, body []byte) {
	out := make([]byte, 8+len(body))
	copy(out[:8], key[:])
	copy(out[8:], body)
	d.WriteFrame(out)
}

// Close closes the daemon's side of the pipe, simulating a connection
// drop.
func (d *Daemon) Close() {
	d.conn.Close()
}

func (d *Daemon) reqFrame(key Key, seq uint32, body []byte) []byte {
	out := make([]byte, 12+len(body))
	copy(out[0:8], key[:])
	binary.LittleEndian.PutUint32(out[8:12], seq)
	copy(out[12:], body)
	return out
}

func keyOf(b []byte) Key {
	var k Key
	copy(k[:], b)
	return k
}
