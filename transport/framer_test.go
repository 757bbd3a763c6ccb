// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		{0x00},
		{0x00, 0x00, 0x00},
		bytes.Repeat([]byte{0xAA}, 254),
		bytes.Repeat([]byte{0xAA}, 255),
		bytes.Repeat([]byte{0x00}, 300),
		[]byte("hello, poststation"),
	}
	for _, payload := range cases {
		enc := Encode(payload)
		require.NotContains(t, enc, byte(0x00), "encoded buffer must never contain a zero byte")
		dec, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, payload, dec)
	}
}

func TestDecodeRejectsEmbeddedZero(t *testing.T) {
	_, err := Decode([]byte{0x02, 0x41, 0x00})
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedBlock(t *testing.T) {
	_, err := Decode([]byte{0x05, 0x41, 0x42})
	require.Error(t, err)
}

func TestReceiverFeedSplitAcrossChunks(t *testing.T) {
	r := NewReceiver()
	full := EncodeFrame([]byte("abc"))

	// Feed one byte at a time to exercise accumulation.
	var frames [][]byte
	for i := range full {
		fs, err := r.Feed(full[i : i+1])
		require.NoError(t, err)
		frames = append(frames, fs...)
	}
	require.Len(t, frames, 1)
	require.Equal(t, []byte("abc"), frames[0])
}

func TestReceiverFeedMultipleFramesOneChunk(t *testing.T) {
	r := NewReceiver()
	chunk := append(EncodeFrame([]byte("one")), EncodeFrame([]byte("two"))...)
	frames, err := r.Feed(chunk)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, frames)
}

func TestReceiverStreamingEquivalence(t *testing.T) {
	// Concatenate several frames and feed them back in uneven chunk
	// sizes; the receiver must yield exactly the original payloads in
	// order, with no spurious frames.
	payloads := [][]byte{
		[]byte("alpha"),
		{0x00, 0x01, 0x00},
		bytes.Repeat([]byte{0x7F}, 300),
		[]byte("omega"),
	}
	var wire []byte
	for _, p := range payloads {
		wire = append(wire, EncodeFrame(p)...)
	}

	r := NewReceiver()
	var got [][]byte
	for len(wire) > 0 {
		n := 7
		if n > len(wire) {
			n = len(wire)
		}
		frames, err := r.Feed(wire[:n])
		require.NoError(t, err)
		got = append(got, frames...)
		wire = wire[n:]
	}
	require.Equal(t, payloads, got)
}

func TestReceiverOverflow(t *testing.T) {
	r := NewReceiver()
	junk := bytes.Repeat([]byte{0x01}, MaxAccumulator+1)
	_, err := r.Feed(junk)
	require.ErrorIs(t, err, ErrRxOverflow)
}

func TestReceiverResumesAfterOverflow(t *testing.T) {
	r := NewReceiver()
	junk := bytes.Repeat([]byte{0x01}, MaxAccumulator+1)
	_, err := r.Feed(junk)
	require.ErrorIs(t, err, ErrRxOverflow)

	// The overflow cleared the accumulator; the tail of the oversized
	// frame keeps arriving and is resynchronized at its terminator,
	// after which normal framing resumes.
	tail := append(bytes.Repeat([]byte{0x01}, 10), 0x00)
	frames, err := r.Feed(append(tail, EncodeFrame([]byte("ok"))...))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("ok")}, frames)
}

func TestReceiverSkipsMalformedFrameAndKeepsScanning(t *testing.T) {
	r := NewReceiver()
	bad := []byte{0x05, 0x41, 0x42, 0x00} // claims a 4-byte block, has 2
	good := EncodeFrame([]byte("ok"))
	frames, err := r.Feed(append(bad, good...))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("ok")}, frames)
}
