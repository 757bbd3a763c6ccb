// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the byte-level framing and the link
// that owns a single bidirectional byte pipe (TCP or TLS-over-TCP)
// between postkit and a Poststation daemon.
//
// Framing is Consistent Overhead Byte Stuffing (COBS): Encode never
// produces a 0x00 byte, so 0x00 can be used unconditionally as a
// frame terminator on the wire.
package transport

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// MaxAccumulator is the hard cap on unterminated bytes the Receiver
// will buffer before giving up and reporting ErrRxOverflow.
const MaxAccumulator = 1 << 20 // 1 MiB

// ErrRxOverflow is returned when the receive accumulator grows past
// MaxAccumulator without finding a frame terminator.
var ErrRxOverflow = errors.New("transport: receive accumulator overflow")

// Encode COBS-encodes payload. The result never contains a 0x00 byte.
func Encode(payload []byte) []byte {
	// Worst case overhead is one extra byte per 254 input bytes, plus
	// the leading length byte.
	out := make([]byte, 0, len(payload)+len(payload)/254+2)

	// codeIdx holds the position in out of the not-yet-written code
	// byte for the block currently being accumulated.
	addBlock := func() int {
		out = append(out, 0)
		return len(out) - 1
	}

	codeIdx := addBlock()
	code := byte(1)

	for _, b := range payload {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = addBlock()
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			out[codeIdx] = code
			codeIdx = addBlock()
			code = 1
		}
	}
	out[codeIdx] = code
	return out
}

// Decode inverts Encode. It returns an error if data is not a
// well-formed COBS-encoded buffer (e.g. it still contains an embedded
// 0x00, or a block-length byte runs past the end of data).
func Decode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		code := data[i]
		if code == 0 {
			return nil, fmt.Errorf("transport: cobs decode: zero code byte at offset %d", i)
		}
		i++
		blockLen := int(code) - 1
		if i+blockLen > len(data) {
			return nil, fmt.Errorf("transport: cobs decode: truncated block at offset %d", i)
		}
		if indexZero(data[i:i+blockLen]) >= 0 {
			return nil, fmt.Errorf("transport: cobs decode: zero byte inside block at offset %d", i)
		}
		out = append(out, data[i:i+blockLen]...)
		i += blockLen
		if code != 0xFF && i < len(data) {
			out = append(out, 0)
		}
	}
	return out, nil
}

// EncodeFrame returns the complete on-wire representation of payload:
// cobs_encode(payload) || 0x00.
func EncodeFrame(payload []byte) []byte {
	enc := Encode(payload)
	enc = append(enc, 0x00)
	return enc
}

// Receiver incrementally reassembles frames out of an arbitrarily
// chunked byte stream. It is not safe for concurrent use; callers
// must serialize calls to Feed (the Link's reader goroutine is the
// only caller in practice).
type Receiver struct {
	buf []byte
	log *log.Logger
	// resync is set after an overflow: incoming bytes are dropped up to
	// and including the next 0x00 before framing resumes.
	resync bool
}

// NewReceiver returns an empty Receiver.
func NewReceiver() *Receiver {
	return &Receiver{}
}

// Feed appends chunk to the accumulator and extracts every complete
// frame now available. Corrupt frames are skipped with a logged
// warning carrying the discarded length; only fatal conditions are
// reported as errors. ErrRxOverflow is fatal for the underlying Link;
// a Receiver used on its own discards everything up to the next 0x00
// after an overflow and then resumes framing.
func (r *Receiver) Feed(chunk []byte) ([][]byte, error) {
	r.buf = append(r.buf, chunk...)
	if r.resync {
		idx := indexZero(r.buf)
		if idx < 0 {
			r.buf = r.buf[:0]
			return nil, nil
		}
		r.buf = r.buf[idx+1:]
		r.resync = false
	}

	var frames [][]byte
	for {
		idx := indexZero(r.buf)
		if idx < 0 {
			break
		}
		frame := r.buf[:idx]
		r.buf = r.buf[idx+1:]

		if len(frame) == 0 {
			continue
		}
		decoded, err := Decode(frame)
		if err != nil {
			if r.log != nil {
				r.log.Warn("discarding undecodable frame", "len", len(frame), "err", err)
			}
			continue
		}
		frames = append(frames, decoded)
	}

	if len(r.buf) > MaxAccumulator {
		r.buf = nil
		r.resync = true
		return frames, ErrRxOverflow
	}
	return frames, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
