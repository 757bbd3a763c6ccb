// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package rpc

import "github.com/onevariable/postkit/transport"

// WireErr is returned by Call when the daemon answered the request
// with the reserved error key instead of a normal response. It wraps
// the decoded transport.WireError so the typed-RPC layer can surface
// the variant detail.
type WireErr struct {
	Err transport.WireError
}

func (e *WireErr) Error() string {
	return "rpc: daemon reported " + e.Err.String()
}

// parseWireError decodes the body of a reserved-ErrorKey frame. Layout
// is 1 byte of transport.WireErrorKind followed by kind-specific
// fields, little-endian: FrameTooLong carries len(u32)+max(u32),
// FrameTooShort carries len(u32), every other kind carries no extra
// bytes. Malformed bodies degrade to a bare Kind with zeroed fields
// rather than being dropped, since the kind alone is still actionable.
func parseWireError(body []byte) *transport.WireError {
	we := &transport.WireError{}
	if len(body) == 0 {
		return we
	}
	we.Kind = transport.WireErrorKind(body[0])
	rest := body[1:]
	switch we.Kind {
	case transport.FrameTooLong:
		if len(rest) >= 8 {
			we.Len = leUint32(rest[0:4])
			we.Max = leUint32(rest[4:8])
		}
	case transport.FrameTooShort:
		if len(rest) >= 4 {
			we.ShortLen = leUint32(rest[0:4])
		}
	}
	return we
}
