// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package client

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/onevariable/postkit/rpc"
)

// Wire request/response shapes for the admin-plane endpoints the
// daemon itself serves. Bodies are CBOR (github.com/fxamacker/cbor/v2,
// already wired for dynamic.Value debug output): the admin plane only
// needs to be consistent between postkit and the daemon end to end,
// unlike the device bodies, which must follow the schema-directed
// codec in package dynamic.

type getSchemasResponse struct {
	Report *SchemaReport `cbor:"report"`
}

type logRequest struct {
	Serial uint64 `cbor:"serial"`
	Count  uint32 `cbor:"count"`
}

type logRangeRequest struct {
	Serial    uint64  `cbor:"serial"`
	AnchorID  *[]byte `cbor:"anchor_id"`
	AnchorTs  *uint64 `cbor:"anchor_ts"`
	Count     uint32  `cbor:"count"`
	Direction uint8   `cbor:"direction"`
}

type logsResponse struct {
	Logs []Log `cbor:"logs"`
}

type topicRequest struct {
	Serial uint64  `cbor:"serial"`
	Path   string  `cbor:"path"`
	Key    rpc.Key `cbor:"key"`
	Count  uint32  `cbor:"count"`
}

type topicMsgsResponse struct {
	Msgs []TopicMsg `cbor:"msgs"`
}

type proxyRequest struct {
	Serial  uint64  `cbor:"serial"`
	Path    string  `cbor:"path"`
	ReqKey  rpc.Key `cbor:"req_key"`
	RespKey rpc.Key `cbor:"resp_key"`
	SeqNo   uint32  `cbor:"seq_no"`
	Body    []byte  `cbor:"body"`
}

// proxyOutcome mirrors ProxyResponse{Ok|WireErr|OtherErr}.
type proxyOutcome struct {
	Kind    uint8  `cbor:"kind"` // 0=Ok, 1=WireErr, 2=OtherErr
	Body    []byte `cbor:"body"`
	Message string `cbor:"message"`
}

type publishRequest struct {
	Serial    uint64  `cbor:"serial"`
	Path      string  `cbor:"path"`
	TopicKey  rpc.Key `cbor:"topic_key"`
	SeqNo     uint32  `cbor:"seq_no"`
	TopicBody []byte  `cbor:"topic_body"`
}

// publishOutcome mirrors PublishResponse{Sent|OtherErr}.
type publishOutcome struct {
	Sent    bool   `cbor:"sent"`
	Message string `cbor:"message"`
}

type streamStartRequest struct {
	Serial uint64  `cbor:"serial"`
	Path   string  `cbor:"path"`
	Key    rpc.Key `cbor:"key"`
}

// streamStartOutcome mirrors TopicStreamResult.
type streamStartOutcome struct {
	Kind     uint8  `cbor:"kind"` // StreamStartKind
	StreamID []byte `cbor:"stream_id"`
}

func marshalCBOR(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

func unmarshalCBOR(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
