// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package client

import (
	"github.com/google/uuid"

	"github.com/onevariable/postkit/dynamic"
	"github.com/onevariable/postkit/rpc"
)

// Reserved admin-plane paths exposed by the daemon itself.
const (
	pathGetDevices  = "rack/devices/get"
	pathGetSchemas  = "rack/devices/schemas/get"
	pathGetLogs     = "rack/devices/logs/get"
	pathGetLogsRng  = "rack/devices/logs/range/get"
	pathGetTopics   = "rack/devices/topics/get"
	pathProxy       = "rack/devices/proxy"
	pathPublish     = "rack/devices/publish"
	pathStreamStart = "rack/devices/stream/start"
	pathStreamStop  = "rack/devices/stream/stop"
	pathStreamOut   = "rack/devices/stream"
)

// DeviceData describes one device known to the daemon.
type DeviceData struct {
	Serial       uint64  `cbor:"serial"`
	Name         string  `cbor:"name"`
	IsConnected  bool    `cbor:"is_connected"`
	Manufacturer *string `cbor:"manufacturer"`
	Product      *string `cbor:"product"`
}

// SchemaReport is a device's self-description, cached per serial once
// received (reports are immutable). The cached entry is dropped when a
// stream start reports the device unknown or disconnected.
type SchemaReport struct {
	Types     []dynamic.NamedType `cbor:"types"`
	TopicsIn  []TopicReport       `cbor:"topics_in"`
	TopicsOut []TopicReport       `cbor:"topics_out"`
	Endpoints []EndpointReport    `cbor:"endpoints"`
}

// TopicReport describes one topic a device exposes.
type TopicReport struct {
	Path string             `cbor:"path"`
	Key  rpc.Key            `cbor:"key"`
	Type *dynamic.NamedType `cbor:"type"`
}

// EndpointReport describes one endpoint a device exposes.
type EndpointReport struct {
	Path     string             `cbor:"path"`
	ReqKey   rpc.Key            `cbor:"req_key"`
	ReqType  *dynamic.NamedType `cbor:"req_type"`
	RespKey  rpc.Key            `cbor:"resp_key"`
	RespType *dynamic.NamedType `cbor:"resp_type"`
}

// Log is one retrieved log record.
type Log struct {
	UUID uuid.UUID `cbor:"uuidv7"`
	Msg  string    `cbor:"msg"`
}

// LogDirection selects which side of an Anchor to page towards.
type LogDirection uint8

const (
	Before LogDirection = iota
	After
)

// Anchor locates a page boundary for GetLogsRange: either a specific
// log's UUIDv7, or a raw Unix-millisecond timestamp.
type Anchor struct {
	UUID     *uuid.UUID
	UnixMsTs *uint64
}

func AnchorUUID(id uuid.UUID) Anchor { return Anchor{UUID: &id} }
func AnchorUnixMs(ts uint64) Anchor  { return Anchor{UnixMsTs: &ts} }
func (a Anchor) IsZero() bool        { return a.UUID == nil && a.UnixMsTs == nil }

// TopicMsg is one retrieved topic history record.
type TopicMsg struct {
	UUID uuid.UUID `cbor:"uuidv7"`
	Msg  []byte    `cbor:"msg"`
}

// StreamStartKind mirrors TopicStreamResult's variant tag.
type StreamStartKind uint8

const (
	StreamStarted StreamStartKind = iota
	StreamNoDeviceKnown
	StreamDeviceDisconnected
	StreamNoSuchTopic
)
