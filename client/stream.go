// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package client

import (
	"context"

	"github.com/google/uuid"

	"github.com/onevariable/postkit/dynamic"
	"github.com/onevariable/postkit/rpc"
)

// StreamListener delivers topic frames for one active stream,
// filtering the shared broadcast topic down to frames whose embedded
// stream id matches the one the daemon returned at stream start.
type StreamListener struct {
	client   *Client
	sub      *rpc.Subscription
	streamID uuid.UUID
	schema   *dynamic.DataModelType // nil for raw (typed) listeners
}

// Recv blocks for the next topic message belonging to this stream,
// skipping frames from any other concurrent stream sharing the same
// broadcast topic. Once the underlying subscription ends it returns
// (Value{}, true, nil).
func (s *StreamListener) Recv(ctx context.Context) (dynamic.Value, bool, error) {
	for {
		res, err := s.sub.Recv(ctx)
		if err != nil {
			return dynamic.Value{}, false, err
		}
		if res.Closed {
			return dynamic.Value{}, true, nil
		}
		if res.Lagged > 0 {
			s.client.log.Warnf("stream %s lagged, dropped %d messages", s.streamID, res.Lagged)
			continue
		}
		id, body, ok := splitStreamFrame(res.Message)
		if !ok || id != s.streamID {
			continue
		}
		if s.schema == nil {
			return dynamic.Value{Kind: dynamic.KindByteArray, Bytes: body}, false, nil
		}
		v, err := dynamic.Decode(s.schema, body)
		if err != nil {
			return dynamic.Value{}, false, NewDynamicError("decode stream message: %w", err)
		}
		return v, false, nil
	}
}

// Close stops the stream: it detaches the local subscription and asks
// the daemon to tear down its stream bookkeeping, so server-side
// state doesn't leak once the caller stops reading.
func (s *StreamListener) Close(ctx context.Context) error {
	s.sub.Close()
	return s.client.StopStream(ctx, s.streamID)
}

// splitStreamFrame extracts the 16-byte stream id prefix from a
// stream topic frame body.
func splitStreamFrame(raw []byte) (uuid.UUID, []byte, bool) {
	if len(raw) < 16 {
		return uuid.UUID{}, nil, false
	}
	var id uuid.UUID
	copy(id[:], raw[:16])
	return id, raw[16:], true
}

func encodeStreamFrame(id uuid.UUID, body []byte) []byte {
	out := make([]byte, 16+len(body))
	copy(out[:16], id[:])
	copy(out[16:], body)
	return out
}

// SubscribeTopicDynamic starts a stream for serial's topic at path,
// decoding each message through the topic's schema tree.
func (c *Client) SubscribeTopicDynamic(ctx context.Context, serial uint64, path string) (*StreamListener, error) {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return nil, err
	}
	topic, ok := findTopic(report.TopicsOut, path)
	if !ok {
		return nil, NewServerError("endpoint not found: %s", path)
	}
	return c.startStream(ctx, serial, path, topic.Key, namedTypeToDataModel(topic.Type))
}

// SubscribeTopicTyped starts a stream for serial's topic at path,
// returning raw message bytes for the caller to decode with its own
// compile-time type.
func (c *Client) SubscribeTopicTyped(ctx context.Context, serial uint64, path string, key rpc.Key) (*StreamListener, error) {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return nil, err
	}
	topic, ok := findTopic(report.TopicsOut, path)
	if !ok || topic.Key != key {
		return nil, NewServerError("endpoint not found: %s", path)
	}
	return c.startStream(ctx, serial, path, key, nil)
}

func (c *Client) startStream(ctx context.Context, serial uint64, path string, key rpc.Key, schema *dynamic.DataModelType) (*StreamListener, error) {
	sub := c.mux.SubscribeMulti(keyStreamOut)

	req := streamStartRequest{Serial: serial, Path: path, Key: key}
	var resp streamStartOutcome
	if err := c.call(ctx, keyStreamStart, req, &resp); err != nil {
		sub.Close()
		return nil, err
	}

	switch StreamStartKind(resp.Kind) {
	case StreamStarted:
		var id uuid.UUID
		copy(id[:], resp.StreamID)
		return &StreamListener{client: c, sub: sub, streamID: id, schema: schema}, nil
	case StreamNoDeviceKnown:
		sub.Close()
		c.cache.invalidate(serial)
		return nil, NewServerError("no such device: %d", serial)
	case StreamDeviceDisconnected:
		sub.Close()
		c.cache.invalidate(serial)
		return nil, NewServerError("device disconnected: %d", serial)
	default: // StreamNoSuchTopic
		sub.Close()
		return nil, NewServerError("endpoint not found: %s", path)
	}
}
