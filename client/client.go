// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package client

import (
	"context"
	"crypto/x509"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/onevariable/postkit/dynamic"
	"github.com/onevariable/postkit/rpc"
	"github.com/onevariable/postkit/transport"
)

var (
	keyGetDevices  = rpc.KeyForPath(pathGetDevices)
	keyGetSchemas  = rpc.KeyForPath(pathGetSchemas)
	keyGetLogs     = rpc.KeyForPath(pathGetLogs)
	keyGetLogsRng  = rpc.KeyForPath(pathGetLogsRng)
	keyGetTopics   = rpc.KeyForPath(pathGetTopics)
	keyProxy       = rpc.KeyForPath(pathProxy)
	keyPublish     = rpc.KeyForPath(pathPublish)
	keyStreamStart = rpc.KeyForPath(pathStreamStart)
	keyStreamStop  = rpc.KeyForPath(pathStreamStop)
	keyStreamOut   = rpc.KeyForPath(pathStreamOut)
)

// Client is postkit's typed RPC surface: the thing most callers
// import. One Client owns one Mux (and transitively one Link/socket).
type Client struct {
	mux   *rpc.Mux
	log   *log.Logger
	cache *schemaCache
}

// Options configures Connect.
type Options struct {
	Logger  *log.Logger
	Metrics *rpc.Metrics
}

// Connect dials addr in plaintext and performs the ping handshake.
// Plaintext is only appropriate on loopback; it is the caller's
// responsibility to enforce that policy.
func Connect(ctx context.Context, addr string, opts Options) (*Client, error) {
	link, err := transport.DialTCP(ctx, addr, transport.Options{Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return connectMux(ctx, link, opts)
}

// ConnectTLS dials addr over TLS 1.2+, verifying the peer against
// caPool (see LoadCAPool), then performs the ping handshake.
func ConnectTLS(ctx context.Context, addr string, caPool *x509.CertPool, opts Options) (*Client, error) {
	link, err := transport.DialTLS(ctx, addr, caPool, transport.Options{Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return connectMux(ctx, link, opts)
}

func connectMux(ctx context.Context, link *transport.Link, opts Options) (*Client, error) {
	mux, err := rpc.Connect(ctx, link, rpc.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	if err != nil {
		return nil, NewProtocolError("connect: %w", err)
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "client"})
	} else {
		lg = lg.WithPrefix("client")
	}
	return &Client{mux: mux, log: lg, cache: newSchemaCache()}, nil
}

// Close shuts the Client (and its Mux/Link) down. Idempotent.
func (c *Client) Close() error {
	return c.mux.Close()
}

func (c *Client) call(ctx context.Context, key rpc.Key, req interface{}, resp interface{}) error {
	body, err := marshalCBOR(req)
	if err != nil {
		return NewEncodingError("marshal request for key %x: %w", key, err)
	}
	respBody, err := c.mux.Call(ctx, key, key, body)
	if err != nil {
		return translateMuxErr(err)
	}
	if resp == nil {
		return nil
	}
	if err := unmarshalCBOR(respBody, resp); err != nil {
		return NewEncodingError("unmarshal response for key %x: %w", key, err)
	}
	return nil
}

func translateMuxErr(err error) error {
	if err == nil {
		return nil
	}
	var we *rpc.WireErr
	switch {
	case errors.As(err, &we):
		return NewRemoteError("WireErr: %s", we.Err)
	case errors.Is(err, rpc.ErrConnectionClosed):
		return NewConnectionClosedError("%w", err)
	case errors.Is(err, rpc.ErrProtocol):
		return NewProtocolError("%w", err)
	default:
		return err
	}
}

// ListDevices returns every device the daemon currently knows about.
func (c *Client) ListDevices(ctx context.Context) ([]DeviceData, error) {
	var devices []DeviceData
	if err := c.call(ctx, keyGetDevices, struct{}{}, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// GetSchema returns serial's cached schema report, fetching it from
// the daemon on first use. Returns (nil, nil) if the daemon has no
// such device.
func (c *Client) GetSchema(ctx context.Context, serial uint64) (*SchemaReport, error) {
	if report, ok := c.cache.get(serial); ok {
		return report, nil
	}
	var resp getSchemasResponse
	if err := c.call(ctx, keyGetSchemas, serial, &resp); err != nil {
		return nil, err
	}
	if resp.Report == nil {
		return nil, nil
	}
	c.cache.put(serial, resp.Report)
	return resp.Report, nil
}

// GetLogs returns up to count of serial's newest log records, or nil
// if the daemon has no such device.
func (c *Client) GetLogs(ctx context.Context, serial uint64, count uint32) ([]Log, error) {
	var resp logsResponse
	req := logRequest{Serial: serial, Count: count}
	if err := c.call(ctx, keyGetLogs, req, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// GetLogsRange returns a paginated window of serial's logs anchored
// at anchor.
func (c *Client) GetLogsRange(ctx context.Context, serial uint64, count uint32, dir LogDirection, anchor Anchor) ([]Log, error) {
	req := logRangeRequest{Serial: serial, Count: count, Direction: uint8(dir)}
	if anchor.UUID != nil {
		b := anchor.UUID[:]
		req.AnchorID = &b
	}
	if anchor.UnixMsTs != nil {
		req.AnchorTs = anchor.UnixMsTs
	}
	var resp logsResponse
	if err := c.call(ctx, keyGetLogsRng, req, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// GetTopicMsgsRaw returns the newest count messages published on path
// for serial, as opaque bytes.
func (c *Client) GetTopicMsgsRaw(ctx context.Context, serial uint64, path string, count uint32) ([]TopicMsg, error) {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return nil, err
	}
	topic, ok := findTopic(report.TopicsOut, path)
	if !ok {
		return nil, NewServerError("endpoint not found: %s", path)
	}
	req := topicRequest{Serial: serial, Path: path, Key: topic.Key, Count: count}
	var resp topicMsgsResponse
	if err := c.call(ctx, keyGetTopics, req, &resp); err != nil {
		return nil, err
	}
	return resp.Msgs, nil
}

// GetTopicMsgsJSON returns the same messages as GetTopicMsgsRaw, each
// decoded through the topic's schema tree into a dynamic.Value.
func (c *Client) GetTopicMsgsJSON(ctx context.Context, serial uint64, path string, count uint32) ([]dynamic.Value, error) {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return nil, err
	}
	topic, ok := findTopic(report.TopicsOut, path)
	if !ok {
		return nil, NewServerError("endpoint not found: %s", path)
	}
	raw, err := c.GetTopicMsgsRaw(ctx, serial, path, count)
	if err != nil {
		return nil, err
	}
	schema := namedTypeToDataModel(topic.Type)
	out := make([]dynamic.Value, 0, len(raw))
	for _, m := range raw {
		v, err := dynamic.Decode(schema, m.Msg)
		if err != nil {
			return nil, NewDynamicError("decode topic message: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Client) requireSchema(ctx context.Context, serial uint64) (*SchemaReport, error) {
	report, err := c.GetSchema(ctx, serial)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, NewServerError("no such device: %d", serial)
	}
	return report, nil
}

// CallEndpointDynamic proxies a request to serial's endpoint at path,
// encoding body against the endpoint's request schema and decoding
// the response against its response schema. Dynamic resolution
// matches on path only. seqNo is the caller-chosen proxy sequence
// relayed to the device.
func (c *Client) CallEndpointDynamic(ctx context.Context, serial uint64, path string, seqNo uint32, body dynamic.Value) (dynamic.Value, error) {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return dynamic.Value{}, err
	}
	ep, ok := findEndpoint(report, path)
	if !ok {
		return dynamic.Value{}, NewServerError("endpoint not found: %s", path)
	}
	reqSchema := namedTypeToDataModel(ep.ReqType)
	encoded, err := dynamic.Encode(reqSchema, body)
	if err != nil {
		return dynamic.Value{}, NewDynamicError("encode request body for %s: %w", path, err)
	}

	respBytes, err := c.proxy(ctx, serial, path, ep.ReqKey, ep.RespKey, seqNo, encoded)
	if err != nil {
		return dynamic.Value{}, err
	}

	respSchema := namedTypeToDataModel(ep.RespType)
	v, err := dynamic.Decode(respSchema, respBytes)
	if err != nil {
		return dynamic.Value{}, NewDynamicError("decode response body for %s: %w", path, err)
	}
	return v, nil
}

// CallEndpointTyped proxies reqBody (already encoded by the caller
// against its own compile-time type) to serial's endpoint at path,
// requiring an exact match of both request and response keys against
// the device's schema report. seqNo is the caller-chosen proxy
// sequence relayed to the device.
func (c *Client) CallEndpointTyped(ctx context.Context, serial uint64, path string, reqKey, respKey rpc.Key, seqNo uint32, reqBody []byte) ([]byte, error) {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return nil, err
	}
	ep, ok := findEndpoint(report, path)
	if !ok || ep.ReqKey != reqKey || ep.RespKey != respKey {
		return nil, NewServerError("endpoint not found: %s", path)
	}
	return c.proxy(ctx, serial, path, reqKey, respKey, seqNo, reqBody)
}

// proxy relays a request through the daemon to the device: the
// daemon's response carries Ok/WireErr/OtherErr, translated here into
// a plain byte slice or a RemoteError/ConnectionClosedError/ProtocolError.
func (c *Client) proxy(ctx context.Context, serial uint64, path string, reqKey, respKey rpc.Key, seqNo uint32, body []byte) ([]byte, error) {
	req := proxyRequest{
		Serial:  serial,
		Path:    path,
		ReqKey:  reqKey,
		RespKey: respKey,
		SeqNo:   seqNo,
		Body:    body,
	}
	var resp proxyOutcome
	if err := c.call(ctx, keyProxy, req, &resp); err != nil {
		return nil, err
	}
	switch resp.Kind {
	case 0: // Ok
		return resp.Body, nil
	case 1: // WireErr
		return nil, NewRemoteError("WireErr: %s", resp.Message)
	default: // OtherErr
		return nil, NewRemoteError("Other Server Err: '%s'", resp.Message)
	}
}

// PublishTopicDynamic publishes body on serial's topic at path,
// encoding it against the topic's schema tree.
func (c *Client) PublishTopicDynamic(ctx context.Context, serial uint64, path string, seqNo uint32, body dynamic.Value) error {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return err
	}
	topic, ok := findTopic(report.TopicsIn, path)
	if !ok {
		return NewServerError("endpoint not found: %s", path)
	}
	encoded, err := dynamic.Encode(namedTypeToDataModel(topic.Type), body)
	if err != nil {
		return NewDynamicError("encode publish body for %s: %w", path, err)
	}
	return c.publish(ctx, serial, path, topic.Key, seqNo, encoded)
}

// PublishTopicTyped publishes an already-encoded body on serial's
// topic at path, after verifying path+key against the schema report.
func (c *Client) PublishTopicTyped(ctx context.Context, serial uint64, path string, key rpc.Key, seqNo uint32, body []byte) error {
	report, err := c.requireSchema(ctx, serial)
	if err != nil {
		return err
	}
	topic, ok := findTopic(report.TopicsIn, path)
	if !ok || topic.Key != key {
		return NewServerError("endpoint not found: %s", path)
	}
	return c.publish(ctx, serial, path, key, seqNo, body)
}

func (c *Client) publish(ctx context.Context, serial uint64, path string, key rpc.Key, seqNo uint32, body []byte) error {
	req := publishRequest{Serial: serial, Path: path, TopicKey: key, SeqNo: seqNo, TopicBody: body}
	var resp publishOutcome
	if err := c.call(ctx, keyPublish, req, &resp); err != nil {
		return err
	}
	if !resp.Sent {
		return NewRemoteError("Other Server Err: '%s'", resp.Message)
	}
	return nil
}

// StopStream sends StopStreamEndpoint for streamID. StreamListener.Close
// calls this automatically; exported so callers that only hold a raw
// stream id (e.g. after a process restart) can still stop it.
func (c *Client) StopStream(ctx context.Context, streamID uuid.UUID) error {
	idBytes := streamID
	return c.call(ctx, keyStreamStop, idBytes, nil)
}

// namedTypeToDataModel extracts the DataModelType out of a reported
// NamedType. A nil NamedType (e.g. the endpoint takes no body)
// resolves to a Unit schema node.
func namedTypeToDataModel(nt *dynamic.NamedType) *dynamic.DataModelType {
	if nt == nil {
		return dynamic.Primitive(dynamic.KindUnit)
	}
	return nt.Type
}
