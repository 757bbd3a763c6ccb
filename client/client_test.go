// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/onevariable/postkit/dynamic"
	"github.com/onevariable/postkit/rpc"
	"github.com/onevariable/postkit/rpc/rpctest"
	"github.com/onevariable/postkit/transport"
)

func dial(t *testing.T) (*Client, *rpctest.Daemon) {
	t.Helper()
	conn, daemon := rpctest.NewPipe(t)
	link, err := transport.New(conn, transport.Options{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		daemon.AnswerPing()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := connectMux(ctx, link, Options{})
	require.NoError(t, err)
	<-done
	return c, daemon
}

// TestHappyPathTypedEndpoint: a loopback daemon stub
// returns a fixed device with one endpoint poststation/unique_id/get
// (req=unit, resp=u64); CallEndpointTyped must return the exact u64
// the stub emitted.
func TestHappyPathTypedEndpoint(t *testing.T) {
	c, daemon := dial(t)
	defer c.Close()

	const serial = uint64(7)
	reqKey := rpc.KeyForPath("poststation/unique_id/get#req")
	respKey := rpc.KeyForPath("poststation/unique_id/get#resp")

	report := &SchemaReport{
		Endpoints: []EndpointReport{{
			Path:     "poststation/unique_id/get",
			ReqKey:   reqKey,
			ReqType:  nil,
			RespKey:  respKey,
			RespType: &dynamic.NamedType{Name: "u64", Type: dynamic.Primitive(dynamic.KindU64)},
		}},
	}

	go func() {
		key, seq, _ := daemon.ReadRequest()
		require.Equal(t, rpctest.Key(keyGetSchemas), key)
		body, err := marshalCBOR(getSchemasResponse{Report: report})
		require.NoError(t, err)
		daemon.Respond(key, seq, body)

		key, seq, req := daemon.ReadRequest()
		require.Equal(t, rpctest.Key(keyProxy), key)
		var preq proxyRequest
		require.NoError(t, unmarshalCBOR(req, &preq))
		require.Equal(t, serial, preq.Serial)
		require.Equal(t, "poststation/unique_id/get", preq.Path)

		respBody, err := dynamic.Encode(dynamic.Primitive(dynamic.KindU64), dynamic.U64(424242))
		require.NoError(t, err)
		out, err := marshalCBOR(proxyOutcome{Kind: 0, Body: respBody})
		require.NoError(t, err)
		daemon.Respond(key, seq, out)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := c.CallEndpointTyped(ctx, serial, "poststation/unique_id/get", reqKey, respKey, 1, nil)
	require.NoError(t, err)

	v, err := dynamic.Decode(dynamic.Primitive(dynamic.KindU64), raw)
	require.NoError(t, err)
	require.Equal(t, uint64(424242), v.U64)
}

// TestDynamicProxyWithSchema: the
// stub exposes simulator/convert/u8i8 (req=u8, resp=i8);
// CallEndpointDynamic(value=0x80) must yield -128.
func TestDynamicProxyWithSchema(t *testing.T) {
	c, daemon := dial(t)
	defer c.Close()

	const serial = uint64(9)
	report := &SchemaReport{
		Endpoints: []EndpointReport{{
			Path:     "simulator/convert/u8i8",
			ReqKey:   rpc.KeyForPath("simulator/convert/u8i8#req"),
			ReqType:  &dynamic.NamedType{Name: "u8", Type: dynamic.Primitive(dynamic.KindU8)},
			RespKey:  rpc.KeyForPath("simulator/convert/u8i8#resp"),
			RespType: &dynamic.NamedType{Name: "i8", Type: dynamic.Primitive(dynamic.KindI8)},
		}},
	}

	go func() {
		key, seq, _ := daemon.ReadRequest()
		body, _ := marshalCBOR(getSchemasResponse{Report: report})
		daemon.Respond(key, seq, body)

		key, seq, req := daemon.ReadRequest()
		var preq proxyRequest
		require.NoError(t, unmarshalCBOR(req, &preq))
		v, err := dynamic.Decode(dynamic.Primitive(dynamic.KindU8), preq.Body)
		require.NoError(t, err)
		require.Equal(t, uint8(0x80), v.U8)

		respBody, _ := dynamic.Encode(dynamic.Primitive(dynamic.KindI8), dynamic.I8(int8(v.U8)))
		out, _ := marshalCBOR(proxyOutcome{Kind: 0, Body: respBody})
		daemon.Respond(key, seq, out)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := c.CallEndpointDynamic(ctx, serial, "simulator/convert/u8i8", 1, dynamic.U8(0x80))
	require.NoError(t, err)
	require.Equal(t, int8(-128), got.I8)
}

// TestConcurrentFanout: two subscribers on one topic
// must each observe the full, ordered sequence of pushed messages.
func TestConcurrentFanout(t *testing.T) {
	c, daemon := dial(t)
	defer c.Close()

	const serial = uint64(3)
	topicKey := rpc.KeyForPath("simulator/temperature")
	report := &SchemaReport{
		TopicsOut: []TopicReport{{
			Path: "simulator/temperature",
			Key:  topicKey,
			Type: &dynamic.NamedType{Name: "f64", Type: dynamic.Primitive(dynamic.KindF64)},
		}},
	}

	go func() {
		key, seq, _ := daemon.ReadRequest()
		body, _ := marshalCBOR(getSchemasResponse{Report: report})
		daemon.Respond(key, seq, body)
	}()
	report2, err := c.GetSchema(context.Background(), serial)
	require.NoError(t, err)
	require.NotNil(t, report2)

	sub1 := c.mux.SubscribeMulti(topicKey)
	sub2 := c.mux.SubscribeMulti(topicKey)

	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			body, _ := dynamic.Encode(dynamic.Primitive(dynamic.KindF64), dynamic.F64(float64(i)))
			daemon.PushTopic(rpctest.Key(topicKey), body)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		r1, err := sub1.Recv(ctx)
		require.NoError(t, err)
		require.Zero(t, r1.Lagged)
		v1, err := dynamic.Decode(dynamic.Primitive(dynamic.KindF64), r1.Message)
		require.NoError(t, err)
		require.Equal(t, float64(i), v1.F64)

		r2, err := sub2.Recv(ctx)
		require.NoError(t, err)
		v2, err := dynamic.Decode(dynamic.Primitive(dynamic.KindF64), r2.Message)
		require.NoError(t, err)
		require.Equal(t, float64(i), v2.F64)
	}
}

// TestLagBehavior: a subscriber that sleeps through
// 1000 messages must surface Lagged(n >= 936) then resume strictly
// after the last dropped message.
func TestLagBehavior(t *testing.T) {
	c, daemon := dial(t)
	defer c.Close()

	topicKey := rpc.KeyForPath("simulator/temperature")
	sub := c.mux.SubscribeMulti(topicKey)

	const n = 1000
	for i := 0; i < n; i++ {
		body, _ := dynamic.Encode(dynamic.Primitive(dynamic.KindU32), dynamic.U32(uint32(i)))
		daemon.PushTopic(rpctest.Key(topicKey), body)
	}
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Lagged, uint64(936))

	res, err = sub.Recv(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Lagged)
	v, err := dynamic.Decode(dynamic.Primitive(dynamic.KindU32), res.Message)
	require.NoError(t, err)
	require.Equal(t, uint32(n-64), v.U32)
}

// TestConnectionDrop: a mid-call socket close resolves
// all pending calls with ConnectionClosedError and a later call fails
// fast without I/O.
func TestConnectionDrop(t *testing.T) {
	c, daemon := dial(t)

	callDone := make(chan error, 1)
	go func() {
		_, err := c.ListDevices(context.Background())
		callDone <- err
	}()
	daemon.Close()

	var closedErr *ConnectionClosedError
	select {
	case err := <-callDone:
		require.Error(t, err)
		require.True(t, errors.As(err, &closedErr))
	case <-time.After(2 * time.Second):
		t.Fatal("call did not resolve after connection drop")
	}

	_, err := c.ListDevices(context.Background())
	require.Error(t, err)
	require.True(t, errors.As(err, &closedErr))
}

// TestStreamFiltersByStreamID: a listener never yields a message whose embedded
// stream id differs from the one StartStream returned; foreign ids
// are skipped silently so concurrent streams can share the broadcast
// topic.
func TestStreamFiltersByStreamID(t *testing.T) {
	c, daemon := dial(t)
	defer c.Close()

	const serial = uint64(5)
	topicKey := rpc.KeyForPath("simulator/temperature")
	report := &SchemaReport{
		TopicsOut: []TopicReport{{
			Path: "simulator/temperature",
			Key:  topicKey,
			Type: &dynamic.NamedType{Name: "u32", Type: dynamic.Primitive(dynamic.KindU32)},
		}},
	}

	ours := uuid.Must(uuid.NewV7())
	theirs := uuid.Must(uuid.NewV7())

	go func() {
		key, seq, _ := daemon.ReadRequest()
		require.Equal(t, rpctest.Key(keyGetSchemas), key)
		body, _ := marshalCBOR(getSchemasResponse{Report: report})
		daemon.Respond(key, seq, body)

		key, seq, _ = daemon.ReadRequest()
		require.Equal(t, rpctest.Key(keyStreamStart), key)
		out, _ := marshalCBOR(streamStartOutcome{Kind: uint8(StreamStarted), StreamID: ours[:]})
		daemon.Respond(key, seq, out)

		foreign, _ := dynamic.Encode(dynamic.Primitive(dynamic.KindU32), dynamic.U32(111))
		mine, _ := dynamic.Encode(dynamic.Primitive(dynamic.KindU32), dynamic.U32(222))
		daemon.PushTopic(rpctest.Key(keyStreamOut), encodeStreamFrame(theirs, foreign))
		daemon.PushTopic(rpctest.Key(keyStreamOut), encodeStreamFrame(ours, mine))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	listener, err := c.SubscribeTopicDynamic(ctx, serial, "simulator/temperature")
	require.NoError(t, err)

	v, closed, err := listener.Recv(ctx)
	require.NoError(t, err)
	require.False(t, closed)
	require.Equal(t, uint32(222), v.U32)
}

// TestWireErrorSurfacing: a wire-error response for one
// in-flight request resolves only that call as a RemoteError.
func TestWireErrorSurfacing(t *testing.T) {
	c, daemon := dial(t)
	defer c.Close()

	go func() {
		key, seq, _ := daemon.ReadRequest()
		require.Equal(t, rpctest.Key(keyGetDevices), key)
		daemon.Respond(rpctest.Key(rpc.ErrorKey), seq, []byte{byte(4)}) // UnknownKey
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.ListDevices(ctx)
	require.Error(t, err)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Contains(t, err.Error(), "WireErr: UnknownKey")
}
