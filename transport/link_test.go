// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinkSendRecvRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	client, err := New(clientConn, Options{})
	require.NoError(t, err)
	defer client.Close()

	go func() {
		buf := make([]byte, 4096)
		n, _ := serverConn.Read(buf)
		serverConn.Write(buf[:n])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, client.Send(ctx, EncodeFrame([]byte("ping"))))

	select {
	case frame := <-client.Recv():
		require.Equal(t, []byte("ping"), frame)
	case <-ctx.Done():
		t.Fatal("timed out waiting for echoed frame")
	}
}

func TestLinkRecvClosesOnPeerHangup(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	client, err := New(clientConn, Options{})
	require.NoError(t, err)

	serverConn.Close()

	select {
	case _, ok := <-client.Recv():
		require.False(t, ok, "recv channel should be closed after peer hangup")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recv channel to close")
	}

	require.Error(t, client.Err())
}

func TestLinkCloseIsIdempotent(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	client, err := New(clientConn, Options{})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestServerNameForHost(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "127.0.0.1"},
		{"::1", "::1"},
		{"poststation.local", "poststation.local"},
		{"bücher.example", "xn--bcher-kva.example"},
	}
	for _, c := range cases {
		got, err := serverNameForHost(c.host)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestLinkSendAfterCloseFails(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	client, err := New(clientConn, Options{})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = client.Send(ctx, EncodeFrame([]byte("x")))
	require.Error(t, err)
}
