// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/net/idna"

	"github.com/onevariable/postkit/internal/worker"
)

// ErrConnError reports a fatal I/O failure or EOF encountered while
// reading or writing the underlying pipe. It is always fatal for the
// Link that produced it.
var ErrConnError = errors.New("transport: connection error")

// ErrLinkClosed is returned by Send once the Link has shut down.
var ErrLinkClosed = errors.New("transport: link closed")

const sendQueueDepth = 64

// Link owns the read and write halves of a single bidirectional byte
// pipe and turns it into a channel of inbound frames plus a
// cancellable Send. It never interprets frame contents; that is the
// Mux's job one layer up. A reader goroutine feeds recvCh, a writer
// goroutine drains sendCh, and both hang off one worker.Worker halt
// signal.
type Link struct {
	worker.Worker

	conn net.Conn
	log  *log.Logger

	recvCh chan []byte
	sendCh chan sendReq

	shutdownOnce sync.Once
	closed       chan struct{}
	closeErr     error
}

type sendReq struct {
	frame []byte
	done  chan error
}

// Options configures how a Link is established.
type Options struct {
	// Logger, if nil, defaults to a Link-prefixed logger on stderr.
	Logger *log.Logger
}

func newLogger(prefix string, l *log.Logger) *log.Logger {
	if l != nil {
		return l.WithPrefix(prefix)
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
	})
}

// DialTCP opens a plaintext TCP connection. Plaintext is only
// appropriate on loopback; callers are responsible for enforcing that
// policy (e.g. in the CLI layer) since Link itself is transport-agnostic.
func DialTCP(ctx context.Context, addr string, opts Options) (*Link, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	// Go's dialer disables Nagle-style coalescing by default; the
	// plaintext path turns it back on.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(false)
	}
	return newLink(conn, opts)
}

// DialTLS opens a TLS 1.2+ connection to addr, verifying the peer
// against caPool (a caller-supplied root store; self-signed roots are
// permitted). The TLS ServerName is the host part of addr: an IP
// literal is used unchanged, and a hostname is IDNA-encoded and used
// as the ServerName; it is not replaced by the resolved peer IP.
func DialTLS(ctx context.Context, addr string, caPool *x509.CertPool, opts Options) (*Link, error) {
	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("transport: split host/port %s: %w", addr, err)
	}
	host, err = serverNameForHost(host)
	if err != nil {
		rawConn.Close()
		return nil, err
	}

	// Nagle-style coalescing is disabled on the TLS path only; the
	// plaintext path leaves it enabled.
	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	cfg := &tls.Config{
		RootCAs:    caPool,
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
	tlsConn := tls.Client(rawConn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("transport: tls handshake %s: %w", addr, err)
	}
	return newLink(tlsConn, opts)
}

// serverNameForHost returns the SNI name for a dialed host: IP
// literals pass through untouched, hostnames are IDNA-encoded first.
func serverNameForHost(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	encoded, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("transport: idna encode %s: %w", host, err)
	}
	return encoded, nil
}

// New wraps an already-established net.Conn (e.g. one half of a
// net.Pipe in tests, or a unix socket) as a Link. DialTCP and DialTLS
// are thin conveniences on top of this for the TCP/TLS cases.
func New(conn net.Conn, opts Options) (*Link, error) {
	return newLink(conn, opts)
}

func newLink(conn net.Conn, opts Options) (*Link, error) {
	l := &Link{
		conn:   conn,
		log:    newLogger("transport/link", opts.Logger),
		recvCh: make(chan []byte, 64),
		sendCh: make(chan sendReq, sendQueueDepth),
		closed: make(chan struct{}),
	}
	l.Go(l.readLoop)
	l.Go(l.writeLoop)
	return l, nil
}

func (l *Link) readLoop() {
	defer l.log.Debug("read loop terminating")
	defer close(l.recvCh)
	rx := &Receiver{log: l.log}
	buf := make([]byte, 4096)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			frames, ferr := rx.Feed(buf[:n])
			for _, f := range frames {
				select {
				case l.recvCh <- f:
				case <-l.HaltCh():
					return
				}
			}
			if ferr != nil {
				l.log.Warn("receive accumulator overflow, disconnecting")
				l.shutdown(ferr)
				return
			}
		}
		if err != nil {
			l.log.Debugf("read error: %v", err)
			l.shutdown(fmt.Errorf("%w: %v", ErrConnError, err))
			return
		}
	}
}

func (l *Link) writeLoop() {
	defer l.log.Debug("write loop terminating")
	for {
		select {
		case req := <-l.sendCh:
			_, err := l.conn.Write(req.frame)
			if err != nil {
				err = fmt.Errorf("%w: %v", ErrConnError, err)
			}
			select {
			case req.done <- err:
			default:
			}
			if err != nil {
				l.shutdown(err)
				return
			}
		case <-l.HaltCh():
			return
		}
	}
}

// Send writes one already-framed payload (see EncodeFrame) and blocks
// until it has been handed to the OS (backpressure), ctx is
// cancelled, or the Link is closed.
func (l *Link) Send(ctx context.Context, frame []byte) error {
	done := make(chan error, 1)
	select {
	case l.sendCh <- sendReq{frame: frame, done: done}:
	case <-l.HaltCh():
		return ErrLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-l.HaltCh():
		return ErrLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the channel of decoded, de-stuffed frame payloads. It
// is closed when the Link shuts down.
func (l *Link) Recv() <-chan []byte {
	return l.recvCh
}

// Err returns the error that caused shutdown, if any.
func (l *Link) Err() error {
	<-l.closed
	return l.closeErr
}

func (l *Link) shutdown(err error) {
	l.shutdownOnce.Do(func() {
		l.closeErr = err
		l.Halt()
		l.conn.Close()
		close(l.closed)
	})
}

// Close shuts the Link down. Idempotent.
func (l *Link) Close() error {
	l.shutdown(ErrLinkClosed)
	l.Wait()
	return nil
}
