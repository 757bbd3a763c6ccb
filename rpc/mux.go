// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Package rpc sits one layer above transport: it owns sequence-number
// allocation, the pending-request table, and topic fanout, turning a
// transport.Link's stream of opaque frames into a Call/Subscribe API.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/onevariable/postkit/internal/worker"
	"github.com/onevariable/postkit/transport"
)

// ErrConnectionClosed is returned by Call once the underlying Link has
// gone away, whether by error or a deliberate Close. Subscriptions
// report the same event as RecvResult.Closed.
var ErrConnectionClosed = errors.New("rpc: connection closed")

// ErrProtocol reports a handshake or framing-level violation the Mux
// itself detects (as opposed to an application WireError reported by
// the daemon).
var ErrProtocol = errors.New("rpc: protocol error")

// pingToken is the payload round-tripped during the connect-time
// handshake.
const pingToken uint32 = 42

type pendingEntry struct {
	respKey Key
	resultC chan pendingResult
}

type pendingResult struct {
	body    []byte
	wireErr *transport.WireError
	err     error
}

// Mux multiplexes one transport.Link among concurrent callers.
// Construct one via Connect; callers never touch the Link directly
// afterward. A single dispatch goroutine classifies every inbound
// frame against the pending table (by sequence) and the fanout table
// (by key).
type Mux struct {
	worker.Worker

	link *transport.Link
	log  *log.Logger
	met  *Metrics

	mu      sync.Mutex
	pending map[uint32]*pendingEntry
	topics  map[Key][]*Subscription
	nextSeq uint32

	shutdownOnce sync.Once
	closed       chan struct{}
	closeErr     error
}

// Options configures a Mux.
type Options struct {
	Logger  *log.Logger
	Metrics *Metrics
}

// Connect wraps an already-established Link in a Mux and performs the
// connect-time ping handshake before returning: a request against
// PingKey carrying pingToken must echo the same value back, or the
// connection is rejected as a protocol violation. The handshake lives
// here rather than in transport.Link because it needs the key/seq
// header, which Link never interprets.
func Connect(ctx context.Context, link *transport.Link, opts Options) (*Mux, error) {
	m := newMux(link, opts)

	body, err := encodePingBody(pingToken)
	if err != nil {
		m.Close()
		return nil, err
	}
	respBody, err := m.Call(ctx, PingKey, PingKey, body)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("rpc: ping handshake: %w", err)
	}
	got, err := decodePingBody(respBody)
	if err != nil || got != pingToken {
		m.Close()
		return nil, fmt.Errorf("%w: ping handshake echoed %d, want %d", ErrProtocol, got, pingToken)
	}
	return m, nil
}

func newMux(link *transport.Link, opts Options) *Mux {
	lg := opts.Logger
	if lg == nil {
		lg = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "rpc/mux"})
	} else {
		lg = lg.WithPrefix("rpc/mux")
	}
	m := &Mux{
		link:    link,
		log:     lg,
		met:     opts.Metrics,
		pending: make(map[uint32]*pendingEntry),
		topics:  make(map[Key][]*Subscription),
		closed:  make(chan struct{}),
	}
	m.Go(m.dispatchLoop)
	return m
}

// Call sends a request keyed by reqKey and blocks until a response
// keyed by respKey arrives with the matching sequence number, ctx is
// cancelled, or the connection closes. A daemon-reported WireError is
// surfaced as an error whose chain includes the WireError value.
func (m *Mux) Call(ctx context.Context, reqKey, respKey Key, body []byte) ([]byte, error) {
	entry := &pendingEntry{respKey: respKey, resultC: make(chan pendingResult, 1)}

	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return nil, m.closeError()
	}
	// Sequence allocation happens under the same lock as the pending
	// insert so a wrapped counter can never land on a value that is
	// still in flight (at most one slot per numeric value at any instant).
	seq := atomic.AddUint32(&m.nextSeq, 1)
	for _, busy := m.pending[seq]; busy; _, busy = m.pending[seq] {
		seq = atomic.AddUint32(&m.nextSeq, 1)
	}
	m.pending[seq] = entry
	m.mu.Unlock()
	m.met.incPending(1)

	defer func() {
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		m.met.incPending(-1)
	}()

	frame := encodeRequestFrame(reqKey, seq, body)
	if err := m.link.Send(ctx, transport.EncodeFrame(frame)); err != nil {
		return nil, m.translateLinkErr(err)
	}
	m.met.incFramesSent()

	select {
	case res := <-entry.resultC:
		return callResult(res)
	case <-m.closed:
		// Closure may race with a response that was already delivered
		// to the slot; prefer the response.
		select {
		case res := <-entry.resultC:
			return callResult(res)
		default:
			return nil, m.closeError()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func callResult(res pendingResult) ([]byte, error) {
	if res.wireErr != nil {
		return nil, &WireErr{Err: *res.wireErr}
	}
	return res.body, res.err
}

// SubscribeMulti registers interest in topic frames published under
// key. Multiple independent subscriptions to the same key are
// permitted; each gets its own bounded mailbox.
func (m *Mux) SubscribeMulti(key Key) *Subscription {
	sub := newSubscription(key)
	m.mu.Lock()
	if m.topics == nil {
		m.mu.Unlock()
		sub.Close()
		return sub
	}
	m.topics[key] = append(m.topics[key], sub)
	m.mu.Unlock()
	return sub
}

// Unsubscribe closes sub, exactly as sub.Close() does; the next
// broadcast on its key prunes it from the fanout list.
func (m *Mux) Unsubscribe(sub *Subscription) {
	sub.Close()
}

func (m *Mux) dispatchLoop() {
	defer m.log.Debug("dispatch loop terminating")
	for {
		select {
		case frame, ok := <-m.link.Recv():
			if !ok {
				m.shutdown(m.linkCloseErr())
				return
			}
			m.met.incFramesReceived()
			m.handleFrame(frame)
		case <-m.HaltCh():
			return
		}
	}
}

func (m *Mux) handleFrame(frame []byte) {
	if len(frame) < 8 {
		m.log.Warn("discarding frame shorter than a key", "len", len(frame))
		return
	}
	key := keyFromBytes(frame[:8])

	if key == ErrorKey {
		if len(frame) < 12 {
			m.log.Warn("discarding malformed wire-error frame", "len", len(frame))
			return
		}
		seq := leUint32(frame[8:12])
		we := parseWireError(frame[12:])
		m.fulfilWireError(seq, we)
		return
	}

	if len(frame) >= 12 {
		seq := leUint32(frame[8:12])
		m.mu.Lock()
		entry, ok := m.pending[seq]
		m.mu.Unlock()
		if ok && entry.respKey == key {
			m.fulfil(seq, key, pendingResult{body: frame[12:]})
			return
		}
	}

	m.mu.Lock()
	subs := append([]*Subscription(nil), m.topics[key]...)
	m.mu.Unlock()
	if len(subs) > 0 {
		m.broadcast(key, frame[8:], subs)
		return
	}

	m.log.Warn("discarding frame with unknown key", "key", fmt.Sprintf("%x", key))
	m.met.incUnknownKey()
}

func (m *Mux) fulfil(seq uint32, respKey Key, res pendingResult) {
	m.mu.Lock()
	entry, ok := m.pending[seq]
	m.mu.Unlock()
	if !ok || entry.respKey != respKey {
		m.log.Warn("discarding response with no matching pending request", "seq", seq)
		return
	}
	select {
	case entry.resultC <- res:
	default:
	}
}

// fulfilWireError fulfils seq's pending slot no matter what response
// key the caller was expecting: an error frame always wins the
// tie-break.
func (m *Mux) fulfilWireError(seq uint32, we *transport.WireError) {
	m.mu.Lock()
	entry, ok := m.pending[seq]
	m.mu.Unlock()
	if !ok {
		m.log.Warn("discarding wire-error with no matching pending request", "seq", seq)
		return
	}
	select {
	case entry.resultC <- pendingResult{wireErr: we}:
	default:
	}
}

func (m *Mux) broadcast(key Key, body []byte, subs []*Subscription) {
	dead := make(map[*Subscription]bool)
	dropped := false
	for _, s := range subs {
		alive, delivered := s.deliver(body)
		if !alive {
			dead[s] = true
			continue
		}
		if !delivered {
			dropped = true
		}
	}
	if len(dead) > 0 {
		// Prune under the lock against the table's current contents:
		// a SubscribeMulti may have appended concurrently.
		m.mu.Lock()
		if m.topics != nil {
			live := m.topics[key][:0]
			for _, s := range m.topics[key] {
				if !dead[s] {
					live = append(live, s)
				}
			}
			if len(live) == 0 {
				delete(m.topics, key)
			} else {
				m.topics[key] = live
			}
		}
		m.mu.Unlock()
	}
	if dropped {
		m.met.incTopicDropped()
	}
}

// Publish sends a one-way topic frame; there is no response to wait
// for.
func (m *Mux) Publish(ctx context.Context, key Key, body []byte) error {
	frame := encodeTopicFrame(key, body)
	if err := m.link.Send(ctx, transport.EncodeFrame(frame)); err != nil {
		return m.translateLinkErr(err)
	}
	m.met.incFramesSent()
	return nil
}

func (m *Mux) translateLinkErr(err error) error {
	if errors.Is(err, transport.ErrLinkClosed) || errors.Is(err, transport.ErrConnError) {
		return ErrConnectionClosed
	}
	return err
}

func (m *Mux) linkCloseErr() error {
	if err := m.link.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return ErrConnectionClosed
}

func (m *Mux) closeError() error {
	if m.closeErr != nil {
		return m.closeErr
	}
	return ErrConnectionClosed
}

func (m *Mux) shutdown(err error) {
	m.shutdownOnce.Do(func() {
		m.closeErr = err
		m.Halt()

		m.mu.Lock()
		pending := m.pending
		m.pending = nil
		topics := m.topics
		m.topics = nil
		m.mu.Unlock()

		for _, entry := range pending {
			select {
			case entry.resultC <- pendingResult{err: err}:
			default:
			}
		}
		for _, subs := range topics {
			for _, s := range subs {
				s.Close()
			}
		}
		close(m.closed)
	})
}

// Close shuts the Mux (and its underlying Link) down. Idempotent.
func (m *Mux) Close() error {
	m.shutdown(ErrConnectionClosed)
	err := m.link.Close()
	m.Wait()
	return err
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
