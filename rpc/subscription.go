// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// subscriptionQueueDepth bounds each subscriber's private mailbox.
const subscriptionQueueDepth = 64

// ErrSubscriptionClosed names the closed state of a Subscription. Recv
// does not return it: closure (explicit, or by Mux shutdown) is
// reported as RecvResult{Closed: true} with a nil error.
var ErrSubscriptionClosed = errors.New("rpc: subscription closed")

// Subscription delivers topic frames published under one Key. It
// never blocks the Mux's dispatch loop: a full mailbox evicts its
// oldest queued frame to make room for the new one and increments a
// lag counter, surfaced on the next Recv.
type Subscription struct {
	key Key

	mu     sync.Mutex
	ch     chan []byte
	halt   chan struct{}
	closed bool

	lag uint64
}

func newSubscription(key Key) *Subscription {
	return &Subscription{
		key:  key,
		ch:   make(chan []byte, subscriptionQueueDepth),
		halt: make(chan struct{}),
	}
}

// deliver attempts to enqueue body without blocking. alive is false if
// the subscription is closed, meaning it should be pruned from the
// fanout table. delivered is false if the mailbox was full and an
// older frame had to be evicted to make room (lag was incremented
// instead). The mutex is held across the channel operations so a
// concurrent Close cannot tear the mailbox down mid-delivery; every
// operation under it is non-blocking.
func (s *Subscription) deliver(body []byte) (alive, delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}

	select {
	case s.ch <- body:
		return true, true
	default:
	}

	// Mailbox full: evict the oldest queued frame and retry, so the
	// reader always catches up to the newest data instead of being
	// stuck replaying a stale backlog.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- body:
	default:
		// A concurrent Recv drained the slot first; the frame is lost
		// either way, so it still counts as lag.
	}
	atomic.AddUint64(&s.lag, 1)
	return true, false
}

// RecvResult is the outcome of one Recv call: exactly one of Message,
// Lagged, or Closed applies.
type RecvResult struct {
	Message []byte
	Lagged  uint64
	Closed  bool
}

// Recv blocks for the next event: a message, a lag report (messages
// dropped since the last Recv), or closure. It surfaces any
// accumulated lag before the next message, never silently, and drains
// messages that were already queued when the subscription closed
// before reporting Closed.
func (s *Subscription) Recv(ctx context.Context) (RecvResult, error) {
	if n := atomic.SwapUint64(&s.lag, 0); n > 0 {
		return RecvResult{Lagged: n}, nil
	}

	select {
	case body := <-s.ch:
		return RecvResult{Message: body}, nil
	default:
	}

	select {
	case body := <-s.ch:
		return RecvResult{Message: body}, nil
	case <-s.halt:
		// Closure raced with a late delivery; hand over anything that
		// made it into the mailbox first.
		select {
		case body := <-s.ch:
			return RecvResult{Message: body}, nil
		default:
			return RecvResult{Closed: true}, nil
		}
	case <-ctx.Done():
		return RecvResult{}, ctx.Err()
	}
}

// Close detaches the subscription from its Mux's fanout table: the
// next broadcast that encounters it prunes it. Safe to call more than
// once and concurrently with deliveries.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.halt)
}
