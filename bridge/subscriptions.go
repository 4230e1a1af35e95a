// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// State is the lifecycle state of a subscription key.
type State int

const (
	// StateInactive means the key has never been started.
	StateInactive State = iota
	StateActive
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Subscription kinds, used as the metrics label.
const (
	kindConversations = "conversations"
	kindAllMessages   = "messages"
	kindTopic         = "topic"
	kindEphemeral     = "ephemeral"
)

// ConversationsKey is the subscription key for address's new
// conversation stream.
func ConversationsKey(address string) string { return address + ":conversations" }

// AllMessagesKey is the subscription key for address's all-messages
// stream.
func AllMessagesKey(address string) string { return address + ":messages" }

// subscription is one running stream consumer and its delivery
// goroutine.
type subscription struct {
	key    string
	kind   string
	cancel context.CancelFunc

	// state is guarded by subscriptionManager.mu.
	state State

	// stopped is set by halt. Delivery checks it before every emission.
	stopped atomic.Bool
}

// halt stops the subscription without waiting for its emitter. No
// emission begins once halt returns; one already under way finishes on
// its own. halt is safe to call from inside that emission.
func (s *subscription) halt() {
	s.stopped.Store(true)
	s.cancel()
}

// deliver emits event unless the subscription has been halted.
func (s *subscription) deliver(emit func(Event), event Event) bool {
	if s.stopped.Load() {
		return false
	}
	emit(event)
	return true
}

// subscriptionManager runs one consumer goroutine per key. The
// consumer owns the stream; a second goroutine hands its events to the
// emitter, so an emitter that calls back into the bridge never blocks
// the consumer that close waits for.
type subscriptionManager struct {
	ctx     context.Context
	emit    func(Event)
	logger  *slog.Logger
	metrics *metrics

	mu      sync.Mutex
	entries map[string]*subscription
	closed  bool

	consumers sync.WaitGroup
}

func newSubscriptionManager(ctx context.Context, emit func(Event), logger *slog.Logger, metrics *metrics) *subscriptionManager {
	return &subscriptionManager{
		ctx:     ctx,
		emit:    emit,
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]*subscription),
	}
}

// startSubscription opens a stream under key and forwards each element
// through translate. A live subscription already holding key is halted
// before the new stream opens, so one protocol event is never emitted
// twice. If open fails the key is marked failed and the error returned.
func startSubscription[T any](
	m *subscriptionManager,
	key, kind string,
	open func(context.Context) (protocol.Stream[T], error),
	translate func(T) (Event, error),
) error {
	ctx, cancel := context.WithCancel(m.ctx)
	sub := &subscription{key: key, kind: kind, cancel: cancel, state: StateActive}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return ErrClosed
	}
	prior := m.entries[key]
	if prior != nil && prior.state == StateActive {
		prior.state = StateCancelled
		m.metrics.subscriptions.WithLabelValues(prior.kind).Dec()
	}
	m.entries[key] = sub
	m.metrics.subscriptions.WithLabelValues(kind).Inc()
	m.consumers.Add(1)
	m.mu.Unlock()

	if prior != nil {
		prior.halt()
		m.logger.Debug("subscription replaced", "subscription", key)
	}

	stream, err := open(ctx)
	if err != nil {
		m.consumers.Done()
		m.fail(sub, err)
		if m.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("bridge: opening %s: %w", key, err)
	}

	deliveries := make(chan Event)
	go deliverLoop(m, sub, deliveries)
	go func() {
		defer m.consumers.Done()
		defer stream.Close()
		defer close(deliveries)
		consumeLoop(ctx, m, sub, stream, translate, deliveries)
	}()
	m.logger.Debug("subscription started", "subscription", key)
	return nil
}

// consumeLoop pulls from stream until it fails, the subscription is
// halted, or translation fails. Each event is handed to deliveries one
// at a time, so the stream is not read ahead of the emitter.
func consumeLoop[T any](ctx context.Context, m *subscriptionManager, sub *subscription, stream protocol.Stream[T], translate func(T) (Event, error), deliveries chan<- Event) {
	for {
		item, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.fail(sub, err)
			return
		}
		event, err := translate(item)
		if err != nil {
			m.fail(sub, err)
			return
		}
		select {
		case deliveries <- event:
		case <-ctx.Done():
			return
		}
	}
}

// deliverLoop emits events in stream order until deliveries closes or
// the subscription is halted.
func deliverLoop(m *subscriptionManager, sub *subscription, deliveries <-chan Event) {
	for event := range deliveries {
		if !sub.deliver(m.emit, event) {
			return
		}
	}
}

// fail marks sub failed if it is still active and halts it. Only sub
// itself changes state; a replacement under the same key is untouched.
func (m *subscriptionManager) fail(sub *subscription, err error) {
	m.mu.Lock()
	wasActive := sub.state == StateActive
	if wasActive {
		sub.state = StateFailed
		m.metrics.subscriptions.WithLabelValues(sub.kind).Dec()
		m.metrics.failures.WithLabelValues(sub.kind).Inc()
	}
	m.mu.Unlock()
	sub.halt()

	if !wasActive {
		return
	}
	if errors.Is(err, protocol.ErrStreamClosed) {
		m.logger.Info("subscription stream ended", "subscription", sub.key)
		return
	}
	m.logger.Error("subscription failed", "subscription", sub.key, "error", err)
}

// stop cancels the subscription under key. Stopping an absent or
// already finished key does nothing. No emission begins after stop
// returns. stop may be called from inside the emitter.
func (m *subscriptionManager) stop(key string) {
	m.mu.Lock()
	sub := m.entries[key]
	if sub == nil || sub.state != StateActive {
		m.mu.Unlock()
		return
	}
	sub.state = StateCancelled
	m.metrics.subscriptions.WithLabelValues(sub.kind).Dec()
	m.mu.Unlock()

	sub.halt()
	m.logger.Debug("subscription stopped", "subscription", key)
}

// stopPrefix stops every active subscription whose key starts with
// prefix.
func (m *subscriptionManager) stopPrefix(prefix string) {
	m.mu.Lock()
	var keys []string
	for key, sub := range m.entries {
		if sub.state == StateActive && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	for _, key := range keys {
		m.stop(key)
	}
}

func (m *subscriptionManager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// state returns the state of key.
func (m *subscriptionManager) state(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.entries[key]; ok {
		return sub.state
	}
	return StateInactive
}

// snapshot returns the state of every key ever started.
func (m *subscriptionManager) snapshot() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]State, len(m.entries))
	for key, sub := range m.entries {
		result[key] = sub.state
	}
	return result
}

// close stops every subscription, refuses new ones, and waits for all
// consumers to exit and close their streams. It does not wait for an
// emission in progress, so the emitter may call it.
func (m *subscriptionManager) close() {
	m.mu.Lock()
	m.closed = true
	var active []*subscription
	for _, sub := range m.entries {
		if sub.state == StateActive {
			sub.state = StateCancelled
			m.metrics.subscriptions.WithLabelValues(sub.kind).Dec()
			active = append(active, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range active {
		sub.halt()
	}
	m.consumers.Wait()
}
