// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/lib/codec"
)

// WireEvent is one bridge event on an event stream. Data is the CBOR
// encoding of the event payload (bridge.SignRequest, bridge.Authed,
// bridge.ConversationInfo or bridge.MessageEvent).
type WireEvent struct {
	Name string           `cbor:"name"`
	Data codec.RawMessage `cbor:"data"`
}

// Decode unmarshals the payload into v.
func (e WireEvent) Decode(v any) error { return codec.Unmarshal(e.Data, v) }

// HubConfig configures a Hub.
type HubConfig struct {
	// Buffer is the per-listener queue depth. Default 256.
	Buffer int

	// Metrics registers the dropped-events counter. Nil uses the
	// default registerer.
	Metrics prometheus.Registerer

	Logger *slog.Logger
}

// Hub fans bridge events out to event stream listeners.
type Hub struct {
	buffer  int
	logger  *slog.Logger
	dropped *prometheus.CounterVec

	mu        sync.Mutex
	listeners map[*hubListener]struct{}
}

var _ bridge.Emitter = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub(config HubConfig) *Hub {
	if config.Buffer <= 0 {
		config.Buffer = 256
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = prometheus.DefaultRegisterer
	}
	return &Hub{
		buffer: config.Buffer,
		logger: config.Logger,
		dropped: promauto.With(config.Metrics).NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgbridge",
			Subsystem: "host",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a listener's queue was full.",
		}, []string{"event"}),
		listeners: make(map[*hubListener]struct{}),
	}
}

// hubListener is one event stream's queue.
type hubListener struct {
	events chan WireEvent
	gone   chan struct{}

	// mu keeps sends from racing the close of events.
	mu     sync.RWMutex
	closed bool
}

// send queues event and reports whether it was queued. Without wait a
// full queue refuses the event at once; with wait send blocks until
// there is room or the listener is removed.
func (l *hubListener) send(event WireEvent, wait bool) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	if !wait {
		select {
		case l.events <- event:
			return true
		default:
			return false
		}
	}
	select {
	case l.events <- event:
		return true
	case <-l.gone:
		return false
	}
}

// close releases any blocked sender, then closes the queue.
func (l *hubListener) close() {
	close(l.gone)
	l.mu.Lock()
	l.closed = true
	close(l.events)
	l.mu.Unlock()
}

// Emit queues event for every listener. A listener whose queue is full
// misses the event, except for sign events: an Auth call waits on the
// answer, so Emit blocks until each listener has room for it or
// disconnects.
func (h *Hub) Emit(event bridge.Event) {
	data, err := codec.Marshal(event.Payload)
	if err != nil {
		h.logger.Error("encoding event", "event", event.Name, "error", err)
		return
	}
	wire := WireEvent{Name: event.Name, Data: data}
	wait := event.Name == bridge.EventSign

	h.mu.Lock()
	listeners := make([]*hubListener, 0, len(h.listeners))
	for l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()
	if len(listeners) == 0 {
		h.logger.Debug("event with no listeners", "event", event.Name)
		return
	}
	for _, l := range listeners {
		if !l.send(wire, wait) && !wait {
			h.dropped.WithLabelValues(event.Name).Inc()
			h.logger.Warn("event dropped for slow listener", "event", event.Name)
		}
	}
}

// Listen adds a listener and returns its queue and a function that
// removes it. The queue is closed on removal.
func (h *Hub) Listen() (<-chan WireEvent, func()) {
	l := &hubListener{events: make(chan WireEvent, h.buffer), gone: make(chan struct{})}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return l.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, l)
			h.mu.Unlock()
			l.close()
		})
	}
}

// Listeners returns the number of connected listeners.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// ServeEvents is the StreamFunc for the events action: it writes every
// event to conn until ctx ends or a write fails. The listener is
// registered before the acknowledgement, so every event emitted after
// the client sees {ok: true} reaches it.
func (h *Hub) ServeEvents(ctx context.Context, raw []byte, conn net.Conn, ack func() error) error {
	events, remove := h.Listen()
	defer remove()
	if err := ack(); err != nil {
		return err
	}
	h.logger.Info("event listener connected", "listeners", h.Listeners())
	defer h.logger.Info("event listener disconnected")

	encoder := codec.NewEncoder(conn)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-events:
			if err := encoder.Encode(event); err != nil {
				return err
			}
		}
	}
}
