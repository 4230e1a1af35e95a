// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/msgbridge/lib/clock"
	"github.com/bureau-foundation/msgbridge/lib/version"
	"github.com/bureau-foundation/msgbridge/protocol"
)

// PushDialer creates a push client for a push server address.
type PushDialer func(server string) (protocol.PushClient, error)

// Config configures a Bridge.
type Config struct {
	// Network creates protocol clients. Required.
	Network protocol.Network

	// Emitter receives events. Nil discards them.
	Emitter Emitter

	// Codecs decodes and encodes message content. Nil means
	// protocol.DefaultRegistry.
	Codecs *protocol.Registry

	// Compression is applied to outgoing message content.
	Compression protocol.Compression

	// DefaultAppVersion is sent to the network when a command passes
	// an empty app version. Empty means version.AppVersion().
	DefaultAppVersion string

	// PushDialer creates push clients for RegisterPushToken. Nil
	// disables push registration.
	PushDialer PushDialer

	// Metrics receives the bridge's collectors. Nil leaves them
	// unregistered.
	Metrics prometheus.Registerer

	// Clock stamps envelopes passed to DecodeMessage. Nil means the
	// real clock.
	Clock clock.Clock

	// Logger receives structured log output. Nil means slog.Default().
	Logger *slog.Logger
}

// Bridge holds all session state. Its methods are safe for concurrent
// use.
type Bridge struct {
	network           protocol.Network
	emitter           Emitter
	codecs            *protocol.Registry
	compression       protocol.Compression
	defaultAppVersion string
	pushDialer        PushDialer
	clock             clock.Clock
	logger            *slog.Logger
	metrics           *metrics

	clients       *clientRegistry
	conversations *conversationCache
	subscriptions *subscriptionManager

	signersMu sync.Mutex
	signers   map[*Signer]struct{}

	pushMu sync.Mutex
	push   protocol.PushClient

	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Bridge.
func New(config Config) (*Bridge, error) {
	if config.Network == nil {
		return nil, errors.New("bridge: Config.Network is required")
	}
	if config.Emitter == nil {
		config.Emitter = EmitterFunc(func(Event) {})
	}
	if config.Codecs == nil {
		config.Codecs = protocol.DefaultRegistry()
	}
	if config.DefaultAppVersion == "" {
		config.DefaultAppVersion = version.AppVersion()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := newMetrics(config.Metrics)
	b := &Bridge{
		network:           config.Network,
		emitter:           config.Emitter,
		codecs:            config.Codecs,
		compression:       config.Compression,
		defaultAppVersion: config.DefaultAppVersion,
		pushDialer:        config.PushDialer,
		clock:             config.Clock,
		logger:            config.Logger,
		metrics:           m,
		signers:           make(map[*Signer]struct{}),
		cancel:            cancel,
	}
	b.clients = newClientRegistry(m.clients)
	b.conversations = newConversationCache(b.clients, m.conversationScans)
	b.subscriptions = newSubscriptionManager(ctx, b.emit, config.Logger, m)
	return b, nil
}

// emit counts and forwards an event.
func (b *Bridge) emit(event Event) {
	b.metrics.events.WithLabelValues(event.Name).Inc()
	b.emitter.Emit(event)
}

// Close stops every subscription, waits for the consumers to exit and
// releases the registered clients. Commands fail with ErrClosed
// afterwards. Close may be called from inside Emit.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.cancel()
		b.subscriptions.close()
		for _, client := range b.clients.drain() {
			if closer, ok := client.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		b.logger.Info("bridge closed")
	})
	return errors.Join(errs...)
}

// Clients returns the registered addresses, sorted.
func (b *Bridge) Clients() []string { return b.clients.addresses() }

// SubscriptionState returns the lifecycle state of a subscription key
// (see Key, EphemeralKey, ConversationsKey, AllMessagesKey).
func (b *Bridge) SubscriptionState(key string) State { return b.subscriptions.state(key) }

// Subscriptions returns the state of every subscription key started
// since the bridge was created.
func (b *Bridge) Subscriptions() map[string]State { return b.subscriptions.snapshot() }

// options maps a host environment name to client options. "local" is
// insecure, "production" is production, and anything else means dev.
func (b *Bridge) options(environment, appVersion string) protocol.Options {
	if appVersion == "" {
		appVersion = b.defaultAppVersion
	}
	switch protocol.Environment(environment) {
	case protocol.EnvironmentLocal:
		return protocol.Options{Environment: protocol.EnvironmentLocal, Secure: false, AppVersion: appVersion}
	case protocol.EnvironmentProduction:
		return protocol.Options{Environment: protocol.EnvironmentProduction, Secure: true, AppVersion: appVersion}
	default:
		return protocol.Options{Environment: protocol.EnvironmentDev, Secure: true, AppVersion: appVersion}
	}
}

// install registers client under address. A client replacing an
// earlier one for the same address invalidates that address's cached
// conversations and live subscriptions.
func (b *Bridge) install(address string, client protocol.Client) {
	previous := b.clients.register(address, client)
	if previous == nil {
		return
	}
	b.conversations.forget(address)
	b.subscriptions.stopPrefix(address + ":")
	if closer, ok := previous.(io.Closer); ok && previous != client {
		closer.Close()
	}
	b.logger.Info("client replaced", "address", address)
}
