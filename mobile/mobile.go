// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mobile binds the bridge for gomobile. Its exported surface
// uses only strings, bools, int64s and errors: binary values cross as
// base64, structured results as JSON, and events arrive on a Listener.
//
// Auth blocks until the host has answered every sign event through
// ReceiveSignature, so platforms call it off the main thread.
package mobile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/host"
	"github.com/bureau-foundation/msgbridge/lib/pushclient"
	"github.com/bureau-foundation/msgbridge/protocol"
	"github.com/bureau-foundation/msgbridge/protocol/memnet"
)

// Listener receives bridge events. payloadJSON is the event payload
// encoded as JSON.
//
// OnEvent runs on a bridge goroutine and may call back into the
// module: it can answer a sign event with ReceiveSignature, stop or
// replace the subscription that produced the event, or Close the
// module. Events of one subscription arrive in order, and a slow
// OnEvent delays only that subscription. Once an Unsubscribe call
// returns, the subscription delivers no further events.
type Listener interface {
	OnEvent(name, payloadJSON string)
}

// Module is one bridge instance.
type Module struct {
	bridge *bridge.Bridge
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	// network is closed with the module when the module created it.
	network *memnet.Network

	mu       sync.RWMutex
	listener Listener
}

// NewLocal returns a module backed by a private in-process network.
func NewLocal() (*Module, error) {
	network := memnet.New(memnet.Config{})
	module, err := New(network, nil)
	if err != nil {
		network.Close()
		return nil, err
	}
	module.network = network
	return module, nil
}

// New returns a module driving network. Not exported to platforms.
func New(network protocol.Network, logger *slog.Logger) (*Module, error) {
	if logger == nil {
		logger = slog.Default()
	}
	module := &Module{logger: logger}
	b, err := bridge.New(bridge.Config{
		Network:    network,
		Emitter:    bridge.EmitterFunc(module.emit),
		PushDialer: pushclient.Dialer(pushclient.Config{Logger: logger}),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	module.bridge = b
	module.ctx, module.cancel = context.WithCancel(context.Background())
	return module, nil
}

// SetListener replaces the event listener. A nil listener discards
// events.
func (m *Module) SetListener(listener Listener) {
	m.mu.Lock()
	m.listener = listener
	m.mu.Unlock()
}

func (m *Module) emit(event bridge.Event) {
	m.mu.RLock()
	listener := m.listener
	m.mu.RUnlock()
	if listener == nil {
		m.logger.Debug("event without listener", "event", event.Name)
		return
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		m.logger.Error("encoding event", "event", event.Name, "error", err)
		return
	}
	listener.OnEvent(event.Name, string(payload))
}

// Close stops every subscription and releases every client. It may be
// called from Listener.OnEvent.
func (m *Module) Close() error {
	m.cancel()
	err := m.bridge.Close()
	if m.network != nil {
		m.network.Close()
	}
	return err
}

func toJSON(value any, err error) (string, error) {
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("mobile: encoding result: %w", err)
	}
	return string(data), nil
}

func stringList(listJSON string) ([]string, error) {
	var list []string
	if listJSON == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(listJSON), &list); err != nil {
		return nil, fmt.Errorf("mobile: expected a JSON array of strings: %w", err)
	}
	return list, nil
}

// Address returns the network address of the client registered under
// address.
func (m *Module) Address(address string) (string, error) {
	return m.bridge.Address(address)
}

// Auth registers a client for address whose signatures come from the
// host: each "sign" event must be answered with ReceiveSignature. Auth
// blocks until authentication finishes or the module is closed, and
// emits "authed" on success.
func (m *Module) Auth(address, environment, appVersion string) error {
	return m.bridge.Auth(m.ctx, address, environment, appVersion)
}

// ReceiveSignature answers the sign event requestID with a base64
// signature. An id no Auth call is waiting on is ignored.
func (m *Module) ReceiveSignature(requestID, signatureBase64 string) {
	m.bridge.ReceiveSignature(requestID, signatureBase64)
}

// CreateRandom registers a client with a fresh key and returns its
// address.
func (m *Module) CreateRandom(environment, appVersion string) (string, error) {
	return m.bridge.CreateRandom(m.ctx, environment, appVersion)
}

// CreateFromKeyBundle registers a client restored from a base64 key
// bundle and returns its address.
func (m *Module) CreateFromKeyBundle(keyBundle, environment, appVersion string) (string, error) {
	return m.bridge.CreateFromKeyBundle(m.ctx, keyBundle, environment, appVersion)
}

// ExportKeyBundle returns address's key bundle as base64.
func (m *Module) ExportKeyBundle(address string) (string, error) {
	return m.bridge.ExportKeyBundle(address)
}

// ExportConversationTopicData returns the base64 topic data needed to
// import the conversation on another device.
func (m *Module) ExportConversationTopicData(address, topic string) (string, error) {
	return m.bridge.ExportConversationTopicData(m.ctx, address, topic)
}

// ImportConversationTopicData returns the conversation as JSON.
func (m *Module) ImportConversationTopicData(address, topicData string) (string, error) {
	return toJSON(m.bridge.ImportConversationTopicData(m.ctx, address, topicData))
}

// CanMessage reports whether peerAddress is reachable on the network.
func (m *Module) CanMessage(address, peerAddress string) (bool, error) {
	return m.bridge.CanMessage(m.ctx, address, peerAddress)
}

// ListConversations returns a JSON array of conversations.
func (m *Module) ListConversations(address string) (string, error) {
	return toJSON(m.bridge.ListConversations(m.ctx, address))
}

// LoadMessages returns a JSON array of messages, newest first. Times
// are unix milliseconds; zero or negative values mean unset.
func (m *Module) LoadMessages(address, topic string, limit, before, after int64) (string, error) {
	page := protocol.Pagination{}
	if limit > 0 {
		page.Limit = int(limit)
	}
	if before > 0 {
		page.Before = time.UnixMilli(before)
	}
	if after > 0 {
		page.After = time.UnixMilli(after)
	}
	return toJSON(m.bridge.LoadMessages(m.ctx, address, topic, page))
}

// LoadBatchMessages takes a JSON array of query strings, each a JSON
// object {"topic", "limit", "before", "after"}.
func (m *Module) LoadBatchMessages(address, queriesJSON string) (string, error) {
	raw, err := stringList(queriesJSON)
	if err != nil {
		return "", err
	}
	queries, err := host.ParseBatchQueries(raw, m.logger)
	if err != nil {
		return "", err
	}
	return toJSON(m.bridge.LoadBatchMessages(m.ctx, address, queries))
}

// SendMessage returns the new message id.
func (m *Module) SendMessage(address, topic, contentJSON string, ephemeral bool) (string, error) {
	return m.bridge.SendMessage(m.ctx, address, topic, contentJSON, ephemeral)
}

// CreateConversation returns the conversation as JSON.
func (m *Module) CreateConversation(address, peerAddress, conversationID string) (string, error) {
	return toJSON(m.bridge.CreateConversation(m.ctx, address, peerAddress, conversationID))
}

// DecodeMessage returns the decoded message as JSON.
func (m *Module) DecodeMessage(address, topic, envelopeBase64 string) (string, error) {
	return toJSON(m.bridge.DecodeMessage(m.ctx, address, topic, envelopeBase64))
}

// LoadReactions returns a JSON object mapping message ids to reaction
// summaries.
func (m *Module) LoadReactions(address, topic string) (string, error) {
	return toJSON(m.bridge.LoadReactions(m.ctx, address, topic))
}

// SubscribeToConversations emits a "conversation" event for each new
// conversation of address, replacing any earlier such subscription.
func (m *Module) SubscribeToConversations(address string) error {
	return m.bridge.SubscribeToConversations(address)
}

// SubscribeToAllMessages emits a "message" event for every message in
// every conversation of address.
func (m *Module) SubscribeToAllMessages(address string) error {
	return m.bridge.SubscribeToAllMessages(address)
}

// SubscribeToMessages emits a "message" event for each message on
// topic, replacing any earlier subscription to the same topic.
func (m *Module) SubscribeToMessages(address, topic string) error {
	return m.bridge.SubscribeToMessages(m.ctx, address, topic)
}

// SubscribeToEphemeralMessages emits an "ephemeral-message" event for
// each ephemeral message on topic.
func (m *Module) SubscribeToEphemeralMessages(address, topic string) error {
	return m.bridge.SubscribeToEphemeralMessages(m.ctx, address, topic)
}

// UnsubscribeFromConversations stops the conversation stream of
// address. Stopping a stream that is not running does nothing.
func (m *Module) UnsubscribeFromConversations(address string) error {
	return m.bridge.UnsubscribeFromConversations(address)
}

// UnsubscribeFromAllMessages stops the all-messages stream of address.
func (m *Module) UnsubscribeFromAllMessages(address string) error {
	return m.bridge.UnsubscribeFromAllMessages(address)
}

// UnsubscribeFromMessages stops the message stream of topic. It may be
// called from Listener.OnEvent.
func (m *Module) UnsubscribeFromMessages(address, topic string) error {
	return m.bridge.UnsubscribeFromMessages(address, topic)
}

// UnsubscribeFromEphemeralMessages stops the ephemeral stream of topic.
func (m *Module) UnsubscribeFromEphemeralMessages(address, topic string) error {
	return m.bridge.UnsubscribeFromEphemeralMessages(address, topic)
}

// RegisterPushToken registers the device token with the push server at
// server. Call it before SubscribePushTopics.
func (m *Module) RegisterPushToken(server, token string) error {
	return m.bridge.RegisterPushToken(m.ctx, server, token)
}

// SubscribePushTopics takes a JSON array of topics.
func (m *Module) SubscribePushTopics(topicsJSON string) error {
	topics, err := stringList(topicsJSON)
	if err != nil {
		return err
	}
	return m.bridge.SubscribePushTopics(m.ctx, topics)
}
