// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/bureau-foundation/msgbridge/lib/reaction"
	"github.com/bureau-foundation/msgbridge/lib/secret"
	"github.com/bureau-foundation/msgbridge/protocol"
)

// client returns the registered client for address.
func (b *Bridge) client(address string) (protocol.Client, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return b.clients.get(address)
}

// resolve returns address's conversation on topic through the cache.
func (b *Bridge) resolve(ctx context.Context, address, topic string) (protocol.Conversation, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return b.conversations.resolve(ctx, address, topic)
}

// Address returns the address the network reports for the client
// registered under address.
func (b *Bridge) Address(address string) (string, error) {
	client, err := b.client(address)
	if err != nil {
		return "", err
	}
	return client.Address(), nil
}

// Auth creates a client for address whose account signatures are
// supplied by the host through sign events and ReceiveSignature. Auth
// blocks until every signature the network asks for has been
// delivered, or ctx ends. On success the client is registered under
// address and an authed event is emitted.
func (b *Bridge) Auth(ctx context.Context, address, environment, appVersion string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	signer := newSigner(address, b.emit, b.metrics.pendingSignatures)

	b.signersMu.Lock()
	b.signers[signer] = struct{}{}
	b.signersMu.Unlock()
	defer func() {
		b.signersMu.Lock()
		delete(b.signers, signer)
		b.signersMu.Unlock()
	}()

	b.logger.Info("authenticating", "address", address, "environment", environment)
	client, err := b.network.Create(ctx, signer, b.options(environment, appVersion))
	if err != nil {
		return fmt.Errorf("bridge: auth %s: %w", address, err)
	}
	b.install(address, client)
	b.emit(Event{Name: EventAuthed, Payload: Authed{Address: address}})
	return nil
}

// ReceiveSignature answers the signing request requestID with a
// base64-encoded 65-byte signature. A request id that no in-flight
// Auth is waiting on is ignored. A payload that does not decode is
// delivered as malformed, failing the request with
// ErrInvalidSignature.
func (b *Bridge) ReceiveSignature(requestID, signatureBase64 string) {
	signature, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		signature = nil
	}

	b.signersMu.Lock()
	signers := make([]*Signer, 0, len(b.signers))
	for signer := range b.signers {
		signers = append(signers, signer)
	}
	b.signersMu.Unlock()

	for _, signer := range signers {
		if signer.Deliver(requestID, signature) {
			return
		}
	}
	b.logger.Debug("signature for unknown request ignored", "request_id", requestID)
}

// CreateRandom creates and registers a client for a freshly generated
// account and returns its address.
func (b *Bridge) CreateRandom(ctx context.Context, environment, appVersion string) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	client, err := b.network.CreateRandom(ctx, b.options(environment, appVersion))
	if err != nil {
		return "", fmt.Errorf("bridge: creating random account: %w", err)
	}
	b.install(client.Address(), client)
	b.logger.Info("random account created", "address", client.Address())
	return client.Address(), nil
}

// CreateFromKeyBundle restores a client from a base64 key bundle and
// returns its address. A bundle that is not valid base64 or that the
// network rejects fails with ErrInvalidKeyBundle; nothing is
// registered.
func (b *Bridge) CreateFromKeyBundle(ctx context.Context, bundleBase64, environment, appVersion string) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	bundle, err := secret.FromBase64(bundleBase64)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKeyBundle, err)
	}
	defer bundle.Close()
	client, err := b.network.FromKeyBundle(ctx, bundle.Bytes(), b.options(environment, appVersion))
	if errors.Is(err, protocol.ErrInvalidKeyBundle) {
		return "", fmt.Errorf("%w: %w", ErrInvalidKeyBundle, err)
	}
	if err != nil {
		return "", fmt.Errorf("bridge: restoring client: %w", err)
	}
	b.install(client.Address(), client)
	return client.Address(), nil
}

// ExportKeyBundle returns the client's private key bundle as base64.
func (b *Bridge) ExportKeyBundle(address string) (string, error) {
	client, err := b.client(address)
	if err != nil {
		return "", err
	}
	exported, err := client.ExportKeyBundle()
	if err != nil {
		return "", fmt.Errorf("bridge: exporting key bundle: %w", err)
	}
	bundle, err := secret.NewFromBytes(exported)
	if err != nil {
		return "", fmt.Errorf("bridge: exporting key bundle: %w", err)
	}
	defer bundle.Close()
	return bundle.Base64(), nil
}

// ExportConversationTopicData returns the conversation's topic data
// snapshot as base64.
func (b *Bridge) ExportConversationTopicData(ctx context.Context, address, topic string) (string, error) {
	conversation, err := b.resolve(ctx, address, topic)
	if err != nil {
		return "", err
	}
	data, err := conversation.ExportTopicData()
	if err != nil {
		return "", fmt.Errorf("bridge: exporting topic data for %s: %w", topic, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ImportConversationTopicData restores a conversation from a base64
// topic data snapshot and caches it.
func (b *Bridge) ImportConversationTopicData(ctx context.Context, address, topicDataBase64 string) (ConversationInfo, error) {
	client, err := b.client(address)
	if err != nil {
		return ConversationInfo{}, err
	}
	data, err := base64.StdEncoding.DecodeString(topicDataBase64)
	if err != nil {
		return ConversationInfo{}, fmt.Errorf("bridge: topic data: %w", err)
	}
	conversation, err := client.Conversations().ImportTopicData(ctx, data)
	if err != nil {
		return ConversationInfo{}, fmt.Errorf("bridge: importing topic data: %w", err)
	}
	b.conversations.put(address, conversation)
	return describeConversation(address, conversation), nil
}

// CanMessage reports whether peer is reachable on the network.
func (b *Bridge) CanMessage(ctx context.Context, address, peer string) (bool, error) {
	client, err := b.client(address)
	if err != nil {
		return false, err
	}
	can, err := client.CanMessage(ctx, peer)
	if err != nil {
		return false, fmt.Errorf("bridge: checking %s: %w", peer, err)
	}
	return can, nil
}

// ListConversations lists and caches every conversation of address.
func (b *Bridge) ListConversations(ctx context.Context, address string) ([]ConversationInfo, error) {
	client, err := b.client(address)
	if err != nil {
		return nil, err
	}
	conversations, err := client.Conversations().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: listing conversations for %s: %w", address, err)
	}
	result := make([]ConversationInfo, len(conversations))
	for i, conversation := range conversations {
		b.conversations.put(address, conversation)
		result[i] = describeConversation(address, conversation)
	}
	return result, nil
}

// LoadMessages returns the conversation's persisted messages newest
// first within page.
func (b *Bridge) LoadMessages(ctx context.Context, address, topic string, page protocol.Pagination) ([]Message, error) {
	conversation, err := b.resolve(ctx, address, topic)
	if err != nil {
		return nil, err
	}
	messages, err := conversation.Messages(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("bridge: loading messages for %s: %w", topic, err)
	}
	return b.encodeMessages(messages)
}

// LoadBatchMessages loads several topics' history in one request.
func (b *Bridge) LoadBatchMessages(ctx context.Context, address string, queries []protocol.BatchQuery) ([]Message, error) {
	client, err := b.client(address)
	if err != nil {
		return nil, err
	}
	messages, err := client.Conversations().ListBatchMessages(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("bridge: loading batch messages: %w", err)
	}
	return b.encodeMessages(messages)
}

func (b *Bridge) encodeMessages(messages []protocol.DecodedMessage) ([]Message, error) {
	result := make([]Message, len(messages))
	for i, message := range messages {
		encoded, err := EncodeMessage(message, b.codecs)
		if err != nil {
			return nil, err
		}
		result[i] = encoded
	}
	return result, nil
}

// SendMessage sends a content envelope to the conversation on topic
// and returns the message id. Ephemeral messages go to the
// conversation's ephemeral channel and are not persisted.
func (b *Bridge) SendMessage(ctx context.Context, address, topic, contentJSON string, ephemeral bool) (string, error) {
	conversation, err := b.resolve(ctx, address, topic)
	if err != nil {
		return "", err
	}
	contentType, content, err := ParseContent(contentJSON)
	if err != nil {
		return "", err
	}
	encoded, err := b.codecs.Encode(contentType, content)
	if err != nil {
		return "", fmt.Errorf("bridge: encoding content: %w", err)
	}
	encoded, err = protocol.Compress(encoded, b.compression)
	if err != nil {
		return "", fmt.Errorf("bridge: compressing content: %w", err)
	}
	id, err := conversation.Send(ctx, encoded, protocol.SendOptions{ContentType: contentType, Ephemeral: ephemeral})
	if err != nil {
		return "", fmt.Errorf("bridge: sending to %s: %w", topic, err)
	}
	b.logger.Debug("message sent", "address", address, "topic", topic, "ephemeral", ephemeral)
	return id, nil
}

// CreateConversation starts (or returns the existing) conversation
// with peer. An empty conversationID names the default conversation
// between the two accounts.
func (b *Bridge) CreateConversation(ctx context.Context, address, peer, conversationID string) (ConversationInfo, error) {
	client, err := b.client(address)
	if err != nil {
		return ConversationInfo{}, err
	}
	conversation, err := client.Conversations().New(ctx, peer, protocol.InvitationContext{
		ConversationID: conversationID,
		Metadata:       map[string]string{},
	})
	if err != nil {
		return ConversationInfo{}, fmt.Errorf("bridge: creating conversation with %s: %w", peer, err)
	}
	b.conversations.put(address, conversation)
	return describeConversation(address, conversation), nil
}

// DecodeMessage decodes a base64 encrypted payload received out of
// band (for example in a push notification) as a message on topic.
func (b *Bridge) DecodeMessage(ctx context.Context, address, topic, envelopeBase64 string) (Message, error) {
	payload, err := base64.StdEncoding.DecodeString(envelopeBase64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrNoMessage, err)
	}
	conversation, err := b.resolve(ctx, address, topic)
	if err != nil {
		return Message{}, err
	}
	decoded, err := conversation.Decode(protocol.Envelope{
		ContentTopic: topic,
		Timestamp:    b.clock.Now(),
		Message:      payload,
	})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrNoMessage, err)
	}
	return EncodeMessage(decoded, b.codecs)
}

// LoadReactions folds the reactions in the conversation's full
// history into per-message summaries as seen by address.
func (b *Bridge) LoadReactions(ctx context.Context, address, topic string) (reaction.Aggregate, error) {
	conversation, err := b.resolve(ctx, address, topic)
	if err != nil {
		return nil, err
	}
	messages, err := conversation.Messages(ctx, protocol.Pagination{})
	if err != nil {
		return nil, fmt.Errorf("bridge: loading messages for %s: %w", topic, err)
	}

	var reactions []reaction.Message
	for _, message := range messages {
		if !message.Encoded.Type.SameType(protocol.ContentTypeReaction) {
			continue
		}
		decoded, err := message.Content(b.codecs)
		if err != nil {
			b.logger.Warn("skipping undecodable reaction", "topic", topic, "message_id", message.ID, "error", err)
			continue
		}
		value, ok := decoded.(protocol.Reaction)
		if !ok {
			continue
		}
		reactions = append(reactions, reaction.Message{
			SenderAddress: message.SenderAddress,
			Reference:     value.Reference,
			Action:        reaction.Action(value.Action),
			Content:       value.Content,
		})
	}
	return reaction.Reconcile(reaction.FromMessages(reactions), address), nil
}
