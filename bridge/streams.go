// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// SubscribeToConversations streams conversations created by or with
// address as conversation events. The stream runs until unsubscribed
// by a replacement, Close, or a stream error.
func (b *Bridge) SubscribeToConversations(address string) error {
	client, err := b.client(address)
	if err != nil {
		return err
	}
	return startSubscription(b.subscriptions, ConversationsKey(address), kindConversations,
		func(ctx context.Context) (protocol.Stream[protocol.Conversation], error) {
			return client.Conversations().Stream(ctx)
		},
		func(conversation protocol.Conversation) (Event, error) {
			b.conversations.put(address, conversation)
			return Event{Name: EventConversation, Payload: describeConversation(address, conversation)}, nil
		},
	)
}

// SubscribeToAllMessages streams every message on every conversation
// of address as message events carrying the message's own topic.
func (b *Bridge) SubscribeToAllMessages(address string) error {
	client, err := b.client(address)
	if err != nil {
		return err
	}
	return startSubscription(b.subscriptions, AllMessagesKey(address), kindAllMessages,
		func(ctx context.Context) (protocol.Stream[protocol.DecodedMessage], error) {
			return client.Conversations().StreamAllMessages(ctx)
		},
		func(message protocol.DecodedMessage) (Event, error) {
			messageJSON, err := encodeMessageJSON(message, b.codecs)
			if err != nil {
				return Event{}, err
			}
			return Event{Name: EventMessage, Payload: MessageEvent{Topic: message.Topic, MessageJSON: messageJSON}}, nil
		},
	)
}

// SubscribeToMessages streams new messages on topic as message events.
func (b *Bridge) SubscribeToMessages(ctx context.Context, address, topic string) error {
	conversation, err := b.resolve(ctx, address, topic)
	if err != nil {
		return err
	}
	return startSubscription(b.subscriptions, Key(address, topic), kindTopic,
		conversation.StreamMessages,
		func(message protocol.DecodedMessage) (Event, error) {
			messageJSON, err := encodeMessageJSON(message, b.codecs)
			if err != nil {
				return Event{}, err
			}
			return Event{Name: EventMessage, Payload: MessageEvent{
				Topic:          conversation.Topic(),
				ConversationID: conversation.ConversationID(),
				MessageJSON:    messageJSON,
			}}, nil
		},
	)
}

// SubscribeToEphemeralMessages streams the ephemeral channel of topic
// as ephemeral-message events. Envelopes are decoded with the
// conversation; one that fails to decode fails the subscription.
func (b *Bridge) SubscribeToEphemeralMessages(ctx context.Context, address, topic string) error {
	conversation, err := b.resolve(ctx, address, topic)
	if err != nil {
		return err
	}
	return startSubscription(b.subscriptions, EphemeralKey(address, topic), kindEphemeral,
		conversation.StreamEphemeral,
		func(envelope protocol.Envelope) (Event, error) {
			message, err := conversation.Decode(envelope)
			if err != nil {
				return Event{}, err
			}
			messageJSON, err := encodeMessageJSON(message, b.codecs)
			if err != nil {
				return Event{}, err
			}
			return Event{Name: EventEphemeralMessage, Payload: MessageEvent{
				Topic:          conversation.Topic(),
				ConversationID: conversation.ConversationID(),
				MessageJSON:    messageJSON,
			}}, nil
		},
	)
}

// UnsubscribeFromMessages stops the message subscription on topic.
// Stopping a topic that is not subscribed does nothing. Once it
// returns, no further message event for the subscription is emitted.
func (b *Bridge) UnsubscribeFromMessages(address, topic string) error {
	if _, err := b.client(address); err != nil {
		return err
	}
	b.subscriptions.stop(Key(address, topic))
	return nil
}

// UnsubscribeFromEphemeralMessages stops the ephemeral subscription on
// topic.
func (b *Bridge) UnsubscribeFromEphemeralMessages(address, topic string) error {
	if _, err := b.client(address); err != nil {
		return err
	}
	b.subscriptions.stop(EphemeralKey(address, topic))
	return nil
}

// UnsubscribeFromConversations stops the conversation stream of
// address.
func (b *Bridge) UnsubscribeFromConversations(address string) error {
	if _, err := b.client(address); err != nil {
		return err
	}
	b.subscriptions.stop(ConversationsKey(address))
	return nil
}

// UnsubscribeFromAllMessages stops the all-messages stream of address.
func (b *Bridge) UnsubscribeFromAllMessages(address string) error {
	if _, err := b.client(address); err != nil {
		return err
	}
	b.subscriptions.stop(AllMessagesKey(address))
	return nil
}
