// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

// Event names.
const (
	EventSign             = "sign"
	EventAuthed           = "authed"
	EventConversation     = "conversation"
	EventMessage          = "message"
	EventEphemeralMessage = "ephemeral-message"
)

// EventNames lists every event the bridge emits.
var EventNames = []string{EventSign, EventAuthed, EventConversation, EventMessage, EventEphemeralMessage}

// Event is one outbound notification. Payload is one of SignRequest,
// Authed, ConversationInfo or MessageEvent.
type Event struct {
	Name    string
	Payload any
}

// Emitter receives bridge events. Emit is called from subscription
// goroutines and from command callers, concurrently; implementations
// must be safe for concurrent use. Each subscription's events arrive in
// stream order, and a slow Emit holds back only that subscription.
//
// Emit may call back into the bridge, including to stop or replace the
// subscription it is delivering for, or to Close the bridge. Stopping a
// subscription does not wait for an Emit in progress: that one event
// may still complete, but no later event from the subscription is
// emitted.
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(event Event) { f(event) }

// SignRequest is the payload of a "sign" event. Message is the text the
// host should sign; the answer goes to ReceiveSignature with ID.
type SignRequest struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Authed is the payload of an "authed" event.
type Authed struct {
	Address string `json:"address"`
}

// MessageEvent is the payload of "message" and "ephemeral-message"
// events. Events from the all-messages stream carry the message's own
// topic and no conversation id.
type MessageEvent struct {
	Topic          string `json:"topic"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageJSON    string `json:"messageJSON"`
}
