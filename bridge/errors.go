// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNoClient means no client is registered for the address.
	ErrNoClient = errors.New("bridge: no client")

	// ErrConversationNotFound is matched by *ConversationNotFoundError.
	ErrConversationNotFound = errors.New("bridge: conversation not found")

	// ErrInvalidSignature resolves a signing request whose delivered
	// signature was malformed or not 65 bytes.
	ErrInvalidSignature = errors.New("bridge: invalid signature")

	// ErrNoMessage means a raw envelope could not be decoded.
	ErrNoMessage = errors.New("bridge: no message")

	// ErrInvalidKeyBundle means an imported key bundle was malformed.
	ErrInvalidKeyBundle = errors.New("bridge: invalid key bundle")

	// ErrPushServerNotRegistered is returned by SubscribePushTopics
	// before RegisterPushToken has succeeded.
	ErrPushServerNotRegistered = errors.New("bridge: push server not registered")

	// ErrUnknownContent means outgoing content JSON carried no
	// recognized tag.
	ErrUnknownContent = errors.New("bridge: unknown content")

	// ErrClosed is returned by commands after Close.
	ErrClosed = errors.New("bridge: closed")
)

// ConversationNotFoundError reports a topic that is neither cached nor
// in the client's conversation list.
type ConversationNotFoundError struct {
	Address string
	Topic   string
}

func (e *ConversationNotFoundError) Error() string {
	return fmt.Sprintf("bridge: no conversation found for %s (client %s)", e.Topic, e.Address)
}

// Is makes errors.Is(err, ErrConversationNotFound) match.
func (e *ConversationNotFoundError) Is(target error) bool {
	return target == ErrConversationNotFound
}
