// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidKeyBundle is returned by Network.FromKeyBundle when the
	// bundle bytes cannot be parsed.
	ErrInvalidKeyBundle = errors.New("protocol: invalid key bundle")

	// ErrInvalidTopicData is returned by ImportTopicData when the
	// snapshot cannot be parsed.
	ErrInvalidTopicData = errors.New("protocol: invalid topic data")

	// ErrUndecodable is returned by Conversation.Decode when an
	// envelope cannot be opened or parsed.
	ErrUndecodable = errors.New("protocol: undecodable envelope")

	// ErrStreamClosed is returned by Stream.Next after Close, or when
	// the remote side ended the stream.
	ErrStreamClosed = errors.New("protocol: stream closed")
)

// Environment names a network deployment.
type Environment string

const (
	EnvironmentLocal      Environment = "local"
	EnvironmentDev        Environment = "dev"
	EnvironmentProduction Environment = "production"
)

// Options configure a client at creation time.
type Options struct {
	Environment Environment

	// Secure requests TLS to the network. Local deployments run
	// without it.
	Secure bool

	// AppVersion identifies the host application to the network.
	AppVersion string
}

// Signature is a recoverable compact signature: 64 bytes of r||s and
// a recovery id.
type Signature struct {
	Bytes    [64]byte
	Recovery uint8
}

// SigningKey produces account signatures. The network calls Sign while
// creating a client, possibly several times, and blocks until each
// call returns.
type SigningKey interface {
	// Address is the account address being authenticated.
	Address() string

	// Sign signs message. Implementations may block for as long as the
	// signature takes to obtain; they must honor ctx.
	Sign(ctx context.Context, message []byte) (Signature, error)
}

// Network creates clients.
type Network interface {
	// Create authenticates account and returns a client for it.
	Create(ctx context.Context, account SigningKey, options Options) (Client, error)

	// CreateRandom generates a fresh account and returns its client.
	CreateRandom(ctx context.Context, options Options) (Client, error)

	// FromKeyBundle restores a client from an exported key bundle.
	// Unparseable input fails with an error wrapping
	// ErrInvalidKeyBundle.
	FromKeyBundle(ctx context.Context, bundle []byte, options Options) (Client, error)
}

// Client is an authenticated account on the network.
type Client interface {
	// Address is the account address. Case is preserved as the
	// network reports it.
	Address() string

	// ExportKeyBundle serializes the private key bundle for later
	// FromKeyBundle. The returned bytes are secret.
	ExportKeyBundle() ([]byte, error)

	// CanMessage reports whether peer has an identity on the network.
	CanMessage(ctx context.Context, peer string) (bool, error)

	// Conversations returns the conversation API for this account.
	Conversations() Conversations
}

// Conversations enumerates and creates the account's conversations.
type Conversations interface {
	// List returns every conversation the account participates in.
	List(ctx context.Context) ([]Conversation, error)

	// New starts (or returns the existing) conversation with peer
	// scoped by invitation.ConversationID.
	New(ctx context.Context, peer string, invitation InvitationContext) (Conversation, error)

	// ImportTopicData restores a conversation from an
	// ExportTopicData snapshot.
	ImportTopicData(ctx context.Context, data []byte) (Conversation, error)

	// Stream yields conversations as they are created, by this account
	// or by peers inviting it.
	Stream(ctx context.Context) (Stream[Conversation], error)

	// StreamAllMessages yields messages from every conversation,
	// including ones created after the stream opened.
	StreamAllMessages(ctx context.Context) (Stream[DecodedMessage], error)

	// ListBatchMessages loads history for several topics at once.
	ListBatchMessages(ctx context.Context, queries []BatchQuery) ([]DecodedMessage, error)
}

// Version distinguishes conversation protocol generations.
type Version string

const (
	VersionV1 Version = "v1"
	VersionV2 Version = "v2"
)

// InvitationContext scopes a conversation between the same two
// accounts.
type InvitationContext struct {
	ConversationID string            `cbor:"conversation_id"`
	Metadata       map[string]string `cbor:"metadata,omitempty"`
}

// Conversation is one conversation channel.
type Conversation interface {
	Topic() string
	PeerAddress() string
	Version() Version
	ConversationID() string
	CreatedAt() time.Time

	// ExportTopicData snapshots everything needed to reopen this
	// conversation with ImportTopicData. The returned bytes are
	// secret.
	ExportTopicData() ([]byte, error)

	// Messages loads persisted history, newest first.
	Messages(ctx context.Context, page Pagination) ([]DecodedMessage, error)

	// Send encodes and publishes content. Ephemeral content goes to the
	// conversation's ephemeral topic and is never persisted. Returns
	// the message id.
	Send(ctx context.Context, content EncodedContent, options SendOptions) (string, error)

	// StreamMessages yields decoded messages published after the call.
	StreamMessages(ctx context.Context) (Stream[DecodedMessage], error)

	// StreamEphemeral yields raw envelopes from the ephemeral topic.
	// Callers decode them with Decode.
	StreamEphemeral(ctx context.Context) (Stream[Envelope], error)

	// Decode opens an envelope published to this conversation.
	// Failures wrap ErrUndecodable.
	Decode(envelope Envelope) (DecodedMessage, error)
}

// SendOptions modify Send.
type SendOptions struct {
	// ContentType overrides content.Type when non-zero.
	ContentType ContentTypeID

	// Ephemeral routes the message to the ephemeral topic.
	Ephemeral bool
}

// Envelope is an encrypted message as it travels on the network.
type Envelope struct {
	ContentTopic string    `cbor:"content_topic"`
	Timestamp    time.Time `cbor:"timestamp"`
	Message      []byte    `cbor:"message"`
}

// DecodedMessage is a message after decryption.
type DecodedMessage struct {
	ID            string
	Topic         string
	SenderAddress string
	Sent          time.Time
	Encoded       EncodedContent
}

// Content decodes the message body with registry.
func (m DecodedMessage) Content(registry *Registry) (any, error) {
	return registry.Decode(m.Encoded)
}

// Pagination bounds a history query. Zero values mean unbounded.
type Pagination struct {
	Limit  int
	Before time.Time
	After  time.Time
}

// Contains reports whether a message sent at sent falls inside the
// time window (Limit is not considered).
func (p Pagination) Contains(sent time.Time) bool {
	if !p.Before.IsZero() && !sent.Before(p.Before) {
		return false
	}
	if !p.After.IsZero() && !sent.After(p.After) {
		return false
	}
	return true
}

// BatchQuery is one topic's page in ListBatchMessages.
type BatchQuery struct {
	Topic string
	Page  Pagination
}

// Stream is a lazily pulled sequence of network events. Next blocks
// until an element arrives, ctx is done, or the stream ends. Close
// releases the underlying subscription and is idempotent; a Next blocked
// in another goroutine returns ErrStreamClosed.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
	Close() error
}

// PushClient registers an installation with a push notification
// server.
type PushClient interface {
	// Register associates the device token with this installation.
	Register(ctx context.Context, token string) error

	// Subscribe asks the server to notify for messages on topics.
	Subscribe(ctx context.Context, topics []string) error
}
