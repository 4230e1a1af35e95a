// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memnet

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/msgbridge/lib/codec"
	"github.com/bureau-foundation/msgbridge/protocol"
)

const (
	conversationKeySize = 32
	topicDataVersion    = 1
)

// record is the network-side state of one conversation, shared by
// every handle to it.
type record struct {
	topic          string
	conversationID string
	createdAt      time.Time
	members        []string
	metadata       map[string]string

	key  []byte
	aead cipher.AEAD
}

func newRecord(members []string, conversationID string, metadata map[string]string, key []byte, createdAt time.Time) (*record, error) {
	if len(key) != conversationKeySize {
		return nil, fmt.Errorf("conversation key is %d bytes, want %d", len(key), conversationKeySize)
	}
	topic := conversationTopic(members, conversationID)
	aead, err := sealer(key, topic)
	if err != nil {
		return nil, err
	}
	return &record{
		topic:          topic,
		conversationID: conversationID,
		createdAt:      createdAt,
		members:        members,
		metadata:       metadata,
		key:            key,
		aead:           aead,
	}, nil
}

// conversationTopic derives the topic from the sorted member
// addresses and the conversation id.
func conversationTopic(members []string, conversationID string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	hasher := blake3.New()
	for _, member := range sorted {
		hasher.Write([]byte(member))
		hasher.Write([]byte{0})
	}
	hasher.Write([]byte(conversationID))
	return "/xmtp/0/m-" + hex.EncodeToString(hasher.Sum(nil)[:16]) + "/proto"
}

// ephemeralTopic maps a conversation topic to its ephemeral
// counterpart.
func ephemeralTopic(topic string) string {
	return strings.Replace(topic, "/m-", "/mE-", 1)
}

// sealer derives the topic's message key from the conversation key.
func sealer(key []byte, topic string) (cipher.AEAD, error) {
	derived := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, key, nil, []byte("memnet message key\x00"+topic))
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("deriving message key: %w", err)
	}
	return chacha20poly1305.NewX(derived)
}

// messageBody is the plaintext of an envelope.
type messageBody struct {
	Sender  string                  `cbor:"sender"`
	SentNs  int64                   `cbor:"sent_ns"`
	Content protocol.EncodedContent `cbor:"content"`
}

func (r *record) seal(body messageBody) ([]byte, error) {
	plaintext, err := codec.Marshal(body)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(plaintext)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return r.aead.Seal(nonce, nonce, plaintext, []byte(r.topic)), nil
}

func (r *record) open(sealed []byte) (messageBody, error) {
	if len(sealed) < r.aead.NonceSize()+r.aead.Overhead() {
		return messageBody{}, errors.New("envelope too short")
	}
	nonce, ciphertext := sealed[:r.aead.NonceSize()], sealed[r.aead.NonceSize():]
	plaintext, err := r.aead.Open(nil, nonce, ciphertext, []byte(r.topic))
	if err != nil {
		return messageBody{}, fmt.Errorf("opening envelope: %w", err)
	}
	var body messageBody
	if err := codec.Unmarshal(plaintext, &body); err != nil {
		return messageBody{}, fmt.Errorf("parsing message body: %w", err)
	}
	return body, nil
}

// decode opens envelope and assembles the decoded message. The
// message id is the BLAKE3 hash of the sealed bytes.
func (r *record) decode(envelope protocol.Envelope) (protocol.DecodedMessage, error) {
	body, err := r.open(envelope.Message)
	if err != nil {
		return protocol.DecodedMessage{}, fmt.Errorf("%w: %v", protocol.ErrUndecodable, err)
	}
	digest := blake3.Sum256(envelope.Message)
	return protocol.DecodedMessage{
		ID:            hex.EncodeToString(digest[:]),
		Topic:         r.topic,
		SenderAddress: body.Sender,
		Sent:          time.Unix(0, body.SentNs).UTC(),
		Encoded:       body.Content,
	}, nil
}

func (r *record) peerOf(owner string) string {
	for _, member := range r.members {
		if member != owner {
			return member
		}
	}
	return owner
}

// conversations implements protocol.Conversations for one client.
type conversations struct {
	client *Client
}

func (c *conversations) List(ctx context.Context) ([]protocol.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := c.client.network.membershipRecords(c.client.address)
	result := make([]protocol.Conversation, len(records))
	for i, rec := range records {
		result[i] = c.handle(rec)
	}
	return result, nil
}

func (c *conversations) New(ctx context.Context, peer string, invitation protocol.InvitationContext) (protocol.Conversation, error) {
	network := c.client.network
	owner := c.client.address
	if peer == owner {
		return nil, errors.New("memnet: cannot start a conversation with yourself")
	}
	if !network.Registered(peer) {
		return nil, fmt.Errorf("memnet: %s is not on the network", peer)
	}

	topic := conversationTopic([]string{owner, peer}, invitation.ConversationID)
	if rec, ok := network.lookupRecord(topic); ok {
		return c.handle(rec), nil
	}

	key := make([]byte, conversationKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("memnet: generating conversation key: %w", err)
	}
	rec, err := newRecord([]string{owner, peer}, invitation.ConversationID, invitation.Metadata, key, network.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("memnet: %w", err)
	}
	rec, err = network.addConversation(ctx, rec)
	if err != nil {
		return nil, err
	}
	return c.handle(rec), nil
}

// topicData is the ExportTopicData snapshot.
type topicData struct {
	Version        int               `cbor:"version"`
	Members        []string          `cbor:"members"`
	ConversationID string            `cbor:"conversation_id"`
	Metadata       map[string]string `cbor:"metadata,omitempty"`
	CreatedAtNs    int64             `cbor:"created_at_ns"`
	Key            []byte            `cbor:"key"`
}

func (c *conversations) ImportTopicData(ctx context.Context, data []byte) (protocol.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snapshot topicData
	if err := codec.UnmarshalStrict(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidTopicData, err)
	}
	if snapshot.Version != topicDataVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", protocol.ErrInvalidTopicData, snapshot.Version)
	}
	if len(snapshot.Members) != 2 {
		return nil, fmt.Errorf("%w: want 2 members, got %d", protocol.ErrInvalidTopicData, len(snapshot.Members))
	}
	owner := c.client.address
	if snapshot.Members[0] != owner && snapshot.Members[1] != owner {
		return nil, fmt.Errorf("%w: %s is not a member", protocol.ErrInvalidTopicData, owner)
	}
	rec, err := newRecord(snapshot.Members, snapshot.ConversationID, snapshot.Metadata, snapshot.Key, time.Unix(0, snapshot.CreatedAtNs).UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidTopicData, err)
	}
	return c.handle(c.client.network.adopt(owner, rec)), nil
}

func (c *conversations) Stream(ctx context.Context) (protocol.Stream[protocol.Conversation], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.client.network.subscribeConversations(c.client.address)
}

func (c *conversations) StreamAllMessages(ctx context.Context) (protocol.Stream[protocol.DecodedMessage], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	network := c.client.network
	source, err := network.subscribeAccount(c.client.address)
	if err != nil {
		return nil, err
	}
	return &decodingStream{
		source: source,
		decode: func(envelope protocol.Envelope) (protocol.DecodedMessage, error) {
			rec, ok := network.lookupRecord(envelope.ContentTopic)
			if !ok {
				return protocol.DecodedMessage{}, fmt.Errorf("%w: unknown topic %s", protocol.ErrUndecodable, envelope.ContentTopic)
			}
			return rec.decode(envelope)
		},
	}, nil
}

func (c *conversations) ListBatchMessages(ctx context.Context, queries []protocol.BatchQuery) ([]protocol.DecodedMessage, error) {
	var result []protocol.DecodedMessage
	for _, query := range queries {
		rec, ok := c.client.network.lookupRecord(query.Topic)
		if !ok {
			continue
		}
		messages, err := c.handle(rec).Messages(ctx, query.Page)
		if err != nil {
			return nil, fmt.Errorf("memnet: loading %s: %w", query.Topic, err)
		}
		result = append(result, messages...)
	}
	return result, nil
}

func (c *conversations) handle(rec *record) *conversation {
	return &conversation{network: c.client.network, owner: c.client.address, record: rec}
}

// conversation is one client's handle to a conversation record.
type conversation struct {
	network *Network
	owner   string
	record  *record
}

var _ protocol.Conversation = (*conversation)(nil)

func (c *conversation) Topic() string             { return c.record.topic }
func (c *conversation) PeerAddress() string       { return c.record.peerOf(c.owner) }
func (c *conversation) Version() protocol.Version { return protocol.VersionV2 }
func (c *conversation) ConversationID() string    { return c.record.conversationID }
func (c *conversation) CreatedAt() time.Time      { return c.record.createdAt }

func (c *conversation) ExportTopicData() ([]byte, error) {
	return codec.Marshal(topicData{
		Version:        topicDataVersion,
		Members:        c.record.members,
		ConversationID: c.record.conversationID,
		Metadata:       c.record.metadata,
		CreatedAtNs:    c.record.createdAt.UnixNano(),
		Key:            c.record.key,
	})
}

// Messages returns persisted messages newest first, filtered by the
// page's time window and truncated to its limit.
func (c *conversation) Messages(ctx context.Context, page protocol.Pagination) ([]protocol.DecodedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	envelopes := c.network.history(c.record.topic)
	var result []protocol.DecodedMessage
	for i := len(envelopes) - 1; i >= 0; i-- {
		message, err := c.record.decode(envelopes[i])
		if err != nil {
			return nil, err
		}
		if !page.Contains(message.Sent) {
			continue
		}
		result = append(result, message)
		if page.Limit > 0 && len(result) == page.Limit {
			break
		}
	}
	return result, nil
}

func (c *conversation) Send(ctx context.Context, content protocol.EncodedContent, options protocol.SendOptions) (string, error) {
	if !options.ContentType.IsZero() {
		content.Type = options.ContentType
	}
	now := c.network.clock.Now()
	sealed, err := c.record.seal(messageBody{Sender: c.owner, SentNs: now.UnixNano(), Content: content})
	if err != nil {
		return "", fmt.Errorf("memnet: sealing message: %w", err)
	}
	topic := c.record.topic
	if options.Ephemeral {
		topic = ephemeralTopic(topic)
	}
	envelope := protocol.Envelope{ContentTopic: topic, Timestamp: now, Message: sealed}
	if err := c.network.publish(ctx, c.record, envelope, options.Ephemeral); err != nil {
		return "", err
	}
	digest := blake3.Sum256(sealed)
	return hex.EncodeToString(digest[:]), nil
}

func (c *conversation) StreamMessages(ctx context.Context) (protocol.Stream[protocol.DecodedMessage], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source, err := c.network.subscribeTopic(c.record.topic)
	if err != nil {
		return nil, err
	}
	return &decodingStream{source: source, decode: c.Decode}, nil
}

func (c *conversation) StreamEphemeral(ctx context.Context) (protocol.Stream[protocol.Envelope], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.network.subscribeTopic(ephemeralTopic(c.record.topic))
}

func (c *conversation) Decode(envelope protocol.Envelope) (protocol.DecodedMessage, error) {
	return c.record.decode(envelope)
}
