// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memnet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/msgbridge/lib/clock"
	"github.com/bureau-foundation/msgbridge/protocol"
)

// DefaultStreamBuffer is the per-subscription buffer used when
// Config.StreamBuffer is zero.
const DefaultStreamBuffer = 64

// Config configures a Network.
type Config struct {
	// Clock stamps envelopes and conversation creation times. Nil
	// means the real clock.
	Clock clock.Clock

	// StreamBuffer is the per-subscription channel capacity.
	StreamBuffer int

	Logger *slog.Logger
}

// Network is an in-process messaging network. It implements
// protocol.Network and is safe for concurrent use.
type Network struct {
	clock  clock.Clock
	buffer int
	logger *slog.Logger

	mu sync.Mutex

	// identities maps account address to identity public key.
	identities map[string]ed25519.PublicKey

	// conversations maps topic to conversation state. Ephemeral
	// topics are not keys here.
	conversations map[string]*record

	// memberships lists each account's topics in creation order.
	memberships map[string][]string

	// stored holds persisted envelopes per topic, oldest first.
	stored map[string][]protocol.Envelope

	// topicSubscribers receive envelopes published to a topic
	// (persisted or ephemeral).
	topicSubscribers map[string]map[*subscription[protocol.Envelope]]struct{}

	// accountSubscribers receive every persisted envelope on any of
	// the account's conversations.
	accountSubscribers map[string]map[*subscription[protocol.Envelope]]struct{}

	// conversationSubscribers receive new conversations per account.
	conversationSubscribers map[string]map[*subscription[protocol.Conversation]]struct{}

	closed bool
}

var _ protocol.Network = (*Network)(nil)

// ErrClosed is returned by operations on a closed Network.
var ErrClosed = errors.New("memnet: network closed")

// New creates an empty network.
func New(config Config) *Network {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = DefaultStreamBuffer
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Network{
		clock:                   config.Clock,
		buffer:                  config.StreamBuffer,
		logger:                  config.Logger,
		identities:              make(map[string]ed25519.PublicKey),
		conversations:           make(map[string]*record),
		memberships:             make(map[string][]string),
		stored:                  make(map[string][]protocol.Envelope),
		topicSubscribers:        make(map[string]map[*subscription[protocol.Envelope]]struct{}),
		accountSubscribers:      make(map[string]map[*subscription[protocol.Envelope]]struct{}),
		conversationSubscribers: make(map[string]map[*subscription[protocol.Conversation]]struct{}),
	}
}

// Close ends every open stream with ErrStreamClosed. Clients created
// from the network fail afterwards with ErrClosed.
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	envelopeSubs, conversationSubs := n.allSubscriptionsLocked()
	n.mu.Unlock()

	for _, sub := range envelopeSubs {
		sub.end(protocol.ErrStreamClosed)
	}
	for _, sub := range conversationSubs {
		sub.end(protocol.ErrStreamClosed)
	}
	return nil
}

// Interrupt ends every stream that observes topic with err, as if the
// transport had failed. Streams on the conversation's ephemeral topic
// and all-message streams of its participants are included.
func (n *Network) Interrupt(topic string, err error) {
	n.mu.Lock()
	var victims []*subscription[protocol.Envelope]
	for sub := range n.topicSubscribers[topic] {
		victims = append(victims, sub)
	}
	for sub := range n.topicSubscribers[ephemeralTopic(topic)] {
		victims = append(victims, sub)
	}
	if rec, ok := n.conversations[topic]; ok {
		for _, member := range rec.members {
			for sub := range n.accountSubscribers[member] {
				victims = append(victims, sub)
			}
		}
	}
	n.mu.Unlock()

	n.logger.Debug("interrupting streams", "topic", topic, "streams", len(victims), "error", err)
	for _, sub := range victims {
		sub.end(err)
	}
}

// Registered reports whether address has an identity on the network.
func (n *Network) Registered(address string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.identities[address]
	return ok
}

func (n *Network) allSubscriptionsLocked() ([]*subscription[protocol.Envelope], []*subscription[protocol.Conversation]) {
	var envelopeSubs []*subscription[protocol.Envelope]
	for _, set := range n.topicSubscribers {
		for sub := range set {
			envelopeSubs = append(envelopeSubs, sub)
		}
	}
	for _, set := range n.accountSubscribers {
		for sub := range set {
			envelopeSubs = append(envelopeSubs, sub)
		}
	}
	var conversationSubs []*subscription[protocol.Conversation]
	for _, set := range n.conversationSubscribers {
		for sub := range set {
			conversationSubs = append(conversationSubs, sub)
		}
	}
	return envelopeSubs, conversationSubs
}

// register records an identity. Re-registering an address with the
// same key is a no-op; a different key is rejected.
func (n *Network) register(address string, public ed25519.PublicKey) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if existing, ok := n.identities[address]; ok {
		if !existing.Equal(public) {
			return fmt.Errorf("memnet: address %s is registered with a different identity key", address)
		}
		return nil
	}
	n.identities[address] = public
	n.logger.Debug("identity registered", "address", address)
	return nil
}

// subscribeTopic opens a raw envelope subscription on topic.
func (n *Network) subscribeTopic(topic string) (*subscription[protocol.Envelope], error) {
	return subscribeIn(n, n.topicSubscribers, topic)
}

// subscribeAccount opens a subscription to every persisted envelope
// on address's conversations.
func (n *Network) subscribeAccount(address string) (*subscription[protocol.Envelope], error) {
	return subscribeIn(n, n.accountSubscribers, address)
}

func (n *Network) subscribeConversations(address string) (*subscription[protocol.Conversation], error) {
	return subscribeIn(n, n.conversationSubscribers, address)
}

func subscribeIn[T any](n *Network, table map[string]map[*subscription[T]]struct{}, key string) (*subscription[T], error) {
	sub := newSubscription[T](n.buffer)
	sub.detach = func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(table[key], sub)
		if len(table[key]) == 0 {
			delete(table, key)
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	set, ok := table[key]
	if !ok {
		set = make(map[*subscription[T]]struct{})
		table[key] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// publish stores envelope (unless ephemeral) and delivers it to the
// topic's subscribers and, for persisted messages, to the
// participants' all-message subscribers.
func (n *Network) publish(ctx context.Context, rec *record, envelope protocol.Envelope, ephemeral bool) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	var targets []*subscription[protocol.Envelope]
	for sub := range n.topicSubscribers[envelope.ContentTopic] {
		targets = append(targets, sub)
	}
	if !ephemeral {
		n.stored[rec.topic] = append(n.stored[rec.topic], envelope)
		for _, member := range rec.members {
			for sub := range n.accountSubscribers[member] {
				targets = append(targets, sub)
			}
		}
	}
	n.mu.Unlock()

	for _, sub := range targets {
		if !sub.deliver(ctx, envelope) && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// history returns a copy of the persisted envelopes on topic, oldest
// first.
func (n *Network) history(topic string) []protocol.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]protocol.Envelope(nil), n.stored[topic]...)
}

// lookupRecord returns the conversation record for topic.
func (n *Network) lookupRecord(topic string) (*record, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rec, ok := n.conversations[topic]
	return rec, ok
}

// addConversation installs rec (or returns the existing record for
// its topic) and announces it to the members' conversation streams.
func (n *Network) addConversation(ctx context.Context, rec *record) (*record, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	if existing, ok := n.conversations[rec.topic]; ok {
		n.mu.Unlock()
		return existing, nil
	}
	n.conversations[rec.topic] = rec

	type announcement struct {
		sub    *subscription[protocol.Conversation]
		member string
	}
	var announcements []announcement
	for _, member := range rec.members {
		n.memberships[member] = append(n.memberships[member], rec.topic)
		for sub := range n.conversationSubscribers[member] {
			announcements = append(announcements, announcement{sub: sub, member: member})
		}
	}
	n.mu.Unlock()

	n.logger.Debug("conversation created", "topic", rec.topic, "members", rec.members)
	for _, a := range announcements {
		a.sub.deliver(ctx, &conversation{network: n, owner: a.member, record: rec})
	}
	return rec, nil
}

// adopt adds topic to owner's memberships if it is not already there.
// Used when a conversation is imported from a snapshot.
func (n *Network) adopt(owner string, rec *record) *record {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.conversations[rec.topic]; ok {
		rec = existing
	} else {
		n.conversations[rec.topic] = rec
	}
	for _, topic := range n.memberships[owner] {
		if topic == rec.topic {
			return rec
		}
	}
	n.memberships[owner] = append(n.memberships[owner], rec.topic)
	return rec
}

// membershipRecords returns owner's conversation records in creation
// order.
func (n *Network) membershipRecords(owner string) []*record {
	n.mu.Lock()
	defer n.mu.Unlock()
	topics := n.memberships[owner]
	records := make([]*record, 0, len(topics))
	for _, topic := range topics {
		if rec, ok := n.conversations[topic]; ok {
			records = append(records, rec)
		}
	}
	return records
}
