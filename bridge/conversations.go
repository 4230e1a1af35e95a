// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// Key is the cache and subscription key for owner's conversation on
// topic.
func Key(owner, topic string) string { return owner + ":" + topic }

// EphemeralKey is the subscription key for the ephemeral channel of
// owner's conversation on topic. It names no separate cache entry.
func EphemeralKey(owner, topic string) string { return Key(owner, topic) + ":ephemeral" }

// conversationCache holds at most one handle per (owner, topic).
// Concurrent misses on the same key may both scan; the later insert
// wins, and both refer to the same conversation.
type conversationCache struct {
	clients *clientRegistry
	scans   prometheus.Counter

	mu      sync.RWMutex
	entries map[string]protocol.Conversation
}

func newConversationCache(clients *clientRegistry, scans prometheus.Counter) *conversationCache {
	return &conversationCache{
		clients: clients,
		scans:   scans,
		entries: make(map[string]protocol.Conversation),
	}
}

// put caches conversation for owner.
func (c *conversationCache) put(owner string, conversation protocol.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(owner, conversation.Topic())] = conversation
}

// lookup returns the cached handle without scanning.
func (c *conversationCache) lookup(owner, topic string) (protocol.Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conversation, ok := c.entries[Key(owner, topic)]
	return conversation, ok
}

// resolve returns owner's conversation on topic, listing and scanning
// the client's conversations on a cache miss.
func (c *conversationCache) resolve(ctx context.Context, owner, topic string) (protocol.Conversation, error) {
	if conversation, ok := c.lookup(owner, topic); ok {
		return conversation, nil
	}

	client, err := c.clients.get(owner)
	if err != nil {
		return nil, err
	}
	c.scans.Inc()
	conversations, err := client.Conversations().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: listing conversations for %s: %w", owner, err)
	}
	for _, conversation := range conversations {
		if conversation.Topic() == topic {
			c.put(owner, conversation)
			return conversation, nil
		}
	}
	return nil, &ConversationNotFoundError{Address: owner, Topic: topic}
}

// forget drops every entry owned by owner.
func (c *conversationCache) forget(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, owner+":") {
			delete(c.entries, key)
		}
	}
}
