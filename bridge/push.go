// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
)

// RegisterPushToken creates a push client for server and registers
// the device token with it. The client is kept for
// SubscribePushTopics even if registration fails, so a retry can
// reuse it.
func (b *Bridge) RegisterPushToken(ctx context.Context, server, token string) error {
	if b.pushDialer == nil {
		return errors.New("bridge: push is not configured")
	}
	client, err := b.pushDialer(server)
	if err != nil {
		return fmt.Errorf("bridge: push server %s: %w", server, err)
	}

	b.pushMu.Lock()
	b.push = client
	b.pushMu.Unlock()

	if err := client.Register(ctx, token); err != nil {
		return fmt.Errorf("bridge: registering push token: %w", err)
	}
	b.logger.Info("push token registered", "server", server)
	return nil
}

// SubscribePushTopics asks the push server to notify for topics. An
// empty list is a no-op.
func (b *Bridge) SubscribePushTopics(ctx context.Context, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	b.pushMu.Lock()
	client := b.push
	b.pushMu.Unlock()
	if client == nil {
		return ErrPushServerNotRegistered
	}
	if err := client.Subscribe(ctx, topics); err != nil {
		return fmt.Errorf("bridge: subscribing push topics: %w", err)
	}
	return nil
}
