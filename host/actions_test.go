// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/lib/testutil"
	"github.com/bureau-foundation/msgbridge/protocol/memnet"
)

type fixture struct {
	client *Client
	hub    *Hub
	bridge *bridge.Bridge
}

func newFixture(t *testing.T, authTimeout time.Duration) *fixture {
	t.Helper()
	network := memnet.New(memnet.Config{Logger: testLogger()})
	t.Cleanup(func() { network.Close() })

	hub := newTestHub(64)
	b, err := bridge.New(bridge.Config{
		Network: network,
		Emitter: hub,
		Metrics: prometheus.NewRegistry(),
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	service, err := NewService(ServiceConfig{Bridge: b, Hub: hub, AuthTimeout: authTimeout, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	server := newTestServer(t)
	service.Register(server)
	startServer(t, server)
	return &fixture{client: NewClient(server.socketPath), hub: hub, bridge: b}
}

func (f *fixture) call(t *testing.T, action string, fields map[string]any, result any) {
	t.Helper()
	if err := f.client.Call(context.Background(), action, fields, result); err != nil {
		t.Fatalf("%s: %v", action, err)
	}
}

func (f *fixture) events(t *testing.T) *EventStream {
	t.Helper()
	stream, err := f.client.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	if f.hub.Listeners() == 0 {
		t.Fatal("event listener not registered by the time the stream was acknowledged")
	}
	return stream
}

// nextEvent reads events until one named name arrives.
func nextEvent(t *testing.T, stream *EventStream, name string) WireEvent {
	t.Helper()
	received := make(chan WireEvent, 1)
	failed := make(chan error, 1)
	go func() {
		for {
			event, err := stream.Next()
			if err != nil {
				failed <- err
				return
			}
			if event.Name == name {
				received <- event
				return
			}
		}
	}()
	select {
	case event := <-received:
		return event
	case err := <-failed:
		t.Fatalf("event stream failed waiting for %s: %v", name, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s event", name)
	}
	return WireEvent{}
}

func TestMessagingOverSocket(t *testing.T) {
	f := newFixture(t, 0)
	stream := f.events(t)

	var alice, bob string
	f.call(t, "createRandom", map[string]any{"environment": "local"}, &alice)
	f.call(t, "createRandom", map[string]any{"environment": "local"}, &bob)

	var canMessage bool
	f.call(t, "canMessage", map[string]any{"address": alice, "peer_address": bob}, &canMessage)
	if !canMessage {
		t.Fatal("canMessage = false")
	}

	var conversation bridge.ConversationInfo
	f.call(t, "createConversation", map[string]any{"address": alice, "peer_address": bob, "conversation_id": "chat/1"}, &conversation)
	if conversation.PeerAddress != bob || conversation.ConversationID != "chat/1" {
		t.Fatalf("conversation = %+v", conversation)
	}

	f.call(t, "subscribeToMessages", map[string]any{"address": bob, "topic": conversation.Topic}, nil)

	var messageID string
	f.call(t, "sendMessage", map[string]any{
		"address": alice,
		"topic":   conversation.Topic,
		"content": `{"text":"over the socket"}`,
	}, &messageID)

	var payload bridge.MessageEvent
	if err := nextEvent(t, stream, bridge.EventMessage).Decode(&payload); err != nil {
		t.Fatalf("decoding message event: %v", err)
	}
	if payload.Topic != conversation.Topic || payload.ConversationID != "chat/1" {
		t.Errorf("message event = %+v", payload)
	}

	var messages []bridge.Message
	f.call(t, "loadMessages", map[string]any{"address": bob, "topic": conversation.Topic, "limit": 10}, &messages)
	if len(messages) != 1 || messages[0].ID != messageID || *messages[0].Content.Text != "over the socket" {
		t.Fatalf("messages = %+v", messages)
	}

	var batch []bridge.Message
	f.call(t, "loadBatchMessages", map[string]any{
		"address": bob,
		"topics":  []string{`{"topic": "` + conversation.Topic + `", "limit": "oops"}`},
	}, &batch)
	if len(batch) != 1 {
		t.Errorf("batch = %d messages", len(batch))
	}

	var status Status
	f.call(t, "status", nil, &status)
	if len(status.Clients) != 2 || status.Listeners != 1 {
		t.Errorf("status = %+v", status)
	}
	if state := status.Subscriptions[bridge.Key(bob, conversation.Topic)]; state != "active" {
		t.Errorf("subscription state = %q", state)
	}

	f.call(t, "unsubscribeFromMessages", map[string]any{"address": bob, "topic": conversation.Topic}, nil)
	f.call(t, "status", nil, &status)
	if state := status.Subscriptions[bridge.Key(bob, conversation.Topic)]; state != "cancelled" {
		t.Errorf("state after unsubscribe = %q", state)
	}
}

func TestAuthOverSocket(t *testing.T) {
	f := newFixture(t, 0)
	stream := f.events(t)
	const address = "0x00000000000000000000000000000000000a11ce"

	authDone := make(chan error, 1)
	go func() {
		authDone <- f.client.Call(context.Background(), "auth", map[string]any{"address": address, "environment": "local"}, nil)
	}()

	var request bridge.SignRequest
	if err := nextEvent(t, stream, bridge.EventSign).Decode(&request); err != nil {
		t.Fatalf("decoding sign request: %v", err)
	}
	signature := make([]byte, bridge.SignatureLength)
	for i := range 64 {
		signature[i] = byte(i + 7)
	}
	f.call(t, "receiveSignature", map[string]any{
		"request_id": request.ID,
		"signature":  base64.StdEncoding.EncodeToString(signature),
	}, nil)

	if err := testutil.RequireReceive(t, authDone, 5*time.Second); err != nil {
		t.Fatalf("auth: %v", err)
	}
	var authed bridge.Authed
	nextEvent(t, stream, bridge.EventAuthed).Decode(&authed)
	if authed.Address != address {
		t.Errorf("authed = %+v", authed)
	}

	var reported string
	f.call(t, "address", map[string]any{"address": address}, &reported)
	if reported != address {
		t.Errorf("address = %q", reported)
	}
}

func TestAuthTimeout(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)

	err := f.client.Call(context.Background(), "auth", map[string]any{"address": "0xslow", "environment": "dev"}, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("auth error = %v, want a service error", err)
	}
}

func TestErrorsCrossTheSocket(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	var serviceErr *ServiceError
	err := f.client.Call(ctx, "listConversations", map[string]any{"address": "0xnobody"}, nil)
	if !errors.As(err, &serviceErr) {
		t.Fatalf("error = %v", err)
	}

	err = f.client.Call(ctx, "createFromKeyBundle", map[string]any{"key_bundle": "corrupt!!"}, nil)
	if !errors.As(err, &serviceErr) {
		t.Fatalf("error = %v", err)
	}

	err = f.client.Call(ctx, "registerPushToken", map[string]any{"token": "t"}, nil)
	if !errors.As(err, &serviceErr) {
		t.Fatalf("push without server error = %v", err)
	}

	if err := f.client.Call(ctx, "subscribePushTopics", map[string]any{"topics": []string{}}, nil); err != nil {
		t.Errorf("empty subscribePushTopics = %v", err)
	}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Error("NewService without a bridge succeeded")
	}
}
