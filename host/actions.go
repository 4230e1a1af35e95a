// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/lib/codec"
	"github.com/bureau-foundation/msgbridge/protocol"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Bridge executes the commands. Required.
	Bridge *bridge.Bridge

	// Hub serves the events action. Required.
	Hub *Hub

	// AuthTimeout bounds an auth request, signature round trips
	// included. Zero leaves auth waiting until the host answers or the
	// server stops.
	AuthTimeout time.Duration

	// DefaultPushServer is used by registerPushToken requests that
	// name no server.
	DefaultPushServer string

	Logger *slog.Logger
}

// Service maps socket actions onto bridge commands.
type Service struct {
	bridge            *bridge.Bridge
	hub               *Hub
	authTimeout       time.Duration
	defaultPushServer string
	logger            *slog.Logger
}

// NewService validates config and returns the service.
func NewService(config ServiceConfig) (*Service, error) {
	if config.Bridge == nil {
		return nil, errors.New("host: Bridge is required")
	}
	if config.Hub == nil {
		return nil, errors.New("host: Hub is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{
		bridge:            config.Bridge,
		hub:               config.Hub,
		authTimeout:       config.AuthTimeout,
		defaultPushServer: config.DefaultPushServer,
		logger:            config.Logger,
	}, nil
}

// action adapts a typed handler to an ActionFunc by decoding the
// request into T.
func action[T any](handler func(ctx context.Context, request T) (any, error)) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var request T
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		return handler(ctx, request)
	}
}

type addressRequest struct {
	Address string `cbor:"address"`
}

type environmentRequest struct {
	Environment string `cbor:"environment"`
	AppVersion  string `cbor:"app_version"`
}

type authRequest struct {
	Address     string `cbor:"address"`
	Environment string `cbor:"environment"`
	AppVersion  string `cbor:"app_version"`
}

type receiveSignatureRequest struct {
	RequestID string `cbor:"request_id"`
	Signature string `cbor:"signature"`
}

type createFromKeyBundleRequest struct {
	KeyBundle   string `cbor:"key_bundle"`
	Environment string `cbor:"environment"`
	AppVersion  string `cbor:"app_version"`
}

type topicRequest struct {
	Address string `cbor:"address"`
	Topic   string `cbor:"topic"`
}

type importTopicDataRequest struct {
	Address   string `cbor:"address"`
	TopicData string `cbor:"topic_data"`
}

type peerRequest struct {
	Address        string `cbor:"address"`
	PeerAddress    string `cbor:"peer_address"`
	ConversationID string `cbor:"conversation_id"`
}

type loadMessagesRequest struct {
	Address string `cbor:"address"`
	Topic   string `cbor:"topic"`
	Limit   int    `cbor:"limit"`
	Before  int64  `cbor:"before"`
	After   int64  `cbor:"after"`
}

type loadBatchMessagesRequest struct {
	Address string   `cbor:"address"`
	Topics  []string `cbor:"topics"`
}

type sendMessageRequest struct {
	Address   string `cbor:"address"`
	Topic     string `cbor:"topic"`
	Content   string `cbor:"content"`
	Ephemeral bool   `cbor:"ephemeral"`
}

type decodeMessageRequest struct {
	Address  string `cbor:"address"`
	Topic    string `cbor:"topic"`
	Envelope string `cbor:"envelope"`
}

type registerPushTokenRequest struct {
	Server string `cbor:"server"`
	Token  string `cbor:"token"`
}

type subscribePushTopicsRequest struct {
	Topics []string `cbor:"topics"`
}

// Status is the reply to the status action.
type Status struct {
	Clients       []string          `cbor:"clients"`
	Subscriptions map[string]string `cbor:"subscriptions"`
	Listeners     int               `cbor:"listeners"`
}

// Register installs every action on server.
func (s *Service) Register(server *Server) {
	b := s.bridge

	server.HandleStream("events", s.hub.ServeEvents)
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		subscriptions := make(map[string]string)
		for key, state := range b.Subscriptions() {
			subscriptions[key] = state.String()
		}
		return Status{Clients: b.Clients(), Subscriptions: subscriptions, Listeners: s.hub.Listeners()}, nil
	})

	server.Handle("address", action(func(ctx context.Context, r addressRequest) (any, error) {
		return b.Address(r.Address)
	}))
	server.Handle("auth", action(func(ctx context.Context, r authRequest) (any, error) {
		if s.authTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.authTimeout)
			defer cancel()
		}
		return nil, b.Auth(ctx, r.Address, r.Environment, r.AppVersion)
	}))
	server.Handle("receiveSignature", action(func(ctx context.Context, r receiveSignatureRequest) (any, error) {
		b.ReceiveSignature(r.RequestID, r.Signature)
		return nil, nil
	}))
	server.Handle("createRandom", action(func(ctx context.Context, r environmentRequest) (any, error) {
		return b.CreateRandom(ctx, r.Environment, r.AppVersion)
	}))
	server.Handle("createFromKeyBundle", action(func(ctx context.Context, r createFromKeyBundleRequest) (any, error) {
		return b.CreateFromKeyBundle(ctx, r.KeyBundle, r.Environment, r.AppVersion)
	}))
	server.Handle("exportKeyBundle", action(func(ctx context.Context, r addressRequest) (any, error) {
		return b.ExportKeyBundle(r.Address)
	}))
	server.Handle("exportConversationTopicData", action(func(ctx context.Context, r topicRequest) (any, error) {
		return b.ExportConversationTopicData(ctx, r.Address, r.Topic)
	}))
	server.Handle("importConversationTopicData", action(func(ctx context.Context, r importTopicDataRequest) (any, error) {
		return b.ImportConversationTopicData(ctx, r.Address, r.TopicData)
	}))
	server.Handle("canMessage", action(func(ctx context.Context, r peerRequest) (any, error) {
		return b.CanMessage(ctx, r.Address, r.PeerAddress)
	}))
	server.Handle("listConversations", action(func(ctx context.Context, r addressRequest) (any, error) {
		return b.ListConversations(ctx, r.Address)
	}))
	server.Handle("loadMessages", action(func(ctx context.Context, r loadMessagesRequest) (any, error) {
		return b.LoadMessages(ctx, r.Address, r.Topic, pagination(r.Limit, r.Before, r.After))
	}))
	server.Handle("loadBatchMessages", action(func(ctx context.Context, r loadBatchMessagesRequest) (any, error) {
		queries, err := ParseBatchQueries(r.Topics, s.logger)
		if err != nil {
			return nil, err
		}
		return b.LoadBatchMessages(ctx, r.Address, queries)
	}))
	server.Handle("sendMessage", action(func(ctx context.Context, r sendMessageRequest) (any, error) {
		return b.SendMessage(ctx, r.Address, r.Topic, r.Content, r.Ephemeral)
	}))
	server.Handle("createConversation", action(func(ctx context.Context, r peerRequest) (any, error) {
		return b.CreateConversation(ctx, r.Address, r.PeerAddress, r.ConversationID)
	}))
	server.Handle("decodeMessage", action(func(ctx context.Context, r decodeMessageRequest) (any, error) {
		return b.DecodeMessage(ctx, r.Address, r.Topic, r.Envelope)
	}))
	server.Handle("loadReactions", action(func(ctx context.Context, r topicRequest) (any, error) {
		return b.LoadReactions(ctx, r.Address, r.Topic)
	}))

	server.Handle("subscribeToConversations", action(func(ctx context.Context, r addressRequest) (any, error) {
		return nil, b.SubscribeToConversations(r.Address)
	}))
	server.Handle("subscribeToAllMessages", action(func(ctx context.Context, r addressRequest) (any, error) {
		return nil, b.SubscribeToAllMessages(r.Address)
	}))
	server.Handle("subscribeToMessages", action(func(ctx context.Context, r topicRequest) (any, error) {
		return nil, b.SubscribeToMessages(ctx, r.Address, r.Topic)
	}))
	server.Handle("subscribeToEphemeralMessages", action(func(ctx context.Context, r topicRequest) (any, error) {
		return nil, b.SubscribeToEphemeralMessages(ctx, r.Address, r.Topic)
	}))
	server.Handle("unsubscribeFromConversations", action(func(ctx context.Context, r addressRequest) (any, error) {
		return nil, b.UnsubscribeFromConversations(r.Address)
	}))
	server.Handle("unsubscribeFromAllMessages", action(func(ctx context.Context, r addressRequest) (any, error) {
		return nil, b.UnsubscribeFromAllMessages(r.Address)
	}))
	server.Handle("unsubscribeFromMessages", action(func(ctx context.Context, r topicRequest) (any, error) {
		return nil, b.UnsubscribeFromMessages(r.Address, r.Topic)
	}))
	server.Handle("unsubscribeFromEphemeralMessages", action(func(ctx context.Context, r topicRequest) (any, error) {
		return nil, b.UnsubscribeFromEphemeralMessages(r.Address, r.Topic)
	}))

	server.Handle("registerPushToken", action(func(ctx context.Context, r registerPushTokenRequest) (any, error) {
		pushServer := r.Server
		if pushServer == "" {
			pushServer = s.defaultPushServer
		}
		if pushServer == "" {
			return nil, errors.New("no push server given and none configured")
		}
		return nil, b.RegisterPushToken(ctx, pushServer, r.Token)
	}))
	server.Handle("subscribePushTopics", action(func(ctx context.Context, r subscribePushTopicsRequest) (any, error) {
		return nil, b.SubscribePushTopics(ctx, r.Topics)
	}))
}

// pagination builds a page from wire values where non-positive means
// unset and times are unix milliseconds.
func pagination(limit int, before, after int64) protocol.Pagination {
	var page protocol.Pagination
	if limit > 0 {
		page.Limit = limit
	}
	if before > 0 {
		page.Before = time.UnixMilli(before)
	}
	if after > 0 {
		page.After = time.UnixMilli(after)
	}
	return page
}
