// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/host"
	"github.com/bureau-foundation/msgbridge/lib/clock"
	"github.com/bureau-foundation/msgbridge/lib/reaction"
	"github.com/bureau-foundation/msgbridge/lib/typing"
)

// typingTTL drops a peer from the typing line if it goes quiet without
// sending notTyping.
const typingTTL = 15 * time.Second

func (a *app) watchCommand() *Command {
	var (
		conn       connection
		address    string
		topic      string
		showTyping bool
	)
	return &Command{
		Name:    "watch",
		Summary: "Follow a client's conversations and messages as they arrive",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&topic, "topic", "", "follow only this conversation (default: all of them)")
			flagSet.BoolVar(&showTyping, "typing", false, "show typing indicators (requires --topic)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if showTyping && topic == "" {
				return fmt.Errorf("--typing requires --topic")
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			w := newWatcher(client, address, printDisplay{out: a.out, self: address}, nil, a.logger)
			return w.run(ctx, watchSubscriptions(client, address, topic, showTyping))
		},
	}
}

// watchSubscriptions returns the calls that (re)establish the
// daemon-side subscriptions after each event stream connect. The
// daemon replaces an existing subscription under the same key, so
// repeating them is safe.
func watchSubscriptions(client *host.Client, address, topic string, showTyping bool) func(context.Context) error {
	return func(ctx context.Context) error {
		if topic == "" {
			if err := client.Call(ctx, "subscribeToConversations", map[string]any{"address": address}, nil); err != nil {
				return err
			}
			return client.Call(ctx, "subscribeToAllMessages", map[string]any{"address": address}, nil)
		}
		fields := map[string]any{"address": address, "topic": topic}
		if err := client.Call(ctx, "subscribeToMessages", fields, nil); err != nil {
			return err
		}
		if showTyping {
			return client.Call(ctx, "subscribeToEphemeralMessages", fields, nil)
		}
		return nil
	}
}

// display receives what a watcher observes.
type display interface {
	message(message bridge.Message)
	conversation(info bridge.ConversationInfo)
	reactions(messageID string, summaries []reaction.Summary)
	typing(senders []string)
	notice(format string, args ...any)
}

// printDisplay writes one styled line per observation.
type printDisplay struct {
	out  io.Writer
	self string
}

func (d printDisplay) message(message bridge.Message) {
	fmt.Fprintln(d.out, renderMessage(message, d.self))
}

func (d printDisplay) conversation(info bridge.ConversationInfo) {
	fmt.Fprintln(d.out, renderConversation(info))
}

func (d printDisplay) reactions(messageID string, summaries []reaction.Summary) {
	fmt.Fprintln(d.out, renderReactions(messageID, summaries))
}

func (d printDisplay) typing(senders []string) {
	fmt.Fprintln(d.out, renderTyping(senders))
}

func (d printDisplay) notice(format string, args ...any) {
	fmt.Fprintln(d.out, renderNotice(format, args...))
}

// watcher follows the event stream for one client address.
type watcher struct {
	client  *host.Client
	self    string
	display display
	typing  *typing.Tracker
	logger  *slog.Logger

	// retry is the reconnect policy. Tests shorten it.
	retry *backoff.ExponentialBackOff
}

func newWatcher(client *host.Client, self string, d display, c clock.Clock, logger *slog.Logger) *watcher {
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0
	retry.MaxInterval = 30 * time.Second
	return &watcher{
		client: client,
		self:    self,
		display: d,
		typing:  typing.NewTracker(c, typingTTL),
		logger:  logger,
		retry:   retry,
	}
}

// run follows the event stream until ctx ends, reconnecting with
// exponential backoff whenever the daemon goes away. A command the
// daemon rejects while subscribing ends the watch.
func (w *watcher) run(ctx context.Context, subscribe func(context.Context) error) error {
	operation := func() error {
		stream, err := w.client.Events(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer stream.Close()

		if err := subscribe(ctx); err != nil {
			var serviceErr *host.ServiceError
			if errors.As(err, &serviceErr) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		w.retry.Reset()
		w.display.notice("watching %s", shortAddress(w.self))

		for {
			event, err := stream.Next()
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				return fmt.Errorf("event stream: %w", err)
			}
			if err := w.handle(ctx, event); err != nil {
				w.logger.Warn("rendering event", "event", event.Name, "error", err)
			}
		}
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(w.retry, ctx), func(err error, wait time.Duration) {
		w.display.notice("disconnected: %v (retrying in %s)", err, wait.Round(time.Millisecond))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handle renders one event.
func (w *watcher) handle(ctx context.Context, event host.WireEvent) error {
	switch event.Name {
	case bridge.EventConversation:
		var conversation bridge.ConversationInfo
		if err := event.Decode(&conversation); err != nil {
			return err
		}
		w.display.conversation(conversation)

	case bridge.EventMessage:
		message, topic, err := decodeMessageEvent(event)
		if err != nil {
			return err
		}
		w.display.message(message)
		if message.Content.Reaction != nil {
			return w.showReactions(ctx, topic, message.Content.Reaction.Reference)
		}

	case bridge.EventEphemeralMessage:
		message, _, err := decodeMessageEvent(event)
		if err != nil {
			return err
		}
		if message.SenderAddress == w.self || message.Content.Text == nil {
			return nil
		}
		text := *message.Content.Text
		if text != typing.Typing && text != typing.NotTyping {
			w.display.message(message)
			return nil
		}
		if w.typing.Observe(message.SenderAddress, text) {
			w.display.typing(w.typing.Typing())
		}

	case bridge.EventAuthed:
		var authed bridge.Authed
		if err := event.Decode(&authed); err != nil {
			return err
		}
		w.display.notice("%s authenticated", shortAddress(authed.Address))

	case bridge.EventSign:
		var request bridge.SignRequest
		if err := event.Decode(&request); err != nil {
			return err
		}
		w.display.notice("signature requested (%s)", request.ID)
	}
	return nil
}

// showReactions reloads the topic's reactions and prints the line for
// messageID.
func (w *watcher) showReactions(ctx context.Context, topic, messageID string) error {
	var aggregate reaction.Aggregate
	if err := w.client.Call(ctx, "loadReactions", map[string]any{"address": w.self, "topic": topic}, &aggregate); err != nil {
		return err
	}
	w.display.reactions(messageID, aggregate[messageID])
	return nil
}

func decodeMessageEvent(event host.WireEvent) (bridge.Message, string, error) {
	var payload bridge.MessageEvent
	if err := event.Decode(&payload); err != nil {
		return bridge.Message{}, "", err
	}
	var message bridge.Message
	if err := json.Unmarshal([]byte(payload.MessageJSON), &message); err != nil {
		return bridge.Message{}, "", fmt.Errorf("decoding message JSON: %w", err)
	}
	return message, payload.Topic, nil
}
