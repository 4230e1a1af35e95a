// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/host"
	"github.com/bureau-foundation/msgbridge/lib/chatui"
	"github.com/bureau-foundation/msgbridge/lib/reaction"
)

func (a *app) chatCommand() *Command {
	var (
		conn    connection
		address string
		topic   string
		history int
		color   string
	)
	return &Command{
		Name:    "chat",
		Summary: "Open an interactive view of one conversation",
		Usage:   "msgbridge chat --address ADDRESS --topic TOPIC",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("chat", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&topic, "topic", "", "conversation topic (required)")
			flagSet.IntVar(&history, "history", 50, "stored messages to show on open")
			flagSet.StringVar(&color, "color", "auto", "message colors: auto, always or never")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if err := required("topic", topic); err != nil {
				return err
			}
			profile, err := colorProfile(color, a.out)
			if err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			return a.chat(ctx, client, address, topic, history, profile)
		},
	}
}

func (a *app) chat(ctx context.Context, client *host.Client, address, topic string, history int, profile termenv.Profile) error {
	var messages []bridge.Message
	if err := client.Call(ctx, "loadMessages", map[string]any{
		"address": address,
		"topic":   topic,
		"limit":   history,
	}, &messages); err != nil {
		return err
	}
	slices.Reverse(messages)
	entries := make([]chatui.Entry, 0, len(messages))
	for _, message := range messages {
		entries = append(entries, chatEntry(message, address))
	}

	send := func(text string, ephemeral bool) error {
		content, err := sendContent(text, "")
		if err != nil {
			return err
		}
		return client.Call(ctx, "sendMessage", map[string]any{
			"address":   address,
			"topic":     topic,
			"content":   content,
			"ephemeral": ephemeral,
		}, nil)
	}
	model := chatui.NewModel(chatui.Config{
		Title:     fmt.Sprintf(" %s · %s", shortAddress(address), topic),
		Send:      func(text string) error { return send(text, false) },
		SetTyping: func(status string) error { return send(status, true) },
		History:   entries,
		Markdown:  chatui.NewMarkdown(profile),
	})
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen(), tea.WithOutput(a.out))

	watchContext, stopWatching := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		w := newWatcher(client, address, chatDisplay{program: program, self: address}, nil, a.logger)
		if err := w.run(watchContext, watchSubscriptions(client, address, topic, true)); err != nil {
			program.Send(chatui.Notice("no longer following: %v", err))
		}
	}()

	_, err := program.Run()
	stopWatching()
	<-watchDone
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// colorProfile maps the --color flag to a termenv profile. auto
// honors NO_COLOR and CLICOLOR_FORCE and inspects out.
func colorProfile(mode string, out io.Writer) (termenv.Profile, error) {
	switch mode {
	case "auto":
		return termenv.NewOutput(out).EnvColorProfile(), nil
	case "always":
		return termenv.ANSI256, nil
	case "never":
		return termenv.Ascii, nil
	default:
		return termenv.Ascii, fmt.Errorf("--color must be auto, always or never, not %q", mode)
	}
}

// chatEntry converts a message for the chat view. Text bodies are left
// as markdown; other content is described on one styled line.
func chatEntry(message bridge.Message, self string) chatui.Entry {
	entry := chatui.Entry{
		Time:   time.UnixMilli(message.Sent),
		Author: shortAddress(message.SenderAddress),
		Self:   message.SenderAddress == self,
	}
	if message.Content.Text != nil {
		entry.Text = *message.Content.Text
	} else {
		entry.Text = describeContent(message.Content)
		entry.Styled = true
	}
	return entry
}

// chatDisplay forwards watcher observations into a running chat view.
type chatDisplay struct {
	program *tea.Program
	self    string
}

func (d chatDisplay) message(message bridge.Message) {
	d.program.Send(chatEntry(message, d.self))
}

func (d chatDisplay) conversation(info bridge.ConversationInfo) {
	d.program.Send(chatui.Notice("new conversation with %s on %s", shortAddress(info.PeerAddress), info.Topic))
}

func (d chatDisplay) reactions(messageID string, summaries []reaction.Summary) {
	d.program.Send(chatui.Notice("%s", renderReactions(messageID, summaries)))
}

func (d chatDisplay) typing(senders []string) {
	if len(senders) == 0 {
		d.program.Send(chatui.TypingMsg(""))
		return
	}
	d.program.Send(chatui.TypingMsg(renderTyping(senders)))
}

func (d chatDisplay) notice(format string, args ...any) {
	d.program.Send(chatui.Notice(format, args...))
}
