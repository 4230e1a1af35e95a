// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/host"
	"github.com/bureau-foundation/msgbridge/lib/reaction"
	"github.com/bureau-foundation/msgbridge/lib/typing"
)

func required(flag, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", flag)
	}
	return nil
}

func noArgs(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	return nil
}

func (a *app) statusCommand() *Command {
	var conn connection
	return &Command{
		Name:    "status",
		Summary: "Show registered clients, subscriptions and event listeners",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var status host.Status
			if err := client.Call(ctx, "status", nil, &status); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "listeners: %d\n", status.Listeners)
			fmt.Fprintf(a.out, "clients:\n")
			for _, address := range status.Clients {
				fmt.Fprintf(a.out, "  %s\n", address)
			}
			keys := make([]string, 0, len(status.Subscriptions))
			for key := range status.Subscriptions {
				keys = append(keys, key)
			}
			slices.Sort(keys)
			fmt.Fprintf(a.out, "subscriptions:\n")
			tw := tabwriter.NewWriter(a.out, 2, 0, 2, ' ', 0)
			for _, key := range keys {
				fmt.Fprintf(tw, "  %s\t%s\n", key, status.Subscriptions[key])
			}
			return tw.Flush()
		},
	}
}

func (a *app) createCommand() *Command {
	var (
		conn        connection
		environment string
		appVersion  string
	)
	return &Command{
		Name:    "create",
		Summary: "Create a client with a fresh random key and print its address",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&environment, "environment", "local", "network environment: local, dev or production")
			flagSet.StringVar(&appVersion, "app-version", "", "app version reported to the network")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var address string
			if err := client.Call(ctx, "createRandom", map[string]any{
				"environment": environment,
				"app_version": appVersion,
			}, &address); err != nil {
				return err
			}
			fmt.Fprintln(a.out, address)
			return nil
		},
	}
}

func (a *app) addressCommand() *Command {
	var (
		conn    connection
		address string
	)
	return &Command{
		Name:    "address",
		Summary: "Check that a client is registered and print its address",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("address", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var registered string
			if err := client.Call(ctx, "address", map[string]any{"address": address}, &registered); err != nil {
				return err
			}
			fmt.Fprintln(a.out, registered)
			return nil
		},
	}
}

func (a *app) listCommand() *Command {
	var (
		conn    connection
		address string
		match   string
	)
	return &Command{
		Name:    "list",
		Summary: "List a client's conversations",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&match, "match", "", "fuzzy filter on topic, peer or conversation id")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var conversations []bridge.ConversationInfo
			if err := client.Call(ctx, "listConversations", map[string]any{"address": address}, &conversations); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TOPIC\tPEER\tCONVERSATION ID\n")
			for _, conversation := range matchConversations(conversations, match) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", conversation.Topic, conversation.PeerAddress, conversation.ConversationID)
			}
			return tw.Flush()
		},
	}
}

func (a *app) converseCommand() *Command {
	var (
		conn           connection
		address        string
		peer           string
		conversationID string
	)
	return &Command{
		Name:    "converse",
		Summary: "Create a conversation with a peer and print its topic",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("converse", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&peer, "peer", "", "peer address (required)")
			flagSet.StringVar(&conversationID, "id", "", "conversation id; distinct ids give distinct conversations with one peer")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if err := required("peer", peer); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var conversation bridge.ConversationInfo
			if err := client.Call(ctx, "createConversation", map[string]any{
				"address":         address,
				"peer_address":    peer,
				"conversation_id": conversationID,
			}, &conversation); err != nil {
				return err
			}
			fmt.Fprintln(a.out, conversation.Topic)
			return nil
		},
	}
}

func (a *app) canMessageCommand() *Command {
	var (
		conn    connection
		address string
		peer    string
	)
	return &Command{
		Name:    "can-message",
		Summary: "Report whether a peer address is reachable on the network",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("can-message", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&peer, "peer", "", "peer address (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if err := required("peer", peer); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var reachable bool
			if err := client.Call(ctx, "canMessage", map[string]any{"address": address, "peer_address": peer}, &reachable); err != nil {
				return err
			}
			fmt.Fprintln(a.out, reachable)
			return nil
		},
	}
}

func (a *app) sendCommand() *Command {
	var (
		conn      connection
		address   string
		topic     string
		text      string
		content   string
		ephemeral bool
	)
	return &Command{
		Name:    "send",
		Summary: "Send a message to a conversation and print its id",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&topic, "topic", "", "conversation topic (required)")
			flagSet.StringVar(&text, "text", "", "text to send")
			flagSet.StringVar(&content, "content", "", `raw content envelope, e.g. {"reaction":{...}}`)
			flagSet.BoolVar(&ephemeral, "ephemeral", false, "send on the ephemeral channel")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if err := required("topic", topic); err != nil {
				return err
			}
			contentJSON, err := sendContent(text, content)
			if err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var id string
			if err := client.Call(ctx, "sendMessage", map[string]any{
				"address":   address,
				"topic":     topic,
				"content":   contentJSON,
				"ephemeral": ephemeral,
			}, &id); err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
}

// sendContent builds the content envelope from exactly one of --text
// and --content.
func sendContent(text, content string) (string, error) {
	switch {
	case text != "" && content != "":
		return "", fmt.Errorf("--text and --content are mutually exclusive")
	case content != "":
		return content, nil
	case text != "":
		encoded, err := json.Marshal(bridge.Content{Text: &text})
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	default:
		return "", fmt.Errorf("one of --text or --content is required")
	}
}

func (a *app) historyCommand() *Command {
	var (
		conn    connection
		address string
		topic   string
		limit   int
		before  int64
		after   int64
		raw     bool
	)
	return &Command{
		Name:    "history",
		Summary: "Print stored messages of a conversation, oldest first",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&topic, "topic", "", "conversation topic (required)")
			flagSet.IntVar(&limit, "limit", 50, "maximum messages; 0 for all")
			flagSet.Int64Var(&before, "before", 0, "only messages sent before this unix millisecond time")
			flagSet.Int64Var(&after, "after", 0, "only messages sent after this unix millisecond time")
			flagSet.BoolVar(&raw, "json", false, "print one JSON message per line")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if err := required("topic", topic); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var messages []bridge.Message
			if err := client.Call(ctx, "loadMessages", map[string]any{
				"address": address,
				"topic":   topic,
				"limit":   limit,
				"before":  before,
				"after":   after,
			}, &messages); err != nil {
				return err
			}
			// Newest first on the wire.
			slices.Reverse(messages)
			for _, message := range messages {
				if raw {
					line, err := json.Marshal(message)
					if err != nil {
						return err
					}
					fmt.Fprintln(a.out, string(line))
					continue
				}
				fmt.Fprintln(a.out, renderMessage(message, address))
			}
			return nil
		},
	}
}

func (a *app) reactionsCommand() *Command {
	var (
		conn    connection
		address string
		topic   string
	)
	return &Command{
		Name:    "reactions",
		Summary: "Print the reaction aggregate of a conversation",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reactions", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&topic, "topic", "", "conversation topic (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if err := required("topic", topic); err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			var aggregate reaction.Aggregate
			if err := client.Call(ctx, "loadReactions", map[string]any{"address": address, "topic": topic}, &aggregate); err != nil {
				return err
			}
			messageIDs := make([]string, 0, len(aggregate))
			for id := range aggregate {
				messageIDs = append(messageIDs, id)
			}
			slices.Sort(messageIDs)
			for _, id := range messageIDs {
				fmt.Fprintln(a.out, renderReactions(id, aggregate[id]))
			}
			return nil
		},
	}
}

func (a *app) typingCommand() *Command {
	var (
		conn    connection
		address string
		topic   string
		stop    bool
	)
	return &Command{
		Name:    "typing",
		Summary: "Announce that you started (or with --stop, stopped) typing",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("typing", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			flagSet.StringVar(&topic, "topic", "", "conversation topic (required)")
			flagSet.BoolVar(&stop, "stop", false, "announce that typing stopped")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := required("address", address); err != nil {
				return err
			}
			if err := required("topic", topic); err != nil {
				return err
			}
			marker := typing.Typing
			if stop {
				marker = typing.NotTyping
			}
			contentJSON, err := sendContent(marker, "")
			if err != nil {
				return err
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			return client.Call(ctx, "sendMessage", map[string]any{
				"address":   address,
				"topic":     topic,
				"content":   contentJSON,
				"ephemeral": true,
			}, nil)
		},
	}
}

func (a *app) topicDataCommand() *Command {
	var (
		conn    connection
		address string
		topic   string
		data    string
	)
	flags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			if name == "export" {
				flagSet.StringVar(&topic, "topic", "", "conversation topic (required)")
			} else {
				flagSet.StringVar(&data, "data", "", "base64 topic data from export (required)")
			}
			return flagSet
		}
	}
	return &Command{
		Name:    "topic-data",
		Summary: "Move a conversation between installations",
		Subcommands: []*Command{
			{
				Name:    "export",
				Summary: "Print a conversation's topic data as base64",
				Flags:   flags("export"),
				Run: func(ctx context.Context, args []string) error {
					if err := required("address", address); err != nil {
						return err
					}
					if err := required("topic", topic); err != nil {
						return err
					}
					client, err := conn.client()
					if err != nil {
						return err
					}
					var exported string
					if err := client.Call(ctx, "exportConversationTopicData", map[string]any{"address": address, "topic": topic}, &exported); err != nil {
						return err
					}
					fmt.Fprintln(a.out, exported)
					return nil
				},
			},
			{
				Name:    "import",
				Summary: "Import exported topic data and print the conversation topic",
				Flags:   flags("import"),
				Run: func(ctx context.Context, args []string) error {
					if err := required("address", address); err != nil {
						return err
					}
					if err := required("data", data); err != nil {
						return err
					}
					client, err := conn.client()
					if err != nil {
						return err
					}
					var conversation bridge.ConversationInfo
					if err := client.Call(ctx, "importConversationTopicData", map[string]any{"address": address, "topic_data": data}, &conversation); err != nil {
						return err
					}
					fmt.Fprintln(a.out, conversation.Topic)
					return nil
				},
			},
		},
	}
}

func (a *app) pushCommand() *Command {
	var (
		conn   connection
		server string
		token  string
	)
	return &Command{
		Name:    "push",
		Summary: "Manage push notification registration",
		Subcommands: []*Command{
			{
				Name:    "register",
				Summary: "Register a device token with a push server",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("register", pflag.ContinueOnError)
					conn.AddFlags(flagSet)
					flagSet.StringVar(&server, "server", "", "push server (default: push.server from the daemon config)")
					flagSet.StringVar(&token, "token", "", "device token (required)")
					return flagSet
				},
				Run: func(ctx context.Context, args []string) error {
					if err := required("token", token); err != nil {
						return err
					}
					client, err := conn.client()
					if err != nil {
						return err
					}
					return client.Call(ctx, "registerPushToken", map[string]any{"server": server, "token": token}, nil)
				},
			},
			{
				Name:    "subscribe",
				Summary: "Subscribe the registered installation to topics",
				Usage:   "msgbridge push subscribe [flags] <topic>...",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("subscribe", pflag.ContinueOnError)
					conn.AddFlags(flagSet)
					return flagSet
				},
				Run: func(ctx context.Context, args []string) error {
					client, err := conn.client()
					if err != nil {
						return err
					}
					return client.Call(ctx, "subscribePushTopics", map[string]any{"topics": args}, nil)
				},
			},
		},
	}
}
