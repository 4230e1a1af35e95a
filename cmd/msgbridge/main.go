// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// msgbridge is the operator client for msgbridged. It issues commands
// over the daemon's host socket, follows the event stream with
// "watch", and keeps account key bundles encrypted at rest.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/msgbridge/lib/process"
	"github.com/bureau-foundation/msgbridge/lib/secret"
	"github.com/bureau-foundation/msgbridge/lib/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("msgbridge")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newApp(os.Stdout, os.Stderr).root().Execute(ctx, os.Args[1:], os.Stderr)
	cancel()
	if err != nil {
		process.Fatal(err)
	}
}

// app carries the I/O every command writes through, so tests can run
// the command tree against buffers.
type app struct {
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	// passphrase obtains the keystore passphrase. confirm asks twice.
	passphrase func(prompt string, confirm bool) (*secret.Buffer, error)

	// workFactor overrides the keystore's scrypt work factor when
	// positive.
	workFactor int
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:        out,
		errOut:     errOut,
		logger:     slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn})),
		passphrase: promptPassphrase,
	}
}

func (a *app) root() *Command {
	return &Command{
		Name:    "msgbridge",
		Summary: "Operator client for the msgbridged session bridge.",
		Subcommands: []*Command{
			a.statusCommand(),
			a.createCommand(),
			a.addressCommand(),
			a.listCommand(),
			a.converseCommand(),
			a.canMessageCommand(),
			a.sendCommand(),
			a.historyCommand(),
			a.reactionsCommand(),
			a.typingCommand(),
			a.topicDataCommand(),
			a.pushCommand(),
			a.watchCommand(),
			a.chatCommand(),
			a.keysCommand(),
		},
	}
}
