// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/msgbridge/lib/secret"
)

// passphraseEnv lets scripts supply the keystore passphrase without a
// terminal.
const passphraseEnv = "MSGBRIDGE_PASSPHRASE"

func (a *app) keysCommand() *Command {
	var (
		conn        connection
		address     string
		environment string
	)
	addressFlags := func(name string, withEnvironment bool) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&address, "address", "", "client address (required)")
			if withEnvironment {
				flagSet.StringVar(&environment, "environment", "local", "network environment: local, dev or production")
			}
			return flagSet
		}
	}

	return &Command{
		Name:    "keys",
		Summary: "Keep client key bundles encrypted at rest",
		Subcommands: []*Command{
			{
				Name:    "save",
				Summary: "Export a client's key bundle from the daemon and store it encrypted",
				Flags:   addressFlags("save", false),
				Run: func(ctx context.Context, args []string) error {
					if err := required("address", address); err != nil {
						return err
					}
					return a.saveKey(ctx, &conn, address)
				},
			},
			{
				Name:    "load",
				Summary: "Decrypt a stored key bundle and register the client with the daemon",
				Flags:   addressFlags("load", true),
				Run: func(ctx context.Context, args []string) error {
					if err := required("address", address); err != nil {
						return err
					}
					return a.loadKey(ctx, &conn, address, environment)
				},
			},
			{
				Name:    "list",
				Summary: "List addresses with a stored key bundle",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
					conn.AddFlags(flagSet)
					return flagSet
				},
				Run: func(ctx context.Context, args []string) error {
					store, err := conn.keystore()
					if err != nil {
						return err
					}
					addresses, err := store.List()
					if err != nil {
						return err
					}
					for _, stored := range addresses {
						fmt.Fprintln(a.out, stored)
					}
					return nil
				},
			},
			{
				Name:    "delete",
				Summary: "Remove a stored key bundle",
				Flags:   addressFlags("delete", false),
				Run: func(ctx context.Context, args []string) error {
					if err := required("address", address); err != nil {
						return err
					}
					store, err := conn.keystore()
					if err != nil {
						return err
					}
					return store.Delete(address)
				},
			},
		},
	}
}

func (a *app) saveKey(ctx context.Context, conn *connection, address string) error {
	store, err := conn.keystore()
	if err != nil {
		return err
	}
	client, err := conn.client()
	if err != nil {
		return err
	}
	var encoded string
	if err := client.Call(ctx, "exportKeyBundle", map[string]any{"address": address}, &encoded); err != nil {
		return err
	}
	bundle, err := secret.FromBase64(encoded)
	if err != nil {
		return fmt.Errorf("decoding exported key bundle: %w", err)
	}
	defer bundle.Close()

	if a.workFactor > 0 {
		store.SetWorkFactor(a.workFactor)
	}

	passphrase, err := a.passphrase("New passphrase for "+shortAddress(address)+": ", true)
	if err != nil {
		return err
	}
	defer passphrase.Close()

	if err := store.Save(address, bundle.Bytes(), passphrase); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s\n", address)
	return nil
}

func (a *app) loadKey(ctx context.Context, conn *connection, address, environment string) error {
	store, err := conn.keystore()
	if err != nil {
		return err
	}
	client, err := conn.client()
	if err != nil {
		return err
	}
	passphrase, err := a.passphrase("Passphrase for "+shortAddress(address)+": ", false)
	if err != nil {
		return err
	}
	defer passphrase.Close()

	bundle, err := store.Load(address, passphrase)
	if err != nil {
		return err
	}
	defer bundle.Close()

	var registered string
	if err := client.Call(ctx, "createFromKeyBundle", map[string]any{
		"key_bundle":  bundle.Base64(),
		"environment": environment,
	}, &registered); err != nil {
		return err
	}
	if registered != address {
		return fmt.Errorf("stored bundle for %s registered as %s", address, registered)
	}
	fmt.Fprintln(a.out, registered)
	return nil
}

// promptPassphrase reads a passphrase from $MSGBRIDGE_PASSPHRASE or,
// failing that, from the terminal without echo.
func promptPassphrase(prompt string, confirm bool) (*secret.Buffer, error) {
	if value := os.Getenv(passphraseEnv); value != "" {
		return secret.NewFromBytes([]byte(value))
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal; set %s to supply the passphrase", passphraseEnv)
	}

	first, err := readHidden(fd, prompt)
	if err != nil {
		return nil, err
	}
	if confirm {
		second, err := readHidden(fd, "Repeat passphrase: ")
		if err != nil {
			secret.Zero(first)
			return nil, err
		}
		match := bytes.Equal(first, second)
		secret.Zero(second)
		if !match {
			secret.Zero(first)
			return nil, errors.New("passphrases do not match")
		}
	}
	return secret.NewFromBytes(first)
}

func readHidden(fd int, prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if len(value) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}
	return value, nil
}
