// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/host"
	"github.com/bureau-foundation/msgbridge/lib/keystore"
	"github.com/bureau-foundation/msgbridge/lib/secret"
	"github.com/bureau-foundation/msgbridge/lib/testutil"
	"github.com/bureau-foundation/msgbridge/protocol/memnet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// daemon is an in-process msgbridged: memnet, bridge, hub and the host
// socket.
type daemon struct {
	socket string
	bridge *bridge.Bridge
	hub    *host.Hub
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()
	network := memnet.New(memnet.Config{Logger: testLogger()})
	t.Cleanup(func() { network.Close() })

	registry := prometheus.NewRegistry()
	hub := host.NewHub(host.HubConfig{Metrics: registry, Logger: testLogger()})
	b, err := bridge.New(bridge.Config{Network: network, Emitter: hub, Metrics: registry, Logger: testLogger()})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	service, err := host.NewService(host.ServiceConfig{Bridge: b, Hub: hub, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	socket := filepath.Join(testutil.SocketDir(t), "bridge.sock")
	server := host.NewServer(socket, testLogger())
	service.Register(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "socket server shutdown")
	})

	testutil.RequireEventually(t, 5*time.Second, func() bool {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, "daemon socket %s never came up", socket)
	return &daemon{socket: socket, bridge: b, hub: hub}
}

// run executes the command line against the daemon and returns stdout.
func (d *daemon) run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a.out = &out
	err := a.root().Execute(context.Background(), append(args, "--socket", d.socket), io.Discard)
	return out.String(), err
}

func (d *daemon) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := d.run(t, newApp(io.Discard, io.Discard), args...)
	if err != nil {
		t.Fatalf("msgbridge %s: %v", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(out)
}

func TestConversationCommands(t *testing.T) {
	d := startDaemon(t)

	alice := d.mustRun(t, "create")
	bob := d.mustRun(t, "create", "--environment", "dev")
	if !strings.HasPrefix(alice, "0x") || alice == bob {
		t.Fatalf("create returned %q and %q", alice, bob)
	}
	if got := d.mustRun(t, "address", "--address", alice); got != alice {
		t.Errorf("address = %q, want %q", got, alice)
	}
	if got := d.mustRun(t, "can-message", "--address", alice, "--peer", bob); got != "true" {
		t.Errorf("can-message = %q", got)
	}

	topic := d.mustRun(t, "converse", "--address", alice, "--peer", bob, "--id", "cli/1")
	if topic == "" {
		t.Fatal("converse printed no topic")
	}
	if listing := d.mustRun(t, "list", "--address", bob); !strings.Contains(listing, topic) {
		t.Errorf("bob's list does not show %s:\n%s", topic, listing)
	}

	d.mustRun(t, "send", "--address", alice, "--topic", topic, "--text", "first")
	id := d.mustRun(t, "send", "--address", alice, "--topic", topic, "--text", "second")
	d.mustRun(t, "send", "--address", bob, "--topic", topic,
		"--content", `{"reaction":{"reference":"`+id+`","action":"added","schema":"unicode","content":"👍"}}`)

	history := d.mustRun(t, "history", "--address", bob, "--topic", topic)
	first, second := strings.Index(history, "first"), strings.Index(history, "second")
	if first < 0 || second < 0 || first > second {
		t.Errorf("history not oldest first:\n%s", history)
	}

	raw := d.mustRun(t, "history", "--address", bob, "--topic", topic, "--limit", "1", "--json")
	var newest bridge.Message
	if err := json.Unmarshal([]byte(raw), &newest); err != nil {
		t.Fatalf("history --json: %v\n%s", err, raw)
	}
	if newest.Content.Reaction == nil || newest.Content.Reaction.Reference != id {
		t.Errorf("newest message = %+v, want the reaction", newest)
	}

	reactions := d.mustRun(t, "reactions", "--address", alice, "--topic", topic)
	if !strings.Contains(reactions, id) || !strings.Contains(reactions, "👍 1") {
		t.Errorf("reactions = %q", reactions)
	}

	exported := d.mustRun(t, "topic-data", "export", "--address", alice, "--topic", topic)
	if imported := d.mustRun(t, "topic-data", "import", "--address", alice, "--data", exported); imported != topic {
		t.Errorf("import returned topic %q, want %q", imported, topic)
	}

	status := d.mustRun(t, "status")
	if !strings.Contains(status, alice) || !strings.Contains(status, bob) {
		t.Errorf("status does not list both clients:\n%s", status)
	}
}

func TestCommandErrors(t *testing.T) {
	d := startDaemon(t)
	alice := d.mustRun(t, "create")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing address", []string{"list"}, "--address is required"},
		{"text and content", []string{"send", "--address", alice, "--topic", "t", "--text", "a", "--content", "{}"}, "mutually exclusive"},
		{"no content", []string{"send", "--address", alice, "--topic", "t"}, "one of --text or --content"},
		{"unknown client", []string{"list", "--address", "0xnobody"}, "no client"},
		{"unknown flag", []string{"list", "--adress", alice}, "unknown flag"},
		{"typing without topic", []string{"watch", "--address", alice, "--typing"}, "--typing requires --topic"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := d.run(t, newApp(io.Discard, io.Discard), test.args...)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %v, want it to contain %q", err, test.want)
			}
		})
	}
}

func TestUnknownClientIsServiceError(t *testing.T) {
	d := startDaemon(t)
	_, err := d.run(t, newApp(io.Discard, io.Discard), "address", "--address", "0xnobody")
	var serviceErr *host.ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Action != "address" {
		t.Fatalf("error = %#v, want *host.ServiceError for address", err)
	}
}

func TestUnknownCommandSuggestion(t *testing.T) {
	err := newApp(io.Discard, io.Discard).root().Execute(context.Background(), []string{"sned"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), `did you mean "send"`) {
		t.Fatalf("error = %v", err)
	}
}

func TestHelp(t *testing.T) {
	var help bytes.Buffer
	if err := newApp(io.Discard, io.Discard).root().Execute(context.Background(), []string{"keys", "--help"}, &help); err != nil {
		t.Fatalf("keys --help: %v", err)
	}
	for _, want := range []string{"save", "load", "list", "delete"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("keys help missing %q:\n%s", want, help.String())
		}
	}
}

func TestKeysSaveAndLoad(t *testing.T) {
	d := startDaemon(t)
	alice := d.mustRun(t, "create")
	keys := t.TempDir()

	var prompts []string
	a := newApp(io.Discard, io.Discard)
	a.workFactor = 10
	a.passphrase = func(prompt string, confirm bool) (*secret.Buffer, error) {
		prompts = append(prompts, prompt)
		return secret.NewFromBytes([]byte("correct horse"))
	}

	if _, err := d.run(t, a, "keys", "save", "--address", alice, "--keystore", keys); err != nil {
		t.Fatalf("keys save: %v", err)
	}
	listing, err := d.run(t, a, "keys", "list", "--keystore", keys)
	if err != nil || strings.TrimSpace(listing) != alice {
		t.Fatalf("keys list = %q, %v", listing, err)
	}
	loaded, err := d.run(t, a, "keys", "load", "--address", alice, "--keystore", keys)
	if err != nil {
		t.Fatalf("keys load: %v", err)
	}
	if strings.TrimSpace(loaded) != alice {
		t.Errorf("keys load registered %q, want %q", loaded, alice)
	}
	if len(prompts) != 2 {
		t.Errorf("prompted %d times, want 2", len(prompts))
	}

	a.passphrase = func(string, bool) (*secret.Buffer, error) {
		return secret.NewFromBytes([]byte("wrong"))
	}
	if _, err := d.run(t, a, "keys", "load", "--address", alice, "--keystore", keys); !errors.Is(err, keystore.ErrWrongPassphrase) {
		t.Errorf("load with wrong passphrase: %v, want ErrWrongPassphrase", err)
	}

	if _, err := d.run(t, a, "keys", "delete", "--address", alice, "--keystore", keys); err != nil {
		t.Fatalf("keys delete: %v", err)
	}
	if _, err := d.run(t, a, "keys", "load", "--address", alice, "--keystore", keys); !errors.Is(err, keystore.ErrNotFound) {
		t.Errorf("load after delete: %v, want ErrNotFound", err)
	}
}
