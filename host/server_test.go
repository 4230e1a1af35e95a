// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/msgbridge/lib/codec"
	"github.com/bureau-foundation/msgbridge/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs server until the test ends and returns its socket
// path once it is accepting.
func startServer(t *testing.T, server *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- server.serve(ctx, ready) }()
	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "server shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(filepath.Join(testutil.SocketDir(t), "host.sock"), testLogger())
}

type echoRequest struct {
	Text string `cbor:"text"`
}

func TestServerActions(t *testing.T) {
	server := newTestServer(t)
	server.Handle("echo", action(func(ctx context.Context, r echoRequest) (any, error) {
		return r.Text, nil
	}))
	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("deliberate failure")
	})
	server.Handle("nothing", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	startServer(t, server)
	client := NewClient(server.socketPath)
	ctx := context.Background()

	var echoed string
	if err := client.Call(ctx, "echo", map[string]any{"text": "hello"}, &echoed); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if echoed != "hello" {
		t.Errorf("echo = %q", echoed)
	}

	if err := client.Call(ctx, "nothing", nil, nil); err != nil {
		t.Errorf("nothing: %v", err)
	}

	var serviceErr *ServiceError
	err := client.Call(ctx, "fail", nil, nil)
	if !errors.As(err, &serviceErr) || serviceErr.Action != "fail" || serviceErr.Message != "deliberate failure" {
		t.Errorf("fail error = %v", err)
	}

	err = client.Call(ctx, "missing", nil, nil)
	if !errors.As(err, &serviceErr) || serviceErr.Message != `unknown action "missing"` {
		t.Errorf("unknown action error = %v", err)
	}
}

func TestServerRejectsRequestWithoutAction(t *testing.T) {
	server := newTestServer(t)
	startServer(t, server)

	conn, err := net.Dial("unix", server.socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	codec.NewEncoder(conn).Encode(map[string]any{"text": "no action"})

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response.OK || response.Error != "missing required field: action" {
		t.Errorf("response = %+v", response)
	}
}

func TestServerDuplicateHandlerPanics(t *testing.T) {
	server := newTestServer(t)
	server.Handle("x", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	server.HandleStream("x", func(context.Context, []byte, net.Conn, func() error) error { return nil })
}

func TestServerStreamEndsWhenClientHangsUp(t *testing.T) {
	server := newTestServer(t)
	finished := make(chan struct{})
	server.HandleStream("ticks", func(ctx context.Context, raw []byte, conn net.Conn, ack func() error) error {
		defer close(finished)
		if err := ack(); err != nil {
			return err
		}
		encoder := codec.NewEncoder(conn)
		for i := 0; ; i++ {
			if err := encoder.Encode(i); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
		}
	})
	startServer(t, server)

	conn, err := net.Dial("unix", server.socketPath)
	if err != nil {
		t.Fatal(err)
	}
	codec.NewEncoder(conn).Encode(map[string]any{"action": "ticks"})
	decoder := codec.NewDecoder(conn)

	var ack Response
	if err := decoder.Decode(&ack); err != nil || !ack.OK {
		t.Fatalf("ack = %+v, %v", ack, err)
	}
	for want := 0; want < 3; want++ {
		var tick int
		if err := decoder.Decode(&tick); err != nil || tick != want {
			t.Fatalf("tick = %d, %v; want %d", tick, err, want)
		}
	}

	conn.Close()
	testutil.RequireClosed(t, finished, 5*time.Second, "stream handler after hang-up")
}

func TestServerStreamRejectedBeforeAck(t *testing.T) {
	server := newTestServer(t)
	server.HandleStream("events", func(ctx context.Context, raw []byte, conn net.Conn, ack func() error) error {
		return errors.New("not accepting listeners")
	})
	startServer(t, server)

	_, err := NewClient(server.socketPath).Events(context.Background())
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Message != "not accepting listeners" {
		t.Fatalf("Events = %v, want ServiceError", err)
	}
}

func TestClientCallHonorsContext(t *testing.T) {
	server := newTestServer(t)
	server.Handle("slow", func(ctx context.Context, raw []byte) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	startServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := NewClient(server.socketPath).Call(ctx, "slow", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
