// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/msgbridge/lib/codec"
	"github.com/bureau-foundation/msgbridge/lib/testutil"
)

func TestForwarderCarriesRequests(t *testing.T) {
	server := newTestServer(t)
	server.Handle("echo", action(func(ctx context.Context, r echoRequest) (any, error) {
		return r.Text, nil
	}))
	startServer(t, server)

	forwarder := &Forwarder{ListenAddr: "127.0.0.1:0", SocketPath: server.socketPath, Logger: testLogger()}
	if err := forwarder.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer forwarder.Stop()

	for _, text := range []string{"first", "second"} {
		conn, err := net.DialTimeout("tcp", forwarder.Addr().String(), 5*time.Second)
		if err != nil {
			t.Fatalf("dialing forwarder: %v", err)
		}
		if err := codec.NewEncoder(conn).Encode(map[string]any{"action": "echo", "text": text}); err != nil {
			t.Fatalf("writing request: %v", err)
		}
		// The half-close must reach the socket without cutting off
		// the response.
		conn.(*net.TCPConn).CloseWrite()

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var response Response
		if err := codec.NewDecoder(conn).Decode(&response); err != nil {
			t.Fatalf("reading response: %v", err)
		}
		var echoed string
		codec.Unmarshal(response.Data, &echoed)
		if !response.OK || echoed != text {
			t.Errorf("response = %+v (%q)", response, echoed)
		}
		conn.Close()
	}
}

func TestForwarderStopEndsEventStreams(t *testing.T) {
	server := newTestServer(t)
	hub := newTestHub(4)
	server.HandleStream("events", hub.ServeEvents)
	startServer(t, server)

	forwarder := &Forwarder{ListenAddr: "127.0.0.1:0", SocketPath: server.socketPath, Logger: testLogger()}
	if err := forwarder.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", forwarder.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	codec.NewEncoder(conn).Encode(map[string]any{"action": "events"})
	var ack Response
	if err := codec.NewDecoder(conn).Decode(&ack); err != nil || !ack.OK {
		t.Fatalf("ack = %+v, %v", ack, err)
	}

	stopped := make(chan struct{})
	go func() {
		forwarder.Stop()
		close(stopped)
	}()
	testutil.RequireClosed(t, stopped, 5*time.Second, "forwarder stop with an open stream")
}

func TestForwarderRequiresReachableSocket(t *testing.T) {
	forwarder := &Forwarder{
		ListenAddr: "127.0.0.1:0",
		SocketPath: filepath.Join(testutil.SocketDir(t), "absent.sock"),
		Logger:     testLogger(),
	}
	if err := forwarder.Start(context.Background()); err == nil {
		forwarder.Stop()
		t.Fatal("Start succeeded without a socket")
	}
	if err := (&Forwarder{}).Start(context.Background()); err == nil {
		t.Error("Start succeeded without configuration")
	}
}
