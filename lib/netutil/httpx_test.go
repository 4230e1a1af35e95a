// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestDecodeResponse(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		var result struct {
			Installation string `json:"installation"`
			Topics       int    `json:"topics"`
		}
		body := bytes.NewReader([]byte(`{"installation":"inst-1","topics":3}`))
		if err := DecodeResponse(body, &result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Installation != "inst-1" || result.Topics != 3 {
			t.Fatalf("got %+v", result)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if err := DecodeResponse(bytes.NewReader([]byte(`not json`)), &struct{}{}); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if err := DecodeResponse(&failReader{}, &struct{}{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestErrorBody(t *testing.T) {
	t.Run("trims whitespace", func(t *testing.T) {
		if got := ErrorBody(strings.NewReader("  token rejected\n")); got != "token rejected" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("truncates long bodies", func(t *testing.T) {
		got := ErrorBody(strings.NewReader(strings.Repeat("x", 2000)))
		if len(got) != maxErrorBody+3 || !strings.HasSuffix(got, "...") {
			t.Fatalf("got %d bytes", len(got))
		}
	})

	t.Run("read error returns empty", func(t *testing.T) {
		if got := ErrorBody(&failReader{}); got != "" {
			t.Fatalf("expected empty from failing reader, got %q", got)
		}
	})
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{io.ErrClosedPipe, true},
		{fmt.Errorf("read: %w", net.ErrClosed), true},
		{&net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{&net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{&net.OpError{Op: "accept", Err: syscall.ECONNABORTED}, true},
		{syscall.ECONNREFUSED, false},
		{errors.New("boom"), false},
	}
	for _, test := range tests {
		if got := IsExpectedCloseError(test.err); got != test.want {
			t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}

func TestSplice(t *testing.T) {
	clientA, serverA := net.Pipe()
	clientB, serverB := net.Pipe()

	done := make(chan error, 1)
	go func() {
		_, _, err := Splice(serverA, serverB)
		done <- err
	}()

	go clientA.Write([]byte("ping"))
	buffer := make([]byte, 4)
	if _, err := io.ReadFull(clientB, buffer); err != nil || string(buffer) != "ping" {
		t.Fatalf("forward read = %q, %v", buffer, err)
	}

	go clientB.Write([]byte("pong"))
	if _, err := io.ReadFull(clientA, buffer); err != nil || string(buffer) != "pong" {
		t.Fatalf("reverse read = %q, %v", buffer, err)
	}

	clientA.Close()
	if err := <-done; err != nil {
		t.Fatalf("Splice: %v", err)
	}
	clientB.Close()
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
