// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pushclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer records the requests it receives.
type fakeServer struct {
	mu         sync.Mutex
	registered map[string]string
	topics     map[string][]string
	failures   atomic.Int32
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fake := &fakeServer{registered: map[string]string{}, topics: map[string][]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+servicePath+"RegisterInstallation", func(w http.ResponseWriter, r *http.Request) {
		if fake.failures.Load() > 0 {
			fake.failures.Add(-1)
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		var request registerRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if request.DeliveryMechanism.Token == "revoked" {
			http.Error(w, "token revoked", http.StatusForbidden)
			return
		}
		fake.mu.Lock()
		fake.registered[request.InstallationID] = request.DeliveryMechanism.Token
		fake.mu.Unlock()
		json.NewEncoder(w).Encode(registerResponse{InstallationID: request.InstallationID})
	})
	mux.HandleFunc("POST "+servicePath+"Subscribe", func(w http.ResponseWriter, r *http.Request) {
		var request subscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fake.mu.Lock()
		fake.topics[request.InstallationID] = append(fake.topics[request.InstallationID], request.Topics...)
		fake.mu.Unlock()
		w.Write([]byte("{}"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return fake, server
}

func newTestClient(t *testing.T, server string) *Client {
	t.Helper()
	client, err := New(Config{
		Server:         server,
		InstallationID: "install-1",
		MaxElapsedTime: 5 * time.Second,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestRegisterAndSubscribe(t *testing.T) {
	fake, server := newFakeServer(t)
	client := newTestClient(t, server.URL)
	ctx := context.Background()

	if err := client.Subscribe(ctx, []string{"/t"}); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Subscribe before Register = %v", err)
	}
	if err := client.Register(ctx, "device-token"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := client.Subscribe(ctx, []string{"/a", "/b"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := client.Subscribe(ctx, nil); err != nil {
		t.Fatalf("empty Subscribe: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.registered["install-1"] != "device-token" {
		t.Errorf("registered = %v", fake.registered)
	}
	if !slices.Equal(fake.topics["install-1"], []string{"/a", "/b"}) {
		t.Errorf("topics = %v", fake.topics)
	}
}

func TestRegisterRetriesServerErrors(t *testing.T) {
	fake, server := newFakeServer(t)
	fake.failures.Store(2)
	client := newTestClient(t, server.URL)

	if err := client.Register(context.Background(), "device-token"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if fake.failures.Load() != 0 {
		t.Errorf("remaining failures = %d", fake.failures.Load())
	}
}

func TestRegisterClientErrorIsPermanent(t *testing.T) {
	_, server := newFakeServer(t)
	client := newTestClient(t, server.URL)

	err := client.Register(context.Background(), "revoked")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusForbidden || statusErr.Body != "token revoked" {
		t.Fatalf("Register error = %v", err)
	}
}

func TestRegisterHonorsContext(t *testing.T) {
	fake, server := newFakeServer(t)
	fake.failures.Store(1 << 20)
	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := client.Register(ctx, "device-token"); err == nil {
		t.Fatal("Register against a failing server succeeded")
	}
}

func TestNewDefaults(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without a server succeeded")
	}
	client, err := New(Config{Server: "push.example.com:443/"})
	if err != nil {
		t.Fatal(err)
	}
	if client.baseURL != "https://push.example.com:443" {
		t.Errorf("baseURL = %q", client.baseURL)
	}
	if client.InstallationID() == "" {
		t.Error("installation id not generated")
	}
}

func TestDialer(t *testing.T) {
	_, server := newFakeServer(t)
	dial := Dialer(Config{InstallationID: "shared", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	push, err := dial(server.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := push.Register(context.Background(), "tok"); err != nil {
		t.Fatalf("Register: %v", err)
	}
}
