// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// clientRegistry maps account addresses to clients. Addresses are
// compared exactly, without case folding.
type clientRegistry struct {
	gauge prometheus.Gauge

	mu      sync.RWMutex
	clients map[string]protocol.Client
}

func newClientRegistry(gauge prometheus.Gauge) *clientRegistry {
	return &clientRegistry{gauge: gauge, clients: make(map[string]protocol.Client)}
}

// register stores client under address, replacing any previous client
// for that address. Returns the replaced client, if any.
func (r *clientRegistry) register(address string, client protocol.Client) protocol.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.clients[address]
	r.clients[address] = client
	r.gauge.Set(float64(len(r.clients)))
	return previous
}

// get returns the client for address or an error wrapping ErrNoClient.
func (r *clientRegistry) get(address string) (protocol.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[address]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoClient, address)
	}
	return client, nil
}

// addresses returns the registered addresses, sorted.
func (r *clientRegistry) addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.clients))
	for address := range r.clients {
		result = append(result, address)
	}
	slices.Sort(result)
	return result
}

// drain removes and returns every client.
func (r *clientRegistry) drain() []protocol.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]protocol.Client, 0, len(r.clients))
	for _, client := range r.clients {
		result = append(result, client)
	}
	clear(r.clients)
	r.gauge.Set(0)
	return result
}
