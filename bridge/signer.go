// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// SignatureLength is the size of a delivered signature: a 64-byte
// compact signature followed by a recovery id.
const SignatureLength = 65

type signatureResult struct {
	signature protocol.Signature
	err       error
}

// Signer turns the network's synchronous signing callback into a
// "sign" event and waits for the host's answer. One Signer serves one
// authentication attempt.
type Signer struct {
	address string
	emit    func(Event)
	pending prometheus.Gauge

	mu    sync.Mutex
	slots map[string]chan signatureResult
}

var _ protocol.SigningKey = (*Signer)(nil)

func newSigner(address string, emit func(Event), pending prometheus.Gauge) *Signer {
	return &Signer{
		address: address,
		emit:    emit,
		pending: pending,
		slots:   make(map[string]chan signatureResult),
	}
}

// Address returns the account being authenticated.
func (s *Signer) Address() string { return s.address }

// Sign emits a sign event for message and blocks until Deliver answers
// it or ctx ends. Concurrent calls wait independently.
func (s *Signer) Sign(ctx context.Context, message []byte) (protocol.Signature, error) {
	id := uuid.NewString()
	slot := make(chan signatureResult, 1)

	s.mu.Lock()
	s.slots[id] = slot
	s.mu.Unlock()
	s.pending.Inc()
	defer func() {
		s.mu.Lock()
		delete(s.slots, id)
		s.mu.Unlock()
		s.pending.Dec()
	}()

	// The slot exists before the event goes out, so a host that
	// answers from inside Emit is still matched.
	s.emit(Event{Name: EventSign, Payload: SignRequest{ID: id, Message: string(message)}})

	select {
	case result := <-slot:
		return result.signature, result.err
	case <-ctx.Done():
		return protocol.Signature{}, ctx.Err()
	}
}

// Deliver resolves the request with the given id. It returns false,
// and does nothing, if no request with that id is pending. A signature
// that is not exactly SignatureLength bytes resolves the request with
// ErrInvalidSignature.
func (s *Signer) Deliver(id string, signature []byte) bool {
	s.mu.Lock()
	slot, ok := s.slots[id]
	if ok {
		delete(s.slots, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	if len(signature) != SignatureLength {
		slot <- signatureResult{err: fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignature, len(signature), SignatureLength)}
		return true
	}
	var result protocol.Signature
	copy(result.Bytes[:], signature[:64])
	result.Recovery = signature[64]
	slot <- signatureResult{signature: result}
	return true
}

// Pending returns the number of unanswered requests.
func (s *Signer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
