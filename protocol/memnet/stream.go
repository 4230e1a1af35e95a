// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memnet

import (
	"context"
	"sync"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// subscription is a buffered fan-out target. It implements
// protocol.Stream directly for raw envelopes and conversations.
type subscription[T any] struct {
	items chan T
	done  chan struct{}

	once sync.Once
	err  error

	// detach removes the subscription from the network's tables.
	detach func()
}

func newSubscription[T any](buffer int) *subscription[T] {
	return &subscription[T]{
		items: make(chan T, buffer),
		done:  make(chan struct{}),
	}
}

// Next returns the next item. After the subscription ends, Next
// returns the terminating error even if items remain buffered.
func (s *subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-s.done:
		return zero, s.err
	default:
	}
	select {
	case item := <-s.items:
		return item, nil
	case <-s.done:
		return zero, s.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close ends the subscription with ErrStreamClosed.
func (s *subscription[T]) Close() error {
	s.end(protocol.ErrStreamClosed)
	return nil
}

// end terminates the subscription with err. The first call wins.
func (s *subscription[T]) end(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		if s.detach != nil {
			s.detach()
		}
	})
}

// deliver hands item to the subscriber, blocking while its buffer is
// full. Returns false if the subscription ended or ctx was cancelled
// first.
func (s *subscription[T]) deliver(ctx context.Context, item T) bool {
	select {
	case s.items <- item:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// decodingStream adapts an envelope subscription into a stream of
// decoded messages. A decode failure is returned from Next as a stream
// error.
type decodingStream struct {
	source *subscription[protocol.Envelope]
	decode func(protocol.Envelope) (protocol.DecodedMessage, error)
}

func (s *decodingStream) Next(ctx context.Context) (protocol.DecodedMessage, error) {
	envelope, err := s.source.Next(ctx)
	if err != nil {
		return protocol.DecodedMessage{}, err
	}
	return s.decode(envelope)
}

func (s *decodingStream) Close() error { return s.source.Close() }

var (
	_ protocol.Stream[protocol.Envelope]       = (*subscription[protocol.Envelope])(nil)
	_ protocol.Stream[protocol.Conversation]   = (*subscription[protocol.Conversation])(nil)
	_ protocol.Stream[protocol.DecodedMessage] = (*decodingStream)(nil)
)
