// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package typing implements typing indicators carried as ephemeral
// text messages.
//
// A client that starts composing sends the text [Typing] on the
// conversation's ephemeral channel and sends [NotTyping] when the
// composer empties again. Receivers feed every ephemeral text into a
// [Tracker] to maintain the set of peers currently typing.
package typing

import (
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/msgbridge/lib/clock"
)

// Status markers sent as ephemeral text content.
const (
	Typing    = "typing"
	NotTyping = "notTyping"
)

// Transition returns the status to send when the local composer
// changes, and false when nothing should be sent. wasEmpty describes
// the composer before the change and text is its new contents.
func Transition(wasEmpty bool, text string) (string, bool) {
	switch {
	case wasEmpty && text != "":
		return Typing, true
	case !wasEmpty && text == "":
		return NotTyping, true
	default:
		return "", false
	}
}

// Tracker records which senders are typing. It is safe for concurrent
// use.
type Tracker struct {
	clock clock.Clock
	ttl   time.Duration

	mu sync.Mutex

	// senders in the order they started typing.
	senders []string
	seen    map[string]time.Time
}

// NewTracker returns a Tracker. A positive ttl expires a sender that
// has not re-announced Typing within ttl, so a peer that disappears
// without sending NotTyping is eventually dropped. A nil clock means
// the real clock.
func NewTracker(c clock.Clock, ttl time.Duration) *Tracker {
	if c == nil {
		c = clock.Real()
	}
	return &Tracker{clock: c, ttl: ttl, seen: make(map[string]time.Time)}
}

// Observe applies an ephemeral text from sender. Texts other than the
// two markers are ignored. Returns true if the typing set changed.
func (t *Tracker) Observe(sender, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.expireLocked()
	switch text {
	case Typing:
		if _, ok := t.seen[sender]; !ok {
			t.senders = append(t.senders, sender)
			changed = true
		}
		t.seen[sender] = t.clock.Now()
	case NotTyping:
		if _, ok := t.seen[sender]; ok {
			t.removeLocked(sender)
			changed = true
		}
	}
	return changed
}

// Typing returns the senders currently typing, in the order they
// started.
func (t *Tracker) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()
	return slices.Clone(t.senders)
}

// IsTyping reports whether sender is currently typing.
func (t *Tracker) IsTyping(sender string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()
	_, ok := t.seen[sender]
	return ok
}

func (t *Tracker) expireLocked() bool {
	if t.ttl <= 0 {
		return false
	}
	now := t.clock.Now()
	expired := false
	for _, sender := range slices.Clone(t.senders) {
		if now.Sub(t.seen[sender]) >= t.ttl {
			t.removeLocked(sender)
			expired = true
		}
	}
	return expired
}

func (t *Tracker) removeLocked(sender string) {
	delete(t.seen, sender)
	t.senders = slices.DeleteFunc(t.senders, func(s string) bool { return s == sender })
}
