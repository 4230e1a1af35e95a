// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reaction folds a conversation's reaction add/remove events
// into per-message counts.
//
// Reactions are ordinary messages whose content references another
// message. The aggregate is never stored or patched: callers rebuild it
// from the full event list with [Reconcile] whenever the list changes.
// Each sender occupies at most one slot per (message, reaction) pair,
// so reprocessing the same events always yields the same result.
package reaction

import (
	"slices"
	"sort"
)

// Action is the verb of a reaction event.
type Action string

const (
	Added   Action = "added"
	Removed Action = "removed"
)

// Event is one reaction action. Order must increase with the
// chronological position of the event (oldest first).
type Event struct {
	MessageID     string
	SenderAddress string
	Content       string
	Action        Action
	Order         int64
}

// Summary is the aggregate for one reaction string on one message.
type Summary struct {
	Reaction            string `json:"reaction"`
	Count               int    `json:"count"`
	IncludesCurrentUser bool   `json:"includesCurrentUser"`
}

// Aggregate maps message id to its reaction summaries, highest count
// first.
type Aggregate map[string][]Summary

// Reconcile computes the aggregate for events as seen by currentUser.
//
// Events are processed in Order (stable for equal orders). An Added
// event moves its sender to the end of the reaction's sender set; a
// Removed event takes the sender out. Reactions whose set ends up
// empty are omitted, as are messages with no remaining reactions.
// Summaries with equal counts keep the order in which their reaction
// string first appeared on the message.
func Reconcile(events []Event, currentUser string) Aggregate {
	ordered := slices.Clone(events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	type tally struct {
		// reactions lists reaction strings in first-encounter order.
		reactions []string
		senders   map[string][]string
	}
	messages := make(map[string]*tally)

	for _, event := range ordered {
		current, ok := messages[event.MessageID]
		if !ok {
			current = &tally{senders: make(map[string][]string)}
			messages[event.MessageID] = current
		}
		senders, seen := current.senders[event.Content]
		if !seen {
			current.reactions = append(current.reactions, event.Content)
		}
		senders = slices.DeleteFunc(senders, func(sender string) bool { return sender == event.SenderAddress })
		if event.Action == Added {
			senders = append(senders, event.SenderAddress)
		}
		current.senders[event.Content] = senders
	}

	aggregate := make(Aggregate, len(messages))
	for messageID, current := range messages {
		var summaries []Summary
		for _, reaction := range current.reactions {
			senders := current.senders[reaction]
			if len(senders) == 0 {
				continue
			}
			summaries = append(summaries, Summary{
				Reaction:            reaction,
				Count:               len(senders),
				IncludesCurrentUser: slices.Contains(senders, currentUser),
			})
		}
		if len(summaries) == 0 {
			continue
		}
		sort.SliceStable(summaries, func(i, j int) bool { return summaries[i].Count > summaries[j].Count })
		aggregate[messageID] = summaries
	}
	return aggregate
}
