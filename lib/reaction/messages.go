// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reaction

// Message is a reaction-carrying message as loaded from history.
type Message struct {
	SenderAddress string
	Reference     string
	Action        Action
	Content       string
}

// FromMessages converts reaction messages listed newest first, as
// history queries return them, into events in chronological order.
func FromMessages(newestFirst []Message) []Event {
	events := make([]Event, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		message := newestFirst[i]
		events = append(events, Event{
			MessageID:     message.Reference,
			SenderAddress: message.SenderAddress,
			Content:       message.Content,
			Action:        message.Action,
			Order:         int64(len(events)),
		})
	}
	return events
}
