// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reaction

import (
	"reflect"
	"testing"
)

const (
	alice = "0xalice"
	bob   = "0xbob"
	carol = "0xcarol"
)

func TestReconcileAddThenRemove(t *testing.T) {
	events := []Event{
		{MessageID: "m1", SenderAddress: alice, Content: "👍", Action: Added, Order: 0},
		{MessageID: "m1", SenderAddress: bob, Content: "👍", Action: Added, Order: 1},
		{MessageID: "m1", SenderAddress: alice, Content: "👍", Action: Removed, Order: 2},
	}

	for _, currentUser := range []string{alice, bob} {
		t.Run(currentUser, func(t *testing.T) {
			got := Reconcile(events, currentUser)
			want := Aggregate{"m1": {{Reaction: "👍", Count: 1, IncludesCurrentUser: currentUser == bob}}}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Reconcile = %+v, want %+v", got, want)
			}
		})
	}
}

func TestReconcileRepeatedAddCountsOnce(t *testing.T) {
	events := []Event{
		{MessageID: "m1", SenderAddress: alice, Content: "❤️", Action: Added, Order: 0},
		{MessageID: "m1", SenderAddress: alice, Content: "❤️", Action: Added, Order: 1},
		{MessageID: "m1", SenderAddress: alice, Content: "❤️", Action: Added, Order: 2},
	}
	got := Reconcile(events, alice)
	if len(got["m1"]) != 1 || got["m1"][0].Count != 1 || !got["m1"][0].IncludesCurrentUser {
		t.Errorf("Reconcile = %+v, want one ❤️ from alice", got)
	}
}

func TestReconcileRemoveWithoutAdd(t *testing.T) {
	events := []Event{{MessageID: "m1", SenderAddress: alice, Content: "👍", Action: Removed, Order: 0}}
	if got := Reconcile(events, alice); len(got) != 0 {
		t.Errorf("Reconcile = %+v, want empty", got)
	}
}

func TestReconcileSortsByOrderNotInputPosition(t *testing.T) {
	// The remove carries the earlier order, so the add wins.
	events := []Event{
		{MessageID: "m1", SenderAddress: alice, Content: "👍", Action: Added, Order: 5},
		{MessageID: "m1", SenderAddress: alice, Content: "👍", Action: Removed, Order: 1},
	}
	got := Reconcile(events, alice)
	if len(got["m1"]) != 1 || got["m1"][0].Count != 1 {
		t.Errorf("Reconcile = %+v, want alice's add to survive", got)
	}
}

func TestReconcileCountOrderingAndTies(t *testing.T) {
	events := []Event{
		{MessageID: "m1", SenderAddress: alice, Content: "a", Action: Added, Order: 0},
		{MessageID: "m1", SenderAddress: alice, Content: "b", Action: Added, Order: 1},
		{MessageID: "m1", SenderAddress: bob, Content: "c", Action: Added, Order: 2},
		{MessageID: "m1", SenderAddress: carol, Content: "c", Action: Added, Order: 3},
		{MessageID: "m1", SenderAddress: bob, Content: "b", Action: Added, Order: 4},
		{MessageID: "m1", SenderAddress: carol, Content: "d", Action: Added, Order: 5},
	}
	got := Reconcile(events, carol)["m1"]

	// b and c both have two senders; b appeared first. a and d both
	// have one; a appeared first.
	want := []Summary{
		{Reaction: "b", Count: 2},
		{Reaction: "c", Count: 2, IncludesCurrentUser: true},
		{Reaction: "a", Count: 1},
		{Reaction: "d", Count: 1, IncludesCurrentUser: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("summaries = %+v, want %+v", got, want)
	}
}

func TestReconcileFullyRemovedReactionKeepsFirstEncounterSlot(t *testing.T) {
	events := []Event{
		{MessageID: "m1", SenderAddress: alice, Content: "x", Action: Added, Order: 0},
		{MessageID: "m1", SenderAddress: alice, Content: "x", Action: Removed, Order: 1},
		{MessageID: "m1", SenderAddress: bob, Content: "y", Action: Added, Order: 2},
		{MessageID: "m1", SenderAddress: bob, Content: "x", Action: Added, Order: 3},
	}
	got := Reconcile(events, "")["m1"]
	want := []Summary{{Reaction: "x", Count: 1}, {Reaction: "y", Count: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("summaries = %+v, want %+v", got, want)
	}
}

func TestReconcileIdempotentAndLocal(t *testing.T) {
	events := []Event{
		{MessageID: "m1", SenderAddress: alice, Content: "👍", Action: Added, Order: 0},
		{MessageID: "m2", SenderAddress: bob, Content: "🎉", Action: Added, Order: 1},
		{MessageID: "m1", SenderAddress: bob, Content: "👍", Action: Added, Order: 2},
	}
	first := Reconcile(events, alice)
	second := Reconcile(events, alice)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Reconcile not deterministic: %+v vs %+v", first, second)
	}

	extended := append(events[:len(events):len(events)], Event{MessageID: "m2", SenderAddress: alice, Content: "🎉", Action: Added, Order: 3})
	third := Reconcile(extended, alice)
	if !reflect.DeepEqual(third["m1"], first["m1"]) {
		t.Errorf("unrelated message m1 changed: %+v -> %+v", first["m1"], third["m1"])
	}
	if third["m2"][0].Count != 2 || !third["m2"][0].IncludesCurrentUser {
		t.Errorf("m2 = %+v, want 2 including alice", third["m2"])
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	events := []Event{
		{MessageID: "m1", SenderAddress: alice, Content: "👍", Action: Added, Order: 9},
		{MessageID: "m1", SenderAddress: bob, Content: "👍", Action: Added, Order: 1},
	}
	Reconcile(events, alice)
	if events[0].Order != 9 || events[1].Order != 1 {
		t.Error("Reconcile reordered the caller's slice")
	}
}

func TestFromMessagesReversesHistory(t *testing.T) {
	newestFirst := []Message{
		{SenderAddress: alice, Reference: "m1", Action: Removed, Content: "👍"},
		{SenderAddress: alice, Reference: "m1", Action: Added, Content: "👍"},
	}
	events := FromMessages(newestFirst)
	if len(events) != 2 || events[0].Action != Added || events[1].Action != Removed {
		t.Fatalf("events = %+v, want add then remove", events)
	}
	if events[0].Order >= events[1].Order {
		t.Errorf("orders not increasing: %d, %d", events[0].Order, events[1].Order)
	}
	if got := Reconcile(events, alice); len(got) != 0 {
		t.Errorf("Reconcile = %+v, want alice's reaction removed", got)
	}
}
