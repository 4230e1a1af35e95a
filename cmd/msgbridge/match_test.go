// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/bureau-foundation/msgbridge/bridge"
)

func TestMatchConversations(t *testing.T) {
	conversations := []bridge.ConversationInfo{
		{Topic: "/xmtp/0/dm-aaaa/proto", PeerAddress: "0xabc0000000000000000000000000000000000001"},
		{Topic: "/xmtp/0/m-bbbb/proto", PeerAddress: "0xdef0000000000000000000000000000000000002", ConversationID: "orders/42"},
		{Topic: "/xmtp/0/m-cccc/proto", PeerAddress: "0x1230000000000000000000000000000000000003", ConversationID: "support"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"/xmtp/0/dm-aaaa/proto", "/xmtp/0/m-bbbb/proto", "/xmtp/0/m-cccc/proto"}},
		{"orders", []string{"/xmtp/0/m-bbbb/proto"}},
		{"SUPPORT", []string{"/xmtp/0/m-cccc/proto"}},
		{"0xdef", []string{"/xmtp/0/m-bbbb/proto"}},
		{"zzz", nil},
	}
	for _, test := range tests {
		got := matchConversations(conversations, test.query)
		if len(got) != len(test.want) {
			t.Errorf("query %q: got %d conversations, want %d", test.query, len(got), len(test.want))
			continue
		}
		for i := range got {
			if got[i].Topic != test.want[i] {
				t.Errorf("query %q: result %d is %s, want %s", test.query, i, got[i].Topic, test.want[i])
			}
		}
	}
}
