// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/msgbridge/bridge"
)

var initMatcher = sync.OnceFunc(func() { algo.Init("default") })

// matchConversations keeps the conversations whose topic, peer address
// or conversation id fuzzy-matches query, best match first. Matching
// ignores case. An empty query keeps everything in order.
func matchConversations(conversations []bridge.ConversationInfo, query string) []bridge.ConversationInfo {
	if query == "" {
		return conversations
	}
	initMatcher()
	pattern := []rune(strings.ToLower(query))
	slab := util.MakeSlab(16*1024, 2048)

	type scored struct {
		conversation bridge.ConversationInfo
		score        int
	}
	var matches []scored
	for _, conversation := range conversations {
		best := -1
		for _, field := range []string{conversation.Topic, conversation.PeerAddress, conversation.ConversationID} {
			if field == "" {
				continue
			}
			chars := util.ToChars([]byte(field))
			result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
			if result.Start >= 0 && result.Score > best {
				best = result.Score
			}
		}
		if best >= 0 {
			matches = append(matches, scored{conversation, best})
		}
	}
	slices.SortStableFunc(matches, func(a, b scored) int { return cmp.Compare(b.score, a.score) })

	kept := make([]bridge.ConversationInfo, len(matches))
	for i, match := range matches {
		kept[i] = match.conversation
	}
	return kept
}
