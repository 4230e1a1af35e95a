// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/lib/reaction"
)

var (
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	peerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selfStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	noticeStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
	reactionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// shortAddress abbreviates a hex account address to its ends.
func shortAddress(address string) string {
	if len(address) <= 14 {
		return address
	}
	return address[:8] + "…" + address[len(address)-4:]
}

// renderMessage formats one message as a chat line. self is the
// viewing client's address; its own messages are styled apart.
func renderMessage(message bridge.Message, self string) string {
	sender := peerStyle
	if message.SenderAddress == self {
		sender = selfStyle
	}
	return fmt.Sprintf("%s %s %s",
		timeStyle.Render(time.UnixMilli(message.Sent).Format("15:04:05")),
		sender.Render(shortAddress(message.SenderAddress)+":"),
		describeContent(message.Content),
	)
}

// describeContent renders a content envelope as one line of text.
func describeContent(content bridge.Content) string {
	switch {
	case content.Text != nil:
		return *content.Text
	case content.Attachment != nil:
		size := base64.StdEncoding.DecodedLen(len(content.Attachment.Data))
		if decoded, err := base64.StdEncoding.DecodeString(content.Attachment.Data); err == nil {
			size = len(decoded)
		}
		return dimStyle.Render(fmt.Sprintf("[attachment %s, %s, %d bytes]",
			content.Attachment.Filename, content.Attachment.MimeType, size))
	case content.Reaction != nil:
		verb := "reacted"
		if content.Reaction.Action == string(reaction.Removed) {
			verb = "removed reaction"
		}
		return reactionStyle.Render(fmt.Sprintf("%s %s to %s", verb, content.Reaction.Content, content.Reaction.Reference))
	case content.Unknown != nil:
		return dimStyle.Render(fmt.Sprintf("[unsupported content %s]", content.Unknown.ContentTypeID))
	default:
		return dimStyle.Render("[empty]")
	}
}

// renderReactions formats the aggregate for one message, e.g.
// "abc123  👍 2*  🎉 1" where * marks reactions by the viewer.
func renderReactions(messageID string, summaries []reaction.Summary) string {
	parts := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		part := fmt.Sprintf("%s %d", summary.Reaction, summary.Count)
		if summary.IncludesCurrentUser {
			part += "*"
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("%s  %s", dimStyle.Render(messageID), reactionStyle.Render(strings.Join(parts, "  ")))
}

// renderTyping formats the set of peers currently typing. An empty set
// renders as a cleared indicator.
func renderTyping(senders []string) string {
	switch len(senders) {
	case 0:
		return noticeStyle.Render("(nobody is typing)")
	case 1:
		return noticeStyle.Render(shortAddress(senders[0]) + " is typing…")
	default:
		short := make([]string, len(senders))
		for i, sender := range senders {
			short[i] = shortAddress(sender)
		}
		return noticeStyle.Render(strings.Join(short, ", ") + " are typing…")
	}
}

func renderConversation(conversation bridge.ConversationInfo) string {
	return noticeStyle.Render(fmt.Sprintf("new conversation with %s on %s",
		shortAddress(conversation.PeerAddress), conversation.Topic))
}

func renderNotice(format string, args ...any) string {
	return noticeStyle.Render(fmt.Sprintf(format, args...))
}
