// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/msgbridge/bridge"
)

func TestChatEntry(t *testing.T) {
	const self = "0x1111111111111111111111111111111111111111"
	const peer = "0x2222222222222222222222222222222222222222"
	sent := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	entry := chatEntry(bridge.Message{SenderAddress: peer, Sent: sent.UnixMilli(), Content: text("*hi*")}, self)
	if entry.Self || entry.Styled || entry.Text != "*hi*" || entry.Author != shortAddress(peer) {
		t.Errorf("text entry = %+v", entry)
	}
	if !entry.Time.Equal(sent) {
		t.Errorf("entry time = %v, want %v", entry.Time, sent)
	}

	attachment := bridge.Message{SenderAddress: self, Content: bridge.Content{
		Attachment: &bridge.AttachmentContent{Filename: "a.txt", MimeType: "text/plain", Data: "aGk="},
	}}
	entry = chatEntry(attachment, self)
	if !entry.Self || !entry.Styled {
		t.Errorf("attachment entry = %+v", entry)
	}
	if got := ansi.Strip(entry.Text); !strings.Contains(got, "[attachment a.txt, text/plain, 2 bytes]") {
		t.Errorf("attachment text = %q", got)
	}
}

func TestColorProfile(t *testing.T) {
	if profile, err := colorProfile("never", io.Discard); err != nil || profile != termenv.Ascii {
		t.Errorf("never = %v, %v", profile, err)
	}
	if profile, err := colorProfile("always", io.Discard); err != nil || profile != termenv.ANSI256 {
		t.Errorf("always = %v, %v", profile, err)
	}
	if _, err := colorProfile("auto", io.Discard); err != nil {
		t.Errorf("auto: %v", err)
	}
	if _, err := colorProfile("rainbow", io.Discard); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}
