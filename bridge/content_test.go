// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/msgbridge/protocol"
)

func TestParseContent(t *testing.T) {
	contentType, value, err := ParseContent(`{"text":"hi there"}`)
	if err != nil || contentType != protocol.ContentTypeText || value != "hi there" {
		t.Errorf("text = %v, %v, %v", contentType, value, err)
	}

	contentType, value, err = ParseContent(`{"attachment":{"filename":"a.bin","mimeType":"application/octet-stream","data":"AAEC"}}`)
	if err != nil || contentType != protocol.ContentTypeAttachment {
		t.Fatalf("attachment = %v, %v", contentType, err)
	}
	attachment := value.(protocol.Attachment)
	if attachment.Filename != "a.bin" || string(attachment.Data) != "\x00\x01\x02" {
		t.Errorf("attachment = %+v", attachment)
	}

	contentType, value, err = ParseContent(`{"reaction":{"reference":"abc","action":"removed","schema":"shortcode","content":":smile:"}}`)
	if err != nil || contentType != protocol.ContentTypeReaction {
		t.Fatalf("reaction = %v, %v", contentType, err)
	}
	if reaction := value.(protocol.Reaction); reaction.Action != protocol.ReactionRemoved || reaction.Content != ":smile:" {
		t.Errorf("reaction = %+v", reaction)
	}

	// An empty string is still text.
	if _, value, err := ParseContent(`{"text":""}`); err != nil || value != "" {
		t.Errorf("empty text = %v, %v", value, err)
	}
}

func TestParseContentErrors(t *testing.T) {
	tests := map[string]string{
		"not json":         `{"text":`,
		"bad attachment":   `{"attachment":{"filename":"x","mimeType":"y","data":"%%%"}}`,
		"bad action":       `{"reaction":{"reference":"r","action":"liked","schema":"unicode","content":"x"}}`,
		"bad schema":       `{"reaction":{"reference":"r","action":"added","schema":"emoji","content":"x"}}`,
		"no known variant": `{"unknown":{"contentTypeId":"example.com/poll:1.0"}}`,
	}
	for name, input := range tests {
		if _, _, err := ParseContent(input); err == nil {
			t.Errorf("%s: ParseContent succeeded", name)
		}
	}
	if _, _, err := ParseContent(`{}`); !errors.Is(err, ErrUnknownContent) {
		t.Errorf("empty envelope error = %v, want ErrUnknownContent", err)
	}
}

func TestEncodeMessageUnknownContentType(t *testing.T) {
	poll := protocol.ContentTypeID{AuthorityID: "example.com", TypeID: "poll", VersionMajor: 1}
	message := protocol.DecodedMessage{
		ID:            "m1",
		Topic:         "/t",
		SenderAddress: "0xabc",
		Sent:          time.UnixMilli(1700000000000),
		Encoded:       protocol.EncodedContent{Type: poll, Content: []byte("opaque")},
	}
	encoded, err := EncodeMessage(message, protocol.DefaultRegistry())
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if encoded.Content.Unknown == nil || encoded.Content.Unknown.ContentTypeID != "example.com/poll:1.0" {
		t.Errorf("content = %+v", encoded.Content)
	}
	if encoded.Sent != 1700000000000 || encoded.ContentTypeID != "example.com/poll:1.0" {
		t.Errorf("message = %+v", encoded)
	}
}

func TestEncodeMessageBrokenContent(t *testing.T) {
	message := protocol.DecodedMessage{
		ID:      "m2",
		Encoded: protocol.EncodedContent{Type: protocol.ContentTypeReaction, Content: []byte("{not json")},
	}
	if _, err := EncodeMessage(message, protocol.DefaultRegistry()); err == nil {
		t.Error("EncodeMessage of a broken reaction succeeded")
	}
}
