// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// Content is the tagged JSON envelope for message bodies. Exactly one
// field is set. Unknown is produced for content without a codec and is
// never accepted as input.
type Content struct {
	Text       *string            `json:"text,omitempty"`
	Attachment *AttachmentContent `json:"attachment,omitempty"`
	Reaction   *ReactionContent   `json:"reaction,omitempty"`
	Unknown    *UnknownContent    `json:"unknown,omitempty"`
}

// AttachmentContent is an inline file. Data is standard base64.
type AttachmentContent struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ReactionContent references the message being reacted to by id.
type ReactionContent struct {
	Reference string `json:"reference"`
	Action    string `json:"action"`
	Schema    string `json:"schema"`
	Content   string `json:"content"`
}

// UnknownContent names a content type the bridge has no codec for.
type UnknownContent struct {
	ContentTypeID string `json:"contentTypeId"`
}

// Message is a decoded message as it crosses the boundary. Sent is
// milliseconds since the Unix epoch.
type Message struct {
	ID            string  `json:"id"`
	Topic         string  `json:"topic"`
	ContentTypeID string  `json:"contentTypeId"`
	Content       Content `json:"content"`
	SenderAddress string  `json:"senderAddress"`
	Sent          int64   `json:"sent"`
}

// ConversationInfo describes a conversation to the host. It is also the
// payload of "conversation" events.
type ConversationInfo struct {
	ClientAddress  string `json:"clientAddress"`
	Topic          string `json:"topic"`
	PeerAddress    string `json:"peerAddress"`
	Version        string `json:"version"`
	ConversationID string `json:"conversationId"`
	CreatedAt      int64  `json:"createdAt"`
}

func describeConversation(owner string, conversation protocol.Conversation) ConversationInfo {
	return ConversationInfo{
		ClientAddress:  owner,
		Topic:          conversation.Topic(),
		PeerAddress:    conversation.PeerAddress(),
		Version:        string(conversation.Version()),
		ConversationID: conversation.ConversationID(),
		CreatedAt:      conversation.CreatedAt().UnixMilli(),
	}
}

// ParseContent converts a content envelope into the content type and
// Go value the protocol codecs expect.
func ParseContent(contentJSON string) (protocol.ContentTypeID, any, error) {
	var content Content
	if err := json.Unmarshal([]byte(contentJSON), &content); err != nil {
		return protocol.ContentTypeID{}, nil, fmt.Errorf("bridge: parsing content: %w", err)
	}

	switch {
	case content.Text != nil:
		return protocol.ContentTypeText, *content.Text, nil

	case content.Attachment != nil:
		data, err := base64.StdEncoding.DecodeString(content.Attachment.Data)
		if err != nil {
			return protocol.ContentTypeID{}, nil, fmt.Errorf("bridge: attachment data: %w", err)
		}
		return protocol.ContentTypeAttachment, protocol.Attachment{
			Filename: content.Attachment.Filename,
			MimeType: content.Attachment.MimeType,
			Data:     data,
		}, nil

	case content.Reaction != nil:
		reaction := protocol.Reaction{
			Reference: content.Reaction.Reference,
			Action:    protocol.ReactionAction(content.Reaction.Action),
			Schema:    protocol.ReactionSchema(content.Reaction.Schema),
			Content:   content.Reaction.Content,
		}
		switch reaction.Action {
		case protocol.ReactionAdded, protocol.ReactionRemoved:
		default:
			return protocol.ContentTypeID{}, nil, fmt.Errorf("bridge: unknown reaction action %q", reaction.Action)
		}
		switch reaction.Schema {
		case protocol.ReactionSchemaUnicode, protocol.ReactionSchemaShortcode, protocol.ReactionSchemaCustom:
		default:
			return protocol.ContentTypeID{}, nil, fmt.Errorf("bridge: unknown reaction schema %q", reaction.Schema)
		}
		return protocol.ContentTypeReaction, reaction, nil

	default:
		return protocol.ContentTypeID{}, nil, ErrUnknownContent
	}
}

// EncodeMessage converts a decoded protocol message into its boundary
// form. Content without a registered codec is rendered as Unknown;
// content that has a codec but fails to decode is an error.
func EncodeMessage(message protocol.DecodedMessage, codecs *protocol.Registry) (Message, error) {
	result := Message{
		ID:            message.ID,
		Topic:         message.Topic,
		ContentTypeID: message.Encoded.Type.String(),
		SenderAddress: message.SenderAddress,
		Sent:          message.Sent.UnixMilli(),
	}

	decoded, err := message.Content(codecs)
	if errors.Is(err, protocol.ErrUnknownContentType) {
		result.Content.Unknown = &UnknownContent{ContentTypeID: result.ContentTypeID}
		return result, nil
	}
	if err != nil {
		return Message{}, fmt.Errorf("bridge: decoding message %s: %w", message.ID, err)
	}

	switch value := decoded.(type) {
	case string:
		result.Content.Text = &value
	case protocol.Attachment:
		result.Content.Attachment = &AttachmentContent{
			Filename: value.Filename,
			MimeType: value.MimeType,
			Data:     base64.StdEncoding.EncodeToString(value.Data),
		}
	case protocol.Reaction:
		result.Content.Reaction = &ReactionContent{
			Reference: value.Reference,
			Action:    string(value.Action),
			Schema:    string(value.Schema),
			Content:   value.Content,
		}
	default:
		result.Content.Unknown = &UnknownContent{ContentTypeID: result.ContentTypeID}
	}
	return result, nil
}

// encodeMessageJSON renders a message for an event payload.
func encodeMessageJSON(message protocol.DecodedMessage, codecs *protocol.Registry) (string, error) {
	encoded, err := EncodeMessage(message, codecs)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("bridge: encoding message %s: %w", message.ID, err)
	}
	return string(data), nil
}
