// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrUnknownContentType is returned by Registry.Decode for content
// whose type has no registered codec.
var ErrUnknownContentType = errors.New("protocol: unknown content type")

// ContentTypeID identifies a content codec: authority, type name and
// a major.minor version. Its string form is "authority/type:major.minor".
type ContentTypeID struct {
	AuthorityID  string `cbor:"authority_id"`
	TypeID       string `cbor:"type_id"`
	VersionMajor int    `cbor:"version_major"`
	VersionMinor int    `cbor:"version_minor"`
}

// Well-known content types.
var (
	ContentTypeText       = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "text", VersionMajor: 1, VersionMinor: 0}
	ContentTypeAttachment = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "attachment", VersionMajor: 1, VersionMinor: 0}
	ContentTypeReaction   = ContentTypeID{AuthorityID: "xmtp.org", TypeID: "reaction", VersionMajor: 1, VersionMinor: 0}
)

func (id ContentTypeID) String() string {
	return fmt.Sprintf("%s/%s:%d.%d", id.AuthorityID, id.TypeID, id.VersionMajor, id.VersionMinor)
}

// IsZero reports whether id is the zero value.
func (id ContentTypeID) IsZero() bool { return id == ContentTypeID{} }

// SameType reports whether id and other name the same codec,
// ignoring version.
func (id ContentTypeID) SameType(other ContentTypeID) bool {
	return id.AuthorityID == other.AuthorityID && id.TypeID == other.TypeID
}

// ParseContentTypeID parses the String form.
func ParseContentTypeID(s string) (ContentTypeID, error) {
	authority, rest, ok := strings.Cut(s, "/")
	if !ok || authority == "" {
		return ContentTypeID{}, fmt.Errorf("content type %q: missing authority", s)
	}
	typeName, version, ok := strings.Cut(rest, ":")
	if !ok || typeName == "" {
		return ContentTypeID{}, fmt.Errorf("content type %q: missing version", s)
	}
	majorText, minorText, ok := strings.Cut(version, ".")
	if !ok {
		return ContentTypeID{}, fmt.Errorf("content type %q: version must be major.minor", s)
	}
	major, err := strconv.Atoi(majorText)
	if err != nil {
		return ContentTypeID{}, fmt.Errorf("content type %q: major version: %w", s, err)
	}
	minor, err := strconv.Atoi(minorText)
	if err != nil {
		return ContentTypeID{}, fmt.Errorf("content type %q: minor version: %w", s, err)
	}
	return ContentTypeID{AuthorityID: authority, TypeID: typeName, VersionMajor: major, VersionMinor: minor}, nil
}

// EncodedContent is a message body as it is encrypted and sent.
type EncodedContent struct {
	Type       ContentTypeID     `cbor:"type"`
	Parameters map[string]string `cbor:"parameters,omitempty"`

	// Fallback is a human-readable rendering for clients without the
	// codec.
	Fallback string `cbor:"fallback,omitempty"`

	Content []byte `cbor:"content"`

	// Compression and UncompressedSize describe Content. See Compress.
	Compression      Compression `cbor:"compression,omitempty"`
	UncompressedSize int         `cbor:"uncompressed_size,omitempty"`
}

// Codec converts one content type between its Go value and
// EncodedContent.
type Codec interface {
	ContentType() ContentTypeID
	Encode(content any) (EncodedContent, error)
	Decode(encoded EncodedContent) (any, error)
}

// Registry maps content types to codecs. A Registry is immutable
// after construction and safe for concurrent use.
type Registry struct {
	codecs []Codec
}

// NewRegistry returns a registry over codecs. Later codecs for the
// same type shadow earlier ones.
func NewRegistry(codecs ...Codec) *Registry {
	return &Registry{codecs: codecs}
}

// DefaultRegistry returns a registry with the text, attachment and
// reaction codecs.
func DefaultRegistry() *Registry {
	return NewRegistry(TextCodec{}, AttachmentCodec{}, ReactionCodec{})
}

// Lookup returns the codec for id, matching on authority and type.
func (r *Registry) Lookup(id ContentTypeID) (Codec, bool) {
	for i := len(r.codecs) - 1; i >= 0; i-- {
		if r.codecs[i].ContentType().SameType(id) {
			return r.codecs[i], true
		}
	}
	return nil, false
}

// Encode encodes content with the codec for id.
func (r *Registry) Encode(id ContentTypeID, content any) (EncodedContent, error) {
	codec, ok := r.Lookup(id)
	if !ok {
		return EncodedContent{}, fmt.Errorf("%w: %s", ErrUnknownContentType, id)
	}
	return codec.Encode(content)
}

// Decode decompresses encoded if needed and decodes it with the
// matching codec. Content without a codec fails with an error
// wrapping ErrUnknownContentType.
func (r *Registry) Decode(encoded EncodedContent) (any, error) {
	codec, ok := r.Lookup(encoded.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, encoded.Type)
	}
	plain, err := Decompress(encoded)
	if err != nil {
		return nil, err
	}
	return codec.Decode(plain)
}

// TextCodec encodes string content as UTF-8.
type TextCodec struct{}

func (TextCodec) ContentType() ContentTypeID { return ContentTypeText }

func (TextCodec) Encode(content any) (EncodedContent, error) {
	text, ok := content.(string)
	if !ok {
		return EncodedContent{}, fmt.Errorf("text codec: expected string, got %T", content)
	}
	return EncodedContent{
		Type:       ContentTypeText,
		Parameters: map[string]string{"encoding": "UTF-8"},
		Content:    []byte(text),
	}, nil
}

func (TextCodec) Decode(encoded EncodedContent) (any, error) {
	if encoding, ok := encoded.Parameters["encoding"]; ok && !strings.EqualFold(encoding, "UTF-8") {
		return nil, fmt.Errorf("text codec: unsupported encoding %q", encoding)
	}
	if !utf8.Valid(encoded.Content) {
		return nil, errors.New("text codec: content is not valid UTF-8")
	}
	return string(encoded.Content), nil
}

// Attachment is an inline file.
type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// AttachmentCodec carries the file name and MIME type as parameters
// and the file bytes as content.
type AttachmentCodec struct{}

func (AttachmentCodec) ContentType() ContentTypeID { return ContentTypeAttachment }

func (AttachmentCodec) Encode(content any) (EncodedContent, error) {
	attachment, ok := content.(Attachment)
	if !ok {
		return EncodedContent{}, fmt.Errorf("attachment codec: expected Attachment, got %T", content)
	}
	return EncodedContent{
		Type: ContentTypeAttachment,
		Parameters: map[string]string{
			"filename": attachment.Filename,
			"mimeType": attachment.MimeType,
		},
		Fallback: "Can't display \"" + attachment.Filename + "\". This app doesn't support attachments.",
		Content:  attachment.Data,
	}, nil
}

func (AttachmentCodec) Decode(encoded EncodedContent) (any, error) {
	filename, ok := encoded.Parameters["filename"]
	if !ok {
		return nil, errors.New("attachment codec: missing filename parameter")
	}
	mimeType, ok := encoded.Parameters["mimeType"]
	if !ok {
		return nil, errors.New("attachment codec: missing mimeType parameter")
	}
	return Attachment{Filename: filename, MimeType: mimeType, Data: encoded.Content}, nil
}

// ReactionAction is the verb of a reaction.
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

// ReactionSchema says how Content should be interpreted.
type ReactionSchema string

const (
	ReactionSchemaUnicode   ReactionSchema = "unicode"
	ReactionSchemaShortcode ReactionSchema = "shortcode"
	ReactionSchemaCustom    ReactionSchema = "custom"
)

// Reaction is an add or remove of Content on the message with id
// Reference.
type Reaction struct {
	Reference string         `json:"reference"`
	Action    ReactionAction `json:"action"`
	Schema    ReactionSchema `json:"schema"`
	Content   string         `json:"content"`
}

// ReactionCodec encodes reactions as a JSON document.
type ReactionCodec struct{}

func (ReactionCodec) ContentType() ContentTypeID { return ContentTypeReaction }

func (ReactionCodec) Encode(content any) (EncodedContent, error) {
	reaction, ok := content.(Reaction)
	if !ok {
		return EncodedContent{}, fmt.Errorf("reaction codec: expected Reaction, got %T", content)
	}
	data, err := json.Marshal(reaction)
	if err != nil {
		return EncodedContent{}, fmt.Errorf("reaction codec: %w", err)
	}
	verb := "reacted"
	if reaction.Action == ReactionRemoved {
		verb = "removed"
	}
	return EncodedContent{
		Type:     ContentTypeReaction,
		Fallback: fmt.Sprintf("%s %q to an earlier message", verb, reaction.Content),
		Content:  data,
	}, nil
}

func (ReactionCodec) Decode(encoded EncodedContent) (any, error) {
	var reaction Reaction
	if err := json.Unmarshal(encoded.Content, &reaction); err != nil {
		return nil, fmt.Errorf("reaction codec: %w", err)
	}
	switch reaction.Action {
	case ReactionAdded, ReactionRemoved:
	default:
		return nil, fmt.Errorf("reaction codec: unknown action %q", reaction.Action)
	}
	if reaction.Reference == "" {
		return nil, errors.New("reaction codec: missing reference")
	}
	return reaction, nil
}
