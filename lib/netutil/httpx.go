// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the small network helpers shared by the push
// client and the daemon's TCP forwarder.
//
// Response helpers bound every body read at MaxResponseSize. They are
// meant for small JSON API replies, not for streamed or binary bodies.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize bounds JSON API response reads.
const MaxResponseSize int64 = 4 << 20

// maxErrorBody bounds the portion of an error body kept for messages.
const maxErrorBody = 512

// DecodeResponse reads a JSON API response body, up to MaxResponseSize
// bytes, and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorBody reads an error response body for use in an error message.
// Read errors are ignored; the result is trimmed and truncated.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody+1))
	text := strings.TrimSpace(string(data))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return text
}
