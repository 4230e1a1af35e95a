// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"testing"
)

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("identity-seed-material")
	want := append([]byte(nil), source...)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !bytes.Equal(buffer.Bytes(), want) {
		t.Errorf("Bytes = %q, want %q", buffer.Bytes(), want)
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source[%d] = %d, want 0", index, value)
		}
	}
	if buffer.Len() != len(want) {
		t.Errorf("Len = %d, want %d", buffer.Len(), len(want))
	}
	if !buffer.Equal(want) {
		t.Error("Equal returned false for identical contents")
	}
	if buffer.Equal([]byte("other")) {
		t.Error("Equal returned true for different contents")
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) succeeded")
	}
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("NewFromBytes(nil) succeeded")
	}
}

func TestCloseIdempotentAndPanicsAfter(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestBase64RoundTrip(t *testing.T) {
	buffer, err := FromBase64("c2VlZC1ieXRlcw==")
	if err != nil {
		t.Fatalf("FromBase64: %v", err)
	}
	defer buffer.Close()
	if !buffer.Equal([]byte("seed-bytes")) {
		t.Errorf("decoded %q", buffer.Bytes())
	}
	if got := buffer.Base64(); got != "c2VlZC1ieXRlcw==" {
		t.Errorf("Base64 = %q", got)
	}
}

func TestFromBase64Rejects(t *testing.T) {
	for _, input := range []string{"", "not base64!"} {
		if buffer, err := FromBase64(input); err == nil {
			buffer.Close()
			t.Errorf("FromBase64(%q) succeeded", input)
		}
	}
}

func TestLenAfterClose(t *testing.T) {
	buffer, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buffer.Close()
	if buffer.Len() != 0 {
		t.Errorf("Len after Close = %d", buffer.Len())
	}
}
