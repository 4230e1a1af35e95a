// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"testing"
)

type keyBundleSample struct {
	Version int    `cbor:"version"`
	Address string `cbor:"address"`
	Seed    []byte `cbor:"seed"`
}

func TestMarshalDeterministic(t *testing.T) {
	bundle := keyBundleSample{Version: 1, Address: "0xabc", Seed: []byte{1, 2, 3}}

	first, err := Marshal(bundle)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(bundle)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("same value encoded differently:\n%x\n%x", first, second)
	}
}

func TestMapKeyOrderIndependent(t *testing.T) {
	first, err := Marshal(map[string]any{"topic": "t", "address": "a", "limit": 5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(map[string]any{"limit": 5, "address": "a", "topic": "t"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("map encoding depends on insertion order")
	}
}

func TestDecodeAnyProducesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{
		"name":    "message",
		"payload": map[string]any{"topic": "/xmtp/0/m-1/proto"},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	payload, ok := top["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want map[string]any", top["payload"])
	}
	if payload["topic"] != "/xmtp/0/m-1/proto" {
		t.Errorf("topic = %v", payload["topic"])
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, name := range []string{"sign", "authed", "message"} {
		if err := encoder.Encode(map[string]string{"name": name}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"sign", "authed", "message"} {
		var frame map[string]string
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if frame["name"] != want {
			t.Errorf("name = %q, want %q", frame["name"], want)
		}
	}
}

func TestUnmarshalStrictRejectsUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"version": 1, "address": "0xabc", "seed": []byte{1}, "extra": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var lenient keyBundleSample
	if err := Unmarshal(data, &lenient); err != nil || lenient.Address != "0xabc" {
		t.Fatalf("Unmarshal = %+v, %v", lenient, err)
	}

	var strict keyBundleSample
	err = UnmarshalStrict(data, &strict)
	var unknown *UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("UnmarshalStrict error = %v, want UnknownFieldError", err)
	}
}

func TestUnmarshalStrictRejectsDuplicateKeys(t *testing.T) {
	// {"version": 1, "version": 2}
	data := []byte{0xa2, 0x67, 'v', 'e', 'r', 's', 'i', 'o', 'n', 0x01, 0x67, 'v', 'e', 'r', 's', 'i', 'o', 'n', 0x02}
	var sample keyBundleSample
	err := UnmarshalStrict(data, &sample)
	var duplicate *DupMapKeyError
	if !errors.As(err, &duplicate) {
		t.Fatalf("UnmarshalStrict error = %v, want DupMapKeyError", err)
	}
}

func TestUnmarshalBoundsNesting(t *testing.T) {
	// 40 nested one-element arrays around a zero.
	data := bytes.Repeat([]byte{0x81}, 40)
	data = append(data, 0x00)
	var decoded any
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatal("deeply nested input decoded without error")
	}
}
