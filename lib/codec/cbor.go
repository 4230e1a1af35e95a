// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Limits applied to every decode. Host socket requests come from
// whatever process can reach the socket, so nesting and collection
// sizes are bounded well below the library defaults.
const (
	maxNestedLevels  = 24
	maxArrayElements = 1 << 16
	maxMapPairs      = 1 << 12
)

// Error types UnmarshalStrict returns (as pointers).
type (
	UnknownFieldError = cbor.UnknownFieldError
	DupMapKeyError    = cbor.DupMapKeyError
)

var (
	encMode    = mustEncMode()
	decMode    = mustDecMode(false)
	strictMode = mustDecMode(true)
)

func mustEncMode() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: building CBOR encoder: " + err.Error())
	}
	return mode
}

// mustDecMode builds the lenient or the strict decoder. Both decode
// maps inside `any` as map[string]any so the CLI can print event
// payloads as JSON directly.
func mustDecMode(strict bool) cbor.DecMode {
	options := cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels:  maxNestedLevels,
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
	}
	if strict {
		options.DupMapKey = cbor.DupMapKeyEnforcedAPF
		options.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	}
	mode, err := options.DecMode()
	if err != nil {
		panic("codec: building CBOR decoder: " + err.Error())
	}
	return mode
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes data into v, ignoring fields v does not declare.
// Socket requests use it: every action decodes the same request map
// into its own struct.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// UnmarshalStrict decodes data into v and rejects unknown fields and
// duplicate map keys. Persisted artifacts (key bundles, topic-data
// snapshots) use it so a damaged or foreign blob fails loudly.
func UnmarshalStrict(data []byte, v any) error { return strictMode.Unmarshal(data, v) }

// Encoder writes a stream of CBOR values.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR values.
type Decoder = cbor.Decoder

// RawMessage defers decoding: request bodies until the action is
// known, response data until the caller supplies a result type.
type RawMessage = cbor.RawMessage

// NewEncoder returns a deterministic encoder on w.
func NewEncoder(w io.Writer) *Encoder { return encMode.NewEncoder(w) }

// NewDecoder returns a lenient decoder on r.
func NewDecoder(r io.Reader) *Decoder { return decMode.NewDecoder(r) }
