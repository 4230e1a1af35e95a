// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every msgbridge
// component that serializes binary structures.
//
// Two formats cross process boundaries:
//
//   - JSON for everything a host application reads directly: decoded
//     message bodies (messageJson), content envelopes, mobile shim
//     results.
//   - CBOR for everything machine-to-machine: the host socket protocol
//     (requests, responses, the event stream), memnet key bundles,
//     topic-data snapshots and sealed message payloads.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2) so that
// the same key bundle or topic snapshot always produces the same bytes,
// which keeps exported base64 strings stable across export calls.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only ever travel as CBOR use `cbor` struct tags. Types
// that also appear in JSON (socket request and response bodies that the
// CLI prints) use `json` tags, which fxamacker/cbor reads as a fallback.
// Never put both tags on one field.
package codec
