// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memnet is an in-process implementation of the protocol
// capability. All accounts, conversations and streams live inside one
// [Network] value; there is no transport.
//
// memnet exists so the session bridge can run end to end without a
// real messaging network: the daemon uses it for the "local"
// environment and every test in the repository uses it as the protocol
// collaborator. It is not wire-compatible with any real network.
//
// Accounts are Ed25519 identities addressed as "0x" followed by 40
// hex digits taken from a BLAKE3 hash of the public key. Accounts
// created with an external signer keep the signer's address and ask
// it to sign an identity statement; memnet checks the signature shape
// but does not verify it.
//
// Each conversation has a random 32-byte key shared by both
// participants. Message bodies are CBOR, sealed with
// XChaCha20-Poly1305 under a per-topic key derived from the
// conversation key with HKDF-SHA256. Persisted messages are kept per
// topic; ephemeral messages are delivered to live subscribers only.
//
// Streams are buffered channels. Publishing blocks on a full
// subscriber buffer until the subscriber drains it, closes, or the
// publisher's context ends, so events are never silently lost.
package memnet
