// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the session bridge between a host application and
// a messaging network client.
//
// A host drives the bridge through commands (methods on [Bridge]) and
// observes it through events delivered to an [Emitter]. The bridge owns
// all session state for the life of the process:
//
//   - A client registry with one protocol client per authenticated
//     address. Every command that names an address looks its client up
//     here and fails with [ErrNoClient] when it is missing. There is no
//     logout; sessions last until [Bridge.Close].
//
//   - A signature broker. [Bridge.Auth] creates a client whose account
//     signatures come from the host: each signing request is emitted as
//     a "sign" event carrying a fresh request id, and the authentication
//     blocks until the host answers with [Bridge.ReceiveSignature]. The
//     bridge imposes no timeout; the caller's context is the only way
//     to abandon a request.
//
//   - A conversation cache keyed by (address, topic). A miss lists all
//     of the client's conversations and scans them for the topic. Every
//     command that creates, imports or lists conversations populates the
//     cache.
//
//   - A subscription manager. Each live stream (new conversations, all
//     messages, one topic's messages, one topic's ephemeral messages)
//     runs in its own goroutine under a key derived from the address and
//     topic. Starting a key that is already live cancels the old stream
//     first. Once a stop returns, that stream emits nothing more. A
//     stream error marks the subscription failed and ends it; the host
//     restarts it if it wants to.
//
// Message content crosses the boundary as a tagged JSON envelope (see
// [Content]); binary payloads (signatures, key bundles, topic data,
// raw envelopes) cross as standard base64.
//
// Shims adapt the bridge to a concrete host: package host serves it
// over a Unix socket and package mobile wraps it for gomobile.
package bridge
