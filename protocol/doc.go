// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the messaging-network capability the session
// bridge is written against.
//
// The bridge never talks to a network directly. It creates accounts
// through a [Network], holds one [Client] per authenticated address, and
// reaches conversations, history and live streams through [Conversations]
// and [Conversation]. Key-bundle formats, message encryption and
// transport are the implementation's business; the bridge only sees
// opaque bytes and decoded messages.
//
// Long-running subscriptions are modeled as [Stream] values: a lazy
// sequence pulled with Next(ctx) and released with Close. Next returns
// [ErrStreamClosed] once the stream has been closed locally or ended
// remotely; any other error is a stream failure.
//
// Message bodies travel as [EncodedContent] tagged with a
// [ContentTypeID]. The codecs for the content types every host must
// understand (text, attachment, reaction) live in this package so both
// the bridge and network implementations agree on their encoding.
//
// [memnet] is an in-process implementation used by tests and by the
// daemon's local environment.
package protocol
