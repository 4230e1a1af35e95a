// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package host exposes a bridge.Bridge to an out-of-process host over a
// Unix socket.
//
// The wire protocol is CBOR. A command is one request per connection: the
// client writes a map carrying an "action" field plus the action's
// arguments, the server answers with {ok, error, data} and closes. The
// "events" action instead keeps the connection open after its {ok: true}
// reply and streams one [WireEvent] per bridge event until either side
// closes.
//
// [Hub] is the bridge's Emitter in this setting. It fans each event out
// to every connected event stream through a bounded queue; a listener
// that falls behind loses events rather than stalling the bridge.
//
// [Forwarder] optionally exposes the socket on a TCP address for hosts
// that cannot reach a Unix socket.
package host
