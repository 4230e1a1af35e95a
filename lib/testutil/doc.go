// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for msgbridge packages.
//
// [RequireReceive], [RequireClosed] and [RequireNoReceive] wrap the
// select-with-deadline pattern so tests that watch event channels do
// not each carry their own time.After. These helpers are the only place
// tests use wall-clock timeouts.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes. [UniqueID] produces distinct
// identifiers for topics, addresses and conversation ids.
//
// All helpers fail the test with Fatalf instead of returning errors.
package testutil
