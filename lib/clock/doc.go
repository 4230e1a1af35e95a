// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable source of the current time.
//
// msgbridge components that stamp or age data (memnet message send
// times, typing-indicator expiry) take a Clock instead of calling
// time.Now directly. Production code passes Real(); tests pass a
// FakeClock and move it with Advance.
package clock
