// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// A [Buffer] is an anonymous mmap region locked into RAM (no swap) and
// excluded from core dumps. msgbridge keeps account private keys
// (memnet identity seeds) and keystore passphrases in Buffers; the
// bytes are zeroed and unmapped on Close. Access after Close panics.
package secret
