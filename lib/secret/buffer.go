// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds sensitive bytes in locked, dump-excluded memory. A
// Buffer must not be copied after creation.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	closed bool
}

// New allocates a zero-filled protected buffer of size bytes. The
// caller must Close it.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}
	region, err := allocate(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{region: region}, nil
}

// NewFromBytes moves source into a protected buffer: the bytes are
// copied and source is zeroed in place.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, errors.New("secret: cannot create buffer from empty source")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	Zero(source)
	return buffer, nil
}

// FromBase64 decodes standard base64 straight into a protected buffer.
// Key bundles cross the host boundary as base64; decoding here keeps
// the only plaintext heap copy inside this function, where it is
// zeroed.
func FromBase64(encoded string) (*Buffer, error) {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(decoded, []byte(encoded))
	if err != nil {
		Zero(decoded)
		return nil, fmt.Errorf("secret: decoding base64: %w", err)
	}
	buffer, err := NewFromBytes(decoded[:n])
	Zero(decoded)
	return buffer, err
}

// Base64 returns the contents as standard base64, for handing a secret
// to a host that asked for it (key bundle export).
func (b *Buffer) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Bytes())
}

// Bytes returns a slice into the protected region. Do not retain it
// past Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpen()
	return b.region
}

// String returns a heap copy of the contents. Only for APIs that take a
// string, such as age passphrases.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpen()
	return string(b.region)
}

// Len returns the size of the secret, or zero after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.region)
}

// Equal reports in constant time whether the buffer holds exactly
// other.
func (b *Buffer) Equal(other []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpen()
	return subtle.ConstantTimeCompare(b.region, other) == 1
}

// Close zeroes and releases the memory. Calling it again does nothing.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	region := b.region
	b.region = nil
	return release(region)
}

func (b *Buffer) checkOpen() {
	if b.closed {
		panic("secret: use of closed buffer")
	}
}

// Zero overwrites data with zero bytes.
func Zero(data []byte) {
	clear(data)
}

// allocate maps an anonymous region, locks it into RAM and excludes it
// from core dumps. Every failure unwinds the earlier steps.
func allocate(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return region, nil
}

// release zeroes region, then unlocks and unmaps it.
func release(region []byte) error {
	Zero(region)
	return errors.Join(
		wrapErr("munlock", unix.Munlock(region)),
		wrapErr("munmap", unix.Munmap(region)),
	)
}

func wrapErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("secret: %s: %w", operation, err)
}
