// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
	"net"
)

// closeWriter is implemented by TCP and Unix connections.
type closeWriter interface {
	CloseWrite() error
}

// Splice copies bytes in both directions between a and b and closes
// both when done. When one direction reaches EOF and the receiving
// side supports half-close, the EOF is propagated with CloseWrite and
// the other direction keeps running, so a request/response peer that
// half-closes after writing still gets its response. Otherwise the
// first direction to finish ends the splice.
//
// The counts are the bytes copied from a to b and from b to a. A
// normal teardown (see IsExpectedCloseError) returns a nil error.
func Splice(a, b net.Conn) (aToB, bToA int64, err error) {
	type result struct {
		forward bool
		n       int64
		err     error
	}
	done := make(chan result, 2)
	copyHalf := func(destination, source net.Conn, forward bool) {
		n, err := io.Copy(destination, source)
		if err == nil {
			if half, ok := destination.(closeWriter); ok {
				half.CloseWrite()
				done <- result{forward: forward, n: n}
				return
			}
		}
		// Full close unblocks the opposite direction.
		a.Close()
		b.Close()
		done <- result{forward: forward, n: n, err: err}
	}
	go copyHalf(b, a, true)
	go copyHalf(a, b, false)

	var firstErr error
	for range 2 {
		r := <-done
		if r.forward {
			aToB = r.n
		} else {
			bToA = r.n
		}
		if firstErr == nil && r.err != nil && !IsExpectedCloseError(r.err) {
			firstErr = r.err
		}
	}
	a.Close()
	b.Close()
	return aToB, bToA, firstErr
}
