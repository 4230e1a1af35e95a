// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// closeErrors are the errors a spliced host connection reports when
// its peer hangs up. A full close on one side shows up on the other as
// EPIPE or ECONNRESET; a client that gives up during the handshake
// produces ECONNABORTED.
var closeErrors = []error{
	io.EOF,
	io.ErrClosedPipe,
	net.ErrClosed,
	syscall.EPIPE,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
}

// IsExpectedCloseError reports whether err is ordinary connection
// teardown rather than a failure worth logging above Debug.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range closeErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
