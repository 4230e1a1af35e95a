// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitError carries a specific exit status out of run(). Message, if
// non-empty, is printed like any other error.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// ExitCode returns the status the process should exit with.
func (e *ExitError) ExitCode() int { return e.Code }

// Fatal reports err on stderr and exits. Errors implementing
// ExitCode() int choose the status; everything else exits 1.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

// report writes "error: err" to w unless err is an ExitError without a
// message, and returns the exit status.
func report(w io.Writer, err error) int {
	code := 1
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		code = coder.ExitCode()
	}
	if err.Error() != "" {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return code
}
