// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantOutput string
	}{
		{"plain error", errors.New("boom"), 1, "error: boom\n"},
		{"exit error", &ExitError{Code: 3, Message: "not found"}, 3, "error: not found\n"},
		{"silent exit error", &ExitError{Code: 2}, 2, ""},
		{"wrapped exit error", fmt.Errorf("listing: %w", &ExitError{Code: 4, Message: "gone"}), 4, "error: listing: gone\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var output bytes.Buffer
			if code := report(&output, test.err); code != test.wantCode {
				t.Errorf("code = %d, want %d", code, test.wantCode)
			}
			if output.String() != test.wantOutput {
				t.Errorf("output = %q, want %q", output.String(), test.wantOutput)
			}
		})
	}
}
