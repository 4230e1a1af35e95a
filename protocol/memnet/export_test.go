// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memnet

import "github.com/bureau-foundation/msgbridge/lib/codec"

func encodeBundle(bundle keyBundle) ([]byte, error) {
	return codec.Marshal(bundle)
}
