// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for msgbridge binaries.
//
// Values are injected at build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/msgbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [AppVersion] is also what the bridge reports to the messaging network
// when a host does not supply its own app version.
package version

import (
	"fmt"
	"runtime"
)

var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns the string printed by --version.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Full adds the Go toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s", Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// AppVersion is the default client identifier sent to the network,
// in the "name/version" form the network expects.
func AppVersion() string {
	return "msgbridge/" + Version
}

// Print writes "<binary> <Full()>" to stdout. It is what every
// msgbridge binary does for --version.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Full())
}
