// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the msgbridged daemon configuration.
//
// Configuration comes from exactly one YAML file named by the
// MSGBRIDGE_CONFIG environment variable or the --config flag. There is
// no discovery and no search path. After the file is read, individual
// fields may be overridden by MSGBRIDGE_* environment variables (for
// container deployments where the file is baked into the image), and
// ${VAR} / ${VAR:-default} references in path fields are expanded.
package config
