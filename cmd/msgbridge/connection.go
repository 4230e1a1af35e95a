// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/msgbridge/host"
	"github.com/bureau-foundation/msgbridge/lib/config"
	"github.com/bureau-foundation/msgbridge/lib/keystore"
)

// connection holds the flags every command uses to find the daemon and
// the keystore.
type connection struct {
	socketPath   string
	configPath   string
	keystorePath string
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.socketPath, "socket", "", "daemon socket (default: socket.path from config)")
	flagSet.StringVar(&c.configPath, "config", "", "path to msgbridge.yaml (default: $MSGBRIDGE_CONFIG)")
	flagSet.StringVar(&c.keystorePath, "keystore", "", "key bundle directory (default: keystore.path from config)")
}

// config loads --config, then MSGBRIDGE_CONFIG, then the defaults.
func (c *connection) config() (*config.Config, error) {
	switch {
	case c.configPath != "":
		return config.LoadFile(c.configPath)
	case os.Getenv("MSGBRIDGE_CONFIG") != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

func (c *connection) client() (*host.Client, error) {
	if c.socketPath != "" {
		return host.NewClient(c.socketPath), nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return host.NewClient(cfg.Socket.Path), nil
}

func (c *connection) keystore() (*keystore.Store, error) {
	path := c.keystorePath
	if path == "" {
		cfg, err := c.config()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		path = cfg.Keystore.Path
	}
	return keystore.Open(path)
}
