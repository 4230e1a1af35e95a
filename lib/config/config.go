// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/msgbridge/lib/version"
)

// Config is the daemon configuration.
type Config struct {
	// Network selects the messaging environment clients connect to.
	Network NetworkConfig `yaml:"network" envPrefix:"NETWORK_"`

	// Socket configures the host socket the daemon serves.
	Socket SocketConfig `yaml:"socket" envPrefix:"SOCKET_"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`

	// Auth bounds how long an auth command waits for the host to
	// deliver signatures.
	Auth AuthConfig `yaml:"auth" envPrefix:"AUTH_"`

	// Push names the default push notification server.
	Push PushConfig `yaml:"push" envPrefix:"PUSH_"`

	// Keystore is where the operator CLI keeps encrypted key bundles.
	Keystore KeystoreConfig `yaml:"keystore" envPrefix:"KEYSTORE_"`
}

// NetworkConfig selects the messaging environment.
type NetworkConfig struct {
	// Environment is "local", "dev" or "production". Unknown values
	// are treated as "dev" by the bridge.
	Environment string `yaml:"environment" env:"ENVIRONMENT"`

	// AppVersion is reported to the network when a command does not
	// carry its own. Default: msgbridge/<version>.
	AppVersion string `yaml:"app_version" env:"APP_VERSION"`
}

// SocketConfig configures the host socket.
type SocketConfig struct {
	// Path is the Unix socket path. Default: /run/msgbridge/bridge.sock
	Path string `yaml:"path" env:"PATH"`

	// EventBuffer is the per-listener event queue depth. Events beyond
	// it are dropped for that listener. Default: 256.
	EventBuffer int `yaml:"event_buffer" env:"EVENT_BUFFER"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr is the TCP address serving /metrics. Empty disables
	// the endpoint.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// AuthConfig bounds signature waits.
type AuthConfig struct {
	// Timeout limits an auth command end to end, including every
	// signature round trip with the host. Zero means wait forever,
	// which is the bridge's own behavior.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PushConfig names the push server.
type PushConfig struct {
	// Server is the push server base URL used when registerPushToken
	// is called without one.
	Server string `yaml:"server" env:"SERVER"`
}

// KeystoreConfig configures the encrypted key bundle store.
type KeystoreConfig struct {
	// Path is the directory holding one age-encrypted bundle per
	// account address.
	Path string `yaml:"path" env:"PATH"`
}

// Default returns the configuration every loaded file is merged over.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Network: NetworkConfig{
			Environment: "dev",
			AppVersion:  version.AppVersion(),
		},
		Socket: SocketConfig{
			Path:        "/run/msgbridge/bridge.sock",
			EventBuffer: 256,
		},
		Keystore: KeystoreConfig{
			Path: filepath.Join(homeDir, ".config", "msgbridge", "keys"),
		},
	}
}

// Load loads the file named by MSGBRIDGE_CONFIG. It fails if the
// variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("MSGBRIDGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("MSGBRIDGE_CONFIG environment variable not set; " +
			"set it to the path of your msgbridge.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies MSGBRIDGE_*
// environment overrides and expands variables in paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "MSGBRIDGE_"}); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Socket.Path = expandVars(c.Socket.Path, vars)
	c.Keystore.Path = expandVars(c.Keystore.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Socket.Path == "" {
		errs = append(errs, fmt.Errorf("socket.path is required"))
	}
	if c.Socket.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("socket.event_buffer must be positive, got %d", c.Socket.EventBuffer))
	}
	if c.Auth.Timeout < 0 {
		errs = append(errs, fmt.Errorf("auth.timeout must not be negative"))
	}
	switch c.Network.Environment {
	case "local", "dev", "production":
	default:
		errs = append(errs, fmt.Errorf("network.environment %q: want local, dev or production", c.Network.Environment))
	}
	return errors.Join(errs...)
}
