// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the transport configuration artifact.
//
// The artifact is a single YAML file resolved with one documented
// precedence rule, checked once at the boundary:
//
//  1. an explicit path passed by the caller (--config flag), then
//  2. the POTBRIDGE_CONFIG environment variable, then
//  3. ./potbridge.yaml
//
// There are no other fallbacks and no discovery. The artifact is read
// once at bridge initialization and is immutable for the bridge's
// lifetime. A protocol-version mismatch is a fatal load error, not a
// runtime error.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProtocolVersion is the wire-protocol generation this build speaks.
// The artifact must declare the same value.
const ProtocolVersion = 1

// EnvVar names the environment variable consulted when no explicit
// config path is given.
const EnvVar = "POTBRIDGE_CONFIG"

// DefaultPath is the final fallback when neither an explicit path nor
// the environment variable is set.
const DefaultPath = "potbridge.yaml"

// defaultTimeoutMS is applied independently to send and receive when
// the artifact leaves them unset.
const defaultTimeoutMS = 15000

// Strategy selects how the bridge reaches the potential-evaluation
// routine.
type Strategy string

const (
	// StrategySocket reaches an out-of-process service over TCP.
	StrategySocket Strategy = "socket"
	// StrategyEmbedded reaches a model loaded into this process's
	// interpreter.
	StrategyEmbedded Strategy = "embedded"
)

// Config is the parsed configuration artifact.
type Config struct {
	// ProtocolVersion must match this build's ProtocolVersion.
	ProtocolVersion int `yaml:"protocol_version"`

	// Transport selects the delivery strategy.
	Transport Strategy `yaml:"transport"`

	// Server locates the out-of-process service (socket strategy).
	Server ServerConfig `yaml:"server"`

	// Timeouts bounds socket I/O.
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Model describes the potential model.
	Model ModelConfig `yaml:"model"`

	// SendMask controls whether request frames carry the
	// contributing mask. A connection-level choice agreed with the
	// service, not a per-message flag.
	SendMask *bool `yaml:"send_mask,omitempty"`

	// Trace, when set, captures every compute call to a file.
	Trace TraceConfig `yaml:"trace"`
}

// ServerConfig locates the potential service.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port dial string.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TimeoutConfig holds the two independent I/O timeouts, in
// milliseconds.
type TimeoutConfig struct {
	SendMS int `yaml:"send_ms"`
	RecvMS int `yaml:"recv_ms"`
}

// Send returns the send timeout as a duration.
func (t TimeoutConfig) Send() time.Duration { return time.Duration(t.SendMS) * time.Millisecond }

// Recv returns the receive timeout as a duration.
func (t TimeoutConfig) Recv() time.Duration { return time.Duration(t.RecvMS) * time.Millisecond }

// ModelConfig describes the potential model. For the embedded
// strategy, Path names the Starlark model file; influence distance
// and species are read from the model itself. For the socket strategy
// the service owns the model, and the artifact declares the influence
// distance and species list the host should advertise.
type ModelConfig struct {
	Path              string   `yaml:"path,omitempty"`
	InfluenceDistance float64  `yaml:"influence_distance,omitempty"`
	Species           []string `yaml:"species,omitempty"`
}

// TraceConfig configures optional call capture.
type TraceConfig struct {
	Path string `yaml:"path,omitempty"`
}

// SendMaskEnabled reports whether request frames include the
// contributing mask. Defaults to true: the original protocol always
// sends it, and omitting it is the opt-in deviation.
func (c *Config) SendMaskEnabled() bool {
	if c.SendMask == nil {
		return true
	}
	return *c.SendMask
}

// Resolve applies the precedence rule and returns the artifact path
// to load. explicit is the --config flag value ("" when not given).
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv(EnvVar); fromEnv != "" {
		return fromEnv
	}
	return DefaultPath
}

// Load reads and validates the artifact at path. Defaults are applied
// before validation: timeouts fall back to 15000 ms each, and the
// strategy defaults to socket.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config artifact %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse decodes and validates an artifact already in memory. name is
// used in error messages only.
func Parse(raw []byte, name string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config artifact %s: %w", name, err)
	}

	if cfg.Transport == "" {
		cfg.Transport = StrategySocket
	}
	if cfg.Timeouts.SendMS <= 0 {
		cfg.Timeouts.SendMS = defaultTimeoutMS
	}
	if cfg.Timeouts.RecvMS <= 0 {
		cfg.Timeouts.RecvMS = defaultTimeoutMS
	}

	if err := cfg.validate(name); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate(name string) error {
	if c.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("config artifact %s declares protocol version %d, this build speaks %d",
			name, c.ProtocolVersion, ProtocolVersion)
	}
	switch c.Transport {
	case StrategySocket:
		if c.Server.Host == "" {
			return fmt.Errorf("config artifact %s: socket transport requires server.host", name)
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("config artifact %s: socket transport requires a valid server.port (got %d)", name, c.Server.Port)
		}
	case StrategyEmbedded:
		if c.Model.Path == "" {
			return fmt.Errorf("config artifact %s: embedded transport requires model.path", name)
		}
	default:
		return fmt.Errorf("config artifact %s: unknown transport strategy %q (want %q or %q)",
			name, c.Transport, StrategySocket, StrategyEmbedded)
	}
	return nil
}
