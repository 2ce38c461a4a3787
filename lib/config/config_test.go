// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const socketArtifact = `
protocol_version: 1
transport: socket
server:
  host: 127.0.0.1
  port: 37277
`

func TestParseSocketDefaults(t *testing.T) {
	cfg, err := Parse([]byte(socketArtifact), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Transport != StrategySocket {
		t.Errorf("transport %q, want socket", cfg.Transport)
	}
	if got := cfg.Server.Addr(); got != "127.0.0.1:37277" {
		t.Errorf("addr %q, want 127.0.0.1:37277", got)
	}
	if cfg.Timeouts.Send() != 15*time.Second || cfg.Timeouts.Recv() != 15*time.Second {
		t.Errorf("timeouts %v/%v, want 15s defaults", cfg.Timeouts.Send(), cfg.Timeouts.Recv())
	}
	if !cfg.SendMaskEnabled() {
		t.Error("send mask should default to enabled")
	}
}

func TestParseExplicitValues(t *testing.T) {
	const artifact = `
protocol_version: 1
transport: embedded
model:
  path: /models/sw.star
timeouts:
  send_ms: 500
  recv_ms: 30000
send_mask: false
trace:
  path: /tmp/run.trace
`
	cfg, err := Parse([]byte(artifact), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Transport != StrategyEmbedded {
		t.Errorf("transport %q, want embedded", cfg.Transport)
	}
	if cfg.Model.Path != "/models/sw.star" {
		t.Errorf("model path %q", cfg.Model.Path)
	}
	if cfg.Timeouts.Send() != 500*time.Millisecond {
		t.Errorf("send timeout %v, want 500ms", cfg.Timeouts.Send())
	}
	if cfg.Timeouts.Recv() != 30*time.Second {
		t.Errorf("recv timeout %v, want 30s", cfg.Timeouts.Recv())
	}
	if cfg.SendMaskEnabled() {
		t.Error("send mask explicitly disabled")
	}
	if cfg.Trace.Path != "/tmp/run.trace" {
		t.Errorf("trace path %q", cfg.Trace.Path)
	}
}

func TestParseRejectsVersionMismatch(t *testing.T) {
	const artifact = `
protocol_version: 2
transport: socket
server:
  host: 127.0.0.1
  port: 1234
`
	_, err := Parse([]byte(artifact), "test")
	if err == nil {
		t.Fatal("expected version mismatch error")
	}
	if !strings.Contains(err.Error(), "protocol version 2") || !strings.Contains(err.Error(), "speaks 1") {
		t.Errorf("error should name both versions: %v", err)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
		want     string
	}{
		{
			"missing version",
			"transport: socket\nserver: {host: x, port: 1}\n",
			"protocol version 0",
		},
		{
			"socket without host",
			"protocol_version: 1\ntransport: socket\nserver: {port: 1}\n",
			"requires server.host",
		},
		{
			"socket with bad port",
			"protocol_version: 1\ntransport: socket\nserver: {host: x, port: 70000}\n",
			"valid server.port",
		},
		{
			"embedded without model",
			"protocol_version: 1\ntransport: embedded\n",
			"requires model.path",
		},
		{
			"unknown strategy",
			"protocol_version: 1\ntransport: carrier-pigeon\n",
			"unknown transport strategy",
		},
		{
			"malformed yaml",
			"protocol_version: [\n",
			"parsing config artifact",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.artifact), "test")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(EnvVar, "")
	if got := Resolve(""); got != DefaultPath {
		t.Errorf("Resolve with nothing set = %q, want %q", got, DefaultPath)
	}

	t.Setenv(EnvVar, "/etc/potbridge/env.yaml")
	if got := Resolve(""); got != "/etc/potbridge/env.yaml" {
		t.Errorf("Resolve from env = %q", got)
	}

	// An explicit flag outranks the environment.
	if got := Resolve("/opt/run.yaml"); got != "/opt/run.yaml" {
		t.Errorf("Resolve with explicit path = %q", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "potbridge.yaml")
	if err := os.WriteFile(path, []byte(socketArtifact), 0o644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 37277 {
		t.Errorf("port %d, want 37277", cfg.Server.Port)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
