// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/potbridge/lib/config"
	"github.com/bureau-foundation/potbridge/lib/interp"
	"github.com/bureau-foundation/potbridge/lib/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("potbridge-server", pflag.ContinueOnError)
	configPath := flags.String("config", "", "configuration artifact (default: $"+config.EnvVar+", then ./"+config.DefaultPath+")")
	modelPath := flags.String("model", "", "Starlark model file (overrides the artifact's model.path)")
	listenAddr := flags.String("listen", "", "listen address (overrides the artifact's server block)")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn, error")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "potbridge-server: %v\n", err)
		return 2
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-server: %v\n", err)
		return 2
	}

	cfg, err := config.Load(config.Resolve(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-server: %v\n", err)
		return 1
	}

	model := cfg.Model.Path
	if *modelPath != "" {
		model = *modelPath
	}
	if model == "" {
		fmt.Fprintln(os.Stderr, "potbridge-server: no model file: set model.path in the artifact or pass --model")
		return 2
	}

	evaluator, err := interp.Load(model, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-server: %v\n", err)
		return 1
	}

	addr := cfg.Server.Addr()
	if *listenAddr != "" {
		addr = *listenAddr
	}

	srv, err := server.New(server.Options{
		Addr:        addr,
		Evaluator:   evaluator,
		RecvTimeout: cfg.Timeouts.Recv(),
		SendTimeout: cfg.Timeouts.Send(),
		ExpectMask:  cfg.SendMaskEnabled(),
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-server: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-server: %v\n", err)
		return 1
	}
	return 0
}

// newLogger builds a stderr text logger at the requested level.
func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}
