// Package main is the entry point for the DevSpace API server.
//
// main only reads configuration, builds the logger and the optional code
// executor, and hands everything to internal/server.
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/devspace/internal/config"
	"github.com/sakif/devspace/internal/executor"
	"github.com/sakif/devspace/internal/executor/docker"
	"github.com/sakif/devspace/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// .env, then config.yml, then the environment. Invalid values stop the
	// process before anything is opened.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// === 3. EXECUTOR ===
	// Optional. Without Docker the server still starts and /run answers 503.
	var exec executor.Executor
	if cfg.ExecutorEnabled {
		dcfg := docker.DefaultConfig()
		if cfg.ExecutorPoolSize > 0 {
			dcfg.PoolSize = cfg.ExecutorPoolSize
		}

		dexec, err := docker.New(dcfg, logger)
		if err != nil {
			logger.Warn("docker executor unavailable, code execution disabled",
				slog.String("error", err.Error()),
			)
		} else {
			defer dexec.Close()
			exec = dexec
		}
	} else {
		logger.Info("code execution disabled (EXECUTOR_ENABLED=false)")
	}

	if !cfg.GitHubEnabled() {
		logger.Info("GITHUB_CLIENT_ID/SECRET not set, GitHub login disabled")
	}

	// === 4. SERVER ===
	srv, err := server.New(cfg, logger, exec)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
