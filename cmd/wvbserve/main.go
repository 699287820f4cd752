// Package main is the entry point for the wvb bundle server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wvbundle/wvb/internal/server"
	"github.com/wvbundle/wvb/internal/wvbremote"
	"github.com/wvbundle/wvb/internal/wvbsource"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	initLogger()

	builtinDir := flag.String("builtin-dir", getEnv("WVB_BUILTIN_DIR", ""), "Directory of builtin (read-only) bundle files")
	remoteDir := flag.String("remote-dir", getEnv("WVB_REMOTE_DIR", ""), "Directory of remote (read-write) bundle files")
	port := flag.String("port", getEnv("WVB_PORT", "8080"), "Port to listen on")
	host := flag.String("host", getEnv("WVB_HOST", ""), "Host to bind to (empty = all interfaces)")
	forceRemote := flag.Bool("force-remote", getEnv("WVB_FORCE_REMOTE", "") == "1", "Always prefer the remote layer's version over builtin's")
	pollInterval := flag.Duration("sync-poll-interval", 30*time.Second, "How often to poll the remote store for new bundle versions (requires -remote-dir)")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("wvbserve %s (%s)\n", version, commit)
		os.Exit(0)
	}

	if *builtinDir == "" && *remoteDir == "" {
		slog.Error("at least one of -builtin-dir or -remote-dir must be set")
		os.Exit(1)
	}

	source, err := wvbsource.New(wvbsource.Config{
		BuiltinDir:     *builtinDir,
		RemoteDir:      *remoteDir,
		ForceUseRemote: *forceRemote,
	})
	if err != nil {
		slog.Error("failed to initialize bundle source", "err", err)
		os.Exit(1)
	}

	cfg := server.Config{
		Addr:      fmt.Sprintf("%s:%s", *host, *port),
		Source:    source,
		RemoteDir: *remoteDir,
	}

	var syncer *wvbremote.Syncer
	if remote := buildConfiguredRemote(); remote != nil && *remoteDir != "" {
		syncer = wvbremote.New(wvbremote.Config{
			Remote:       remote,
			Source:       source,
			PollInterval: *pollInterval,
		})
		cfg.Syncer = syncer
	}

	srv := server.NewServer(cfg)

	slog.Info("wvb server starting", "version", version, "addr", "http://"+cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutdown initiated, press Ctrl+C again to force exit")
		stop()
		srv.Shutdown()
	}
}

// buildConfiguredRemote returns the wvbsource.Remote to sync from, if
// any is configured for this deployment. No concrete Remote backend
// ships with this module (per spec's Non-goals on concrete storage
// backends) — an operator wiring a real store in a fork would return
// it here.
func buildConfiguredRemote() wvbsource.Remote {
	return nil
}

func initLogger() {
	level := slog.LevelInfo
	switch getEnv("WVB_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("WVB_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
