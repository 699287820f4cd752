package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wvbundle/wvb/internal/cli"
	"github.com/wvbundle/wvb/internal/progress"
	"github.com/wvbundle/wvb/internal/server"
	"github.com/wvbundle/wvb/internal/wvbsource"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Summary: "Start the bundle server",
		Usage:   "wvbctl serve -builtin-dir <dir> [-remote-dir <dir>] [-port <port>]",
		Examples: []string{
			"wvbctl serve -builtin-dir ./bundles",
			"wvbctl serve -builtin-dir ./bundles -remote-dir ./live -port 9090",
		},
		Run: runServe,
	}
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	builtinDir := fs.String("builtin-dir", "", "Directory of builtin (read-only) bundle files")
	remoteDir := fs.String("remote-dir", "", "Directory of remote (read-write) bundle files")
	port := fs.String("port", "8080", "Port to listen on")
	host := fs.String("host", "", "Host to bind to")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *builtinDir == "" && *remoteDir == "" {
		fmt.Fprintln(os.Stderr, "serve: at least one of -builtin-dir or -remote-dir must be set")
		return 1
	}

	spin := progress.New("Loading bundle versions registry...")
	spin.Start()
	source, err := wvbsource.New(wvbsource.Config{BuiltinDir: *builtinDir, RemoteDir: *remoteDir})
	spin.Stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}

	srv := server.NewServer(server.Config{
		Addr:      fmt.Sprintf("%s:%s", *host, *port),
		Source:    source,
		RemoteDir: *remoteDir,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
		stop()
		srv.Shutdown()
	}
	return 0
}
