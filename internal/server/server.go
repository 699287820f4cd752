package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wvbundle/wvb/internal/wvbprotocol"
	"github.com/wvbundle/wvb/internal/wvbremote"
	"github.com/wvbundle/wvb/internal/wvbsource"
)

// Config configures a Server. Source is required; RemoteDir and
// Syncer are optional and only meaningful when the deployment has a
// writable remote layer to watch and/or sync.
type Config struct {
	Addr   string
	Source *wvbsource.BundleSource

	// RemoteDir, when set, is watched for versions.json and *.wvb
	// changes so an out-of-process deployment is picked up without a
	// restart. Typically equal to Source's configured remote directory.
	RemoteDir string

	// Syncer, when set, is started alongside the HTTP listener and
	// closed during Shutdown.
	Syncer *wvbremote.Syncer

	Logger *slog.Logger
}

// Server serves bundle content over HTTP, with live-reload
// notifications and a small set of diagnostic routes.
type Server struct {
	addr        string
	source      *wvbsource.BundleSource
	protocol    *wvbprotocol.BundleProtocol
	remoteDir   string
	syncer      *wvbremote.Syncer
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger
	hub         *liveReloadHub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer constructs a Server ready to be started.
func NewServer(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:        cfg.Addr,
		source:      cfg.Source,
		protocol:    wvbprotocol.New(cfg.Source),
		remoteDir:   cfg.RemoteDir,
		syncer:      cfg.Syncer,
		rateLimiter: newRateLimiter(200, 400, time.Second),
		logger:      logger,
		hub:         newLiveReloadHub(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins serving and blocks until the server exits or
// encounters a fatal error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/_wvb/health", s.handleHealth)
	mux.HandleFunc("/_wvb/about", s.handleAbout)
	mux.HandleFunc("/_wvb/livereload", s.handleLiveReload)
	mux.Handle("/", s.rateLimiter.middleware(s.protocol.ServeHTTP))

	handler := requestLogger(s.logger, corsMiddleware(mux))

	// WriteTimeout must remain 0 because the live-reload WebSocket
	// connections are long-lived.
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	if s.remoteDir != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.startWatcher(); err != nil {
				s.logger.Error("watcher error", "err", err)
			}
		}()
	}

	if s.syncer != nil {
		s.syncer.Start()
	}

	s.logger.Info("wvb server starting", "addr", "http://"+s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server, its watcher, syncer, and
// live-reload connections.
func (s *Server) Shutdown() {
	start := time.Now()
	s.logger.Info("server shutting down")

	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "err", err)
		}
	}

	s.cancel()
	s.rateLimiter.Close()

	if s.syncer != nil {
		s.syncer.Close()
	}

	s.wg.Wait()
	s.hub.Close()

	s.logger.Info("server shutdown complete", "elapsed", time.Since(start).Round(time.Millisecond))
}
