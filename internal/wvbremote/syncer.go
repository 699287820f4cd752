// Package wvbremote polls a Remote for version changes and downloads
// new bundle versions into a BundleSource's remote layer, bounded by a
// worker pool. It adapts the clone/fetch/eviction worker-pool shape
// used for remote Git repositories to the simpler bundle-download case:
// there is no cloning or eviction here, only "is there a newer version,
// and if so, fetch it."
package wvbremote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wvbundle/wvb/internal/wvbsource"
)

// Config holds settings for a Syncer.
type Config struct {
	Remote                 wvbsource.Remote
	Source                 *wvbsource.BundleSource
	PollInterval           time.Duration
	DownloadTimeout        time.Duration
	MaxConcurrentDownloads int
	IntegrityChecker       wvbsource.IntegrityChecker
	Logger                 *slog.Logger
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 2 * time.Minute
	}
	if c.MaxConcurrentDownloads <= 0 {
		c.MaxConcurrentDownloads = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// DownloadResult reports the outcome of a single sync attempt, sent on
// a Syncer's result channel for observability.
type DownloadResult struct {
	Name    string
	Version string
	Err     error
}

// Syncer periodically checks a Remote for newer bundle versions and
// downloads them into the configured BundleSource's remote layer.
type Syncer struct {
	cfg Config

	downloadQueue chan string
	results       chan DownloadResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Syncer. Call Start to begin polling.
func New(cfg Config) *Syncer {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		cfg:           cfg,
		downloadQueue: make(chan string, 64),
		results:       make(chan DownloadResult, 64),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Results exposes the channel sync attempts report their outcome on.
// Callers that don't drain it simply miss observability; nothing
// blocks on it since downloadWorker sends non-blockingly.
func (s *Syncer) Results() <-chan DownloadResult { return s.results }

// Start launches the download worker pool and the poll loop.
func (s *Syncer) Start() {
	for range s.cfg.MaxConcurrentDownloads {
		s.wg.Add(1)
		go s.downloadWorker()
	}

	s.wg.Add(1)
	go s.pollLoop()

	s.cfg.Logger.Info("bundle remote syncer started",
		"workers", s.cfg.MaxConcurrentDownloads,
		"poll_interval", s.cfg.PollInterval,
	)
}

// Close stops polling and downloading, waiting for in-flight work to
// observe cancellation.
func (s *Syncer) Close() {
	s.cancel()
	s.wg.Wait()
	close(s.results)
	s.cfg.Logger.Info("bundle remote syncer stopped")
}

// SyncNow triggers an immediate poll pass without waiting for the
// ticker.
func (s *Syncer) SyncNow(ctx context.Context) {
	s.pollOnce(ctx)
}

func (s *Syncer) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(s.ctx)
		}
	}
}

func (s *Syncer) pollOnce(ctx context.Context) {
	names, err := s.cfg.Remote.ListBundles(ctx)
	if err != nil {
		s.cfg.Logger.Warn("listing remote bundles failed", "error", err)
		return
	}

	for _, name := range names {
		select {
		case s.downloadQueue <- name:
		default:
			s.cfg.Logger.Warn("download queue full, dropping poll result", "name", name)
		}
	}
}

func (s *Syncer) downloadWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case name, ok := <-s.downloadQueue:
			if !ok {
				return
			}
			s.syncOne(name)
		}
	}
}

func (s *Syncer) syncOne(name string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DownloadTimeout)
	defer cancel()

	info, err := s.cfg.Remote.GetInfo(ctx, name)
	if err != nil {
		s.sendResult(DownloadResult{Name: name, Err: fmt.Errorf("get_info: %w", err)})
		return
	}

	if current, ok := s.cfg.Source.RemoteVersions().GetVersion(name); ok && current == info.Version {
		return // already have this version
	}

	_, bundle, raw, err := s.cfg.Remote.Download(ctx, name)
	if err != nil {
		s.sendResult(DownloadResult{Name: name, Err: fmt.Errorf("download: %w", err)})
		return
	}

	if s.cfg.IntegrityChecker != nil && info.Integrity != "" {
		if err := s.cfg.IntegrityChecker.Check(info.Integrity, raw); err != nil {
			s.sendResult(DownloadResult{Name: name, Err: fmt.Errorf("integrity check failed: %w", err)})
			return
		}
	}

	if err := s.cfg.Source.WriteBundle(name, info.Version, bundle); err != nil {
		s.sendResult(DownloadResult{Name: name, Version: info.Version, Err: fmt.Errorf("write: %w", err)})
		return
	}

	s.cfg.Source.RemoteVersions().SetVersion(name, info.Version)
	if err := s.cfg.Source.RemoteVersions().Save(); err != nil {
		s.sendResult(DownloadResult{Name: name, Version: info.Version, Err: fmt.Errorf("save versions: %w", err)})
		return
	}

	s.cfg.Source.UnloadDescriptor(name)

	s.cfg.Logger.Info("bundle synced", "name", name, "version", info.Version)
	s.sendResult(DownloadResult{Name: name, Version: info.Version})
}

func (s *Syncer) sendResult(r DownloadResult) {
	select {
	case s.results <- r:
	default:
	}
}
