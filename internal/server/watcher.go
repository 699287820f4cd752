package server

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceTime = 250 * time.Millisecond

// startWatcher watches the remote bundle directory for versions.json
// edits and new/replaced .wvb files, so an out-of-process syncer or
// deployment script dropping a new version onto disk is picked up
// without a restart. Debounced like the teacher's Git watcher, since a
// deployment script typically writes several files in quick succession.
func (s *Server) startWatcher() error {
	if s.remoteDir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.remoteDir); err != nil {
		watcher.Close()
		return err
	}

	s.wg.Add(1)
	go s.watchLoop(watcher)

	s.logger.Info("watching remote bundle directory for changes", "dir", s.remoteDir)
	return nil
}

func (s *Server) watchLoop(watcher *fsnotify.Watcher) {
	defer s.wg.Done()
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Error("failed to close watcher", "err", err)
		}
	}()

	var debounceTimer *time.Timer

	for {
		select {
		case <-s.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if shouldIgnoreEvent(event) {
				continue
			}

			s.logger.Debug("remote bundle directory change detected", "file", filepath.Base(event.Name), "op", event.Op.String())

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceTime, s.onRemoteDirChanged)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watcher error", "err", err)
		}
	}
}

// onRemoteDirChanged reloads the remote versions registry from disk and
// unloads the cached descriptor and notifies live-reload subscribers
// for every bundle whose version changed.
func (s *Server) onRemoteDirChanged() {
	if s.ctx.Err() != nil {
		return
	}

	changed, err := s.source.RemoteVersions().Reload()
	if err != nil {
		s.logger.Error("failed to reload remote versions registry", "err", err)
		return
	}

	for _, name := range changed {
		s.source.UnloadDescriptor(name)
		if s.hub != nil {
			s.hub.Broadcast(name)
		}
		s.logger.Info("picked up new bundle version", "name", name)
	}
}

func shouldIgnoreEvent(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return true
	}
	if strings.HasSuffix(base, ".tmp") || strings.HasPrefix(base, ".versions-") {
		return true
	}
	if base != "versions.json" && !strings.HasSuffix(base, ".wvb") {
		return true
	}

	return false
}
