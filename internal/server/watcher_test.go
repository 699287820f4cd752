package server

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/wvbundle/wvb/internal/wvbsource"
)

func TestShouldIgnoreEventIgnoresTmpAndUnrelatedFiles(t *testing.T) {
	cases := []struct {
		name   string
		event  fsnotify.Event
		ignore bool
	}{
		{
			name:   "versions.json write",
			event:  fsnotify.Event{Name: "/remote/versions.json", Op: fsnotify.Write},
			ignore: false,
		},
		{
			name:   "wvb file create",
			event:  fsnotify.Event{Name: "/remote/app_2.wvb", Op: fsnotify.Create},
			ignore: false,
		},
		{
			name:   "tmp file write",
			event:  fsnotify.Event{Name: "/remote/app_2.wvb.tmp", Op: fsnotify.Write},
			ignore: true,
		},
		{
			name:   "versions temp file write",
			event:  fsnotify.Event{Name: "/remote/.versions-123.json.tmp", Op: fsnotify.Write},
			ignore: true,
		},
		{
			name:   "unrelated file write",
			event:  fsnotify.Event{Name: "/remote/readme.txt", Op: fsnotify.Write},
			ignore: true,
		},
		{
			name:   "chmod-only op",
			event:  fsnotify.Event{Name: "/remote/versions.json", Op: fsnotify.Chmod},
			ignore: true,
		},
		{
			name:   "rename of wvb file",
			event:  fsnotify.Event{Name: "/remote/app_2.wvb", Op: fsnotify.Rename},
			ignore: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := shouldIgnoreEvent(tc.event)
			if got != tc.ignore {
				t.Errorf("shouldIgnoreEvent(%+v) = %v, want %v", tc.event, got, tc.ignore)
			}
		})
	}
}

func TestOnRemoteDirChangedUnloadsDescriptorAndBroadcasts(t *testing.T) {
	dir := t.TempDir()
	versionsPath := filepath.Join(dir, "versions.json")
	if err := os.WriteFile(versionsPath, []byte(`{"versions":{}}`), 0o644); err != nil {
		t.Fatalf("writing versions.json: %v", err)
	}

	source, err := wvbsource.New(wvbsource.Config{RemoteDir: dir})
	if err != nil {
		t.Fatalf("wvbsource.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Built directly rather than via newLiveReloadHub so the broadcast
	// channel can be read from this goroutine without racing run()'s
	// own consumer.
	hub := &liveReloadHub{
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan liveReloadMessage, 1),
		ctx:       make(chan struct{}),
	}

	s := &Server{
		source: source,
		hub:    hub,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}

	// Simulate an external process (a syncer, a deployment script)
	// writing versions.json directly, bypassing this process's
	// in-memory Versions state.
	if err := os.WriteFile(versionsPath, []byte(`{"versions":{"app":"1"}}`), 0o644); err != nil {
		t.Fatalf("rewriting versions.json: %v", err)
	}

	s.onRemoteDirChanged()

	select {
	case msg := <-hub.broadcast:
		if msg.Bundle != "app" {
			t.Errorf("broadcast bundle = %q, want %q", msg.Bundle, "app")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}
