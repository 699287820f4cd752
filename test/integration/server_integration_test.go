//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wvbundle/wvb/internal/server"
	"github.com/wvbundle/wvb/internal/wvb"
	"github.com/wvbundle/wvb/internal/wvbsource"
)

// writeTestBundle builds a minimal single-entry .wvb file at name_version.wvb
// under dir and records it as the active version in dir/versions.json.
func writeTestBundle(t *testing.T, dir, name, version string) {
	t.Helper()

	b := wvb.NewBuilder()
	b.InsertEntry("/index.html", []byte("<html><body>hello</body></html>"), nil)
	built := b.Build(wvb.BuildOptions{})

	path := filepath.Join(dir, name+"_"+version+".wvb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating bundle file: %v", err)
	}
	defer f.Close()
	if _, err := wvb.WriteBundle(f, built); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	versionsPath := filepath.Join(dir, "versions.json")
	raw := []byte(`{"versions":{"` + name + `":"` + version + `"}}`)
	if err := os.WriteFile(versionsPath, raw, 0o644); err != nil {
		t.Fatalf("writing versions.json: %v", err)
	}
}

// TestServerIntegration verifies the server starts, serves bundle
// content over HTTP, and handles live-reload WebSocket connections.
//
// Note: this test cannot run in parallel with others on the same
// hardcoded port.
func TestServerIntegration(t *testing.T) {
	dir := t.TempDir()
	writeTestBundle(t, dir, "app", "1")

	source, err := wvbsource.New(wvbsource.Config{BuiltinDir: dir})
	if err != nil {
		t.Fatalf("wvbsource.New: %v", err)
	}

	srv := server.NewServer(server.Config{Addr: "127.0.0.1:18080", Source: source})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	default:
	}

	baseURL := "http://127.0.0.1:18080"
	defer srv.Shutdown()

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/_wvb/health")
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("health check status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var healthResp struct {
			Status  string   `json:"status"`
			Bundles []string `json:"bundles"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
			t.Fatalf("failed to decode health response: %v", err)
		}
		if healthResp.Status != "ok" {
			t.Errorf("health status = %q, want %q", healthResp.Status, "ok")
		}
	})

	t.Run("about endpoint", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/_wvb/about")
		if err != nil {
			t.Fatalf("about request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("bundle content served by host", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		req.Host = "app.bundles.example"

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("bundle request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
			t.Errorf("Content-Type = %q, want %q", ct, "text/html")
		}
	})

	t.Run("unknown bundle returns 404", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		req.Host = "does-not-exist.bundles.example"

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("live-reload websocket connection", func(t *testing.T) {
		wsURL := "ws://127.0.0.1:18080/_wvb/livereload"

		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("websocket dial failed: %v (status: %v)", err, resp)
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			t.Errorf("failed to send ping: %v", err)
		}
		// The server answers pings automatically via gorilla/websocket's
		// default pong handler; we only verify the round trip doesn't error.
	})

	t.Run("rate limiting", func(t *testing.T) {
		time.Sleep(time.Second)

		client := &http.Client{Timeout: 2 * time.Second}

		var successCount, rateLimitedCount int
		for i := 0; i < 800; i++ {
			req, err := http.NewRequest(http.MethodGet, baseURL+"/", nil)
			if err != nil {
				t.Fatalf("building request %d: %v", i, err)
			}
			req.Host = "app.bundles.example"

			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("request %d failed: %v", i, err)
			}
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				successCount++
			case http.StatusTooManyRequests:
				rateLimitedCount++
			}
		}

		if rateLimitedCount == 0 {
			t.Log("warning: no requests were rate limited (may indicate rate limiting is disabled)")
		}
		t.Logf("requests: %d successful, %d rate limited", successCount, rateLimitedCount)
	})
}
