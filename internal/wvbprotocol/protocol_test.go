package wvbprotocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wvbundle/wvb/internal/wvb"
	"github.com/wvbundle/wvb/internal/wvbsource"
)

func newTestProtocol(t *testing.T) *BundleProtocol {
	t.Helper()
	dir := t.TempDir()

	raw, err := json.Marshal(struct {
		Versions map[string]string `json:"versions"`
	}{Versions: map[string]string{"app": "1.0.0"}})
	if err != nil {
		t.Fatalf("marshal versions.json: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "versions.json"), raw, 0o644); err != nil {
		t.Fatalf("write versions.json: %v", err)
	}

	// Paths are stored with a leading slash to match what
	// DefaultUriResolver.ResolvePath always produces from a request URI.
	b := wvb.NewBuilder()
	b.InsertEntry("/index.html", []byte("<html>home</html>"), nil)
	b.InsertEntry("/assets/app.js", []byte("console.log('hi');"), nil)
	b.InsertEntry("/range.bin", make([]byte, 1000), nil)
	built := b.Build(wvb.BuildOptions{})

	f, err := os.Create(filepath.Join(dir, "app_1.0.0.wvb"))
	if err != nil {
		t.Fatalf("create bundle file: %v", err)
	}
	defer f.Close()
	if _, err := wvb.WriteBundle(f, built); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	src, err := wvbsource.New(wvbsource.Config{BuiltinDir: dir})
	if err != nil {
		t.Fatalf("wvbsource.New: %v", err)
	}
	return New(src)
}

func newTestRequest(t *testing.T, method, uri string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, uri, nil)
	return r
}

func TestHandleResolvesIndexHTML(t *testing.T) {
	p := newTestProtocol(t)
	resp, err := p.Handle(context.Background(), newTestRequest(t, http.MethodGet, "https://app.wvb/"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if resp.Header.Get("Content-Type") != "text/html" {
		t.Fatalf("content-type = %q", resp.Header.Get("Content-Type"))
	}
	if string(resp.Body) != "<html>home</html>" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestHandleNotFound(t *testing.T) {
	p := newTestProtocol(t)
	resp, err := p.Handle(context.Background(), newTestRequest(t, http.MethodGet, "https://app.wvb/missing.html"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Status)
	}
}

// TestHandleResolvesBundleFromHostHeader exercises the path a real
// (non-proxy) server request takes: an origin-form target plus a Host
// header, where r.URL.Host is empty and only r.Host carries the
// virtual host net/http parsed from the request line.
func TestHandleResolvesBundleFromHostHeader(t *testing.T) {
	p := newTestProtocol(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "app.bundles.example"
	if r.URL.Host != "" {
		t.Fatalf("test precondition failed: r.URL.Host = %q, want empty", r.URL.Host)
	}

	resp, err := p.Handle(context.Background(), r)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != "<html>home</html>" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestHandleBundleNotFound(t *testing.T) {
	p := newTestProtocol(t)
	_, err := p.Handle(context.Background(), newTestRequest(t, http.MethodGet, "https://does-not-exist.wvb/index.html"))
	if err == nil {
		t.Fatal("expected error for unresolvable bundle")
	}
}

func TestHandleMethodNotAllowed(t *testing.T) {
	p := newTestProtocol(t)
	resp, err := p.Handle(context.Background(), newTestRequest(t, http.MethodPost, "https://app.wvb/index.html"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.Status)
	}
}

func TestHandleHeadHasNoBody(t *testing.T) {
	p := newTestProtocol(t)
	resp, err := p.Handle(context.Background(), newTestRequest(t, http.MethodHead, "https://app.wvb/index.html"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK || len(resp.Body) != 0 {
		t.Fatalf("status=%d body=%q, want 200 and empty body", resp.Status, resp.Body)
	}
	if resp.Header.Get("Content-Length") != "17" {
		t.Fatalf("content-length = %q, want 17", resp.Header.Get("Content-Length"))
	}
}

func TestHandleContentTypeByExtension(t *testing.T) {
	p := newTestProtocol(t)
	resp, err := p.Handle(context.Background(), newTestRequest(t, http.MethodGet, "https://app.wvb/assets/app.js"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Header.Get("Content-Type") != "text/javascript" {
		t.Fatalf("content-type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestHandleSingleRange(t *testing.T) {
	p := newTestProtocol(t)
	req := newTestRequest(t, http.MethodGet, "https://app.wvb/range.bin")
	req.Header.Set("Range", "bytes=0-99")
	resp, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.Status)
	}
	if resp.Header.Get("Content-Range") != "bytes 0-99/1000" {
		t.Fatalf("content-range = %q", resp.Header.Get("Content-Range"))
	}
	if len(resp.Body) != 100 {
		t.Fatalf("body length = %d, want 100", len(resp.Body))
	}
}

func TestHandleMultiRange(t *testing.T) {
	p := newTestProtocol(t)
	req := newTestRequest(t, http.MethodGet, "https://app.wvb/range.bin")
	req.Header.Set("Range", "bytes=0-99,200-299")
	resp, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.Status)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/byteranges; boundary=") {
		t.Fatalf("content-type = %q", ct)
	}
	boundary := strings.TrimPrefix(ct, "multipart/byteranges; boundary=")
	parts := strings.Count(string(resp.Body), "--"+boundary)
	if parts != 3 { // opening x2 + closing
		t.Fatalf("expected boundary to appear 3 times, got %d in %q", parts, resp.Body)
	}
}

func TestHandleRangeNotSatisfiable(t *testing.T) {
	p := newTestProtocol(t)
	req := newTestRequest(t, http.MethodGet, "https://app.wvb/range.bin")
	req.Header.Set("Range", "bytes=5000-6000")
	resp, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", resp.Status)
	}
	if resp.Header.Get("Content-Range") != "bytes */1000" {
		t.Fatalf("content-range = %q", resp.Header.Get("Content-Range"))
	}
}
