package server

import (
	"bytes"
	"net/http"

	"github.com/yuin/goldmark"
)

// aboutDoc is rendered to HTML on every request to /_wvb/about rather
// than cached, since it's a diagnostic route hit rarely enough that
// re-rendering cost doesn't matter.
const aboutDoc = `# wvb server

This server answers requests against one or more Webview Bundles.

- ` + "`GET /_wvb/health`" + ` reports the active bundle versions.
- ` + "`GET /_wvb/livereload`" + ` upgrades to a WebSocket that announces
  bundle name changes as new versions are activated.
- Every other request is resolved against the configured bundle source:
  the first label of the request host selects the bundle, and the
  request path selects an entry within it.
`

// handleAbout renders a short Markdown description of this server's
// routes as HTML, for operators poking at a running instance.
func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(aboutDoc), &buf); err != nil {
		s.logger.Error("rendering about page failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
