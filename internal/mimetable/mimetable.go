// Package mimetable holds the fixed extension-to-MIME-type table shared
// by the bundle builder (which stamps a content type on every entry at
// pack time) and the serving protocol (which falls back to content
// sniffing when the extension is unknown).
package mimetable

import (
	"path"
	"strings"
)

// Well-known MIME type strings. Kept as constants so builder and
// protocol code can compare by value instead of by literal string.
const (
	CSS         = "text/css"
	CSV         = "text/csv"
	HTML        = "text/html"
	ICO         = "image/vnd.microsoft.icon"
	JS          = "text/javascript"
	JSON        = "application/json"
	JSONLD      = "application/ld+json"
	MP4         = "video/mp4"
	OctetStream = "application/octet-stream"
	RTF         = "application/rtf"
	SVG         = "image/svg+xml"
	Plain       = "text/plain"
)

// ByExtension returns the MIME type for a URI or filesystem path based
// solely on its extension, and whether the extension was recognized.
func ByExtension(p string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	switch ext {
	case "bin":
		return OctetStream, true
	case "css", "less", "sass", "styl":
		return CSS, true
	case "csv":
		return CSV, true
	case "html", "htm":
		return HTML, true
	case "ico":
		return ICO, true
	case "js", "mjs":
		return JS, true
	case "json":
		return JSON, true
	case "jsonld":
		return JSONLD, true
	case "mp4":
		return MP4, true
	case "rtf":
		return RTF, true
	case "svg":
		return SVG, true
	case "txt":
		return Plain, true
	default:
		return "", false
	}
}

// HasExtension reports whether p's final path segment contains a dot,
// i.e. whether it looks like it names a file rather than a directory.
func HasExtension(p string) bool {
	base := path.Base(p)
	return strings.Contains(base, ".")
}
