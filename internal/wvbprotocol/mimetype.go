package wvbprotocol

import (
	"net/http"
	"strings"

	"github.com/wvbundle/wvb/internal/mimetable"
)

// ParseMimeType infers a path's content type, falling back to text/html
// for unrecognized extensions (matches browsers' TLD-guessing behavior
// for bare scheme://host requests).
func ParseMimeType(content []byte, path string) string {
	return ParseMimeTypeWithFallback(content, path, mimetable.HTML)
}

// ParseMimeTypeWithFallback infers path's content type from its
// extension first, then from content sniffing, then from fallback.
func ParseMimeTypeWithFallback(content []byte, path, fallback string) string {
	if mt, ok := mimetable.ByExtension(path); ok {
		return mt
	}

	// SVG content sniffs poorly (it's XML, easily confused with plain
	// text or other XML dialects), so skip sniffing and fall through.
	if !strings.HasSuffix(strings.ToLower(path), ".svg") {
		if sniffed := sniff(content); sniffed != "" {
			return sniffed
		}
	}

	return fallback
}

// sniff runs a content sniffer and returns "" when it can't do better
// than a generic plain-text/octet-stream guess.
func sniff(content []byte) string {
	mt := http.DetectContentType(content)
	base, _, _ := strings.Cut(mt, ";")
	base = strings.TrimSpace(base)
	if base == "" || base == "text/plain" || base == "application/octet-stream" {
		return ""
	}
	return mt
}
