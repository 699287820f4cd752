package wvbprotocol

import (
	"net/url"
	"strings"
)

// UriResolver maps a request URI onto a bundle name and an in-bundle
// path. The protocol layer holds it as a replaceable strategy.
type UriResolver interface {
	// ResolveBundle extracts the bundle name from u. Returns false if
	// the URI carries no host, which the protocol surfaces as a
	// BundleNotFound error.
	ResolveBundle(u *url.URL) (string, bool)
	ResolvePath(u *url.URL) string
}

// DefaultUriResolver treats the host's first dot-separated label as the
// bundle name (app.wvb -> app) and appends index.html to directory-style
// paths.
type DefaultUriResolver struct{}

func (DefaultUriResolver) ResolveBundle(u *url.URL) (string, bool) {
	host := u.Hostname()
	if host == "" {
		return "", false
	}
	name, _, _ := strings.Cut(host, ".")
	return name, true
}

func (DefaultUriResolver) ResolvePath(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	if strings.HasSuffix(p, "/") {
		return p + "index.html"
	}
	last := p[strings.LastIndexByte(p, '/')+1:]
	if last != "" && !strings.Contains(last, ".") {
		return p + "/index.html"
	}
	return p
}
