// Package wvbprotocol implements the HTTP request/response state
// machine that serves bundle entries: URI resolution, method gating,
// MIME inference, and range/multipart framing.
package wvbprotocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/wvbundle/wvb/internal/wvb"
	"github.com/wvbundle/wvb/internal/wvbsource"
)

// Response is the protocol's output: a status, header set, and fully
// materialized body. Kept distinct from http.ResponseWriter so Handle
// stays a pure function, independently testable from ServeHTTP's wiring
// into net/http.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func newResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// BundleProtocol answers requests against a BundleSource. Every error
// that is not one of 404/405/416 surfaces from Handle as a typed Go
// error; only those three statuses are produced directly.
type BundleProtocol struct {
	source   *wvbsource.BundleSource
	resolver UriResolver
}

// New constructs a BundleProtocol with the default URI resolver.
func New(source *wvbsource.BundleSource) *BundleProtocol {
	return &BundleProtocol{source: source, resolver: DefaultUriResolver{}}
}

// WithUriResolver overrides the default URI resolution strategy.
func (p *BundleProtocol) WithUriResolver(r UriResolver) *BundleProtocol {
	p.resolver = r
	return p
}

// bundleNotFoundError is returned by Handle when the request URI names
// no bundle at all (as opposed to a path 404 within a known bundle).
// Handle itself never converts this to an HTTP status — ServeHTTP, the
// embedder, decides how.
type bundleNotFoundError struct{ uri string }

func (e *bundleNotFoundError) Error() string {
	return fmt.Sprintf("wvbprotocol: no bundle resolved from uri %q", e.uri)
}

// Handle runs the full request state machine and returns a Response.
// The returned error is non-nil only for failures that are not
// themselves protocol-visible statuses (404/405/416) — e.g. an unknown
// bundle name, a corrupt descriptor, or an I/O failure.
func (p *BundleProtocol) Handle(ctx context.Context, r *http.Request) (*Response, error) {
	// r.URL.Host is empty for an ordinary (non-proxy) incoming request;
	// the virtual host net/http parsed from the request line or the
	// Host header lands in r.Host instead. The resolver only ever reads
	// the Host portion of the URL, so reusing r.URL as-is except for
	// that field keeps ResolveBundle/ResolvePath working from a single
	// *url.URL without requiring every UriResolver to also special-case
	// r.Host.
	u := r.URL
	if u.Host == "" && r.Host != "" {
		u2 := *r.URL
		u2.Host = r.Host
		u = &u2
	}

	name, ok := p.resolver.ResolveBundle(u)
	if !ok {
		return nil, &bundleNotFoundError{uri: r.URL.String()}
	}
	path := p.resolver.ResolvePath(u)

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return newResponse(http.StatusMethodNotAllowed), nil
	}

	descriptor, err := p.source.LoadDescriptor(ctx, name)
	if err != nil {
		return nil, err
	}

	entry, ok := descriptor.GetEntry(path)
	if !ok {
		return newResponse(http.StatusNotFound), nil
	}

	resp := newResponse(http.StatusOK)
	for _, h := range entry.Headers {
		resp.Header.Add(h.Name, string(h.Value))
	}

	f, err := p.source.Reader(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := descriptor.GetData(ctx, f, path)
	if err != nil {
		return nil, err
	}

	contentType := entry.ContentType
	if contentType == "" {
		contentType = ParseMimeType(data, path)
	}
	resp.Header.Set("Content-Type", contentType)
	resp.Header.Set("Content-Length", strconv.FormatUint(entry.ContentLength, 10))

	if r.Method == http.MethodHead {
		return resp, nil
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		resp.Body = data
		return resp, nil
	}

	return p.handleRange(resp, data, entry, rangeHeader)
}

func (p *BundleProtocol) handleRange(resp *Response, data []byte, entry *wvb.IndexEntry, rangeHeader string) (*Response, error) {
	resp.Header.Set("Accept-Ranges", "bytes")
	resp.Header.Set("Access-Control-Expose-Headers", "content-range")

	size := int64(entry.ContentLength)
	ranges, err := parseRanges(rangeHeader, size)
	if err != nil {
		notSatisfiable := newResponse(http.StatusRequestedRangeNotSatisfiable)
		notSatisfiable.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		return notSatisfiable, nil
	}

	if len(ranges) == 1 {
		r := ranges[0]
		resp.Status = http.StatusPartialContent
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, size))
		resp.Header.Set("Content-Length", strconv.FormatInt(r.length(), 10))
		resp.Body = extractRange(data, r)
		return resp, nil
	}

	boundary := randomBoundary()
	resp.Status = http.StatusPartialContent
	resp.Header.Set("Content-Type", "multipart/byteranges; boundary="+boundary)
	resp.Header.Del("Content-Length")
	resp.Body = buildMultipartBody(data, ranges, entry.ContentType, size, boundary)
	return resp, nil
}

func extractRange(data []byte, r byteRange) []byte {
	size := int64(len(data))
	start, end := r.start, r.end
	if start > size {
		start = size
	}
	if end >= size {
		end = size - 1
	}
	out := make([]byte, r.length())
	if start <= end {
		copy(out, data[start:end+1])
	}
	return out
}

func buildMultipartBody(data []byte, ranges []byteRange, contentType string, size int64, boundary string) []byte {
	sep := "\r\n--" + boundary + "\r\n"

	var buf []byte
	for _, r := range ranges {
		buf = append(buf, sep...)
		buf = append(buf, fmt.Sprintf("Content-Type: %s\r\n", contentType)...)
		buf = append(buf, fmt.Sprintf("Content-Range: bytes %d-%d/%d\r\n", r.start, r.end, size)...)
		buf = append(buf, "\r\n"...)
		buf = append(buf, extractRange(data, r)...)
	}
	buf = append(buf, sep...)
	return buf
}

func randomBoundary() string {
	return uuid.New().String()
}

// ServeHTTP adapts Handle to net/http, mapping a source-level
// bundle-not-found error (unknown bundle name or missing file) to 404
// and any other non-protocol-visible error to 500. This mapping is the
// embedder's decision the protocol layer itself does not make.
func (p *BundleProtocol) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := p.Handle(r.Context(), r)
	var srcErr *wvbsource.Error
	if errors.As(err, &srcErr) && srcErr.Kind == wvbsource.KindBundleNotFound {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}
