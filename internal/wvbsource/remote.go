package wvbsource

import (
	"context"
	"fmt"

	"github.com/wvbundle/wvb/internal/wvb"
)

// RemoteErrorKind partitions errors a Remote backend can surface.
type RemoteErrorKind int

const (
	RemoteNotFound RemoteErrorKind = iota
	RemoteForbidden
	RemoteHTTP
	RemoteNetwork
	RemoteInvalidConfig
)

func (k RemoteErrorKind) String() string {
	switch k {
	case RemoteNotFound:
		return "not_found"
	case RemoteForbidden:
		return "forbidden"
	case RemoteHTTP:
		return "http"
	case RemoteNetwork:
		return "network"
	case RemoteInvalidConfig:
		return "invalid_config"
	default:
		return "unknown"
	}
}

// RemoteError is the error type Remote implementations should return.
type RemoteError struct {
	Kind   RemoteErrorKind
	Status int // meaningful when Kind == RemoteHTTP
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Kind == RemoteHTTP {
		return fmt.Sprintf("wvbsource: remote: http %d", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("wvbsource: remote: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("wvbsource: remote: %s", e.Kind)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// BundleInfo is the metadata a Remote reports about a bundle version,
// independent of its content.
type BundleInfo struct {
	Name      string
	Version   string
	ETag      string
	Integrity string
	Signature []byte
}

// Remote is the contract the core consumes for a remote bundle store.
// No concrete backend (S3, a CDN, a registry API) is implemented here
// — only the shape BundleSource and the remote-layer syncer program
// against. A concrete implementation lives outside this module.
type Remote interface {
	ListBundles(ctx context.Context) ([]string, error)
	GetInfo(ctx context.Context, name string) (BundleInfo, error)
	Download(ctx context.Context, name string) (BundleInfo, *wvb.Bundle, []byte, error)
	DownloadVersion(ctx context.Context, name, version string) (BundleInfo, *wvb.Bundle, []byte, error)
}

// IntegrityChecker verifies a downloaded bundle's raw bytes against an
// opaque integrity string reported alongside it (e.g. a subresource
// integrity hash).
type IntegrityChecker interface {
	Check(integrity string, data []byte) error
}

// SignatureVerifier verifies a signature over a message associated
// with a bundle (e.g. its manifest), independent of integrity
// checking.
type SignatureVerifier interface {
	Verify(bundle *wvb.Bundle, message, signature []byte) bool
}
