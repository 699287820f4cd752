package wvbsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wvbundle/wvb/internal/wvb"
)

// Config configures a BundleSource. Either directory may be empty to
// disable that layer entirely.
type Config struct {
	BuiltinDir string
	RemoteDir  string

	// VersionSelector decides between a builtin and remote version of
	// the same bundle when both are present. Defaults to LastModified.
	VersionSelector VersionSelector

	// ForceUseRemote, when true, always prefers the remote layer's
	// version over the builtin layer's when the remote layer has one
	// at all, bypassing the selector. This models deployments that
	// want remote-delivered bundles to always win regardless of
	// timestamps (e.g. a staged rollout being forced live).
	ForceUseRemote bool

	ReadOptions wvb.ReadOptions
}

// BundleSource resolves bundle names to files across a builtin
// (read-only) and remote (read-write) layer and caches decoded
// descriptors behind a single-flight load.
type BundleSource struct {
	cfg Config

	builtinVersions *Versions
	remoteVersions  *Versions

	group singleflight.Group

	mu          sync.RWMutex
	descriptors map[string]*wvb.Descriptor
}

// New constructs a BundleSource. Missing builtin versions.json is
// fatal only if BuiltinDir is set (mirrors the builtin layer's
// read-only contract); a missing remote versions.json is never fatal.
func New(cfg Config) (*BundleSource, error) {
	if cfg.VersionSelector == nil {
		cfg.VersionSelector = LastModified
	}

	s := &BundleSource{cfg: cfg, descriptors: make(map[string]*wvb.Descriptor)}

	if cfg.BuiltinDir != "" {
		v, err := Load(filepath.Join(cfg.BuiltinDir, "versions.json"), ReadOnly)
		if err != nil {
			return nil, fmt.Errorf("wvbsource: loading builtin versions registry: %w", err)
		}
		s.builtinVersions = v
	}

	if cfg.RemoteDir != "" {
		v, err := LoadOrEmpty(filepath.Join(cfg.RemoteDir, "versions.json"), ReadWrite)
		if err != nil {
			return nil, fmt.Errorf("wvbsource: loading remote versions registry: %w", err)
		}
		s.remoteVersions = v
	}

	return s, nil
}

// RemoteVersions exposes the writable remote-layer versions registry,
// or nil if no remote layer is configured. Used by the remote-layer
// syncer after a download to activate a new version.
func (s *BundleSource) RemoteVersions() *Versions {
	return s.remoteVersions
}

// GetVersion resolves the active (layer, version) pair for name. It
// consults the remote layer first; if absent, falls back to builtin.
// When both layers expose a version, the configured VersionSelector
// decides, unless ForceUseRemote is set, in which case remote always
// wins when present.
func (s *BundleSource) GetVersion(name string) (Layer, string, bool) {
	remoteVersion, remoteOK := s.layerVersion(s.remoteVersions, name)
	builtinVersion, builtinOK := s.layerVersion(s.builtinVersions, name)

	switch {
	case remoteOK && builtinOK:
		if s.cfg.ForceUseRemote {
			return LayerRemote, remoteVersion, true
		}
		builtinInfo := s.versionInfo(LayerBuiltin, name, builtinVersion)
		remoteInfo := s.versionInfo(LayerRemote, name, remoteVersion)
		layer, version := s.cfg.VersionSelector.Select(&builtinInfo, &remoteInfo)
		return layer, version, true
	case remoteOK:
		return LayerRemote, remoteVersion, true
	case builtinOK:
		return LayerBuiltin, builtinVersion, true
	default:
		return 0, "", false
	}
}

func (s *BundleSource) layerVersion(v *Versions, name string) (string, bool) {
	if v == nil {
		return "", false
	}
	return v.GetVersion(name)
}

func (s *BundleSource) versionInfo(layer Layer, name, version string) VersionInfo {
	info := VersionInfo{Version: version}
	if fi, err := os.Stat(s.FilePath(layer, name, version)); err == nil {
		info.ModTime = fi.ModTime()
	}
	return info
}

// FilePath derives a bundle's on-disk path within the layer that
// supplied its version: layer_dir/{name}_{version}.wvb.
func (s *BundleSource) FilePath(layer Layer, name, version string) string {
	dir := s.cfg.BuiltinDir
	if layer == LayerRemote {
		dir = s.cfg.RemoteDir
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.wvb", name, version))
}

// Reader opens a fresh, independently-seekable handle on name's
// resolved file. Returns a KindBundleNotFound *Error, not a generic
// I/O error, when the version is unknown or the file is missing.
func (s *BundleSource) Reader(name string) (*os.File, error) {
	layer, version, ok := s.GetVersion(name)
	if !ok {
		return nil, &Error{Kind: KindBundleNotFound, Name: name}
	}

	path := s.FilePath(layer, name, version)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindBundleNotFound, Name: name, Err: err}
		}
		return nil, &Error{Kind: KindIO, Name: name, Err: err}
	}
	return f, nil
}

// Fetch always hits the filesystem, decoding the whole bundle into
// memory. Unlike LoadDescriptor, it is never cached.
func (s *BundleSource) Fetch(ctx context.Context, name string) (*wvb.Bundle, error) {
	f, err := s.Reader(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := wvb.ReadBundleContext(ctx, f, s.cfg.ReadOptions)
	if err != nil {
		return nil, wrapDecodeErr(name, err)
	}
	return b, nil
}

// FetchDescriptor always hits the filesystem, decoding only the
// header and index. Unlike LoadDescriptor, it is never cached.
func (s *BundleSource) FetchDescriptor(ctx context.Context, name string) (*wvb.Descriptor, error) {
	f, err := s.Reader(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := wvb.ReadDescriptorContext(ctx, f, s.cfg.ReadOptions)
	if err != nil {
		return nil, wrapDecodeErr(name, err)
	}
	return d, nil
}

// LoadDescriptor is the cached, single-flight entry point the serving
// path uses. At most one descriptor-load I/O is in flight per name
// across all concurrent callers; two loads unseparated by an
// UnloadDescriptor return descriptors that compare equal by identity.
func (s *BundleSource) LoadDescriptor(ctx context.Context, name string) (*wvb.Descriptor, error) {
	if d, ok := s.cachedDescriptor(name); ok {
		return d, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		if d, ok := s.cachedDescriptor(name); ok {
			return d, nil
		}
		d, err := s.FetchDescriptor(ctx, name)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.descriptors[name] = d
		s.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*wvb.Descriptor), nil
}

func (s *BundleSource) cachedDescriptor(name string) (*wvb.Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[name]
	return d, ok
}

// UnloadDescriptor evicts name's cached descriptor. Callers that
// already hold a handle to the evicted descriptor are unaffected; the
// next LoadDescriptor call retries initialization from disk.
func (s *BundleSource) UnloadDescriptor(name string) {
	s.mu.Lock()
	delete(s.descriptors, name)
	s.mu.Unlock()
}

// WriteBundle writes bundle to the remote layer's computed path for
// (name, version). It does not touch the descriptor cache — callers
// that activate a new version must UnloadDescriptor(name) themselves.
func (s *BundleSource) WriteBundle(name, version string, bundle *wvb.Bundle) error {
	if s.cfg.RemoteDir == "" {
		return fmt.Errorf("wvbsource: no remote layer configured")
	}
	path := s.FilePath(LayerRemote, name, version)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("wvbsource: creating remote directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wvbsource: creating bundle file: %w", err)
	}
	defer f.Close()
	if _, err := wvb.WriteBundle(f, bundle); err != nil {
		return fmt.Errorf("wvbsource: writing bundle: %w", err)
	}
	return nil
}

func wrapDecodeErr(name string, err error) error {
	return &Error{Kind: KindIO, Name: name, Err: err}
}
