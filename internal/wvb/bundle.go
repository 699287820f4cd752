package wvb

import (
	"context"
	"io"
)

// EntryBlobOffset returns the absolute on-disk byte position of an
// entry's compressed payload, given the absolute offset at which the
// entry blob region begins (header.end_offset + index_size + 4).
func EntryBlobOffset(blobRegionStart int64, entry *IndexEntry) int64 {
	return blobRegionStart + int64(entry.Offset)
}

// BlobRegionStart computes the absolute offset of the first byte after
// the index and its trailing checksum, i.e. where entry blobs begin.
func BlobRegionStart(indexSize uint32) int64 {
	return HeaderEnd + int64(indexSize) + checksumSize
}

// Bundle is a whole bundle held in memory: header, index, and the
// fully-encoded entry blob region (each entry's compressed payload
// followed by its checksum, laid out exactly as it would appear on
// disk). It owns its data buffer exclusively.
type Bundle struct {
	Header             Header
	Index              *Index
	IndexBytes         []byte
	Data               []byte
	HeaderChecksumSeed uint32
	IndexChecksumSeed  uint32
	DataChecksumSeed   uint32
}

// Descriptor returns a Descriptor view over the bundle's header and
// index, suitable for sharing with concurrent readers that operate
// against an external file handle (see BundleSource).
func (b *Bundle) Descriptor() *Descriptor {
	return &Descriptor{header: b.Header, index: b.Index}
}

// GetData returns the decompressed bytes for path, decompressing from
// the in-memory data buffer. ok is false if path is not indexed.
func (b *Bundle) GetData(path string) (data []byte, ok bool, err error) {
	entry, found := b.Index.Get(path)
	if !found {
		return nil, false, nil
	}
	blob, storedChecksum, err := b.rawEntry(entry)
	if err != nil {
		return nil, true, err
	}
	if want := checksum(b.DataChecksumSeed, blob); want != storedChecksum {
		return nil, true, newError(KindChecksumMismatch, "entry checksum mismatch", nil)
	}
	out, err := decompressBytes(blob)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}

// GetDataChecksum returns the stored checksum for path's compressed
// payload without decompressing it. ok is false if path is not
// indexed.
func (b *Bundle) GetDataChecksum(path string) (sum uint32, ok bool) {
	entry, found := b.Index.Get(path)
	if !found {
		return 0, false
	}
	_, storedChecksum, err := b.rawEntry(entry)
	if err != nil {
		return 0, false
	}
	return storedChecksum, true
}

func (b *Bundle) rawEntry(entry *IndexEntry) (blob []byte, storedChecksum uint32, err error) {
	start := entry.Offset
	end := start + entry.Length
	if uint64(end)+checksumSize > uint64(len(b.Data)) {
		return nil, 0, newError(KindDecode, "entry extends past data region", nil)
	}
	blob = b.Data[start:end]
	storedChecksum = beUint32(b.Data[end : end+checksumSize])
	return blob, storedChecksum, nil
}

// Descriptor is the lightweight, shareable view of a bundle's metadata
// used by the serving path. Unlike Bundle it never owns a reader: each
// call to GetData is handed one by the caller, so many goroutines can
// share a single Descriptor while reading through independent file
// handles.
type Descriptor struct {
	header Header
	index  *Index
}

// NewDescriptor builds a Descriptor directly from decoded metadata,
// used by codec.ReadDescriptor.
func NewDescriptor(header Header, index *Index) *Descriptor {
	return &Descriptor{header: header, index: index}
}

func (d *Descriptor) Header() Header    { return d.header }
func (d *Descriptor) Index() *Index     { return d.index }

// GetEntry returns the index entry for path, if any.
func (d *Descriptor) GetEntry(path string) (*IndexEntry, bool) {
	return d.index.Get(path)
}

// ContainsPath reports whether path is indexed.
func (d *Descriptor) ContainsPath(path string) bool {
	return d.index.Contains(path)
}

// GetData seeks r to path's absolute blob offset, reads exactly
// Length bytes plus the trailing checksum, verifies it, and returns
// the decompressed payload. r is never retained; the caller owns its
// lifetime.
func (d *Descriptor) GetData(ctx context.Context, r io.ReadSeeker, path string) ([]byte, error) {
	return d.GetDataSeeded(ctx, r, path, DefaultChecksumSeed)
}

// GetDataSeeded is GetData with an explicit entry checksum seed.
func (d *Descriptor) GetDataSeeded(ctx context.Context, r io.ReadSeeker, path string, dataChecksumSeed uint32) ([]byte, error) {
	entry, ok := d.index.Get(path)
	if !ok {
		return nil, newError(KindNotFound, "path not in index: "+path, nil)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	blobStart := EntryBlobOffset(BlobRegionStart(d.header.IndexSize), entry)
	if _, err := r.Seek(blobStart, io.SeekStart); err != nil {
		return nil, newError(KindIO, "seeking to entry blob", err)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	buf := make([]byte, entry.Length+checksumSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, newError(KindIO, "reading entry blob", err)
	}

	blob := buf[:entry.Length]
	storedChecksum := beUint32(buf[entry.Length:])
	if want := checksum(dataChecksumSeed, blob); want != storedChecksum {
		return nil, newError(KindChecksumMismatch, "entry checksum mismatch for "+path, nil)
	}

	return decompressBytes(blob)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// checkContext allows callers that want cooperative-suspension
// semantics to cancel between I/O steps; nil ctx (the plain
// synchronous path) never errors.
func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return newError(KindIO, "context canceled", ctx.Err())
	default:
		return nil
	}
}
