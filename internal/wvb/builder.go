package wvb

import (
	"github.com/wvbundle/wvb/internal/mimetable"
)

// stagedEntry holds a builder's in-memory record for one path.
// Compression happens eagerly at insert time so Build can report the
// exact compressed length without buffering the payload twice.
type stagedEntry struct {
	compressed    []byte
	contentLength uint64
	contentType   string
	headers       []HeaderPair
}

// Builder stages an insertion-ordered set of logical paths for a
// bundle before encoding it. It is not safe for concurrent use by
// multiple goroutines.
type Builder struct {
	order  []string
	staged map[string]*stagedEntry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{staged: make(map[string]*stagedEntry)}
}

// InsertEntry compresses data and stages it under path, reporting
// whether it replaced a previously staged entry at the same path. The
// content type is inferred from path's extension, falling back to
// application/octet-stream, matching the protocol's own MIME
// inference table so an entry's stored type is never out of step with
// how it would be served.
func (b *Builder) InsertEntry(path string, data []byte, headers []HeaderPair) bool {
	contentType, ok := mimetable.ByExtension(path)
	if !ok {
		contentType = mimetable.OctetStream
	}

	_, replaced := b.staged[path]
	if !replaced {
		b.order = append(b.order, path)
	}

	b.staged[path] = &stagedEntry{
		compressed:    compressBytes(data),
		contentLength: uint64(len(data)),
		contentType:   contentType,
		headers:       headers,
	}
	return replaced
}

// RemoveEntry removes the staged entry at path, reporting whether it
// existed.
func (b *Builder) RemoveEntry(path string) bool {
	if _, ok := b.staged[path]; !ok {
		return false
	}
	delete(b.staged, path)
	for i, p := range b.order {
		if p == path {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether path is currently staged.
func (b *Builder) Contains(path string) bool {
	_, ok := b.staged[path]
	return ok
}

// EntryPaths returns all staged paths in insertion order.
func (b *Builder) EntryPaths() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// BuildOptions configures the checksum seeds embedded in a built
// bundle. Each defaults to DefaultChecksumSeed (0) if left unset.
type BuildOptions struct {
	HeaderChecksumSeed uint32
	IndexChecksumSeed  uint32
	DataChecksumSeed   uint32
}

// Build renders every staged entry into a complete Bundle: it computes
// each entry's offset with a cursor advanced by compressed_length+4
// per entry, writes the entry blob region (compressed payload followed
// by its checksum), encodes the index, and finally the header with
// the resulting index size.
func (b *Builder) Build(opts BuildOptions) *Bundle {
	index := NewIndex()
	data := make([]byte, 0, 4096)

	var cursor uint64
	for _, path := range b.order {
		staged := b.staged[path]

		sum := checksum(opts.DataChecksumSeed, staged.compressed)
		offset := cursor

		data = append(data, staged.compressed...)
		data = append(data, putChecksum(sum)...)
		cursor += uint64(len(staged.compressed)) + checksumSize

		index.Insert(path, IndexEntry{
			Offset:        uint32(offset),
			Length:        uint32(len(staged.compressed)),
			ContentLength: staged.contentLength,
			ContentType:   staged.contentType,
			Headers:       staged.headers,
		})
	}

	indexBytes := EncodeIndex(index)

	header := Header{
		Version:   Version1,
		IndexSize: uint32(len(indexBytes)),
	}

	return &Bundle{
		Header:             header,
		Index:              index,
		IndexBytes:         indexBytes,
		Data:               data,
		HeaderChecksumSeed: opts.HeaderChecksumSeed,
		IndexChecksumSeed:  opts.IndexChecksumSeed,
		DataChecksumSeed:   opts.DataChecksumSeed,
	}
}
