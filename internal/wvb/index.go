package wvb

import (
	"encoding/binary"
	"io"
)

// HeaderPair is a single stored response header on an index entry.
// Value is a byte slice, not a string, because the format does not
// constrain header values to UTF-8.
type HeaderPair struct {
	Name  string
	Value []byte
}

// IndexEntry describes one bundled path. Offset and Length locate the
// compressed payload within the entry blob region (see
// EntryBlobOffset). ContentLength and ContentType are stamped at pack
// time so the serving protocol can set Content-Length without first
// decompressing the entry.
type IndexEntry struct {
	Offset        uint32
	Length        uint32
	ContentLength uint64
	ContentType   string
	Headers       []HeaderPair
}

// Index is an insertion-ordered mapping of logical path to IndexEntry.
// Ordering is preserved across a single build/decode cycle but is not
// guaranteed to match any other build of the same logical content.
type Index struct {
	order   []string
	entries map[string]*IndexEntry
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*IndexEntry)}
}

// Insert adds or replaces the entry at path, reporting whether it
// replaced an existing entry.
func (idx *Index) Insert(path string, entry IndexEntry) bool {
	_, replaced := idx.entries[path]
	if !replaced {
		idx.order = append(idx.order, path)
	}
	e := entry
	idx.entries[path] = &e
	return replaced
}

// Remove deletes the entry at path, reporting whether it existed.
func (idx *Index) Remove(path string) bool {
	if _, ok := idx.entries[path]; !ok {
		return false
	}
	delete(idx.entries, path)
	for i, p := range idx.order {
		if p == path {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the entry at path, if any.
func (idx *Index) Get(path string) (*IndexEntry, bool) {
	e, ok := idx.entries[path]
	return e, ok
}

// Contains reports whether path is present in the index.
func (idx *Index) Contains(path string) bool {
	_, ok := idx.entries[path]
	return ok
}

// Paths returns all indexed paths in insertion order.
func (idx *Index) Paths() []string {
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// IndexWriteOptions configures index encoding.
type IndexWriteOptions struct {
	ChecksumSeed uint32
}

// IndexReadOptions configures index decoding.
type IndexReadOptions struct {
	ChecksumSeed   uint32
	VerifyChecksum bool
}

// DefaultIndexReadOptions returns options with checksum verification
// enabled.
func DefaultIndexReadOptions() IndexReadOptions {
	return IndexReadOptions{ChecksumSeed: DefaultChecksumSeed, VerifyChecksum: true}
}

// EncodeIndex renders idx to its self-delimiting binary form. All
// integers are big-endian; strings and byte sequences are length
// prefixed with a fixed uint32 (chosen once, fixed across versions —
// the format favors a simple fixed-width prefix over a varint since
// index sizes are bounded well under 4 GiB in practice).
//
// Wire shape:
//
//	uint32         entry_count
//	entry_count ×  {
//	  uint32       path_len;       path_len bytes of UTF-8 path
//	  uint32       offset
//	  uint32       length
//	  uint64       content_length
//	  uint32       content_type_len; content_type_len bytes
//	  uint32       header_count
//	  header_count × {
//	    uint32     name_len;  name_len bytes
//	    uint32     value_len; value_len bytes
//	  }
//	}
func EncodeIndex(idx *Index) []byte {
	buf := make([]byte, 0, 256)
	buf = appendUint32(buf, uint32(len(idx.order)))
	for _, path := range idx.order {
		e := idx.entries[path]
		buf = appendString(buf, path)
		buf = appendUint32(buf, e.Offset)
		buf = appendUint32(buf, e.Length)
		buf = appendUint64(buf, e.ContentLength)
		buf = appendString(buf, e.ContentType)
		buf = appendUint32(buf, uint32(len(e.Headers)))
		for _, h := range e.Headers {
			buf = appendString(buf, h.Name)
			buf = appendBytes(buf, h.Value)
		}
	}
	return buf
}

// DecodeIndex parses the self-delimiting encoding produced by
// EncodeIndex.
func DecodeIndex(data []byte) (*Index, error) {
	dec := &decoder{buf: data}

	count, err := dec.uint32()
	if err != nil {
		return nil, newError(KindDecode, "reading entry count", err)
	}

	idx := NewIndex()
	for i := uint32(0); i < count; i++ {
		path, err := dec.string()
		if err != nil {
			return nil, newError(KindDecode, "reading entry path", err)
		}
		offset, err := dec.uint32()
		if err != nil {
			return nil, newError(KindDecode, "reading entry offset", err)
		}
		length, err := dec.uint32()
		if err != nil {
			return nil, newError(KindDecode, "reading entry length", err)
		}
		contentLength, err := dec.uint64()
		if err != nil {
			return nil, newError(KindDecode, "reading entry content length", err)
		}
		contentType, err := dec.string()
		if err != nil {
			return nil, newError(KindDecode, "reading entry content type", err)
		}
		headerCount, err := dec.uint32()
		if err != nil {
			return nil, newError(KindDecode, "reading header count", err)
		}
		headers := make([]HeaderPair, 0, headerCount)
		for j := uint32(0); j < headerCount; j++ {
			name, err := dec.string()
			if err != nil {
				return nil, newError(KindDecode, "reading header name", err)
			}
			value, err := dec.bytes()
			if err != nil {
				return nil, newError(KindDecode, "reading header value", err)
			}
			headers = append(headers, HeaderPair{Name: name, Value: value})
		}
		idx.Insert(path, IndexEntry{
			Offset:        offset,
			Length:        length,
			ContentLength: contentLength,
			ContentType:   contentType,
			Headers:       headers,
		})
	}

	if !dec.atEnd() {
		return nil, newError(KindDecode, "trailing bytes after index", nil)
	}

	return idx, nil
}

// WriteIndex writes the encoded index followed by its own checksum,
// returning the number of bytes written (including the checksum).
func WriteIndex(w io.Writer, idx *Index, opts IndexWriteOptions) (int, error) {
	encoded := EncodeIndex(idx)
	n, err := w.Write(encoded)
	if err != nil {
		return n, newError(KindIO, "writing index", err)
	}
	sum := checksum(opts.ChecksumSeed, encoded)
	if err := writeChecksum(w, sum); err != nil {
		return n, newError(KindIO, "writing index checksum", err)
	}
	return n + checksumSize, nil
}

// ReadIndex reads exactly indexSize bytes of encoded index from r,
// decodes them, then reads and (unless disabled) verifies the
// trailing 4-byte index checksum.
func ReadIndex(r io.Reader, indexSize uint32, opts IndexReadOptions) (*Index, error) {
	encoded := make([]byte, indexSize)
	if _, err := io.ReadFull(r, encoded); err != nil {
		return nil, newError(KindIO, "reading encoded index", err)
	}

	storedChecksum, err := readChecksum(r)
	if err != nil {
		return nil, newError(KindIO, "reading index checksum", err)
	}

	if opts.VerifyChecksum {
		want := checksum(opts.ChecksumSeed, encoded)
		if want != storedChecksum {
			return nil, newError(KindInvalidIndexChecksum, "index checksum mismatch", nil)
		}
	}

	return DecodeIndex(encoded)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf []byte, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v)))
	return append(buf, v...)
}

func appendString(buf []byte, v string) []byte {
	return appendBytes(buf, []byte(v))
}

// decoder is a minimal cursor over an in-memory index buffer.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) atEnd() bool { return d.pos == len(d.buf) }

func (d *decoder) uint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) uint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	v := make([]byte, n)
	copy(v, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return v, nil
}

func (d *decoder) string() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
