package wvb

import (
	"context"
	"io"
)

// ReadOptions configures the header and index checksum verification
// performed by ReadBundle and ReadDescriptor. Entry checksums are
// verified independently, per read, via Descriptor.GetData /
// Bundle.GetData.
type ReadOptions struct {
	HeaderChecksumSeed uint32
	IndexChecksumSeed  uint32
	DataChecksumSeed   uint32
	VerifyChecksums    bool
}

// DefaultReadOptions verifies every checksum, the safe default.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{VerifyChecksums: true}
}

// ReadBundle reads a whole bundle (header, index, and entry blob
// region) from r into memory. r need not be seekable: the format is
// read strictly sequentially.
func ReadBundle(r io.Reader, opts ReadOptions) (*Bundle, error) {
	return ReadBundleContext(context.Background(), r, opts)
}

// ReadBundleContext is ReadBundle with cooperative cancellation at
// each I/O boundary.
func ReadBundleContext(ctx context.Context, r io.Reader, opts ReadOptions) (*Bundle, error) {
	header, index, indexBytes, err := readHeaderAndIndex(ctx, r, opts)
	if err != nil {
		return nil, err
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newError(KindIO, "reading entry blob region", err)
	}

	return &Bundle{
		Header:             header,
		Index:              index,
		IndexBytes:         indexBytes,
		Data:               data,
		HeaderChecksumSeed: opts.HeaderChecksumSeed,
		IndexChecksumSeed:  opts.IndexChecksumSeed,
		DataChecksumSeed:   opts.DataChecksumSeed,
	}, nil
}

// ReadDescriptor reads only the header and index from r, producing a
// lightweight Descriptor without buffering the entry blob region. This
// is the form BundleSource caches.
func ReadDescriptor(r io.Reader, opts ReadOptions) (*Descriptor, error) {
	return ReadDescriptorContext(context.Background(), r, opts)
}

// ReadDescriptorContext is ReadDescriptor with cooperative
// cancellation at each I/O boundary.
func ReadDescriptorContext(ctx context.Context, r io.Reader, opts ReadOptions) (*Descriptor, error) {
	header, index, _, err := readHeaderAndIndex(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	return NewDescriptor(header, index), nil
}

func readHeaderAndIndex(ctx context.Context, r io.Reader, opts ReadOptions) (Header, *Index, []byte, error) {
	if err := checkContext(ctx); err != nil {
		return Header{}, nil, nil, err
	}

	header, err := ReadHeader(r, HeaderReadOptions{ChecksumSeed: opts.HeaderChecksumSeed, VerifyChecksum: opts.VerifyChecksums})
	if err != nil {
		return Header{}, nil, nil, err
	}

	if err := checkContext(ctx); err != nil {
		return Header{}, nil, nil, err
	}

	indexBytes := make([]byte, header.IndexSize)
	if _, err := io.ReadFull(r, indexBytes); err != nil {
		return Header{}, nil, nil, newError(KindIO, "reading encoded index", err)
	}
	storedChecksum, err := readChecksum(r)
	if err != nil {
		return Header{}, nil, nil, newError(KindIO, "reading index checksum", err)
	}
	if opts.VerifyChecksums {
		if want := checksum(opts.IndexChecksumSeed, indexBytes); want != storedChecksum {
			return Header{}, nil, nil, newError(KindInvalidIndexChecksum, "index checksum mismatch", nil)
		}
	}

	index, err := DecodeIndex(indexBytes)
	if err != nil {
		return Header{}, nil, nil, err
	}

	return header, index, indexBytes, nil
}

// WriteBundle writes b in its on-disk form to w, returning the total
// number of bytes written.
func WriteBundle(w io.Writer, b *Bundle) (int64, error) {
	return WriteBundleContext(context.Background(), w, b)
}

// WriteBundleContext is WriteBundle with cooperative cancellation at
// each I/O boundary.
func WriteBundleContext(ctx context.Context, w io.Writer, b *Bundle) (int64, error) {
	var total int64

	if err := checkContext(ctx); err != nil {
		return total, err
	}
	n, err := WriteHeader(w, b.Header, HeaderWriteOptions{ChecksumSeed: b.HeaderChecksumSeed})
	total += int64(n)
	if err != nil {
		return total, newError(KindIO, "writing header", err)
	}

	if err := checkContext(ctx); err != nil {
		return total, err
	}
	nIdx, err := w.Write(b.IndexBytes)
	total += int64(nIdx)
	if err != nil {
		return total, newError(KindIO, "writing index", err)
	}
	sum := checksum(b.IndexChecksumSeed, b.IndexBytes)
	if err := writeChecksum(w, sum); err != nil {
		return total, newError(KindIO, "writing index checksum", err)
	}
	total += checksumSize

	if err := checkContext(ctx); err != nil {
		return total, err
	}
	nData, err := w.Write(b.Data)
	total += int64(nData)
	if err != nil {
		return total, newError(KindIO, "writing entry blob region", err)
	}

	return total, nil
}

// ReadEntry is the lower-level, random-access read used by the
// serving path: given a Descriptor already resolved for a bundle, it
// seeks r to path's absolute blob offset and returns the decompressed
// payload. It never reads more of r than the one entry.
func ReadEntry(ctx context.Context, d *Descriptor, path string, r io.ReadSeeker, dataChecksumSeed uint32) ([]byte, error) {
	return d.GetDataSeeded(ctx, r, path, dataChecksumSeed)
}
