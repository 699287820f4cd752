package wvb

import (
	"encoding/binary"
	"io"

	"github.com/wvbundle/wvb/internal/xxhash32"
)

// DefaultChecksumSeed is used for the header, index and every entry
// checksum unless a caller overrides it.
const DefaultChecksumSeed uint32 = 0

// checksumSize is the fixed on-disk width of every checksum field.
const checksumSize = 4

// checksum computes the seeded digest used at every checksum site in
// the format. The algorithm (XXH32) is fixed by the wire format; only
// the seed is configurable.
func checksum(seed uint32, data []byte) uint32 {
	return xxhash32.Checksum(seed, data)
}

func putChecksum(v uint32) []byte {
	b := make([]byte, checksumSize)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func writeChecksum(w io.Writer, v uint32) error {
	_, err := w.Write(putChecksum(v))
	return err
}

func readChecksum(r io.Reader) (uint32, error) {
	var b [checksumSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
