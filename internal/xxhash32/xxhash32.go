// Package xxhash32 implements the XXH32 non-cryptographic hash algorithm.
//
// The wire format checksums this module backs (see internal/wvb) are
// defined as seeded 32-bit XXH32 digests. No library in the dependency
// set provides XXH32 specifically — the widely available Go xxhash
// packages implement only the 64-bit variant, which produces a
// different digest and cannot be substituted without breaking
// interoperability with existing .wvb files. The algorithm is public
// domain and small enough to carry directly.
package xxhash32

import "encoding/binary"

const (
	prime1 uint32 = 2654435761
	prime2 uint32 = 2246822519
	prime3 uint32 = 3266489917
	prime4 uint32 = 668265263
	prime5 uint32 = 374761393
)

// Checksum computes the seeded XXH32 digest of data in one shot.
func Checksum(seed uint32, data []byte) uint32 {
	n := len(data)
	var h uint32
	i := 0

	if n >= 16 {
		v1 := seed + prime1 + prime2
		v2 := seed + prime2
		v3 := seed
		v4 := seed - prime1
		for ; i+16 <= n; i += 16 {
			v1 = round(v1, binary.LittleEndian.Uint32(data[i:]))
			v2 = round(v2, binary.LittleEndian.Uint32(data[i+4:]))
			v3 = round(v3, binary.LittleEndian.Uint32(data[i+8:]))
			v4 = round(v4, binary.LittleEndian.Uint32(data[i+12:]))
		}
		h = rotl32(v1, 1) + rotl32(v2, 7) + rotl32(v3, 12) + rotl32(v4, 18)
	} else {
		h = seed + prime5
	}

	h += uint32(n)

	for ; i+4 <= n; i += 4 {
		h += binary.LittleEndian.Uint32(data[i:]) * prime3
		h = rotl32(h, 17) * prime4
	}
	for ; i < n; i++ {
		h += uint32(data[i]) * prime5
		h = rotl32(h, 11) * prime1
	}

	h ^= h >> 15
	h *= prime2
	h ^= h >> 13
	h *= prime3
	h ^= h >> 16

	return h
}

func round(acc, input uint32) uint32 {
	acc += input * prime2
	acc = rotl32(acc, 13)
	acc *= prime1
	return acc
}

func rotl32(x uint32, r uint) uint32 {
	return (x << r) | (x >> (32 - r))
}
