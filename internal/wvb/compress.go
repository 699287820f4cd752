package wvb

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// The format's compression framing is pluggable in principle but fixed
// in this implementation to zstd: it is self-describing (the decoder
// does not need a separately stored uncompressed length to decode,
// though this format stores one anyway for Content-Length purposes)
// and is the compression library present across the example pack.
var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder

	decoderOnce sync.Once
	decoder_    *zstd.Decoder
)

func sharedEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic("wvb: failed to construct zstd encoder: " + err.Error())
		}
		encoder = enc
	})
	return encoder
}

func sharedDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic("wvb: failed to construct zstd decoder: " + err.Error())
		}
		decoder_ = dec
	})
	return decoder_
}

func compressBytes(data []byte) []byte {
	return sharedEncoder().EncodeAll(data, make([]byte, 0, len(data)))
}

func decompressBytes(data []byte) ([]byte, error) {
	out, err := sharedDecoder().DecodeAll(data, nil)
	if err != nil {
		return nil, newError(KindDecompress, "decompressing entry", err)
	}
	return out, nil
}
