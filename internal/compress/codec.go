// Package compress provides the byte codec used to shrink offline copies of
// class materials. Zstd keeps decompression cheap on low-end devices while
// still cutting most document formats down significantly.
package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder - both are documented as safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Zstd is the production codec. The zero value is ready to use.
type Zstd struct{}

func NewZstd() *Zstd {
	return &Zstd{}
}

// Compress returns the zstd-compressed form of data. The result is
// deterministic for a given input and always reversible by Decompress.
func (*Zstd) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return zstdEncoder.EncodeAll(data, nil), nil
}

// Decompress reverses Compress. Input that is not valid zstd data returns
// an error; callers decide whether to fall back to the raw bytes.
func (*Zstd) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}

	return out, nil
}
