//go:build gozstd

package compress

import (
	"fmt"

	"github.com/valyala/gozstd"
)

// Compress encodes src with libzstd at level 3.
func (ZstdCodec) Compress(src []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, src, 3), nil
}

func (ZstdCodec) Decompress(src []byte) ([]byte, error) {
	out, err := gozstd.Decompress(nil, src)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}
