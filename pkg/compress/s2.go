package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// S2ID identifies S2 blocks.
const S2ID ID = 7

// S2Codec encodes blocks with the S2 block format (a snappy extension).
type S2Codec struct{}

var _ Codec = S2Codec{}

// NewS2 creates an S2 codec.
func NewS2() S2Codec {
	return S2Codec{}
}

func (S2Codec) ID() ID       { return S2ID }
func (S2Codec) Name() string { return "s2" }

func (S2Codec) Compress(src []byte) ([]byte, error) {
	return s2.Encode(nil, src), nil
}

func (S2Codec) Decompress(src []byte) ([]byte, error) {
	out, err := s2.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("s2 decompression failed: %w", err)
	}
	return out, nil
}
