package compress

import (
	"fmt"

	"github.com/golang/snappy"
)

// SnappyID is the identifier leveldb assigns to snappy blocks.
const SnappyID ID = 1

// SnappyCodec encodes blocks with the snappy block format.
type SnappyCodec struct{}

var _ Codec = SnappyCodec{}

// NewSnappy creates a snappy codec.
func NewSnappy() SnappyCodec {
	return SnappyCodec{}
}

func (SnappyCodec) ID() ID       { return SnappyID }
func (SnappyCodec) Name() string { return "snappy" }

func (SnappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (SnappyCodec) Decompress(src []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("snappy decompression failed: %w", err)
	}
	return out, nil
}
