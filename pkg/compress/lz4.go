package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// LZ4ID identifies LZ4 blocks.
const LZ4ID ID = 6

// maxLZ4BlockSize bounds the decoded size announced by a block header.
const maxLZ4BlockSize = 128 * 1024 * 1024

var errLZ4Header = errors.New("lz4: invalid length header")

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4Codec encodes blocks with the LZ4 block format. The decoded length is
// stored as a uvarint prefix so decompression can size its buffer exactly.
type LZ4Codec struct{}

var _ Codec = LZ4Codec{}

// NewLZ4 creates an LZ4 codec.
func NewLZ4() LZ4Codec {
	return LZ4Codec{}
}

func (LZ4Codec) ID() ID       { return LZ4ID }
func (LZ4Codec) Name() string { return "lz4" }

func (LZ4Codec) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(src)))
	n := binary.PutUvarint(dst, uint64(len(src)))
	if len(src) == 0 {
		return dst[:n], nil
	}

	lc := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	written, err := lc.CompressBlock(src, dst[n:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if written == 0 {
		// incompressible input: CompressBlock reports 0 and leaves dst untouched
		written = copy(dst[n:], src)
		return append(dst[:n+written:n+written], 0), nil
	}
	return append(dst[:n+written:n+written], 1), nil
}

func (LZ4Codec) Decompress(src []byte) ([]byte, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 || size > maxLZ4BlockSize {
		return nil, errLZ4Header
	}
	if size == 0 {
		return []byte{}, nil
	}
	if len(src) < n+1 {
		return nil, errLZ4Header
	}

	body, stored := src[n:len(src)-1], src[len(src)-1] == 0
	if stored {
		if uint64(len(body)) != size {
			return nil, errLZ4Header
		}
		out := make([]byte, size)
		copy(out, body)
		return out, nil
	}

	out := make([]byte, size)
	written, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	if uint64(written) != size {
		return nil, fmt.Errorf("lz4 decompression failed: got %d bytes, want %d", written, size)
	}
	return out, nil
}
