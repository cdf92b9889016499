package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

const (
	// ZlibID is the Bedrock leveldb identifier for zlib-wrapped deflate.
	ZlibID ID = 2
	// ZlibRawID is the Bedrock leveldb identifier for headerless deflate.
	ZlibRawID ID = 4
)

// flateWriterPool pools raw deflate writers; flate.Writer.Reset makes them reusable.
var flateWriterPool = sync.Pool{
	New: func() any {
		w, err := flate.NewWriter(nil, flate.DefaultCompression)
		if err != nil {
			// DefaultCompression is always a valid level
			panic(fmt.Sprintf("failed to create flate writer for pool: %v", err))
		}
		return w
	},
}

var zlibWriterPool = sync.Pool{
	New: func() any {
		w, err := zlib.NewWriterLevel(nil, zlib.DefaultCompression)
		if err != nil {
			panic(fmt.Sprintf("failed to create zlib writer for pool: %v", err))
		}
		return w
	},
}

// ZlibCodec encodes blocks as a zlib stream (RFC 1950).
type ZlibCodec struct{}

var _ Codec = ZlibCodec{}

// NewZlib creates a zlib codec.
func NewZlib() ZlibCodec {
	return ZlibCodec{}
}

func (ZlibCodec) ID() ID       { return ZlibID }
func (ZlibCodec) Name() string { return "zlib" }

func (ZlibCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlibWriterPool.Get().(*zlib.Writer)
	defer zlibWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (ZlibCodec) Decompress(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	return out, nil
}

// ZlibRawCodec encodes blocks as a raw deflate stream (RFC 1951), the format
// Minecraft Bedrock writes by default.
type ZlibRawCodec struct{}

var _ Codec = ZlibRawCodec{}

// NewZlibRaw creates a raw deflate codec.
func NewZlibRaw() ZlibRawCodec {
	return ZlibRawCodec{}
}

func (ZlibRawCodec) ID() ID       { return ZlibRawID }
func (ZlibRawCodec) Name() string { return "zlib-raw" }

func (ZlibRawCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := flateWriterPool.Get().(*flate.Writer)
	defer flateWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("deflate compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate compression failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (ZlibRawCodec) Decompress(src []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate decompression failed: %w", err)
	}
	return out, nil
}
