// Package compress provides the block codecs understood by the storage engine
// and the registry that catalogs them by their stable numeric identifier.
package compress

import "fmt"

// ID is the stable, engine-visible identifier of a block codec.
// It is stored in every block trailer, so values must never be reused.
type ID uint8

// NoCompression is the implicit identifier for blocks stored verbatim.
const NoCompression ID = 0

// MaxID is the largest identifier a block trailer can carry.
const MaxID = 255

// String returns the decimal form of the identifier.
func (id ID) String() string {
	return fmt.Sprintf("%d", uint8(id))
}

// Codec is a reversible block encoder.
//
// Implementations must be safe for concurrent use: the engine decodes blocks
// from several goroutines at once.
type Codec interface {
	// ID returns the identifier written into the trailer of every block this
	// codec encodes.
	ID() ID
	// Name returns the human readable codec name used in configuration.
	Name() string
	// Compress encodes src into a newly allocated slice.
	Compress(src []byte) ([]byte, error)
	// Decompress decodes src into a newly allocated slice.
	Decompress(src []byte) ([]byte, error)
}

// Stats describes the outcome of encoding one payload.
type Stats struct {
	Codec          ID
	OriginalSize   int64
	CompressedSize int64
}

// Ratio returns compressed/original size, or 0 for an empty payload.
func (s Stats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}
	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the percentage of bytes saved by compression.
func (s Stats) SpaceSavings() float64 {
	return (1.0 - s.Ratio()) * 100.0
}

// Measure compresses src with c and reports the resulting sizes.
func Measure(c Codec, src []byte) (Stats, error) {
	out, err := c.Compress(src)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Codec:          c.ID(),
		OriginalSize:   int64(len(src)),
		CompressedSize: int64(len(out)),
	}, nil
}
