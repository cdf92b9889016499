package compress

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateBlockData(size int, compressible bool) []byte {
	data := make([]byte, size)
	pattern := []byte("chunk:00042:subchunk:07|biome=plains|height=64|")
	for i := range data {
		if compressible {
			data[i] = pattern[i%len(pattern)]
		} else {
			data[i] = byte((i*31 + i*i*7 + i*i*i*3) % 256)
		}
	}
	return data
}

func allCodecs() []Codec {
	return []Codec{NewNoop(), NewSnappy(), NewZlib(), NewZlibRaw(), NewZstd(), NewLZ4(), NewS2()}
}

func TestCodecRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 100, 4096, 163840}

	for _, codec := range allCodecs() {
		for _, size := range sizes {
			for _, compressible := range []bool{true, false} {
				name := fmt.Sprintf("%s/%d/compressible=%v", codec.Name(), size, compressible)
				t.Run(name, func(t *testing.T) {
					data := generateBlockData(size, compressible)

					encoded, err := codec.Compress(data)
					require.NoError(t, err)

					decoded, err := codec.Decompress(encoded)
					require.NoError(t, err)
					assert.True(t, bytes.Equal(data, decoded), "round trip mismatch")
				})
			}
		}
	}
}

func TestCodecShrinksCompressibleData(t *testing.T) {
	data := generateBlockData(64*1024, true)

	for _, codec := range allCodecs()[1:] {
		t.Run(codec.Name(), func(t *testing.T) {
			stats, err := Measure(codec, data)
			require.NoError(t, err)
			assert.Equal(t, codec.ID(), stats.Codec)
			assert.Less(t, stats.Ratio(), 0.5)
			assert.Greater(t, stats.SpaceSavings(), 50.0)
		})
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	garbage := []byte{0x05, 0xff, 0xfe, 0xfd}

	for _, codec := range []Codec{NewSnappy(), NewZlib(), NewZstd(), NewLZ4(), NewS2()} {
		t.Run(codec.Name(), func(t *testing.T) {
			_, err := codec.Decompress(garbage)
			assert.Error(t, err)
		})
	}
}

func TestCodecIDsAreStable(t *testing.T) {
	expected := map[string]ID{
		"none":     0,
		"snappy":   1,
		"zlib":     2,
		"zlib-raw": 4,
		"zstd":     5,
		"lz4":      6,
		"s2":       7,
	}
	for _, codec := range allCodecs() {
		assert.Equal(t, expected[codec.Name()], codec.ID(), codec.Name())
	}
}
