package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCodec reports whatever id it is told to.
type fakeCodec struct {
	NoopCodec
	id ID
}

func (f fakeCodec) ID() ID { return f.id }

func TestRegistryListOrder(t *testing.T) {
	descriptors := Builtin().List()
	require.Len(t, descriptors, 7)

	for i := 1; i < len(descriptors)-1; i++ {
		assert.Less(t, descriptors[i-1].ID, descriptors[i].ID)
	}

	last := descriptors[len(descriptors)-1]
	assert.Equal(t, NoCompression, last.ID)
	assert.Equal(t, "none", last.Name)
}

func TestRegistryInstantiate(t *testing.T) {
	t.Run("all puts default first", func(t *testing.T) {
		codecs := Builtin().Instantiate(All)
		require.Len(t, codecs, 6)
		assert.Equal(t, ZlibRawID, codecs[0].ID())
	})

	t.Run("default only", func(t *testing.T) {
		codecs := Builtin().Instantiate(DefaultOnly)
		require.Len(t, codecs, 1)
		assert.Equal(t, ZlibRawID, codecs[0].ID())
	})

	t.Run("default only without default is empty", func(t *testing.T) {
		r := NewRegistry()
		r.Register(Descriptor{ID: SnappyID, Name: "snappy", New: func() Codec { return NewSnappy() }})
		assert.Empty(t, r.Instantiate(DefaultOnly))
		assert.Len(t, r.Instantiate(All), 1)
	})

	t.Run("instances are fresh", func(t *testing.T) {
		r := NewRegistry()
		calls := 0
		r.Register(Descriptor{ID: 9, Name: "fake", New: func() Codec {
			calls++
			return fakeCodec{id: 9}
		}})
		r.Instantiate(All)
		r.Instantiate(All)
		assert.Equal(t, 3, calls) // one self-check at registration plus two instantiations
	})
}

func TestRegistryRegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		run  func(r *Registry)
	}{
		{"id mismatch", func(r *Registry) {
			r.Register(Descriptor{ID: 9, Name: "liar", New: func() Codec { return fakeCodec{id: 10} }})
		}},
		{"reserved id", func(r *Registry) {
			r.Register(Descriptor{ID: 0, Name: "zero", New: func() Codec { return NewNoop() }})
		}},
		{"missing factory", func(r *Registry) {
			r.Register(Descriptor{ID: 9, Name: "nil"})
		}},
		{"duplicate id", func(r *Registry) {
			r.Register(Descriptor{ID: SnappyID, Name: "snappy", New: func() Codec { return NewSnappy() }})
			r.Register(Descriptor{ID: SnappyID, Name: "snappy2", New: func() Codec { return NewSnappy() }})
		}},
		{"two defaults", func(r *Registry) {
			r.Register(Descriptor{ID: SnappyID, Name: "snappy", New: func() Codec { return NewSnappy() }, Default: true})
			r.Register(Descriptor{ID: S2ID, Name: "s2", New: func() Codec { return NewS2() }, Default: true})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { tt.run(NewRegistry()) })
		})
	}
}

func TestRegistrySelect(t *testing.T) {
	codecs, err := Builtin().Select("zlib-raw", "ZLIB")
	require.NoError(t, err)
	assert.Equal(t, []ID{ZlibRawID, ZlibID}, IDs(codecs))

	codecs, err = Builtin().Select("none")
	require.NoError(t, err)
	assert.Empty(t, codecs)

	_, err = Builtin().Select("brotli")
	assert.ErrorIs(t, err, ErrUnknownCodec)

	_, err = Builtin().Select("lz4", "lz4")
	assert.ErrorIs(t, err, ErrDuplicateCodec)
}

func TestRegistryName(t *testing.T) {
	assert.Equal(t, "zstd", Builtin().Name(ZstdID))
	assert.Equal(t, "none", Builtin().Name(NoCompression))
	assert.Equal(t, "unknown(200)", Builtin().Name(200))
}
