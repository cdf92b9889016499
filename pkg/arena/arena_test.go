package arena

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/config"
	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/lsm"
)

func newBuilder(t *testing.T, codecs ...string) *Builder {
	t.Helper()
	selected, err := compress.Builtin().Select(codecs...)
	require.NoError(t, err)
	b := NewBuilder(config.Default().Engine, selected, logging.NewNopLogger(), "test")
	b.CreateIfMissing = true
	return b
}

func TestBuild_AliasesOwnedObjects(t *testing.T) {
	cfg, err := newBuilder(t, "zlib-raw", "zlib").Build()
	require.NoError(t, err)

	opts := cfg.Options()
	assert.Equal(t, compress.ZlibRawID, opts.Compressors[0].ID())
	assert.Equal(t, compress.ZlibID, opts.Compressors[1].ID())
	assert.Nil(t, opts.Compressors[2])
	assert.NotNil(t, opts.FilterPolicy)
	assert.NotNil(t, opts.BlockCache)
	assert.Equal(t, config.DefaultCacheSize, opts.BlockCache.Capacity())
	assert.Equal(t, cfg.Sink(), opts.InfoLog)
	assert.Equal(t, []compress.ID{compress.ZlibRawID, compress.ZlibID}, cfg.CodecIDs())
	assert.Equal(t, config.DefaultBlockSize, opts.BlockSize)
}

func TestBuild_NoCodecsWritesUncompressed(t *testing.T) {
	cfg, err := newBuilder(t).Build()
	require.NoError(t, err)
	assert.Empty(t, cfg.CodecIDs())
	assert.Nil(t, cfg.Options().Compressors[0])
}

func TestBuild_DisabledFilterAndCache(t *testing.T) {
	b := newBuilder(t, "snappy")
	b.BloomBitsPerKey = 0
	b.CacheSize = 0
	cfg, err := b.Build()
	require.NoError(t, err)
	assert.Nil(t, cfg.Options().FilterPolicy)
	assert.Nil(t, cfg.Options().BlockCache)

	// Modify still validates nil owned slots
	cfg.Modify(func(o *lsm.Options) { o.WriteBufferSize = 1 << 20 })
}

func TestBuild_TooManyCodecs(t *testing.T) {
	b := newBuilder(t)
	for i := 0; i < lsm.MaxCompressors+1; i++ {
		b.Codecs = append(b.Codecs, compress.NewSnappy())
	}
	_, err := b.Build()
	require.ErrorIs(t, err, ErrTooManyCodecs)
}

func TestBuild_SinksAreDistinct(t *testing.T) {
	a, err := newBuilder(t, "zlib").Build()
	require.NoError(t, err)
	b, err := newBuilder(t, "zlib").Build()
	require.NoError(t, err)
	assert.NotSame(t, a.Sink(), b.Sink())
}

func TestModify(t *testing.T) {
	cfg, err := newBuilder(t, "zlib-raw").Build()
	require.NoError(t, err)

	cfg.Modify(func(o *lsm.Options) {
		o.ErrorIfExists = true
		o.WriteBufferSize = 1024 * 1024
	})
	assert.True(t, cfg.Options().ErrorIfExists)

	tests := []struct {
		name string
		fn   func(*lsm.Options)
	}{
		{"compressor", func(o *lsm.Options) { o.Compressors[0] = compress.NewSnappy() }},
		{"filter", func(o *lsm.Options) { o.FilterPolicy = lsm.NewBloomPolicy(4) }},
		{"cache", func(o *lsm.Options) { o.BlockCache = lsm.NewBlockCache(10) }},
		{"info log", func(o *lsm.Options) { o.InfoLog = logging.NewSink(nil, "other") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newBuilder(t, "zlib-raw").Build()
			require.NoError(t, err)
			assert.PanicsWithValue(t, ErrAliasBroken, func() { cfg.Modify(tt.fn) })
		})
	}
}

func TestOpen_HandleLifecycle(t *testing.T) {
	cfg, err := newBuilder(t, "zlib-raw", "zlib").Build()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "db")

	h, err := Open(cfg, path)
	require.NoError(t, err)
	assert.Same(t, cfg, h.Config())
	assert.Same(t, cfg.Options(), h.DB().Options())

	_, err = Open(cfg, path)
	require.ErrorIs(t, err, ErrConfigInUse)

	require.NoError(t, h.DB().Put([]byte("k"), []byte("v")))
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.True(t, cfg.Released())
	assert.PanicsWithValue(t, ErrReleased, func() { cfg.Modify(func(*lsm.Options) {}) })
	_, err = Open(cfg, path)
	require.ErrorIs(t, err, ErrReleased)
}

func TestOpen_FailureReleasesConfig(t *testing.T) {
	b := newBuilder(t, "zlib")
	b.CreateIfMissing = false
	cfg, err := b.Build()
	require.NoError(t, err)

	_, err = Open(cfg, filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, lsm.ErrDBMissing)
	assert.True(t, cfg.Released())
}
