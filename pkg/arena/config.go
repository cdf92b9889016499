// Package arena builds engine options whose referenced objects (codecs,
// filter policy, block cache, info log) are owned by one Config, and ties
// their lifetime to the database handle opened with them.
package arena

import (
	"fmt"
	"sync"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/config"
	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/lsm"
)

// Builder collects the settings for one database handle
type Builder struct {
	// Codecs lists the decodable codecs; the first one encodes new blocks.
	// None means blocks are written uncompressed.
	Codecs []compress.Codec

	BloomBitsPerKey int // 0 disables the filter
	CacheSize       int // bytes; 0 disables the block cache
	WriteBufferSize int
	BlockSize       int
	MaxTableSize    int

	CreateIfMissing       bool
	ErrorIfExists         bool
	DisableAutoCompaction bool

	Logger    logging.Logger
	LogPrefix string
}

// NewBuilder starts a builder from the engine section of the configuration
func NewBuilder(engine config.EngineConfig, codecs []compress.Codec, logger logging.Logger, prefix string) *Builder {
	return &Builder{
		Codecs:                codecs,
		BloomBitsPerKey:       engine.BloomBitsPerKey,
		CacheSize:             engine.CacheSize,
		WriteBufferSize:       engine.WriteBufferSize,
		BlockSize:             engine.BlockSize,
		MaxTableSize:          engine.MaxTableSize,
		DisableAutoCompaction: !engine.AutoCompaction,
		Logger:                logger,
		LogPrefix:             prefix,
	}
}

// Config owns the objects referenced by one lsm.Options value
type Config struct {
	mu       sync.Mutex
	opts     *lsm.Options
	codecs   [lsm.MaxCompressors]compress.Codec
	filter   lsm.FilterPolicy
	cache    *lsm.BlockCache
	sink     *logging.Sink
	attached bool
	released bool
}

// Build creates a Config. It fails only when more codecs are given than
// the engine has slots for.
func (b *Builder) Build() (*Config, error) {
	if len(b.Codecs) > lsm.MaxCompressors {
		return nil, fmt.Errorf("%w: %d given, %d slots", ErrTooManyCodecs, len(b.Codecs), lsm.MaxCompressors)
	}

	cfg := &Config{
		opts: &lsm.Options{
			WriteBufferSize:       b.WriteBufferSize,
			BlockSize:             b.BlockSize,
			MaxTableSize:          b.MaxTableSize,
			CreateIfMissing:       b.CreateIfMissing,
			ErrorIfExists:         b.ErrorIfExists,
			DisableAutoCompaction: b.DisableAutoCompaction,
		},
		sink: logging.NewSink(b.Logger, b.LogPrefix),
	}
	copy(cfg.codecs[:], b.Codecs)
	if b.BloomBitsPerKey > 0 {
		cfg.filter = lsm.NewBloomPolicy(b.BloomBitsPerKey)
	}
	if b.CacheSize > 0 {
		cfg.cache = lsm.NewBlockCache(b.CacheSize)
	}

	// A fresh Options value has nothing in the owned slots
	if cfg.opts.Compressors != ([lsm.MaxCompressors]compress.Codec{}) ||
		cfg.opts.FilterPolicy != nil || cfg.opts.BlockCache != nil || cfg.opts.InfoLog != nil {
		panic(ErrAliasBroken)
	}

	cfg.opts.Compressors = cfg.codecs
	cfg.opts.FilterPolicy = cfg.filter
	cfg.opts.BlockCache = cfg.cache
	cfg.opts.InfoLog = cfg.sink
	return cfg, nil
}

// Options returns the engine options. Callers must not replace the owned
// slots; use Modify to change anything else.
func (c *Config) Options() *lsm.Options {
	return c.opts
}

// Modify applies fn to the options and panics if fn replaced an owned object
func (c *Config) Modify(fn func(*lsm.Options)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		panic(ErrReleased)
	}
	fn(c.opts)
	c.checkAliases()
}

func (c *Config) checkAliases() {
	if c.opts.Compressors != c.codecs ||
		c.opts.FilterPolicy != c.filter ||
		c.opts.BlockCache != c.cache ||
		c.opts.InfoLog != lsm.Logger(c.sink) {
		panic(ErrAliasBroken)
	}
}

// CodecIDs returns the ids of the configured codecs in slot order
func (c *Config) CodecIDs() []compress.ID {
	ids := make([]compress.ID, 0, len(c.codecs))
	for _, codec := range c.codecs {
		if codec != nil {
			ids = append(ids, codec.ID())
		}
	}
	return ids
}

// Sink returns the info log that identifies handles opened with this config
func (c *Config) Sink() lsm.Logger {
	return c.sink
}

// attach marks the config as backing an open handle
func (c *Config) attach() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrReleased
	}
	if c.attached {
		return ErrConfigInUse
	}
	c.checkAliases()
	c.attached = true
	return nil
}

// release drops the owned objects. The config cannot be used afterwards.
func (c *Config) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	c.attached = false
	c.released = true
}

// Released reports whether the config has been released
func (c *Config) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
