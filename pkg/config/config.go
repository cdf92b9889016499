// Package config loads the YAML configuration shared by every hackdb command.
// Defaults reproduce the settings Minecraft Bedrock opens its worlds with.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/logging"
)

// Default values
const (
	DefaultBloomBitsPerKey = 10
	DefaultCacheSize       = 8 * 1024 * 1024
	DefaultWriteBufferSize = 4 * 1024 * 1024
	DefaultBlockSize       = 160 * 1024
	DefaultMaxTableSize    = 64 * 1024 * 1024
	DefaultBatchThreshold  = 10 * 1000 * 1000
)

// ErrInvalidConfig wraps every load or validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the configuration file
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Codecs   CodecConfig    `yaml:"codecs"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
}

// EngineConfig tunes every database handle a command opens
type EngineConfig struct {
	BloomBitsPerKey int  `yaml:"bloom_bits_per_key" validate:"min=0,max=64"`
	CacheSize       int  `yaml:"cache_size" validate:"min=0"`
	WriteBufferSize int  `yaml:"write_buffer_size" validate:"min=4096"`
	BlockSize       int  `yaml:"block_size" validate:"min=256"`
	MaxTableSize    int  `yaml:"max_table_size" validate:"min=65536"`
	VerifyChecksums bool `yaml:"verify_checksums"`
	AutoCompaction  bool `yaml:"auto_compaction"`
}

// CodecConfig names the codecs handles are opened with. The first name of
// each list is the codec new blocks are written with.
type CodecConfig struct {
	// Input lists the codecs able to decode an existing database
	Input []string `yaml:"input" validate:"max=8,dive,required"`
	// Output is used when a copy recompresses
	Output []string `yaml:"output" validate:"max=8,dive,required"`
}

// PipelineConfig tunes buffered writes
type PipelineConfig struct {
	BatchThreshold int `yaml:"batch_threshold" validate:"min=1"`
}

// LogConfig selects the log level
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,loglevel"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BloomBitsPerKey: DefaultBloomBitsPerKey,
			CacheSize:       DefaultCacheSize,
			WriteBufferSize: DefaultWriteBufferSize,
			BlockSize:       DefaultBlockSize,
			MaxTableSize:    DefaultMaxTableSize,
			VerifyChecksums: true,
			AutoCompaction:  true,
		},
		Codecs: CodecConfig{
			Input:  []string{"zlib-raw", "zlib"},
			Output: []string{"zlib-raw"},
		},
		Pipeline: PipelineConfig{
			BatchThreshold: DefaultBatchThreshold,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// LOG_LEVEL, when set, overrides the file's log level.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode applies YAML on top of the current values, rejecting unknown keys
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks value ranges and that every codec name is known
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, formatValidationError(err))
	}
	if _, err := c.InputCodecs(compress.Builtin()); err != nil {
		return fmt.Errorf("%w: codecs.input: %v", ErrInvalidConfig, err)
	}
	if _, err := c.OutputCodecs(compress.Builtin()); err != nil {
		return fmt.Errorf("%w: codecs.output: %v", ErrInvalidConfig, err)
	}
	return nil
}

// InputCodecs instantiates the input codec list
func (c *Config) InputCodecs(reg *compress.Registry) ([]compress.Codec, error) {
	return reg.Select(c.Codecs.Input...)
}

// OutputCodecs instantiates the output codec list
func (c *Config) OutputCodecs(reg *compress.Registry) ([]compress.Codec, error) {
	return reg.Select(c.Codecs.Output...)
}

// LogLevel returns the configured level
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Log.Level)
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
