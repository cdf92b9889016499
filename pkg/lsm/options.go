package lsm

import (
	"fmt"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// MaxCompressors is the number of codec slots in Options.
const MaxCompressors = 8

// Default tunables, matching the settings Minecraft Bedrock opens its worlds with.
const (
	DefaultWriteBufferSize = 4 * 1024 * 1024
	DefaultBlockSize       = 160 * 1024
	DefaultMaxTableSize    = 64 * 1024 * 1024
)

// Logger receives informational messages from the engine. The value placed in
// Options.InfoLog also identifies the database handle to the block decode hook.
type Logger interface {
	Logf(format string, args ...any)
}

// FilterPolicy builds a compact per-table key filter and answers membership
// queries against it. False positives are allowed, false negatives are not.
type FilterPolicy interface {
	Name() string
	NewFilter(keys [][]byte) []byte
	MayContain(filter, key []byte) bool
}

// Options configures a database handle.
//
// Compressors, FilterPolicy, BlockCache and InfoLog are references to objects
// the caller owns; the engine never closes or replaces them.
type Options struct {
	// Compressors lists the codecs the engine can decode. Slot 0, when set,
	// is also the codec used to encode new blocks; an empty slot 0 writes
	// uncompressed blocks.
	Compressors [MaxCompressors]compress.Codec

	FilterPolicy FilterPolicy
	BlockCache   *BlockCache
	InfoLog      Logger

	CreateIfMissing bool
	ErrorIfExists   bool

	WriteBufferSize int // memtable size in bytes before it is flushed
	BlockSize       int // target uncompressed size of a data block
	MaxTableSize    int // compaction output is split at this size

	CompactionStrategy    CompactionStrategy
	DisableAutoCompaction bool
}

// ReadOptions controls a single read or iteration.
type ReadOptions struct {
	VerifyChecksums bool
	FillCache       bool
}

// WriteOptions controls a single write.
type WriteOptions struct {
	// Sync flushes the memtable to a table file before Write returns.
	Sync bool
}

// DefaultReadOptions returns options that verify checksums and fill the cache.
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{VerifyChecksums: true, FillCache: true}
}

func (o *Options) writeBufferSize() int {
	if o.WriteBufferSize <= 0 {
		return DefaultWriteBufferSize
	}
	return o.WriteBufferSize
}

func (o *Options) blockSize() int {
	if o.BlockSize <= 0 {
		return DefaultBlockSize
	}
	return o.BlockSize
}

func (o *Options) maxTableSize() int {
	if o.MaxTableSize <= 0 {
		return DefaultMaxTableSize
	}
	return o.MaxTableSize
}

func (o *Options) compactionStrategy() CompactionStrategy {
	if o.CompactionStrategy == nil {
		return DefaultLeveledCompaction()
	}
	return o.CompactionStrategy
}

// compressor returns the configured codec for id, or nil.
func (o *Options) compressor(id compress.ID) compress.Codec {
	for _, c := range o.Compressors {
		if c != nil && c.ID() == id {
			return c
		}
	}
	return nil
}

// writeCompressor returns the codec for new blocks, or nil for raw blocks.
func (o *Options) writeCompressor() compress.Codec {
	return o.Compressors[0]
}

func (o *Options) logf(format string, args ...any) {
	if o.InfoLog != nil {
		o.InfoLog.Logf(format, args...)
	}
}

func (o *Options) validate() error {
	if o.WriteBufferSize < 0 || o.BlockSize < 0 || o.MaxTableSize < 0 {
		return fmt.Errorf("%w: negative size option", ErrInvalidOptions)
	}
	seen := make(map[compress.ID]bool, MaxCompressors)
	for i, c := range o.Compressors {
		if c == nil {
			continue
		}
		if c.ID() == compress.NoCompression {
			return fmt.Errorf("%w: compressor slot %d uses reserved id 0", ErrInvalidOptions, i)
		}
		if seen[c.ID()] {
			return fmt.Errorf("%w: compressor id %d configured twice", ErrInvalidOptions, c.ID())
		}
		seen[c.ID()] = true
	}
	return nil
}
