package lsm

import (
	"sync/atomic"

	"golang.org/x/exp/mmap"
)

// SSTable format:
//   [Data Block 0][trailer] ... [Data Block N][trailer]
//   [Filter Block]
//   [Index Block: smallest key | count | (last key, offset, length)*]
//   [Footer: fixed 48 bytes]
//
// Block trailer: codec id(1) | crc32(4) over payload and codec id.

const (
	SSTableMagic   = 0x53535442 // "SSTB"
	SSTableVersion = 2

	tempSuffix = ".tmp"

	blockTrailerSize = 5
	footerSize       = 48
)

// SSTableFooter is stored at the end of every table file
type SSTableFooter struct {
	FilterOffset uint64
	FilterLength uint32
	IndexOffset  uint64
	IndexLength  uint32
	EntryCount   uint64
	MaxSeq       uint64
	Magic        uint32
	Version      uint32
}

// blockHandle locates a data block; Length excludes the trailer
type blockHandle struct {
	Offset uint64
	Length uint32
}

// IndexEntry maps the last key of a data block to its location
type IndexEntry struct {
	LastKey []byte
	Handle  blockHandle
}

// SSTable represents a Sorted String Table on disk
type SSTable struct {
	path     string
	fileNum  uint64
	level    int
	reader   *mmap.ReaderAt
	footer   SSTableFooter
	index    []IndexEntry
	filter   []byte
	smallest []byte
	opts     *Options

	// refs counts the level list plus every open iterator. The file is
	// unmapped when it drops to zero, and deleted too once obsolete.
	refs     atomic.Int32
	obsolete atomic.Bool
}
