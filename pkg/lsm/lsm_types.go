package lsm

import (
	"sync"
	"sync/atomic"
)

// currentFileName marks a directory as a database
const currentFileName = "CURRENT"

// DB is an LSM-tree key-value store
type DB struct {
	mu sync.RWMutex

	// Write path
	memTable       *MemTable
	immutableTable *MemTable // Being flushed to disk
	seq            uint64

	// Read path
	levels [][]*SSTable

	// Configuration
	opts      *Options
	dataDir   string
	compactor *Compactor

	nextFileNum atomic.Uint64
	flushMu     sync.Mutex // serializes memtable flushes
	compactMu   sync.Mutex // serializes compactions

	// Background workers
	flushChan      chan struct{}
	compactionChan chan struct{}
	stopChan       chan struct{}
	wg             sync.WaitGroup

	// State
	closed bool

	// Statistics
	stats Stats
}

// Stats tracks engine statistics using lock-free atomic counters
type Stats struct {
	WriteCount      atomic.Int64
	ReadCount       atomic.Int64
	FlushCount      atomic.Int64
	CompactionCount atomic.Int64
	BytesWritten    atomic.Int64
	IteratorsOpened atomic.Int64
}

// StatsSnapshot is a point-in-time snapshot of engine statistics
type StatsSnapshot struct {
	WriteCount      int64
	ReadCount       int64
	FlushCount      int64
	CompactionCount int64
	BytesWritten    int64
	IteratorsOpened int64
	MemTableSize    int
	SSTableCount    int
	Level0FileCount int
	LevelFileCounts []int
}
