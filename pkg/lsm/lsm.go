package lsm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

// Open opens the database in path. The options value is retained for the
// lifetime of the handle and passed to the block decode hook on every read.
func Open(opts *Options, path string) (*DB, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: nil options", ErrInvalidOptions)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if err := prepareDir(opts, path); err != nil {
		return nil, err
	}

	// Load existing SSTables
	levels, maxFileNum, maxSeq, err := ListSSTables(path, opts)
	if err != nil {
		return nil, err
	}

	db := &DB{
		memTable:       NewMemTable(opts.writeBufferSize()),
		levels:         levels,
		seq:            maxSeq,
		opts:           opts,
		dataDir:        path,
		flushChan:      make(chan struct{}, 1),
		compactionChan: make(chan struct{}, 1),
		stopChan:       make(chan struct{}),
	}
	db.nextFileNum.Store(maxFileNum + 1)
	db.compactor = NewCompactor(path, opts, db.newFileNum)

	opts.logf("opened %s: %d tables, last sequence %d", path, db.countSSTables(), maxSeq)

	// Start background workers
	db.wg.Add(1)
	go db.flushWorker()
	if !opts.DisableAutoCompaction {
		db.wg.Add(1)
		go db.compactionWorker()
	}

	return db, nil
}

// prepareDir enforces CreateIfMissing / ErrorIfExists
func prepareDir(opts *Options, path string) error {
	current := filepath.Join(path, currentFileName)
	_, err := os.Stat(current)
	switch {
	case err == nil:
		if opts.ErrorIfExists {
			return fmt.Errorf("%s: %w", path, ErrDBExists)
		}
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	if !opts.CreateIfMissing {
		return fmt.Errorf("%s: %w", path, ErrDBMissing)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}
	return os.WriteFile(current, []byte(fmt.Sprintf("hackdb-sstable-v%d\n", SSTableVersion)), 0644)
}

func (db *DB) newFileNum() uint64 {
	return db.nextFileNum.Add(1) - 1
}

// Options returns the options the handle was opened with
func (db *DB) Options() *Options {
	return db.opts
}

// Path returns the database directory
func (db *DB) Path() string {
	return db.dataDir
}

// Write applies a batch atomically
func (db *DB) Write(wo *WriteOptions, batch *Batch) error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}

	if batch != nil {
		batch.Replay(
			func(key, value []byte) {
				db.seq++
				db.memTable.Put(key, value, db.seq)
			},
			func(key []byte) {
				db.seq++
				db.memTable.Delete(key, db.seq)
			},
		)
		db.stats.WriteCount.Add(int64(batch.Len()))
		db.stats.BytesWritten.Add(int64(batch.ApproximateSize()))
	}

	needsFlush := db.memTable.IsFull()
	db.mu.Unlock()

	if wo != nil && wo.Sync {
		return db.Sync()
	}
	if needsFlush {
		db.triggerFlush()
	}
	return nil
}

// Put writes a single key-value pair
func (db *DB) Put(key, value []byte) error {
	batch := NewBatch()
	batch.Put(key, value)
	return db.Write(nil, batch)
}

// Delete writes a tombstone for key
func (db *DB) Delete(key []byte) error {
	batch := NewBatch()
	batch.Delete(key)
	return db.Write(nil, batch)
}

// Get retrieves the value for key, or ErrNotFound
func (db *DB) Get(ro *ReadOptions, key []byte) ([]byte, error) {
	if ro == nil {
		ro = DefaultReadOptions()
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	db.stats.ReadCount.Add(1)

	// 1. Memtables hold the newest data
	for _, mt := range []*MemTable{db.memTable, db.immutableTable} {
		if mt == nil {
			continue
		}
		if entry, ok := mt.Get(key); ok {
			if entry.Deleted {
				return nil, ErrNotFound
			}
			return entry.Value, nil
		}
	}

	// 2. Tables may overlap, so the highest sequence number wins
	var newest *Entry
	for _, level := range db.levels {
		for _, sst := range level {
			entry, ok, err := sst.Get(key, ro)
			if err != nil {
				return nil, err
			}
			if ok && (newest == nil || entry.Seq > newest.Seq) {
				newest = entry
			}
		}
	}

	if newest == nil || newest.Deleted {
		return nil, ErrNotFound
	}
	return newest.Value, nil
}

// NewIterator returns an iterator over a consistent view of the database.
// The iterator must be closed.
func (db *DB) NewIterator(ro *ReadOptions) Iterator {
	if ro == nil {
		ro = DefaultReadOptions()
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return &dbIterator{merge: newMergeIterator(nil, false), closed: true, err: ErrClosed}
	}

	sources := make([]internalIterator, 0, 2+db.countSSTables())
	sources = append(sources, newMemIterator(db.memTable.Entries()))
	if db.immutableTable != nil {
		sources = append(sources, newMemIterator(db.immutableTable.Entries()))
	}

	tables := make([]*SSTable, 0, db.countSSTables())
	for _, level := range db.levels {
		for _, sst := range level {
			sst.ref()
			tables = append(tables, sst)
			sources = append(sources, newTableIterator(sst, ro))
		}
	}

	db.stats.IteratorsOpened.Add(1)
	return &dbIterator{
		merge:  newMergeIterator(sources, false),
		tables: tables,
	}
}

// Sync forces a flush of the current memtable to disk
func (db *DB) Sync() error {
	db.mu.RLock()
	closed := db.closed
	db.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := db.flush(); err != nil {
		return fmt.Errorf("failed to flush memtable: %w", err)
	}
	return nil
}

// CompactRange flushes the memtable and rewrites every table holding keys in
// [start, limit] with the current write codec. Nil bounds are unbounded.
// Tombstones are dropped when the compaction covers every table.
func (db *DB) CompactRange(start, limit []byte) error {
	if err := db.Sync(); err != nil {
		return err
	}

	db.compactMu.Lock()
	defer db.compactMu.Unlock()

	db.mu.RLock()
	var selected []*SSTable
	total := 0
	outputLevel := 1
	for level, tables := range db.levels {
		for _, sst := range tables {
			total++
			if sst.Overlaps(start, limit) {
				selected = append(selected, sst)
				if level > outputLevel {
					outputLevel = level
				}
			}
		}
	}
	db.mu.RUnlock()

	if len(selected) == 0 {
		return nil
	}

	plan := &CompactionPlan{
		SSTables:       selected,
		OutputLevel:    outputLevel,
		DropTombstones: len(selected) == total,
	}
	db.opts.logf("manual compaction: %d of %d tables into L%d", len(selected), total, outputLevel)
	return db.runCompaction(plan)
}

// GetStats returns current statistics as a snapshot
func (db *DB) GetStats() StatsSnapshot {
	db.mu.RLock()
	memTableSize := db.memTable.Size()
	ssTableCount := db.countSSTables()
	levelCounts := make([]int, len(db.levels))
	for i, level := range db.levels {
		levelCounts[i] = len(level)
	}
	db.mu.RUnlock()

	level0Count := 0
	if len(levelCounts) > 0 {
		level0Count = levelCounts[0]
	}

	return StatsSnapshot{
		WriteCount:      db.stats.WriteCount.Load(),
		ReadCount:       db.stats.ReadCount.Load(),
		FlushCount:      db.stats.FlushCount.Load(),
		CompactionCount: db.stats.CompactionCount.Load(),
		BytesWritten:    db.stats.BytesWritten.Load(),
		IteratorsOpened: db.stats.IteratorsOpened.Load(),
		MemTableSize:    memTableSize,
		SSTableCount:    ssTableCount,
		Level0FileCount: level0Count,
		LevelFileCounts: levelCounts,
	}
}

// Close flushes pending writes, stops background workers and releases tables.
// Tables pinned by open iterators stay mapped until those iterators close.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil // Already closed
	}
	db.closed = true
	db.mu.Unlock()

	// Stop workers
	close(db.stopChan)
	db.wg.Wait()

	var result *multierror.Error

	// Final flush
	if err := db.flush(); err != nil {
		result = multierror.Append(result, fmt.Errorf("final flush failed: %w", err))
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, level := range db.levels {
		for _, sst := range level {
			if err := sst.unref(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	db.levels = nil

	db.opts.logf("closed %s", db.dataDir)
	return result.ErrorOrNil()
}
