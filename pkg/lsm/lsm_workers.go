package lsm

import (
	"fmt"
	"time"
)

// triggerFlush signals the flush worker
func (db *DB) triggerFlush() {
	select {
	case db.flushChan <- struct{}{}:
	default:
	}
}

// triggerCompaction signals the compaction worker
func (db *DB) triggerCompaction() {
	if db.opts.DisableAutoCompaction {
		return
	}
	select {
	case db.compactionChan <- struct{}{}:
	default:
	}
}

// flushWorker handles MemTable -> SSTable flushes
func (db *DB) flushWorker() {
	defer db.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-db.flushChan:
			if err := db.flush(); err != nil {
				db.opts.logf("flush failed: %v", err)
			}
		case <-ticker.C:
			// Periodic check
			db.mu.RLock()
			needsFlush := db.memTable.IsFull()
			db.mu.RUnlock()
			if needsFlush {
				if err := db.flush(); err != nil {
					db.opts.logf("periodic flush failed: %v", err)
				}
			}
		case <-db.stopChan:
			return
		}
	}
}

// flush writes the memtable to a level-0 table. A memtable whose write
// failed stays readable as the immutable table and is retried first.
func (db *DB) flush() error {
	db.flushMu.Lock()
	defer db.flushMu.Unlock()

	for {
		db.mu.Lock()
		if db.immutableTable == nil {
			if db.memTable.Len() == 0 {
				db.mu.Unlock()
				return nil
			}
			db.immutableTable = db.memTable
			db.memTable = NewMemTable(db.opts.writeBufferSize())
		}
		imm := db.immutableTable
		db.mu.Unlock()

		if err := db.writeLevel0(imm); err != nil {
			return err
		}
	}
}

func (db *DB) writeLevel0(imm *MemTable) error {
	entries := imm.Entries()
	fileNum := db.newFileNum()

	start := time.Now()
	sst, err := NewSSTable(SSTablePath(db.dataDir, 0, fileNum), fileNum, 0, entries, db.opts)
	if err != nil {
		return fmt.Errorf("write level-0 table %d: %w", fileNum, err)
	}

	// Add to L0
	db.mu.Lock()
	if len(db.levels) == 0 {
		db.levels = make([][]*SSTable, 1)
	}
	db.levels[0] = append(db.levels[0], sst)
	db.immutableTable = nil
	db.mu.Unlock()

	db.stats.FlushCount.Add(1)
	db.opts.logf("flushed %d entries to %s in %s", len(entries), sst.path, time.Since(start))

	// Trigger compaction if needed
	db.triggerCompaction()
	return nil
}

// compactionWorker handles SSTable compaction
func (db *DB) compactionWorker() {
	defer db.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-db.compactionChan:
			if err := db.compact(); err != nil {
				db.opts.logf("compaction failed: %v", err)
			}
		case <-ticker.C:
			if err := db.compact(); err != nil {
				db.opts.logf("periodic compaction failed: %v", err)
			}
		case <-db.stopChan:
			return
		}
	}
}

// compact performs compaction based on strategy
func (db *DB) compact() error {
	db.compactMu.Lock()
	defer db.compactMu.Unlock()

	db.mu.RLock()
	plan := db.opts.compactionStrategy().SelectCompaction(db.levels)
	db.mu.RUnlock()

	if plan == nil {
		return nil // No compaction needed
	}
	return db.runCompaction(plan)
}

// runCompaction executes a plan and installs its output. Callers hold
// compactMu.
func (db *DB) runCompaction(plan *CompactionPlan) error {
	start := time.Now()
	outputs, err := db.compactor.Compact(plan)
	if err != nil {
		return err
	}

	replaced := make(map[*SSTable]bool, len(plan.SSTables))
	for _, sst := range plan.SSTables {
		replaced[sst] = true
	}

	db.mu.Lock()
	// Copy-on-write so iterators holding the old slices are unaffected
	newLevels := make([][]*SSTable, len(db.levels))
	for i, level := range db.levels {
		kept := make([]*SSTable, 0, len(level))
		for _, sst := range level {
			if !replaced[sst] {
				kept = append(kept, sst)
			}
		}
		newLevels[i] = kept
	}
	for len(newLevels) <= plan.OutputLevel {
		newLevels = append(newLevels, nil)
	}
	newLevels[plan.OutputLevel] = append(newLevels[plan.OutputLevel], outputs...)
	db.levels = newLevels
	db.mu.Unlock()

	db.stats.CompactionCount.Add(1)
	db.opts.logf("compacted %d tables into %d at L%d in %s",
		len(plan.SSTables), len(outputs), plan.OutputLevel, time.Since(start))

	// Old tables are deleted once the last iterator releases them
	if err := db.compactor.CleanupOldSSTables(plan.SSTables); err != nil {
		return fmt.Errorf("failed to cleanup old SSTables: %w", err)
	}
	return nil
}

// countSSTables returns total number of SSTables
func (db *DB) countSSTables() int {
	count := 0
	for _, level := range db.levels {
		count += len(level)
	}
	return count
}
