package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Compactor performs SSTable compaction
type Compactor struct {
	dataDir    string
	opts       *Options
	newFileNum func() uint64
}

// NewCompactor creates a new compactor that allocates output file numbers
// from newFileNum
func NewCompactor(dataDir string, opts *Options, newFileNum func() uint64) *Compactor {
	return &Compactor{
		dataDir:    dataDir,
		opts:       opts,
		newFileNum: newFileNum,
	}
}

// Compact merges the plan's tables into new tables at the output level.
// Every surviving entry is rewritten, so output blocks use the current write
// codec. Any unreadable input block aborts the compaction and leaves the
// inputs untouched.
func (c *Compactor) Compact(plan *CompactionPlan) ([]*SSTable, error) {
	if plan == nil || len(plan.SSTables) == 0 {
		return nil, nil
	}

	ro := &ReadOptions{VerifyChecksums: true}
	sources := make([]internalIterator, 0, len(plan.SSTables))
	for _, sst := range plan.SSTables {
		sources = append(sources, newTableIterator(sst, ro))
	}
	merged := newMergeIterator(sources, !plan.DropTombstones)

	var (
		outputs []*SSTable
		tw      *tableWriter
		fileNum uint64
	)

	fail := func(err error) ([]*SSTable, error) {
		if tw != nil {
			tw.abort()
		}
		for _, sst := range outputs {
			sst.obsolete.Store(true)
			_ = sst.unref()
		}
		return nil, err
	}

	finishTable := func() error {
		if err := tw.finish(); err != nil {
			tw = nil
			return err
		}
		tw = nil
		sst, err := OpenSSTable(SSTablePath(c.dataDir, plan.OutputLevel, fileNum), fileNum, plan.OutputLevel, c.opts)
		if err != nil {
			return err
		}
		outputs = append(outputs, sst)
		return nil
	}

	maxSize := uint64(c.opts.maxTableSize())
	for merged.SeekToFirst(); merged.Valid(); merged.Next() {
		if tw == nil {
			fileNum = c.newFileNum()
			var err error
			tw, err = newTableWriter(SSTablePath(c.dataDir, plan.OutputLevel, fileNum), c.opts)
			if err != nil {
				return fail(err)
			}
		}
		if err := tw.add(merged.entry()); err != nil {
			return fail(err)
		}
		if tw.estimatedSize() >= maxSize {
			if err := finishTable(); err != nil {
				return fail(err)
			}
		}
	}

	if err := merged.Err(); err != nil {
		return fail(fmt.Errorf("compaction input: %w", err))
	}
	if tw != nil {
		if err := finishTable(); err != nil {
			return fail(err)
		}
	}

	return outputs, nil
}

// CleanupOldSSTables marks compacted tables obsolete and drops the
// database's reference; each file is removed when its last reader is done
func (c *Compactor) CleanupOldSSTables(sstables []*SSTable) error {
	var result *multierror.Error
	for _, sst := range sstables {
		sst.obsolete.Store(true)
		if err := sst.unref(); err != nil {
			result = multierror.Append(result, fmt.Errorf("release %s: %w", sst.path, err))
		}
	}
	return result.ErrorOrNil()
}

// ListSSTables opens every table in dir, grouped by level. It returns the
// highest file number and sequence number seen so new writes sort after
// existing data. Leftover temporary files from interrupted writes are removed.
func ListSSTables(dir string, opts *Options) ([][]*SSTable, uint64, uint64, error) {
	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, 0, err
	}

	var (
		levels     [][]*SSTable
		maxFileNum uint64
		maxSeq     uint64
	)

	closeAll := func() {
		for _, level := range levels {
			for _, sst := range level {
				_ = sst.unref()
			}
		}
	}

	for _, de := range names {
		name := de.Name()
		if de.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tempSuffix) {
			_ = os.Remove(filepath.Join(dir, name))
			continue
		}

		var level int
		var fileNum uint64
		if n, err := fmt.Sscanf(name, "L%d-%d.sst", &level, &fileNum); err != nil || n != 2 || level < 0 {
			continue
		}

		sst, err := OpenSSTable(filepath.Join(dir, name), fileNum, level, opts)
		if err != nil {
			closeAll()
			return nil, 0, 0, err
		}

		for len(levels) <= level {
			levels = append(levels, nil)
		}
		levels[level] = append(levels[level], sst)
		if fileNum > maxFileNum {
			maxFileNum = fileNum
		}
		if sst.footer.MaxSeq > maxSeq {
			maxSeq = sst.footer.MaxSeq
		}
	}

	return levels, maxFileNum, maxSeq, nil
}
