package lsm

import "bytes"

// CompactionStrategy picks the next background compaction, or nil
type CompactionStrategy interface {
	SelectCompaction(levels [][]*SSTable) *CompactionPlan
}

// CompactionPlan describes which SSTables to compact
type CompactionPlan struct {
	Level       int
	SSTables    []*SSTable
	OutputLevel int

	// DropTombstones is only safe when the plan covers every table,
	// otherwise a dropped tombstone could resurrect an older value.
	DropTombstones bool
}

// DefaultLevel1MaxBytes is the size budget of level 1, as in LevelDB
const DefaultLevel1MaxBytes = 10 * 1024 * 1024

// LeveledCompactionStrategy implements LevelDB-style leveled compaction.
// Level 0 holds memtable flushes and is compacted by file count; level N
// (N >= 1) is compacted once it outgrows Level1MaxBytes * LevelSizeRatio^(N-1).
// Tables of the output level overlapping the input are merged too.
type LeveledCompactionStrategy struct {
	Level0FileLimit int     // L0 files that trigger a compaction
	LevelSizeRatio  float64 // growth factor between levels (default 10.0)
	MaxLevels       int     // the last level is never compacted further
	Level1MaxBytes  int64   // 0 uses DefaultLevel1MaxBytes
}

// DefaultLeveledCompaction returns default leveled compaction config
func DefaultLeveledCompaction() *LeveledCompactionStrategy {
	return &LeveledCompactionStrategy{
		Level0FileLimit: 4,
		LevelSizeRatio:  10.0,
		MaxLevels:       7,
		Level1MaxBytes:  DefaultLevel1MaxBytes,
	}
}

// SelectCompaction returns a plan for the first level over its budget
func (lcs *LeveledCompactionStrategy) SelectCompaction(levels [][]*SSTable) *CompactionPlan {
	if len(levels) > 0 && len(levels[0]) >= lcs.Level0FileLimit {
		return lcs.plan(levels, 0, levels[0])
	}

	budget := lcs.Level1MaxBytes
	if budget <= 0 {
		budget = DefaultLevel1MaxBytes
	}
	for level := 1; level < len(levels) && level+1 < lcs.MaxLevels; level++ {
		if len(levels[level]) > 0 && calculateLevelSize(levels[level]) > budget {
			return lcs.plan(levels, level, levels[level])
		}
		budget = int64(float64(budget) * lcs.LevelSizeRatio)
	}
	return nil
}

// plan merges inputs from level with the overlapping tables one level down
func (lcs *LeveledCompactionStrategy) plan(levels [][]*SSTable, level int, inputs []*SSTable) *CompactionPlan {
	p := &CompactionPlan{
		Level:       level,
		SSTables:    append([]*SSTable(nil), inputs...),
		OutputLevel: level + 1,
	}
	if level+1 >= len(levels) {
		return p
	}

	smallest, largest := keyRange(inputs)
	for _, sst := range levels[level+1] {
		if sst.Overlaps(smallest, largest) {
			p.SSTables = append(p.SSTables, sst)
		}
	}
	return p
}

// keyRange returns the smallest and largest key across tables
func keyRange(tables []*SSTable) (smallest, largest []byte) {
	for _, sst := range tables {
		lo, hi := sst.Smallest(), sst.Largest()
		if smallest == nil || bytes.Compare(lo, smallest) < 0 {
			smallest = lo
		}
		if largest == nil || bytes.Compare(hi, largest) > 0 {
			largest = hi
		}
	}
	return smallest, largest
}

// calculateLevelSize returns total size of all SSTables in a level
func calculateLevelSize(sstables []*SSTable) int64 {
	var size int64
	for _, sst := range sstables {
		size += sst.Size()
	}
	return size
}
