package lsm

import (
	"bytes"
	"sort"
)

// Path returns the table's file path
func (sst *SSTable) Path() string {
	return sst.path
}

// FileNum returns the table's file number
func (sst *SSTable) FileNum() uint64 {
	return sst.fileNum
}

// Level returns the level the table belongs to
func (sst *SSTable) Level() int {
	return sst.level
}

// EntryCount returns the number of entries, tombstones included
func (sst *SSTable) EntryCount() uint64 {
	return sst.footer.EntryCount
}

// BlockCount returns the number of data blocks
func (sst *SSTable) BlockCount() int {
	return len(sst.index)
}

// Size returns the file size in bytes
func (sst *SSTable) Size() int64 {
	return int64(sst.reader.Len())
}

// Smallest returns the first key in the table
func (sst *SSTable) Smallest() []byte {
	return sst.smallest
}

// Largest returns the last key in the table
func (sst *SSTable) Largest() []byte {
	if len(sst.index) == 0 {
		return nil
	}
	return sst.index[len(sst.index)-1].LastKey
}

// Overlaps reports whether the table holds keys in [start, limit].
// A nil bound is unbounded.
func (sst *SSTable) Overlaps(start, limit []byte) bool {
	if len(sst.index) == 0 {
		return false
	}
	if start != nil && bytes.Compare(sst.Largest(), start) < 0 {
		return false
	}
	if limit != nil && bytes.Compare(sst.smallest, limit) > 0 {
		return false
	}
	return true
}

// sortEntries orders entries by key, newest first among equal keys
func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		cmp := EntryCompare(entries[i], entries[j])
		if cmp == 0 {
			return entries[i].Seq > entries[j].Seq
		}
		return cmp < 0
	})
}
