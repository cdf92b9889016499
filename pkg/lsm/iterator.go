package lsm

import (
	"bytes"

	"github.com/hashicorp/go-multierror"
)

// Iterator is a forward-only cursor over a consistent view of the database.
//
// Key and Value return slices owned by the iterator that stay valid until
// Close. Blocks that cannot be read or decoded are skipped; Err reports
// every such failure.
type Iterator interface {
	SeekToFirst()
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// internalIterator yields entries of one source, tombstones included
type internalIterator interface {
	SeekToFirst()
	Valid() bool
	Next()
	entry() *Entry
	Err() error
}

// memIterator iterates a sorted snapshot of memtable entries
type memIterator struct {
	entries []*Entry
	index   int
}

func newMemIterator(entries []*Entry) *memIterator {
	return &memIterator{entries: entries, index: len(entries)}
}

func (it *memIterator) SeekToFirst()  { it.index = 0 }
func (it *memIterator) Valid() bool   { return it.index < len(it.entries) }
func (it *memIterator) Next()         { it.index++ }
func (it *memIterator) entry() *Entry { return it.entries[it.index] }
func (it *memIterator) Err() error    { return nil }

// tableIterator walks an SSTable block by block
type tableIterator struct {
	sst      *SSTable
	ro       *ReadOptions
	blockIdx int
	entries  []*Entry
	pos      int
	errs     *multierror.Error
}

func newTableIterator(sst *SSTable, ro *ReadOptions) *tableIterator {
	return &tableIterator{sst: sst, ro: ro, blockIdx: len(sst.index)}
}

func (it *tableIterator) SeekToFirst() {
	it.blockIdx = -1
	it.loadNextBlock()
}

// loadNextBlock advances to the next readable, non-empty block. Unreadable
// blocks are skipped and their failures collected.
func (it *tableIterator) loadNextBlock() {
	it.entries, it.pos = nil, 0
	for {
		it.blockIdx++
		if it.blockIdx >= len(it.sst.index) {
			return
		}

		block, err := it.sst.readBlock(it.sst.index[it.blockIdx].Handle, it.ro)
		if err == nil {
			var entries []*Entry
			entries, err = decodeBlock(block)
			if err == nil && len(entries) > 0 {
				it.entries = entries
				return
			}
		}
		if err != nil {
			it.sst.opts.logf("skipping unreadable block %d of %s: %v", it.blockIdx, it.sst.path, err)
			it.errs = multierror.Append(it.errs, err)
		}
	}
}

func (it *tableIterator) Valid() bool { return it.pos < len(it.entries) }

func (it *tableIterator) Next() {
	it.pos++
	if it.pos >= len(it.entries) {
		it.loadNextBlock()
	}
}

func (it *tableIterator) entry() *Entry { return it.entries[it.pos] }
func (it *tableIterator) Err() error    { return it.errs.ErrorOrNil() }

// mergeIterator merges sorted sources, yielding the newest entry per key
type mergeIterator struct {
	sources        []internalIterator
	keepTombstones bool
	current        *Entry
}

func newMergeIterator(sources []internalIterator, keepTombstones bool) *mergeIterator {
	return &mergeIterator{sources: sources, keepTombstones: keepTombstones}
}

func (mi *mergeIterator) SeekToFirst() {
	for _, src := range mi.sources {
		src.SeekToFirst()
	}
	mi.findNext()
}

// findNext picks the smallest key across sources, resolves duplicates by
// sequence number and consumes that key from every source
func (mi *mergeIterator) findNext() {
	for {
		var newest *Entry
		for _, src := range mi.sources {
			if !src.Valid() {
				continue
			}
			e := src.entry()
			if newest == nil {
				newest = e
				continue
			}
			cmp := bytes.Compare(e.Key, newest.Key)
			if cmp < 0 || (cmp == 0 && e.Seq > newest.Seq) {
				newest = e
			}
		}

		if newest == nil {
			mi.current = nil
			return
		}

		for _, src := range mi.sources {
			for src.Valid() && bytes.Equal(src.entry().Key, newest.Key) {
				src.Next()
			}
		}

		if newest.Deleted && !mi.keepTombstones {
			continue
		}
		mi.current = newest
		return
	}
}

func (mi *mergeIterator) Valid() bool   { return mi.current != nil }
func (mi *mergeIterator) Next()         { mi.findNext() }
func (mi *mergeIterator) entry() *Entry { return mi.current }

// Err combines the errors reported by every source
func (mi *mergeIterator) Err() error {
	var result *multierror.Error
	for _, src := range mi.sources {
		if err := src.Err(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// dbIterator is the public iterator: a merge over a pinned set of tables
type dbIterator struct {
	merge  *mergeIterator
	tables []*SSTable
	closed bool
	err    error
}

func (it *dbIterator) SeekToFirst()  { it.merge.SeekToFirst() }
func (it *dbIterator) Valid() bool   { return !it.closed && it.merge.Valid() }
func (it *dbIterator) Next()         { it.merge.Next() }
func (it *dbIterator) Key() []byte   { return it.merge.entry().Key }
func (it *dbIterator) Value() []byte { return it.merge.entry().Value }

func (it *dbIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.merge.Err()
}

// Close releases the tables pinned by the iterator
func (it *dbIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	var firstErr error
	for _, sst := range it.tables {
		if err := sst.unref(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	it.tables = nil
	return firstErr
}
