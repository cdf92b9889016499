package lsm

import (
	"bytes"
	"slices"
	"sync"
)

// Entry is one versioned record: a value or a tombstone for Key
type Entry struct {
	Key     []byte
	Value   []byte
	Seq     uint64 // higher wins when keys collide
	Deleted bool
}

// footprint is what an entry contributes to the write buffer
func (e *Entry) footprint() int {
	return len(e.Key) + len(e.Value)
}

// MemTable buffers the newest entry per key until it is flushed to a
// level-0 table. Keys are kept in order on insert, so Entries never sorts.
type MemTable struct {
	mu       sync.RWMutex
	byKey    map[string]*Entry
	order    []string
	bytes    int
	capacity int
}

// NewMemTable returns an empty memtable that reports full at capacity bytes
func NewMemTable(capacity int) *MemTable {
	return &MemTable{
		byKey:    make(map[string]*Entry),
		capacity: capacity,
	}
}

// Put records value for key at seq
func (mt *MemTable) Put(key, value []byte, seq uint64) {
	mt.set(&Entry{Key: key, Value: value, Seq: seq})
}

// Delete records a tombstone for key at seq
func (mt *MemTable) Delete(key []byte, seq uint64) {
	mt.set(&Entry{Key: key, Seq: seq, Deleted: true})
}

// set swaps in entry. Stored entries are never mutated, so slices returned
// by Entries stay valid.
func (mt *MemTable) set(entry *Entry) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	k := string(entry.Key)
	if old, ok := mt.byKey[k]; ok {
		mt.bytes -= old.footprint()
	} else {
		i, _ := slices.BinarySearch(mt.order, k)
		mt.order = slices.Insert(mt.order, i, k)
	}
	mt.byKey[k] = entry
	mt.bytes += entry.footprint()
}

// Get returns the entry for key, tombstones included
func (mt *MemTable) Get(key []byte) (*Entry, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	e, ok := mt.byKey[string(key)]
	return e, ok
}

// Size is the buffered key and value bytes
func (mt *MemTable) Size() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.bytes
}

// Len is the number of distinct keys, tombstones included
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.order)
}

// IsFull reports whether the buffer reached its capacity
func (mt *MemTable) IsFull() bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.bytes >= mt.capacity
}

// Entries returns a key-ordered snapshot of every entry
func (mt *MemTable) Entries() []*Entry {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	out := make([]*Entry, len(mt.order))
	for i, k := range mt.order {
		out[i] = mt.byKey[k]
	}
	return out
}

// EntryCompare orders entries by key
func EntryCompare(a, b *Entry) int {
	return bytes.Compare(a.Key, b.Key)
}
