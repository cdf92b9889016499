package lsm

import (
	"encoding/binary"
)

// batchHeaderSize mirrors the leveldb batch header (sequence + count), so
// ApproximateSize of an empty batch is never zero.
const batchHeaderSize = 12

type batchRecord struct {
	deleted bool
	key     []byte
	value   []byte
}

// Batch is an ordered list of puts and deletes applied atomically by DB.Write.
// Keys and values are copied on insertion.
type Batch struct {
	records []batchRecord
	size    int
}

// NewBatch creates an empty batch
func NewBatch() *Batch {
	return &Batch{size: batchHeaderSize}
}

// Put appends a put record
func (b *Batch) Put(key, value []byte) {
	b.append(batchRecord{key: cloneBytes(key), value: cloneBytes(value)})
}

// Delete appends a delete record
func (b *Batch) Delete(key []byte) {
	b.append(batchRecord{deleted: true, key: cloneBytes(key)})
}

func (b *Batch) append(rec batchRecord) {
	if b.size == 0 {
		b.size = batchHeaderSize
	}
	b.records = append(b.records, rec)
	b.size += 1 + uvarintLen(len(rec.key)) + len(rec.key)
	if !rec.deleted {
		b.size += uvarintLen(len(rec.value)) + len(rec.value)
	}
}

// Len returns the number of records
func (b *Batch) Len() int {
	return len(b.records)
}

// ApproximateSize returns the encoded size of the batch in bytes
func (b *Batch) ApproximateSize() int {
	if b.size == 0 {
		return batchHeaderSize
	}
	return b.size
}

// Reset empties the batch, keeping its capacity
func (b *Batch) Reset() {
	clear(b.records)
	b.records = b.records[:0]
	b.size = batchHeaderSize
}

// Replay calls put or del for each record in insertion order
func (b *Batch) Replay(put func(key, value []byte), del func(key []byte)) {
	for _, rec := range b.records {
		if rec.deleted {
			del(rec.key)
		} else {
			put(rec.key, rec.value)
		}
	}
}

func uvarintLen(n int) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], uint64(n))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
