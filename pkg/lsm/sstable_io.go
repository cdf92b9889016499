package lsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"
)

// writeEntry appends an entry to a block buffer
// Format: keyLen(4) | key | valueLen(4) | value | seq(8) | deleted(1)
func writeEntry(w *bytes.Buffer, entry *Entry) int {
	var scratch [8]byte
	start := w.Len()

	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(entry.Key)))
	w.Write(scratch[:4])
	w.Write(entry.Key)

	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(entry.Value)))
	w.Write(scratch[:4])
	w.Write(entry.Value)

	binary.LittleEndian.PutUint64(scratch[:], entry.Seq)
	w.Write(scratch[:])

	deleted := byte(0)
	if entry.Deleted {
		deleted = 1
	}
	w.WriteByte(deleted)

	return w.Len() - start
}

// readEntry reads one entry from a decoded block
func readEntry(r *bytes.Reader) (*Entry, error) {
	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return nil, err
	}
	if int64(keyLen) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: key length %d exceeds block", ErrCorruption, keyLen)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	var valueLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return nil, err
	}
	if int64(valueLen) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: value length %d exceeds block", ErrCorruption, valueLen)
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, err
	}

	var seq uint64
	if err := binary.Read(r, binary.LittleEndian, &seq); err != nil {
		return nil, err
	}

	deletedByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	return &Entry{
		Key:     key,
		Value:   value,
		Seq:     seq,
		Deleted: deletedByte == 1,
	}, nil
}

// decodeBlock parses every entry of a decompressed data block
func decodeBlock(block []byte) ([]*Entry, error) {
	r := bytes.NewReader(block)
	entries := make([]*Entry, 0, 64)
	for r.Len() > 0 {
		entry, err := readEntry(r)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated block entry: %v", ErrCorruption, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// blockChecksum covers the stored payload and its codec id
func blockChecksum(payload []byte, codec byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(payload)
	crc.Write([]byte{codec})
	return crc.Sum32()
}

// encodeIndex serializes the smallest key and the block index
func encodeIndex(smallest []byte, index []IndexEntry) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(smallest)))
	buf.Write(scratch[:4])
	buf.Write(smallest)

	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(index)))
	buf.Write(scratch[:4])

	for _, entry := range index {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(entry.LastKey)))
		buf.Write(scratch[:4])
		buf.Write(entry.LastKey)
		binary.LittleEndian.PutUint64(scratch[:], entry.Handle.Offset)
		buf.Write(scratch[:])
		binary.LittleEndian.PutUint32(scratch[:4], entry.Handle.Length)
		buf.Write(scratch[:4])
	}

	return buf.Bytes()
}

// decodeIndex parses an index block
func decodeIndex(data []byte) ([]byte, []IndexEntry, error) {
	r := bytes.NewReader(data)

	readKey := func() ([]byte, error) {
		var keyLen uint32
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return nil, err
		}
		if int64(keyLen) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: index key length %d exceeds block", ErrCorruption, keyLen)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("failed to read index key: %w", err)
		}
		return key, nil
	}

	smallest, err := readKey()
	if err != nil {
		return nil, nil, err
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, nil, err
	}

	index := make([]IndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := readKey()
		if err != nil {
			return nil, nil, err
		}
		var handle blockHandle
		if err := binary.Read(r, binary.LittleEndian, &handle.Offset); err != nil {
			return nil, nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &handle.Length); err != nil {
			return nil, nil, err
		}
		index = append(index, IndexEntry{LastKey: key, Handle: handle})
	}

	return smallest, index, nil
}

// SSTablePath generates a path for a table file
func SSTablePath(dir string, level int, fileNum uint64) string {
	return filepath.Join(dir, fmt.Sprintf("L%d-%06d.sst", level, fileNum))
}
