package lsm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// tableWriter streams sorted entries into a new table file, cutting a data
// block whenever the buffered entries reach the configured block size.
type tableWriter struct {
	path   string
	tmp    string
	file   *os.File
	writer *bufio.Writer
	opts   *Options

	offset     uint64
	block      bytes.Buffer
	lastKey    []byte
	smallest   []byte
	index      []IndexEntry
	filterKeys [][]byte
	entryCount uint64
	maxSeq     uint64
}

func newTableWriter(path string, opts *Options) (*tableWriter, error) {
	tmp := path + tempSuffix
	file, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}

	return &tableWriter{
		path:   path,
		tmp:    tmp,
		file:   file,
		writer: bufio.NewWriter(file),
		opts:   opts,
	}, nil
}

// add appends an entry; entries must arrive in strictly increasing key order
func (tw *tableWriter) add(entry *Entry) error {
	if tw.lastKey != nil && bytes.Compare(entry.Key, tw.lastKey) <= 0 {
		return fmt.Errorf("table writer: key %q out of order after %q", entry.Key, tw.lastKey)
	}
	if tw.smallest == nil {
		tw.smallest = cloneBytes(entry.Key)
	}

	writeEntry(&tw.block, entry)
	tw.lastKey = cloneBytes(entry.Key)
	tw.entryCount++
	if entry.Seq > tw.maxSeq {
		tw.maxSeq = entry.Seq
	}
	if tw.opts.FilterPolicy != nil {
		tw.filterKeys = append(tw.filterKeys, tw.lastKey)
	}

	if tw.block.Len() >= tw.opts.blockSize() {
		return tw.flushBlock()
	}
	return nil
}

// flushBlock compresses the pending block and writes it with its trailer
func (tw *tableWriter) flushBlock() error {
	if tw.block.Len() == 0 {
		return nil
	}

	payload := tw.block.Bytes()
	codecID := compress.NoCompression
	if c := tw.opts.writeCompressor(); c != nil {
		compressed, err := c.Compress(payload)
		if err != nil {
			return fmt.Errorf("failed to compress block with %s: %w", c.Name(), err)
		}
		payload = compressed
		codecID = c.ID()
	}

	var trailer [blockTrailerSize]byte
	trailer[0] = byte(codecID)
	binary.LittleEndian.PutUint32(trailer[1:], blockChecksum(payload, trailer[0]))

	if _, err := tw.writer.Write(payload); err != nil {
		return err
	}
	if _, err := tw.writer.Write(trailer[:]); err != nil {
		return err
	}

	tw.index = append(tw.index, IndexEntry{
		LastKey: tw.lastKey,
		Handle:  blockHandle{Offset: tw.offset, Length: uint32(len(payload))},
	})

	// Offsets are 64-bit; a wrap means the file is corrupt
	newOffset := tw.offset + uint64(len(payload)) + blockTrailerSize
	if newOffset < tw.offset {
		return fmt.Errorf("SSTable offset overflow: file too large")
	}
	tw.offset = newOffset
	tw.block.Reset()
	return nil
}

// estimatedSize returns the bytes written so far plus the pending block
func (tw *tableWriter) estimatedSize() uint64 {
	return tw.offset + uint64(tw.block.Len())
}

// finish writes the filter, index and footer, syncs the file and moves it
// into place
func (tw *tableWriter) finish() error {
	if err := tw.flushBlock(); err != nil {
		tw.abort()
		return err
	}

	footer := SSTableFooter{
		EntryCount: tw.entryCount,
		MaxSeq:     tw.maxSeq,
		Magic:      SSTableMagic,
		Version:    SSTableVersion,
	}

	var filter []byte
	if tw.opts.FilterPolicy != nil {
		filter = tw.opts.FilterPolicy.NewFilter(tw.filterKeys)
	}
	footer.FilterOffset = tw.offset
	footer.FilterLength = uint32(len(filter))
	if _, err := tw.writer.Write(filter); err != nil {
		tw.abort()
		return err
	}
	tw.offset += uint64(len(filter))

	index := encodeIndex(tw.smallest, tw.index)
	footer.IndexOffset = tw.offset
	footer.IndexLength = uint32(len(index))
	if _, err := tw.writer.Write(index); err != nil {
		tw.abort()
		return err
	}

	if err := binary.Write(tw.writer, binary.LittleEndian, &footer); err != nil {
		tw.abort()
		return err
	}

	if err := tw.writer.Flush(); err != nil {
		tw.abort()
		return err
	}
	if err := tw.file.Sync(); err != nil {
		tw.abort()
		return err
	}
	if err := tw.file.Close(); err != nil {
		_ = os.Remove(tw.tmp)
		return err
	}
	return os.Rename(tw.tmp, tw.path)
}

// abort closes and removes a partially written table
func (tw *tableWriter) abort() {
	_ = tw.file.Close()
	_ = os.Remove(tw.tmp)
}

// NewSSTable writes entries to a new table file and opens it.
// Entries are sorted by key first; only the newest entry per key is kept.
func NewSSTable(path string, fileNum uint64, level int, entries []*Entry, opts *Options) (*SSTable, error) {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	tw, err := newTableWriter(path, opts)
	if err != nil {
		return nil, err
	}

	for i, entry := range sorted {
		if i > 0 && bytes.Equal(entry.Key, sorted[i-1].Key) {
			continue
		}
		if err := tw.add(entry); err != nil {
			tw.abort()
			return nil, err
		}
	}

	if err := tw.finish(); err != nil {
		return nil, err
	}

	return OpenSSTable(path, fileNum, level, opts)
}
