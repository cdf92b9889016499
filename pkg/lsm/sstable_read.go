package lsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// OpenSSTable memory-maps an existing table and loads its index and filter
func OpenSSTable(path string, fileNum uint64, level int, opts *Options) (*SSTable, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*SSTable, error) {
		_ = reader.Close()
		return nil, fmt.Errorf("open table %s: %w", filepath.Base(path), err)
	}

	if reader.Len() < footerSize {
		return fail(fmt.Errorf("%w: file too short (%d bytes)", ErrCorruption, reader.Len()))
	}

	footerBuf := make([]byte, footerSize)
	if _, err := reader.ReadAt(footerBuf, int64(reader.Len()-footerSize)); err != nil {
		return fail(err)
	}

	var footer SSTableFooter
	if err := binary.Read(bytes.NewReader(footerBuf), binary.LittleEndian, &footer); err != nil {
		return fail(err)
	}

	if footer.Magic != SSTableMagic {
		return fail(fmt.Errorf("%w: invalid SSTable magic: %x", ErrCorruption, footer.Magic))
	}
	if footer.Version != SSTableVersion {
		return fail(fmt.Errorf("%w: unsupported SSTable version %d", ErrCorruption, footer.Version))
	}
	if footer.IndexOffset+uint64(footer.IndexLength) > uint64(reader.Len()) ||
		footer.FilterOffset+uint64(footer.FilterLength) > uint64(reader.Len()) {
		return fail(fmt.Errorf("%w: footer points past end of file", ErrCorruption))
	}

	indexBuf := make([]byte, footer.IndexLength)
	if _, err := reader.ReadAt(indexBuf, int64(footer.IndexOffset)); err != nil {
		return fail(err)
	}
	smallest, index, err := decodeIndex(indexBuf)
	if err != nil {
		return fail(err)
	}

	filter := make([]byte, footer.FilterLength)
	if _, err := reader.ReadAt(filter, int64(footer.FilterOffset)); err != nil {
		return fail(err)
	}

	sst := &SSTable{
		path:     path,
		fileNum:  fileNum,
		level:    level,
		reader:   reader,
		footer:   footer,
		index:    index,
		filter:   filter,
		smallest: smallest,
		opts:     opts,
	}
	sst.refs.Store(1)
	return sst, nil
}

// readBlock returns the decompressed contents of a data block. Blocks read
// from disk are reported to the block decode hook before decompression;
// cache hits are not.
func (sst *SSTable) readBlock(h blockHandle, ro *ReadOptions) ([]byte, error) {
	cache := sst.opts.BlockCache
	key := blockKey{file: sst.fileNum, offset: h.Offset}
	if cache != nil {
		if block, ok := cache.Get(key); ok {
			return block, nil
		}
	}

	raw := make([]byte, int(h.Length)+blockTrailerSize)
	if _, err := sst.reader.ReadAt(raw, int64(h.Offset)); err != nil {
		return nil, fmt.Errorf("%w: read block at %d in %s: %v", ErrCorruption, h.Offset, filepath.Base(sst.path), err)
	}

	payload := raw[:h.Length]
	codecID := compress.ID(raw[h.Length])
	if ro.VerifyChecksums {
		stored := binary.LittleEndian.Uint32(raw[h.Length+1:])
		if stored != blockChecksum(payload, byte(codecID)) {
			return nil, fmt.Errorf("%w: block checksum mismatch at %d in %s", ErrCorruption, h.Offset, filepath.Base(sst.path))
		}
	}

	foundBlockWithCompressor(codecID, sst.opts)

	block := payload
	if codecID != compress.NoCompression {
		codec := sst.opts.compressor(codecID)
		if codec == nil {
			return nil, fmt.Errorf("%w for id %d (block at %d in %s)",
				ErrMissingCompressor, codecID, h.Offset, filepath.Base(sst.path))
		}
		decoded, err := codec.Decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s block at %d in %s: %v", ErrCorruption, codec.Name(), h.Offset, filepath.Base(sst.path), err)
		}
		block = decoded
	}

	if ro.FillCache && cache != nil {
		cache.Put(key, block)
	}
	return block, nil
}

// Get looks up the newest entry for key in this table, tombstones included
func (sst *SSTable) Get(key []byte, ro *ReadOptions) (*Entry, bool, error) {
	// Check filter first - fast negative lookup
	if sst.opts.FilterPolicy != nil && len(sst.filter) > 0 &&
		!sst.opts.FilterPolicy.MayContain(sst.filter, key) {
		return nil, false, nil
	}

	idx := sort.Search(len(sst.index), func(i int) bool {
		return bytes.Compare(sst.index[i].LastKey, key) >= 0
	})
	if idx == len(sst.index) {
		return nil, false, nil
	}

	block, err := sst.readBlock(sst.index[idx].Handle, ro)
	if err != nil {
		return nil, false, err
	}
	entries, err := decodeBlock(block)
	if err != nil {
		return nil, false, err
	}

	i := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
	if i < len(entries) && bytes.Equal(entries[i].Key, key) {
		return entries[i], true, nil
	}
	return nil, false, nil
}

// ref takes a reference that keeps the table mapped
func (sst *SSTable) ref() {
	sst.refs.Add(1)
}

// unref drops a reference; the last one unmaps the table and, if it was
// replaced by a compaction, deletes the file
func (sst *SSTable) unref() error {
	if sst.refs.Add(-1) != 0 {
		return nil
	}

	err := sst.reader.Close()
	if sst.obsolete.Load() {
		if sst.opts.BlockCache != nil {
			sst.opts.BlockCache.EvictFile(sst.fileNum)
		}
		if rmErr := os.Remove(sst.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
