package lsm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/dd0wney/hackdb/pkg/compress"
)

func buildTable(t *testing.T, opts *Options, n int) *SSTable {
	t.Helper()
	entries := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, &Entry{Key: testKey(i), Value: testValue(i), Seq: uint64(i + 1)})
	}
	path := SSTablePath(t.TempDir(), 0, 1)
	sst, err := NewSSTable(path, 1, 0, entries, opts)
	if err != nil {
		t.Fatalf("NewSSTable failed: %v", err)
	}
	t.Cleanup(func() { _ = sst.unref() })
	return sst
}

func TestSSTable_CreateAndOpen(t *testing.T) {
	opts := testOptions()
	sst := buildTable(t, opts, 200)

	if sst.EntryCount() != 200 {
		t.Errorf("EntryCount = %d, want 200", sst.EntryCount())
	}
	if sst.BlockCount() < 2 {
		t.Errorf("Expected several blocks with a 1KiB block size, got %d", sst.BlockCount())
	}
	if string(sst.Smallest()) != string(testKey(0)) || string(sst.Largest()) != string(testKey(199)) {
		t.Errorf("Bounds = %q..%q", sst.Smallest(), sst.Largest())
	}

	reopened, err := OpenSSTable(sst.Path(), 1, 0, opts)
	if err != nil {
		t.Fatalf("OpenSSTable failed: %v", err)
	}
	defer reopened.unref()
	if reopened.footer.MaxSeq != 200 {
		t.Errorf("MaxSeq = %d, want 200", reopened.footer.MaxSeq)
	}
}

func TestSSTable_Get(t *testing.T) {
	sst := buildTable(t, testOptions(), 300)
	ro := DefaultReadOptions()

	for _, i := range []int{0, 1, 150, 299} {
		entry, ok, err := sst.Get(testKey(i), ro)
		if err != nil || !ok {
			t.Fatalf("Get(%d) = %v, %v", i, ok, err)
		}
		if string(entry.Value) != string(testValue(i)) {
			t.Errorf("Get(%d) value = %q", i, entry.Value)
		}
	}

	if _, ok, err := sst.Get([]byte("zzz"), ro); ok || err != nil {
		t.Errorf("Expected miss past the last key, got %v, %v", ok, err)
	}
}

func TestSSTable_DuplicateKeysKeepNewest(t *testing.T) {
	opts := testOptions()
	entries := []*Entry{
		{Key: []byte("k"), Value: []byte("old"), Seq: 1},
		{Key: []byte("k"), Value: []byte("new"), Seq: 5},
		{Key: []byte("j"), Value: []byte("j"), Seq: 2},
	}
	sst, err := NewSSTable(SSTablePath(t.TempDir(), 0, 7), 7, 0, entries, opts)
	if err != nil {
		t.Fatalf("NewSSTable failed: %v", err)
	}
	defer sst.unref()

	entry, ok, err := sst.Get([]byte("k"), DefaultReadOptions())
	if err != nil || !ok || string(entry.Value) != "new" {
		t.Errorf("Get(k) = %+v, %v, %v", entry, ok, err)
	}
	if sst.EntryCount() != 2 {
		t.Errorf("EntryCount = %d, want 2", sst.EntryCount())
	}
}

func TestSSTable_BlocksCarryWriteCodecID(t *testing.T) {
	opts := testOptions()
	sst := buildTable(t, opts, 100)
	rec := recordHook(t, opts)

	it := newTableIterator(sst, &ReadOptions{VerifyChecksums: true})
	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		n++
	}
	if it.Err() != nil {
		t.Fatalf("Iteration error: %v", it.Err())
	}
	if n != 100 {
		t.Errorf("Iterated %d entries, want 100", n)
	}
	if got := rec.count(compress.ZlibRawID); got != sst.BlockCount() {
		t.Errorf("Hook saw %d zlib-raw blocks, want %d", got, sst.BlockCount())
	}
	if rec.total() != rec.count(compress.ZlibRawID) {
		t.Errorf("Hook saw unexpected codec ids: %v", rec.counts)
	}
}

func TestSSTable_UncompressedBlocks(t *testing.T) {
	opts := testOptions()
	opts.Compressors = [MaxCompressors]compress.Codec{}
	sst := buildTable(t, opts, 50)
	rec := recordHook(t, opts)

	if _, _, err := sst.Get(testKey(10), &ReadOptions{}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.count(compress.NoCompression) != 1 {
		t.Errorf("Expected one raw block decode, got %v", rec.counts)
	}
}

func TestSSTable_CacheHitsSkipHook(t *testing.T) {
	opts := testOptions()
	opts.BlockCache = NewBlockCache(1 << 20)
	sst := buildTable(t, opts, 50)
	rec := recordHook(t, opts)

	ro := DefaultReadOptions()
	for i := 0; i < 3; i++ {
		if _, ok, err := sst.Get(testKey(5), ro); !ok || err != nil {
			t.Fatalf("Get failed: %v, %v", ok, err)
		}
	}
	if rec.total() != 1 {
		t.Errorf("Expected one disk read, hook fired %d times", rec.total())
	}
}

func TestSSTable_MissingCompressor(t *testing.T) {
	opts := testOptions()
	sst := buildTable(t, opts, 50)

	readOpts := testOptions()
	readOpts.Compressors = [MaxCompressors]compress.Codec{compress.NewSnappy()}
	reader, err := OpenSSTable(sst.Path(), 1, 0, readOpts)
	if err != nil {
		t.Fatalf("OpenSSTable failed: %v", err)
	}
	defer reader.unref()
	rec := recordHook(t, readOpts)

	_, _, err = reader.Get(testKey(1), &ReadOptions{})
	if !errors.Is(err, ErrMissingCompressor) || !errors.Is(err, ErrCorruption) {
		t.Fatalf("Expected a missing compressor error, got %v", err)
	}
	// The hook still sees the block before decoding fails
	if rec.count(compress.ZlibRawID) != 1 {
		t.Errorf("Hook counts = %v", rec.counts)
	}

	it := newTableIterator(reader, &ReadOptions{})
	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		n++
	}
	if n != 0 || it.Err() == nil {
		t.Errorf("Expected every block skipped with an error, got n=%d err=%v", n, it.Err())
	}
}

func TestSSTable_ChecksumMismatch(t *testing.T) {
	opts := testOptions()
	sst := buildTable(t, opts, 50)
	path := sst.Path()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[3] ^= 0xff
	corrupt := filepath.Join(t.TempDir(), "L0-000002.sst")
	if err := os.WriteFile(corrupt, data, 0644); err != nil {
		t.Fatal(err)
	}

	bad, err := OpenSSTable(corrupt, 2, 0, opts)
	if err != nil {
		t.Fatalf("OpenSSTable failed: %v", err)
	}
	defer bad.unref()

	_, _, err = bad.Get(testKey(0), &ReadOptions{VerifyChecksums: true})
	if !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected checksum failure, got %v", err)
	}
	if errors.Is(err, ErrMissingCompressor) {
		t.Errorf("Checksum failure reported as a missing compressor: %v", err)
	}
}

// corruptCopy writes a copy of sst with one payload byte of its first block flipped
func corruptCopy(t *testing.T, sst *SSTable, fileNum uint64) *SSTable {
	t.Helper()
	data, err := os.ReadFile(sst.Path())
	if err != nil {
		t.Fatal(err)
	}
	data[3] ^= 0xff
	path := SSTablePath(t.TempDir(), 0, fileNum)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	bad, err := OpenSSTable(path, fileNum, 0, sst.opts)
	if err != nil {
		t.Fatalf("OpenSSTable failed: %v", err)
	}
	t.Cleanup(func() { _ = bad.unref() })
	return bad
}

func TestMergeIterator_ReportsEveryFailure(t *testing.T) {
	good := buildTable(t, testOptions(), 50)

	readOpts := testOptions()
	readOpts.Compressors = [MaxCompressors]compress.Codec{compress.NewSnappy()}
	undecodable, err := OpenSSTable(good.Path(), 1, 0, readOpts)
	if err != nil {
		t.Fatalf("OpenSSTable failed: %v", err)
	}
	defer undecodable.unref()

	damaged := corruptCopy(t, good, 2)

	ro := &ReadOptions{VerifyChecksums: true}
	it := newMergeIterator([]internalIterator{
		newTableIterator(undecodable, ro),
		newTableIterator(damaged, ro),
	}, false)
	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		n++
	}
	if n == 0 {
		t.Error("Expected the undamaged blocks of the second table")
	}

	var merr *multierror.Error
	if !errors.As(it.Err(), &merr) {
		t.Fatalf("Expected a combined error, got %v", it.Err())
	}
	var missing, other int
	for _, err := range merr.Errors {
		if errors.Is(err, ErrMissingCompressor) {
			missing++
		} else if errors.Is(err, ErrCorruption) {
			other++
		}
	}
	if missing == 0 || other != 1 {
		t.Errorf("Expected missing compressor errors and one checksum error, got %v", merr.Errors)
	}
}

func TestSSTable_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "L0-000001.sst")
	if err := os.WriteFile(path, []byte("not a table"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenSSTable(path, 1, 0, testOptions()); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected corruption error, got %v", err)
	}
}

func TestSSTable_Overlaps(t *testing.T) {
	sst := buildTable(t, testOptions(), 10) // key-000000 .. key-000009

	cases := []struct {
		start, limit []byte
		want         bool
	}{
		{nil, nil, true},
		{testKey(5), nil, true},
		{nil, testKey(0), true},
		{testKey(10), nil, false},
		{nil, []byte("a"), false},
		{[]byte("key-000003"), []byte("key-000004"), true},
	}
	for _, tc := range cases {
		if got := sst.Overlaps(tc.start, tc.limit); got != tc.want {
			t.Errorf("Overlaps(%q, %q) = %v, want %v", tc.start, tc.limit, got, tc.want)
		}
	}
}

func TestSSTable_ObsoleteRemovedOnLastUnref(t *testing.T) {
	opts := testOptions()
	entries := []*Entry{{Key: []byte("a"), Value: []byte("1"), Seq: 1}}
	path := SSTablePath(t.TempDir(), 0, 3)
	sst, err := NewSSTable(path, 3, 0, entries, opts)
	if err != nil {
		t.Fatal(err)
	}

	sst.ref()
	sst.obsolete.Store(true)
	if err := sst.unref(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("File removed while still referenced: %v", err)
	}
	if err := sst.unref(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected file removed after last unref, stat err = %v", err)
	}
}

func TestSSTablePath(t *testing.T) {
	if got := SSTablePath("/data", 2, 42); got != filepath.Join("/data", "L2-000042.sst") {
		t.Errorf("SSTablePath = %s", got)
	}
}
