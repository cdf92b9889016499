package lsm

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// recordingLogger collects engine log lines
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// hookRecorder counts hook calls per codec id for one Options value
type hookRecorder struct {
	mu     sync.Mutex
	opts   *Options
	counts map[compress.ID]int
}

// recordHook installs a process-wide hook for the duration of the test
func recordHook(t *testing.T, opts *Options) *hookRecorder {
	t.Helper()
	rec := &hookRecorder{opts: opts, counts: make(map[compress.ID]int)}
	SetBlockDecodeHook(func(id compress.ID, o *Options) {
		if o != rec.opts {
			return
		}
		rec.mu.Lock()
		rec.counts[id]++
		rec.mu.Unlock()
	})
	t.Cleanup(func() { SetBlockDecodeHook(nil) })
	return rec
}

func (r *hookRecorder) count(id compress.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

func (r *hookRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

// testOptions returns options that write zlib-raw blocks and decode zlib too
func testOptions() *Options {
	opts := &Options{
		FilterPolicy:          NewBloomPolicy(10),
		InfoLog:               &recordingLogger{},
		CreateIfMissing:       true,
		BlockSize:             1024,
		DisableAutoCompaction: true,
	}
	opts.Compressors[0] = compress.NewZlibRaw()
	opts.Compressors[1] = compress.NewZlib()
	return opts
}

// newTestDB opens a fresh database in a temp dir
func newTestDB(t *testing.T, opts *Options) *DB {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	db, err := Open(opts, filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testKey(i int) []byte {
	return []byte(fmt.Sprintf("key-%06d", i))
}

func testValue(i int) []byte {
	return []byte(fmt.Sprintf("value-%06d-padding-padding-padding", i))
}

// collect drains an iterator into a key -> value map and checks ordering
func collect(t *testing.T, it Iterator) ([]string, map[string]string) {
	t.Helper()
	var keys []string
	values := make(map[string]string)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		k := string(it.Key())
		if len(keys) > 0 && keys[len(keys)-1] >= k {
			t.Fatalf("iterator out of order: %q after %q", k, keys[len(keys)-1])
		}
		keys = append(keys, k)
		values[k] = string(it.Value())
	}
	return keys, values
}
