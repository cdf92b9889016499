package recode

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/config"
	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/lsm"
)

// storeOptions returns engine options writing with the first codec and
// small blocks, so a few hundred entries span many blocks
func storeOptions(t *testing.T, codecs ...string) *lsm.Options {
	t.Helper()
	selected, err := compress.Builtin().Select(codecs...)
	require.NoError(t, err)

	opts := &lsm.Options{
		InfoLog:               logging.NewSink(nil, t.Name()),
		CreateIfMissing:       true,
		BlockSize:             512,
		DisableAutoCompaction: true,
	}
	copy(opts.Compressors[:], selected)
	return opts
}

func openStore(t *testing.T, path string, opts *lsm.Options) *lsm.DB {
	t.Helper()
	db, err := lsm.Open(opts, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedStore writes n entries into a new database at path and closes it, so
// every entry lives in a table encoded with the first codec
func seedStore(t *testing.T, path string, n int, codecs ...string) {
	t.Helper()
	db, err := lsm.Open(storeOptions(t, codecs...), path)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, db.Put(testKey(i), testValue(i)))
	}
	require.NoError(t, db.Close())
}

func testKey(i int) []byte {
	return []byte(fmt.Sprintf("key-%06d", i))
}

func testValue(i int) []byte {
	return []byte(fmt.Sprintf("value-%06d-abcdefghijklmnopqrstuvwxyz", i))
}

func contents(t *testing.T, db Store) map[string]string {
	t.Helper()
	it := db.NewIterator(lsm.DefaultReadOptions())
	defer it.Close()

	out := make(map[string]string)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		out[string(it.Key())] = string(it.Value())
	}
	require.NoError(t, it.Err())
	return out
}

func expected(n int) map[string]string {
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		out[string(testKey(i))] = string(testValue(i))
	}
	return out
}

// testConfig returns the default configuration with small blocks
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.BlockSize = 512
	cfg.Engine.AutoCompaction = false
	cfg.Pipeline.BatchThreshold = 4096
	return cfg
}

func dbPath(t *testing.T, name string) string {
	return filepath.Join(t.TempDir(), name)
}
