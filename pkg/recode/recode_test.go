package recode

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/lsm"
	"github.com/dd0wney/hackdb/pkg/metrics"
	"github.com/dd0wney/hackdb/pkg/telemetry"
)

// failingStore rejects every batch after the first `allow` writes
type failingStore struct {
	*lsm.DB
	allow  int
	writes int
}

var errWriteRejected = errors.New("write rejected")

func (s *failingStore) Write(wo *lsm.WriteOptions, batch *lsm.Batch) error {
	s.writes++
	if s.writes > s.allow {
		return errWriteRejected
	}
	return s.DB.Write(wo, batch)
}

func TestClone_EmptyStore(t *testing.T) {
	in := openStore(t, dbPath(t, "in"), storeOptions(t, "zlib-raw"))
	out := openStore(t, dbPath(t, "out"), storeOptions(t, "zlib-raw"))

	require.NoError(t, Clone(in, out, CloneOptions{}))
	assert.Empty(t, contents(t, out))
}

func TestClone_ReproducesEntries(t *testing.T) {
	const n = 500

	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{"zlib-raw to zlib-raw", []string{"zlib-raw", "zlib"}, []string{"zlib-raw"}},
		{"zlib-raw to uncompressed", []string{"zlib-raw"}, nil},
		{"zlib to snappy", []string{"zlib"}, []string{"snappy"}},
		{"snappy to zstd", []string{"snappy"}, []string{"zstd"}},
		{"zstd to lz4", []string{"zstd"}, []string{"lz4"}},
		{"lz4 to s2", []string{"lz4"}, []string{"s2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inPath := dbPath(t, "in")
			seedStore(t, inPath, n, tt.in...)

			inOpts := storeOptions(t, tt.in...)
			inOpts.CreateIfMissing = false
			in := openStore(t, inPath, inOpts)
			out := openStore(t, dbPath(t, "out"), storeOptions(t, tt.out...))

			reg := metrics.NewRegistry()
			require.NoError(t, Clone(in, out, CloneOptions{Threshold: 4096, Metrics: reg}))
			require.NoError(t, out.CompactRange(nil, nil))

			assert.Equal(t, expected(n), contents(t, out))
		})
	}
}

func TestClone_OutputUsesItsOwnCodec(t *testing.T) {
	inPath := dbPath(t, "in")
	seedStore(t, inPath, 200, "zlib-raw")

	inOpts := storeOptions(t, "zlib-raw")
	inOpts.CreateIfMissing = false
	in := openStore(t, inPath, inOpts)

	outOpts := storeOptions(t, "snappy")
	out := openStore(t, dbPath(t, "out"), outOpts)
	require.NoError(t, Clone(in, out, CloneOptions{}))
	require.NoError(t, out.CompactRange(nil, nil))

	counter := telemetry.NewCounter()
	obs := counter.Observe(telemetry.Default, outOpts.InfoLog)
	defer obs.Close()

	require.NoError(t, Sweep(out, nil))
	snapshot := counter.Snapshot()
	assert.NotZero(t, snapshot[compress.SnappyID])
	assert.Zero(t, snapshot[compress.ZlibRawID])
}

func TestClone_StopsAtFirstWriteFailure(t *testing.T) {
	inPath := dbPath(t, "in")
	seedStore(t, inPath, 300, "zlib-raw")

	inOpts := storeOptions(t, "zlib-raw")
	inOpts.CreateIfMissing = false
	in := openStore(t, inPath, inOpts)
	out := &failingStore{DB: openStore(t, dbPath(t, "out"), storeOptions(t, "zlib-raw")), allow: 1}

	err := Clone(in, out, CloneOptions{Threshold: 1024})
	require.ErrorIs(t, err, errWriteRejected)
	assert.Equal(t, 2, out.writes, "no batch may be attempted after the failed one")

	got := contents(t, out.DB)
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 300)
}

func TestClone_ReportsUndecodableBlocks(t *testing.T) {
	inPath := dbPath(t, "in")
	seedStore(t, inPath, 100, "lz4")

	inOpts := storeOptions(t, "zlib-raw", "zlib")
	inOpts.CreateIfMissing = false
	in := openStore(t, inPath, inOpts)
	out := openStore(t, dbPath(t, "out"), storeOptions(t, "zlib-raw"))

	err := Clone(in, out, CloneOptions{})
	require.ErrorIs(t, err, lsm.ErrCorruption)
}

func TestSweep_ReportsEveryBlock(t *testing.T) {
	path := dbPath(t, "db")
	seedStore(t, path, 300, "zlib-raw")

	opts := storeOptions(t, "zlib-raw", "zlib")
	opts.CreateIfMissing = false
	db := openStore(t, path, opts)

	counter := telemetry.NewCounter()
	obs := counter.Observe(telemetry.Default, opts.InfoLog)
	defer obs.Close()

	require.NoError(t, Sweep(db, nil))
	first := counter.Snapshot()
	require.Len(t, first, 1)
	assert.Greater(t, first[compress.ZlibRawID], uint64(1))

	require.NoError(t, Sweep(db, nil))
	assert.Equal(t, first, counter.Snapshot(), "no cache, so a second sweep decodes the same blocks")
}

func TestClear_RemovesEverything(t *testing.T) {
	path := dbPath(t, "db")
	seedStore(t, path, 400, "zlib-raw")

	opts := storeOptions(t, "zlib-raw")
	opts.CreateIfMissing = false
	db := openStore(t, path, opts)

	reg := metrics.NewRegistry()
	swept := false
	err := Clear(db, ClearOptions{
		Threshold:  2048,
		AfterSweep: func() error { swept = true; return nil },
		Metrics:    reg,
	})
	require.NoError(t, err)
	assert.True(t, swept)
	assert.Empty(t, contents(t, db))

	require.NoError(t, db.CompactRange(nil, nil))
	assert.Empty(t, contents(t, db))
}

func TestClear_AfterSweepAborts(t *testing.T) {
	path := dbPath(t, "db")
	seedStore(t, path, 50, "zlib-raw")

	opts := storeOptions(t, "zlib-raw")
	opts.CreateIfMissing = false
	db := openStore(t, path, opts)

	stop := errors.New("stop")
	err := Clear(db, ClearOptions{AfterSweep: func() error { return stop }})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, expected(50), contents(t, db))
}

func TestClear_AfterSweepRunsWhenSweepFails(t *testing.T) {
	path := dbPath(t, "db")
	seedStore(t, path, 50, "snappy")

	opts := storeOptions(t, "zlib-raw")
	opts.CreateIfMissing = false
	db := openStore(t, path, opts)

	called := 0
	err := Clear(db, ClearOptions{AfterSweep: func() error { called++; return nil }})
	assert.Equal(t, 1, called)
	require.ErrorIs(t, err, lsm.ErrMissingCompressor, "the sweep error is returned when AfterSweep passes")

	stop := errors.New("stop")
	err = Clear(db, ClearOptions{AfterSweep: func() error { return stop }})
	require.ErrorIs(t, err, stop)
	assert.NotErrorIs(t, err, lsm.ErrCorruption)
}

func TestClear_StopsAtFirstWriteFailure(t *testing.T) {
	path := dbPath(t, "db")
	seedStore(t, path, 200, "zlib-raw")

	opts := storeOptions(t, "zlib-raw")
	opts.CreateIfMissing = false
	db := &failingStore{DB: openStore(t, path, opts)}

	err := Clear(db, ClearOptions{Threshold: 512})
	require.ErrorIs(t, err, errWriteRejected)
	assert.Equal(t, 1, db.writes)
	assert.Equal(t, expected(200), contents(t, db.DB))
}

func TestOnlyMissingCompressor(t *testing.T) {
	missing := fmt.Errorf("%w for id 1", lsm.ErrMissingCompressor)
	checksum := fmt.Errorf("%w: block checksum mismatch", lsm.ErrCorruption)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"missing compressor", missing, true},
		{"checksum mismatch", checksum, false},
		{"unrelated", io.ErrUnexpectedEOF, false},
		{"several missing", multierror.Append(missing, missing), true},
		{"missing and checksum", multierror.Append(missing, checksum), false},
		{"wrapped", fmt.Errorf("clone: %w", multierror.Append(missing, missing)), true},
		{"empty multierror", &multierror.Error{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OnlyMissingCompressor(tt.err))
		})
	}
}

func TestMissingCodecs(t *testing.T) {
	snapshot := map[compress.ID]uint64{0: 5, 1: 3, 7: 2}
	missing := MissingCodecs([]compress.ID{1}, snapshot)
	assert.Equal(t, map[compress.ID]uint64{7: 2}, missing)
	assert.Len(t, snapshot, 3, "the snapshot is not modified")

	assert.Empty(t, MissingCodecs(nil, map[compress.ID]uint64{0: 9}))
	assert.Empty(t, MissingCodecs([]compress.ID{2, 4}, nil))
}

func TestOpError(t *testing.T) {
	err := NewError("open").Path("/tmp/db").Context("input").Cause(lsm.ErrDBMissing).Err()
	assert.Equal(t, "open /tmp/db (input): "+lsm.ErrDBMissing.Error(), err.Error())
	assert.ErrorIs(t, err, lsm.ErrDBMissing)

	var opErr *OpError
	require.ErrorAs(t, OpenError("x", errors.New("boom")), &opErr)
	assert.Equal(t, "open", opErr.Op)
	assert.Equal(t, "x", opErr.Path)
}

func TestMissingCodecError(t *testing.T) {
	err := &MissingCodecError{Path: "db", Missing: map[compress.ID]uint64{7: 2, 1: 3}}
	assert.True(t, IsMissingCodec(err))
	assert.Equal(t, "db: "+ErrMissingCodec.Error()+" (snappy: 3 blocks, s2: 2 blocks)", err.Error())
}
