// Package recode implements the full-traversal maintenance operations on a
// database: cloning one store into another (recompressing on the way),
// sweeping every block to gather codec telemetry, and clearing a store.
package recode

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/lsm"
	"github.com/dd0wney/hackdb/pkg/metrics"
	"github.com/dd0wney/hackdb/pkg/pipeline"
)

// Operation names used in logs and metrics
const (
	OpClone   = "clone"
	OpSweep   = "sweep"
	OpClear   = "clear"
	OpCopy    = "copy"
	OpList    = "list-algos"
	OpCompact = "compact"
	OpDump    = "dump"
)

// Store is a database that can be iterated and written. *lsm.DB satisfies it.
type Store interface {
	pipeline.Target
	NewIterator(ro *lsm.ReadOptions) lsm.Iterator
}

// CloneOptions tunes Clone
type CloneOptions struct {
	// Read is used for the input iterator; nil means checksums verified and
	// the block cache left alone.
	Read *lsm.ReadOptions
	// Write is used for every batch; nil means unsynced writes.
	Write *lsm.WriteOptions
	// Threshold is the batch size in bytes; 0 uses pipeline.DefaultThreshold.
	Threshold int

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// ClearOptions tunes Clear
type ClearOptions struct {
	Read      *lsm.ReadOptions
	Write     *lsm.WriteOptions
	Threshold int

	// AfterSweep runs once the initial sweep completes, even when it failed.
	// An error aborts Clear before anything is deleted.
	AfterSweep func() error

	Logger  logging.Logger
	Metrics *metrics.Registry
}

func bulkReadOptions(ro *lsm.ReadOptions) *lsm.ReadOptions {
	if ro != nil {
		return ro
	}
	return &lsm.ReadOptions{VerifyChecksums: true, FillCache: false}
}

func bulkWriteOptions(wo *lsm.WriteOptions) *lsm.WriteOptions {
	if wo != nil {
		return wo
	}
	return &lsm.WriteOptions{Sync: false}
}

func orNop(logger logging.Logger) logging.Logger {
	if logger == nil {
		return logging.NewNopLogger()
	}
	return logger
}

func newWriter(target pipeline.Target, wo *lsm.WriteOptions, threshold int, logger logging.Logger, reg *metrics.Registry) *pipeline.Writer {
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, pipeline.WithMetrics(reg))
	}
	return pipeline.New(target, bulkWriteOptions(wo), threshold, opts...)
}

// Clone writes every entry of in to out through a buffered pipeline. The
// first failed batch write is returned immediately. Blocks of in that the
// engine could not decode are skipped by its iterator; that failure is
// returned once the copy completes. Clone does not compact out.
func Clone(in, out Store, opts CloneOptions) (err error) {
	logger := orNop(opts.Logger).With(logging.Operation(OpClone))

	it := in.NewIterator(bulkReadOptions(opts.Read))
	defer func() {
		if cerr := it.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	w := newWriter(out, opts.Write, opts.Threshold, logger, opts.Metrics)
	defer w.Close()

	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if !w.Put(it.Key(), it.Value()) {
			return w.Err()
		}
		n++
	}
	if err := w.Finish(); err != nil {
		return err
	}

	if opts.Metrics != nil {
		opts.Metrics.RecordEntries(OpClone, n)
	}
	logger.Info("clone complete", logging.Count(n), logging.Int("flushes", w.Flushes()))
	return it.Err()
}

// Sweep reads every block of db without looking at keys or values, so the
// engine decodes (and reports) each one. It returns the iterator's error.
func Sweep(db Store, ro *lsm.ReadOptions) (err error) {
	it := db.NewIterator(bulkReadOptions(ro))
	defer func() {
		if cerr := it.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	for it.SeekToFirst(); it.Valid(); it.Next() {
	}
	return it.Err()
}

// Clear deletes every key of db. It sweeps first so AfterSweep can inspect
// the codec telemetry before anything is written, then deletes through a
// buffered pipeline with the same failure handling as Clone.
func Clear(db Store, opts ClearOptions) (err error) {
	logger := orNop(opts.Logger).With(logging.Operation(OpClear))

	// AfterSweep sees the telemetry of a failed sweep too, and its
	// verdict takes precedence over the sweep error.
	sweepErr := Sweep(db, opts.Read)
	if opts.AfterSweep != nil {
		if err := opts.AfterSweep(); err != nil {
			return err
		}
	}
	if sweepErr != nil {
		return sweepErr
	}

	it := db.NewIterator(bulkReadOptions(opts.Read))
	defer func() {
		if cerr := it.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	w := newWriter(db, opts.Write, opts.Threshold, logger, opts.Metrics)
	defer w.Close()

	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if !w.Delete(it.Key()) {
			return w.Err()
		}
		n++
	}
	if err := w.Finish(); err != nil {
		return err
	}

	if opts.Metrics != nil {
		opts.Metrics.RecordEntries(OpClear, n)
	}
	logger.Info("clear complete", logging.Count(n), logging.Int("flushes", w.Flushes()))
	return it.Err()
}

// MissingCodecs returns the entries of snapshot whose id is neither 0 nor
// one of configured. A non-empty result means blocks were read that the
// configuration cannot decode.
func MissingCodecs(configured []compress.ID, snapshot map[compress.ID]uint64) map[compress.ID]uint64 {
	missing := make(map[compress.ID]uint64, len(snapshot))
	for id, n := range snapshot {
		missing[id] = n
	}
	delete(missing, compress.NoCompression)
	for _, id := range configured {
		delete(missing, id)
	}
	return missing
}

// OnlyMissingCompressor reports whether err is made up solely of blocks
// whose codec was not configured. Any other failure, such as a checksum
// mismatch, makes it false.
func OnlyMissingCompressor(err error) bool {
	if err == nil {
		return false
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return errors.Is(err, lsm.ErrMissingCompressor)
	}
	if len(merr.Errors) == 0 {
		return false
	}
	for _, e := range merr.Errors {
		if !OnlyMissingCompressor(e) {
			return false
		}
	}
	return true
}
