// Package pipeline buffers puts and deletes into size-bounded batches so a
// full-store rewrite runs in bounded memory.
package pipeline

import (
	"errors"

	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/lsm"
	"github.com/dd0wney/hackdb/pkg/metrics"
)

// DefaultThreshold is the batch size, in bytes, that triggers a flush
const DefaultThreshold = 10 * 1000 * 1000

var (
	// ErrFlushAfterFailure is the panic value when a flush is attempted
	// after a failed one
	ErrFlushAfterFailure = errors.New("pipeline: flush after a failed flush")

	// ErrUnflushedClose is the panic value when a writer is closed with
	// pending records
	ErrUnflushedClose = errors.New("pipeline: closed with unflushed records")
)

// Target receives committed batches. *lsm.DB satisfies it.
type Target interface {
	Write(wo *lsm.WriteOptions, batch *lsm.Batch) error
}

// Option configures a Writer
type Option func(*Writer)

// WithMetrics records every flush in reg
func WithMetrics(reg *metrics.Registry) Option {
	return func(w *Writer) {
		w.metrics = reg
	}
}

// WithLogger logs every flush at DEBUG and failures at ERROR
func WithLogger(logger logging.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// Writer accumulates records and commits them to the target whenever the
// batch reaches the threshold. It is not safe for concurrent use.
//
// Once Put or Delete returns false the writer is finished: the caller must
// stop and report the error from Err.
type Writer struct {
	target    Target
	wo        *lsm.WriteOptions
	threshold int
	batch     *lsm.Batch
	err       error
	flushes   int
	metrics   *metrics.Registry
	logger    logging.Logger
}

// New creates a writer committing to target with wo
func New(target Target, wo *lsm.WriteOptions, threshold int, opts ...Option) *Writer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	w := &Writer{
		target:    target,
		wo:        wo,
		threshold: threshold,
		batch:     lsm.NewBatch(),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Put appends a put. It returns false if this call triggered a flush that failed.
func (w *Writer) Put(key, value []byte) bool {
	w.batch.Put(key, value)
	return w.maybeFlush()
}

// Delete appends a delete. It returns false if this call triggered a flush that failed.
func (w *Writer) Delete(key []byte) bool {
	w.batch.Delete(key)
	return w.maybeFlush()
}

func (w *Writer) maybeFlush() bool {
	if w.batch.ApproximateSize() < w.threshold {
		return true
	}
	return w.flush() == nil
}

// Finish commits whatever is pending, even an empty batch, and returns the
// result
func (w *Writer) Finish() error {
	return w.flush()
}

func (w *Writer) flush() error {
	if w.err != nil {
		panic(ErrFlushAfterFailure)
	}

	size, records := w.batch.ApproximateSize(), w.batch.Len()
	w.err = w.target.Write(w.wo, w.batch)
	w.flushes++
	// A failed batch is dropped too; the caller must stop writing
	w.batch.Reset()

	if w.metrics != nil {
		w.metrics.RecordFlush(size, w.err)
	}
	if w.err != nil {
		w.logger.Error("batch write failed",
			logging.Count(records), logging.Bytes(size), logging.Error(w.err))
		return w.err
	}

	w.logger.Debug("batch written",
		logging.Count(records), logging.Bytes(size), logging.Int("flush", w.flushes))
	return nil
}

// Err returns the error of the last flush
func (w *Writer) Err() error {
	return w.err
}

// Flushes returns the number of flushes attempted
func (w *Writer) Flushes() int {
	return w.flushes
}

// Pending returns the number of records not yet committed
func (w *Writer) Pending() int {
	return w.batch.Len()
}

// Close checks that nothing is left uncommitted. Records left behind mean the
// caller kept writing after a failure or skipped Finish; that is a bug and
// panics.
func (w *Writer) Close() {
	if w.batch.Len() != 0 {
		panic(ErrUnflushedClose)
	}
}
