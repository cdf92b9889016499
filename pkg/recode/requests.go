package recode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/dd0wney/hackdb/pkg/arena"
	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/config"
	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/lsm"
	"github.com/dd0wney/hackdb/pkg/metrics"
	"github.com/dd0wney/hackdb/pkg/telemetry"
)

// Format selects the Dump output encoding
type Format string

// Dump formats
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// CopyRequest describes a copy from one database directory to a new one
type CopyRequest struct {
	Input  string
	Output string

	// Recompress writes the output with the configured output codecs.
	// Otherwise the output is written uncompressed.
	Recompress bool

	// AllowMissing completes the copy even when input blocks used codecs
	// the input configuration cannot decode. Those blocks are lost. Any
	// other read failure still fails the copy.
	AllowMissing bool

	Config *config.Config
}

// request carries the per-invocation logger and timing
type request struct {
	op      string
	logger  logging.Logger
	timer   *logging.TimedOperation
	metrics *metrics.Registry
}

func begin(ctx context.Context, op string, fields ...logging.Field) *request {
	logger := logging.FromContext(ctx).With(
		append([]logging.Field{logging.RunID(uuid.NewString()), logging.Operation(op)}, fields...)...)
	return &request{
		op:      op,
		logger:  logger,
		timer:   logging.StartTimer(logger, op),
		metrics: metrics.DefaultRegistry(),
	}
}

func (r *request) end(err error) {
	r.timer.EndError(err)
	r.metrics.RecordOperation(r.op, err, r.timer.Elapsed())
}

// handleSpec is what differs between the handles a request opens
type handleSpec struct {
	path            string
	prefix          string
	codecs          []compress.Codec
	createIfMissing bool
	errorIfExists   bool
	readOnly        bool
}

func (r *request) open(cfg *config.Config, spec handleSpec) (*arena.Handle, error) {
	b := arena.NewBuilder(cfg.Engine, spec.codecs, r.logger, spec.prefix)
	b.CreateIfMissing = spec.createIfMissing
	b.ErrorIfExists = spec.errorIfExists
	if spec.readOnly {
		b.DisableAutoCompaction = true
	}

	ac, err := b.Build()
	if err != nil {
		return nil, OpenError(spec.path, err)
	}
	h, err := arena.Open(ac, spec.path)
	if err != nil {
		return nil, OpenError(spec.path, err)
	}
	r.logger.Debug("database opened",
		logging.Path(spec.path), logging.String("handle", spec.prefix),
		logging.Any("codecs", codecNames(ac.CodecIDs())))
	return h, nil
}

// checkMissing records the counter snapshot and reports blocks read with a
// codec h was not configured with
func (r *request) checkMissing(h *arena.Handle, counter *telemetry.Counter) error {
	snapshot := counter.Snapshot()
	r.metrics.RecordBlocksDecoded(snapshot)

	missing := MissingCodecs(h.Config().CodecIDs(), snapshot)
	if len(missing) == 0 {
		return nil
	}

	r.metrics.RecordMissingCodecs(missing)
	for id, n := range missing {
		r.logger.Warn("blocks use an unconfigured codec",
			logging.Path(h.DB().Path()),
			logging.Codec(compress.Builtin().Name(id), uint8(id)),
			logging.Uint64("blocks", n))
	}
	return &MissingCodecError{Path: h.DB().Path(), Missing: missing}
}

func closeHandle(err *error, h *arena.Handle) {
	if cerr := h.Close(); cerr != nil {
		*err = multierror.Append(*err, NewError("close").Path(h.DB().Path()).Cause(cerr).Err()).ErrorOrNil()
	}
}

func readOptions(cfg *config.Config) *lsm.ReadOptions {
	return &lsm.ReadOptions{VerifyChecksums: cfg.Engine.VerifyChecksums, FillCache: false}
}

func orDefault(cfg *config.Config) *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}

// Copy clones req.Input into the new database req.Output, then compacts the
// output so every block is written with the output codec. If the copy fails
// after the output was created, the output directory is removed.
func Copy(ctx context.Context, req CopyRequest) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := orDefault(req.Config)
	r := begin(ctx, OpCopy, logging.String("input", req.Input), logging.String("output", req.Output),
		logging.Bool("recompress", req.Recompress))
	defer func() { r.end(err) }()

	reg := compress.Builtin()
	inCodecs, err := cfg.InputCodecs(reg)
	if err != nil {
		return err
	}
	var outCodecs []compress.Codec
	if req.Recompress {
		if outCodecs, err = cfg.OutputCodecs(reg); err != nil {
			return err
		}
	}

	in, err := r.open(cfg, handleSpec{path: req.Input, prefix: "input", codecs: inCodecs, readOnly: true})
	if err != nil {
		return err
	}
	defer closeHandle(&err, in)

	counter := telemetry.NewCounter()
	obs := counter.Observe(telemetry.Default, in.Config().Sink())
	defer obs.Close()

	out, err := r.open(cfg, handleSpec{
		path:            req.Output,
		prefix:          "output",
		codecs:          outCodecs,
		createIfMissing: true,
		errorIfExists:   true,
	})
	if err != nil {
		return err
	}
	// A failed copy removes the output it created, after the handle closes
	defer func() {
		if err == nil {
			return
		}
		if rerr := os.RemoveAll(req.Output); rerr != nil {
			r.logger.Warn("failed to remove partial output", logging.Path(req.Output), logging.Error(rerr))
			return
		}
		r.logger.Info("removed partial output", logging.Path(req.Output))
	}()
	defer closeHandle(&err, out)

	cloneErr := Clone(in.DB(), out.DB(), CloneOptions{
		Read:      readOptions(cfg),
		Threshold: cfg.Pipeline.BatchThreshold,
		Logger:    r.logger,
		Metrics:   r.metrics,
	})

	if missingErr := r.checkMissing(in, counter); missingErr != nil {
		if !req.AllowMissing {
			return missingErr
		}
		if OnlyMissingCompressor(cloneErr) {
			r.logger.Warn("continuing without undecodable blocks", logging.Error(missingErr))
			cloneErr = nil
		}
	}
	if cloneErr != nil {
		return NewError(OpClone).Path(req.Input).Cause(cloneErr).Err()
	}

	if err := out.DB().CompactRange(nil, nil); err != nil {
		return NewError(OpCompact).Path(req.Output).Cause(err).Err()
	}
	return nil
}

// ListAlgos reads every block of the database at path with all known codecs
// configured and returns how many blocks each codec id encoded.
func ListAlgos(ctx context.Context, path string, cfg *config.Config) (counts map[compress.ID]uint64, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = orDefault(cfg)
	r := begin(ctx, OpList, logging.Path(path))
	defer func() { r.end(err) }()

	h, err := r.open(cfg, handleSpec{
		path:     path,
		prefix:   "input",
		codecs:   compress.Builtin().Instantiate(compress.All),
		readOnly: true,
	})
	if err != nil {
		return nil, err
	}
	defer closeHandle(&err, h)

	counter := telemetry.NewCounter()
	obs := counter.Observe(telemetry.Default, h.Config().Sink())
	defer obs.Close()

	sweepErr := Sweep(h.DB(), &lsm.ReadOptions{VerifyChecksums: false, FillCache: false})
	counts = counter.Snapshot()
	r.metrics.RecordBlocksDecoded(counts)
	if sweepErr != nil {
		return counts, NewError(OpSweep).Path(path).Cause(sweepErr).Err()
	}
	return counts, nil
}

// Compact sweeps the database at path, refuses to continue if any block
// used a codec the input configuration cannot decode, then compacts the
// whole key range.
func Compact(ctx context.Context, path string, cfg *config.Config) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg = orDefault(cfg)
	r := begin(ctx, OpCompact, logging.Path(path))
	defer func() { r.end(err) }()

	codecs, err := cfg.InputCodecs(compress.Builtin())
	if err != nil {
		return err
	}
	h, err := r.open(cfg, handleSpec{path: path, prefix: "input", codecs: codecs})
	if err != nil {
		return err
	}
	defer closeHandle(&err, h)

	counter := telemetry.NewCounter()
	obs := counter.Observe(telemetry.Default, h.Config().Sink())
	defer obs.Close()

	sweepErr := Sweep(h.DB(), readOptions(cfg))
	if err := r.checkMissing(h, counter); err != nil {
		return err
	}
	if sweepErr != nil {
		return NewError(OpSweep).Path(path).Cause(sweepErr).Err()
	}

	if err := h.DB().CompactRange(nil, nil); err != nil {
		return NewError(OpCompact).Path(path).Cause(err).Err()
	}
	return nil
}

// ClearStore deletes every key of the database at path and compacts it. It
// refuses to delete anything if a block used an unconfigured codec.
func ClearStore(ctx context.Context, path string, cfg *config.Config) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg = orDefault(cfg)
	r := begin(ctx, OpClear, logging.Path(path))
	defer func() { r.end(err) }()

	codecs, err := cfg.InputCodecs(compress.Builtin())
	if err != nil {
		return err
	}
	h, err := r.open(cfg, handleSpec{path: path, prefix: "input", codecs: codecs})
	if err != nil {
		return err
	}
	defer closeHandle(&err, h)

	counter := telemetry.NewCounter()
	obs := counter.Observe(telemetry.Default, h.Config().Sink())
	defer obs.Close()

	err = Clear(h.DB(), ClearOptions{
		Read:       readOptions(cfg),
		Threshold:  cfg.Pipeline.BatchThreshold,
		AfterSweep: func() error { return r.checkMissing(h, counter) },
		Logger:     r.logger,
		Metrics:    r.metrics,
	})
	if err != nil {
		if IsMissingCodec(err) {
			return err
		}
		return NewError(OpClear).Path(path).Cause(err).Err()
	}

	if err := h.DB().CompactRange(nil, nil); err != nil {
		return NewError(OpCompact).Path(path).Cause(err).Err()
	}
	return nil
}

type dumpRecord struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// Dump writes every entry of the database at path to w, one per line. Text
// lines are the quoted key and value separated by a tab; JSON lines carry
// base64 key and value fields.
func Dump(ctx context.Context, path string, cfg *config.Config, w io.Writer, format Format) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return err
	}
	cfg = orDefault(cfg)
	r := begin(ctx, OpDump, logging.Path(path), logging.String("format", string(format)))
	defer func() { r.end(err) }()

	h, err := r.open(cfg, handleSpec{
		path:     path,
		prefix:   "input",
		codecs:   compress.Builtin().Instantiate(compress.All),
		readOnly: true,
	})
	if err != nil {
		return err
	}
	defer closeHandle(&err, h)

	it := h.DB().NewIterator(readOptions(cfg))
	defer func() {
		if cerr := it.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	enc := json.NewEncoder(w)
	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if format == FormatJSON {
			err = enc.Encode(dumpRecord{Key: it.Key(), Value: it.Value()})
		} else {
			_, err = fmt.Fprintf(w, "%q\t%q\n", it.Key(), it.Value())
		}
		if err != nil {
			return NewError(OpDump).Path(path).Context("write").Cause(err).Err()
		}
		n++
	}
	r.metrics.RecordEntries(OpDump, n)

	if err := it.Err(); err != nil {
		return NewError(OpDump).Path(path).Cause(err).Err()
	}
	return nil
}

func codecNames(ids []compress.ID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = compress.Builtin().Name(id)
	}
	return names
}
