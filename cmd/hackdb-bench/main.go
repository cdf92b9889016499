// Command hackdb-bench compares the built-in block codecs on the storage
// engine: write throughput, on-disk size after compaction and full-scan
// decode throughput.
package main

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dd0wney/hackdb/pkg/arena"
	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/config"
	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/lsm"
	"github.com/dd0wney/hackdb/pkg/pipeline"
	"github.com/dd0wney/hackdb/pkg/recode"
	"github.com/dd0wney/hackdb/pkg/telemetry"
)

type result struct {
	codec      string
	writeTime  time.Duration
	diskBytes  int64
	scanTime   time.Duration
	blocks     uint64
	tableCount int
}

func main() {
	app := &cli.App{
		Name:  "hackdb-bench",
		Usage: "benchmark block codecs on the storage engine",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "writes", Value: 100000, Usage: "number of entries"},
			&cli.IntFlag{Name: "value-size", Value: 256, Usage: "value size in bytes"},
			&cli.StringSliceFlag{Name: "codec", Usage: "codecs to compare (default: every built-in codec and none)"},
			&cli.StringFlag{Name: "dir", Usage: "scratch directory (default: a temporary directory)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "hackdb-bench: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	writes, valueSize := c.Int("writes"), c.Int("value-size")
	if writes <= 0 || valueSize <= 0 {
		return cli.Exit("--writes and --value-size must be positive", 1)
	}

	names := c.StringSlice("codec")
	if len(names) == 0 {
		names = []string{"none"}
		for _, d := range compress.Builtin().List() {
			if d.ID != compress.NoCompression {
				names = append(names, d.Name)
			}
		}
	}

	dir := c.String("dir")
	if dir == "" {
		tmp, err := os.MkdirTemp("", "hackdb-bench-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	fmt.Printf("🔥 hackdb - Block Codec Benchmark\n")
	fmt.Printf("==================================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Writes:     %d\n", writes)
	fmt.Printf("  Value Size: %d bytes\n", valueSize)
	fmt.Printf("  Raw Data:   %.2f MB\n\n", float64(writes*(valueSize+8))/(1024*1024))

	// Half random, half repeated bytes, so every codec has something to find
	value := make([]byte, valueSize)
	rng := rand.New(rand.NewSource(1))
	for i := range value[:valueSize/2] {
		value[i] = byte(rng.Intn(256))
	}

	var results []result
	for _, name := range names {
		fmt.Printf("📦 %s\n", name)
		res, err := benchCodec(filepath.Join(dir, name), name, writes, value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("  ✅ wrote in %v, scanned %d blocks in %v\n", res.writeTime, res.blocks, res.scanTime)
		results = append(results, res)
	}

	raw := float64(writes * (valueSize + 8))
	fmt.Printf("\n📊 Summary\n")
	fmt.Printf("==================================\n")
	fmt.Printf("%-10s %12s %8s %14s %14s %7s\n", "codec", "disk", "ratio", "write/s", "scan MB/s", "tables")
	for _, r := range results {
		fmt.Printf("%-10s %10.2fMB %7.2fx %14.0f %14.1f %7d\n",
			r.codec,
			float64(r.diskBytes)/(1024*1024),
			raw/float64(r.diskBytes),
			float64(writes)/r.writeTime.Seconds(),
			raw/(1024*1024)/r.scanTime.Seconds(),
			r.tableCount)
	}
	return nil
}

func benchCodec(path, name string, writes int, value []byte) (result, error) {
	res := result{codec: name}

	codecs, err := compress.Builtin().Select(name)
	if err != nil {
		return res, err
	}
	b := arena.NewBuilder(config.Default().Engine, codecs, logging.NewNopLogger(), name)
	b.CreateIfMissing = true
	b.ErrorIfExists = true
	b.DisableAutoCompaction = true
	b.CacheSize = 0
	cfg, err := b.Build()
	if err != nil {
		return res, err
	}
	h, err := arena.Open(cfg, path)
	if err != nil {
		return res, err
	}
	defer h.Close()
	db := h.DB()

	start := time.Now()
	w := pipeline.New(db, &lsm.WriteOptions{}, pipeline.DefaultThreshold)
	key := make([]byte, 8)
	for i := 0; i < writes; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		if !w.Put(key, value) {
			break
		}
	}
	if w.Err() == nil {
		err = w.Finish()
	} else {
		err = w.Err()
	}
	w.Close()
	if err != nil {
		return res, err
	}
	if err := db.CompactRange(nil, nil); err != nil {
		return res, err
	}
	res.writeTime = time.Since(start)

	if res.diskBytes, err = dirSize(path); err != nil {
		return res, err
	}
	res.tableCount = db.GetStats().SSTableCount

	counter := telemetry.NewCounter()
	obs := counter.Observe(telemetry.Default, cfg.Sink())
	defer obs.Close()

	start = time.Now()
	if err := recode.Sweep(db, &lsm.ReadOptions{VerifyChecksums: true}); err != nil {
		return res, err
	}
	res.scanTime = time.Since(start)
	for _, n := range counter.Snapshot() {
		res.blocks += n
	}
	return res, nil
}

func dirSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
