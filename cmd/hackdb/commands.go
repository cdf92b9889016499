package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/dd0wney/hackdb/pkg/compress"
	"github.com/dd0wney/hackdb/pkg/recode"
)

func commands(e *env) []*cli.Command {
	pathArg := func(c *cli.Context) (string, error) {
		if c.NArg() != 1 {
			return "", cli.Exit(fmt.Sprintf("%s: expected one database directory", c.Command.Name), 1)
		}
		return c.Args().First(), nil
	}

	return []*cli.Command{
		{
			Name:  "copy",
			Usage: "copy a database into a new directory, recompressing or decompressing every block",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "existing database directory", Required: true},
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "new database directory", Required: true},
				&cli.BoolFlag{Name: "compress", Usage: "write the output with the output codec"},
				&cli.BoolFlag{Name: "decompress", Usage: "write the output uncompressed"},
				&cli.StringFlag{Name: "codec", Usage: "output codec, overriding codecs.output (implies --compress)"},
				&cli.BoolFlag{Name: "allow-missing", Usage: "finish even if some input blocks cannot be decoded"},
			},
			Action: func(c *cli.Context) error {
				if c.Bool("compress") && c.Bool("decompress") {
					return cli.Exit("--compress and --decompress cannot be used together", 1)
				}
				recompress := c.Bool("compress") || c.IsSet("codec")
				if c.Bool("decompress") && c.IsSet("codec") {
					return cli.Exit("--codec cannot be used with --decompress", 1)
				}
				if !recompress && !c.Bool("decompress") {
					return cli.Exit("one of --compress or --decompress is required", 1)
				}

				cfg := e.cfg
				if codec := c.String("codec"); codec != "" {
					if _, ok := compress.Builtin().Lookup(codec); !ok {
						return fmt.Errorf("--codec: %w: %q", compress.ErrUnknownCodec, codec)
					}
					override := *cfg
					override.Codecs.Output = []string{codec}
					cfg = &override
				}

				fmt.Fprintf(c.App.Writer, "Input database is at: %s\n", c.String("input"))
				fmt.Fprintf(c.App.Writer, "Output database is at: %s\n", c.String("output"))
				return recode.Copy(e.context(), recode.CopyRequest{
					Input:        c.String("input"),
					Output:       c.String("output"),
					Recompress:   recompress,
					AllowMissing: c.Bool("allow-missing"),
					Config:       cfg,
				})
			},
		},
		{
			Name:      "list-algos",
			Usage:     "count the blocks of a database per compression codec",
			ArgsUsage: "<db>",
			Action: func(c *cli.Context) error {
				path, err := pathArg(c)
				if err != nil {
					return err
				}
				counts, err := recode.ListAlgos(e.context(), path, e.cfg)
				printCounts(c, counts)
				return err
			},
		},
		{
			Name:      "compact",
			Usage:     "compact a database, rewriting every block with the first input codec",
			ArgsUsage: "<db>",
			Action: func(c *cli.Context) error {
				path, err := pathArg(c)
				if err != nil {
					return err
				}
				return recode.Compact(e.context(), path, e.cfg)
			},
		},
		{
			Name:      "clear",
			Usage:     "delete every key of a database",
			ArgsUsage: "<db>",
			Action: func(c *cli.Context) error {
				path, err := pathArg(c)
				if err != nil {
					return err
				}
				return recode.ClearStore(e.context(), path, e.cfg)
			},
		},
		{
			Name:      "dump",
			Usage:     "print every key and value of a database",
			ArgsUsage: "<db>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "format", Value: string(recode.FormatText), Usage: "text or json"},
				&cli.StringFlag{Name: "out", Usage: "write to this file instead of stdout"},
			},
			Action: func(c *cli.Context) error {
				path, err := pathArg(c)
				if err != nil {
					return err
				}
				format, err := recode.ParseFormat(c.String("format"))
				if err != nil {
					return err
				}

				w := c.App.Writer
				if out := c.String("out"); out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return recode.Dump(e.context(), path, e.cfg, w, format)
			},
		},
	}
}

// printCounts writes one "name(id): blocks" line per codec, by id
func printCounts(c *cli.Context, counts map[compress.ID]uint64) {
	ids := make([]compress.ID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		name := "none"
		if id != compress.NoCompression {
			name = compress.Builtin().Name(id)
		}
		fmt.Fprintf(c.App.Writer, "%s(%d): %d\n", name, id, counts[id])
	}
}
