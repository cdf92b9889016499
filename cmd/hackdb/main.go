// Command hackdb copies, recompresses, inspects and clears LevelDB-style
// world databases.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dd0wney/hackdb/pkg/config"
	"github.com/dd0wney/hackdb/pkg/logging"
	"github.com/dd0wney/hackdb/pkg/metrics"
)

// env is shared by every command once the global flags are processed
type env struct {
	cfg    *config.Config
	logger logging.Logger
}

func (e *env) context() context.Context {
	return logging.WithLogger(context.Background(), e.logger)
}

func newApp() *cli.App {
	e := &env{}
	return &cli.App{
		Name:                 "hackdb",
		Usage:                "re-encode the blocks of a LevelDB-style database",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"HACKDB_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error; overrides the configuration",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "write Prometheus metrics in text format to this file on exit",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if level := c.String("log-level"); level != "" {
				if _, err := logging.LevelFromString(level); err != nil {
					return fmt.Errorf("bad value for --log-level: %w", err)
				}
				cfg.Log.Level = level
			}

			e.cfg = cfg
			e.logger = logging.NewJSONLogger(os.Stderr, cfg.LogLevel())
			logging.SetDefaultLogger(e.logger)
			return nil
		},
		After: func(c *cli.Context) error {
			path := c.String("metrics-file")
			if path == "" {
				return nil
			}
			reg := metrics.DefaultRegistry()
			reg.UpdateSystemMetrics()
			return reg.WriteTextfile(path)
		},
		Commands: commands(e),
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "hackdb: %v\n", err)
		os.Exit(1)
	}
}
