package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newApp(cfg).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env carries process state shared by every command
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File
}

func newApp(cfg *config.Config) *cli.App {
	e := &env{cfg: cfg, logger: slog.Default()}

	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	return &cli.App{
		Name:                 "recsync",
		Usage:                "Versioned record store fed by spreadsheet exports",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path to the SQLite record store",
				EnvVars: []string{"RECSYNC_DB"},
				Value:   cfg.DBPath,
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "YAML profile with key, required and export columns",
				EnvVars: []string{"RECSYNC_PROFILE"},
				Value:   cfg.ProfilePath,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: cfg.LogLevel.String(),
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also append logs to this file",
				Value: cfg.LogFile,
			},
		},
		Before: e.setupLogging,
		After:  e.close,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "ingest",
				Usage: "Synchronize an xlsx or csv export into the store",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the export file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Source label recorded with each change (defaults to the file path)",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Do not list individual field modifications",
					},
				},
				Action: e.ingest,
			},
			{
				Name:  "rollback",
				Usage: "Restore a record to its state before the last update",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Usage:    "Business key of the record",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip the confirmation prompt",
					},
				},
				Action: e.rollback,
			},
			{
				Name:  "export",
				Usage: "Write the current records in the export column order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file",
						Value:   "merged_current.xlsx",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "xlsx or csv (defaults to the output extension)",
					},
					&cli.BoolFlag{
						Name:  "publish",
						Usage: "Upload the export to the configured MinIO bucket",
					},
				},
				Action: e.export,
			},
			{
				Name:  "history",
				Usage: "Show the history ledger of a record",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Usage:    "Business key of the record",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries (0 for all)",
						Value: 10,
					},
				},
				Action: e.history,
			},
			{
				Name:   "status",
				Usage:  "Show store statistics",
				Action: e.status,
			},
			{
				Name:  "serve",
				Usage: "Serve the JSON API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						EnvVars: []string{"RECSYNC_ADDR"},
						Value:   cfg.ServerAddr,
					},
				},
				Action: e.serve,
			},
		},
	}
}

// setupLogging installs a text slog handler on stderr, tee'd to --log-file
// when given.
func (e *env) setupLogging(c *cli.Context) error {
	level, err := config.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	if path := c.String("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		e.logFile = f
		w = io.MultiWriter(os.Stderr, f)
	}

	e.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(e.logger)
	return nil
}

func (e *env) close(c *cli.Context) error {
	if e.logFile != nil {
		return e.logFile.Close()
	}
	return nil
}
