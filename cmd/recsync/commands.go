package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chmdznr/recsync/internal/api"
	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/internal/export"
	"github.com/chmdznr/recsync/internal/metrics"
	"github.com/chmdznr/recsync/internal/sync"
	"github.com/chmdznr/recsync/internal/tabular"
	"github.com/chmdznr/recsync/pkg/models"
	"github.com/cheggaaa/pb/v3"
	"github.com/eiannone/keyboard"
	"github.com/urfave/cli/v2"
)

// progressThreshold is the batch size from which ingest shows a progress bar
const progressThreshold = 500

// openStore loads the profile and opens the record store keyed by it
func (e *env) openStore(c *cli.Context) (*db.DB, *config.Profile, error) {
	profile, err := config.LoadProfile(c.String("profile"))
	if err != nil {
		return nil, nil, err
	}
	store, err := db.New(c.String("db"), db.Options{KeyColumn: profile.KeyColumn, Logger: e.logger})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, profile, nil
}

// ingest reads an export file and synchronizes it into the store.
//
// The file must carry every required column of the profile. Rows without a
// key are skipped; rows that fail to store are listed after the summary and
// do not stop the rest of the batch.
func (e *env) ingest(c *cli.Context) error {
	path := c.String("file")
	source := c.String("source")
	if source == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		source = abs
	}

	table, err := tabular.ReadFile(path)
	if err != nil {
		return err
	}

	store, profile, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	syncerConfig := sync.SyncerConfig{Logger: e.logger}
	var bar *pb.ProgressBar
	if len(table.Rows) >= progressThreshold {
		bar = pb.New(len(table.Rows))
		bar.SetTemplate(`Syncing {{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
		bar.Start()
		syncerConfig.Progress = func(done, total int) {
			bar.SetCurrent(int64(done))
		}
	}

	syncer := sync.NewSyncer(store, &syncerConfig)
	summary, err := syncer.Ingest(c.Context, table, source, profile)
	if bar != nil {
		bar.Finish()
	}

	var missing *models.MissingColumnsError
	if errors.As(err, &missing) {
		printMissing(missing)
		return cli.Exit("batch rejected", 1)
	}
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	printSummary(summary, !c.Bool("quiet"))
	return nil
}

// rollback restores a record from its most recent pre-update snapshot after
// an interactive confirmation.
func (e *env) rollback(c *cli.Context) error {
	key := strings.TrimSpace(c.String("key"))

	store, _, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if !c.Bool("yes") {
		ok, err := confirm(fmt.Sprintf("Roll back record %s to its state before the last update? [y/N] ", key))
		if err != nil {
			return fmt.Errorf("confirmation failed (use --yes in non-interactive shells): %w", err)
		}
		if !ok {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	syncer := sync.NewSyncer(store, &sync.SyncerConfig{Logger: e.logger})
	result, err := syncer.Rollback(c.Context, key)
	if errors.Is(err, models.ErrRollbackNotFound) {
		warn.Printf("No rollback data found for %s\n", key)
		return nil
	}
	if err != nil {
		return err
	}

	printRollback(result)
	return nil
}

// confirm reads a single key press; only y or Y confirms.
func confirm(prompt string) (bool, error) {
	fmt.Print(prompt)
	char, _, err := keyboard.GetSingleKey()
	if err != nil {
		fmt.Println()
		return false, err
	}
	fmt.Printf("%c\n", char)
	return char == 'y' || char == 'Y', nil
}

// export writes the current snapshot and optionally publishes it.
func (e *env) export(c *cli.Context) error {
	out := c.String("out")
	format := strings.ToLower(c.String("format"))
	if format == "" {
		f, err := tabular.FormatOf(out)
		if err != nil {
			return err
		}
		format = string(f)
	}

	var publisher *export.Publisher
	if c.Bool("publish") {
		var err error
		publisher, err = export.NewPublisher(e.cfg.Minio, e.logger)
		if err != nil {
			return fmt.Errorf("cannot publish: %w", err)
		}
	}

	store, profile, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := export.Project(c.Context, store, profile)
	if err != nil {
		return err
	}
	meta := export.Metadata{ExportedAt: time.Now(), Source: store.Path()}
	if err := export.WriteFile(snap, out, format, meta); err != nil {
		return err
	}
	e.logger.Info("merged snapshot exported", "path", out, "rows", len(snap.Rows))
	fmt.Printf("Exported %d records (%d columns) to %s\n", len(snap.Rows), len(snap.Columns), out)

	if publisher != nil {
		object, err := publisher.Publish(c.Context, out)
		if err != nil {
			return err
		}
		fmt.Printf("Published to %s/%s\n", e.cfg.Minio.Bucket, object)
	}
	return nil
}

func (e *env) history(c *cli.Context) error {
	key := strings.TrimSpace(c.String("key"))

	store, _, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.ListHistory(c.Context, key, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No history for %s\n", key)
		return nil
	}
	printHistory(entries)
	return nil
}

func (e *env) status(c *cli.Context) error {
	store, profile, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.GetStats(c.Context)
	if err != nil {
		return err
	}
	size := int64(-1)
	if st, err := os.Stat(store.Path()); err == nil {
		size = st.Size()
	}
	printStatus(store.Path(), profile.KeyColumn, size, stats)
	return nil
}

// serve runs the JSON API until SIGINT or SIGTERM.
func (e *env) serve(c *cli.Context) error {
	store, profile, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	syncer := sync.NewSyncer(store, &sync.SyncerConfig{Logger: e.logger, Observer: m})
	server := api.NewServer(store, syncer, profile, m, e.logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.ListenAndServe(ctx, c.String("addr"))
}
