package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/internal/fingerprint"
	"github.com/chmdznr/recsync/internal/normalize"
	"github.com/chmdznr/recsync/pkg/models"
	"github.com/google/uuid"
)

// Observer receives the outcome of sync and rollback operations
type Observer interface {
	ObserveSync(summary *models.SyncSummary)
	ObserveRollback(ok bool)
}

// Syncer reconciles incoming batches with the current store
type Syncer struct {
	db       *db.DB
	logger   *slog.Logger
	progress func(done, total int)
	observer Observer
	now      func() time.Time
}

// SyncerConfig holds configuration for the syncer
type SyncerConfig struct {
	Logger *slog.Logger
	// Progress, if set, is called after each processed row.
	Progress func(done, total int)
	Observer Observer
	// Clock overrides time.Now, mostly for tests.
	Clock func() time.Time
}

// DefaultSyncerConfig returns default syncer configuration
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		Logger: slog.Default(),
		Clock:  time.Now,
	}
}

// NewSyncer creates a new syncer instance
func NewSyncer(store *db.DB, config *SyncerConfig) *Syncer {
	if config == nil {
		defaultConfig := DefaultSyncerConfig()
		config = &defaultConfig
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Syncer{
		db:       store,
		logger:   logger.With("component", "sync"),
		progress: config.Progress,
		observer: config.Observer,
		now:      clock,
	}
}

type outcome int

const (
	outcomeNew outcome = iota
	outcomeUnchanged
	outcomeRefreshed
	outcomeUpdated
)

type rowResult struct {
	outcome outcome
	op      string
	mods    []models.Modification
}

type batchMeta struct {
	id        string
	source    string
	ts        time.Time
	schema    []string
	columns   []string
	updatable []string
}

// Apply synchronizes batch into the store inside a single transaction.
//
// Each record is classified as new, updated or unchanged. Updates append the
// previous values to the history ledger before overwriting. Per-row storage
// failures are rolled back to a savepoint and reported in the summary
// without aborting the batch; schema migration, savepoint, commit and
// context failures abort it and leave the store untouched.
func (s *Syncer) Apply(ctx context.Context, batch *models.Batch) (*models.SyncSummary, error) {
	keyCol := s.db.KeyColumn()
	if !contains(batch.Columns, keyCol) {
		return nil, &models.MissingColumnsError{Missing: []string{keyCol}}
	}

	started := s.now()
	summary := &models.SyncSummary{
		BatchID:       uuid.NewString(),
		Source:        batch.Source,
		StartedAt:     started,
		Modifications: []models.Modification{},
		Errors:        []models.RowError{},
	}
	meta := batchMeta{
		id:      summary.BatchID,
		source:  batch.Source,
		ts:      started,
		columns: batch.Columns,
	}
	for _, c := range batch.Columns {
		if c != keyCol {
			meta.updatable = append(meta.updatable, c)
		}
	}
	logger := s.logger.With("batch", summary.BatchID, "source", batch.Source)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		added, err := s.db.EnsureSchema(ctx, tx, batch.Columns)
		if err != nil {
			return err
		}
		summary.AddedColumns = added

		meta.schema, err = s.db.Columns(ctx, tx, db.TableCurrent)
		if err != nil {
			return err
		}

		total := batch.Len()
		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := batch.Record(i)
			key := normalize.NormalizeValue(rec[keyCol])
			if key == "" {
				s.report(i+1, total)
				continue
			}
			rec[keyCol] = &key

			var res rowResult
			rowErr, err := db.WithSavepoint(ctx, tx, "sync_row", func() error {
				var err error
				res, err = s.applyRecord(ctx, tx, meta, key, rec)
				return err
			})
			if err != nil {
				return err
			}
			if rowErr != nil {
				logger.Error("row failed", "key", key, "op", res.op, "err", rowErr)
				summary.Errors = append(summary.Errors, models.RowError{Key: key, Op: res.op, Err: rowErr.Error()})
			} else {
				tally(summary, res)
			}
			s.report(i+1, total)
		}
		return nil
	})
	if err != nil {
		logger.Error("batch aborted", "err", err)
		return nil, fmt.Errorf("sync batch: %w", err)
	}
	summary.Duration = s.now().Sub(started)

	for _, m := range summary.Modifications {
		logger.Info("field changed", "key", m.Key, "field", m.Field, "old", m.Old, "new", m.New)
	}
	logger.Info("batch synchronized",
		"new", summary.New,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"refreshed", summary.Refreshed,
		"errors", len(summary.Errors))

	if s.observer != nil {
		s.observer.ObserveSync(summary)
	}
	return summary, nil
}

func (s *Syncer) applyRecord(ctx context.Context, tx *sql.Tx, meta batchMeta, key string, rec models.Record) (rowResult, error) {
	res := rowResult{op: "lookup"}
	existing, err := s.db.GetRecord(ctx, tx, meta.schema, key)
	if errors.Is(err, models.ErrNotFound) {
		res.op = "insert"
		hash := fingerprint.Columns(meta.schema, rec)
		if err := s.db.InsertRecord(ctx, tx, meta.columns, rec, hash, meta.ts, meta.source); err != nil {
			return res, err
		}
		res.outcome = outcomeNew
		return res, nil
	}
	if err != nil {
		return res, err
	}

	// Columns the batch does not carry keep their stored values.
	merged := existing.Fields.Clone()
	for _, c := range meta.columns {
		merged[c] = rec[c]
	}
	hash := fingerprint.Columns(meta.schema, merged)
	if hash == existing.RowHash {
		res.outcome = outcomeUnchanged
		return res, nil
	}

	res.mods = diff(key, meta.updatable, existing.Fields, rec)
	if len(res.mods) == 0 {
		// The stored fingerprint predates a schema change or was computed
		// differently; values are equal, so only the digest is refreshed.
		res.op = "refresh"
		if err := s.db.UpdateRowHash(ctx, tx, key, hash); err != nil {
			return res, err
		}
		res.outcome = outcomeRefreshed
		return res, nil
	}

	res.op = "history"
	entry := &models.HistoryEntry{
		Key:        key,
		Fields:     existing.Fields,
		RowHash:    existing.RowHash,
		ChangeType: models.ChangeSyncUpdateOld,
		ChangedAt:  meta.ts,
		SourceFile: meta.source,
		BatchID:    meta.id,
	}
	if _, err := s.db.AppendHistory(ctx, tx, meta.schema, entry); err != nil {
		return res, err
	}

	res.op = "update"
	if err := s.db.UpdateRecord(ctx, tx, key, meta.updatable, rec, hash, meta.ts, meta.source); err != nil {
		return res, err
	}
	res.outcome = outcomeUpdated
	return res, nil
}

// diff compares prev and next over columns using null-normalized text.
func diff(key string, columns []string, prev, next models.Record) []models.Modification {
	var mods []models.Modification
	for _, c := range columns {
		o := normalize.NormalizeValue(prev[c])
		n := normalize.NormalizeValue(next[c])
		if o != n {
			mods = append(mods, models.Modification{Key: key, Field: c, Old: o, New: n})
		}
	}
	return mods
}

func tally(summary *models.SyncSummary, res rowResult) {
	switch res.outcome {
	case outcomeNew:
		summary.New++
	case outcomeUpdated:
		summary.Updated++
		summary.Modifications = append(summary.Modifications, res.mods...)
	case outcomeRefreshed:
		summary.Unchanged++
		summary.Refreshed++
	default:
		summary.Unchanged++
	}
}

func (s *Syncer) report(done, total int) {
	if s.progress != nil {
		s.progress(done, total)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
