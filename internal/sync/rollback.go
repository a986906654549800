package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/internal/fingerprint"
	"github.com/chmdznr/recsync/internal/normalize"
	"github.com/chmdznr/recsync/pkg/models"
)

// Rollback restores key from its most recent sync_update_old history entry.
//
// Only one level of undo exists: an entry consumed by a rollback is
// recorded in the rollback log, so rolling back again without an
// intervening update returns models.ErrRollbackNotFound. The history ledger
// itself is never written.
func (s *Syncer) Rollback(ctx context.Context, key string) (*models.RollbackResult, error) {
	key = strings.TrimSpace(key)
	logger := s.logger.With("key", key)

	var result *models.RollbackResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		entry, err := s.db.MostRecentHistory(ctx, tx, key, models.ChangeSyncUpdateOld)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrRollbackNotFound
		}
		if err != nil {
			return err
		}
		consumed, err := s.db.IsRolledBack(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		if consumed {
			return models.ErrRollbackNotFound
		}

		schema, err := s.db.Columns(ctx, tx, db.TableCurrent)
		if err != nil {
			return err
		}
		current, err := s.db.GetRecord(ctx, tx, schema, key)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrRollbackNotFound
		}
		if err != nil {
			return err
		}

		keyCol := s.db.KeyColumn()
		restored := current.Fields.Clone()
		var columns []string
		var changes []models.Modification
		for _, c := range schema {
			if c == keyCol {
				continue
			}
			v, ok := entry.Fields[c]
			if !ok {
				continue
			}
			columns = append(columns, c)
			restored[c] = v
			if o, n := normalize.NormalizeValue(current.Fields[c]), normalize.NormalizeValue(v); o != n {
				changes = append(changes, models.Modification{Key: key, Field: c, Old: o, New: n})
			}
		}

		hash := fingerprint.Columns(schema, restored)
		if err := s.db.RestoreRecord(ctx, tx, key, columns, restored, hash); err != nil {
			return err
		}
		if err := s.db.MarkRolledBack(ctx, tx, entry.ID, key, s.now()); err != nil {
			return err
		}
		result = &models.RollbackResult{Key: key, HistoryID: entry.ID, Restored: changes}
		return nil
	})

	if errors.Is(err, models.ErrRollbackNotFound) {
		logger.Warn("no rollback data found")
		if s.observer != nil {
			s.observer.ObserveRollback(false)
		}
		return nil, err
	}
	if err != nil {
		logger.Error("rollback failed", "err", err)
		return nil, fmt.Errorf("rollback %s: %w", key, err)
	}

	for _, c := range result.Restored {
		logger.Info("field restored", "field", c.Field, "old", c.Old, "new", c.New)
	}
	logger.Info("rolled back to previous state", "history_id", result.HistoryID, "fields", len(result.Restored))
	if s.observer != nil {
		s.observer.ObserveRollback(true)
	}
	return result, nil
}
