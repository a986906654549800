package sync

import (
	"context"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/internal/normalize"
	"github.com/chmdznr/recsync/internal/tabular"
	"github.com/chmdznr/recsync/pkg/models"
)

// Ingest normalizes and validates a raw table against profile, then applies
// it as one batch. Duplicate header renames are reported in the summary.
func (s *Syncer) Ingest(ctx context.Context, table *tabular.Table, source string, profile *config.Profile) (*models.SyncSummary, error) {
	batch, renames, err := normalize.BuildBatch(table.Header, table.Rows, source, profile, s.logger)
	if err != nil {
		s.logger.Error("batch rejected", "source", source, "err", err)
		return nil, err
	}
	summary, err := s.Apply(ctx, batch)
	if err != nil {
		return nil, err
	}
	summary.Renames = renames
	return summary, nil
}
