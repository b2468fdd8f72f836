package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
)

// seedModel carries the launch price list. Prices are microdollars per
// million tokens ($/MTok × 1_000_000).
type seedModel struct {
	id                                             string
	input, output, cacheRead, cacheWrite int64
}

// Used only on first startup when the models table is empty. After that,
// models are managed via the admin UI.
var seedModels = []seedModel{
	{"claude-opus-4-6", 5_000_000, 25_000_000, 500_000, 6_250_000},
	{"claude-opus-4-5-20251101", 5_000_000, 25_000_000, 500_000, 6_250_000},
	{"claude-opus-4-5", 5_000_000, 25_000_000, 500_000, 6_250_000},
	{"claude-sonnet-4-6", 3_000_000, 15_000_000, 300_000, 3_750_000},
	{"claude-sonnet-4-5-20250929", 3_000_000, 15_000_000, 300_000, 3_750_000},
	{"claude-sonnet-4-5", 3_000_000, 15_000_000, 300_000, 3_750_000},
	{"claude-haiku-4-5-20251001", 1_000_000, 5_000_000, 100_000, 1_250_000},
	{"claude-haiku-4-5", 1_000_000, 5_000_000, 100_000, 1_250_000},
	{"claude-opus-4-1-20250805", 15_000_000, 75_000_000, 1_500_000, 18_750_000},
	{"claude-opus-4-1", 15_000_000, 75_000_000, 1_500_000, 18_750_000},
	{"claude-opus-4-20250514", 15_000_000, 75_000_000, 1_500_000, 18_750_000},
	{"claude-opus-4-0", 15_000_000, 75_000_000, 1_500_000, 18_750_000},
	{"claude-sonnet-4-20250514", 3_000_000, 15_000_000, 300_000, 3_750_000},
	{"claude-sonnet-4-0", 3_000_000, 15_000_000, 300_000, 3_750_000},
}

func seedModelsIfEmpty(repo store.Repository, logger *zap.Logger) error {
	ctx := context.Background()

	count, err := repo.Models().Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	logger.Info("seeding models table", zap.Int("models", len(seedModels)))
	return repo.WithTx(ctx, func(tx store.Repository) error {
		for i, s := range seedModels {
			m := &model.Model{
				ID:              s.id,
				SortOrder:       i,
				Enabled:         true,
				InputPrice:      s.input,
				OutputPrice:     s.output,
				CacheReadPrice:  s.cacheRead,
				CacheWritePrice: s.cacheWrite,
			}
			if err := tx.Models().Create(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}
