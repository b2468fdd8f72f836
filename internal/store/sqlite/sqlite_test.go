package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
	"github.com/nulzo/claude-gate/internal/store/sqlite"
)

func newRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newKey(t *testing.T, repo store.Repository) *model.APIKey {
	t.Helper()
	key := &model.APIKey{
		ID:         uuid.NewString(),
		SecretHash: uuid.NewString(),
		KeyPrefix:  "sk-gate-",
		Name:       "k",
		Enabled:    true,
		CreatedAt:  time.Now().UnixMilli(),
	}
	require.NoError(t, repo.Keys().Create(context.Background(), key))
	return key
}

func TestSeededModels(t *testing.T) {
	repo := newRepo(t)

	models, err := repo.Models().ListEnabled(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, models)

	sonnet, err := repo.Models().Get(context.Background(), "claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), sonnet.InputPrice)
	assert.Equal(t, int64(15_000_000), sonnet.OutputPrice)
	assert.Equal(t, int64(300_000), sonnet.CacheReadPrice)
	assert.Equal(t, int64(3_750_000), sonnet.CacheWritePrice)
}

func TestKeyLookupByHash(t *testing.T) {
	repo := newRepo(t)
	key := newKey(t, repo)
	ctx := context.Background()

	found, err := repo.Keys().GetByHash(ctx, key.SecretHash)
	require.NoError(t, err)
	assert.Equal(t, key.ID, found.ID)

	// Disabled keys don't authenticate.
	require.NoError(t, repo.Keys().SetEnabled(ctx, key.ID, false))
	_, err = repo.Keys().GetByHash(ctx, key.SecretHash)
	assert.Error(t, err)
}

func TestCounterUpsertAccumulates(t *testing.T) {
	repo := newRepo(t)
	key := newKey(t, repo)
	ctx := context.Background()

	delta := model.TokenUsage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 2, CacheWriteTokens: 1}
	require.NoError(t, repo.Usage().UpsertCounterDelta(ctx, key.ID, "", model.WindowFiveHour, delta, 100, 1000))
	require.NoError(t, repo.Usage().UpsertCounterDelta(ctx, key.ID, "", model.WindowFiveHour, delta, 100, 2000))

	c, err := repo.Usage().GetCounter(ctx, key.ID, "", model.WindowFiveHour)
	require.NoError(t, err)
	assert.Equal(t, int64(20), c.InputTokens)
	assert.Equal(t, int64(10), c.OutputTokens)
	assert.Equal(t, int64(200), c.CostMicros)
	// The first write fixes the window start.
	assert.Equal(t, int64(1000), c.WindowStart)
}

func TestRollWindowZeroes(t *testing.T) {
	repo := newRepo(t)
	key := newKey(t, repo)
	ctx := context.Background()

	delta := model.TokenUsage{InputTokens: 10}
	require.NoError(t, repo.Usage().UpsertCounterDelta(ctx, key.ID, "", model.WindowFiveHour, delta, 30, 1000))
	require.NoError(t, repo.Usage().RollWindow(ctx, key.ID, "", model.WindowFiveHour, 5000))

	c, err := repo.Usage().GetCounter(ctx, key.ID, "", model.WindowFiveHour)
	require.NoError(t, err)
	assert.Zero(t, c.InputTokens)
	assert.Zero(t, c.CostMicros)
	assert.Equal(t, int64(5000), c.WindowStart)
}

func TestHistoryAggregation(t *testing.T) {
	repo := newRepo(t)
	key := newKey(t, repo)
	other := newKey(t, repo)
	ctx := context.Background()

	base := time.Now().UnixMilli()
	events := []*model.UsageEvent{
		{CreatedAt: base - 3_600_000, KeyID: key.ID, Model: "claude-sonnet-4-5", InputTokens: 10, OutputTokens: 5, CostMicros: 100, RequestCount: 1},
		{CreatedAt: base - 1_800_000, KeyID: key.ID, Model: "claude-opus-4-6", InputTokens: 20, OutputTokens: 10, CostMicros: 500, RequestCount: 1},
		{CreatedAt: base - 60_000, KeyID: other.ID, Model: "claude-sonnet-4-5", InputTokens: 1, OutputTokens: 1, CostMicros: 18, RequestCount: 1},
	}
	for _, ev := range events {
		require.NoError(t, repo.Usage().AppendEvent(ctx, ev))
	}

	since := base - 24*3_600_000

	byModel, err := repo.Usage().ByModel(ctx, since)
	require.NoError(t, err)
	require.Len(t, byModel, 2)
	// Ordered by cost descending.
	assert.Equal(t, "claude-opus-4-6", byModel[0].Model)
	assert.Equal(t, int64(500), byModel[0].CostMicros)
	assert.Equal(t, int64(118), byModel[1].CostMicros)

	byKey, err := repo.Usage().ByKey(ctx, since)
	require.NoError(t, err)
	require.Len(t, byKey, 2)
	assert.Equal(t, key.ID, byKey[0].KeyID)
	assert.Equal(t, int64(600), byKey[0].CostMicros)
	assert.Equal(t, "k", byKey[0].KeyName.String)

	points, err := repo.Usage().Timeseries(ctx, since, 3_600_000)
	require.NoError(t, err)
	var totalCost, totalReqs int64
	for _, p := range points {
		totalCost += p.CostMicros
		totalReqs += p.RequestCount
	}
	assert.Equal(t, int64(618), totalCost)
	assert.Equal(t, int64(3), totalReqs)
}

func TestCounterSumMatchesHistory(t *testing.T) {
	// The invariant: total-window counter cost equals the event sum.
	repo := newRepo(t)
	key := newKey(t, repo)
	ctx := context.Background()

	costs := []int64{54, 120, 7}
	for _, cost := range costs {
		require.NoError(t, repo.Usage().UpsertCounterDelta(ctx, key.ID, "", model.WindowTotal,
			model.TokenUsage{InputTokens: 1}, cost, 0))
		require.NoError(t, repo.Usage().AppendEvent(ctx, &model.UsageEvent{
			CreatedAt: time.Now().UnixMilli(), KeyID: key.ID, Model: "m",
			InputTokens: 1, CostMicros: cost, RequestCount: 1,
		}))
	}

	counter, err := repo.Usage().GetCounter(ctx, key.ID, "", model.WindowTotal)
	require.NoError(t, err)

	rows, err := repo.Usage().ByKey(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, counter.CostMicros, rows[0].CostMicros)
}

func TestModelLimitsUpsert(t *testing.T) {
	repo := newRepo(t)
	key := newKey(t, repo)
	ctx := context.Background()

	limits, err := repo.Keys().ModelLimits(ctx, key.ID, "claude-opus-4-6")
	require.NoError(t, err)
	assert.Nil(t, limits)

	set := &model.KeyModelLimits{KeyID: key.ID, Model: "claude-opus-4-6"}
	set.FiveHourLimit.Int64, set.FiveHourLimit.Valid = 500, true
	require.NoError(t, repo.Keys().SetModelLimits(ctx, set))

	set.FiveHourLimit.Int64 = 900
	require.NoError(t, repo.Keys().SetModelLimits(ctx, set))

	got, err := repo.Keys().ModelLimits(ctx, key.ID, "claude-opus-4-6")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(900), got.FiveHourLimit.Int64)

	removed, err := repo.Keys().RemoveModelLimits(ctx, key.ID, "claude-opus-4-6")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestSessions(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, repo.Sessions().Save(ctx, "tok", now+60))

	ok, err := repo.Sessions().Valid(ctx, "tok", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Expired tokens are invalid and swept.
	ok, err = repo.Sessions().Valid(ctx, "tok", now+120)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Sessions().Valid(ctx, "tok", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialSingleton(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	cred, err := repo.Credential().Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	require.NoError(t, repo.Credential().Set(ctx, &model.OAuthCredential{
		AccessToken: "a1", RefreshToken: "r1", ExpiresAt: 100,
	}))
	require.NoError(t, repo.Credential().Set(ctx, &model.OAuthCredential{
		AccessToken: "a2", RefreshToken: "r2", ExpiresAt: 200,
	}))

	cred, err = repo.Credential().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", cred.AccessToken)

	require.NoError(t, repo.Credential().UpdateTokens(ctx, "a3", "r3", 300))
	cred, err = repo.Credential().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a3", cred.AccessToken)
	assert.Equal(t, int64(300), cred.ExpiresAt)

	require.NoError(t, repo.Credential().Delete(ctx))
	cred, err = repo.Credential().Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}
