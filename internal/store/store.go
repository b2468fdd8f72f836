package store

import (
	"context"

	"github.com/nulzo/claude-gate/internal/store/model"
)

type contextKey string

// ContextKeyAPIKey carries the authenticated key through the request context.
const ContextKeyAPIKey contextKey = "api_key"

// Repository is the main contract for the data layer.
type Repository interface {
	Keys() KeyRepository
	Models() ModelRepository
	Credential() CredentialRepository
	Usage() UsageRepository
	Sessions() SessionRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type KeyRepository interface {
	// GetByHash retrieves an enabled key by its hashed secret (for auth).
	GetByHash(ctx context.Context, hash string) (*model.APIKey, error)
	// Get returns a key by ID regardless of enabled state.
	Get(ctx context.Context, id string) (*model.APIKey, error)
	// Create issues a new API key row.
	Create(ctx context.Context, key *model.APIKey) error
	// List returns all keys.
	List(ctx context.Context) ([]model.APIKey, error)
	// Delete removes a key; reports whether a row was deleted.
	Delete(ctx context.Context, id string) (bool, error)
	// SetEnabled toggles a key.
	SetEnabled(ctx context.Context, id string, enabled bool) error
	// SetLimits replaces the key-level cost caps.
	SetLimits(ctx context.Context, id string, limits model.Limits) error
	// TouchLastUsed bumps last_used_at.
	TouchLastUsed(ctx context.Context, id string, now int64) error

	// AllowedModels returns the model allow-list; empty means allow all.
	AllowedModels(ctx context.Context, keyID string) ([]string, error)
	// SetAllowedModels replaces the allow-list; empty clears it.
	SetAllowedModels(ctx context.Context, keyID string, models []string) error

	// ModelLimits returns the per-model override for (key, model), nil if unset.
	ModelLimits(ctx context.Context, keyID, modelID string) (*model.KeyModelLimits, error)
	// ListModelLimits returns all per-model overrides for a key.
	ListModelLimits(ctx context.Context, keyID string) ([]model.KeyModelLimits, error)
	// SetModelLimits upserts a per-model override.
	SetModelLimits(ctx context.Context, limits *model.KeyModelLimits) error
	// RemoveModelLimits deletes a per-model override.
	RemoveModelLimits(ctx context.Context, keyID, modelID string) (bool, error)
}

type ModelRepository interface {
	Get(ctx context.Context, id string) (*model.Model, error)
	// List returns all models ordered by sort_order.
	List(ctx context.Context) ([]model.Model, error)
	// ListEnabled returns enabled models ordered by sort_order.
	ListEnabled(ctx context.Context) ([]model.Model, error)
	Create(ctx context.Context, m *model.Model) error
	Update(ctx context.Context, m *model.Model) error
	Delete(ctx context.Context, id string) (bool, error)
	// Reorder assigns sort_order following the given id order.
	Reorder(ctx context.Context, ids []string) error
	// Count reports the number of model rows (used for first-run seeding).
	Count(ctx context.Context) (int64, error)
}

type CredentialRepository interface {
	// Get returns the singleton credential or nil when disconnected.
	Get(ctx context.Context) (*model.OAuthCredential, error)
	// Set replaces the singleton credential.
	Set(ctx context.Context, cred *model.OAuthCredential) error
	// UpdateTokens rewrites the token triple after a refresh.
	UpdateTokens(ctx context.Context, access, refresh string, expiresAt int64) error
	// Delete disconnects.
	Delete(ctx context.Context) error
}

type UsageRepository interface {
	// GetCounter returns the counter for (key, model, window); nil when the
	// counter was never written. modelID "" addresses the key-global counter.
	GetCounter(ctx context.Context, keyID, modelID string, w model.Window) (*model.UsageCounter, error)
	// ListCounters returns every counter for a key.
	ListCounters(ctx context.Context, keyID string) ([]model.UsageCounter, error)
	// UpsertCounterDelta adds the delta to the counter, creating the row with
	// windowStart if missing. The add is atomic per (key, model, window).
	UpsertCounterDelta(ctx context.Context, keyID, modelID string, w model.Window, delta model.TokenUsage, costMicros, windowStart int64) error
	// RollWindow resets an expired counter to zero with a new window start.
	RollWindow(ctx context.Context, keyID, modelID string, w model.Window, windowStart int64) error
	// ResetCounters zeroes windows for a key, or a (key, model) pair when
	// modelID is non-empty. windows nil/empty means all three.
	ResetCounters(ctx context.Context, keyID, modelID string, windows []model.Window, now int64) error

	// AppendEvent records one usage-history event.
	AppendEvent(ctx context.Context, ev *model.UsageEvent) error
	// Timeseries aggregates events into fixed buckets from `since` (epoch ms).
	Timeseries(ctx context.Context, since, bucketMS int64) ([]model.TimeseriesPoint, error)
	// ByModel aggregates events per model from `since`.
	ByModel(ctx context.Context, since int64) ([]model.ModelBreakdown, error)
	// ByKey aggregates events per key from `since`.
	ByKey(ctx context.Context, since int64) ([]model.KeyBreakdown, error)
}

type SessionRepository interface {
	Save(ctx context.Context, token string, expiresAt int64) error
	// Valid reports whether the token exists and has not expired; expired
	// tokens are removed as a side effect.
	Valid(ctx context.Context, token string, now int64) (bool, error)
	Delete(ctx context.Context, token string) error
}
