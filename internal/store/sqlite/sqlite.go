package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Repository implements store.Repository over sqlite.
type Repository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, executor: db}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &Repository{db: r.db, executor: tx}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *Repository) Keys() store.KeyRepository             { return &keyRepo{db: r.executor} }
func (r *Repository) Models() store.ModelRepository         { return &modelRepo{db: r.executor} }
func (r *Repository) Credential() store.CredentialRepository { return &credentialRepo{db: r.executor} }
func (r *Repository) Usage() store.UsageRepository          { return &usageRepo{db: r.executor} }
func (r *Repository) Sessions() store.SessionRepository     { return &sessionRepo{db: r.executor} }

// ---------------------------------------------------------------------------
// keys
// ---------------------------------------------------------------------------

type keyRepo struct {
	db DB
}

func (r *keyRepo) GetByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	// enabled check is part of the query for speed
	err := r.db.GetContext(ctx, &key, `SELECT * FROM api_keys WHERE secret_hash = ? AND enabled = 1`, hash)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *keyRepo) Get(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	if err := r.db.GetContext(ctx, &key, `SELECT * FROM api_keys WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *keyRepo) Create(ctx context.Context, key *model.APIKey) error {
	query := `
	INSERT INTO api_keys (id, secret_hash, key_prefix, name, enabled, created_at, five_hour_limit, weekly_limit, total_limit)
	VALUES (:id, :secret_hash, :key_prefix, :name, :enabled, :created_at, :five_hour_limit, :weekly_limit, :total_limit)`
	_, err := r.db.NamedExecContext(ctx, query, key)
	return err
}

func (r *keyRepo) List(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := r.db.SelectContext(ctx, &keys, `SELECT * FROM api_keys ORDER BY created_at`)
	return keys, err
}

func (r *keyRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *keyRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET enabled = ? WHERE id = ?`, enabled, id)
	return err
}

func (r *keyRepo) SetLimits(ctx context.Context, id string, limits model.Limits) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET five_hour_limit = ?, weekly_limit = ?, total_limit = ? WHERE id = ?`,
		limits.FiveHour, limits.Weekly, limits.Total, id)
	return err
}

func (r *keyRepo) TouchLastUsed(ctx context.Context, id string, now int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, id)
	return err
}

func (r *keyRepo) AllowedModels(ctx context.Context, keyID string) ([]string, error) {
	var models []string
	err := r.db.SelectContext(ctx, &models,
		`SELECT model FROM key_allowed_models WHERE key_id = ? ORDER BY model`, keyID)
	return models, err
}

func (r *keyRepo) SetAllowedModels(ctx context.Context, keyID string, models []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM key_allowed_models WHERE key_id = ?`, keyID); err != nil {
		return err
	}
	for _, m := range models {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO key_allowed_models (key_id, model) VALUES (?, ?)`, keyID, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *keyRepo) ModelLimits(ctx context.Context, keyID, modelID string) (*model.KeyModelLimits, error) {
	var l model.KeyModelLimits
	err := r.db.GetContext(ctx, &l,
		`SELECT * FROM key_model_limits WHERE key_id = ? AND model = ?`, keyID, modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *keyRepo) ListModelLimits(ctx context.Context, keyID string) ([]model.KeyModelLimits, error) {
	var limits []model.KeyModelLimits
	err := r.db.SelectContext(ctx, &limits,
		`SELECT * FROM key_model_limits WHERE key_id = ? ORDER BY model`, keyID)
	return limits, err
}

func (r *keyRepo) SetModelLimits(ctx context.Context, limits *model.KeyModelLimits) error {
	query := `
	INSERT INTO key_model_limits (key_id, model, five_hour_limit, weekly_limit, total_limit)
	VALUES (:key_id, :model, :five_hour_limit, :weekly_limit, :total_limit)
	ON CONFLICT(key_id, model) DO UPDATE SET
		five_hour_limit = excluded.five_hour_limit,
		weekly_limit = excluded.weekly_limit,
		total_limit = excluded.total_limit`
	_, err := r.db.NamedExecContext(ctx, query, limits)
	return err
}

func (r *keyRepo) RemoveModelLimits(ctx context.Context, keyID, modelID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM key_model_limits WHERE key_id = ? AND model = ?`, keyID, modelID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// models
// ---------------------------------------------------------------------------

type modelRepo struct {
	db DB
}

func (r *modelRepo) Get(ctx context.Context, id string) (*model.Model, error) {
	var m model.Model
	if err := r.db.GetContext(ctx, &m, `SELECT * FROM models WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *modelRepo) List(ctx context.Context) ([]model.Model, error) {
	var models []model.Model
	err := r.db.SelectContext(ctx, &models, `SELECT * FROM models ORDER BY sort_order, id`)
	return models, err
}

func (r *modelRepo) ListEnabled(ctx context.Context) ([]model.Model, error) {
	var models []model.Model
	err := r.db.SelectContext(ctx, &models, `SELECT * FROM models WHERE enabled = 1 ORDER BY sort_order, id`)
	return models, err
}

func (r *modelRepo) Create(ctx context.Context, m *model.Model) error {
	query := `
	INSERT INTO models (id, sort_order, enabled, input_price, output_price, cache_read_price, cache_write_price)
	VALUES (:id, :sort_order, :enabled, :input_price, :output_price, :cache_read_price, :cache_write_price)`
	_, err := r.db.NamedExecContext(ctx, query, m)
	return err
}

func (r *modelRepo) Update(ctx context.Context, m *model.Model) error {
	query := `
	UPDATE models SET sort_order = :sort_order, enabled = :enabled,
		input_price = :input_price, output_price = :output_price,
		cache_read_price = :cache_read_price, cache_write_price = :cache_write_price
	WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, query, m)
	return err
}

func (r *modelRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *modelRepo) Reorder(ctx context.Context, ids []string) error {
	for i, id := range ids {
		if _, err := r.db.ExecContext(ctx, `UPDATE models SET sort_order = ? WHERE id = ?`, i, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *modelRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM models`)
	return n, err
}

// ---------------------------------------------------------------------------
// oauth credential (singleton row)
// ---------------------------------------------------------------------------

type credentialRepo struct {
	db DB
}

func (r *credentialRepo) Get(ctx context.Context) (*model.OAuthCredential, error) {
	var cred model.OAuthCredential
	err := r.db.GetContext(ctx, &cred,
		`SELECT access_token, refresh_token, expires_at, plan FROM oauth_credential WHERE singleton = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) Set(ctx context.Context, cred *model.OAuthCredential) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO oauth_credential (singleton, access_token, refresh_token, expires_at, plan)
	VALUES (1, ?, ?, ?, ?)
	ON CONFLICT(singleton) DO UPDATE SET
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		expires_at = excluded.expires_at,
		plan = excluded.plan`,
		cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.Plan)
	return err
}

func (r *credentialRepo) UpdateTokens(ctx context.Context, access, refresh string, expiresAt int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE oauth_credential SET access_token = ?, refresh_token = ?, expires_at = ? WHERE singleton = 1`,
		access, refresh, expiresAt)
	return err
}

func (r *credentialRepo) Delete(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM oauth_credential WHERE singleton = 1`)
	return err
}

// ---------------------------------------------------------------------------
// usage counters + history
// ---------------------------------------------------------------------------

type usageRepo struct {
	db DB
}

func (r *usageRepo) GetCounter(ctx context.Context, keyID, modelID string, w model.Window) (*model.UsageCounter, error) {
	var c model.UsageCounter
	err := r.db.GetContext(ctx, &c,
		`SELECT * FROM usage_counters WHERE key_id = ? AND model_id = ? AND "window" = ?`,
		keyID, modelID, w)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *usageRepo) ListCounters(ctx context.Context, keyID string) ([]model.UsageCounter, error) {
	var counters []model.UsageCounter
	err := r.db.SelectContext(ctx, &counters,
		`SELECT * FROM usage_counters WHERE key_id = ? ORDER BY model_id, "window"`, keyID)
	return counters, err
}

func (r *usageRepo) UpsertCounterDelta(ctx context.Context, keyID, modelID string, w model.Window, delta model.TokenUsage, costMicros, windowStart int64) error {
	// Single UPSERT so the read-modify-write is one sqlite statement.
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO usage_counters (key_id, model_id, "window",
		input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		cost_microdollars, window_start)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key_id, model_id, "window") DO UPDATE SET
		input_tokens = input_tokens + excluded.input_tokens,
		output_tokens = output_tokens + excluded.output_tokens,
		cache_read_tokens = cache_read_tokens + excluded.cache_read_tokens,
		cache_write_tokens = cache_write_tokens + excluded.cache_write_tokens,
		cost_microdollars = cost_microdollars + excluded.cost_microdollars`,
		keyID, modelID, w,
		delta.InputTokens, delta.OutputTokens, delta.CacheReadTokens, delta.CacheWriteTokens,
		costMicros, windowStart)
	return err
}

func (r *usageRepo) RollWindow(ctx context.Context, keyID, modelID string, w model.Window, windowStart int64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE usage_counters SET
		input_tokens = 0, output_tokens = 0, cache_read_tokens = 0, cache_write_tokens = 0,
		cost_microdollars = 0, window_start = ?
	WHERE key_id = ? AND model_id = ? AND "window" = ?`,
		windowStart, keyID, modelID, w)
	return err
}

func (r *usageRepo) ResetCounters(ctx context.Context, keyID, modelID string, windows []model.Window, now int64) error {
	if len(windows) == 0 {
		windows = []model.Window{model.WindowFiveHour, model.WindowWeekly, model.WindowTotal}
	}
	placeholders := make([]string, len(windows))
	args := []interface{}{now, keyID}
	for i, w := range windows {
		placeholders[i] = "?"
		args = append(args, w)
	}
	query := fmt.Sprintf(`
	UPDATE usage_counters SET
		input_tokens = 0, output_tokens = 0, cache_read_tokens = 0, cache_write_tokens = 0,
		cost_microdollars = 0, window_start = ?
	WHERE key_id = ? AND "window" IN (%s)`, strings.Join(placeholders, ", "))
	if modelID != "" {
		query += ` AND model_id = ?`
		args = append(args, modelID)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *usageRepo) AppendEvent(ctx context.Context, ev *model.UsageEvent) error {
	query := `
	INSERT INTO usage_history (created_at, key_id, model,
		input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		cost_microdollars, request_count)
	VALUES (:created_at, :key_id, :model,
		:input_tokens, :output_tokens, :cache_read_tokens, :cache_write_tokens,
		:cost_microdollars, :request_count)`
	_, err := r.db.NamedExecContext(ctx, query, ev)
	return err
}

func (r *usageRepo) Timeseries(ctx context.Context, since, bucketMS int64) ([]model.TimeseriesPoint, error) {
	var points []model.TimeseriesPoint
	err := r.db.SelectContext(ctx, &points, `
	SELECT (created_at / ?) * ? AS bucket,
		SUM(request_count) AS request_count,
		SUM(cost_microdollars) AS cost_microdollars,
		SUM(input_tokens) AS input_tokens,
		SUM(output_tokens) AS output_tokens,
		SUM(cache_read_tokens) AS cache_read_tokens,
		SUM(cache_write_tokens) AS cache_write_tokens
	FROM usage_history WHERE created_at >= ?
	GROUP BY bucket ORDER BY bucket`,
		bucketMS, bucketMS, since)
	return points, err
}

func (r *usageRepo) ByModel(ctx context.Context, since int64) ([]model.ModelBreakdown, error) {
	var rows []model.ModelBreakdown
	err := r.db.SelectContext(ctx, &rows, `
	SELECT model,
		SUM(request_count) AS request_count,
		SUM(cost_microdollars) AS cost_microdollars,
		SUM(input_tokens) AS input_tokens,
		SUM(output_tokens) AS output_tokens,
		SUM(cache_read_tokens) AS cache_read_tokens,
		SUM(cache_write_tokens) AS cache_write_tokens
	FROM usage_history WHERE created_at >= ?
	GROUP BY model ORDER BY cost_microdollars DESC`, since)
	return rows, err
}

func (r *usageRepo) ByKey(ctx context.Context, since int64) ([]model.KeyBreakdown, error) {
	var rows []model.KeyBreakdown
	err := r.db.SelectContext(ctx, &rows, `
	SELECT h.key_id,
		k.name AS key_name,
		SUM(h.request_count) AS request_count,
		SUM(h.cost_microdollars) AS cost_microdollars,
		SUM(h.input_tokens) AS input_tokens,
		SUM(h.output_tokens) AS output_tokens,
		SUM(h.cache_read_tokens) AS cache_read_tokens,
		SUM(h.cache_write_tokens) AS cache_write_tokens
	FROM usage_history h
	LEFT JOIN api_keys k ON k.id = h.key_id
	WHERE h.created_at >= ?
	GROUP BY h.key_id ORDER BY cost_microdollars DESC`, since)
	return rows, err
}

// ---------------------------------------------------------------------------
// admin sessions
// ---------------------------------------------------------------------------

type sessionRepo struct {
	db DB
}

func (r *sessionRepo) Save(ctx context.Context, token string, expiresAt int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO admin_sessions (token, expires_at) VALUES (?, ?)`,
		token, expiresAt)
	return err
}

func (r *sessionRepo) Valid(ctx context.Context, token string, now int64) (bool, error) {
	var expiresAt int64
	err := r.db.GetContext(ctx, &expiresAt,
		`SELECT expires_at FROM admin_sessions WHERE token = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if now < expiresAt {
		return true, nil
	}
	// Expired — clean it up
	_, _ = r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token)
	return false, nil
}

func (r *sessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token)
	return err
}
