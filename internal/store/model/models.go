package model

import "database/sql"

// Window identifies one of the three accounting windows.
type Window string

const (
	WindowFiveHour Window = "five_hour"
	WindowWeekly   Window = "weekly"
	WindowTotal    Window = "total"
)

// Durations in milliseconds for the tumbling windows.
const (
	FiveHourMS = 5 * 60 * 60 * 1000
	WeeklyMS   = 7 * 24 * 60 * 60 * 1000
)

// APIKey is the credential clients present to the proxy.
type APIKey struct {
	ID         string        `db:"id" json:"id"`
	SecretHash string        `db:"secret_hash" json:"-"` // Never return hash
	KeyPrefix  string        `db:"key_prefix" json:"key_prefix"`
	Name       string        `db:"name" json:"name"`
	Enabled    bool          `db:"enabled" json:"enabled"`
	CreatedAt  int64         `db:"created_at" json:"created_at"`
	LastUsedAt sql.NullInt64 `db:"last_used_at" json:"last_used_at,omitempty"`

	// Cost caps in microdollars; NULL means unlimited.
	FiveHourLimit sql.NullInt64 `db:"five_hour_limit" json:"five_hour_limit,omitempty"`
	WeeklyLimit   sql.NullInt64 `db:"weekly_limit" json:"weekly_limit,omitempty"`
	TotalLimit    sql.NullInt64 `db:"total_limit" json:"total_limit,omitempty"`
}

// Limits groups the three optional window caps (microdollars).
type Limits struct {
	FiveHour *int64 `json:"five_hour_limit,omitempty"`
	Weekly   *int64 `json:"weekly_limit,omitempty"`
	Total    *int64 `json:"total_limit,omitempty"`
}

// ForWindow returns the cap for one window, nil when unlimited.
func (l Limits) ForWindow(w Window) *int64 {
	switch w {
	case WindowFiveHour:
		return l.FiveHour
	case WindowWeekly:
		return l.Weekly
	default:
		return l.Total
	}
}

// LimitsOf extracts the key-level limits.
func (k *APIKey) LimitsOf() Limits {
	return Limits{
		FiveHour: nullableInt(k.FiveHourLimit),
		Weekly:   nullableInt(k.WeeklyLimit),
		Total:    nullableInt(k.TotalLimit),
	}
}

func nullableInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// KeyModelLimits is a per-(key, model) limit override row.
type KeyModelLimits struct {
	KeyID         string        `db:"key_id" json:"key_id"`
	Model         string        `db:"model" json:"model"`
	FiveHourLimit sql.NullInt64 `db:"five_hour_limit" json:"five_hour_limit,omitempty"`
	WeeklyLimit   sql.NullInt64 `db:"weekly_limit" json:"weekly_limit,omitempty"`
	TotalLimit    sql.NullInt64 `db:"total_limit" json:"total_limit,omitempty"`
}

func (l *KeyModelLimits) LimitsOf() Limits {
	return Limits{
		FiveHour: nullableInt(l.FiveHourLimit),
		Weekly:   nullableInt(l.WeeklyLimit),
		Total:    nullableInt(l.TotalLimit),
	}
}

// Model is a priced upstream model. Prices are microdollars per million
// tokens so cost math stays in integers end to end.
type Model struct {
	ID              string `db:"id" json:"id"`
	SortOrder       int    `db:"sort_order" json:"sort_order"`
	Enabled         bool   `db:"enabled" json:"enabled"`
	InputPrice      int64  `db:"input_price" json:"input_price"`
	OutputPrice     int64  `db:"output_price" json:"output_price"`
	CacheReadPrice  int64  `db:"cache_read_price" json:"cache_read_price"`
	CacheWritePrice int64  `db:"cache_write_price" json:"cache_write_price"`
}

// OAuthCredential is the singleton upstream credential.
type OAuthCredential struct {
	AccessToken  string         `db:"access_token" json:"-"`
	RefreshToken string         `db:"refresh_token" json:"-"`
	ExpiresAt    int64          `db:"expires_at" json:"expires_at"` // epoch ms
	Plan         sql.NullString `db:"plan" json:"plan,omitempty"`
}

// TokenUsage is the 4-type token breakdown for one request.
type TokenUsage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
}

// Add accumulates another report, used when a stream emits usage in
// several events.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// IsZero reports whether nothing was used.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 &&
		u.CacheReadTokens == 0 && u.CacheWriteTokens == 0
}

// UsageCounter is one accumulator row. ModelID is "" for the key-global
// counter. WindowStart is 0 for the total window.
type UsageCounter struct {
	KeyID            string `db:"key_id" json:"key_id"`
	ModelID          string `db:"model_id" json:"model_id"`
	Window           Window `db:"window" json:"window"`
	InputTokens      int64  `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int64  `db:"output_tokens" json:"output_tokens"`
	CacheReadTokens  int64  `db:"cache_read_tokens" json:"cache_read_tokens"`
	CacheWriteTokens int64  `db:"cache_write_tokens" json:"cache_write_tokens"`
	CostMicros       int64  `db:"cost_microdollars" json:"cost_microdollars"`
	WindowStart      int64  `db:"window_start" json:"window_start"` // epoch ms
}

// UsageEvent is an append-only usage-history row.
type UsageEvent struct {
	ID               int64  `db:"id" json:"id"`
	CreatedAt        int64  `db:"created_at" json:"created_at"` // epoch ms
	KeyID            string `db:"key_id" json:"key_id"`
	Model            string `db:"model" json:"model"`
	InputTokens      int64  `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int64  `db:"output_tokens" json:"output_tokens"`
	CacheReadTokens  int64  `db:"cache_read_tokens" json:"cache_read_tokens"`
	CacheWriteTokens int64  `db:"cache_write_tokens" json:"cache_write_tokens"`
	CostMicros       int64  `db:"cost_microdollars" json:"cost_microdollars"`
	RequestCount     int64  `db:"request_count" json:"request_count"`
}

// AdminSession is a persisted admin login session.
type AdminSession struct {
	Token     string `db:"token" json:"-"`
	ExpiresAt int64  `db:"expires_at" json:"expires_at"` // epoch seconds
}

// TimeseriesPoint is one bucket of the usage-history timeseries.
type TimeseriesPoint struct {
	Timestamp        int64 `db:"bucket" json:"timestamp"`
	RequestCount     int64 `db:"request_count" json:"request_count"`
	CostMicros       int64 `db:"cost_microdollars" json:"cost_microdollars"`
	InputTokens      int64 `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int64 `db:"output_tokens" json:"output_tokens"`
	CacheReadTokens  int64 `db:"cache_read_tokens" json:"cache_read_tokens"`
	CacheWriteTokens int64 `db:"cache_write_tokens" json:"cache_write_tokens"`
}

// ModelBreakdown aggregates usage per model over a period.
type ModelBreakdown struct {
	Model            string `db:"model" json:"model"`
	RequestCount     int64  `db:"request_count" json:"request_count"`
	CostMicros       int64  `db:"cost_microdollars" json:"cost_microdollars"`
	InputTokens      int64  `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int64  `db:"output_tokens" json:"output_tokens"`
	CacheReadTokens  int64  `db:"cache_read_tokens" json:"cache_read_tokens"`
	CacheWriteTokens int64  `db:"cache_write_tokens" json:"cache_write_tokens"`
}

// KeyBreakdown aggregates usage per key over a period.
type KeyBreakdown struct {
	KeyID            string         `db:"key_id" json:"key_id"`
	KeyName          sql.NullString `db:"key_name" json:"key_name,omitempty"`
	RequestCount     int64          `db:"request_count" json:"request_count"`
	CostMicros       int64          `db:"cost_microdollars" json:"cost_microdollars"`
	InputTokens      int64          `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int64          `db:"output_tokens" json:"output_tokens"`
	CacheReadTokens  int64          `db:"cache_read_tokens" json:"cache_read_tokens"`
	CacheWriteTokens int64          `db:"cache_write_tokens" json:"cache_write_tokens"`
}
