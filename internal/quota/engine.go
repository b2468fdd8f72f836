// Package quota implements cost-based admission and accounting per API key
// over the five-hour, weekly and lifetime windows. All money is integer
// microdollars.
package quota

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
	"github.com/nulzo/claude-gate/internal/upstream"
)

// ResetProvider supplies the cached subscription window resets; the zero
// value falls back to wall-clock anchors.
type ResetProvider func(ctx context.Context) upstream.SubscriptionState

type Engine struct {
	repo   store.Repository
	logger *zap.Logger
	now    func() time.Time
	resets ResetProvider

	// keyLocks serializes accounting per key so admission reads see a
	// consistent counter snapshot.
	keyLocks sync.Map // key id -> *sync.Mutex
}

type Option func(*Engine)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithResetProvider wires the subscription reset cache.
func WithResetProvider(p ResetProvider) Option {
	return func(e *Engine) { e.resets = p }
}

func NewEngine(repo store.Repository, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		resets: func(context.Context) upstream.SubscriptionState { return upstream.SubscriptionState{} },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lock(keyID string) *sync.Mutex {
	mu, _ := e.keyLocks.LoadOrStore(keyID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

var allWindows = []model.Window{model.WindowFiveHour, model.WindowWeekly, model.WindowTotal}

// windowDuration returns the tumbling duration in ms, 0 for total.
func windowDuration(w model.Window) int64 {
	switch w {
	case model.WindowFiveHour:
		return model.FiveHourMS
	case model.WindowWeekly:
		return model.WeeklyMS
	default:
		return 0
	}
}

// windowStart computes the current window anchor (epoch ms). Upstream
// subscription resets win; otherwise the five-hour window starts on the UTC
// hour and the weekly window on Monday 00:00 UTC.
func (e *Engine) windowStart(ctx context.Context, w model.Window, nowMS int64) int64 {
	if w == model.WindowTotal {
		return 0
	}

	state := e.resets(ctx)
	duration := windowDuration(w)

	var resetAt int64
	if w == model.WindowFiveHour {
		resetAt = state.FiveHourResetAt
	} else {
		resetAt = state.SevenDayResetAt
	}
	if resetAt > nowMS && resetAt-duration <= nowMS {
		return resetAt - duration
	}

	t := time.UnixMilli(nowMS).UTC()
	if w == model.WindowFiveHour {
		return t.Truncate(time.Hour).UnixMilli()
	}
	// Monday 00:00 UTC of the current week.
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysSinceMonday)
	return monday.UnixMilli()
}

// expired reports whether a counter's window has lapsed.
func expired(c *model.UsageCounter, nowMS int64) bool {
	d := windowDuration(c.Window)
	return d > 0 && nowMS >= c.WindowStart+d
}

// liveCost reads a counter's cost, treating an expired window as zero and
// lazily rolling it over.
func (e *Engine) liveCost(ctx context.Context, keyID, modelID string, w model.Window, nowMS int64) (int64, int64, error) {
	c, err := e.repo.Usage().GetCounter(ctx, keyID, modelID, w)
	if err != nil {
		return 0, 0, err
	}
	start := e.windowStart(ctx, w, nowMS)
	if c == nil {
		return 0, start, nil
	}
	if expired(c, nowMS) {
		if err := e.repo.Usage().RollWindow(ctx, keyID, modelID, w, start); err != nil {
			return 0, 0, err
		}
		return 0, start, nil
	}
	return c.CostMicros, c.WindowStart, nil
}

// Permit is the pre-flight admission check. It is advisory: cost is only
// known after the response, so a request that would cross a limit
// mid-stream still completes and the excess is recorded.
func (e *Engine) Permit(ctx context.Context, key *model.APIKey, modelID string) error {
	if !key.Enabled {
		return apperr.Unauthorized("API key is disabled")
	}

	allowed, err := e.repo.Keys().AllowedModels(ctx, key.ID)
	if err != nil {
		return apperr.Internal("failed to read model access", err)
	}
	if len(allowed) > 0 {
		found := false
		for _, m := range allowed {
			if m == modelID {
				found = true
				break
			}
		}
		if !found {
			return apperr.ModelForbidden(modelID)
		}
	}

	keyLimits := key.LimitsOf()

	var modelLimits model.Limits
	if override, err := e.repo.Keys().ModelLimits(ctx, key.ID, modelID); err != nil {
		return apperr.Internal("failed to read model limits", err)
	} else if override != nil {
		modelLimits = override.LimitsOf()
	}

	mu := e.lock(key.ID)
	mu.Lock()
	defer mu.Unlock()

	nowMS := e.now().UnixMilli()
	for _, w := range allWindows {
		// Most restrictive wins: the key-wide cap is checked against the
		// key-global counter and the per-model cap against the per-model
		// counter; exceeding either denies.
		if limit := keyLimits.ForWindow(w); limit != nil {
			used, start, err := e.liveCost(ctx, key.ID, "", w, nowMS)
			if err != nil {
				return apperr.Internal("failed to read usage counter", err)
			}
			if used >= *limit {
				return apperr.QuotaExceeded(string(w), *limit, used, resetHint(w, start))
			}
		}
		if limit := modelLimits.ForWindow(w); limit != nil {
			used, start, err := e.liveCost(ctx, key.ID, modelID, w, nowMS)
			if err != nil {
				return apperr.Internal("failed to read usage counter", err)
			}
			if used >= *limit {
				return apperr.QuotaExceeded(string(w), *limit, used, resetHint(w, start))
			}
		}
	}

	return nil
}

func resetHint(w model.Window, windowStart int64) int64 {
	d := windowDuration(w)
	if d == 0 {
		return 0
	}
	return windowStart + d
}

// Cost computes the microdollar cost of a usage report against a price row.
// Prices are microdollars per million tokens; the division happens exactly
// once, truncating.
func Cost(usage model.TokenUsage, prices *model.Model) int64 {
	sum := usage.InputTokens*prices.InputPrice +
		usage.OutputTokens*prices.OutputPrice +
		usage.CacheReadTokens*prices.CacheReadPrice +
		usage.CacheWriteTokens*prices.CacheWritePrice
	return sum / 1_000_000
}

// Record books a completed request: updates the six counters (three windows
// × global and per-model scope), appends a history event and bumps the
// key's last_used_at.
func (e *Engine) Record(ctx context.Context, keyID, modelID string, usage model.TokenUsage) error {
	if usage.IsZero() {
		return nil
	}

	var cost int64
	prices, err := e.repo.Models().Get(ctx, modelID)
	if err != nil {
		e.logger.Warn("model not found in price table, recording cost as 0",
			zap.String("model", modelID))
	} else {
		cost = Cost(usage, prices)
	}

	mu := e.lock(keyID)
	mu.Lock()
	defer mu.Unlock()

	nowMS := e.now().UnixMilli()

	for _, w := range allWindows {
		for _, scope := range []string{"", modelID} {
			start := e.windowStart(ctx, w, nowMS)
			c, err := e.repo.Usage().GetCounter(ctx, keyID, scope, w)
			if err != nil {
				return err
			}
			if c != nil && expired(c, nowMS) {
				if err := e.repo.Usage().RollWindow(ctx, keyID, scope, w, start); err != nil {
					return err
				}
			}
			if err := e.repo.Usage().UpsertCounterDelta(ctx, keyID, scope, w, usage, cost, start); err != nil {
				return err
			}
		}
	}

	ev := &model.UsageEvent{
		CreatedAt:        nowMS,
		KeyID:            keyID,
		Model:            modelID,
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
		CacheReadTokens:  usage.CacheReadTokens,
		CacheWriteTokens: usage.CacheWriteTokens,
		CostMicros:       cost,
		RequestCount:     1,
	}
	if err := e.repo.Usage().AppendEvent(ctx, ev); err != nil {
		return err
	}

	return e.repo.Keys().TouchLastUsed(ctx, keyID, nowMS)
}

// Reset clears windows for a key or a (key, model) pair. Empty windows
// resets all three.
func (e *Engine) Reset(ctx context.Context, keyID, modelID string, windows []model.Window) error {
	mu := e.lock(keyID)
	mu.Lock()
	defer mu.Unlock()
	return e.repo.Usage().ResetCounters(ctx, keyID, modelID, windows, e.now().UnixMilli())
}

// Snapshot returns all counters for a key with expired windows masked to
// zero, for the admin usage view.
func (e *Engine) Snapshot(ctx context.Context, keyID string) ([]model.UsageCounter, error) {
	counters, err := e.repo.Usage().ListCounters(ctx, keyID)
	if err != nil {
		return nil, err
	}
	nowMS := e.now().UnixMilli()
	for i := range counters {
		if expired(&counters[i], nowMS) {
			c := &counters[i]
			c.InputTokens, c.OutputTokens = 0, 0
			c.CacheReadTokens, c.CacheWriteTokens = 0, 0
			c.CostMicros = 0
		}
	}
	return counters, nil
}
