package upstream

import (
	"context"
	"net/http"
	"time"
)

// SubscriptionState caches the subscription window reset times (epoch ms)
// reported by Anthropic. The quota engine prefers these anchors over
// wall-clock boundaries.
type SubscriptionState struct {
	FiveHourResetAt int64 `json:"five_hour_reset_at"`
	SevenDayResetAt int64 `json:"seven_day_reset_at"`

	// Utilization percentages (0–100+), for the admin dashboard.
	FiveHourUtilization float64 `json:"five_hour_utilization"`
	SevenDayUtilization float64 `json:"seven_day_utilization"`
}

// UsageLimit is one window in the subscription usage reply.
type UsageLimit struct {
	Utilization *float64 `json:"utilization"`
	ResetsAt    *string  `json:"resets_at"`
}

// SubscriptionUsage is the Anthropic OAuth usage endpoint payload.
type SubscriptionUsage struct {
	FiveHour        *UsageLimit `json:"five_hour"`
	SevenDay        *UsageLimit `json:"seven_day"`
	SevenDayOpus    *UsageLimit `json:"seven_day_opus"`
	SevenDaySonnet  *UsageLimit `json:"seven_day_sonnet"`
	ExtraUsage      interface{} `json:"extra_usage,omitempty"`
}

// FetchSubscription retrieves the subscription usage payload.
func (c *Client) FetchSubscription(ctx context.Context, token string) (*SubscriptionUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var usage SubscriptionUsage
	err := SendJSON(ctx, c.http, http.MethodGet, c.usageURL, map[string]string{
		"authorization":     "Bearer " + token,
		"anthropic-version": Version,
		"anthropic-beta":    OAuthBetaHeader,
		"user-agent":        UserAgent,
		"accept":            "application/json",
	}, nil, &usage)
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// ExtractState parses the usage payload into cached window-reset state.
func ExtractState(usage *SubscriptionUsage) SubscriptionState {
	parseReset := func(l *UsageLimit) int64 {
		if l == nil || l.ResetsAt == nil {
			return 0
		}
		t, err := time.Parse(time.RFC3339, *l.ResetsAt)
		if err != nil {
			return 0
		}
		return t.UnixMilli()
	}
	utilization := func(l *UsageLimit) float64 {
		if l == nil || l.Utilization == nil {
			return 0
		}
		return *l.Utilization
	}

	return SubscriptionState{
		FiveHourResetAt:     parseReset(usage.FiveHour),
		SevenDayResetAt:     parseReset(usage.SevenDay),
		FiveHourUtilization: utilization(usage.FiveHour),
		SevenDayUtilization: utilization(usage.SevenDay),
	}
}

// profileResponse is the slice of the profile payload we care about.
type profileResponse struct {
	Account struct {
		HasClaudeMax bool `json:"has_claude_max"`
		HasClaudePro bool `json:"has_claude_pro"`
	} `json:"account"`
}

// FetchPlan detects the subscription plan name. Best effort: returns ""
// on any error.
func (c *Client) FetchPlan(ctx context.Context, token string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var profile profileResponse
	err := SendJSON(ctx, c.http, http.MethodGet, c.profileURL, map[string]string{
		"authorization": "Bearer " + token,
		"content-type":  "application/json",
	}, nil, &profile)
	if err != nil {
		return ""
	}
	if profile.Account.HasClaudeMax {
		return "Max"
	}
	if profile.Account.HasClaudePro {
		return "Pro"
	}
	return ""
}
