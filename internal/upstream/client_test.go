package upstream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetaHeader(t *testing.T) {
	assert.Equal(t, OAuthBetaHeader, BetaHeader(nil))
	assert.Equal(t, OAuthBetaHeader, BetaHeader([]string{}))

	merged := BetaHeader([]string{"my-beta-2026"})
	assert.True(t, strings.HasPrefix(merged, OAuthBetaHeader))
	assert.Contains(t, merged, ",my-beta-2026")

	// Duplicates of the base set are not appended.
	assert.Equal(t, OAuthBetaHeader, BetaHeader([]string{"oauth-2025-04-20"}))

	// Repeated extras collapse.
	merged = BetaHeader([]string{"x", "x", " x "})
	assert.Equal(t, 1, strings.Count(merged, ",x"))
}

func TestExtractState(t *testing.T) {
	reset := "2026-08-05T17:00:00Z"
	util := 42.5
	usage := &SubscriptionUsage{
		FiveHour: &UsageLimit{Utilization: &util, ResetsAt: &reset},
	}

	state := ExtractState(usage)
	assert.Equal(t, int64(1785949200000), state.FiveHourResetAt)
	assert.Equal(t, 42.5, state.FiveHourUtilization)
	assert.Zero(t, state.SevenDayResetAt)

	empty := ExtractState(&SubscriptionUsage{})
	assert.Zero(t, empty.FiveHourResetAt)
}
