package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rollbook/rollbook/internal/types"
)

func TestTier(t *testing.T) {
	thresholds := types.Thresholds{Low: 0.75, Mid: 0.89, High: 0.90}

	tests := []struct {
		name     string
		rate     float64
		expected string
	}{
		{name: "well above high", rate: 0.97, expected: TierHigh},
		{name: "exactly at high is high, not mid", rate: 0.90, expected: TierHigh},
		{name: "just below high", rate: 0.899, expected: TierMid},
		{name: "exactly at low is mid", rate: 0.75, expected: TierMid},
		{name: "below low", rate: 0.65, expected: TierLow},
		{name: "zero rate", rate: 0, expected: TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tier(tt.rate, thresholds))
		})
	}
}

func TestTierCustomThresholds(t *testing.T) {
	loose := types.Thresholds{Low: 0.5, High: 0.8}

	assert.Equal(t, TierHigh, Tier(0.8, loose))
	assert.Equal(t, TierMid, Tier(0.6, loose))
	assert.Equal(t, TierLow, Tier(0.49, loose))
}
