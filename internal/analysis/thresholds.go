package analysis

import "github.com/rollbook/rollbook/internal/types"

// Tier names for rate classification.
const (
	TierHigh = "high"
	TierMid  = "mid"
	TierLow  = "low"
)

// Tier classifies a rate against the legend cut points. The High bound is
// inclusive: a rate exactly at High is "high". The Mid cut point is advisory
// display-only and does not participate.
func Tier(rate float64, t types.Thresholds) string {
	switch {
	case rate >= t.High:
		return TierHigh
	case rate >= t.Low:
		return TierMid
	default:
		return TierLow
	}
}
