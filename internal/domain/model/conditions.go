package model

// Condition tags attached to a Decision. Rule synthesis groups settled
// decisions by these predicates.
const (
	CondHomeB2B         = "home_b2b"
	CondAwayB2B         = "away_b2b"
	CondBothB2B         = "both_b2b"
	CondBothRested      = "both_rested"
	CondScheduleFatigue = "schedule_fatigue"
	CondH2HApplied      = "h2h_applied"
	CondTrendStrong     = "trend_strong"
	CondTrendMild       = "trend_mild"
	CondHighVolatility  = "high_volatility"
	CondNarrative       = "narrative"
	CondLowConfidence   = "low_confidence"
	CondSideOver        = "side_over"
	CondSideUnder       = "side_under"
	CondTierStrong      = "tier_strong"
	CondTierLean        = "tier_lean"
)
