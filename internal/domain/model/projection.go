package model

import "github.com/shopspring/decimal"

// Adjustment is one signed point contribution to a projected total.
type Adjustment struct {
	Name             string  `json:"name"`
	Value            float64 `json:"value"`
	Rationale        string  `json:"rationale"`
	InsufficientData bool    `json:"insufficient_data,omitempty"`
}

// SumAdjustments returns the total signed value of adjs.
func SumAdjustments(adjs []Adjustment) float64 {
	var s float64
	for _, a := range adjs {
		s += a.Value
	}
	return s
}

// Volatility classifies a side's recent scoring spread.
type Volatility string

const (
	VolatilityNormal Volatility = "normal"
	VolatilityHigh   Volatility = "high"
)

// Projection is the composed point estimate for a game total.
type Projection struct {
	BaseTotal      float64      `json:"base_total"`
	Adjustments    []Adjustment `json:"adjustments"`
	FinalTotal     float64      `json:"final_total"`
	HomeMean       float64      `json:"home_mean"`
	AwayMean       float64      `json:"away_mean"`
	HomeStdDev     float64      `json:"home_std_dev"`
	AwayStdDev     float64      `json:"away_std_dev"`
	HomeVolatility Volatility   `json:"home_volatility"`
	AwayVolatility Volatility   `json:"away_volatility"`

	LowConfidence       bool   `json:"low_confidence"`
	LowConfidenceReason string `json:"low_confidence_reason,omitempty"`
}

// SimulationResult summarises a Monte Carlo run over the game total.
type SimulationResult struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	P5     float64 `json:"p5"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	POver  float64 `json:"p_over"`
	PUnder float64 `json:"p_under"`
	PPush  float64 `json:"p_push"`
	NSims  int     `json:"n_sims"`
	Seed   uint64  `json:"seed"`
}

// Side is the selection on a totals market.
type Side string

const (
	SideOver  Side = "OVER"
	SideUnder Side = "UNDER"
)

// Recommendation is the categorical output consumers branch on.
type Recommendation string

const (
	StrongOver  Recommendation = "STRONG_OVER"
	LeanOver    Recommendation = "LEAN_OVER"
	StrongUnder Recommendation = "STRONG_UNDER"
	LeanUnder   Recommendation = "LEAN_UNDER"
	NoBet       Recommendation = "NO_BET"
)

// Side returns the side a recommendation backs, or "" for NO_BET.
func (r Recommendation) Side() Side {
	switch r {
	case StrongOver, LeanOver:
		return SideOver
	case StrongUnder, LeanUnder:
		return SideUnder
	}
	return ""
}

// Evaluation is the EV/Kelly engine output for one market.
type Evaluation struct {
	Valid bool `json:"valid"`

	// POver and PUnder are the probabilities evaluated, after any shift.
	POver  float64 `json:"p_over"`
	PUnder float64 `json:"p_under"`

	EVOver     float64 `json:"ev_over"`
	EVUnder    float64 `json:"ev_under"`
	EdgeOver   float64 `json:"edge_over"`
	EdgeUnder  float64 `json:"edge_under"`
	KellyOver  float64 `json:"kelly_over"`
	KellyUnder float64 `json:"kelly_under"`

	FairOver  float64 `json:"fair_over"`
	FairUnder float64 `json:"fair_under"`

	Recommendation Recommendation  `json:"recommendation"`
	Selection      Side            `json:"selection,omitempty"`
	StakeFraction  float64         `json:"stake_fraction"`
	Stake          decimal.Decimal `json:"stake"`
	Reason         string          `json:"reason,omitempty"`
}
