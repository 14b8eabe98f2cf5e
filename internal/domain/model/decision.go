package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the settlement state of a Decision.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomePush    Outcome = "PUSH"
)

// IsTerminal reports whether o is a settled state.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeWin || o == OutcomeLoss || o == OutcomePush
}

// Decision is the published record of one analysed game.
type Decision struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	BetType        string          `json:"bet_type"`
	Selection      Side            `json:"selection,omitempty"`
	Line           float64         `json:"line"`
	Odds           float64         `json:"odds"`
	Confidence     float64         `json:"confidence"` // model probability of the selection, percent
	PredictedEdge  float64         `json:"predicted_edge"`
	Recommendation Recommendation  `json:"recommendation"`
	Stake          decimal.Decimal `json:"stake"`
	Reason         string          `json:"reason,omitempty"`

	POver          float64      `json:"p_over"`
	PUnder         float64      `json:"p_under"`
	SimulatedMean  float64      `json:"simulated_mean"`
	ProjectedTotal float64      `json:"projected_total"`
	EVOver         float64      `json:"ev_over"`
	EVUnder        float64      `json:"ev_under"`
	KellyFraction  float64      `json:"kelly_fraction"`
	Reasoning      []Adjustment `json:"reasoning"`
	Conditions     []string     `json:"conditions"`

	CreatedAt  time.Time       `json:"created_at"`
	Outcome    Outcome         `json:"outcome"`
	Profit     decimal.Decimal `json:"profit"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
	FinalTotal *float64        `json:"final_total,omitempty"`
}

// HasCondition reports whether the decision was made under cond.
func (d Decision) HasCondition(cond string) bool {
	for _, c := range d.Conditions {
		if c == cond {
			return true
		}
	}
	return false
}

// IsBet reports whether the decision backs a side.
func (d Decision) IsBet() bool {
	return d.Selection != ""
}

// Settlement is the terminal data applied to a pending Decision.
type Settlement struct {
	Outcome    Outcome         `json:"outcome"`
	Profit     decimal.Decimal `json:"profit"`
	FinalTotal *float64        `json:"final_total,omitempty"`
	SettledAt  time.Time       `json:"settled_at"`
}

// CalibrationBucket aggregates settled decisions by rounded confidence.
// Wins + Losses + Pushes == Total.
type CalibrationBucket struct {
	Bucket int `json:"bucket"`
	Total  int `json:"total"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Pushes int `json:"pushes"`
}

// Apply counts one settled outcome into the bucket.
func (b *CalibrationBucket) Apply(o Outcome) {
	b.Total++
	switch o {
	case OutcomeWin:
		b.Wins++
	case OutcomeLoss:
		b.Losses++
	case OutcomePush:
		b.Pushes++
	}
}

// WinRate is wins over decided (non-push) outcomes.
func (b CalibrationBucket) WinRate() float64 {
	if b.Wins+b.Losses == 0 {
		return 0
	}
	return float64(b.Wins) / float64(b.Wins+b.Losses)
}

// BiasCalibration is an applied bias correction. The latest one is the
// bias projections start from after a restart.
type BiasCalibration struct {
	Bias         float64   `json:"bias"`
	Samples      int       `json:"samples"`
	MeanResidual float64   `json:"mean_residual"`
	AppliedAt    time.Time `json:"applied_at"`
}

// LearningRule is a correction learned from settled history.
type LearningRule struct {
	ID              string    `json:"id"`
	Condition       string    `json:"condition"`
	Adjustment      float64   `json:"adjustment"` // signed probability shift
	Evidence        string    `json:"evidence"`
	Active          bool      `json:"active"`
	SampleSize      int       `json:"sample_size"`
	RealizedWinRate float64   `json:"realized_win_rate"`
	AssumedWinRate  float64   `json:"assumed_win_rate"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RootCause categorises why a decision lost.
type RootCause string

const (
	CauseVariance        RootCause = "VARIANCE"
	CauseProjectionMiss  RootCause = "PROJECTION_MISS"
	CauseAdjustmentError RootCause = "ADJUSTMENT_ERROR"
	CauseOvertime        RootCause = "OVERTIME"
	CauseUnknown         RootCause = "UNKNOWN"
)

// Severity tags how far a loss was from the model's expectation.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// PostMortem is advisory analysis of a lost decision.
type PostMortem struct {
	DecisionID string    `json:"decision_id"`
	Cause      RootCause `json:"cause"`
	Severity   Severity  `json:"severity"`
	Miss       float64   `json:"miss"` // final total minus projected total
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}
