// Package edge is the EV/Kelly engine: it turns simulated probabilities and
// market odds into expected value, edge, a fractional Kelly stake and a
// tiered recommendation.
package edge

import (
	"fmt"
	"math"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/tiers"
	"github.com/shopspring/decimal"
)

// Config holds the staking settings. Recommendation thresholds live in the
// shared tier table.
type Config struct {
	KellyMultiplier  float64 `koanf:"kelly_multiplier"`
	MaxStakeFraction float64 `koanf:"max_stake_fraction"`
	Bankroll         float64 `koanf:"bankroll"`
}

// DefaultConfig returns quarter Kelly capped at 5% of a 1000 unit bankroll.
func DefaultConfig() Config {
	return Config{
		KellyMultiplier:  0.25,
		MaxStakeFraction: 0.05,
		Bankroll:         1000,
	}
}

// Engine evaluates totals markets. It holds no mutable state.
type Engine struct {
	cfg   Config
	table tiers.Table
}

// New returns an engine using cfg and the shared tier table.
func New(cfg Config, table tiers.Table) *Engine {
	return &Engine{cfg: cfg, table: table}
}

// ValidateOdds rejects missing, non-finite or sub-even decimal odds.
func ValidateOdds(odds float64) error {
	if math.IsNaN(odds) || math.IsInf(odds, 0) || odds <= 1.0 {
		return fmt.Errorf("%w: decimal odds %v must exceed 1.0", ErrInvalidOdds, odds)
	}
	return nil
}

// ImpliedProbability is 1/odds.
func ImpliedProbability(odds float64) float64 {
	return 1 / odds
}

// DeVig removes the bookmaker margin proportionally from both sides.
func DeVig(overOdds, underOdds float64) (fairOver, fairUnder float64) {
	io, iu := ImpliedProbability(overOdds), ImpliedProbability(underOdds)
	s := io + iu
	return io / s, iu / s
}

// EV is the expected profit per unit staked at decimal odds.
func EV(p, odds float64) float64 {
	return p*(odds-1) - (1 - p)
}

// Kelly is the full Kelly fraction clamped to [0, 1].
func Kelly(p, odds float64) float64 {
	b := odds - 1
	if b <= 0 {
		return 0
	}
	return clamp01((b*p - (1 - p)) / b)
}

// Evaluate scores both sides of the market. Invalid odds or probabilities
// yield an invalid NO_BET evaluation with the reason set; no numeric EV is
// reported in that case.
func (e *Engine) Evaluate(pOver, pUnder, overOdds, underOdds float64) model.Evaluation {
	if err := ValidateOdds(overOdds); err != nil {
		return noBet(err.Error())
	}
	if err := ValidateOdds(underOdds); err != nil {
		return noBet(err.Error())
	}
	if err := validateProbabilities(pOver, pUnder); err != nil {
		return noBet(fmt.Sprintf("%s: %v", ReasonInsufficientConfidence, err))
	}

	fairOver, fairUnder := DeVig(overOdds, underOdds)
	ev := model.Evaluation{
		Valid:      true,
		POver:      pOver,
		PUnder:     pUnder,
		EVOver:     EV(pOver, overOdds),
		EVUnder:    EV(pUnder, underOdds),
		EdgeOver:   pOver - fairOver,
		EdgeUnder:  pUnder - fairUnder,
		KellyOver:  Kelly(pOver, overOdds),
		KellyUnder: Kelly(pUnder, underOdds),
		FairOver:   fairOver,
		FairUnder:  fairUnder,
	}

	side, edge, kelly, sideEV := model.SideOver, ev.EdgeOver, ev.KellyOver, ev.EVOver
	if ev.EdgeUnder > ev.EdgeOver {
		side, edge, kelly, sideEV = model.SideUnder, ev.EdgeUnder, ev.KellyUnder, ev.EVUnder
	}

	ev.Recommendation = e.table.Recommend(side, edge)
	switch {
	case ev.Recommendation == model.NoBet:
		ev.Reason = fmt.Sprintf("best edge %.3f below %s threshold", edge, tiers.Lean)
	case sideEV <= 0:
		ev.Reason = fmt.Sprintf("%s: %s edge %.3f but EV %.4f at the offered odds",
			ReasonNonPositiveEV, side, edge, sideEV)
	}
	if ev.Reason != "" {
		ev.Recommendation = model.NoBet
		ev.Stake = decimal.Zero
		return ev
	}

	ev.Selection = side
	ev.StakeFraction = math.Min(kelly*e.cfg.KellyMultiplier, e.cfg.MaxStakeFraction)
	ev.Stake = decimal.NewFromFloat(e.cfg.Bankroll).
		Mul(decimal.NewFromFloat(ev.StakeFraction)).
		Round(2)
	return ev
}

// EvaluateShifted evaluates the market, then moves the selected side's
// probability by shift (learned rule corrections) and evaluates again. The
// shifted result may fall to NO_BET.
func (e *Engine) EvaluateShifted(pOver, pUnder, overOdds, underOdds, shift float64) model.Evaluation {
	ev := e.Evaluate(pOver, pUnder, overOdds, underOdds)
	if shift == 0 || !ev.Valid || ev.Selection == "" {
		return ev
	}
	switch ev.Selection {
	case model.SideOver:
		pOver = clamp01(pOver + shift)
		pUnder = math.Min(pUnder, 1-pOver)
	case model.SideUnder:
		pUnder = clamp01(pUnder + shift)
		pOver = math.Min(pOver, 1-pUnder)
	}
	return e.Evaluate(pOver, pUnder, overOdds, underOdds)
}

// RuleShift sums the adjustments of active rules whose condition holds and
// returns the ids of the rules applied.
func RuleShift(conditions []string, rules []model.LearningRule) (float64, []string) {
	held := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		held[c] = true
	}
	var shift float64
	var applied []string
	for _, r := range rules {
		if r.Active && held[r.Condition] {
			shift += r.Adjustment
			applied = append(applied, r.ID)
		}
	}
	return shift, applied
}

// Grade settles a totals selection against the final total. Profit is
// stake*(odds-1) on a win, -stake on a loss and zero on a push.
func Grade(selection model.Side, line, finalTotal, odds float64, stake decimal.Decimal) (model.Outcome, decimal.Decimal, error) {
	var diff float64
	switch selection {
	case model.SideOver:
		diff = finalTotal - line
	case model.SideUnder:
		diff = line - finalTotal
	default:
		return model.OutcomePending, decimal.Zero, ErrNoSelection
	}
	switch {
	case diff > 0:
		return model.OutcomeWin, stake.Mul(decimal.NewFromFloat(odds - 1)).Round(2), nil
	case diff < 0:
		return model.OutcomeLoss, stake.Neg(), nil
	default:
		return model.OutcomePush, decimal.Zero, nil
	}
}

func validateProbabilities(pOver, pUnder float64) error {
	for _, p := range []float64{pOver, pUnder} {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: %v", ErrInvalidProbability, p)
		}
	}
	if pOver+pUnder > 1+1e-9 {
		return fmt.Errorf("%w: p_over + p_under = %v", ErrInvalidProbability, pOver+pUnder)
	}
	return nil
}

func noBet(reason string) model.Evaluation {
	return model.Evaluation{
		Recommendation: model.NoBet,
		Stake:          decimal.Zero,
		Reason:         reason,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
