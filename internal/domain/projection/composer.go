// Package projection composes the base efficiency projection, the
// adjustment library output and the bias correction into one Projection.
package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/courtside/internal/domain/model"
)

// NameBiasCorrection labels the bias correction entry in the adjustment list.
const NameBiasCorrection = "bias_correction"

// Sentinel kinds for projection errors.
var (
	ErrInsufficientData = errors.New("insufficient data for projection")
)

// Config holds the composer settings.
type Config struct {
	// BiasCorrection is the default additive correction, recalibrated from
	// settled history.
	BiasCorrection       float64            `koanf:"bias_correction"`
	MinGames             int                `koanf:"min_games"`
	HighVolatilityStdDev float64            `koanf:"high_volatility_std"`
	VolatilityMultiplier float64            `koanf:"volatility_multiplier"`
	DefaultStdDev        float64            `koanf:"default_std_dev"`
	HorizonWeights       map[string]float64 `koanf:"horizon_weights"`
}

// DefaultConfig returns the stock composer settings.
func DefaultConfig() Config {
	return Config{
		BiasCorrection:       4.0,
		MinGames:             10,
		HighVolatilityStdDev: 14.0,
		VolatilityMultiplier: 1.2,
		DefaultStdDev:        12.0,
		HorizonWeights: map[string]float64{
			string(model.HorizonSeason): 0.40,
			string(model.HorizonLast15): 0.25,
			string(model.HorizonLast10): 0.20,
			string(model.HorizonLast5):  0.15,
		},
	}
}

// Side is one competitor's blended efficiency.
type Side struct {
	TeamID       string
	Blend        model.Aggregate
	Games        int
	RecentStdDev float64
}

// BaseInputs are the efficiency inputs for both sides.
type BaseInputs struct {
	Home Side
	Away Side
}

// Composer builds projections. It holds no mutable state.
type Composer struct {
	cfg Config
}

// New returns a composer for cfg.
func New(cfg Config) *Composer {
	return &Composer{cfg: cfg}
}

// DefaultBias is the configured bias correction.
func (c *Composer) DefaultBias() float64 { return c.cfg.BiasCorrection }

// Inputs blends each snapshot's horizons into BaseInputs.
func (c *Composer) Inputs(home, away model.TeamSnapshot) (BaseInputs, error) {
	h, err := c.side(home)
	if err != nil {
		return BaseInputs{}, err
	}
	a, err := c.side(away)
	if err != nil {
		return BaseInputs{}, err
	}
	return BaseInputs{Home: h, Away: a}, nil
}

func (c *Composer) side(t model.TeamSnapshot) (Side, error) {
	var blend model.Aggregate
	var wsum float64
	recent := -1.0
	for _, h := range model.Horizons {
		a, ok := t.Horizon(h)
		if !ok || a.Validate() != nil {
			continue
		}
		w := c.cfg.HorizonWeights[string(h)]
		if w > 0 {
			blend.OffRating += w * a.OffRating
			blend.DefRating += w * a.DefRating
			blend.Pace += w * a.Pace
			blend.ScoringStdDev += w * a.ScoringStdDev
			wsum += w
		}
		// Horizons run longest to shortest, so the last usable one is the most recent.
		if a.ScoringStdDev > 0 {
			recent = a.ScoringStdDev
		}
	}
	if wsum == 0 {
		return Side{}, fmt.Errorf("%w: team %s has no usable horizon", ErrInsufficientData, t.TeamID)
	}
	blend.OffRating /= wsum
	blend.DefRating /= wsum
	blend.Pace /= wsum
	blend.ScoringStdDev /= wsum
	blend.Games = t.Games()
	if recent < 0 {
		recent = blend.ScoringStdDev
	}
	return Side{TeamID: t.TeamID, Blend: blend, Games: blend.Games, RecentStdDev: recent}, nil
}

// BaseTotal returns the efficiency-implied total and per-side points:
// possessions are the mean pace and each side scores the mean of its
// offense and the opponent's defense per 100 possessions.
func BaseTotal(in BaseInputs) (total, home, away float64) {
	pace := (in.Home.Blend.Pace + in.Away.Blend.Pace) / 2
	home = pace * (in.Home.Blend.OffRating + in.Away.Blend.DefRating) / 2 / 100
	away = pace * (in.Away.Blend.OffRating + in.Home.Blend.DefRating) / 2 / 100
	return home + away, home, away
}

// Classify returns the volatility class for a recent scoring std dev.
func (c *Composer) Classify(recentStdDev float64) model.Volatility {
	if recentStdDev >= c.cfg.HighVolatilityStdDev {
		return model.VolatilityHigh
	}
	return model.VolatilityNormal
}

// Compose sums the base projection, the adjustments and bias. The bias is
// appended to the adjustment list so FinalTotal == BaseTotal + sum(values)
// always holds. Too few games set LowConfidence; it is not an error.
func (c *Composer) Compose(in BaseInputs, adjustments []model.Adjustment, bias float64) (model.Projection, error) {
	base, homeBase, awayBase := BaseTotal(in)
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		return model.Projection{}, fmt.Errorf("%w: base total %v", ErrInsufficientData, base)
	}

	adjs := make([]model.Adjustment, 0, len(adjustments)+1)
	for _, a := range adjustments {
		if math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
			a.Value = 0
			a.InsufficientData = true
		}
		adjs = append(adjs, a)
	}
	if bias != 0 {
		adjs = append(adjs, model.Adjustment{
			Name:      NameBiasCorrection,
			Value:     bias,
			Rationale: fmt.Sprintf("calibrated bias correction %+.1f", bias),
		})
	}
	sum := model.SumAdjustments(adjs)

	p := model.Projection{
		BaseTotal:      base,
		Adjustments:    adjs,
		FinalTotal:     base + sum,
		HomeMean:       homeBase + sum*homeBase/base,
		AwayMean:       awayBase + sum*awayBase/base,
		HomeVolatility: c.Classify(in.Home.RecentStdDev),
		AwayVolatility: c.Classify(in.Away.RecentStdDev),
	}
	p.HomeStdDev = c.stdDev(in.Home, p.HomeVolatility)
	p.AwayStdDev = c.stdDev(in.Away, p.AwayVolatility)

	if in.Home.Games < c.cfg.MinGames || in.Away.Games < c.cfg.MinGames {
		p.LowConfidence = true
		p.LowConfidenceReason = fmt.Sprintf("games played %d/%d below minimum %d",
			in.Home.Games, in.Away.Games, c.cfg.MinGames)
	}
	return p, nil
}

func (c *Composer) stdDev(s Side, v model.Volatility) float64 {
	sd := s.Blend.ScoringStdDev
	if sd <= 0 {
		sd = c.cfg.DefaultStdDev
	}
	if v == model.VolatilityHigh {
		sd *= c.cfg.VolatilityMultiplier
	}
	return sd
}
