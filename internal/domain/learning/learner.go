// Package learning turns settled decision history into correction rules,
// post-mortems and calibration reports.
package learning

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/courtside/internal/domain/model"
)

// divergenceTolerance absorbs float error when a divergence sits exactly on
// the configured minimum.
const divergenceTolerance = 1e-9

// Config holds the learning settings.
type Config struct {
	MinSamples    int     `koanf:"min_samples"`
	MinDivergence float64 `koanf:"min_divergence"`
	MaxAdjustment float64 `koanf:"max_adjustment"`

	// Post-mortem bands, in points of total.
	VarianceBand   float64 `koanf:"variance_band"`
	MediumMiss     float64 `koanf:"medium_miss"`
	HighMiss       float64 `koanf:"high_miss"`
	OvertimeBump   float64 `koanf:"overtime_bump"`
	MinBiasSamples int     `koanf:"min_bias_samples"`
}

// DefaultConfig returns the stock learning settings.
func DefaultConfig() Config {
	return Config{
		MinSamples:     20,
		MinDivergence:  0.10,
		MaxAdjustment:  0.10,
		VarianceBand:   8,
		MediumMiss:     8,
		HighMiss:       15,
		OvertimeBump:   12,
		MinBiasSamples: 30,
	}
}

// Learner is stateless apart from its clock.
type Learner struct {
	cfg Config
	now func() time.Time
}

// Option configures a Learner.
type Option func(*Learner)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a learner for cfg.
func New(cfg Config, opts ...Option) *Learner {
	l := &Learner{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type conditionStats struct {
	n       int
	wins    int
	sumConf float64
}

// Synthesize groups settled bets by condition and compares the realized win
// rate with the mean confidence the model claimed. A rule is created or
// refreshed only when both the sample size and the divergence reach their
// minimums; an active rule whose condition no longer qualifies is
// deactivated. Only changed rules are returned, ordered by condition.
func (l *Learner) Synthesize(decisions []model.Decision, existing []model.LearningRule) []model.LearningRule {
	stats := make(map[string]*conditionStats)
	for _, d := range decisions {
		if !d.IsBet() || (d.Outcome != model.OutcomeWin && d.Outcome != model.OutcomeLoss) {
			continue
		}
		for _, c := range d.Conditions {
			st, ok := stats[c]
			if !ok {
				st = &conditionStats{}
				stats[c] = st
			}
			st.n++
			st.sumConf += d.Confidence / 100
			if d.Outcome == model.OutcomeWin {
				st.wins++
			}
		}
	}

	byCondition := make(map[string]model.LearningRule, len(existing))
	for _, r := range existing {
		byCondition[r.Condition] = r
	}

	conds := make([]string, 0, len(stats)+len(byCondition))
	for c := range stats {
		conds = append(conds, c)
	}
	for c := range byCondition {
		if _, ok := stats[c]; !ok {
			conds = append(conds, c)
		}
	}
	sort.Strings(conds)

	now := l.now()
	var changed []model.LearningRule
	for _, c := range conds {
		rule, had := byCondition[c]
		st := stats[c]
		if st == nil {
			st = &conditionStats{}
		}

		var realized, assumed float64
		if st.n > 0 {
			realized = float64(st.wins) / float64(st.n)
			assumed = st.sumConf / float64(st.n)
		}
		div := realized - assumed
		qualifies := st.n >= l.cfg.MinSamples && math.Abs(div) >= l.cfg.MinDivergence-divergenceTolerance

		switch {
		case qualifies:
			if !had {
				rule = model.LearningRule{ID: uuid.NewString(), Condition: c}
			}
			rule.Active = true
			rule.Adjustment = math.Max(-l.cfg.MaxAdjustment, math.Min(l.cfg.MaxAdjustment, div))
			rule.SampleSize = st.n
			rule.RealizedWinRate = realized
			rule.AssumedWinRate = assumed
			rule.Evidence = fmt.Sprintf("%s: won %d of %d (%.1f%%) against %.1f%% assumed",
				c, st.wins, st.n, realized*100, assumed*100)
			rule.UpdatedAt = now
			changed = append(changed, rule)
		case had && rule.Active:
			rule.Active = false
			rule.SampleSize = st.n
			rule.RealizedWinRate = realized
			rule.AssumedWinRate = assumed
			rule.Evidence = fmt.Sprintf("%s: divergence %.1f%% over %d no longer qualifies",
				c, div*100, st.n)
			rule.UpdatedAt = now
			changed = append(changed, rule)
		}
	}
	return changed
}
