package walkforward

import (
	"context"
	"fmt"

	"github.com/okian/courtside/internal/domain/tiers"
	"github.com/okian/courtside/pkg/logger"
)

// Config holds the validator settings.
type Config struct {
	StartTestSeason int     `koanf:"start_test_season"`
	MinTrainSeasons int     `koanf:"min_train_seasons"`
	TrailingWindow  int     `koanf:"trailing_window"` // 0 is an expanding window
	FixedOdds       float64 `koanf:"fixed_odds"`
	CalibrationBins int     `koanf:"calibration_bins"`
	MinSweepBets    int     `koanf:"min_sweep_bets"`
	L2              float64 `koanf:"l2"`
}

// DefaultConfig returns the stock validator settings.
func DefaultConfig() Config {
	return Config{
		MinTrainSeasons: 2,
		FixedOdds:       1.91,
		CalibrationBins: 10,
		MinSweepBets:    30,
		L2:              1.0,
	}
}

// Report is the validator output: per-season metrics, pooled metrics over
// every test prediction and the confidence sweep.
type Report struct {
	Seasons   []Metrics  `json:"seasons"`
	Aggregate Metrics    `json:"aggregate"`
	Sweep     []SweepRow `json:"sweep"`
	Best      *SweepRow  `json:"best,omitempty"`
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the validator logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// Validator runs walk-forward validation.
type Validator struct {
	cfg    Config
	table  tiers.Table
	logger logger.Logger
}

// New returns a validator sweeping the thresholds of table.
func New(cfg Config, table tiers.Table, opts ...Option) *Validator {
	v := &Validator{
		cfg:    cfg,
		table:  table,
		logger: logger.Get().Named("walkforward"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run fits a fresh model per split and scores its test season. A
// look-ahead violation aborts the run.
func (v *Validator) Run(ctx context.Context, rows []Row, newModel func() Model) (Report, error) {
	splits, err := Splits(v.cfg, rows)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	var allProbs, allLabels []float64
	for _, s := range splits {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		// Splits are checked on creation; re-check what the model will see.
		if err := CheckSplit(s); err != nil {
			return Report{}, err
		}

		m := newModel()
		if err := m.Fit(ctx, s.Train); err != nil {
			return Report{}, fmt.Errorf("split %d fit: %w", s.ID, err)
		}
		probs, err := m.Predict(ctx, s.Test)
		if err != nil {
			return Report{}, fmt.Errorf("split %d predict: %w", s.ID, err)
		}
		if len(probs) != len(s.Test) {
			return Report{}, fmt.Errorf("%w: split %d got %d for %d rows", ErrPredictionCount, s.ID, len(probs), len(s.Test))
		}

		labels := labelsOf(s.Test)
		met := Evaluate(probs, labels, 0, v.cfg.FixedOdds, v.cfg.CalibrationBins)
		met.Season = s.TestSeason
		met.TrainSeasons = s.TrainSeasons
		met.TrainRows = len(s.Train)
		rep.Seasons = append(rep.Seasons, met)

		v.logger.Info(ctx, "walk-forward split scored",
			logger.Int("season", s.TestSeason),
			logger.Int("trainRows", len(s.Train)),
			logger.Int("testRows", len(s.Test)),
			logger.Float64("accuracy", met.Accuracy),
			logger.Float64("roi", met.ROI),
			logger.Float64("brier", met.Brier),
		)

		allProbs = append(allProbs, probs...)
		allLabels = append(allLabels, labels...)
	}

	rep.Aggregate = Evaluate(allProbs, allLabels, 0, v.cfg.FixedOdds, v.cfg.CalibrationBins)
	perSeason := float64(len(allProbs)) / float64(len(splits))
	pooled, _ := BetReturns(allProbs, allLabels, 0, v.cfg.FixedOdds)
	rep.Aggregate.Sharpe = Sharpe(pooled, perSeason*float64(len(pooled))/float64(len(allProbs)))
	rep.Sweep = Sweep(allProbs, allLabels, v.table.SweepPoints(), v.cfg.FixedOdds, v.cfg.MinSweepBets, perSeason)
	if best, ok := Best(rep.Sweep); ok {
		rep.Best = &best
	}
	return rep, nil
}

func labelsOf(rows []Row) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Label
	}
	return out
}
