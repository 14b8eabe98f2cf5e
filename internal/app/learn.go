package service

import (
	"context"
	"fmt"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/learning"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/walkforward"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// SynthesizeRules refreshes learned rules from settled bets and stores the
// ones that changed.
func (s *Service) SynthesizeRules(ctx context.Context) ([]model.LearningRule, error) {
	settled, err := s.store.List(ctx, repository.Filter{BetsOnly: true, Settled: true})
	if err != nil {
		return nil, fmt.Errorf("list settled: %w", err)
	}
	existing, err := s.store.Rules(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	changed := s.learner.Synthesize(settled, existing)
	for _, r := range changed {
		if err := s.store.UpsertRule(ctx, r); err != nil {
			return nil, fmt.Errorf("upsert rule %s: %w", r.Condition, err)
		}
		metrics.RecordRuleChange()
		s.logger.Info(ctx, "learning rule updated",
			logger.String("condition", r.Condition),
			logger.Bool("active", r.Active),
			logger.Float64("adjustment", r.Adjustment),
			logger.Int("samples", r.SampleSize),
		)
	}

	active, err := s.store.Rules(ctx, true)
	if err == nil {
		metrics.UpdateRulesActive(len(active))
	}
	return changed, nil
}

// Calibrate builds the calibration report. With apply set, a changed
// suggestion is persisted and then replaces the current bias.
func (s *Service) Calibrate(ctx context.Context, apply bool) (learning.Report, error) {
	s.restoreBias(ctx)

	buckets, err := s.store.Buckets(ctx)
	if err != nil {
		return learning.Report{}, fmt.Errorf("buckets: %w", err)
	}
	settled, err := s.store.List(ctx, repository.Filter{Settled: true})
	if err != nil {
		return learning.Report{}, fmt.Errorf("list settled: %w", err)
	}

	rep := s.learner.Calibrate(buckets, settled, s.Bias())
	if apply && rep.SuggestedBias != rep.CurrentBias {
		c := model.BiasCalibration{
			Bias:         rep.SuggestedBias,
			Samples:      rep.BiasSamples,
			MeanResidual: rep.MeanResidual,
			AppliedAt:    s.now().UTC(),
		}
		if err := s.store.SaveCalibration(ctx, c); err != nil {
			return rep, fmt.Errorf("save calibration: %w", err)
		}
		s.SetBias(ctx, rep.SuggestedBias)
	}
	return rep, nil
}

// Validate runs walk-forward validation over rows with the logistic model.
func (s *Service) Validate(ctx context.Context, rows []walkforward.Row) (walkforward.Report, error) {
	l2 := s.cfg.Validation.L2
	return s.validator.Run(ctx, rows, func() walkforward.Model {
		return walkforward.NewLogisticModel(l2)
	})
}
