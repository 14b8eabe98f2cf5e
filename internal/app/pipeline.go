package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/courtside/internal/adapters/snapshot"
	"github.com/okian/courtside/internal/domain/adjust"
	"github.com/okian/courtside/internal/domain/edge"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/projection"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
	"github.com/shopspring/decimal"
)

// BetType is the only market the pipeline evaluates.
const BetType = "total"

// Analyze resolves the job's input and runs the pipeline. It fails only
// when the game itself cannot be read. Unreadable snapshots and model
// failures become NO_BET decisions.
func (s *Service) Analyze(ctx context.Context, job model.AnalysisJob) (model.Decision, error) {
	return s.analyzeFrom(ctx, s.source, job)
}

func (s *Service) analyzeFrom(ctx context.Context, src snapshot.Source, job model.AnalysisJob) (model.Decision, error) {
	if job.Input != nil {
		return s.AnalyzeInput(ctx, *job.Input), nil
	}
	if src == nil {
		return model.Decision{}, ErrNoSource
	}
	g, err := src.Game(ctx, job.GameID)
	if err != nil {
		return model.Decision{}, fmt.Errorf("load game %s: %w", job.GameID, err)
	}
	in, err := snapshot.InputFor(ctx, src, g)
	if err != nil {
		metrics.RecordErrorByComponent("snapshot", "read_error")
		return s.noBet(ctx, s.newDecision(g), fmt.Errorf("snapshot for game %s: %w", g.ID, err)), nil
	}
	return s.AnalyzeInput(ctx, in), nil
}

// newDecision is the PENDING NO_BET every analysis starts from.
func (s *Service) newDecision(g model.Game) model.Decision {
	return model.Decision{
		ID:             uuid.NewString(),
		EventID:        g.ID,
		BetType:        BetType,
		Line:           g.Market.Line,
		Recommendation: model.NoBet,
		Stake:          decimal.Zero,
		Profit:         decimal.Zero,
		CreatedAt:      s.now().UTC(),
		Outcome:        model.OutcomePending,
	}
}

// AnalyzeInput runs adjustments, composition, simulation and evaluation for
// one game. It always returns a Decision.
func (s *Service) AnalyzeInput(ctx context.Context, in model.GameInput) model.Decision {
	start := time.Now()
	defer func() {
		metrics.RecordAnalysisLatency(float64(time.Since(start).Milliseconds()))
	}()

	g := in.Game
	d := s.newDecision(g)

	if err := validateInput(in); err != nil {
		return s.noBet(ctx, d, err)
	}

	inputs, err := s.composer.Inputs(in.Home, in.Away)
	if err != nil {
		return s.noBet(ctx, d, err)
	}
	base, _, _ := projection.BaseTotal(inputs)

	res := s.library.Apply(adjust.Context{Input: in, BaseTotal: base})
	for _, name := range res.Insufficient {
		metrics.RecordInsufficientData(name)
		s.logger.Debug(ctx, "adjustment degraded",
			logger.String("gameID", g.ID),
			logger.String("adjustment", name),
			logger.Error(res.Details[name].Err),
		)
	}

	proj, err := s.composer.Compose(inputs, res.Adjustments, s.Bias())
	if err != nil {
		return s.noBet(ctx, d, err)
	}
	d.ProjectedTotal = proj.FinalTotal
	d.Reasoning = proj.Adjustments
	conditions := append([]string(nil), res.Conditions...)
	if proj.HomeVolatility == model.VolatilityHigh || proj.AwayVolatility == model.VolatilityHigh {
		conditions = append(conditions, model.CondHighVolatility)
	}
	if proj.LowConfidence {
		metrics.RecordLowConfidence()
		conditions = append(conditions, model.CondLowConfidence)
		s.logger.Warn(ctx, "low confidence projection",
			logger.String("gameID", g.ID),
			logger.String("reason", proj.LowConfidenceReason),
		)
	}

	simStart := time.Now()
	sim, err := s.simulator.Run(s.simulator.ParamsFor(proj, g.Market.Line, g.ID))
	metrics.RecordSimulationLatency(float64(time.Since(simStart).Milliseconds()))
	if err != nil {
		d.Conditions = conditions
		return s.noBet(ctx, d, err)
	}
	d.POver, d.PUnder, d.SimulatedMean = sim.POver, sim.PUnder, sim.Mean

	first := s.engine.Evaluate(sim.POver, sim.PUnder, g.Market.OverOdds, g.Market.UnderOdds)
	rules, err := s.store.Rules(ctx, true)
	if err != nil {
		s.logger.Warn(ctx, "rules unavailable, evaluating without corrections", logger.Error(err))
	}
	shift, applied := edge.RuleShift(append(conditions, evaluationConditions(first)...), rules)
	ev := first
	if shift != 0 {
		ev = s.engine.EvaluateShifted(sim.POver, sim.PUnder, g.Market.OverOdds, g.Market.UnderOdds, shift)
		s.logger.Debug(ctx, "learned corrections applied",
			logger.String("gameID", g.ID),
			logger.Float64("shift", shift),
			logger.Any("rules", applied),
		)
	}

	d.Conditions = append(conditions, evaluationConditions(ev)...)
	d.EVOver, d.EVUnder = ev.EVOver, ev.EVUnder
	d.Recommendation = ev.Recommendation
	d.Stake = ev.Stake
	d.Reason = ev.Reason
	if !ev.Valid {
		d.Reason = edge.ReasonInsufficientConfidence + ": " + ev.Reason
		metrics.RecordRecommendation(string(d.Recommendation))
		return d
	}

	switch ev.Selection {
	case model.SideOver:
		d.Selection, d.Odds = model.SideOver, g.Market.OverOdds
		d.Confidence, d.PredictedEdge, d.KellyFraction = ev.POver*100, ev.EdgeOver, ev.KellyOver
	case model.SideUnder:
		d.Selection, d.Odds = model.SideUnder, g.Market.UnderOdds
		d.Confidence, d.PredictedEdge, d.KellyFraction = ev.PUnder*100, ev.EdgeUnder, ev.KellyUnder
	default:
		d.Confidence = max(ev.POver, ev.PUnder) * 100
		d.PredictedEdge = max(ev.EdgeOver, ev.EdgeUnder)
	}
	if proj.LowConfidence {
		d.Reason = joinReason(d.Reason, "low confidence projection: "+proj.LowConfidenceReason)
	}

	metrics.RecordRecommendation(string(d.Recommendation))
	return d
}

// Record persists d and publishes it. A publish failure is logged; the
// stored decision stays authoritative.
func (s *Service) Record(ctx context.Context, d model.Decision) error {
	if err := s.store.Create(ctx, d); err != nil {
		return fmt.Errorf("store decision %s: %w", d.ID, err)
	}
	metrics.RecordDecisionRecorded()
	if err := s.publisher.Publish(ctx, d); err != nil {
		s.logger.Error(ctx, "publish failed",
			logger.String("decisionID", d.ID),
			logger.Error(err),
		)
	}
	return nil
}

// noBet reports a pipeline failure as NO_BET with the standard reason.
func (s *Service) noBet(ctx context.Context, d model.Decision, err error) model.Decision {
	d.Recommendation = model.NoBet
	d.Selection = ""
	d.Stake = decimal.Zero
	d.Reason = edge.ReasonInsufficientConfidence + ": " + err.Error()
	metrics.RecordRecommendation(string(model.NoBet))
	metrics.RecordErrorByComponent("pipeline", "no_bet")
	s.logger.Warn(ctx, "game reported as NO_BET",
		logger.String("gameID", d.EventID),
		logger.Error(err),
	)
	return d
}

func validateInput(in model.GameInput) error {
	if err := in.Game.Validate(); err != nil {
		return err
	}
	if err := in.Home.Validate(); err != nil {
		return err
	}
	return in.Away.Validate()
}

// evaluationConditions tags the side and tier an evaluation selected.
func evaluationConditions(ev model.Evaluation) []string {
	var out []string
	switch ev.Selection {
	case model.SideOver:
		out = append(out, model.CondSideOver)
	case model.SideUnder:
		out = append(out, model.CondSideUnder)
	}
	switch ev.Recommendation {
	case model.StrongOver, model.StrongUnder:
		out = append(out, model.CondTierStrong)
	case model.LeanOver, model.LeanUnder:
		out = append(out, model.CondTierLean)
	}
	return out
}

func joinReason(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
