package service

import (
	"context"
	"fmt"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/edge"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
	"github.com/shopspring/decimal"
)

// SettleReport summarises one settlement pass.
type SettleReport struct {
	Games       int `json:"games"`
	Settled     int `json:"settled"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Pushes      int `json:"pushes"`
	PostMortems int `json:"post_mortems"`
}

func (r *SettleReport) add(o model.Outcome) {
	r.Settled++
	switch o {
	case model.OutcomeWin:
		r.Wins++
	case model.OutcomeLoss:
		r.Losses++
	case model.OutcomePush:
		r.Pushes++
	}
}

// Settle grades one decision against the final total. A decision without a
// selection settles as PUSH with zero profit. Settling twice returns the
// stored decision with repository.ErrDoubleSettlement.
func (s *Service) Settle(ctx context.Context, id string, finalTotal float64) (model.Decision, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Decision{}, err
	}
	outcome, profit := model.OutcomePush, decimal.Zero
	if d.IsBet() {
		outcome, profit, err = edge.Grade(d.Selection, d.Line, finalTotal, d.Odds, d.Stake)
		if err != nil {
			return model.Decision{}, fmt.Errorf("grade %s: %w", id, err)
		}
	}

	final := finalTotal
	settled, err := s.store.Settle(ctx, id, model.Settlement{
		Outcome:    outcome,
		Profit:     profit,
		FinalTotal: &final,
		SettledAt:  s.now().UTC(),
	})
	if err != nil {
		return settled, err
	}

	if outcome == model.OutcomeLoss {
		pm := s.learner.PostMortem(settled, finalTotal)
		if err := s.store.SavePostMortem(ctx, pm); err != nil {
			s.logger.Warn(ctx, "post-mortem not saved",
				logger.String("decisionID", id),
				logger.Error(err),
			)
		} else {
			s.logger.Info(ctx, "loss reviewed",
				logger.String("decisionID", id),
				logger.String("cause", string(pm.Cause)),
				logger.String("severity", string(pm.Severity)),
			)
		}
	}
	return settled, nil
}

// SettleGame settles every pending decision for gameID.
func (s *Service) SettleGame(ctx context.Context, gameID string, finalTotal float64) (SettleReport, error) {
	rep := SettleReport{Games: 1}
	pending, err := s.store.List(ctx, repository.Filter{EventID: gameID, Outcome: model.OutcomePending})
	if err != nil {
		return rep, fmt.Errorf("list pending for %s: %w", gameID, err)
	}
	for _, d := range pending {
		settled, err := s.Settle(ctx, d.ID, finalTotal)
		if err != nil {
			return rep, err
		}
		rep.add(settled.Outcome)
		if settled.Outcome == model.OutcomeLoss {
			rep.PostMortems++
		}
	}
	return rep, nil
}

// SettleFinished settles every pending decision whose game has a final total
// in the snapshot source. Games without a result are left pending.
func (s *Service) SettleFinished(ctx context.Context) (SettleReport, error) {
	var rep SettleReport
	if s.source == nil {
		return rep, ErrNoSource
	}
	pending, err := s.store.List(ctx, repository.Filter{Outcome: model.OutcomePending})
	if err != nil {
		return rep, fmt.Errorf("list pending: %w", err)
	}

	seen := make(map[string]struct{})
	for _, d := range pending {
		if _, ok := seen[d.EventID]; ok {
			continue
		}
		seen[d.EventID] = struct{}{}

		final, ok, err := s.source.FinalTotal(ctx, d.EventID)
		if err != nil {
			return rep, fmt.Errorf("final total for %s: %w", d.EventID, err)
		}
		if !ok {
			continue
		}
		gr, err := s.SettleGame(ctx, d.EventID, final)
		rep.Games++
		rep.Settled += gr.Settled
		rep.Wins += gr.Wins
		rep.Losses += gr.Losses
		rep.Pushes += gr.Pushes
		rep.PostMortems += gr.PostMortems
		if err != nil {
			return rep, err
		}
	}

	s.logger.Info(ctx, "settlement pass complete",
		logger.Int("games", rep.Games),
		logger.Int("settled", rep.Settled),
		logger.Int("wins", rep.Wins),
		logger.Int("losses", rep.Losses),
	)
	return rep, nil
}
