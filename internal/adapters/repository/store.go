// Package repository is the memory and calibration store: the durable record
// of every Decision, its settlement, the confidence buckets and the learned
// rules.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/courtside/internal/domain/model"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	EventID  string
	Outcome  model.Outcome
	BetsOnly bool
	Settled  bool
	Limit    int
}

// Store owns Decisions. Settle is the only write after Create and runs at
// most once per id.
type Store interface {
	// Create appends a PENDING decision. Returns ErrDuplicate for a known id.
	Create(ctx context.Context, d model.Decision) error

	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (model.Decision, error)

	// List returns decisions in creation order.
	List(ctx context.Context, f Filter) ([]model.Decision, error)

	// Settle moves a PENDING decision to a terminal outcome and counts it into
	// its calibration bucket in the same step. A second call returns
	// ErrDoubleSettlement and leaves the first settlement untouched.
	Settle(ctx context.Context, id string, s model.Settlement) (model.Decision, error)

	// Buckets returns the calibration buckets ordered by bucket.
	Buckets(ctx context.Context) ([]model.CalibrationBucket, error)

	Rules(ctx context.Context, activeOnly bool) ([]model.LearningRule, error)
	UpsertRule(ctx context.Context, r model.LearningRule) error

	SavePostMortem(ctx context.Context, pm model.PostMortem) error
	PostMortems(ctx context.Context) ([]model.PostMortem, error)

	// SaveCalibration records an applied bias correction.
	SaveCalibration(ctx context.Context, c model.BiasCalibration) error

	// LatestCalibration returns the most recently applied bias correction,
	// or ErrNotFound when none was ever applied.
	LatestCalibration(ctx context.Context) (model.BiasCalibration, error)

	// Count returns the number of stored decisions.
	Count(ctx context.Context) (int, error)

	Close() error
}

func validateSettlement(s model.Settlement) error {
	if !s.Outcome.IsTerminal() {
		return fmt.Errorf("%w: outcome %q", ErrInvalidSettlement, s.Outcome)
	}
	return nil
}

func (f Filter) match(d *model.Decision) bool {
	switch {
	case f.EventID != "" && d.EventID != f.EventID:
		return false
	case f.Outcome != "" && d.Outcome != f.Outcome:
		return false
	case f.BetsOnly && !d.IsBet():
		return false
	case f.Settled && !d.Outcome.IsTerminal():
		return false
	}
	return true
}

// clone copies the slices and pointers of d so callers cannot mutate stored
// state.
func clone(d model.Decision) model.Decision {
	d.Reasoning = append([]model.Adjustment(nil), d.Reasoning...)
	d.Conditions = append([]string(nil), d.Conditions...)
	if d.SettledAt != nil {
		t := *d.SettledAt
		d.SettledAt = &t
	}
	if d.FinalTotal != nil {
		v := *d.FinalTotal
		d.FinalTotal = &v
	}
	return d
}
