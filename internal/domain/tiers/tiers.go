// Package tiers holds the single threshold table shared by the EV engine,
// the calibration store and the walk-forward confidence sweep.
package tiers

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/okian/courtside/internal/domain/model"
)

// ErrInvalidTable marks a malformed threshold table.
var ErrInvalidTable = errors.New("invalid tier table")

// Tier names.
const (
	Strong = "STRONG"
	Lean   = "LEAN"
)

// Tier is one edge threshold and its label.
type Tier struct {
	Name    string  `koanf:"name" json:"name"`
	MinEdge float64 `koanf:"min_edge" json:"min_edge"`
}

// Table is the enumerated threshold configuration.
type Table struct {
	// Tiers are ordered by descending MinEdge.
	Tiers []Tier `koanf:"tiers" json:"tiers"`
	// BucketWidth rounds confidence percentages into calibration buckets.
	BucketWidth float64 `koanf:"bucket_width" json:"bucket_width"`
	// SweepThresholds are extra |p-0.5| cut-offs evaluated by the sweep.
	SweepThresholds []float64 `koanf:"sweep_thresholds" json:"sweep_thresholds"`
}

// Default returns the stock table.
func Default() Table {
	return Table{
		Tiers: []Tier{
			{Name: Strong, MinEdge: 0.07},
			{Name: Lean, MinEdge: 0.03},
		},
		BucketWidth:     5,
		SweepThresholds: []float64{0, 0.02, 0.05, 0.10, 0.15},
	}
}

// Validate checks ordering and bounds.
func (t Table) Validate() error {
	if len(t.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidTable)
	}
	for i, tier := range t.Tiers {
		if tier.Name != Strong && tier.Name != Lean {
			return fmt.Errorf("%w: unknown tier %q", ErrInvalidTable, tier.Name)
		}
		if tier.MinEdge <= 0 || tier.MinEdge >= 0.5 {
			return fmt.Errorf("%w: tier %s edge %v out of (0, 0.5)", ErrInvalidTable, tier.Name, tier.MinEdge)
		}
		if i > 0 && tier.MinEdge >= t.Tiers[i-1].MinEdge {
			return fmt.Errorf("%w: tiers must be ordered by descending edge", ErrInvalidTable)
		}
	}
	if t.BucketWidth <= 0 || t.BucketWidth > 50 {
		return fmt.Errorf("%w: bucket width %v", ErrInvalidTable, t.BucketWidth)
	}
	for _, th := range t.SweepThresholds {
		if th < 0 || th >= 0.5 {
			return fmt.Errorf("%w: sweep threshold %v out of [0, 0.5)", ErrInvalidTable, th)
		}
	}
	return nil
}

// Classify returns the name of the highest tier edge clears, or "".
func (t Table) Classify(edge float64) string {
	for _, tier := range t.Tiers {
		if edge >= tier.MinEdge {
			return tier.Name
		}
	}
	return ""
}

// Recommend maps a side and its edge to the categorical recommendation.
func (t Table) Recommend(side model.Side, edge float64) model.Recommendation {
	switch t.Classify(edge) {
	case Strong:
		if side == model.SideOver {
			return model.StrongOver
		}
		if side == model.SideUnder {
			return model.StrongUnder
		}
	case Lean:
		if side == model.SideOver {
			return model.LeanOver
		}
		if side == model.SideUnder {
			return model.LeanUnder
		}
	}
	return model.NoBet
}

// Bucket rounds a confidence percentage to the nearest bucket.
func (t Table) Bucket(confidencePct float64) int {
	w := t.BucketWidth
	if w <= 0 {
		w = 5
	}
	return int(math.Round(confidencePct/w) * w)
}

// SweepPoints returns the sorted, de-duplicated |p-0.5| thresholds the
// validator sweeps: the configured extras plus every tier edge. At even
// de-vigged odds a tier edge and a confidence distance coincide.
func (t Table) SweepPoints() []float64 {
	seen := make(map[float64]bool)
	out := make([]float64, 0, len(t.SweepThresholds)+len(t.Tiers))
	add := func(v float64) {
		v = math.Round(v*1e6) / 1e6
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range t.SweepThresholds {
		add(v)
	}
	for _, tier := range t.Tiers {
		add(tier.MinEdge)
	}
	sort.Float64s(out)
	return out
}
