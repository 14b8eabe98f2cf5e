package learning

import (
	"math"
	"sort"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/projection"
	"gonum.org/v1/gonum/stat"
)

// BucketReport compares a bucket's stated confidence with its record.
type BucketReport struct {
	model.CalibrationBucket
	Expected float64 `json:"expected"`
	Realized float64 `json:"realized"`
	Gap      float64 `json:"gap"`
}

// Report is the calibration summary fed back into the composer.
type Report struct {
	Buckets []BucketReport `json:"buckets"`
	ECE     float64        `json:"ece"`
	Decided int            `json:"decided"`

	BiasSamples   int     `json:"bias_samples"`
	MeanResidual  float64 `json:"mean_residual"`
	CurrentBias   float64 `json:"current_bias"`
	SuggestedBias float64 `json:"suggested_bias"`
}

// Calibrate builds the calibration report. Each settled decision yields the
// bias that would have made its projection exact: the bias it was projected
// with plus its residual (final minus projected total). Once enough exist
// the suggested bias is their mean, so recalibrating over the same history
// is idempotent.
func (l *Learner) Calibrate(buckets []model.CalibrationBucket, decisions []model.Decision, currentBias float64) Report {
	rep := Report{CurrentBias: currentBias, SuggestedBias: currentBias}

	sorted := append([]model.CalibrationBucket(nil), buckets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Bucket < sorted[j].Bucket })
	for _, b := range sorted {
		rep.Decided += b.Wins + b.Losses
	}
	for _, b := range sorted {
		br := BucketReport{
			CalibrationBucket: b,
			Expected:          float64(b.Bucket) / 100,
			Realized:          b.WinRate(),
		}
		br.Gap = br.Realized - br.Expected
		if decided := b.Wins + b.Losses; decided > 0 && rep.Decided > 0 {
			rep.ECE += float64(decided) / float64(rep.Decided) * math.Abs(br.Gap)
		}
		rep.Buckets = append(rep.Buckets, br)
	}

	var residuals, implied []float64
	for _, d := range decisions {
		if d.Outcome.IsTerminal() && d.FinalTotal != nil && d.ProjectedTotal > 0 {
			r := *d.FinalTotal - d.ProjectedTotal
			residuals = append(residuals, r)
			implied = append(implied, biasUsed(d, currentBias)+r)
		}
	}
	rep.BiasSamples = len(residuals)
	if len(residuals) > 0 {
		rep.MeanResidual = stat.Mean(residuals, nil)
	}
	if rep.BiasSamples >= l.cfg.MinBiasSamples && rep.BiasSamples > 0 {
		rep.SuggestedBias = stat.Mean(implied, nil)
	}
	return rep
}

// biasUsed reads the bias correction d was projected with. A decision
// with reasoning but no bias entry was projected without one; a decision
// with no reasoning at all is assumed to carry fallback.
func biasUsed(d model.Decision, fallback float64) float64 {
	if len(d.Reasoning) == 0 {
		return fallback
	}
	for _, a := range d.Reasoning {
		if a.Name == projection.NameBiasCorrection {
			return a.Value
		}
	}
	return 0
}
