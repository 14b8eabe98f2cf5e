package learning

import (
	"fmt"
	"math"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/projection"
)

// PostMortem classifies why a lost decision lost. It is advisory and never
// alters the settlement.
func (l *Learner) PostMortem(d model.Decision, finalTotal float64) model.PostMortem {
	miss := finalTotal - d.ProjectedTotal
	abs := math.Abs(miss)

	pm := model.PostMortem{
		DecisionID: d.ID,
		Miss:       miss,
		Severity:   l.severity(abs),
		CreatedAt:  l.now(),
	}

	var adjSum float64
	for _, a := range d.Reasoning {
		if a.Name != projection.NameBiasCorrection {
			adjSum += a.Value
		}
	}
	withoutAdj := d.ProjectedTotal - adjSum

	switch {
	case abs <= l.cfg.VarianceBand:
		pm.Cause = model.CauseVariance
		pm.Notes = fmt.Sprintf("final %.1f within %.1f of projection %.1f", finalTotal, l.cfg.VarianceBand, d.ProjectedTotal)
	case d.Selection == model.SideUnder && finalTotal > d.Line &&
		finalTotal-d.Line <= l.cfg.OvertimeBump && math.Abs(miss-l.cfg.OvertimeBump) <= l.cfg.OvertimeBump/2:
		pm.Cause = model.CauseOvertime
		pm.Notes = fmt.Sprintf("final %.1f beat line %.1f by an overtime-sized margin", finalTotal, d.Line)
	case adjSum != 0 && math.Abs(finalTotal-withoutAdj) < abs:
		pm.Cause = model.CauseAdjustmentError
		pm.Notes = fmt.Sprintf("adjustments of %+.1f moved the projection away from the final %.1f", adjSum, finalTotal)
	case d.ProjectedTotal > 0:
		pm.Cause = model.CauseProjectionMiss
		pm.Notes = fmt.Sprintf("projection %.1f missed final %.1f by %+.1f", d.ProjectedTotal, finalTotal, miss)
	default:
		pm.Cause = model.CauseUnknown
	}
	return pm
}

func (l *Learner) severity(absMiss float64) model.Severity {
	switch {
	case absMiss >= l.cfg.HighMiss:
		return model.SeverityHigh
	case absMiss >= l.cfg.MediumMiss:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
