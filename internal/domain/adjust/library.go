package adjust

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/courtside/internal/domain/model"
)

// Adjustment names.
const (
	NameOpponentStrength = "opponent_strength"
	NameRestFatigue      = "rest_fatigue"
	NameScheduleDensity  = "schedule_density"
	NameVenueSplit       = "venue_split"
	NameHeadToHead       = "head_to_head"
	NameLineTrend        = "line_trend"
	NamePaceMatchup      = "pace_matchup"
	NameNarrative        = "narrative"
)

// Context is the read-only input every adjustment sees.
type Context struct {
	Input model.GameInput
	// BaseTotal is the efficiency-only projection the adjustments correct.
	BaseTotal float64
}

// Detail is the supporting data behind one adjustment value.
type Detail struct {
	InsufficientData bool
	Rationale        string
	Stats            map[string]float64
	Conditions       []string
	Err              error
}

func insufficient(format string, args ...any) Detail {
	msg := fmt.Sprintf(format, args...)
	return Detail{
		InsufficientData: true,
		Rationale:        msg,
		Err:              fmt.Errorf("%w: %s", ErrInsufficientData, msg),
	}
}

// Func is one registered adjustment with its documented magnitude range.
type Func struct {
	Name string
	Min  float64
	Max  float64
	Fn   func(Context) (float64, Detail)
}

// Library evaluates the configured adjustments.
type Library struct {
	cfg Config
}

// New builds a library with cfg.
func New(cfg Config) *Library {
	return &Library{cfg: cfg}
}

// Funcs lists the adjustments in evaluation order with their ranges.
func (l *Library) Funcs() []Func {
	stack := l.cfg.B2BPenalty * (1 + l.cfg.B2BStackFactor)
	return []Func{
		{Name: NameOpponentStrength, Min: -6, Max: 6, Fn: l.OpponentStrength},
		{Name: NameRestFatigue, Min: math.Min(stack, 0), Max: math.Max(l.cfg.RestedBonus, 0), Fn: l.RestFatigue},
		{Name: NameScheduleDensity, Min: -2 * l.cfg.FatiguePoints, Max: 0, Fn: l.ScheduleDensity},
		{Name: NameVenueSplit, Min: -6, Max: 6, Fn: l.VenueSplit},
		{Name: NameHeadToHead, Min: -5, Max: 5, Fn: l.HeadToHead},
		{Name: NameLineTrend, Min: -l.cfg.TrendStrongPoints, Max: l.cfg.TrendStrongPoints, Fn: l.LineTrend},
		{Name: NamePaceMatchup, Min: -5, Max: 5, Fn: l.PaceMatchup},
	}
}

// Result is the outcome of running the whole library on one game.
type Result struct {
	Adjustments  []model.Adjustment
	Conditions   []string
	Insufficient []string
	Details      map[string]Detail
}

// Apply runs every adjustment plus the narrative merge. A non-finite value
// degrades to zero with the insufficient-data flag.
func (l *Library) Apply(c Context) Result {
	res := Result{Details: make(map[string]Detail)}
	for _, f := range l.Funcs() {
		v, d := f.Fn(c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v, d = 0, insufficient("%s produced a non-finite value", f.Name)
		}
		if d.InsufficientData {
			v = 0
			res.Insufficient = append(res.Insufficient, f.Name)
		}
		res.Details[f.Name] = d
		res.Conditions = append(res.Conditions, d.Conditions...)
		res.Adjustments = append(res.Adjustments, model.Adjustment{
			Name:             f.Name,
			Value:            v,
			Rationale:        d.Rationale,
			InsufficientData: d.InsufficientData,
		})
	}
	if adj, ok := l.MergeNarrative(c.Input.Narrative); ok {
		res.Adjustments = append(res.Adjustments, adj)
		res.Conditions = append(res.Conditions, model.CondNarrative)
	}
	return res
}

// OpponentStrength corrects recent scoring for the quality of defenses
// faced: a side that met weak defenses gets marked down. Range [-6, 6].
func (l *Library) OpponentStrength(c Context) (float64, Detail) {
	league := c.Input.Signals.LeagueDefRating
	if league <= 0 {
		return 0, insufficient("no league defensive rating")
	}
	stats := map[string]float64{"league_def_rating": league}
	var total float64
	used := 0
	for _, side := range []struct {
		name string
		sig  model.SideSignals
		snap model.TeamSnapshot
	}{
		{"home", c.Input.Signals.Home, c.Input.Home},
		{"away", c.Input.Signals.Away, c.Input.Away},
	} {
		if side.sig.OppDefRating <= 0 {
			continue
		}
		pace := league
		if a, ok := side.snap.Horizon(model.HorizonSeason); ok {
			pace = a.Pace
		}
		delta := side.sig.OppDefRating - league
		total += -delta * pace / 100 * l.cfg.OpponentWeight
		stats[side.name+"_opp_def_delta"] = delta
		used++
	}
	if used == 0 {
		return 0, insufficient("no opponent defensive ratings")
	}
	v := clamp(total, -6, 6)
	return v, Detail{
		Rationale: fmt.Sprintf("recent opponents' defense vs league average shifts scoring %+.1f", v),
		Stats:     stats,
	}
}

// RestFatigue applies the back-to-back penalty per affected side. When both
// sides are on a back-to-back the second penalty is scaled by the stack
// factor, so the defaults give -3.0 + -1.5 = -4.5. Both sides on RestedDays
// or more earn the rested bonus. Range [penalty*(1+stack), bonus].
func (l *Library) RestFatigue(c Context) (float64, Detail) {
	h, a := c.Input.Signals.Home, c.Input.Signals.Away
	hKnown := h.RestDays > 0 || h.BackToBack
	aKnown := a.RestDays > 0 || a.BackToBack
	if !hKnown && !aKnown {
		return 0, insufficient("rest days unknown for both sides")
	}
	stats := map[string]float64{"home_rest_days": float64(h.RestDays), "away_rest_days": float64(a.RestDays)}

	hB2B, aB2B := h.IsBackToBack(), a.IsBackToBack()
	switch {
	case hB2B && aB2B:
		v := l.cfg.B2BPenalty + l.cfg.B2BPenalty*l.cfg.B2BStackFactor
		return v, Detail{
			Rationale:  fmt.Sprintf("both sides on a back-to-back (%+.1f stacked)", v),
			Stats:      stats,
			Conditions: []string{model.CondHomeB2B, model.CondAwayB2B, model.CondBothB2B},
		}
	case hB2B:
		return l.cfg.B2BPenalty, Detail{
			Rationale:  fmt.Sprintf("home side on a back-to-back (%+.1f)", l.cfg.B2BPenalty),
			Stats:      stats,
			Conditions: []string{model.CondHomeB2B},
		}
	case aB2B:
		return l.cfg.B2BPenalty, Detail{
			Rationale:  fmt.Sprintf("away side on a back-to-back (%+.1f)", l.cfg.B2BPenalty),
			Stats:      stats,
			Conditions: []string{model.CondAwayB2B},
		}
	case h.RestDays >= l.cfg.RestedDays && a.RestDays >= l.cfg.RestedDays:
		return l.cfg.RestedBonus, Detail{
			Rationale:  fmt.Sprintf("both sides on %d+ days rest (%+.1f)", l.cfg.RestedDays, l.cfg.RestedBonus),
			Stats:      stats,
			Conditions: []string{model.CondBothRested},
		}
	}
	return 0, Detail{Rationale: "normal rest", Stats: stats}
}

// ScheduleDensity penalises sides whose fatigue score clears the threshold.
// Range [-2*points, 0].
func (l *Library) ScheduleDensity(c Context) (float64, Detail) {
	h, a := c.Input.Signals.Home.FatigueScore, c.Input.Signals.Away.FatigueScore
	if h <= 0 && a <= 0 {
		return 0, insufficient("no schedule fatigue scores")
	}
	var v float64
	var tired []string
	for _, s := range []struct {
		name  string
		score float64
	}{{"home", h}, {"away", a}} {
		if s.score >= l.cfg.FatigueThreshold {
			v -= l.cfg.FatiguePoints * math.Min(s.score, 1)
			tired = append(tired, s.name)
		}
	}
	d := Detail{Stats: map[string]float64{"home_fatigue": h, "away_fatigue": a}}
	if len(tired) == 0 {
		d.Rationale = "schedule density below threshold"
		return 0, d
	}
	d.Rationale = fmt.Sprintf("dense schedule for %s (%+.1f)", strings.Join(tired, " and "), v)
	d.Conditions = []string{model.CondScheduleFatigue}
	return v, d
}

// VenueSplit moves the total toward each side's scoring at this venue type.
// Range [-6, 6].
func (l *Library) VenueSplit(c Context) (float64, Detail) {
	var total float64
	used := 0
	stats := map[string]float64{}
	for _, s := range []struct {
		name string
		sig  model.SideSignals
	}{{"home", c.Input.Signals.Home}, {"away", c.Input.Signals.Away}} {
		if s.sig.VenueGames < l.cfg.VenueMinGames || s.sig.VenuePPG <= 0 || s.sig.SeasonPPG <= 0 {
			continue
		}
		delta := s.sig.VenuePPG - s.sig.SeasonPPG
		stats[s.name+"_venue_delta"] = delta
		total += delta
		used++
	}
	if used == 0 {
		return 0, insufficient("fewer than %d venue games for both sides", l.cfg.VenueMinGames)
	}
	v := clamp(total*l.cfg.VenueWeight, -6, 6)
	return v, Detail{Rationale: fmt.Sprintf("venue scoring splits %+.1f", v), Stats: stats}
}

// HeadToHead nudges toward the historical meeting average, damped, and only
// with at least H2HMinMeetings prior meetings. Range [-5, 5].
func (l *Library) HeadToHead(c Context) (float64, Detail) {
	totals := c.Input.Signals.HeadToHeadTotals
	if len(totals) < l.cfg.H2HMinMeetings {
		return 0, insufficient("%d prior meetings, need %d", len(totals), l.cfg.H2HMinMeetings)
	}
	if c.BaseTotal <= 0 {
		return 0, insufficient("no base total to compare meetings against")
	}
	var sum float64
	for _, t := range totals {
		sum += t
	}
	avg := sum / float64(len(totals))
	raw := avg - c.BaseTotal
	v := clamp(raw*l.cfg.H2HDamping, -5, 5)
	return v, Detail{
		Rationale:  fmt.Sprintf("%d meetings averaged %.1f vs base %.1f, damped to %+.1f", len(totals), avg, c.BaseTotal, v),
		Stats:      map[string]float64{"meetings": float64(len(totals)), "h2h_avg": avg, "raw": raw},
		Conditions: []string{model.CondH2HApplied},
	}
}

// LineTrend applies a tiered shift when games near this line have closed
// consistently over or under it. Range [-strong, strong].
func (l *Library) LineTrend(c Context) (float64, Detail) {
	tr := c.Input.Signals.LineTrend
	if tr.Samples < l.cfg.TrendMinSamples {
		return 0, insufficient("%d games at this line, need %d", tr.Samples, l.cfg.TrendMinSamples)
	}
	stats := map[string]float64{"samples": float64(tr.Samples), "avg_margin": tr.AvgMargin, "over_rate": tr.OverRate}
	sign := 1.0
	if tr.AvgMargin < 0 {
		sign = -1
	}
	m := math.Abs(tr.AvgMargin)
	switch {
	case m >= l.cfg.TrendStrongMargin:
		v := sign * l.cfg.TrendStrongPoints
		return v, Detail{
			Rationale:  fmt.Sprintf("strong line trend: avg margin %+.1f over %d games", tr.AvgMargin, tr.Samples),
			Stats:      stats,
			Conditions: []string{model.CondTrendStrong},
		}
	case m >= l.cfg.TrendMildMargin:
		v := sign * l.cfg.TrendMildPoints
		return v, Detail{
			Rationale:  fmt.Sprintf("mild line trend: avg margin %+.1f over %d games", tr.AvgMargin, tr.Samples),
			Stats:      stats,
			Conditions: []string{model.CondTrendMild},
		}
	}
	return 0, Detail{Rationale: "no line trend", Stats: stats}
}

// PaceMatchup converts the deviation of recent pace from season pace into
// points at the sides' combined scoring rate. Range [-5, 5].
func (l *Library) PaceMatchup(c Context) (float64, Detail) {
	hs, okH := c.Input.Home.Horizon(model.HorizonSeason)
	as, okA := c.Input.Away.Horizon(model.HorizonSeason)
	hp, ap := c.Input.Signals.Home.RecentPace, c.Input.Signals.Away.RecentPace
	if !okH || !okA || hp <= 0 || ap <= 0 {
		return 0, insufficient("recent pace missing for a side")
	}
	dev := ((hp - hs.Pace) + (ap - as.Pace)) / 2
	perPossession := (hs.OffRating + as.OffRating) / 100
	v := clamp(dev*perPossession*l.cfg.PaceWeight, -5, 5)
	return v, Detail{
		Rationale: fmt.Sprintf("matchup pace %+.1f possessions vs season", dev),
		Stats:     map[string]float64{"pace_deviation": dev, "points_per_possession": perPossession},
	}
}

// MergeNarrative turns the research layer's signed adjustment into one
// Adjustment. A "low" confidence tag scales it down. The items only feed
// the rationale.
func (l *Library) MergeNarrative(n *model.Narrative) (model.Adjustment, bool) {
	if n == nil || (n.Adjustment == 0 && len(n.Items) == 0) {
		return model.Adjustment{}, false
	}
	v := n.Adjustment
	if strings.EqualFold(n.Confidence, "low") {
		v *= l.cfg.NarrativeLowScale
	}
	v = clamp(v, -l.cfg.NarrativeMax, l.cfg.NarrativeMax)

	parts := make([]string, 0, len(n.Items))
	for _, it := range n.Items {
		parts = append(parts, fmt.Sprintf("[%s/%s] %s", it.Category, it.Impact, it.Rationale))
	}
	rationale := fmt.Sprintf("narrative (%s confidence) %+.1f", orDefault(n.Confidence, "unrated"), v)
	if len(parts) > 0 {
		rationale += ": " + strings.Join(parts, "; ")
	}
	return model.Adjustment{Name: NameNarrative, Value: v, Rationale: rationale}, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
