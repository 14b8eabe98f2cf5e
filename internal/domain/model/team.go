// Package model contains the typed records passed between layers.
//
// Records arriving from the data-acquisition layer are validated once at the
// boundary (Validate methods); the analysis core treats zero values as
// "unknown" and never re-checks raw input.
package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord marks input that failed boundary validation.
var ErrInvalidRecord = errors.New("invalid record")

// Horizon names a rolling aggregation window.
type Horizon string

const (
	HorizonSeason Horizon = "season"
	HorizonLast15 Horizon = "last15"
	HorizonLast10 Horizon = "last10"
	HorizonLast5  Horizon = "last5"
)

// Horizons lists every horizon from longest to shortest.
var Horizons = []Horizon{HorizonSeason, HorizonLast15, HorizonLast10, HorizonLast5}

// Aggregate holds per-100-possession efficiency for one horizon.
type Aggregate struct {
	OffRating     float64 `json:"off_rating"`
	DefRating     float64 `json:"def_rating"`
	Pace          float64 `json:"pace"`
	ScoringStdDev float64 `json:"scoring_std_dev"`
	Games         int     `json:"games"`
}

// Validate reports whether the aggregate carries usable numbers.
func (a Aggregate) Validate() error {
	if a.OffRating <= 0 || a.DefRating <= 0 || a.Pace <= 0 {
		return fmt.Errorf("%w: ratings and pace must be positive", ErrInvalidRecord)
	}
	if a.ScoringStdDev < 0 || a.Games < 0 {
		return fmt.Errorf("%w: negative std dev or games", ErrInvalidRecord)
	}
	return nil
}

// TeamSnapshot is a read-only view of a competitor built for one analysis.
type TeamSnapshot struct {
	TeamID   string                `json:"team_id"`
	AsOf     time.Time             `json:"as_of"`
	Horizons map[Horizon]Aggregate `json:"horizons"`
}

// Horizon returns the aggregate for h if present.
func (t TeamSnapshot) Horizon(h Horizon) (Aggregate, bool) {
	a, ok := t.Horizons[h]
	return a, ok
}

// Games returns the season game count, falling back to the largest horizon.
func (t TeamSnapshot) Games() int {
	if a, ok := t.Horizons[HorizonSeason]; ok {
		return a.Games
	}
	n := 0
	for _, a := range t.Horizons {
		if a.Games > n {
			n = a.Games
		}
	}
	return n
}

// Validate checks the snapshot at the acquisition boundary.
func (t TeamSnapshot) Validate() error {
	if t.TeamID == "" {
		return fmt.Errorf("%w: missing team id", ErrInvalidRecord)
	}
	if len(t.Horizons) == 0 {
		return fmt.Errorf("%w: team %s has no horizons", ErrInvalidRecord, t.TeamID)
	}
	for h, a := range t.Horizons {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("team %s horizon %s: %w", t.TeamID, h, err)
		}
	}
	return nil
}

// SideSignals are the auxiliary per-team inputs for one game.
// Zero means unknown unless noted.
type SideSignals struct {
	// RestDays counts days since the previous game; 1 is a back-to-back.
	RestDays   int  `json:"rest_days"`
	BackToBack bool `json:"back_to_back"`
	// FatigueScore is a 0..1 schedule density score.
	FatigueScore float64 `json:"fatigue_score"`
	// VenuePPG is points per game at this game's venue type (home or road).
	VenuePPG   float64 `json:"venue_ppg"`
	VenueGames int     `json:"venue_games"`
	SeasonPPG  float64 `json:"season_ppg"`
	// OppDefRating is the mean defensive rating of recent opponents.
	OppDefRating float64 `json:"opp_def_rating"`
	// RecentPace is the last-5 pace used for the matchup deviation.
	RecentPace float64 `json:"recent_pace"`
}

// IsBackToBack reports whether the side plays on consecutive days.
func (s SideSignals) IsBackToBack() bool {
	return s.BackToBack || s.RestDays == 1
}

// LineTrend summarises how games closed against lines near this one.
type LineTrend struct {
	Samples   int     `json:"samples"`
	AvgMargin float64 `json:"avg_margin"` // mean of (final total - line)
	OverRate  float64 `json:"over_rate"`
}

// Signals bundles every auxiliary numeric input for one game.
type Signals struct {
	Home             SideSignals `json:"home"`
	Away             SideSignals `json:"away"`
	HeadToHeadTotals []float64   `json:"head_to_head_totals"`
	LineTrend        LineTrend   `json:"line_trend"`
	LeagueDefRating  float64     `json:"league_def_rating"`
	LeaguePace       float64     `json:"league_pace"`
}

// Market is the posted total and its decimal odds.
type Market struct {
	Line      float64 `json:"line"`
	OverOdds  float64 `json:"over_odds"`
	UnderOdds float64 `json:"under_odds"`
}

// Game is an immutable scheduled event.
type Game struct {
	ID        string    `json:"id"`
	Season    int       `json:"season"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	Scheduled time.Time `json:"scheduled"`
	Market    Market    `json:"market"`
}

// Validate checks the game at the acquisition boundary.
func (g Game) Validate() error {
	switch {
	case g.ID == "":
		return fmt.Errorf("%w: missing game id", ErrInvalidRecord)
	case g.HomeTeam == "" || g.AwayTeam == "":
		return fmt.Errorf("%w: game %s missing a team", ErrInvalidRecord, g.ID)
	case g.HomeTeam == g.AwayTeam:
		return fmt.Errorf("%w: game %s has the same team on both sides", ErrInvalidRecord, g.ID)
	case g.Market.Line <= 0:
		return fmt.Errorf("%w: game %s has no line", ErrInvalidRecord, g.ID)
	}
	return nil
}

// NarrativeItem is one qualitative finding from the research layer.
type NarrativeItem struct {
	Category  string `json:"category"`
	Impact    string `json:"impact"`
	Rationale string `json:"rationale"`
}

// Narrative is the research layer's output: one signed point adjustment, a
// confidence tag and the items behind it.
type Narrative struct {
	Adjustment float64         `json:"adjustment"`
	Confidence string          `json:"confidence"`
	Items      []NarrativeItem `json:"items"`
}

// GameInput is everything the core needs to analyse one game.
type GameInput struct {
	Game      Game         `json:"game"`
	Home      TeamSnapshot `json:"home"`
	Away      TeamSnapshot `json:"away"`
	Signals   Signals      `json:"signals"`
	Narrative *Narrative   `json:"narrative,omitempty"`
}
