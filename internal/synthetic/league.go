// Package synthetic generates seeded basketball seasons: teams with latent
// ratings, their pre-game rolling snapshots, scheduled games with a market line and
// the final totals. The same seed always yields the same league.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/courtside/internal/adapters/snapshot"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/walkforward"
	"github.com/okian/courtside/pkg/logger"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// League-wide constants.
const (
	leagueRating   = 112.0
	leaguePace     = 99.0
	ratingSpread   = 4.0
	paceSpread     = 2.5
	homeEdge       = 1.5
	b2bCost        = 2.0
	defaultOdds    = 1.91
	lineNoise      = 3.0
	h2hMeetings    = 4
	seasonStartDay = 275 // early October
	narrativeRate  = 0.1
	minPoints      = 60.0
	possNoise      = 2.0
	minStdGames    = 5
)

var namespace = uuid.MustParse("6f1c2b0e-5a7d-4e43-9d1a-1b8f4c2e7a90")

// Config sizes the league.
type Config struct {
	Seed         uint64
	FirstSeason  int
	Seasons      int
	Teams        int
	GamesPerTeam int
}

// DefaultConfig returns a five-season, twenty-team league.
func DefaultConfig() Config {
	return Config{
		Seed:         42,
		FirstSeason:  2019,
		Seasons:      5,
		Teams:        20,
		GamesPerTeam: 40,
	}
}

type team struct {
	id        string
	off, def  float64
	pace, std float64
}

// League is a generated archive plus the feature rows for validation.
type League struct {
	Dataset snapshot.Dataset
	Rows    []walkforward.Row
}

// Generate builds the league for cfg.
func Generate(ctx context.Context, cfg Config) (*League, error) {
	if cfg.Teams < 2 || cfg.Seasons < 1 || cfg.GamesPerTeam < 1 {
		return nil, fmt.Errorf("synthetic: need at least two teams, one season and one game, got %+v", cfg)
	}
	log := logger.Get().Named("synthetic")
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5bd1e995))

	teams := make([]*team, cfg.Teams)
	for i := range teams {
		teams[i] = &team{
			id:   fmt.Sprintf("T%02d", i+1),
			off:  leagueRating + rng.NormFloat64()*ratingSpread,
			def:  leagueRating + rng.NormFloat64()*ratingSpread,
			pace: leaguePace + rng.NormFloat64()*paceSpread,
			std:  10 + rng.Float64()*4,
		}
	}

	lg := &League{Dataset: snapshot.Dataset{
		Teams:      make(map[int]map[string]model.TeamSnapshot),
		PreGame:    make(map[string]map[string]model.TeamSnapshot),
		Signals:    make(map[string]model.Signals),
		Narratives: make(map[string]model.Narrative),
		Results:    make(map[string]float64),
	}}

	for s := 0; s < cfg.Seasons; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		season := cfg.FirstSeason + s
		if s > 0 {
			drift(rng, teams)
		}
		lg.season(rng, season, teams, cfg.GamesPerTeam)
	}

	if err := lg.Dataset.Validate(); err != nil {
		return nil, err
	}
	log.Info(ctx, "league generated",
		logger.Int("seasons", cfg.Seasons),
		logger.Int("teams", cfg.Teams),
		logger.Int("games", len(lg.Dataset.Games)),
	)
	return lg, nil
}

// drift moves latent ratings between seasons.
func drift(rng *rand.Rand, teams []*team) {
	for _, t := range teams {
		t.off += rng.NormFloat64() * 1.5
		t.def += rng.NormFloat64() * 1.5
		t.pace += rng.NormFloat64() * 0.8
	}
}

func (lg *League) season(rng *rand.Rand, season int, teams []*team, perTeam int) {
	opening := make(map[string]model.TeamSnapshot, len(teams))
	forms := make(map[string]*form, len(teams))
	asOf := time.Date(season, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, seasonStartDay)
	for _, t := range teams {
		opening[t.id] = preseason(rng, t, asOf)
		forms[t.id] = &form{}
	}
	lg.Dataset.Teams[season] = opening

	nGames := len(teams) * perTeam / 2
	meetings := make(map[[2]string][]float64)
	for i := 0; i < nGames; i++ {
		hi := rng.IntN(len(teams))
		ai := rng.IntN(len(teams) - 1)
		if ai >= hi {
			ai++
		}
		home, away := teams[hi], teams[ai]

		id := uuid.NewSHA1(namespace, fmt.Appendf(nil, "%d/%d/%s/%s", season, i, home.id, away.id)).String()
		tip := asOf.Add(time.Duration(i) * 6 * time.Hour)
		hRest, aRest := 1+rng.IntN(4), 1+rng.IntN(4)

		// Snapshots are taken before the result is drawn.
		hSnap := forms[home.id].snapshot(home, opening[home.id], tip)
		aSnap := forms[away.id].snapshot(away, opening[away.id], tip)
		lg.Dataset.PreGame[id] = map[string]model.TeamSnapshot{home.id: hSnap, away.id: aSnap}

		expected, hMean, aMean := expectedTotal(home, away, hRest == 1, aRest == 1)
		hPts := math.Max(minPoints, math.Round(hMean+rng.NormFloat64()*home.std))
		aPts := math.Max(minPoints, math.Round(aMean+rng.NormFloat64()*away.std))
		poss := (home.pace+away.pace)/2 + rng.NormFloat64()*possNoise
		final := hPts + aPts
		forms[home.id].add(hPts, aPts, poss)
		forms[away.id].add(aPts, hPts, poss)
		line := math.Floor(expected+rng.NormFloat64()*lineNoise) + 0.5

		pair := [2]string{home.id, away.id}
		if away.id < home.id {
			pair = [2]string{away.id, home.id}
		}
		h2h := append([]float64(nil), meetings[pair]...)
		if len(h2h) > h2hMeetings {
			h2h = h2h[len(h2h)-h2hMeetings:]
		}
		meetings[pair] = append(meetings[pair], final)

		g := model.Game{
			ID:        id,
			Season:    season,
			HomeTeam:  home.id,
			AwayTeam:  away.id,
			Scheduled: tip,
			Market:    model.Market{Line: line, OverOdds: defaultOdds, UnderOdds: defaultOdds},
		}
		sig := model.Signals{
			Home:             sideSignals(rng, home, away, hRest),
			Away:             sideSignals(rng, away, home, aRest),
			HeadToHeadTotals: h2h,
			LineTrend:        lineTrend(rng),
			LeagueDefRating:  leagueRating,
			LeaguePace:       leaguePace,
		}
		lg.Dataset.Games = append(lg.Dataset.Games, g)
		lg.Dataset.Signals[id] = sig
		if rng.Float64() < narrativeRate {
			lg.Dataset.Narratives[id] = narrative(rng, home.id)
		}
		lg.Dataset.Results[id] = final

		label := 0.0
		if final > line {
			label = 1
		}
		lg.Rows = append(lg.Rows, walkforward.Row{
			Season:   season,
			GameID:   id,
			Features: features(hSnap, aSnap, line, hRest, aRest),
			Label:    label,
		})
	}
}

// expectedTotal is the latent scoring model the games are drawn from.
func expectedTotal(home, away *team, homeB2B, awayB2B bool) (total, hMean, aMean float64) {
	poss := (home.pace + away.pace) / 2
	hMean = poss*(home.off+away.def)/200 + homeEdge
	aMean = poss*(away.off+home.def)/200 - homeEdge
	if homeB2B {
		hMean -= b2bCost
	}
	if awayB2B {
		aMean -= b2bCost
	}
	return hMean + aMean, hMean, aMean
}

// preseason is a team's season-opening snapshot: a noisy read of its
// latent ratings with no games behind it.
func preseason(rng *rand.Rand, t *team, asOf time.Time) model.TeamSnapshot {
	agg := func(noise float64) model.Aggregate {
		return model.Aggregate{
			OffRating:     t.off + rng.NormFloat64()*noise,
			DefRating:     t.def + rng.NormFloat64()*noise,
			Pace:          t.pace + rng.NormFloat64()*noise/2,
			ScoringStdDev: t.std + rng.NormFloat64()*noise/2,
		}
	}
	return model.TeamSnapshot{
		TeamID: t.id,
		AsOf:   asOf,
		Horizons: map[model.Horizon]model.Aggregate{
			model.HorizonSeason: agg(1),
			model.HorizonLast15: agg(2),
			model.HorizonLast10: agg(2.5),
			model.HorizonLast5:  agg(3.5),
		},
	}
}

// form is a team's running record within one season.
type form struct {
	pts, opp, poss []float64
}

func (f *form) add(pts, opp, poss float64) {
	f.pts = append(f.pts, pts)
	f.opp = append(f.opp, opp)
	f.poss = append(f.poss, poss)
}

// windows maps each horizon to its game count; zero means the whole season.
var windows = map[model.Horizon]int{
	model.HorizonSeason: 0,
	model.HorizonLast15: 15,
	model.HorizonLast10: 10,
	model.HorizonLast5:  5,
}

// snapshot summarises the games played before asOf. A horizon with no
// games yet carries the preseason read.
func (f *form) snapshot(t *team, opening model.TeamSnapshot, asOf time.Time) model.TeamSnapshot {
	out := model.TeamSnapshot{
		TeamID:   t.id,
		AsOf:     asOf,
		Horizons: make(map[model.Horizon]model.Aggregate, len(windows)),
	}
	played := len(f.pts)
	for h, n := range windows {
		k := played
		if n > 0 && n < k {
			k = n
		}
		if k == 0 {
			out.Horizons[h] = opening.Horizons[h]
			continue
		}
		pts, opp, poss := f.pts[played-k:], f.opp[played-k:], f.poss[played-k:]
		total := floats.Sum(poss)
		std := t.std
		if k >= minStdGames {
			std = stat.StdDev(pts, nil)
		}
		out.Horizons[h] = model.Aggregate{
			OffRating:     100 * floats.Sum(pts) / total,
			DefRating:     100 * floats.Sum(opp) / total,
			Pace:          total / float64(k),
			ScoringStdDev: std,
			Games:         k,
		}
	}
	return out
}

func sideSignals(rng *rand.Rand, t, opp *team, rest int) model.SideSignals {
	ppg := t.pace * t.off / 100
	return model.SideSignals{
		RestDays:     rest,
		BackToBack:   rest == 1,
		FatigueScore: rng.Float64() * 0.5,
		VenuePPG:     ppg + rng.NormFloat64()*2,
		VenueGames:   5 + rng.IntN(15),
		SeasonPPG:    ppg,
		OppDefRating: opp.def,
		RecentPace:   t.pace + rng.NormFloat64(),
	}
}

func narrative(rng *rand.Rand, teamID string) model.Narrative {
	conf := "high"
	if rng.IntN(2) == 0 {
		conf = "low"
	}
	adj := -1 - rng.Float64()*3
	return model.Narrative{
		Adjustment: math.Round(adj*10) / 10,
		Confidence: conf,
		Items: []model.NarrativeItem{{
			Category:  "injury",
			Impact:    "negative",
			Rationale: teamID + " rotation player listed out",
		}},
	}
}

func lineTrend(rng *rand.Rand) model.LineTrend {
	n := 5 + rng.IntN(20)
	return model.LineTrend{
		Samples:   n,
		AvgMargin: rng.NormFloat64() * 3,
		OverRate:  0.3 + rng.Float64()*0.4,
	}
}

// features is the baseline model's view of a game: the naive season total
// against the line, combined pace and rest.
func features(home, away model.TeamSnapshot, line float64, hRest, aRest int) []float64 {
	hs := home.Horizons[model.HorizonSeason]
	as := away.Horizons[model.HorizonSeason]
	poss := (hs.Pace + as.Pace) / 2
	naive := poss*(hs.OffRating+as.DefRating)/200 + poss*(as.OffRating+hs.DefRating)/200
	return []float64{
		naive - line,
		hs.Pace + as.Pace - 2*leaguePace,
		float64(hRest - aRest),
	}
}
