// Package snapshot is the read-only historical data boundary. Data arrives
// already fetched by the acquisition layer; everything is validated once on
// load so the analysis core works on typed, complete records.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/courtside/internal/domain/model"
)

// Sentinel kinds for snapshot errors.
var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrInvalidDataset = errors.New("invalid dataset")
	ErrLookahead      = errors.New("snapshot taken after tip-off")
)

// Source reads historical snapshots. Implementations must be safe for
// concurrent readers.
type Source interface {
	Games(ctx context.Context) ([]model.Game, error)
	Game(ctx context.Context, id string) (model.Game, error)
	// Team returns the season-opening snapshot, used when a game has no
	// pre-game snapshot of its own.
	Team(ctx context.Context, teamID string, season int) (model.TeamSnapshot, error)
	// PreGame returns the snapshot taken for gameID before tip-off, or false
	// when none was recorded.
	PreGame(ctx context.Context, gameID, teamID string) (model.TeamSnapshot, bool, error)
	Signals(ctx context.Context, gameID string) (model.Signals, error)
	// Narrative returns nil when the research layer had nothing for the game.
	Narrative(ctx context.Context, gameID string) (*model.Narrative, error)
	// FinalTotal returns false until the game has a result.
	FinalTotal(ctx context.Context, gameID string) (float64, bool, error)
}

// Dataset is the serialised form of a season archive. PreGame holds, per
// game id, each side's snapshot as of tip-off; Teams holds the
// season-opening snapshots.
type Dataset struct {
	Games      []model.Game                             `json:"games"`
	Teams      map[int]map[string]model.TeamSnapshot    `json:"teams"`
	PreGame    map[string]map[string]model.TeamSnapshot `json:"pre_game,omitempty"`
	Signals    map[string]model.Signals                 `json:"signals"`
	Narratives map[string]model.Narrative               `json:"narratives,omitempty"`
	Results    map[string]float64                       `json:"results,omitempty"`
}

// Validate checks every record and the references between them.
func (d Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Games))
	for _, g := range d.Games {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
		}
		if seen[g.ID] {
			return fmt.Errorf("%w: duplicate game %s", ErrInvalidDataset, g.ID)
		}
		seen[g.ID] = true
		for _, team := range []string{g.HomeTeam, g.AwayTeam} {
			_, season := d.Teams[g.Season][team]
			_, pre := d.PreGame[g.ID][team]
			if !season && !pre {
				return fmt.Errorf("%w: game %s references unknown team %s in season %d",
					ErrInvalidDataset, g.ID, team, g.Season)
			}
		}
	}
	byID := make(map[string]model.Game, len(d.Games))
	for _, g := range d.Games {
		byID[g.ID] = g
	}
	for gameID, teams := range d.PreGame {
		g, ok := byID[gameID]
		if !ok {
			return fmt.Errorf("%w: pre-game snapshot for unknown game %s", ErrInvalidDataset, gameID)
		}
		for id, t := range teams {
			if id != g.HomeTeam && id != g.AwayTeam {
				return fmt.Errorf("%w: game %s has a pre-game snapshot for %s", ErrInvalidDataset, gameID, id)
			}
			if t.TeamID != id {
				return fmt.Errorf("%w: game %s key %s holds team %s", ErrInvalidDataset, gameID, id, t.TeamID)
			}
			if err := t.Validate(); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
			}
			if err := predates(t, g); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
			}
		}
	}
	for season, teams := range d.Teams {
		for id, t := range teams {
			if t.TeamID != id {
				return fmt.Errorf("%w: season %d key %s holds team %s", ErrInvalidDataset, season, id, t.TeamID)
			}
			if err := t.Validate(); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
			}
		}
	}
	for id, total := range d.Results {
		if !seen[id] {
			return fmt.Errorf("%w: result for unknown game %s", ErrInvalidDataset, id)
		}
		if total <= 0 {
			return fmt.Errorf("%w: game %s final total %v", ErrInvalidDataset, id, total)
		}
	}
	return nil
}

// Memory serves a validated Dataset. It is never mutated after
// construction.
type Memory struct {
	data  Dataset
	games map[string]model.Game
}

var _ Source = (*Memory)(nil)

// NewMemory validates ds and indexes it.
func NewMemory(ds Dataset) (*Memory, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{data: ds, games: make(map[string]model.Game, len(ds.Games))}
	for _, g := range ds.Games {
		m.games[g.ID] = g
	}
	return m, nil
}

// Games returns every game ordered by schedule then id.
func (m *Memory) Games(ctx context.Context) ([]model.Game, error) {
	out := append([]model.Game(nil), m.data.Games...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Scheduled.Equal(out[j].Scheduled) {
			return out[i].Scheduled.Before(out[j].Scheduled)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Game(ctx context.Context, id string) (model.Game, error) {
	g, ok := m.games[id]
	if !ok {
		return model.Game{}, fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	return g, nil
}

func (m *Memory) Team(ctx context.Context, teamID string, season int) (model.TeamSnapshot, error) {
	t, ok := m.data.Teams[season][teamID]
	if !ok {
		return model.TeamSnapshot{}, fmt.Errorf("%w: team %s season %d", ErrNotFound, teamID, season)
	}
	return t, nil
}

func (m *Memory) PreGame(ctx context.Context, gameID, teamID string) (model.TeamSnapshot, bool, error) {
	if _, ok := m.games[gameID]; !ok {
		return model.TeamSnapshot{}, false, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	t, ok := m.data.PreGame[gameID][teamID]
	return t, ok, nil
}

// Signals returns zero signals when none were recorded; adjustments then
// degrade to neutral values.
func (m *Memory) Signals(ctx context.Context, gameID string) (model.Signals, error) {
	if _, ok := m.games[gameID]; !ok {
		return model.Signals{}, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	return m.data.Signals[gameID], nil
}

func (m *Memory) Narrative(ctx context.Context, gameID string) (*model.Narrative, error) {
	n, ok := m.data.Narratives[gameID]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (m *Memory) FinalTotal(ctx context.Context, gameID string) (float64, bool, error) {
	if _, ok := m.games[gameID]; !ok {
		return 0, false, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	v, ok := m.data.Results[gameID]
	return v, ok, nil
}

// Input assembles everything the core needs for one game.
func Input(ctx context.Context, src Source, gameID string) (model.GameInput, error) {
	g, err := src.Game(ctx, gameID)
	if err != nil {
		return model.GameInput{}, err
	}
	return InputFor(ctx, src, g)
}

// InputFor is Input for a game already read from src.
func InputFor(ctx context.Context, src Source, g model.Game) (model.GameInput, error) {
	home, err := teamAsOf(ctx, src, g, g.HomeTeam)
	if err != nil {
		return model.GameInput{}, err
	}
	away, err := teamAsOf(ctx, src, g, g.AwayTeam)
	if err != nil {
		return model.GameInput{}, err
	}
	sig, err := src.Signals(ctx, g.ID)
	if err != nil {
		return model.GameInput{}, err
	}
	n, err := src.Narrative(ctx, g.ID)
	if err != nil {
		return model.GameInput{}, err
	}
	return model.GameInput{Game: g, Home: home, Away: away, Signals: sig, Narrative: n}, nil
}

// teamAsOf prefers the snapshot taken for g and falls back to the
// season-opening one. Either way it must predate tip-off.
func teamAsOf(ctx context.Context, src Source, g model.Game, teamID string) (model.TeamSnapshot, error) {
	t, ok, err := src.PreGame(ctx, g.ID, teamID)
	if err != nil {
		return model.TeamSnapshot{}, err
	}
	if !ok {
		if t, err = src.Team(ctx, teamID, g.Season); err != nil {
			return model.TeamSnapshot{}, err
		}
	}
	if err := predates(t, g); err != nil {
		return model.TeamSnapshot{}, err
	}
	return t, nil
}

// predates rejects a snapshot taken after g tipped off. Zero times are
// treated as unknown.
func predates(t model.TeamSnapshot, g model.Game) error {
	if t.AsOf.IsZero() || g.Scheduled.IsZero() || !t.AsOf.After(g.Scheduled) {
		return nil
	}
	return fmt.Errorf("%w: team %s as of %s, game %s at %s", ErrLookahead,
		t.TeamID, t.AsOf.Format(time.RFC3339), g.ID, g.Scheduled.Format(time.RFC3339))
}
