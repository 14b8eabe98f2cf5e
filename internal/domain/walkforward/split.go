// Package walkforward runs time-ordered train/test validation of pluggable
// models and computes betting metrics per season and per confidence cut-off.
package walkforward

import (
	"fmt"
	"sort"
)

// Row is one labelled game. Label is 1 when the over hit, 0 otherwise.
type Row struct {
	Season   int       `json:"season"`
	GameID   string    `json:"game_id"`
	Features []float64 `json:"features"`
	Label    float64   `json:"label"`
}

// Split is one train/test partition. It is never persisted.
type Split struct {
	ID           int
	TrainSeasons []int
	TestSeason   int
	Train        []Row
	Test         []Row
}

// Seasons returns the distinct seasons in rows, ascending.
func Seasons(rows []Row) []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range rows {
		if !seen[r.Season] {
			seen[r.Season] = true
			out = append(out, r.Season)
		}
	}
	sort.Ints(out)
	return out
}

// Splits generates one split per test season from cfg.StartTestSeason on.
// Training uses every earlier season, or only the last cfg.TrailingWindow of
// them when set. Seasons with fewer than cfg.MinTrainSeasons of history are
// skipped. Every split is checked before it is returned.
func Splits(cfg Config, rows []Row) ([]Split, error) {
	seasons := Seasons(rows)
	bySeason := make(map[int][]Row, len(seasons))
	for _, r := range rows {
		bySeason[r.Season] = append(bySeason[r.Season], r)
	}

	var out []Split
	for i, test := range seasons {
		if test < cfg.StartTestSeason {
			continue
		}
		train := seasons[:i]
		if cfg.TrailingWindow > 0 && len(train) > cfg.TrailingWindow {
			train = train[len(train)-cfg.TrailingWindow:]
		}
		if len(train) == 0 || len(train) < cfg.MinTrainSeasons {
			continue
		}

		s := Split{
			ID:           len(out),
			TrainSeasons: append([]int(nil), train...),
			TestSeason:   test,
			Test:         bySeason[test],
		}
		for _, season := range train {
			s.Train = append(s.Train, bySeason[season]...)
		}
		if err := CheckSplit(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d seasons, start %d, min train %d",
			ErrNoSplits, len(seasons), cfg.StartTestSeason, cfg.MinTrainSeasons)
	}
	return out, nil
}

// CheckSplit enforces that no training row is from the test season or later
// and that no game appears on both sides.
func CheckSplit(s Split) error {
	test := make(map[string]bool, len(s.Test))
	for _, r := range s.Test {
		if r.Season != s.TestSeason {
			return fmt.Errorf("%w: split %d test row %s from season %d", ErrLookAheadViolation, s.ID, r.GameID, r.Season)
		}
		test[r.GameID] = true
	}
	for _, r := range s.Train {
		if r.Season >= s.TestSeason {
			return fmt.Errorf("%w: split %d trains on season %d for test season %d",
				ErrLookAheadViolation, s.ID, r.Season, s.TestSeason)
		}
		if r.GameID != "" && test[r.GameID] {
			return fmt.Errorf("%w: split %d game %s in train and test", ErrLookAheadViolation, s.ID, r.GameID)
		}
	}
	return nil
}
