package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	app "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/internal/domain/walkforward"
	"github.com/okian/courtside/internal/synthetic"
	"github.com/okian/courtside/pkg/logger"
)

func main() {
	def := synthetic.DefaultConfig()
	var (
		rowsPath = flag.String("rows", "", "JSON file of feature rows; a synthetic league is generated when empty")
		seed     = flag.Uint64("seed", def.Seed, "Synthetic league seed")
		seasons  = flag.Int("seasons", def.Seasons, "Synthetic seasons")
		teams    = flag.Int("teams", def.Teams, "Synthetic teams")
		perTeam  = flag.Int("games-per-team", def.GamesPerTeam, "Synthetic games per team per season")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	ctx := context.Background()
	log := logger.Get()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	rows, err := loadRows(ctx, *rowsPath, synthetic.Config{
		Seed:         *seed,
		FirstSeason:  def.FirstSeason,
		Seasons:      *seasons,
		Teams:        *teams,
		GamesPerTeam: *perTeam,
	})
	if err != nil {
		log.Error(ctx, "failed to load rows", logger.Error(err))
		os.Exit(1)
	}

	rep, err := app.New(cfg).Validate(ctx, rows)
	if err != nil {
		log.Error(ctx, "walk-forward validation failed", logger.Error(err))
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}

func loadRows(ctx context.Context, path string, lc synthetic.Config) ([]walkforward.Row, error) {
	if path == "" {
		lg, err := synthetic.Generate(ctx, lc)
		if err != nil {
			return nil, err
		}
		return lg.Rows, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []walkforward.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}
