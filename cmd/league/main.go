package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/courtside/internal/adapters/snapshot"
	"github.com/okian/courtside/internal/synthetic"
	"github.com/okian/courtside/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	defaultTimeout = 30 * time.Second
	runTimeout     = 10 * time.Minute
)

func main() {
	def := synthetic.DefaultConfig()
	var (
		seed     = flag.Uint64("seed", def.Seed, "Random seed; the same seed yields the same league")
		first    = flag.Int("first-season", def.FirstSeason, "First season year")
		seasons  = flag.Int("seasons", def.Seasons, "Number of seasons")
		teams    = flag.Int("teams", def.Teams, "Number of teams")
		perTeam  = flag.Int("games-per-team", def.GamesPerTeam, "Games per team per season")
		output   = flag.String("output", "", "Write the snapshot dataset to this JSON file")
		baseURL  = flag.String("url", "", "Submit every game to this running server, e.g. http://localhost:9080")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		jsonLogs = flag.Bool("json", false, "Log as JSON")
	)
	flag.Parse()

	format := "text"
	if *jsonLogs {
		format = "json"
	}
	if err := logger.Init(logger.WithFormat(format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	lg, err := synthetic.Generate(ctx, synthetic.Config{
		Seed:         *seed,
		FirstSeason:  *first,
		Seasons:      *seasons,
		Teams:        *teams,
		GamesPerTeam: *perTeam,
	})
	if err != nil {
		log.Error(ctx, "league generation failed", logger.Error(err))
		os.Exit(1)
	}

	if *output != "" {
		if err := snapshot.WriteFile(*output, lg.Dataset); err != nil {
			log.Error(ctx, "failed to write dataset", logger.Error(err))
			os.Exit(1)
		}
		log.Info(ctx, "dataset written", logger.String("path", *output))
	}

	if *baseURL == "" {
		return
	}
	cfg := synthetic.SubmitConfig{BaseURL: *baseURL, Workers: *workers, Timeout: *timeout}
	if err := synthetic.CheckHealth(ctx, cfg); err != nil {
		log.Error(ctx, "service health check failed", logger.Error(err))
		os.Exit(1)
	}
	inputs, err := synthetic.Inputs(ctx, lg.Dataset)
	if err != nil {
		log.Error(ctx, "failed to resolve inputs", logger.Error(err))
		os.Exit(1)
	}
	st, err := synthetic.Submit(ctx, cfg, inputs)
	if err != nil {
		log.Error(ctx, "submission interrupted", logger.Error(err))
		os.Exit(1)
	}
	_ = json.NewEncoder(os.Stdout).Encode(st)
}
