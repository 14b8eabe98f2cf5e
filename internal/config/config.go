// Package config defines process configuration and its loading.
//
// Conventions:
//   - New(ctx) returns a Config with every default filled in.
//   - Load(ctx) layers a YAML file and COURTSIDE_* env vars over the defaults.
//   - Domain sections reuse the domain packages' own Config types so a
//     tunable is declared exactly once.
package config

import (
	"context"
	"runtime"

	"github.com/okian/courtside/internal/domain/adjust"
	"github.com/okian/courtside/internal/domain/edge"
	"github.com/okian/courtside/internal/domain/learning"
	"github.com/okian/courtside/internal/domain/projection"
	"github.com/okian/courtside/internal/domain/simulation"
	"github.com/okian/courtside/internal/domain/tiers"
	"github.com/okian/courtside/internal/domain/walkforward"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the ops HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory analysis queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the submitted-game guard.
	DedupeSize int `koanf:"dedupe_size"`

	// SnapshotPath is the JSON dataset the snapshot source reads.
	SnapshotPath string `koanf:"snapshot_path"`

	Projection projection.Config  `koanf:"projection"`
	Adjust     adjust.Config      `koanf:"adjust"`
	Simulation simulation.Config  `koanf:"simulation"`
	Edge       edge.Config        `koanf:"edge"`
	Tiers      tiers.Table        `koanf:"tiers"`
	Validation walkforward.Config `koanf:"validation"`
	Learning   learning.Config    `koanf:"learning"`

	Store     StoreConfig     `koanf:"store"`
	Publisher PublisherConfig `koanf:"publisher"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
}

// StoreConfig selects the decision store. An empty DSN keeps decisions in
// memory.
type StoreConfig struct {
	PostgresDSN string `koanf:"postgres_dsn"`
	Migrate     bool   `koanf:"migrate"`
}

// PublisherConfig selects the decision publisher. An empty address logs
// decisions instead.
type PublisherConfig struct {
	RedisAddr string `koanf:"redis_addr"`
	Stream    string `koanf:"stream"`
	MaxLen    int64  `koanf:"max_len"`
}

// ScheduleConfig holds cron specs for the batch jobs. Empty disables a job.
type ScheduleConfig struct {
	SettleCron     string `koanf:"settle_cron"`
	SynthesizeCron string `koanf:"synthesize_cron"`
	CalibrateCron  string `koanf:"calibrate_cron"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Addr:        ":9080",
		QueueSize:   10_000,
		WorkerCount: runtime.NumCPU(),
		DedupeSize:  100_000,

		Projection: projection.DefaultConfig(),
		Adjust:     adjust.DefaultConfig(),
		Simulation: simulation.DefaultConfig(),
		Edge:       edge.DefaultConfig(),
		Tiers:      tiers.Default(),
		Validation: walkforward.DefaultConfig(),
		Learning:   learning.DefaultConfig(),

		Publisher: PublisherConfig{Stream: "decisions.recorded"},
		Schedule: ScheduleConfig{
			SettleCron:     "*/30 * * * *",
			SynthesizeCron: "0 4 * * *",
			CalibrateCron:  "30 4 * * *",
		},
	}
}
