// Package simulation runs the Monte Carlo model of a game total: paired,
// correlated normal scores per side with an overtime mixture.
package simulation

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/okian/courtside/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// MinSims is the smallest run that keeps p_over stable to about a point.
const MinSims = 5000

// Sentinel kinds for simulation errors.
var (
	ErrInvalidParams = errors.New("invalid simulation parameters")
)

// Config holds the simulator settings.
type Config struct {
	NSims        int     `koanf:"n_sims"`
	Correlation  float64 `koanf:"correlation"`
	OvertimeProb float64 `koanf:"overtime_prob"`
	OvertimeBump float64 `koanf:"overtime_bump"`
	// Seed fixes every run when non-zero; otherwise runs seed from the game id.
	Seed uint64 `koanf:"seed"`
}

// DefaultConfig returns the stock simulator settings.
func DefaultConfig() Config {
	return Config{
		NSims:        10_000,
		Correlation:  0.5,
		OvertimeProb: 0.06,
		OvertimeBump: 12,
	}
}

// Params is one simulation request.
type Params struct {
	HomeMean    float64
	AwayMean    float64
	HomeStdDev  float64
	AwayStdDev  float64
	Line        float64
	Correlation float64
	NSims       int
	Seed        uint64
}

// Simulator is safe for concurrent use; each run owns its generator.
type Simulator struct {
	cfg Config
}

// New returns a simulator for cfg.
func New(cfg Config) *Simulator {
	return &Simulator{cfg: cfg}
}

// ParamsFor builds run parameters from a projection using the configured
// correlation and run size. The seed is derived from key unless fixed.
func (s *Simulator) ParamsFor(p model.Projection, line float64, key string) Params {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = SeedFor(key)
	}
	return Params{
		HomeMean:    p.HomeMean,
		AwayMean:    p.AwayMean,
		HomeStdDev:  p.HomeStdDev,
		AwayStdDev:  p.AwayStdDev,
		Line:        line,
		Correlation: s.cfg.Correlation,
		NSims:       s.cfg.NSims,
		Seed:        seed,
	}
}

// SeedFor hashes key into a stable seed.
func SeedFor(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// Validate checks p before a run.
func (p Params) Validate() error {
	switch {
	case p.NSims < MinSims:
		return fmt.Errorf("%w: n_sims %d below %d", ErrInvalidParams, p.NSims, MinSims)
	case p.HomeStdDev <= 0 || p.AwayStdDev <= 0:
		return fmt.Errorf("%w: std devs must be positive", ErrInvalidParams)
	case p.Correlation < -1 || p.Correlation > 1:
		return fmt.Errorf("%w: correlation %v outside [-1, 1]", ErrInvalidParams, p.Correlation)
	case p.HomeMean <= 0 || p.AwayMean <= 0 || p.Line <= 0:
		return fmt.Errorf("%w: means and line must be positive", ErrInvalidParams)
	}
	for _, v := range []float64{p.HomeMean, p.AwayMean, p.HomeStdDev, p.AwayStdDev, p.Line} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite input", ErrInvalidParams)
		}
	}
	return nil
}

// Run simulates p.NSims games. Side scores are rounded to whole points, so a
// whole-number line can push; pushes are counted separately from over and
// under. Percentiles come from the empirical distribution.
func (s *Simulator) Run(p Params) (model.SimulationResult, error) {
	if err := p.Validate(); err != nil {
		return model.SimulationResult{}, err
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	rho := p.Correlation
	ortho := math.Sqrt(1 - rho*rho)

	totals := make([]float64, p.NSims)
	var over, under, push int
	for i := range totals {
		z1 := rng.NormFloat64()
		z2 := rho*z1 + ortho*rng.NormFloat64()

		home := math.Max(0, math.Round(p.HomeMean+p.HomeStdDev*z1))
		away := math.Max(0, math.Round(p.AwayMean+p.AwayStdDev*z2))
		total := home + away
		if rng.Float64() < s.cfg.OvertimeProb {
			total += s.cfg.OvertimeBump
		}
		totals[i] = total

		switch {
		case total > p.Line:
			over++
		case total < p.Line:
			under++
		default:
			push++
		}
	}

	sort.Float64s(totals)
	n := float64(p.NSims)
	mean, sd := stat.MeanStdDev(totals, nil)
	median := stat.Quantile(0.5, stat.Empirical, totals, nil)
	return model.SimulationResult{
		Mean:   mean,
		Median: median,
		StdDev: sd,
		P5:     stat.Quantile(0.05, stat.Empirical, totals, nil),
		P50:    median,
		P95:    stat.Quantile(0.95, stat.Empirical, totals, nil),
		POver:  float64(over) / n,
		PUnder: float64(under) / n,
		PPush:  float64(push) / n,
		NSims:  p.NSims,
		Seed:   p.Seed,
	}, nil
}
