// Package adjust is the adjustment library: independent pure functions that
// each turn one statistical signal into a signed point adjustment to a
// projected game total.
package adjust

// Config holds every tunable of the library. Values are hand-tuned
// calibration inputs, not invariants.
type Config struct {
	B2BPenalty     float64 `koanf:"b2b_penalty"`
	B2BStackFactor float64 `koanf:"b2b_stack_factor"`
	RestedDays     int     `koanf:"rested_days"`
	RestedBonus    float64 `koanf:"rested_bonus"`

	FatigueThreshold float64 `koanf:"fatigue_threshold"`
	FatiguePoints    float64 `koanf:"fatigue_points"`

	OpponentWeight float64 `koanf:"opponent_weight"`

	VenueMinGames int     `koanf:"venue_min_games"`
	VenueWeight   float64 `koanf:"venue_weight"`

	H2HMinMeetings int     `koanf:"h2h_min_meetings"`
	H2HDamping     float64 `koanf:"h2h_damping"`

	TrendMinSamples   int     `koanf:"trend_min_samples"`
	TrendStrongMargin float64 `koanf:"trend_strong_margin"`
	TrendStrongPoints float64 `koanf:"trend_strong_points"`
	TrendMildMargin   float64 `koanf:"trend_mild_margin"`
	TrendMildPoints   float64 `koanf:"trend_mild_points"`

	PaceWeight float64 `koanf:"pace_weight"`

	NarrativeMax      float64 `koanf:"narrative_max"`
	NarrativeLowScale float64 `koanf:"narrative_low_scale"`
}

// DefaultConfig returns the stock library settings.
func DefaultConfig() Config {
	return Config{
		B2BPenalty:     -3.0,
		B2BStackFactor: 0.5,
		RestedDays:     3,
		RestedBonus:    1.5,

		FatigueThreshold: 0.5,
		FatiguePoints:    2.0,

		OpponentWeight: 0.5,

		VenueMinGames: 5,
		VenueWeight:   0.5,

		H2HMinMeetings: 3,
		H2HDamping:     0.3,

		TrendMinSamples:   10,
		TrendStrongMargin: 6.0,
		TrendStrongPoints: 3.0,
		TrendMildMargin:   3.0,
		TrendMildPoints:   1.5,

		PaceWeight: 0.5,

		NarrativeMax:      6.0,
		NarrativeLowScale: 0.5,
	}
}
