package walkforward

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CalibrationBin is one predicted-probability bin.
type CalibrationBin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int     `json:"count"`
	MeanPredicted float64 `json:"mean_predicted"`
	ObservedRate  float64 `json:"observed_rate"`
}

// Metrics are the betting and calibration figures for one set of
// predictions.
type Metrics struct {
	Season       int   `json:"season,omitempty"`
	TrainSeasons []int `json:"train_seasons,omitempty"`
	TrainRows    int   `json:"train_rows,omitempty"`
	TestRows     int   `json:"test_rows"`

	Bets        int     `json:"bets"`
	Wins        int     `json:"wins"`
	Accuracy    float64 `json:"accuracy"`
	Units       float64 `json:"units"`
	ROI         float64 `json:"roi"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Sharpe      float64 `json:"sharpe"`

	Brier       float64          `json:"brier"`
	ECE         float64          `json:"ece"`
	Calibration []CalibrationBin `json:"calibration"`
}

// BetReturns places a unit bet on every prediction whose distance from 0.5
// reaches threshold: over when p > 0.5, under when p < 0.5. It returns the
// per-bet unit returns at fixed decimal odds and the number of winners.
func BetReturns(probs, labels []float64, threshold, odds float64) (returns []float64, wins int) {
	for i, p := range probs {
		if p == 0.5 || math.Abs(p-0.5) < threshold {
			continue
		}
		hit := (p > 0.5) == (labels[i] >= 0.5)
		if hit {
			wins++
			returns = append(returns, odds-1)
		} else {
			returns = append(returns, -1)
		}
	}
	return returns, wins
}

// MaxDrawdown is the largest peak-to-trough fall of the cumulative equity
// curve, in units, starting from zero.
func MaxDrawdown(returns []float64) float64 {
	var equity, peak, dd float64
	for _, r := range returns {
		equity += r
		peak = math.Max(peak, equity)
		dd = math.Max(dd, peak-equity)
	}
	return dd
}

// Sharpe is mean over standard deviation of per-bet returns, annualised by
// the square root of bets per season.
func Sharpe(returns []float64, betsPerSeason float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, sd := stat.MeanStdDev(returns, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(betsPerSeason)
}

// Brier is the mean squared error of probabilities against labels.
func Brier(probs, labels []float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	diff := make([]float64, len(probs))
	floats.SubTo(diff, probs, labels)
	return floats.Dot(diff, diff) / float64(len(probs))
}

// Calibrate bins predictions into n equal-width bins over [0, 1] and returns
// the bins with the expected calibration error.
func Calibrate(probs, labels []float64, n int) ([]CalibrationBin, float64) {
	if n <= 0 {
		n = 10
	}
	bins := make([]CalibrationBin, n)
	sumP := make([]float64, n)
	sumY := make([]float64, n)
	for i := range bins {
		bins[i].Lower = float64(i) / float64(n)
		bins[i].Upper = float64(i+1) / float64(n)
	}
	for i, p := range probs {
		b := int(p * float64(n))
		if b >= n {
			b = n - 1
		}
		if b < 0 {
			b = 0
		}
		bins[b].Count++
		sumP[b] += p
		sumY[b] += labels[i]
	}

	var ece float64
	total := float64(len(probs))
	for i := range bins {
		if bins[i].Count == 0 {
			continue
		}
		c := float64(bins[i].Count)
		bins[i].MeanPredicted = sumP[i] / c
		bins[i].ObservedRate = sumY[i] / c
		ece += c / total * math.Abs(bins[i].MeanPredicted-bins[i].ObservedRate)
	}
	return bins, ece
}

// Evaluate computes Metrics for predictions at the given threshold.
func Evaluate(probs, labels []float64, threshold, odds float64, bins int) Metrics {
	returns, wins := BetReturns(probs, labels, threshold, odds)
	m := Metrics{
		TestRows:    len(probs),
		Bets:        len(returns),
		Wins:        wins,
		Units:       floats.Sum(returns),
		MaxDrawdown: MaxDrawdown(returns),
		Sharpe:      Sharpe(returns, float64(len(returns))),
		Brier:       Brier(probs, labels),
	}
	if m.Bets > 0 {
		m.Accuracy = float64(wins) / float64(m.Bets)
		m.ROI = m.Units / float64(m.Bets)
	}
	m.Calibration, m.ECE = Calibrate(probs, labels, bins)
	return m
}
