package walkforward

// SweepRow is the outcome of betting only predictions at least Threshold
// away from 0.5.
type SweepRow struct {
	Threshold float64 `json:"threshold"`
	Bets      int     `json:"bets"`
	Accuracy  float64 `json:"accuracy"`
	ROI       float64 `json:"roi"`
	Units     float64 `json:"units"`
	Sharpe    float64 `json:"sharpe"`
	// Reliable is false when fewer than the minimum bets qualify.
	Reliable bool `json:"reliable"`
}

// Sweep re-filters predictions at each threshold. betsPerSeason annualises
// the Sharpe ratio.
func Sweep(probs, labels, thresholds []float64, odds float64, minBets int, betsPerSeason float64) []SweepRow {
	out := make([]SweepRow, 0, len(thresholds))
	for _, th := range thresholds {
		returns, wins := BetReturns(probs, labels, th, odds)
		row := SweepRow{
			Threshold: th,
			Bets:      len(returns),
			Reliable:  len(returns) >= minBets,
		}
		if row.Bets > 0 {
			for _, r := range returns {
				row.Units += r
			}
			row.Accuracy = float64(wins) / float64(row.Bets)
			row.ROI = row.Units / float64(row.Bets)
			// Scale to the share of a season this threshold would bet.
			share := float64(row.Bets) / float64(len(probs))
			row.Sharpe = Sharpe(returns, betsPerSeason*share)
		}
		out = append(out, row)
	}
	return out
}

// Best picks the reliable row with the highest Sharpe ratio.
func Best(rows []SweepRow) (SweepRow, bool) {
	var best SweepRow
	found := false
	for _, r := range rows {
		if !r.Reliable {
			continue
		}
		if !found || r.Sharpe > best.Sharpe {
			best, found = r, true
		}
	}
	return best, found
}
