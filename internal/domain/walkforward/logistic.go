package walkforward

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Model is any statistical model the validator can fit and score.
// Predict returns the probability the over hits, one per row.
type Model interface {
	Fit(ctx context.Context, rows []Row) error
	Predict(ctx context.Context, rows []Row) ([]float64, error)
}

// LogisticModel is an L2-regularised logistic regression on standardised
// features, fitted with L-BFGS.
type LogisticModel struct {
	L2 float64

	weights []float64 // intercept first
	mean    []float64
	scale   []float64
}

// NewLogisticModel returns an unfitted model.
func NewLogisticModel(l2 float64) *LogisticModel {
	return &LogisticModel{L2: l2}
}

// Fit estimates the weights from rows.
func (m *LogisticModel) Fit(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return ErrEmptyTrainingSet
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	k := len(rows[0].Features)
	m.mean = make([]float64, k)
	m.scale = make([]float64, k)
	col := make([]float64, len(rows))
	for j := 0; j < k; j++ {
		for i, r := range rows {
			if len(r.Features) != k {
				return fmt.Errorf("row %s has %d features, want %d", r.GameID, len(r.Features), k)
			}
			col[i] = r.Features[j]
		}
		mu, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		m.mean[j], m.scale[j] = mu, sd
	}

	xs := make([][]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, r := range rows {
		xs[i] = m.design(r.Features)
		ys[i] = r.Label
	}
	n := float64(len(rows))

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			var loss float64
			for i, x := range xs {
				z := floats.Dot(w, x)
				loss += softplus(z) - ys[i]*z
			}
			return loss/n + m.penalty(w)
		},
		Grad: func(grad, w []float64) {
			for j := range grad {
				grad[j] = 0
			}
			for i, x := range xs {
				r := sigmoid(floats.Dot(w, x)) - ys[i]
				for j := range grad {
					grad[j] += r * x[j]
				}
			}
			for j := range grad {
				grad[j] /= n
				if j > 0 {
					grad[j] += m.L2 * w[j]
				}
			}
		},
	}

	settings := optimize.Settings{
		FuncEvaluations:   1000,
		GradientThreshold: 1e-8,
	}
	result, err := optimize.Minimize(problem, make([]float64, k+1), &settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("fit logistic model: %w", err)
	}
	// Line-search stalls still leave a usable minimiser.
	m.weights = result.X
	return nil
}

// Predict returns the fitted probability for each row.
func (m *LogisticModel) Predict(ctx context.Context, rows []Row) ([]float64, error) {
	if m.weights == nil {
		return nil, fmt.Errorf("predict: %w", ErrEmptyTrainingSet)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		if len(r.Features) != len(m.mean) {
			return nil, fmt.Errorf("row %s has %d features, want %d", r.GameID, len(r.Features), len(m.mean))
		}
		out[i] = sigmoid(floats.Dot(m.weights, m.design(r.Features)))
	}
	return out, nil
}

func (m *LogisticModel) design(f []float64) []float64 {
	x := make([]float64, len(f)+1)
	x[0] = 1
	for j, v := range f {
		x[j+1] = (v - m.mean[j]) / m.scale[j]
	}
	return x
}

func (m *LogisticModel) penalty(w []float64) float64 {
	var s float64
	for _, v := range w[1:] {
		s += v * v
	}
	return 0.5 * m.L2 * s
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softplus(z float64) float64 {
	if z > 30 {
		return z
	}
	return math.Log1p(math.Exp(z))
}
