package walkforward

import "errors"

// Sentinel kinds for validator errors. ErrLookAheadViolation is fatal and
// aborts the run.
var (
	ErrLookAheadViolation = errors.New("look-ahead violation")
	ErrNoSplits           = errors.New("no walk-forward splits")
	ErrPredictionCount    = errors.New("prediction count mismatch")
	ErrEmptyTrainingSet   = errors.New("empty training set")
)
