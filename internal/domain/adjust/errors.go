package adjust

import "errors"

// Sentinel kinds for adjustment errors. Adjustments never fail the caller;
// these travel inside Detail.Err for logging and metrics.
var (
	ErrInsufficientData = errors.New("insufficient data")
)
