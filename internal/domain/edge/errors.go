package edge

import "errors"

// Sentinel kinds for engine errors.
var (
	ErrInvalidOdds        = errors.New("invalid odds")
	ErrInvalidProbability = errors.New("invalid probability")
	ErrNoSelection        = errors.New("decision has no selection")
)

// ReasonInsufficientConfidence is reported when no valid probability or edge
// could be produced for a game.
const ReasonInsufficientConfidence = "insufficient confidence"

// ReasonNonPositiveEV is reported when the best side clears an edge tier
// against the de-vigged price but still loses money at the offered odds.
const ReasonNonPositiveEV = "non-positive expected value"
