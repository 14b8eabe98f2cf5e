package repository

import "errors"

// Sentinel kinds for store errors. ErrDoubleSettlement is fatal to a
// settlement batch.
var (
	ErrNotFound          = errors.New("decision not found")
	ErrDuplicate         = errors.New("decision already exists")
	ErrDoubleSettlement  = errors.New("decision already settled")
	ErrInvalidSettlement = errors.New("invalid settlement")
)
