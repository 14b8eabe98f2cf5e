package model

import "time"

// AnalysisJob asks the pipeline to analyse one game. Input is optional; when
// nil the game is read from the snapshot source.
type AnalysisJob struct {
	GameID    string     `json:"game_id"`
	Input     *GameInput `json:"input,omitempty"`
	Submitted time.Time  `json:"submitted"`
}
