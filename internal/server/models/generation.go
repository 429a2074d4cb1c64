package models

import "time"

type GenerationStatus string

const (
	GenerationSuccess GenerationStatus = "success"
	GenerationFailure GenerationStatus = "failure"
)

// GenerationRecord is the immutable audit row written once per synthesis
// attempt, whatever its outcome.
type GenerationRecord struct {
	ID             int64
	Email          string
	GeneratedAt    time.Time
	ProcessingTime time.Duration
	MP3FileSize    int64
	InputTextSize  int
	OutputFile     string
	Status         GenerationStatus
}
