package models

import "time"

// UsageRecord counts calls to one endpoint by one identity.
type UsageRecord struct {
	Email     string    `json:"email"`
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}
