package models

import "time"

// SyncRecord is one entry of the sync history log.
type SyncRecord struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId,omitempty"`
	Provider    ProviderID `json:"provider"`
	Label       MoodLabel  `json:"label"`
	Score       float64    `json:"score"`
	Source      string     `json:"source"`
	SampleCount int        `json:"sampleCount"`
	SyncedAt    time.Time  `json:"syncedAt"`
}
