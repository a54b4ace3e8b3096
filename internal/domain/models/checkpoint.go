package models

import "time"

// Checkpoint is the persisted progress of a batch recompute job. Every item
// ordered at or before Watermark has been processed.
type Checkpoint struct {
	JobID     string    `json:"job_id"`
	Watermark ScoreKey  `json:"watermark"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	UpdatedAt time.Time `json:"updated_at"`
}
