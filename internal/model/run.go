package model

import "time"

// RunStatus tracks a batch enrichment run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one batch enrichment execution over pending articles.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Article enrichment states as stored alongside each article.
const (
	ArticleStatusPending   = "pending"
	ArticleStatusProcessed = "processed"
	ArticleStatusError     = "error"
)
