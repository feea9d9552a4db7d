package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRendering JobStatus = "rendering"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// RenderJob represents a queued video render in the system
type RenderJob struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    float64        `json:"progress"`
	OutputPath  string         `json:"outputPath,omitempty"`
	Error       *string        `json:"error,omitempty"`
	Input       *ResolvedInput `json:"-"`
	TempFiles   []string       `json:"-"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// IsTerminal reports whether the job reached a final state.
func (j *RenderJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
