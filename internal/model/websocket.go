package model

// WebSocket message types
type WSMessageType string

const (
	WSMessageTypeProgress WSMessageType = "progress"
	WSMessageTypeComplete WSMessageType = "complete"
	WSMessageTypeError    WSMessageType = "error"
)

// WSProgressMessage is pushed to subscribers while a job renders.
type WSProgressMessage struct {
	Type     WSMessageType `json:"type"`
	JobID    string        `json:"jobId"`
	Progress float64       `json:"progress"`
	Status   JobStatus     `json:"status"`
}

// WSCompleteMessage is pushed once a job finishes successfully.
type WSCompleteMessage struct {
	Type  WSMessageType `json:"type"`
	JobID string        `json:"jobId"`
}

// WSErrorMessage is pushed when a job fails.
type WSErrorMessage struct {
	Type  WSMessageType `json:"type"`
	JobID string        `json:"jobId"`
	Error WSError       `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
