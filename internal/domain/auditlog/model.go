package auditlog

import (
	"context"
	"time"
)

const (
	KindInfo  = "info"
	KindError = "error"
)

// SystemEntry is a free-form operational event, such as a prompt sent
// to the generation provider or a rejected generation request.
type SystemEntry struct {
	Event     string         `json:"event"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AnalysisEntry is a log line tied to a specific analysis run.
type AnalysisEntry struct {
	AnalysisID string         `json:"analysisId"`
	EventID    string         `json:"eventId"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Recorder persists audit entries. Callers treat failures as
// best-effort: a recorder error never fails the operation being logged.
type Recorder interface {
	RecordSystem(ctx context.Context, entry SystemEntry) error
	RecordAnalysis(ctx context.Context, entry AnalysisEntry) error
}
