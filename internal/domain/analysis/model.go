package analysis

import (
	"context"
	"time"
)

const (
	TypeAI = "ai"

	StatusCompleted = "completed"
)

// Content is the structured body of a generated analysis. Raw preserves
// the full model output so sections can be re-derived later.
type Content struct {
	Summary         string `json:"summary"`
	Details         string `json:"details"`
	Recommendations string `json:"recommendations"`
	Model           string `json:"model"`
	Raw             string `json:"raw"`
}

// Analysis is a persisted generation run. Checksum fingerprints the
// event snapshot the run was generated from; together with EventID it
// forms the idempotency key.
type Analysis struct {
	ID         string         `json:"id"`
	EventID    string         `json:"eventId"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Checksum   string         `json:"checksum"`
	Parameters map[string]any `json:"parameters"`
	Content    Content        `json:"content"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	DurationMS int64          `json:"durationMs"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Repository stores completed analyses. Insert assigns ID and CreatedAt
// when they are unset.
type Repository interface {
	Insert(ctx context.Context, a Analysis) (Analysis, error)
	GetByID(ctx context.Context, id string) (Analysis, bool, error)
	FindByEventAndChecksum(ctx context.Context, eventID, checksum string) (Analysis, bool, error)
	ListByEvent(ctx context.Context, eventID string) ([]Analysis, error)
}
