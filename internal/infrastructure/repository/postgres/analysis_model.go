package postgres

import "time"

type analysisTableModel struct {
	ID         string    `db:"id"`
	EventID    string    `db:"event_id"`
	Type       string    `db:"type"`
	Status     string    `db:"status"`
	Checksum   string    `db:"checksum"`
	Parameters string    `db:"parameters"`
	Content    string    `db:"content"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}
