package postgres

import "time"

type systemLogTableModel struct {
	Event     string    `db:"event"`
	Kind      string    `db:"kind"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

type analysisLogTableModel struct {
	AnalysisID string    `db:"analysis_id"`
	EventID    string    `db:"event_id"`
	Level      string    `db:"level"`
	Message    string    `db:"message"`
	Context    string    `db:"context"`
	CreatedAt  time.Time `db:"created_at"`
}
