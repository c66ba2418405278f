package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/matchsight/matchsight/internal/domain/auditlog"
	qb "github.com/matchsight/matchsight/internal/platform/querybuilder"
)

type AuditLogRecorder struct {
	db *sqlx.DB
}

func NewAuditLogRecorder(db *sqlx.DB) *AuditLogRecorder {
	return &AuditLogRecorder{db: db}
}

func (r *AuditLogRecorder) RecordSystem(ctx context.Context, entry auditlog.SystemEntry) error {
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	payloadJSON, err := marshalJSONColumn(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal system log payload: %w", err)
	}

	model := systemLogTableModel{
		Event:     entry.Event,
		Kind:      string(entry.Kind),
		Payload:   payloadJSON,
		CreatedAt: createdAt,
	}
	query, args, err := qb.InsertModel("logs", model, "")
	if err != nil {
		return fmt.Errorf("build insert system log query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert system log event=%s: %w", entry.Event, err)
	}
	return nil
}

func (r *AuditLogRecorder) RecordAnalysis(ctx context.Context, entry auditlog.AnalysisEntry) error {
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	contextJSON, err := marshalJSONColumn(entry.Context)
	if err != nil {
		return fmt.Errorf("marshal analysis log context: %w", err)
	}

	model := analysisLogTableModel{
		AnalysisID: entry.AnalysisID,
		EventID:    entry.EventID,
		Level:      entry.Level,
		Message:    entry.Message,
		Context:    contextJSON,
		CreatedAt:  createdAt,
	}
	query, args, err := qb.InsertModel("analysis_logs", model, "")
	if err != nil {
		return fmt.Errorf("build insert analysis log query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert analysis log analysis_id=%s: %w", entry.AnalysisID, err)
	}
	return nil
}
