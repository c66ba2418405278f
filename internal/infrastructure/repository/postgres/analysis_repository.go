package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/matchsight/matchsight/internal/domain/analysis"
	"github.com/matchsight/matchsight/internal/platform/id"
	qb "github.com/matchsight/matchsight/internal/platform/querybuilder"
)

type AnalysisRepository struct {
	db  *sqlx.DB
	ids id.Generator
}

func NewAnalysisRepository(db *sqlx.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db, ids: id.NewRandomGenerator()}
}

func (r *AnalysisRepository) Insert(ctx context.Context, record analysis.Analysis) (analysis.Analysis, error) {
	if strings.TrimSpace(record.ID) == "" {
		newID, err := r.ids.NewID()
		if err != nil {
			return analysis.Analysis{}, fmt.Errorf("generate analysis id: %w", err)
		}
		record.ID = newID
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	parametersJSON, err := marshalJSONColumn(record.Parameters)
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("marshal analysis parameters: %w", err)
	}
	contentJSON, err := marshalJSONColumn(record.Content)
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("marshal analysis content: %w", err)
	}

	model := analysisTableModel{
		ID:         record.ID,
		EventID:    record.EventID,
		Type:       record.Type,
		Status:     record.Status,
		Checksum:   record.Checksum,
		Parameters: parametersJSON,
		Content:    contentJSON,
		StartedAt:  record.StartedAt.UTC(),
		FinishedAt: record.FinishedAt.UTC(),
		DurationMS: record.DurationMS,
		CreatedAt:  record.CreatedAt.UTC(),
	}

	query, args, err := qb.InsertModel("analyses", model, "")
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("build insert analysis query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return analysis.Analysis{}, fmt.Errorf("insert analysis event_id=%s: %w", record.EventID, err)
	}

	return record, nil
}

func (r *AnalysisRepository) GetByID(ctx context.Context, analysisID string) (analysis.Analysis, bool, error) {
	query, args, err := qb.Select("*").From("analyses").
		Where(qb.Eq("id", analysisID)).
		ToSQL()
	if err != nil {
		return analysis.Analysis{}, false, fmt.Errorf("build select analysis by id query: %w", err)
	}

	var row analysisTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return analysis.Analysis{}, false, nil
		}
		return analysis.Analysis{}, false, fmt.Errorf("select analysis by id: %w", err)
	}

	record, err := row.toDomain()
	if err != nil {
		return analysis.Analysis{}, false, err
	}
	return record, true, nil
}

func (r *AnalysisRepository) FindByEventAndChecksum(ctx context.Context, eventID, checksum string) (analysis.Analysis, bool, error) {
	query, args, err := qb.Select("*").From("analyses").
		Where(
			qb.Eq("event_id", eventID),
			qb.Eq("checksum", checksum),
		).
		OrderBy("finished_at DESC").
		Limit(1).
		ToSQL()
	if err != nil {
		return analysis.Analysis{}, false, fmt.Errorf("build select analysis by checksum query: %w", err)
	}

	var row analysisTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return analysis.Analysis{}, false, nil
		}
		return analysis.Analysis{}, false, fmt.Errorf("select analysis by checksum: %w", err)
	}

	record, err := row.toDomain()
	if err != nil {
		return analysis.Analysis{}, false, err
	}
	return record, true, nil
}

func (r *AnalysisRepository) ListByEvent(ctx context.Context, eventID string) ([]analysis.Analysis, error) {
	query, args, err := qb.Select("*").From("analyses").
		Where(qb.Eq("event_id", eventID)).
		OrderBy("created_at DESC").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select analyses by event query: %w", err)
	}

	var rows []analysisTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select analyses by event: %w", err)
	}

	out := make([]analysis.Analysis, 0, len(rows))
	for _, row := range rows {
		record, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (m analysisTableModel) toDomain() (analysis.Analysis, error) {
	record := analysis.Analysis{
		ID:         m.ID,
		EventID:    m.EventID,
		Type:       m.Type,
		Status:     m.Status,
		Checksum:   m.Checksum,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		DurationMS: m.DurationMS,
		CreatedAt:  m.CreatedAt,
	}
	if strings.TrimSpace(m.Parameters) != "" {
		if err := jsoniter.UnmarshalFromString(m.Parameters, &record.Parameters); err != nil {
			return analysis.Analysis{}, fmt.Errorf("unmarshal analysis parameters id=%s: %w", m.ID, err)
		}
	}
	if strings.TrimSpace(m.Content) != "" {
		if err := jsoniter.UnmarshalFromString(m.Content, &record.Content); err != nil {
			return analysis.Analysis{}, fmt.Errorf("unmarshal analysis content id=%s: %w", m.ID, err)
		}
	}
	return record, nil
}

func marshalJSONColumn(value any) (string, error) {
	if value == nil {
		return "{}", nil
	}
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
