package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matchsight/matchsight/internal/domain/analysis"
	"github.com/matchsight/matchsight/internal/domain/auditlog"
	"github.com/matchsight/matchsight/internal/domain/event"
	"github.com/matchsight/matchsight/internal/platform/id"
	"github.com/matchsight/matchsight/internal/platform/logging"
	"github.com/matchsight/matchsight/internal/platform/stablejson"
)

// promptLogLimit caps the prompt excerpt persisted to the audit log.
const promptLogLimit = 4000

// AnalysisService generates AI match analyses with content-addressed
// idempotency: the same event snapshot never triggers a second
// generation call.
type AnalysisService struct {
	repo      analysis.Repository
	audit     auditlog.Recorder
	generator TextGenerator
	ids       id.Generator
	logger    *logging.Logger
	now       func() time.Time
}

func NewAnalysisService(repo analysis.Repository, audit auditlog.Recorder, generator TextGenerator, ids id.Generator, logger *logging.Logger) *AnalysisService {
	if logger == nil {
		logger = logging.Default()
	}
	if ids == nil {
		ids = id.NewRandomGenerator()
	}
	return &AnalysisService{
		repo:      repo,
		audit:     audit,
		generator: generator,
		ids:       ids,
		logger:    logger,
		now:       time.Now,
	}
}

type GenerateAnalysisInput struct {
	EventID    string
	Discipline string
	Snapshot   map[string]any
}

type AnalysisResult struct {
	AnalysisID      string
	Summary         string
	Details         string
	Recommendations string
	Type            string
	FinishedAt      time.Time
	Reused          bool
}

// Generate runs the analysis workflow: validate, checksum, idempotency
// lookup, generation, completed-only persistence. A record becomes
// visible to other requests only after the whole run succeeded.
func (s *AnalysisService) Generate(ctx context.Context, in GenerateAnalysisInput) (AnalysisResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AnalysisService.Generate")
	defer span.End()

	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		return AnalysisResult{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	discipline, ok := event.ParseSport(in.Discipline)
	if !ok {
		return AnalysisResult{}, fmt.Errorf("%w: unsupported discipline %q", ErrInvalidInput, in.Discipline)
	}
	if in.Snapshot == nil {
		return AnalysisResult{}, fmt.Errorf("%w: snapshot is required", ErrInvalidInput)
	}

	hasTeams, hasDate := snapshotCompleteness(in.Snapshot)
	if !hasTeams || !hasDate {
		s.recordSystem(ctx, auditlog.KindInfo, map[string]any{
			"tag":        "incomplete_data_for_analysis",
			"event_id":   eventID,
			"discipline": string(discipline),
			"has_teams":  hasTeams,
			"has_date":   hasDate,
		})
		return AnalysisResult{}, fmt.Errorf("%w: snapshot lacks team names or a date", ErrIncompleteData)
	}

	checksum, err := snapshotChecksum(in.Snapshot)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("checksum snapshot: %w", err)
	}

	// A lookup failure is not fatal: worst case we regenerate, which is
	// wasteful but correct.
	existing, found, err := s.repo.FindByEventAndChecksum(ctx, eventID, checksum)
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency lookup failed", "event_id", eventID, "error", err)
	}
	if found {
		return AnalysisResult{
			AnalysisID:      existing.ID,
			Summary:         existing.Content.Summary,
			Details:         existing.Content.Details,
			Recommendations: existing.Content.Recommendations,
			Type:            existing.Type,
			FinishedAt:      existing.FinishedAt,
			Reused:          true,
		}, nil
	}

	startedAt := s.now()
	prompt := buildAnalysisPrompt(discipline, in.Snapshot)
	s.logger.DebugContext(ctx, "generation prompt built", "event_id", eventID, "prompt_len", len(prompt))
	s.recordSystem(ctx, auditlog.KindInfo, map[string]any{
		"tag":        "groq_prompt",
		"event_id":   eventID,
		"prompt_len": len(prompt),
		"prompt":     clip(prompt, promptLogLimit),
	})

	generated, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		s.recordSystem(ctx, auditlog.KindError, map[string]any{
			"tag":      "groq_error",
			"event_id": eventID,
			"code":     generationErrorCode(err),
			"error_id": id.NewIDOrEmpty(s.ids),
			"msg":      err.Error(),
		})
		return AnalysisResult{}, err
	}

	sections := parseMarkdownSections(generated.Text)
	summary := sections.summary
	if summary == "" {
		summary = generated.Text
	}

	finishedAt := s.now()
	stored, err := s.repo.Insert(ctx, analysis.Analysis{
		EventID:  eventID,
		Type:     analysis.TypeAI,
		Status:   analysis.StatusCompleted,
		Checksum: checksum,
		Parameters: map[string]any{
			"discipline": string(discipline),
			"snapshot":   in.Snapshot,
		},
		Content: analysis.Content{
			Summary:         summary,
			Details:         sections.details,
			Recommendations: sections.recommendations,
			Model:           generated.Model,
			Raw:             generated.Text,
		},
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		DurationMS: finishedAt.Sub(startedAt).Milliseconds(),
		CreatedAt:  startedAt,
	})
	if err != nil {
		s.recordSystem(ctx, auditlog.KindError, map[string]any{
			"tag":   "save_completed_analysis_failed",
			"error": err.Error(),
		})
		return AnalysisResult{}, fmt.Errorf("%w: insert analysis: %v", ErrDatabase, err)
	}

	s.recordAnalysis(ctx, auditlog.AnalysisEntry{
		AnalysisID: stored.ID,
		EventID:    eventID,
		Level:      "info",
		Message:    "groq_response_received",
		Context:    map[string]any{"length": len(generated.Text)},
	})

	return AnalysisResult{
		AnalysisID:      stored.ID,
		Summary:         summary,
		Details:         sections.details,
		Recommendations: sections.recommendations,
		Type:            analysis.TypeAI,
		FinishedAt:      finishedAt,
	}, nil
}

func (s *AnalysisService) GetByID(ctx context.Context, analysisID string) (analysis.Analysis, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AnalysisService.GetByID")
	defer span.End()

	analysisID = strings.TrimSpace(analysisID)
	if analysisID == "" {
		return analysis.Analysis{}, fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}

	record, found, err := s.repo.GetByID(ctx, analysisID)
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("%w: get analysis: %v", ErrDatabase, err)
	}
	if !found {
		return analysis.Analysis{}, fmt.Errorf("%w: analysis=%s", ErrNotFound, analysisID)
	}
	return record, nil
}

func (s *AnalysisService) ListByEvent(ctx context.Context, eventID string) ([]analysis.Analysis, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AnalysisService.ListByEvent")
	defer span.End()

	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	records, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: list analyses: %v", ErrDatabase, err)
	}
	return records, nil
}

func (s *AnalysisService) recordSystem(ctx context.Context, kind string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.RecordSystem(ctx, auditlog.SystemEntry{
		Event:     "analysis_generator",
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "system audit entry dropped", "error", err)
	}
}

func (s *AnalysisService) recordAnalysis(ctx context.Context, entry auditlog.AnalysisEntry) {
	if s.audit == nil {
		return
	}
	entry.CreatedAt = s.now()
	if err := s.audit.RecordAnalysis(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "analysis audit entry dropped", "error", err)
	}
}

// snapshotChecksum fingerprints the snapshot with SHA-256 over its
// canonical JSON form. Key order in the incoming payload never changes
// the checksum.
func snapshotChecksum(snapshot map[string]any) (string, error) {
	canonical, err := stablejson.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// snapshotCompleteness checks the minimum a prompt needs: both team
// names and a date (top-level or nested under fixture).
func snapshotCompleteness(snapshot map[string]any) (hasTeams, hasDate bool) {
	if teams, ok := snapshot["teams"].(map[string]any); ok {
		hasTeams = truthy(teams["home"]) && truthy(teams["away"])
	}
	hasDate = truthy(snapshot["date"])
	if !hasDate {
		if fixture, ok := snapshot["fixture"].(map[string]any); ok {
			hasDate = truthy(fixture["date"])
		}
	}
	return hasTeams, hasDate
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return true
	}
}

func generationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingGenerationKey):
		return "MISSING_GROQ_API_KEY"
	case errors.Is(err, ErrGenerationTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrGenerationHTTP):
		return "HTTP_ERROR"
	default:
		return "NETWORK_ERROR"
	}
}

func buildAnalysisPrompt(discipline event.Sport, snapshot map[string]any) string {
	snapshotJSON, err := stablejson.Marshal(snapshot)
	if err != nil {
		snapshotJSON = []byte("{}")
	}

	lines := []string{
		fmt.Sprintf("Discipline: %s.", discipline),
		"Event data (interpret concisely):",
		"```json",
		string(snapshotJSON),
		"```",
		"Produce an analysis with these sections:",
		"- Summary (5-7 key bullet points)",
		"- Details (short narrative with context: form, head-to-head, key players, tactical edges, risks)",
		"- Recommendations (3-5 analytical recommendations, no gambling advice).",
		"Avoid speculation without data. Return plain markdown with section headings only.",
	}
	if hint, ok := disciplineHints[discipline]; ok {
		lines = append(lines, hint)
	}
	return strings.Join(lines, "\n")
}

var disciplineHints = map[event.Sport]string{
	event.SportFootball:   "Consider: form over the last 5 matches, xG if available, set-piece efficiency, pressing, injuries and rotation.",
	event.SportBasketball: "Consider: offensive/defensive rating, pace, three-point efficiency, rebounding, rotation and injuries.",
	event.SportVolleyball: "Consider: attack efficiency, blocking, unforced errors, lineup rotation.",
	event.SportBaseball:   "Consider: pitcher ERA/WHIP, bullpen, home/away splits, offensive production.",
	event.SportHockey:     "Consider: CF%/xGF% if available, special teams (PP/PK), goaltender form, physicality.",
}

type markdownSections struct {
	summary         string
	details         string
	recommendations string
}

// parseMarkdownSections splits model output on "## " headings. Text
// before the first recognized heading is dropped; callers fall back to
// the raw text when no summary section is present.
func parseMarkdownSections(md string) markdownSections {
	var out markdownSections
	var current *string

	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSuffix(line, "\r")
		low := strings.ToLower(trimmed)
		if strings.HasPrefix(low, "## ") {
			heading := strings.TrimSpace(low[3:])
			switch {
			case strings.Contains(heading, "summary"):
				current = &out.summary
			case strings.Contains(heading, "detail"):
				current = &out.details
			case strings.Contains(heading, "recommend"):
				current = &out.recommendations
			default:
				current = nil
			}
			continue
		}
		if current == nil {
			continue
		}
		if *current != "" {
			*current += "\n"
		}
		*current += trimmed
	}
	return out
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
