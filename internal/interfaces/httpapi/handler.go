package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/matchsight/matchsight/internal/domain/analysis"
	"github.com/matchsight/matchsight/internal/domain/event"
	"github.com/matchsight/matchsight/internal/usecase"
)

// Diagnostic headers surfaced to dashboard clients.
const (
	headerCache        = "x-cache"
	headerUsedStrategy = "x-used-strategy"
	headerCount        = "x-count"
)

const listCacheControl = "public, max-age=86400"

type Handler struct {
	eventService    *usecase.EventService
	leagueService   *usecase.LeagueService
	analysisService *usecase.AnalysisService
	logger          *slog.Logger
	validator       *validator.Validate
}

func NewHandler(
	eventService *usecase.EventService,
	leagueService *usecase.LeagueService,
	analysisService *usecase.AnalysisService,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		eventService:    eventService,
		leagueService:   leagueService,
		analysisService: analysisService,
		logger:          logger,
		validator:       validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeData(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListEvents")
	defer span.End()

	query := r.URL.Query()
	sport, err := sportParam(query.Get("sport"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	next := 0
	if raw := strings.TrimSpace(query.Get("next")); raw != "" {
		next, err = strconv.Atoi(raw)
		if err != nil || next < 0 {
			writeError(ctx, w, fmt.Errorf("%w: next must be a non-negative integer", usecase.ErrInvalidInput))
			return
		}
	}

	list, err := h.eventService.List(ctx, usecase.ListEventsInput{
		Sport:  sport,
		League: query.Get("league"),
		Season: query.Get("season"),
		Next:   next,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "list events failed", "league", query.Get("league"), "error", err)
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Cache-Control", listCacheControl)
	w.Header().Set(headerCache, cacheStatus(list.CacheHit))
	if list.Meta.Strategy != "" {
		w.Header().Set(headerUsedStrategy, list.Meta.Strategy)
	}
	w.Header().Set(headerCount, strconv.Itoa(len(list.Events)))

	writeDataWithMeta(ctx, w, http.StatusOK, list.Events, eventListMetaDTO{
		Sport:    list.Meta.Sport,
		Strategy: list.Meta.Strategy,
		Count:    list.Meta.Count,
		Query:    list.Meta.Query,
		Note:     list.Meta.Note,
	})
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetEvent")
	defer span.End()

	query := r.URL.Query()
	sport, err := sportParam(query.Get("sport"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	eventID := r.PathValue("eventID")
	lookup, err := h.eventService.GetByID(ctx, usecase.GetEventInput{
		ID:     eventID,
		Sport:  sport,
		League: query.Get("league"),
		Season: query.Get("season"),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "get event failed", "event_id", eventID, "error", err)
		writeError(ctx, w, err)
		return
	}

	// Fixture status moves quickly around kickoff, so lookups are never
	// client-cached.
	w.Header().Set("Cache-Control", "no-store")
	if lookup.Strategy != "" {
		w.Header().Set(headerUsedStrategy, lookup.Strategy)
	}
	if !lookup.Found {
		writeData(ctx, w, http.StatusOK, nil)
		return
	}

	writeData(ctx, w, http.StatusOK, lookup.Details)
}

func (h *Handler) ListLeagues(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListLeagues")
	defer span.End()

	sport, err := sportParam(r.URL.Query().Get("sport"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	catalog, err := h.leagueService.GetLeagues(ctx, sport)
	if err != nil {
		h.logger.WarnContext(ctx, "list leagues failed", "sport", string(sport), "error", err)
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Cache-Control", listCacheControl)
	w.Header().Set(headerCache, cacheStatus(catalog.CacheHit))
	w.Header().Set(headerCount, strconv.Itoa(len(catalog.Leagues)))
	if catalog.UpstreamCache != "" {
		w.Header().Set(usecase.HeaderUpstreamCache, catalog.UpstreamCache)
	}

	writeDataWithMeta(ctx, w, http.StatusOK, catalog.Leagues, leagueMetaDTO{
		Sport:  catalog.Meta.Sport,
		Source: catalog.Meta.Source,
	})
}

func (h *Handler) ListDisciplines(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListDisciplines")
	defer span.End()

	sports := event.Sports()
	items := make([]string, 0, len(sports))
	for _, s := range sports {
		items = append(items, string(s))
	}

	w.Header().Set("Cache-Control", listCacheControl)
	writeData(ctx, w, http.StatusOK, items)
}

func (h *Handler) GenerateAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GenerateAnalysis")
	defer span.End()

	var req generateAnalysisRequest
	decoder := jsoniter.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.analysisService.Generate(ctx, usecase.GenerateAnalysisInput{
		EventID:    req.EventID,
		Discipline: req.Discipline,
		Snapshot:   req.Snapshot,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "generate analysis failed", "event_id", req.EventID, "error", err)
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeData(ctx, w, http.StatusOK, analysisResultDTO{
		AnalysisID:      result.AnalysisID,
		Summary:         result.Summary,
		Details:         result.Details,
		Recommendations: result.Recommendations,
		Type:            result.Type,
		FinishedAt:      result.FinishedAt.UTC().Format(time.RFC3339),
		Reused:          result.Reused,
	})
}

func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetAnalysis")
	defer span.End()

	analysisID := r.PathValue("analysisID")
	record, err := h.analysisService.GetByID(ctx, analysisID)
	if err != nil {
		h.logger.WarnContext(ctx, "get analysis failed", "analysis_id", analysisID, "error", err)
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeData(ctx, w, http.StatusOK, analysisToDTO(ctx, record))
}

func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListAnalyses")
	defer span.End()

	eventID := strings.TrimSpace(r.URL.Query().Get("eventId"))
	if eventID == "" {
		writeError(ctx, w, fmt.Errorf("%w: eventId query parameter is required", usecase.ErrInvalidInput))
		return
	}

	records, err := h.analysisService.ListByEvent(ctx, eventID)
	if err != nil {
		h.logger.WarnContext(ctx, "list analyses failed", "event_id", eventID, "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]analysisDTO, 0, len(records))
	for _, record := range records {
		items = append(items, analysisToDTO(ctx, record))
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(headerCount, strconv.Itoa(len(items)))
	writeData(ctx, w, http.StatusOK, items)
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

func sportParam(raw string) (event.Sport, error) {
	if strings.TrimSpace(raw) == "" {
		return event.SportFootball, nil
	}
	sport, ok := event.ParseSport(raw)
	if !ok {
		return "", fmt.Errorf("%w: unsupported sport %q", usecase.ErrInvalidInput, raw)
	}
	return sport, nil
}

func cacheStatus(hit bool) string {
	if hit {
		return usecase.CacheStatusHit
	}
	return usecase.CacheStatusMiss
}

type generateAnalysisRequest struct {
	EventID    string         `json:"eventId" validate:"required"`
	Discipline string         `json:"discipline" validate:"required"`
	Snapshot   map[string]any `json:"snapshot" validate:"required"`
}

type eventListMetaDTO struct {
	Sport    string `json:"sport"`
	Strategy string `json:"strategy,omitempty"`
	Count    int    `json:"count"`
	Query    string `json:"query,omitempty"`
	Note     string `json:"note,omitempty"`
}

type leagueMetaDTO struct {
	Sport  string `json:"sport"`
	Source string `json:"source"`
}

type analysisResultDTO struct {
	AnalysisID      string `json:"analysisId"`
	Summary         string `json:"summary"`
	Details         string `json:"details"`
	Recommendations string `json:"recommendations"`
	Type            string `json:"type"`
	FinishedAt      string `json:"finishedAt"`
	Reused          bool   `json:"reused"`
}

type analysisDTO struct {
	ID         string             `json:"id"`
	EventID    string             `json:"eventId"`
	Type       string             `json:"type"`
	Status     string             `json:"status"`
	Checksum   string             `json:"checksum"`
	Parameters map[string]any     `json:"parameters,omitempty"`
	Content    analysisContentDTO `json:"content"`
	StartedAt  string             `json:"startedAt"`
	FinishedAt string             `json:"finishedAt"`
	DurationMS int64              `json:"durationMs"`
	CreatedAt  string             `json:"createdAt"`
}

type analysisContentDTO struct {
	Summary         string `json:"summary"`
	Details         string `json:"details"`
	Recommendations string `json:"recommendations"`
	Model           string `json:"model"`
	Raw             string `json:"raw"`
}

func analysisToDTO(ctx context.Context, v analysis.Analysis) analysisDTO {
	ctx, span := startSpan(ctx, "httpapi.analysisToDTO")
	defer span.End()

	return analysisDTO{
		ID:         v.ID,
		EventID:    v.EventID,
		Type:       v.Type,
		Status:     v.Status,
		Checksum:   v.Checksum,
		Parameters: v.Parameters,
		Content: analysisContentDTO{
			Summary:         v.Content.Summary,
			Details:         v.Content.Details,
			Recommendations: v.Content.Recommendations,
			Model:           v.Content.Model,
			Raw:             v.Content.Raw,
		},
		StartedAt:  v.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: v.FinishedAt.UTC().Format(time.RFC3339),
		DurationMS: v.DurationMS,
		CreatedAt:  v.CreatedAt.UTC().Format(time.RFC3339),
	}
}
