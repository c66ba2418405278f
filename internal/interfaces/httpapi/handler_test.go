package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/matchsight/matchsight/internal/domain/event"
	"github.com/matchsight/matchsight/internal/infrastructure/repository/memory"
	"github.com/matchsight/matchsight/internal/platform/cache"
	"github.com/matchsight/matchsight/internal/platform/id"
	"github.com/matchsight/matchsight/internal/platform/logging"
	"github.com/matchsight/matchsight/internal/usecase"
)

type apiClientStub struct {
	respond func(sport event.Sport, path string, query url.Values) (usecase.UpstreamResponse, error)
}

func (s apiClientStub) Fetch(_ context.Context, sport event.Sport, path string, query url.Values, _ usecase.UpstreamFetchOptions) (usecase.UpstreamResponse, error) {
	return s.respond(sport, path, query)
}

type generatorStub struct {
	text string
	err  error
}

func (g generatorStub) Complete(_ context.Context, _ string) (usecase.GeneratedText, error) {
	if g.err != nil {
		return usecase.GeneratedText{}, g.err
	}
	return usecase.GeneratedText{Text: g.text, Model: "llama-3.3-70b-versatile"}, nil
}

const fixturesPayload = `{"response":[{"fixture":{"id":1035045,"date":"2023-08-19T14:00:00+00:00","status":{"short":"NS","long":"Not Started"},"venue":{"name":"Anfield"}},"league":{"name":"Premier League","country":"England"},"teams":{"home":{"name":"Liverpool"},"away":{"name":"Bournemouth"}}}]}`

func newTestRouter(t *testing.T, api usecase.SportsAPIClient, gen usecase.TextGenerator) http.Handler {
	t.Helper()

	zlog := logging.NewNop()
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eventService := usecase.NewEventService(api, cache.NewStore(time.Hour), zlog)
	leagueService := usecase.NewLeagueService(api, cache.NewStore(time.Hour), zlog)
	analysisService := usecase.NewAnalysisService(
		memory.NewAnalysisRepository(id.NewRandomGenerator()),
		memory.NewAuditLogRecorder(),
		gen,
		id.NewRandomGenerator(),
		zlog,
	)

	handler := NewHandler(eventService, leagueService, analysisService, slogger)
	return NewRouter(handler, slogger, false, []string{"*"})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	return body
}

func TestHandler_ListEvents(t *testing.T) {
	api := apiClientStub{
		respond: func(_ event.Sport, _ string, _ url.Values) (usecase.UpstreamResponse, error) {
			return usecase.UpstreamResponse{StatusCode: 200, Header: http.Header{}, Body: []byte(fixturesPayload)}, nil
		},
	}
	router := newTestRouter(t, api, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/events?league=39&season=2023", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("x-cache") != usecase.CacheStatusMiss {
		t.Fatalf("unexpected x-cache: %q", rec.Header().Get("x-cache"))
	}
	if rec.Header().Get("x-used-strategy") != "next-with-season" {
		t.Fatalf("unexpected x-used-strategy: %q", rec.Header().Get("x-used-strategy"))
	}
	if rec.Header().Get("x-count") != "1" {
		t.Fatalf("unexpected x-count: %q", rec.Header().Get("x-count"))
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "max-age=86400") {
		t.Fatalf("unexpected Cache-Control: %q", rec.Header().Get("Cache-Control"))
	}

	body := decodeEnvelope(t, rec)
	data, ok := body["data"].([]any)
	if !ok || len(data) != 1 {
		t.Fatalf("unexpected data: %v", body["data"])
	}
	meta, ok := body["meta"].(map[string]any)
	if !ok || meta["strategy"] != "next-with-season" {
		t.Fatalf("unexpected meta: %v", body["meta"])
	}

	// Second request is served from the result cache.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?league=39&season=2023", nil))
	if rec.Header().Get("x-cache") != usecase.CacheStatusHit {
		t.Fatalf("expected cache hit, got %q", rec.Header().Get("x-cache"))
	}
}

func TestHandler_ListEvents_InvalidNext(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/events?league=39&next=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["code"] != "INVALID_INPUT" {
		t.Fatalf("unexpected code: %v", body["code"])
	}
}

func TestHandler_GetEvent_NotFoundReturnsNullData(t *testing.T) {
	api := apiClientStub{
		respond: func(_ event.Sport, _ string, _ url.Values) (usecase.UpstreamResponse, error) {
			return usecase.UpstreamResponse{StatusCode: 200, Header: http.Header{}, Body: []byte(`{"response":[]}`)}, nil
		},
	}
	router := newTestRouter(t, api, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/events/999999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("unexpected Cache-Control: %q", rec.Header().Get("Cache-Control"))
	}

	body := decodeEnvelope(t, rec)
	if data, ok := body["data"]; !ok || data != nil {
		t.Fatalf("expected data:null, got %v", body["data"])
	}
}

func TestHandler_ListLeagues_PassesUpstreamCacheHeader(t *testing.T) {
	api := apiClientStub{
		respond: func(_ event.Sport, _ string, _ url.Values) (usecase.UpstreamResponse, error) {
			header := http.Header{}
			header.Set(usecase.HeaderUpstreamCache, usecase.CacheStatusHit)
			body := `{"response":[{"league":{"id":39,"name":"Premier League","type":"League"},"country":{"name":"England"},"seasons":[{"year":2023,"current":true}]}]}`
			return usecase.UpstreamResponse{StatusCode: 200, Header: header, Body: []byte(body)}, nil
		},
	}
	router := newTestRouter(t, api, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/leagues", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(usecase.HeaderUpstreamCache) != usecase.CacheStatusHit {
		t.Fatalf("expected upstream cache header pass-through, got %q", rec.Header().Get(usecase.HeaderUpstreamCache))
	}
}

func TestHandler_ListDisciplines(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/disciplines", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	data, ok := body["data"].([]any)
	if !ok || len(data) == 0 {
		t.Fatalf("expected a non-empty discipline list, got %v", body["data"])
	}
	if data[0] != "football" {
		t.Fatalf("expected football first, got %v", data[0])
	}
}

func TestHandler_GenerateAnalysis(t *testing.T) {
	gen := generatorStub{text: "## Summary\n- strong home form\n\n## Details\ncontext\n\n## Recommendations\n- watch the press"}
	router := newTestRouter(t, apiClientStub{}, gen)

	payload := `{"eventId":"1035045","discipline":"football","snapshot":{"teams":{"home":"Liverpool","away":"Bournemouth"},"date":"2023-08-19T14:00:00Z"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analysis/generate", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("unexpected Cache-Control: %q", rec.Header().Get("Cache-Control"))
	}

	body := decodeEnvelope(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body["data"])
	}
	if data["analysisId"] == "" || data["reused"] != false {
		t.Fatalf("unexpected analysis result: %v", data)
	}
}

func TestHandler_GenerateAnalysis_RejectsUnknownFields(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{text: "ok"})

	payload := `{"eventId":"1","discipline":"football","snapshot":{},"bogus":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analysis/generate", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandler_GenerateAnalysis_ValidatesRequiredFields(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{text: "ok"})

	payload := `{"discipline":"football","snapshot":{"date":"2023-08-19"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analysis/generate", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["code"] != "INVALID_INPUT" {
		t.Fatalf("unexpected code: %v", body["code"])
	}
}

func TestHandler_GenerateAnalysis_IncompleteSnapshotConflict(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{text: "ok"})

	payload := `{"eventId":"1035045","discipline":"football","snapshot":{"venue":"Anfield"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analysis/generate", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["code"] != "INCOMPLETE_DATA" {
		t.Fatalf("unexpected code: %v", body["code"])
	}
}

func TestHandler_ListAnalyses_RequiresEventID(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/analysis", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandler_GetAnalysis_NotFound(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/analysis/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected code: %v", body["code"])
	}
}

func TestHandler_Healthz(t *testing.T) {
	router := newTestRouter(t, apiClientStub{}, generatorStub{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
