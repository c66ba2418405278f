package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sonic "github.com/bytedance/sonic"
	"github.com/matchsight/matchsight/internal/usecase"
)

func TestWriteData_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeData(context.Background(), rec, http.StatusOK, map[string]string{"status": "ok"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	if _, ok := body["data"]; !ok {
		t.Fatalf("expected data key in success response")
	}
	if _, ok := body["error"]; ok {
		t.Fatalf("did not expect error key in success response")
	}
	if _, ok := body["meta"]; ok {
		t.Fatalf("meta must be omitted when unset")
	}
}

func TestWriteDataWithMeta_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDataWithMeta(context.Background(), rec, http.StatusOK, []string{"a"}, map[string]int{"count": 1})

	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	meta, ok := body["meta"].(map[string]any)
	if !ok {
		t.Fatalf("expected meta object, got %v", body["meta"])
	}
	if meta["count"] != float64(1) {
		t.Fatalf("unexpected meta count: %v", meta["count"])
	}
}

func TestWriteError_MapsSentinels(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", usecase.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{"not found", usecase.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"rate limited", usecase.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"upstream shape", usecase.ErrUpstreamShape, http.StatusBadGateway, "UPSTREAM_SHAPE"},
		{"upstream http", usecase.ErrUpstreamHTTP, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"upstream network", usecase.ErrUpstreamNetwork, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"missing api key", usecase.ErrMissingAPIKey, http.StatusInternalServerError, "MISSING_API_KEY"},
		{"missing groq key", usecase.ErrMissingGenerationKey, http.StatusInternalServerError, "MISSING_GROQ_API_KEY"},
		{"generation timeout", usecase.ErrGenerationTimeout, http.StatusBadGateway, "TIMEOUT"},
		{"generation http", usecase.ErrGenerationHTTP, http.StatusBadGateway, "HTTP_ERROR"},
		{"generation network", usecase.ErrGenerationNetwork, http.StatusBadGateway, "NETWORK_ERROR"},
		{"incomplete data", usecase.ErrIncompleteData, http.StatusConflict, "INCOMPLETE_DATA"},
		{"database", usecase.ErrDatabase, http.StatusInternalServerError, "DB_ERROR"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(context.Background(), rec, fmt.Errorf("wrapped: %w", tc.err))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}

			var body map[string]any
			if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal response body: %v", err)
			}
			if body["code"] != tc.wantCode {
				t.Fatalf("expected code %s, got %v", tc.wantCode, body["code"])
			}
			if _, ok := body["error"].(string); !ok {
				t.Fatalf("expected error message string, got %v", body["error"])
			}
		})
	}
}

func TestWriteInternalError_HidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeInternalError(context.Background(), rec)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	if body["error"] != "internal server error" || body["code"] != "INTERNAL" {
		t.Fatalf("unexpected internal error body: %v", body)
	}
}
