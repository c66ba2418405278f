package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/matchsight/matchsight/internal/usecase"
)

type successEnvelope struct {
	Data any `json:"data"`
	Meta any `json:"meta,omitempty"`
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type mappedError struct {
	HTTPStatus int
	Code       string
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	ctx, span := startSpan(ctx, "httpapi.writeJSON")
	defer span.End()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeData(ctx context.Context, w http.ResponseWriter, status int, data any) {
	ctx, span := startSpan(ctx, "httpapi.writeData")
	defer span.End()

	writeJSON(ctx, w, status, successEnvelope{Data: data})
}

func writeDataWithMeta(ctx context.Context, w http.ResponseWriter, status int, data, meta any) {
	ctx, span := startSpan(ctx, "httpapi.writeDataWithMeta")
	defer span.End()

	writeJSON(ctx, w, status, successEnvelope{Data: data, Meta: meta})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	mapped := mapError(ctx, err)
	writeJSON(ctx, w, mapped.HTTPStatus, errorEnvelope{
		Error: err.Error(),
		Code:  mapped.Code,
	})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter) {
	ctx, span := startSpan(ctx, "httpapi.writeInternalError")
	defer span.End()

	writeJSON(ctx, w, http.StatusInternalServerError, errorEnvelope{
		Error: "internal server error",
		Code:  "INTERNAL",
	})
}

func mapError(ctx context.Context, err error) mappedError {
	ctx, span := startSpan(ctx, "httpapi.mapError")
	defer span.End()

	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return mappedError{HTTPStatus: http.StatusBadRequest, Code: "INVALID_INPUT"}
	case errors.Is(err, usecase.ErrNotFound):
		return mappedError{HTTPStatus: http.StatusNotFound, Code: "NOT_FOUND"}
	case errors.Is(err, usecase.ErrRateLimited):
		return mappedError{HTTPStatus: http.StatusTooManyRequests, Code: "RATE_LIMITED"}
	case errors.Is(err, usecase.ErrUpstreamShape):
		return mappedError{HTTPStatus: http.StatusBadGateway, Code: "UPSTREAM_SHAPE"}
	case errors.Is(err, usecase.ErrUpstreamHTTP):
		return mappedError{HTTPStatus: http.StatusBadGateway, Code: "UPSTREAM_ERROR"}
	case errors.Is(err, usecase.ErrUpstreamNetwork):
		return mappedError{HTTPStatus: http.StatusServiceUnavailable, Code: "UPSTREAM_UNAVAILABLE"}
	case errors.Is(err, usecase.ErrMissingAPIKey):
		return mappedError{HTTPStatus: http.StatusInternalServerError, Code: "MISSING_API_KEY"}
	case errors.Is(err, usecase.ErrMissingGenerationKey):
		return mappedError{HTTPStatus: http.StatusInternalServerError, Code: "MISSING_GROQ_API_KEY"}
	case errors.Is(err, usecase.ErrGenerationTimeout):
		return mappedError{HTTPStatus: http.StatusBadGateway, Code: "TIMEOUT"}
	case errors.Is(err, usecase.ErrGenerationHTTP):
		return mappedError{HTTPStatus: http.StatusBadGateway, Code: "HTTP_ERROR"}
	case errors.Is(err, usecase.ErrGenerationNetwork):
		return mappedError{HTTPStatus: http.StatusBadGateway, Code: "NETWORK_ERROR"}
	case errors.Is(err, usecase.ErrIncompleteData):
		return mappedError{HTTPStatus: http.StatusConflict, Code: "INCOMPLETE_DATA"}
	case errors.Is(err, usecase.ErrDatabase):
		return mappedError{HTTPStatus: http.StatusInternalServerError, Code: "DB_ERROR"}
	default:
		return mappedError{HTTPStatus: http.StatusInternalServerError, Code: "INTERNAL"}
	}
}
