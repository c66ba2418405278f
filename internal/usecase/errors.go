package usecase

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")

	// Upstream sports API failures.
	ErrRateLimited     = errors.New("upstream rate limited")
	ErrUpstreamHTTP    = errors.New("upstream request failed")
	ErrUpstreamShape   = errors.New("unexpected upstream payload")
	ErrUpstreamNetwork = errors.New("upstream unreachable")
	ErrMissingAPIKey   = errors.New("sports api key is not configured")

	// Analysis generation failures.
	ErrMissingGenerationKey = errors.New("generation api key is not configured")
	ErrGenerationTimeout    = errors.New("generation timed out")
	ErrGenerationHTTP       = errors.New("generation provider error")
	ErrGenerationNetwork    = errors.New("generation provider unreachable")
	ErrIncompleteData       = errors.New("incomplete event data")
	ErrDatabase             = errors.New("persistence failure")
)
