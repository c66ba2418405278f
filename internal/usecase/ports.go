package usecase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/matchsight/matchsight/internal/domain/event"
)

// HeaderUpstreamCache marks whether an upstream response was served
// from the fetch cache.
const HeaderUpstreamCache = "X-Upstream-Cache"

const (
	CacheStatusHit  = "HIT"
	CacheStatusMiss = "MISS"
)

// UpstreamResponse is a provider response, either live or replayed from
// the fetch cache. Non-2xx statuses are returned here rather than as
// errors so callers can react to specific codes.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r UpstreamResponse) CacheStatus() string {
	return r.Header.Get(HeaderUpstreamCache)
}

// UpstreamFetchOptions tunes a single fetch. TTL zero means the
// client's default; NoCache bypasses the fetch cache entirely.
type UpstreamFetchOptions struct {
	TTL     time.Duration
	NoCache bool
}

// SportsAPIClient fetches raw payloads from the sports data provider.
type SportsAPIClient interface {
	Fetch(ctx context.Context, sport event.Sport, path string, query url.Values, opts UpstreamFetchOptions) (UpstreamResponse, error)
}

// GeneratedText is one completion from the text generation provider.
type GeneratedText struct {
	Text  string
	Model string
}

// TextGenerator produces natural-language completions.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (GeneratedText, error)
}
