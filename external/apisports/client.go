// Package apisports is the caching HTTP client for the API-Sports
// provider family. Every 200 response is cached by full request URL so
// repeat queries inside the TTL never spend upstream quota.
package apisports

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/matchsight/matchsight/internal/domain/event"
	"github.com/matchsight/matchsight/internal/platform/cache"
	"github.com/matchsight/matchsight/internal/platform/logging"
	"github.com/matchsight/matchsight/internal/platform/resilience"
	"github.com/matchsight/matchsight/internal/usecase"
)

const (
	headerAPIKey = "x-apisports-key"

	defaultCacheTTL = 24 * time.Hour
	defaultTimeout  = 20 * time.Second
	maxBodyBytes    = 6 << 20
)

var errAPISportsTransient = crerr.New("api-sports transient failure")

// defaultBaseURLs: football runs on the v3 host, every other
// discipline on its own v1 host.
var defaultBaseURLs = map[event.Sport]string{
	event.SportFootball:   "https://v3.football.api-sports.io",
	event.SportBasketball: "https://v1.basketball.api-sports.io",
	event.SportVolleyball: "https://v1.volleyball.api-sports.io",
	event.SportBaseball:   "https://v1.baseball.api-sports.io",
	event.SportHockey:     "https://v1.hockey.api-sports.io",
}

type ClientConfig struct {
	HTTPClient      *http.Client
	APIKey          string
	FootballBaseURL string
	Timeout         time.Duration
	CacheTTL        time.Duration
	Cache           *cache.Store
	Logger          *logging.Logger
	CircuitBreaker  resilience.CircuitBreakerConfig
}

type Client struct {
	httpClient     *http.Client
	apiKey         string
	baseURLs       map[event.Sport]string
	cacheTTL       time.Duration
	store          *cache.Store
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultTimeout
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	store := cfg.Cache
	if store == nil {
		store = cache.NewStore(cacheTTL)
	}

	baseURLs := make(map[event.Sport]string, len(defaultBaseURLs))
	for sport, base := range defaultBaseURLs {
		baseURLs[sport] = base
	}
	if football := strings.TrimRight(strings.TrimSpace(cfg.FootballBaseURL), "/"); football != "" {
		baseURLs[event.SportFootball] = football
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		baseURLs:       baseURLs,
		cacheTTL:       cacheTTL,
		store:          store,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// Fetch issues a GET against the provider host for sport. Non-2xx
// statuses come back as responses, not errors; only transport-level
// failures and breaker rejections are errors.
func (c *Client) Fetch(ctx context.Context, sport event.Sport, path string, query url.Values, opts usecase.UpstreamFetchOptions) (usecase.UpstreamResponse, error) {
	if c.apiKey == "" {
		return usecase.UpstreamResponse{}, fmt.Errorf("%w: API_SPORTS_KEY is not set", usecase.ErrMissingAPIKey)
	}

	base, ok := c.baseURLs[sport]
	if !ok {
		return usecase.UpstreamResponse{}, fmt.Errorf("%w: unknown sport %q", usecase.ErrInvalidInput, sport)
	}

	fullURL := base + "/" + strings.TrimLeft(path, "/")
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	useCache := !opts.NoCache
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.cacheTTL
	}

	if useCache {
		if v, found := c.store.Get(ctx, fullURL); found {
			if cached, isResp := v.(cachedResponse); isResp {
				return replay(cached, usecase.CacheStatusHit), nil
			}
		}
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "api-sports circuit breaker rejected request", "state", c.breaker.State())
			return usecase.UpstreamResponse{}, fmt.Errorf("%w: sports data provider is temporarily unavailable", usecase.ErrUpstreamNetwork)
		}
	}

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		resp, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return resp, reqErr
	})
	if err != nil {
		return usecase.UpstreamResponse{}, fmt.Errorf("%w: %v", usecase.ErrUpstreamNetwork, err)
	}

	live, ok := out.(cachedResponse)
	if !ok {
		return usecase.UpstreamResponse{}, fmt.Errorf("unexpected response payload type %T", out)
	}

	if !useCache {
		return replay(live, ""), nil
	}
	if live.status == http.StatusOK {
		c.store.SetWithTTL(ctx, fullURL, live, ttl)
	}
	return replay(live, usecase.CacheStatusMiss), nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) (cachedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return cachedResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("%w: send request: %s", errAPISportsTransient, sanitizeSensitiveText(err.Error(), c.apiKey))
		c.logger.WarnContext(ctx, "api-sports request failed", "url", fullURL, "error", wrapped)
		return cachedResponse{}, wrapped
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return cachedResponse{}, fmt.Errorf("%w: read response body: %v", errAPISportsTransient, err)
	}

	return cachedResponse{
		status: resp.StatusCode,
		header: resp.Header.Clone(),
		body:   body,
	}, nil
}

// replay builds a caller-owned response. Headers are cloned so cached
// entries stay immutable across concurrent readers.
func replay(r cachedResponse, cacheStatus string) usecase.UpstreamResponse {
	header := r.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if cacheStatus != "" {
		header.Set(usecase.HeaderUpstreamCache, cacheStatus)
	}
	return usecase.UpstreamResponse{
		StatusCode: r.status,
		Header:     header,
		Body:       r.body,
	}
}

func sanitizeSensitiveText(value, apiKey string) string {
	value = strings.TrimSpace(value)
	if value == "" || apiKey == "" {
		return value
	}
	return strings.ReplaceAll(value, apiKey, "REDACTED")
}
