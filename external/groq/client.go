// Package groq calls the Groq OpenAI-compatible chat completions API.
// The client retries transient failures with exponential backoff and
// falls back to a secondary model when the provider reports the primary
// as decommissioned.
package groq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/matchsight/matchsight/internal/platform/resilience"
	"github.com/matchsight/matchsight/internal/usecase"
)

const (
	defaultBaseURL       = "https://api.groq.com/openai/v1"
	defaultModel         = "llama-3.3-70b-versatile"
	defaultFallbackModel = "llama-3.1-8b-instant"
	defaultMaxRetries    = 2
	defaultBaseTimeout   = 20 * time.Second
	defaultTemperature   = 0.3
	defaultMaxTokens     = 1200

	baseBackoff     = 500 * time.Millisecond
	maxErrorBody    = 2048
	maxResponseBody = 1 << 20
)

const systemPrompt = "You are a sports analytics assistant. You write concise, factual match analyses in plain markdown."

var errGroqTransient = crerr.New("groq transient failure")

var decommissionedRegex = regexp.MustCompile(`(?i)model_decommissioned|has been decommissioned|decommissioned`)

// StatusError is a non-2xx completion response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("groq status=%d body=%s", e.StatusCode, e.Body)
}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Model          string
	FallbackModel  string
	MaxRetries     int
	BaseTimeout    time.Duration
	Temperature    float64
	MaxTokens      int
	CircuitBreaker resilience.CircuitBreakerConfig
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	models         []string
	maxRetries     int
	baseTimeout    time.Duration
	temperature    float64
	maxTokens      int
	logger         *slog.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	// Attempt deadlines come from per-call contexts; a transport-level
	// timeout here would cap every attempt at the same value.
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	fallback := strings.TrimSpace(cfg.FallbackModel)
	if fallback == "" {
		fallback = defaultFallbackModel
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	baseTimeout := cfg.BaseTimeout
	if baseTimeout <= 0 {
		baseTimeout = defaultBaseTimeout
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		models:         []string{model, fallback},
		maxRetries:     maxRetries,
		baseTimeout:    baseTimeout,
		temperature:    temperature,
		maxTokens:      maxTokens,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// Complete sends prompt to the chat completions endpoint. The attempt
// deadline grows with the attempt number so a slow-but-healthy provider
// is given more room before the final failure.
func (c *Client) Complete(ctx context.Context, prompt string) (usecase.GeneratedText, error) {
	if c.apiKey == "" {
		return usecase.GeneratedText{}, fmt.Errorf("%w: GROQ_API_KEY is not set", usecase.ErrMissingGenerationKey)
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "groq circuit breaker rejected request", "state", string(c.breaker.State()))
			return usecase.GeneratedText{}, fmt.Errorf("%w: generation provider is temporarily unavailable", usecase.ErrGenerationNetwork)
		}
	}

	modelIdx := 0
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		model := c.models[modelIdx]
		attemptCtx, cancel := context.WithTimeout(ctx, c.baseTimeout*time.Duration(attempt+1))
		text, err := c.attempt(attemptCtx, model, prompt)
		cancel()
		if err == nil {
			if c.circuitEnabled {
				c.breaker.RecordSuccess()
			}
			return usecase.GeneratedText{Text: text, Model: model}, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && decommissionedRegex.MatchString(statusErr.Body) && modelIdx+1 < len(c.models) {
			c.logger.WarnContext(ctx, "groq model decommissioned, switching to fallback",
				"model", model, "fallback", c.models[modelIdx+1])
			modelIdx++
			lastErr = fmt.Errorf("%w: %v", usecase.ErrGenerationHTTP, statusErr)
			continue
		}

		lastErr = classifyAttemptError(err)
		if attempt == c.maxRetries {
			break
		}

		backoff := baseBackoff << attempt
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			if c.circuitEnabled {
				c.breaker.RecordFailure()
			}
			return usecase.GeneratedText{}, fmt.Errorf("%w: %v", usecase.ErrGenerationNetwork, ctx.Err())
		case <-timer.C:
		}
	}

	if c.circuitEnabled {
		c.breaker.RecordFailure()
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: completion request failed", usecase.ErrGenerationNetwork)
	}
	c.logger.WarnContext(ctx, "groq completion failed", "error", lastErr.Error())
	return usecase.GeneratedText{}, lastErr
}

func (c *Client) attempt(ctx context.Context, model, prompt string) (string, error) {
	payload := map[string]any{
		"model":       model,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	c.logger.DebugContext(ctx, "groq completion request", "model", model, "curl_preview", buildCurlPreview(endpoint, body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send completion request: %w", errGroqTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%w: read completion response: %v", errGroqTransient, err)
	}

	if resp.StatusCode/100 != 2 {
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Body:       clipBody(string(raw)),
		}
	}

	var wire struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := sonic.Unmarshal(raw, &wire); err != nil {
		return "", fmt.Errorf("%w: decode completion response: %v", errGroqTransient, err)
	}
	if len(wire.Choices) == 0 {
		return "", nil
	}
	return wire.Choices[0].Message.Content, nil
}

// classifyAttemptError maps transport-level failures onto the workflow
// error taxonomy.
func classifyAttemptError(err error) error {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Errorf("%w: %v", usecase.ErrGenerationHTTP, statusErr)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", usecase.ErrGenerationTimeout, err)
	default:
		return fmt.Errorf("%w: %v", usecase.ErrGenerationNetwork, err)
	}
}

// buildCurlPreview renders the request for debug logs with the bearer
// token masked.
func buildCurlPreview(endpoint string, body []byte) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("curl -X POST '")
	_, _ = buf.WriteString(endpoint)
	_, _ = buf.WriteString("' -H 'Authorization: Bearer ***' -H 'Content-Type: application/json' -d '")
	_, _ = buf.WriteString(clipBody(string(body)))
	_, _ = buf.WriteString("'")
	return buf.String()
}

func clipBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "...(truncated)"
	}
	return s
}
