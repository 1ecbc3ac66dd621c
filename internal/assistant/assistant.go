// Package assistant answers shopper questions about products using the
// Gemini generateContent REST API. Every call degrades to fixed fallback text
// on failure, so callers never see an error.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	FallbackOffline       = "Our AI assistant is currently offline. Please try again later."
	FallbackNoInsight     = "I couldn't generate an insight at this moment."
	FallbackSummaryFailed = "Unable to fetch review summary."
	FallbackNoSummary     = "Summary unavailable."
	DefaultModel          = "gemini-3-flash-preview"
	DefaultBaseURL        = "https://generativelanguage.googleapis.com"

	circuitName          = "gemini"
	defaultTimeout       = 10 * time.Second
	defaultRatePerSecond = 2.0
	kindQuestion         = "question"
	kindReviewSummary    = "review_summary"
)

var (
	ErrDisabled    = errors.New("assistant disabled")
	ErrRateLimited = errors.New("assistant rate limit exceeded")
)

type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	RatePerSecond float64
}

type Client struct {
	http    *resty.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
	logger  *slog.Logger
	enabled bool
}

// New returns a client for the configured endpoint. An empty API key yields a
// disabled client that always answers with the failure fallbacks.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey).
		SetRetryCount(0)

	return &Client{
		http:    httpClient,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		breaker: newCircuitBreaker(circuitName, logger),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1),
		logger:  logger,
		enabled: cfg.APIKey != "",
	}
}

// Disabled returns a client that never calls out.
func Disabled(logger *slog.Logger) *Client {
	return New(Config{}, logger)
}

func (c *Client) Enabled() bool {
	return c.enabled
}

// AskProductQuestion answers question about p in at most about 150 words.
func (c *Client) AskProductQuestion(ctx context.Context, p domain.Product, question string) string {
	prompt := fmt.Sprintf(`You are an expert shopping assistant for an e-commerce store called Lumina Commerce.

Product Context:
Name: %s
Price: $%s
Category: %s
Description: %s
Features: %s

User Question: "%s"

Provide a helpful, concise, and sales-oriented answer.
If the user asks if it's worth it, analyze the price-to-performance based on the features.
Keep the tone professional yet friendly. Max 150 words.`,
		p.Name, p.Price.StringFixed(2), p.Category, p.Description, strings.Join(p.Features, ", "), question)

	return c.answer(ctx, kindQuestion, prompt, FallbackNoInsight, FallbackOffline)
}

// SummarizeReviews writes a short hypothetical review summary for p with two
// pros and one con.
func (c *Client) SummarizeReviews(ctx context.Context, p domain.Product) string {
	prompt := fmt.Sprintf(`Generate a hypothetical, realistic summary of customer reviews for this product based on its description and features.
Product: %s - %s

Highlight 2 pros and 1 potential con. Format as a short paragraph.`,
		p.Name, p.Description)

	return c.answer(ctx, kindReviewSummary, prompt, FallbackNoSummary, FallbackSummaryFailed)
}

func (c *Client) answer(ctx context.Context, kind, prompt, empty, failed string) string {
	text, err := c.generate(ctx, prompt)
	switch {
	case err != nil:
		metrics.AssistantRequests.WithLabelValues(kind, "failed").Inc()
		if !errors.Is(err, ErrDisabled) {
			c.logger.WarnContext(ctx, "assistant call failed", "kind", kind, "error", err)
		}
		return failed
	case strings.TrimSpace(text) == "":
		metrics.AssistantRequests.WithLabelValues(kind, "empty").Inc()
		return empty
	default:
		metrics.AssistantRequests.WithLabelValues(kind, "ok").Inc()
		return strings.TrimSpace(text)
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if !c.enabled {
		return "", ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	text, err := c.breaker.Execute(func() (string, error) {
		var out generateResponse
		resp, httpErr := c.http.R().
			SetContext(ctx).
			SetBody(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}).
			SetResult(&out).
			Post(fmt.Sprintf("/v1beta/models/%s:generateContent", c.model))

		if httpErr != nil {
			return "", fmt.Errorf("HTTP error: %w", httpErr)
		}
		if resp.StatusCode() != http.StatusOK {
			return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode(), resp.String())
		}
		return out.text(), nil
	})
	if err != nil {
		return "", formatError(err)
	}
	return text, nil
}

func newCircuitBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker[string] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(state)
			logger.Info("circuit breaker state changed", "circuit", cbName, "from", from.String(), "to", to.String())
		},
	})
}

func formatError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("circuit breaker %s is open: %w", circuitName, err)
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker %s: too many requests in half-open state: %w", circuitName, err)
	}
	return err
}

// State reports the breaker state, for diagnostics.
func (c *Client) State() string {
	return c.breaker.State().String()
}
