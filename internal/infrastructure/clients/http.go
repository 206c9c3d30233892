package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/resilience"
	"github.com/meal-program/production-service/pkg/tracing"
)

// Config configures one collaborator client
type Config struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	Retry   *resilience.RetryConfig
	Breaker *resilience.CircuitBreakerConfig
}

// DefaultConfig returns client defaults for the named collaborator
func DefaultConfig(name, baseURL string) Config {
	return Config{
		Name:    name,
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Retry:   resilience.DefaultRetryConfig(),
		Breaker: resilience.DefaultCircuitBreakerConfig(name),
	}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// retryable reports transport failures and 5xx responses. A 4xx answer or
// an open breaker will not change on a retry.
func retryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

type jsonClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
	logger     *logging.Logger
}

func newJSONClient(cfg Config, logger *logging.Logger, m *metrics.Metrics) *jsonClient {
	breakerCfg := resilience.DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		copied := *cfg.Breaker
		breakerCfg = &copied
	}
	// 4xx answers mean the collaborator is healthy
	breakerCfg.IsSuccessful = func(err error) bool {
		var se *StatusError
		return err == nil || (errors.As(err, &se) && se.StatusCode < 500)
	}
	if m != nil {
		breakerCfg.OnStateChange = m.SetCircuitBreakerState
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = cfg.Retry
	}
	retryCfg := *retry
	retryCfg.RetryableErrors = retryable

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &jsonClient{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    resilience.NewCircuitBreaker(breakerCfg, logger.Logger),
		retry:      retryCfg,
		logger:     logger.WithComponent(cfg.Name + "-client"),
	}
}

// get fetches path and decodes the JSON body into out
func (c *jsonClient) get(ctx context.Context, path string, out interface{}) error {
	endpoint := c.baseURL + path
	start := time.Now()

	err := resilience.Retry(ctx, &c.retry, func() error {
		_, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			return nil, c.do(ctx, endpoint, out)
		})
		return err
	})

	if err != nil && !isStatus(err, http.StatusNotFound) {
		c.logger.WithError(err).Warn("Collaborator request failed",
			"url", endpoint,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return err
}

func (c *jsonClient) do(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if userID := logging.UserIDFromContext(ctx); userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if correlationID := logging.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return nil
}
