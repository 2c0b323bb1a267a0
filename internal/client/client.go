package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/util"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

// Client talks to the remote rating service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client for baseURL (e.g. http://localhost:8000/api/v1).
// retries is the number of extra attempts after the first one.
func NewClient(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = constants.APIConfig.DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = constants.APIConfig.DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retries: retries,
		logger:  logger,
		sleep:   sleepContext,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Rank posts the idea to {baseURL}/rank. Transport failures, 429 and 5xx are
// retried with exponential backoff; other 4xx answers fail immediately.
func (c *Client) Rank(ctx context.Context, req RankRequest) (*RankResponse, error) {
	var resp RankResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "/rank", req, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return nil, errors.NewParseError("rank response has no results array", "results", nil)
	}
	return &resp, nil
}

// Health reports whether GET {baseURL}/health answers 2xx.
func (c *Client) Health(ctx context.Context) bool {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		c.logger.Debug("Rating service health check failed", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, reqBody, respBody any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		err := c.doRequest(ctx, method, path, reqBody, respBody)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		var apiErr *errors.APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return err
		}
		if attempt == c.retries {
			break
		}

		delay := c.computeDelay(attempt)
		c.logger.Debug("Rating request failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return errors.NewAPIError("failed to marshal request", http.StatusBadRequest, map[string]any{
				"url": url,
			}).WithCause(err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return errors.NewAPIError("failed to create request", http.StatusBadRequest, map[string]any{
			"url": url,
		}).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewAPIError("request failed", 0, map[string]any{
			"url": url,
		}).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.NewAPIError(
			fmt.Sprintf("rating service error: %s", resp.Status),
			resp.StatusCode,
			map[string]any{
				"url":  url,
				"body": util.TruncateString(string(bodyBytes), 500),
			},
		)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return errors.NewParseError("failed to decode rating service response", "", err)
		}
	}
	return nil
}

func (c *Client) computeDelay(attempt int) time.Duration {
	base := constants.RetryConfig.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	jitter := time.Duration(rand.Float64() * float64(constants.RetryConfig.Jitter))
	return base + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
