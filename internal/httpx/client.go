package httpx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultMaxRetries = 3

// Client wraps a resty client with client-side rate limiting and retries.
type Client struct {
	client     *resty.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// New creates a Client for baseURL allowing ratePerSecond requests with the given burst.
func New(baseURL string, ratePerSecond float64, burst int, logger *zap.Logger) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = float64(rate.Inf)
	}
	if burst <= 0 {
		burst = 1
	}
	return NewWithLimiter(
		resty.New().SetBaseURL(baseURL).SetTimeout(30*time.Second),
		rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger,
	)
}

// NewWithLimiter creates a Client from an existing resty client and limiter.
func NewWithLimiter(client *resty.Client, limiter *rate.Limiter, logger *zap.Logger) *Client {
	return &Client{
		client:     client,
		logger:     logger,
		limiter:    limiter,
		maxRetries: defaultMaxRetries,
		backoff:    time.Second,
	}
}

// WithBackoff sets the base delay of the exponential backoff.
func (c *Client) WithBackoff(d time.Duration) *Client {
	c.backoff = d
	return c
}

// R starts a new request bound to the underlying resty client.
func (c *Client) R() *resty.Request {
	return c.client.R()
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.client.BaseURL
}

// StatusError is returned for non-retryable HTTP failures.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// Do executes req with rate limiting and retries 429/418, 5xx and transport errors.
func (c *Client) Do(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	return c.do(ctx, method, url, req, c.maxRetries)
}

// DoOnce executes req a single time. Use it for requests that must not be
// replayed, such as submitting a transaction.
func (c *Client) DoOnce(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	return c.do(ctx, method, url, req, 1)
}

func (c *Client) do(ctx context.Context, method, url string, req *resty.Request, attempts int) (*resty.Response, error) {
	var lastErr error

	for i := 0; i < attempts; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err := req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			shouldRetry = true
			lastErr = err
		} else {
			statusCode := resp.StatusCode()
			lastErr = &StatusError{StatusCode: statusCode, Body: resp.String()}
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= http.StatusInternalServerError {
				shouldRetry = true
			}
		}

		if !shouldRetry {
			return nil, lastErr
		}
		if i == attempts-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x the base delay
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if attempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}
