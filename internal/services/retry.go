package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries = 2
	defaultBackoff    = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
)

// retrier sends requests through an optional rate limiter and retries transport errors,
// 429s, and 5xx responses with exponential backoff.
type retrier struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger
	name       string
}

func newRetrier(name string, client *http.Client, limiter *rate.Limiter, maxRetries int, backoff time.Duration, logger *log.Logger) *retrier {
	if client == nil {
		client = http.DefaultClient
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &retrier{client: client, limiter: limiter, maxRetries: maxRetries, backoff: backoff, logger: logger, name: name}
}

// do sends req, retrying up to maxRetries times. When the last attempt still gets a
// retryable status the response is returned for the caller to map.
func (r *retrier) do(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: read request body: %w", r.name, err)
		}
		_ = req.Body.Close()
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}

	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %s rate limiter: %w", shared.ErrTimeout, r.name, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s request canceled: %w", shared.ErrTimeout, r.name, err)
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("%s: reset request body: %w", r.name, err)
			}
			req.Body = body
		}

		resp, err := r.client.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry || attempt >= r.maxRetries {
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", shared.ErrAPIRequest, r.name, err)
			}
			return resp, nil
		}

		if err != nil {
			r.logger.Warn("retrying request", "service", r.name, "attempt", attempt+1, "max", r.maxRetries, "error", err)
		} else {
			r.logger.Warn("retrying request", "service", r.name, "attempt", attempt+1, "max", r.maxRetries, "status", resp.StatusCode)
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
		}

		backoff := r.backoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		// Deadline and cancellation are final.
		return 0, !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return 0, false
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}

	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: backoff interrupted: %w", shared.ErrTimeout, ctx.Err())
	case <-timer.C:
		return nil
	}
}
