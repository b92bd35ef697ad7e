package runner

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultTimeout     = 120 * time.Second

	// defaultRate throttles integration calls; clinical generation runs are
	// long batches and endpoint quotas are shared with the review UI.
	defaultRate  = rate.Limit(2)
	defaultBurst = 4
)

// invoker is the shared HTTP path for all runners: token-bucket rate
// limiting, classified errors, and exponential-backoff retries on transient
// failures.
type invoker struct {
	client      *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	integration string
	modelID     string
}

func newInvoker(integration, modelID string) *invoker {
	return &invoker{
		client:      &http.Client{Timeout: defaultTimeout},
		limiter:     rate.NewLimiter(defaultRate, defaultBurst),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		integration: integration,
		modelID:     modelID,
	}
}

// do executes the request built by build, retrying transient failures.
// A fresh request is built per attempt so bodies can be re-read.
func (iv *invoker) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	delay := iv.baseDelay

	for attempt := 1; attempt <= iv.maxAttempts; attempt++ {
		if err := iv.limiter.Wait(ctx); err != nil {
			return nil, iv.wrap(ErrorTypeTimeout, "rate limiter wait canceled", 0, err)
		}

		body, err := iv.once(ctx, build)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == iv.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, iv.wrap(ErrorTypeTimeout, "canceled between attempts", 0, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

func (iv *invoker) once(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := iv.client.Do(req)
	if err != nil {
		return nil, iv.wrap(iv.classifyTransport(err), "request failed", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, iv.wrap(ErrorTypeNetwork, "reading response body", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, iv.wrap(classifyStatus(resp.StatusCode), msg, resp.StatusCode, nil)
	}
	return body, nil
}

func (iv *invoker) classifyTransport(err error) ErrorType {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

func (iv *invoker) wrap(t ErrorType, msg string, status int, cause error) *Error {
	return &Error{
		Integration: iv.integration,
		ModelID:     iv.modelID,
		Type:        t,
		StatusCode:  status,
		Message:     msg,
		Cause:       cause,
	}
}
