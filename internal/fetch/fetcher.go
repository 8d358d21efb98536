// Package fetch performs rate-limited HTTP GETs with retry and backoff.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"enforcement_scraper/internal/ratelimit"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0"

type Config struct {
	Timeout             time.Duration
	MaxAttempts         int
	RetryBackoff        time.Duration
	RateLimitMultiplier int
	UserAgent           string
}

// Fetcher fetches raw page bodies. Every attempt first takes a permit from
// the limiter registered for the URL's host.
type Fetcher struct {
	http       *resty.Client
	limiters   *ratelimit.Registry
	attempts   int
	backoff    time.Duration
	multiplier int
	logger     *slog.Logger
}

func New(cfg Config, limiters *ratelimit.Registry, logger *slog.Logger) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.RateLimitMultiplier < 1 {
		cfg.RateLimitMultiplier = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if limiters == nil {
		limiters = ratelimit.NewRegistry(ratelimit.Config{})
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.SetHeader("Accept-Language", "en-GB,en")
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiters.For(req.URL).Acquire(req.Context())
	})

	return &Fetcher{
		http:       client,
		limiters:   limiters,
		attempts:   cfg.MaxAttempts,
		backoff:    cfg.RetryBackoff,
		multiplier: cfg.RateLimitMultiplier,
		logger:     logger.With("component", "fetcher"),
	}
}

// Fetch returns the body of url. Timeouts, 5xx and 429 responses are retried
// up to the configured number of attempts; other 4xx responses fail at once.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr *Error

	for attempt := 1; attempt <= f.attempts; attempt++ {
		body, ferr := f.do(ctx, url)
		if ferr == nil {
			return body, nil
		}
		ferr.Attempts = attempt
		lastErr = ferr

		if ctx.Err() != nil {
			return nil, &Error{Kind: KindOther, URL: url, Attempts: attempt, Err: ctx.Err()}
		}
		if !ferr.Retryable() || attempt == f.attempts {
			break
		}

		wait := f.backoffFor(ferr)
		f.logger.Warn("request failed, retrying",
			"url", url,
			"attempt", attempt,
			"backoff", wait,
			"error", ferr,
		)

		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindOther, URL: url, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, *Error) {
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, &Error{Kind: KindTimeout, URL: url, Err: err}
		}
		return nil, &Error{Kind: KindOther, URL: url, Err: fmt.Errorf("execute request: %w", err)}
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, Status: status, URL: url, Err: retryAfter(resp)}
	case status < 200 || status >= 300:
		return nil, &Error{Kind: KindHTTPStatus, Status: status, URL: url}
	}

	return resp.Body(), nil
}

func (f *Fetcher) backoffFor(err *Error) time.Duration {
	if err.Kind != KindRateLimited {
		return f.backoff
	}
	wait := f.backoff * time.Duration(f.multiplier)
	var ra retryAfterError
	if errors.As(err.Err, &ra) && ra.wait > wait {
		wait = ra.wait
	}
	return wait
}

type retryAfterError struct {
	wait time.Duration
}

func (e retryAfterError) Error() string {
	return "retry after " + e.wait.String()
}

func retryAfter(resp *resty.Response) error {
	secs, err := strconv.Atoi(resp.Header().Get("Retry-After"))
	if err != nil || secs <= 0 {
		return nil
	}
	return retryAfterError{wait: time.Duration(secs) * time.Second}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
