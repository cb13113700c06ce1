package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const userAgent = "TinySandbox-Import/1.0"

var (
	ErrInvalidURL  = errors.New("invalid page url")
	ErrBadStatus   = errors.New("unexpected response status")
	ErrTooLarge    = errors.New("page too large")
	ErrNotHTML     = errors.New("response is not html")
	ErrRateLimited = errors.New("fetch rate limit exceeded")
)

// Page is a fetched host page.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// Options tunes a Fetcher beyond its config. Zero values select defaults.
type Options struct {
	MaxBytes     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // fetches per second, 0 for unlimited
}

// Fetcher downloads host pages for import.
type Fetcher struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	maxBytes int
	logger   *logging.Logger
}

// upstreamError marks a failure of the remote host itself. Only these count against the
// host's circuit breaker.
type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

func isUpstreamFailure(err error) bool {
	var ue *upstreamError
	return errors.As(err, &ue)
}

// NewFetcher creates a fetcher from the remote import config.
func NewFetcher(cfg config.FetchConfig, opts Options, logger *logging.Logger) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = browser.MaxHTMLSize
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 500 * time.Millisecond
	}
	if opts.RetryWaitMax < opts.RetryWaitMin {
		opts.RetryWaitMax = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("fetch")

	// retryablehttp supplies the pooled transport; resty drives the retries.
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(opts.RetryWaitMin).
		SetRetryMaxWaitTime(opts.RetryWaitMax).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5").
		SetResponseBodyLimit(opts.MaxBytes).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		})
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	// One breaker per remote host: a dead host fails fast without blocking the others.
	failures := uint32(cfg.BreakerFailures)
	breakers := resilience.NewGroup("fetch", resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsFailure: isUpstreamFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}, 0)

	return &Fetcher{
		resty:    restyClient,
		limiter:  limiter,
		breakers: breakers,
		maxBytes: opts.MaxBytes,
		logger:   logger,
	}
}

// OpenHosts lists the remote hosts whose breaker currently refuses fetches.
func (f *Fetcher) OpenHosts() []string {
	return f.breakers.Open()
}

// Fetch downloads rawURL and returns it if it looks like an HTML page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	target, host, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if !f.limiter.Allow() {
		return nil, ErrRateLimited
	}

	page, err := resilience.Call(f.breakers.Get(host), func() (*Page, error) {
		return f.fetch(ctx, target)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, fmt.Errorf("failed to fetch %s: host %s: %w", target, host, err)
	}
	return page, err
}

func (f *Fetcher) fetch(ctx context.Context, target string) (*Page, error) {
	start := time.Now()
	resp, err := f.resty.R().SetContext(ctx).Get(target)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, f.maxBytes)
	}
	if err != nil {
		err = fmt.Errorf("failed to fetch %s: %w", target, err)
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &upstreamError{err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		err := fmt.Errorf("%w: %s returned %d", ErrBadStatus, target, resp.StatusCode())
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, &upstreamError{err: err}
		}
		return nil, err
	}

	body := resp.Body()
	if len(body) > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(body), f.maxBytes)
	}

	contentType := resp.Header().Get("Content-Type")
	if !isHTML(contentType, body) {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	f.logger.Info("page fetched",
		zap.String("url", target),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	return &Page{URL: target, ContentType: contentType, Body: body}, nil
}

// parseURL returns the normalized URL and the host its breaker is keyed by.
func parseURL(rawURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u.String(), strings.ToLower(u.Host), nil
}

// isHTML trusts a declared html content type and sniffs everything else.
func isHTML(contentType string, body []byte) bool {
	declared := strings.ToLower(contentType)
	if strings.Contains(declared, "text/html") || strings.Contains(declared, "application/xhtml") {
		return true
	}
	return mimetype.Detect(body).Is("text/html")
}
