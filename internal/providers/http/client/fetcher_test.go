package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostPage = `<!DOCTYPE html><html><body><div class="tiny-sandbox"></div></body></html>`

func newTestFetcher(retries int, opts Options) *Fetcher {
	opts.RetryWaitMin = time.Millisecond
	opts.RetryWaitMax = 5 * time.Millisecond
	return NewFetcher(config.FetchConfig{Timeout: 5 * time.Second, Retries: retries}, opts, nil)
}

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(hostPage))
	}))
	defer srv.Close()

	page, err := newTestFetcher(0, Options{}).Fetch(context.Background(), srv.URL+"/page.html")
	require.NoError(t, err)

	assert.Equal(t, hostPage, string(page.Body))
	assert.Equal(t, srv.URL+"/page.html", page.URL)
	assert.Contains(t, page.ContentType, "text/html")
}

func TestFetchSniffsUndeclaredHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(hostPage))
	}))
	defer srv.Close()

	_, err := newTestFetcher(0, Options{}).Fetch(context.Background(), srv.URL)
	assert.NoError(t, err)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(hostPage))
	}))
	defer srv.Close()

	_, err := newTestFetcher(3, Options{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"widgets": []}`))
		case "/large":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>" + strings.Repeat("x", 256) + "</body></html>"))
		}
	}))
	defer srv.Close()

	fetcher := newTestFetcher(0, Options{MaxBytes: 128})

	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "not found", url: srv.URL + "/missing", want: ErrBadStatus},
		{name: "json body", url: srv.URL + "/json", want: ErrNotHTML},
		{name: "too large", url: srv.URL + "/large", want: ErrTooLarge},
		{name: "file scheme", url: "file:///etc/passwd", want: ErrInvalidURL},
		{name: "no host", url: "http://", want: ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), tt.url)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(hostPage))
	}))
	defer srv.Close()

	fetcher := newTestFetcher(0, Options{RateLimit: 1})

	_, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher(0, Options{}).Fetch(ctx, srv.URL)
	assert.Error(t, err)
}

func TestFetchBreakerOpensPerHost(t *testing.T) {
	var calls atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(hostPage))
	}))
	defer healthy.Close()

	fetcher := NewFetcher(config.FetchConfig{
		Timeout:         5 * time.Second,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}, Options{}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := fetcher.Fetch(ctx, failing.URL)
		assert.ErrorIs(t, err, ErrBadStatus)
	}

	_, err := fetcher.Fetch(ctx, failing.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "an open breaker must not reach the host")
	assert.Len(t, fetcher.OpenHosts(), 1)

	_, err = fetcher.Fetch(ctx, healthy.URL)
	assert.NoError(t, err)
}

func TestFetchClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewFetcher(config.FetchConfig{Timeout: 5 * time.Second, BreakerFailures: 1}, Options{}, nil)

	for i := 0; i < 3; i++ {
		_, err := fetcher.Fetch(context.Background(), srv.URL+"/missing")
		assert.ErrorIs(t, err, ErrBadStatus)
		_, err = fetcher.Fetch(context.Background(), srv.URL+"/json")
		assert.ErrorIs(t, err, ErrNotHTML)
	}
	assert.Empty(t, fetcher.OpenHosts())
}

func TestFetchStopsReadingAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		// Streamed without a Content-Length.
		flusher := w.(http.Flusher)
		chunk := []byte(strings.Repeat("x", 1024))
		for i := 0; i < 64; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	defer srv.Close()

	_, err := newTestFetcher(0, Options{MaxBytes: 4096}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}
