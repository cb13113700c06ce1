// Package client imports host pages from remote URLs.
//
// Fetcher is built on go-resty/resty over a go-retryablehttp pooled transport:
//   - Automatic retries with exponential backoff on 5xx responses
//   - A circuit breaker per remote host (internal/infrastructure/resilience); 404s and
//     non-HTML bodies do not count against the host
//   - Context-based cancellation
//   - A client-wide rate limit on outgoing fetches
//   - A response body limit enforced while reading, plus content checks before a body is
//     handed to the session layer
//
// Example Usage:
//
//	fetcher := client.NewFetcher(cfg.Fetch, client.Options{MaxBytes: cfg.Session.MaxPageBytes}, logger)
//	page, err := fetcher.Fetch(ctx, "https://example.com/playground.html")
package client
