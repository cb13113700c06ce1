// Package middleware provides the HTTP middleware stack for the playground backend.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing for editors embedded on other hosts
//   - RateLimit: Per-IP token bucket rate limiting with idle bucket sweeping
//   - RequestID: UUID tagging echoed in X-Request-ID
//   - Logger: One zap line per request
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
