// Package http provides HTTP handlers and routing for the playground REST API.
//
// This package implements all HTTP endpoints using the Gin framework. Every page
// operation is forwarded onto the page's own loop through session.Page.Do.
//
// Endpoints:
//   - Health: /health
//   - Library: /library
//   - Pages: /pages, /pages/:id, /pages/:id/scan
//   - Widgets: /pages/:id/widgets/:wid, .../fields/:field, .../run, .../preview
//
// Errors are returned as {"error": message} with a status mapped from the domain
// sentinel errors.
//
// Example Usage:
//
//	handlers := http.NewHandlers(manager, library, fetcher, metrics, logger)
//	handlers.Register(router)
package http
