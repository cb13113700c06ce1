// Package main is the entry point for the TinySandbox backend server.
//
// The server hosts playground pages: it parses a host document, turns every
// tiny-sandbox container into a live widget, runs each widget's HTML, CSS and JS in an
// isolated runtime, and streams console output and syntax-error state back to editors.
//
// The server provides:
//   - REST API for page sessions and widget edits
//   - WebSocket streaming of widget events
//   - A disk library of host pages and remote page import
//   - Prometheus metrics and rate limiting
//
// Configuration:
//   - Environment variables (12-factor)
//   - YAML or TOML config file (-config, overrides env vars)
//   - CLI flags (override both)
//   - Defaults for development
//
// Usage:
//
//	# Serve the pages under ./pages on port 8000
//	./server -port 8000 -pages ./pages
//
//	# Settings from a YAML or TOML file
//	./server -config sandbox.yaml
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
