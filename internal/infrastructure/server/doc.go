// Package server assembles the playground backend: logger, metrics registry, page
// library, remote fetcher, session manager, gin router and the HTTP listener.
package server
