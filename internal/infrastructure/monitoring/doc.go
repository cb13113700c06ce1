/*
Package monitoring provides metrics collection for the playground host.

# Overview

Prometheus collectors cover HTTP traffic, page sessions, widget lifecycle (initializations,
renders, load outcomes, forwarded console lines, coalesced edits, script time) and WebSocket
streams. A small snapshot of running totals backs the JSON health endpoint.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	defer metrics.Stop()

	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "pages", "import")
	// ... perform operation ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
