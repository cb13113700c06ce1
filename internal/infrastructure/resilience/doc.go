/*
Package resilience provides circuit breakers for calls to remote upstreams.

# Overview

A Breaker stops calling an upstream that keeps failing, fails fast while it is open and lets
a limited number of trial calls through once the cooldown has passed. A Group keeps one
breaker per upstream key, so the page importer can refuse a dead host while still fetching
from healthy ones.

# Usage

	breakers := resilience.NewGroup("fetch", resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsFailure: isUpstreamFailure,
	}, 0)

	page, err := resilience.Call(breakers.Get(host), func() (*Page, error) {
		return fetch(ctx, target)
	})

Errors that IsFailure rejects (a 404, a body that is not HTML) still reach the caller but do
not count against the upstream.

# States

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                                |
	                                            [failure]
	                                                |
	                                                v
	                                              Open
*/
package resilience
