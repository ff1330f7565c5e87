// Package health reports whether the substrate can serve calls.
//
// Checkers cover cache store reachability (StoreChecker over
// TieredCache.Ping), rate window saturation (LimiterChecker, degraded at
// 80% of a window by default), the expired-entry backlog (BacklogChecker)
// and process memory. An Aggregator runs them in parallel under a timeout;
// the worst status wins.
//
//	agg := health.NewAggregator(health.AggregatorConfig{},
//	    health.StoreChecker("cache", tiered),
//	    health.LimiterChecker(limiter, 0),
//	)
//	health.RegisterHandlers(mux, agg)
//
// /healthz is liveness, /readyz answers 503 only when a check is unhealthy,
// and /health returns every result as JSON.
package health
