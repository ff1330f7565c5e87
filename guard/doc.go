// Package guard wraps every external call of the content pipeline.
//
// A [Service] binds one rate-limited service name to the shared cache, the
// shared rate limiter and that service's retry policy. [Call] then runs:
//
//	cache lookup → rate-limit admission → circuit breaker → retry → cache store
//
// A cache hit returns without consuming rate-limit quota. Only successful
// results are stored. Failures surface as a single *resilience.Error carrying
// the classification and the number of attempts; [Service.Report] renders
// them for operators.
package guard
