package guard

import (
	"time"

	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

var transient = []resilience.Kind{
	resilience.KindNetwork,
	resilience.KindTimeout,
	resilience.KindAPILimit,
}

// DefaultPolicies returns the retry policy for each pipeline service.
func DefaultPolicies() map[string]resilience.RetryPolicy {
	return map[string]resilience.RetryPolicy{
		resilience.ServiceAI: {
			MaxRetries:        3,
			InitialDelay:      2 * time.Second,
			Multiplier:        2,
			MaxDelay:          30 * time.Second,
			JitterFraction:    0.1,
			RetryableKinds:    transient,
			RetryableServices: []string{resilience.ServiceAI},
		},
		resilience.ServiceImages: {
			MaxRetries:     2,
			InitialDelay:   time.Second,
			Multiplier:     2,
			MaxDelay:       10 * time.Second,
			JitterFraction: 0.1,
			RetryableKinds: transient,
		},
		resilience.ServiceTrends: {
			MaxRetries:     2,
			InitialDelay:   time.Second,
			Multiplier:     2,
			MaxDelay:       10 * time.Second,
			JitterFraction: 0.1,
			RetryableKinds: transient,
		},
		resilience.ServiceCMS: {
			MaxRetries:     3,
			InitialDelay:   time.Second,
			Multiplier:     2,
			MaxDelay:       20 * time.Second,
			JitterFraction: 0.1,
			RetryableKinds: transient,
		},
	}
}

// PolicyFor returns the default policy for service, falling back to
// resilience.DefaultPolicy for services outside the pipeline.
func PolicyFor(service string) resilience.RetryPolicy {
	if p, ok := DefaultPolicies()[service]; ok {
		return p
	}
	return resilience.DefaultPolicy()
}
