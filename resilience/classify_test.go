package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Classification
	}{
		{"Request timed out due to network error", Of(KindTimeout)},
		{"network error: request timed out", Of(KindTimeout)},
		{"read tcp: i/o timeout", Of(KindTimeout)},
		{"dial tcp: connection refused", Of(KindNetwork)},
		{"DNS lookup failed", Of(KindNetwork)},
		{"HTTP 429 Too Many Requests", Of(KindAPILimit)},
		{"Quota exceeded for project", Of(KindAPILimit)},
		{"rate limit hit, slow down", Of(KindAPILimit)},
		{"401 Unauthorized", Of(KindAuth)},
		{"Forbidden: token expired", Of(KindAuth)},
		{"rest_forbidden: Sorry, you are not allowed to do that.", Of(KindAuth)},
		{"rest_cannot_create: Sorry, you are not allowed to create terms.", ServiceSpecific(ServiceCMS)},
		{"term_exists: A term with the name provided already exists", ServiceSpecific(ServiceCMS)},
		{"WordPress returned an unexpected payload", ServiceSpecific(ServiceCMS)},
		{"openai: context_length_exceeded", ServiceSpecific(ServiceAI)},
		{"response blocked by safety filters", ServiceSpecific(ServiceAI)},
		{"No images found for query", ServiceSpecific(ServiceImages)},
		{"trends feed returned no items", ServiceSpecific(ServiceTrends)},
		{"invalid character '<' looking for beginning of value", Of(KindInvalidData)},
		{"could not parse response", Of(KindInvalidData)},
		{"something odd happened", Of(KindUnknown)},
		{"", Of(KindUnknown)},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := Classify(tt.msg); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	variants := []string{
		"Request timed out due to network error",
		"REQUEST TIMED OUT DUE TO NETWORK ERROR",
		"network error caused the request to time out (timeout)",
		"connection reset; timeout while reading",
	}

	for _, msg := range variants {
		for i := 0; i < 10; i++ {
			if got := Classify(msg); got.Kind != KindTimeout {
				t.Fatalf("Classify(%q) = %v, want timeout", msg, got)
			}
		}
	}
}

func TestClassifyError(t *testing.T) {
	classified := &Error{Err: errors.New("anything"), Classification: Of(KindAuth), Attempts: 1}

	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"nil", nil, Of(KindUnknown)},
		{"deadline", context.DeadlineExceeded, Of(KindTimeout)},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), Of(KindTimeout)},
		{"timeout sentinel", ErrTimeout, Of(KindTimeout)},
		{"limiter sentinel", ErrRateLimitExceeded, Of(KindAPILimit)},
		{"already classified", fmt.Errorf("outer network: %w", classified), Of(KindAuth)},
		{"text", errors.New("malformed JSON body"), Of(KindInvalidData)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewClassifier_CustomRules(t *testing.T) {
	c := NewClassifier(
		Rule{Result: ServiceSpecific("billing"), Markers: []string{"PAYMENT_REQUIRED"}},
		Rule{Result: Of(KindNetwork), Markers: []string{"eof"}},
	)

	if got := c.Classify("402 payment_required"); got != ServiceSpecific("billing") {
		t.Errorf("Classify() = %v, want service:billing", got)
	}
	if got := c.Classify("unexpected EOF"); got.Kind != KindNetwork {
		t.Errorf("Classify() = %v, want network", got)
	}
	if got := c.Classify("timeout"); got.Kind != KindUnknown {
		t.Errorf("custom table should not fall back to defaults, got %v", got)
	}
}

func TestClassifier_RulesIsCopy(t *testing.T) {
	c := NewClassifier()
	rules := c.Rules()
	rules[0] = Rule{Result: Of(KindAuth), Markers: []string{"timeout"}}

	if got := c.Classify("timeout"); got.Kind != KindTimeout {
		t.Errorf("mutating Rules() changed classifier: got %v", got)
	}
}

func TestClassification_String(t *testing.T) {
	tests := []struct {
		c    Classification
		want string
	}{
		{Of(KindTimeout), "timeout"},
		{Of(KindNetwork), "network"},
		{Of(KindAPILimit), "api_limit"},
		{Of(KindAuth), "auth"},
		{Of(KindInvalidData), "invalid_data"},
		{Of(KindUnknown), "unknown"},
		{ServiceSpecific(ServiceCMS), "service:cms"},
		{Of(KindService), "service"},
		{Classification{Kind: Kind(42)}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.c.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for k := KindUnknown; k <= KindInvalidData; k++ {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("quota"); ok {
		t.Error("ParseKind(quota) should fail")
	}
}
