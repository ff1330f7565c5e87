package resilience

import (
	"context"
	"errors"
	"strings"
)

// Kind is the fixed failure taxonomy used across the substrate.
type Kind int

const (
	// KindUnknown is the default when no marker matches.
	KindUnknown Kind = iota
	// KindTimeout marks deadline and timeout failures.
	KindTimeout
	// KindNetwork marks transport failures.
	KindNetwork
	// KindAPILimit marks provider quota and rate limit rejections.
	KindAPILimit
	// KindAuth marks rejected credentials.
	KindAuth
	// KindService marks a provider-specific failure; see Classification.Service.
	KindService
	// KindInvalidData marks malformed input or output.
	KindInvalidData
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindAPILimit:
		return "api_limit"
	case KindAuth:
		return "auth"
	case KindService:
		return "service"
	case KindInvalidData:
		return "invalid_data"
	default:
		return "unknown"
	}
}

// ParseKind returns the kind named s, as produced by Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k := KindUnknown; k <= KindInvalidData; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Service vocabularies recognised by the default rule table.
const (
	ServiceCMS    = "cms"
	ServiceAI     = "ai"
	ServiceImages = "images"
	ServiceTrends = "trends"
)

// Classification is one taxonomy tag. Service is set only for KindService.
type Classification struct {
	Kind    Kind
	Service string
}

// String returns "service:<name>" for service-specific tags, otherwise the kind.
func (c Classification) String() string {
	if c.Kind == KindService && c.Service != "" {
		return "service:" + c.Service
	}
	return c.Kind.String()
}

// Of builds a plain classification.
func Of(kind Kind) Classification {
	return Classification{Kind: kind}
}

// ServiceSpecific builds a service-specific classification.
func ServiceSpecific(service string) Classification {
	return Classification{Kind: KindService, Service: service}
}

// Rule maps lower-case substrings to a classification.
type Rule struct {
	Result  Classification
	Markers []string
}

// DefaultRules returns the ordered rule table. Order is part of the contract:
// the first matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{Result: Of(KindTimeout), Markers: []string{"timeout", "timed out"}},
		{Result: Of(KindNetwork), Markers: []string{"network", "connection", "dns", "unreachable"}},
		{Result: Of(KindAPILimit), Markers: []string{"rate limit", "quota exceeded", "429", "too many requests"}},
		{Result: Of(KindAuth), Markers: []string{"401", "403", "unauthorized", "forbidden"}},
		{Result: ServiceSpecific(ServiceCMS), Markers: []string{"wordpress", "wp_error", "rest_", "term_exists", "jwt_auth"}},
		{Result: ServiceSpecific(ServiceAI), Markers: []string{"openai", "gemini", "content_filter", "context_length", "safety"}},
		{Result: ServiceSpecific(ServiceImages), Markers: []string{"unsplash", "pexels", "no images found"}},
		{Result: ServiceSpecific(ServiceTrends), Markers: []string{"serpapi", "google trends", "trends feed"}},
		{Result: Of(KindInvalidData), Markers: []string{"invalid", "malformed", "parse", "json"}},
	}
}

// Classifier derives a Classification from raw error text.
//
// Contract:
//   - Concurrency: safe for concurrent use; the rule table is immutable after construction.
//   - Determinism: the same message always yields the same classification.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over the given ordered rules.
// With no rules, DefaultRules is used.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		markers := make([]string, len(r.Markers))
		for j, m := range r.Markers {
			markers[j] = strings.ToLower(m)
		}
		normalized[i] = Rule{Result: r.Result, Markers: markers}
	}

	return &Classifier{rules: normalized}
}

var defaultClassifier = NewClassifier()

// Classify classifies a message with the default rule table.
func Classify(message string) Classification {
	return defaultClassifier.Classify(message)
}

// ClassifyError classifies an error with the default rule table.
func ClassifyError(err error) Classification {
	return defaultClassifier.ClassifyError(err)
}

// Classify returns the first rule whose markers appear in message.
func (c *Classifier) Classify(message string) Classification {
	lower := strings.ToLower(message)
	for _, r := range c.rules {
		for _, m := range r.Markers {
			if strings.Contains(lower, m) {
				return r.Result
			}
		}
	}
	return Of(KindUnknown)
}

// ClassifyError classifies err. An already classified *Error keeps its tag and
// context deadlines are timeouts regardless of their text.
func (c *Classifier) ClassifyError(err error) Classification {
	if err == nil {
		return Of(KindUnknown)
	}
	if re, ok := AsError(err); ok {
		return re.Classification
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return Of(KindTimeout)
	}
	if errors.Is(err, ErrRateLimitExceeded) {
		return Of(KindAPILimit)
	}
	return c.Classify(err.Error())
}

// Rules returns a copy of the classifier's ordered rules.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
