// Package ai generates article text through an AI provider. Calls are
// guarded and responses cached under "ai:{topic}:{language}".
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/guard"
)

// Sentinel errors for AI generation.
var (
	ErrMissingAPIKey = errors.New("ai: api key is required")
	ErrEmptyTopic    = errors.New("ai: topic is required")
	ErrNoOutput      = errors.New("ai: provider returned no output")
)

// Request describes one generation.
type Request struct {
	Topic    string
	Language string
	// Prompt is the user prompt sent to the model.
	Prompt string
	// System is an optional system instruction.
	System string
}

// Response is the generated text and its token usage.
type Response struct {
	Text         string `msgpack:"text"`
	Model        string `msgpack:"model"`
	InputTokens  int64  `msgpack:"inputTokens"`
	OutputTokens int64  `msgpack:"outputTokens"`
}

// Generator produces text for a request.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: provider failures are returned with enough text to classify them.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// CacheKey returns the cache key for req.
func CacheKey(req Request) string {
	topic := strings.ReplaceAll(cache.NormalizeQuery(req.Topic), " ", "-")
	lang := strings.ToLower(strings.TrimSpace(req.Language))
	if lang == "" {
		lang = "und"
	}
	return cache.Key(cache.CategoryAI, topic+":"+lang)
}

// Guarded runs a Generator through a guard.Service.
type Guarded struct {
	gen Generator
	svc *guard.Service
	ttl time.Duration
}

// NewGuarded wraps gen. A non-positive ttl uses cache.TTLAI.
func NewGuarded(gen Generator, svc *guard.Service, ttl time.Duration) *Guarded {
	if ttl <= 0 {
		ttl = cache.TTLAI
	}
	return &Guarded{gen: gen, svc: svc, ttl: ttl}
}

// Generate returns the cached response for req's topic and language, or
// generates and caches a new one.
func (g *Guarded) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return Response{}, ErrEmptyTopic
	}
	return guard.Call(ctx, g.svc, CacheKey(req), g.ttl, func(ctx context.Context) (Response, error) {
		return g.gen.Generate(ctx, req)
	})
}

var _ Generator = (*Guarded)(nil)
