package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Sentinel errors for reference resolution.
var (
	ErrUnknownProvider = errors.New("secret: provider is not registered")
	ErrEmptySecret     = errors.New("secret: provider returned an empty value")
)

const refPrefix = "secretref:"

// Resolver expands environment variables and secret references in
// configuration values.
//
// A value that is exactly "secretref:<provider>:<ref>" is replaced by the
// secret; references embedded in longer strings are replaced in place.
type Resolver struct {
	providers map[string]Provider
	lookup    LookupFunc
	strict    bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProvider registers p under p.Name().
func WithProvider(p Provider) ResolverOption {
	return func(r *Resolver) {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
}

// WithLookup replaces os.LookupEnv for ${VAR} expansion.
func WithLookup(fn LookupFunc) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.lookup = fn
		}
	}
}

// Strict makes empty secrets an error.
func Strict() ResolverOption {
	return func(r *Resolver) { r.strict = true }
}

// NewResolver creates a resolver. The "env" provider is always registered.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	for _, opt := range opts {
		opt(r)
	}
	if r.lookup == nil {
		r.lookup = os.LookupEnv
	}
	if _, ok := r.providers["env"]; !ok {
		r.providers["env"] = NewEnvProvider(r.lookup)
	}
	return r
}

// Resolve expands value. A nil Resolver only expands the environment.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if r == nil {
		return ExpandEnvStrict(value)
	}
	expanded, err := Expand(value, r.lookup)
	if err != nil {
		return "", err
	}
	if !strings.Contains(expanded, refPrefix) {
		return expanded, nil
	}
	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.resolveRef(ctx, provider, ref)
	}
	return r.resolveInline(ctx, expanded)
}

// ResolveAll resolves every pointer in place and stops at the first error.
func (r *Resolver) ResolveAll(ctx context.Context, values ...*string) error {
	for _, v := range values {
		if v == nil || *v == "" {
			continue
		}
		out, err := r.Resolve(ctx, *v)
		if err != nil {
			return err
		}
		*v = out
	}
	return nil
}

// ParseSecretRef splits "secretref:<provider>:<ref>".
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) resolveRef(ctx context.Context, provider, ref string) (string, error) {
	p, ok := r.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && v == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, provider)
	}
	return v, nil
}

var inlineRef = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

func (r *Resolver) resolveInline(ctx context.Context, value string) (string, error) {
	var firstErr error
	out := inlineRef.ReplaceAllStringFunc(value, func(m string) string {
		if firstErr != nil {
			return m
		}
		provider, ref, _ := ParseSecretRef(m)
		v, err := r.resolveRef(ctx, provider, ref)
		if err != nil {
			firstErr = err
			return m
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
