// Package cms is a WordPress REST client for taxonomy terms and posts.
//
// Terms are cached under "cms:{taxonomy}:{slug}" and the bearer token under
// "cms:token" until shortly before it expires.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/guard"
	"github.com/dlwpdl/eunsense-automation-sub000/internal/httpx"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

// Taxonomies accepted by EnsureTerm and EnsureTerms.
const (
	TaxonomyCategories = "categories"
	TaxonomyTags       = "tags"
)

// TokenKey is the cache key of the bearer token.
var TokenKey = cache.Key(cache.CategoryCMS, "token")

// Sentinel errors for CMS operations.
var (
	ErrMissingBaseURL   = errors.New("cms: base url is required")
	ErrMissingCreds     = errors.New("cms: username and password are required")
	ErrInvalidTaxonomy  = errors.New("cms: taxonomy must be categories or tags")
	ErrEmptyTermName    = errors.New("cms: term name is required")
	ErrMissingToken     = errors.New("cms: token endpoint returned no token")
	ErrMissingPostTitle = errors.New("cms: post title is required")
)

// Config configures the client.
type Config struct {
	// BaseURL is the site root, e.g. https://blog.example.com.
	BaseURL  string
	Username string
	Password string

	// TokenPath is the JWT endpoint under /wp-json.
	// Default: /jwt-auth/v1/token
	TokenPath string

	// Timeout bounds one request.
	// Default: httpx.DefaultTimeout
	Timeout time.Duration

	// TermTTL is the cache lifetime of a resolved term.
	// Default: cache.TTLCMS
	TermTTL time.Duration

	// TermConcurrency bounds the lookups EnsureTerms runs at once.
	// Default: 4
	TermConcurrency int

	// TokenSkew is subtracted from the token expiry when caching it.
	// Default: 1 minute
	TokenSkew time.Duration

	// TokenTTL is used for tokens without an exp claim.
	// Default: 1 hour
	TokenTTL time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Term is a category or tag.
type Term struct {
	ID       int64  `msgpack:"id"`
	Name     string `msgpack:"name"`
	Slug     string `msgpack:"slug"`
	Taxonomy string `msgpack:"taxonomy"`
}

// Post is a post to publish.
type Post struct {
	Title         string
	Content       string
	Excerpt       string
	Status        string
	Categories    []int64
	Tags          []int64
	FeaturedMedia int64
}

// PostResult describes a created post.
type PostResult struct {
	ID     int64  `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Err     error
	Code    string
	Message string
	// TermID is set by term_exists rejections.
	TermID int64
}

func (e *APIError) Error() string { return "cms: " + e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

// Client talks to one WordPress site.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: failures carry the HTTP status code and reason phrase.
type Client struct {
	cfg   Config
	http  *fasthttp.Client
	svc   *guard.Service
	terms *resilience.Bulkhead
}

// New creates a client that runs through svc. The token cache is svc's cache.
func New(cfg Config, svc *guard.Service) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, ErrMissingCreds
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TokenPath == "" {
		cfg.TokenPath = "/jwt-auth/v1/token"
	}
	if cfg.TermTTL <= 0 {
		cfg.TermTTL = cache.TTLCMS
	}
	if cfg.TokenSkew <= 0 {
		cfg.TokenSkew = time.Minute
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		cfg:   cfg,
		http:  httpx.NewClient("eunsense-cms"),
		svc:   svc,
		terms: resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: cfg.TermConcurrency}),
	}, nil
}

// TermKey returns the cache key for a term.
func TermKey(taxonomy, slug string) string {
	return cache.Key(cache.CategoryCMS, taxonomy+":"+slug)
}

// Slugify lowercases name and joins its letter and digit runs with '-'.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// Token returns a bearer token, from cache when still valid.
func (c *Client) Token(ctx context.Context) (string, error) {
	if tok, ok := cache.GetValue[string](ctx, c.svc.Cache(), TokenKey); ok {
		return tok, nil
	}
	var tok string
	err := c.svc.Do(ctx, func(ctx context.Context) error {
		var err error
		tok, err = c.fetchToken(ctx)
		return err
	})
	return tok, err
}

// token is Token without its own guard, for use inside guarded calls.
func (c *Client) token(ctx context.Context) (string, error) {
	if tok, ok := cache.GetValue[string](ctx, c.svc.Cache(), TokenKey); ok {
		return tok, nil
	}
	return c.fetchToken(ctx)
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	creds := map[string]string{"username": c.cfg.Username, "password": c.cfg.Password}
	if err := c.send(ctx, fasthttp.MethodPost, c.cfg.TokenPath, "", creds, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", ErrMissingToken
	}

	ttl := c.cfg.TokenTTL
	if exp, ok := TokenExpiry(out.Token); ok {
		ttl = exp.Sub(c.cfg.Now()) - c.cfg.TokenSkew
	}
	if ttl > 0 {
		cache.SetValue(ctx, c.svc.Cache(), TokenKey, out.Token, ttl)
	}
	return out.Token, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The site verifies the token; the client only needs to know when to refresh.
func TokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type wpTerm struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// EnsureTerm returns the term named name in taxonomy, creating it when it
// does not exist.
func (c *Client) EnsureTerm(ctx context.Context, taxonomy, name string) (Term, error) {
	if taxonomy != TaxonomyCategories && taxonomy != TaxonomyTags {
		return Term{}, ErrInvalidTaxonomy
	}
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if slug == "" {
		return Term{}, ErrEmptyTermName
	}

	return guard.Call(ctx, c.svc, TermKey(taxonomy, slug), c.cfg.TermTTL, func(ctx context.Context) (Term, error) {
		return c.ensureTerm(ctx, taxonomy, name, slug)
	})
}

// EnsureTerms resolves every name in taxonomy, creating missing terms.
// Terms are returned in the order of names. A failed name leaves a zero Term
// at its index, and the returned error joins every failure.
func (c *Client) EnsureTerms(ctx context.Context, taxonomy string, names []string) ([]Term, error) {
	if taxonomy != TaxonomyCategories && taxonomy != TaxonomyTags {
		return nil, ErrInvalidTaxonomy
	}
	terms := make([]Term, len(names))
	indexes := make([]int, len(names))
	for i := range indexes {
		indexes[i] = i
	}

	err := resilience.ForEach(ctx, c.terms, indexes, func(ctx context.Context, i int) error {
		term, err := c.EnsureTerm(ctx, taxonomy, names[i])
		if err != nil {
			return fmt.Errorf("term %q: %w", names[i], err)
		}
		terms[i] = term
		return nil
	})
	return terms, err
}

func (c *Client) ensureTerm(ctx context.Context, taxonomy, name, slug string) (Term, error) {
	var found []wpTerm
	if err := c.authed(ctx, fasthttp.MethodGet, "/wp/v2/"+taxonomy+"?slug="+escape(slug), nil, &found); err != nil {
		return Term{}, err
	}
	if len(found) > 0 {
		return Term{ID: found[0].ID, Name: found[0].Name, Slug: found[0].Slug, Taxonomy: taxonomy}, nil
	}

	var created wpTerm
	err := c.authed(ctx, fasthttp.MethodPost, "/wp/v2/"+taxonomy, map[string]string{"name": name, "slug": slug}, &created)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "term_exists" && apiErr.TermID > 0 {
		return Term{ID: apiErr.TermID, Name: name, Slug: slug, Taxonomy: taxonomy}, nil
	}
	if err != nil {
		return Term{}, err
	}
	return Term{ID: created.ID, Name: created.Name, Slug: created.Slug, Taxonomy: taxonomy}, nil
}

// CreatePost publishes p. Posts are never cached.
func (c *Client) CreatePost(ctx context.Context, p Post) (PostResult, error) {
	if strings.TrimSpace(p.Title) == "" {
		return PostResult{}, ErrMissingPostTitle
	}
	if p.Status == "" {
		p.Status = "draft"
	}

	body := map[string]any{
		"title":   p.Title,
		"content": p.Content,
		"status":  p.Status,
	}
	if p.Excerpt != "" {
		body["excerpt"] = p.Excerpt
	}
	if len(p.Categories) > 0 {
		body["categories"] = p.Categories
	}
	if len(p.Tags) > 0 {
		body["tags"] = p.Tags
	}
	if p.FeaturedMedia > 0 {
		body["featured_media"] = p.FeaturedMedia
	}

	var out PostResult
	err := c.svc.Do(ctx, func(ctx context.Context) error {
		return c.authed(ctx, fasthttp.MethodPost, "/wp/v2/posts", body, &out)
	})
	return out, err
}

// authed sends an authenticated request. A 401 drops the cached token.
func (c *Client) authed(ctx context.Context, method, path string, body, out any) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	err = c.send(ctx, method, path, tok, body, out)

	var apiErr *APIError
	var se *httpx.StatusError
	if errors.As(err, &apiErr) && errors.As(apiErr.Err, &se) && se.Code == fasthttp.StatusUnauthorized {
		if c.svc.Cache() != nil {
			_ = c.svc.Cache().Delete(ctx, TokenKey)
		}
	}
	return err
}

type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TermID int64 `json:"term_id"`
	} `json:"data"`
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + "/wp-json" + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cms: encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}

	if err := httpx.Do(ctx, c.http, req, resp, c.cfg.Timeout); err != nil {
		return fmt.Errorf("cms: %s %s: %w", method, path, err)
	}

	var wpErr wpError
	if resp.StatusCode() >= 300 {
		_ = json.Unmarshal(resp.Body(), &wpErr)
	}
	detail := strings.TrimSpace(strings.Join([]string{wpErr.Code, wpErr.Message}, " "))
	if err := httpx.CheckStatus(req, resp, detail); err != nil {
		return &APIError{Err: err, Code: wpErr.Code, Message: wpErr.Message, TermID: wpErr.Data.TermID}
	}

	if out == nil || len(bytes.TrimSpace(resp.Body())) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("cms: %s %s: invalid json: %w", method, path, err)
	}
	return nil
}

func escape(s string) string {
	return string(fasthttp.AppendQuotedArg(nil, []byte(s)))
}
