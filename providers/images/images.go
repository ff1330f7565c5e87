// Package images searches a stock-photo API for article images.
package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/guard"
	"github.com/dlwpdl/eunsense-automation-sub000/internal/httpx"
)

// DefaultBaseURL is the Unsplash API root.
const DefaultBaseURL = "https://api.unsplash.com"

// Sentinel errors for image search.
var (
	ErrMissingAccessKey = errors.New("images: access key is required")
	ErrEmptyQuery       = errors.New("images: query is required")
	// ErrNoImages classifies as an images-specific failure.
	ErrNoImages = errors.New("images: no images found")
)

// Image is one search result.
type Image struct {
	ID          string `msgpack:"id"`
	URL         string `msgpack:"url"`
	ThumbURL    string `msgpack:"thumbUrl"`
	Description string `msgpack:"description"`
	Author      string `msgpack:"author"`
	Width       int    `msgpack:"width"`
	Height      int    `msgpack:"height"`
}

// Config configures the search client.
type Config struct {
	AccessKey string

	// BaseURL is the API root.
	// Default: DefaultBaseURL
	BaseURL string

	// PerPage is the number of results requested.
	// Default: 10
	PerPage int

	// Timeout bounds one request.
	// Default: httpx.DefaultTimeout
	Timeout time.Duration

	// TTL is the cache lifetime of a result set.
	// Default: cache.TTLImages
	TTL time.Duration
}

// Client performs guarded image searches.
type Client struct {
	cfg  Config
	http *fasthttp.Client
	svc  *guard.Service
}

// New creates a search client that runs through svc.
func New(cfg Config, svc *guard.Service) (*Client, error) {
	if cfg.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 10
	}
	if cfg.TTL <= 0 {
		cfg.TTL = cache.TTLImages
	}
	return &Client{cfg: cfg, http: httpx.NewClient("eunsense-images"), svc: svc}, nil
}

// CacheKey returns the cache key for query.
func CacheKey(query string) string {
	return cache.Key(cache.CategoryImages, cache.NormalizeQuery(query))
}

// Search returns images matching query. Equivalent queries share one cache
// entry. An empty result is an error and is not cached.
func (c *Client) Search(ctx context.Context, query string) ([]Image, error) {
	q := cache.NormalizeQuery(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	return guard.Call(ctx, c.svc, CacheKey(q), c.cfg.TTL, func(ctx context.Context) ([]Image, error) {
		return c.search(ctx, q)
	})
}

type searchResponse struct {
	Results []struct {
		ID             string `json:"id"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		URLs           struct {
			Regular string `json:"regular"`
			Thumb   string `json:"thumb"`
		} `json:"urls"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"results"`
}

type errorResponse struct {
	Errors []string `json:"errors"`
}

func (c *Client) search(ctx context.Context, q string) ([]Image, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + "/search/photos")
	args := req.URI().QueryArgs()
	args.Set("query", q)
	args.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", "Client-ID "+c.cfg.AccessKey)
	req.Header.Set("Accept-Version", "v1")

	if err := httpx.Do(ctx, c.http, req, resp, c.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("images: unsplash search: %w", err)
	}

	if err := httpx.CheckStatus(req, resp, errorDetail(resp.Body())); err != nil {
		return nil, fmt.Errorf("images: unsplash search: %w", err)
	}

	var body searchResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("images: unsplash search: invalid json: %w", err)
	}
	if len(body.Results) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoImages, q)
	}

	out := make([]Image, 0, len(body.Results))
	for _, r := range body.Results {
		desc := r.Description
		if desc == "" {
			desc = r.AltDescription
		}
		out = append(out, Image{
			ID:          r.ID,
			URL:         r.URLs.Regular,
			ThumbURL:    r.URLs.Thumb,
			Description: desc,
			Author:      r.User.Name,
			Width:       r.Width,
			Height:      r.Height,
		})
	}
	return out, nil
}

func errorDetail(body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) != nil || len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0]
}
