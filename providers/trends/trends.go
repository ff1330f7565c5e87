// Package trends fetches daily trending searches from an RSS feed.
package trends

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/guard"
	"github.com/dlwpdl/eunsense-automation-sub000/internal/httpx"
)

// DefaultFeedURL is the Google Trends daily RSS feed.
const DefaultFeedURL = "https://trends.google.com/trending/rss"

// ErrEmptyFeed is returned when the feed has no items.
var ErrEmptyFeed = errors.New("trends feed: no items")

// Topic is one trending search.
type Topic struct {
	Title     string    `msgpack:"title"`
	Traffic   string    `msgpack:"traffic"`
	Published time.Time `msgpack:"published"`
	News      []string  `msgpack:"news"`
}

// Snapshot is the feed content for one region on one day.
type Snapshot struct {
	Geo     string    `msgpack:"geo"`
	Date    string    `msgpack:"date"`
	Fetched time.Time `msgpack:"fetched"`
	Topics  []Topic   `msgpack:"topics"`
}

// Config configures the feed client.
type Config struct {
	// FeedURL is the RSS endpoint; the geo query parameter is appended.
	// Default: DefaultFeedURL
	FeedURL string

	// Timeout bounds one request.
	// Default: httpx.DefaultTimeout
	Timeout time.Duration

	// TTL is the cache lifetime of a snapshot.
	// Default: cache.TTLTrends
	TTL time.Duration

	// Now returns the current time; the snapshot date is taken from it in UTC.
	// Default: time.Now
	Now func() time.Time
}

// Client fetches guarded trend snapshots.
type Client struct {
	cfg  Config
	http *fasthttp.Client
	svc  *guard.Service
}

// New creates a feed client that runs through svc.
func New(cfg Config, svc *guard.Service) *Client {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = cache.TTLTrends
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{cfg: cfg, http: httpx.NewClient("eunsense-trends"), svc: svc}
}

// CacheKey returns the snapshot key for geo on date (YYYY-MM-DD).
func CacheKey(geo, date string) string {
	return cache.Key(cache.CategoryTrends, strings.ToUpper(geo)+":"+date)
}

// Fetch returns today's snapshot for geo, e.g. "US" or "KR".
func (c *Client) Fetch(ctx context.Context, geo string) (Snapshot, error) {
	geo = strings.ToUpper(strings.TrimSpace(geo))
	if geo == "" {
		geo = "US"
	}
	now := c.cfg.Now().UTC()
	date := now.Format(time.DateOnly)

	return guard.Call(ctx, c.svc, CacheKey(geo, date), c.cfg.TTL, func(ctx context.Context) (Snapshot, error) {
		topics, err := c.fetch(ctx, geo)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Geo: geo, Date: date, Fetched: now, Topics: topics}, nil
	})
}

type rss struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Traffic string `xml:"approx_traffic"`
	PubDate string `xml:"pubDate"`
	News    []struct {
		Title string `xml:"news_item_title"`
	} `xml:"news_item"`
}

func (c *Client) fetch(ctx context.Context, geo string) ([]Topic, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.FeedURL)
	req.URI().QueryArgs().Set("geo", geo)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := httpx.Do(ctx, c.http, req, resp, c.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("trends feed: %w", err)
	}
	if err := httpx.CheckStatus(req, resp, ""); err != nil {
		return nil, fmt.Errorf("trends feed: %w", err)
	}

	return parseFeed(resp.Body())
}

func parseFeed(body []byte) ([]Topic, error) {
	var feed rss
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("trends feed: parse: %w", err)
	}
	if len(feed.Channel.Items) == 0 {
		return nil, ErrEmptyFeed
	}

	topics := make([]Topic, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		t := Topic{
			Title:   strings.TrimSpace(item.Title),
			Traffic: strings.TrimSpace(item.Traffic),
		}
		if ts, err := time.Parse(time.RFC1123Z, strings.TrimSpace(item.PubDate)); err == nil {
			t.Published = ts.UTC()
		}
		for _, n := range item.News {
			if title := strings.TrimSpace(n.Title); title != "" {
				t.News = append(t.News, title)
			}
		}
		topics = append(topics, t)
	}
	return topics, nil
}
