// Package config loads the substrate configuration from YAML.
//
// A configuration file is read, expanded against the environment with strict
// ${VAR} semantics, decoded, defaulted and validated. Secret-bearing values
// (API keys, passwords, connection strings) may also be secret references of
// the form secretref:<provider>:<ref>, resolved after decoding.
//
// Example:
//
//	service_name: eunsense
//	limits:
//	  ai: {max_requests: 60, window: 1m}
//	cache:
//	  durable: sql
//	  sql: {driver: sqlite3, dsn: eunsense-cache.db}
//	providers:
//	  ai: {provider: openai, api_key: "${OPENAI_API_KEY}"}
//	  cms: {base_url: https://blog.example.com, password: "secretref:file:wp_password"}
package config

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/guard"
	"github.com/dlwpdl/eunsense-automation-sub000/observe"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

// Store backends.
const (
	BackendMemory  = "memory"
	BackendSturdyc = "sturdyc"
	BackendRedis   = "redis"
	BackendSQL     = "sql"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the root configuration.
type Config struct {
	// ServiceName identifies this process in telemetry.
	// Default: "eunsense"
	ServiceName string `yaml:"service_name"`
	Version     string `yaml:"version"`

	// SecretsDir is the root of the "file" secret provider. Empty disables it.
	SecretsDir string `yaml:"secrets_dir"`

	// Limits is the rate table per service.
	// Default: resilience.DefaultLimits()
	Limits map[string]LimitConfig `yaml:"limits"`

	Cache     CacheConfig            `yaml:"cache"`
	Retry     map[string]RetryConfig `yaml:"retry"`
	Guard     GuardConfig            `yaml:"guard"`
	Providers ProvidersConfig        `yaml:"providers"`
	Observe   ObserveConfig          `yaml:"observe"`
	Health    HealthConfig           `yaml:"health"`
	Server    ServerConfig           `yaml:"server"`
}

// LimitConfig is one sliding window.
type LimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// CacheConfig selects and tunes the cache tiers.
type CacheConfig struct {
	// Fast is the Fast tier backend: memory, sturdyc or redis.
	// Default: "memory"
	Fast string `yaml:"fast"`

	// Durable is the Durable tier backend: memory or sql.
	// Default: "sql"
	Durable string `yaml:"durable"`

	// FastCeiling caps the TTL of Fast tier entries.
	// Default: cache.DefaultFastCeiling
	FastCeiling time.Duration `yaml:"fast_ceiling"`

	// SizeThreshold is the encoded record size in bytes at which writes go
	// to the Durable tier.
	// Default: cache.DefaultSizeThreshold
	SizeThreshold int `yaml:"size_threshold"`

	// SweepInterval is the period of the background Cleanup. Negative
	// disables the sweeper.
	// Default: cache.DefaultSweepInterval
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// TTLs overrides the TTL of individual key categories.
	TTLs map[string]time.Duration `yaml:"ttls"`

	Sturdyc cache.SturdycConfig `yaml:"sturdyc"`
	Redis   cache.RedisConfig   `yaml:"redis"`
	SQL     cache.SQLConfig     `yaml:"sql"`
}

// Policy returns the default category TTLs with the configured overrides.
func (c CacheConfig) Policy() cache.Policy {
	p := cache.DefaultPolicy()
	for category, ttl := range c.TTLs {
		p = p.With(category, ttl)
	}
	return p
}

// RetryConfig overrides fields of a service's default retry policy.
// Unset fields keep the default.
type RetryConfig struct {
	MaxRetries     *int          `yaml:"max_retries"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	JitterFraction *float64      `yaml:"jitter_fraction"`

	// RetryableKinds replaces the retryable kinds, named as Kind.String.
	RetryableKinds []string `yaml:"retryable_kinds"`

	// RetryableServices replaces the services whose KindService failures
	// are retried.
	RetryableServices []string `yaml:"retryable_services"`
}

// Apply returns base with the configured overrides.
func (r RetryConfig) Apply(base resilience.RetryPolicy) resilience.RetryPolicy {
	if r.MaxRetries != nil {
		base.MaxRetries = *r.MaxRetries
	}
	if r.InitialDelay > 0 {
		base.InitialDelay = r.InitialDelay
	}
	if r.Multiplier > 0 {
		base.Multiplier = r.Multiplier
	}
	if r.MaxDelay > 0 {
		base.MaxDelay = r.MaxDelay
	}
	if r.JitterFraction != nil {
		base.JitterFraction = *r.JitterFraction
	}
	if r.RetryableKinds != nil {
		kinds := make([]resilience.Kind, 0, len(r.RetryableKinds))
		for _, name := range r.RetryableKinds {
			if k, ok := resilience.ParseKind(name); ok {
				kinds = append(kinds, k)
			}
		}
		base.RetryableKinds = kinds
	}
	if r.RetryableServices != nil {
		base.RetryableServices = append([]string(nil), r.RetryableServices...)
	}
	return base
}

// GuardConfig tunes the call-site wrapper shared by every service.
type GuardConfig struct {
	// MaxWait bounds how long a call waits for rate limit admission.
	// Default: 0 (fail immediately)
	MaxWait time.Duration `yaml:"max_wait"`

	// PollInterval is the delay between admission checks while waiting.
	// Default: 1 second
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds each attempt. Zero leaves attempts unbounded.
	Timeout time.Duration `yaml:"timeout"`

	Breaker  BreakerConfig  `yaml:"breaker"`
	Bulkhead BulkheadConfig `yaml:"bulkhead"`
}

// BreakerConfig enables a per-service circuit breaker.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Default: 5
	MaxFailures int `yaml:"max_failures"`

	// Default: 30 seconds
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// BulkheadConfig bounds concurrent calls per service. Zero disables it.
type BulkheadConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

// ProvidersConfig holds the boundary clients.
type ProvidersConfig struct {
	AI     AIConfig     `yaml:"ai"`
	Images ImagesConfig `yaml:"images"`
	Trends TrendsConfig `yaml:"trends"`
	CMS    CMSConfig    `yaml:"cms"`
}

// AIConfig selects the text generator.
type AIConfig struct {
	// Provider is openai or gemini.
	// Default: "openai"
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// ImagesConfig configures stock image search.
type ImagesConfig struct {
	AccessKey string        `yaml:"access_key"`
	BaseURL   string        `yaml:"base_url"`
	PerPage   int           `yaml:"per_page"`
	Timeout   time.Duration `yaml:"timeout"`
}

// TrendsConfig configures the trend feed.
type TrendsConfig struct {
	FeedURL string `yaml:"feed_url"`

	// Geo is the region fetched when none is given.
	// Default: "US"
	Geo     string        `yaml:"geo"`
	Timeout time.Duration `yaml:"timeout"`
}

// CMSConfig configures the CMS client.
type CMSConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	TokenPath string        `yaml:"token_path"`
	Timeout   time.Duration `yaml:"timeout"`

	// TermConcurrency bounds parallel term lookups in bulk resolves.
	// Default: 4
	TermConcurrency int `yaml:"term_concurrency"`
}

// ObserveConfig mirrors observe.Config for YAML.
type ObserveConfig struct {
	Tracing struct {
		Enabled   bool    `yaml:"enabled"`
		Exporter  string  `yaml:"exporter"`
		SamplePct float64 `yaml:"sample_pct"`
	} `yaml:"tracing"`
	Metrics struct {
		Enabled  bool   `yaml:"enabled"`
		Exporter string `yaml:"exporter"`
	} `yaml:"metrics"`
	Logging struct {
		Enabled bool   `yaml:"enabled"`
		Level   string `yaml:"level"`
		Format  string `yaml:"format"`
	} `yaml:"logging"`
}

// HealthConfig tunes the readiness checks.
type HealthConfig struct {
	// Saturation is the window usage ratio at which a service is degraded.
	// Default: 0.8
	Saturation float64 `yaml:"saturation"`

	// MaxExpired is the expired entry backlog tolerated before degrading.
	// Default: 1000
	MaxExpired int `yaml:"max_expired"`

	// MemoryLimit enables a heap check against a size such as "512 MiB".
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout bounds one run of all checks.
	// Default: 5 seconds
	Timeout time.Duration `yaml:"timeout"`
}

// MemoryLimitBytes parses MemoryLimit. Zero means the check is disabled.
func (h HealthConfig) MemoryLimitBytes() (uint64, error) {
	if h.MemoryLimit == "" {
		return 0, nil
	}
	return humanize.ParseBytes(h.MemoryLimit)
}

// ServerConfig configures the HTTP listener of the serve command.
type ServerConfig struct {
	// Default: ":8080"
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10 seconds
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills zero fields. Logging and metrics are enabled only when
// the whole observe section is absent.
func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "eunsense"
	}
	if c.Limits == nil {
		c.Limits = make(map[string]LimitConfig)
		for name, l := range resilience.DefaultLimits() {
			c.Limits[name] = LimitConfig{MaxRequests: l.MaxRequests, Window: l.Window}
		}
	}

	if c.Cache.Fast == "" {
		c.Cache.Fast = BackendMemory
	}
	if c.Cache.Durable == "" {
		c.Cache.Durable = BackendSQL
	}
	if c.Cache.FastCeiling == 0 {
		c.Cache.FastCeiling = cache.DefaultFastCeiling
	}
	if c.Cache.SizeThreshold == 0 {
		c.Cache.SizeThreshold = cache.DefaultSizeThreshold
	}
	if c.Cache.SweepInterval == 0 {
		c.Cache.SweepInterval = cache.DefaultSweepInterval
	}
	if c.Cache.Durable == BackendSQL {
		if c.Cache.SQL.Driver == "" {
			c.Cache.SQL.Driver = cache.DriverSQLite
		}
		if c.Cache.SQL.DSN == "" && c.Cache.SQL.Driver == cache.DriverSQLite {
			c.Cache.SQL.DSN = "eunsense-cache.db"
		}
	}

	if c.Guard.PollInterval == 0 {
		c.Guard.PollInterval = time.Second
	}
	if c.Guard.Breaker.MaxFailures == 0 {
		c.Guard.Breaker.MaxFailures = 5
	}
	if c.Guard.Breaker.ResetTimeout == 0 {
		c.Guard.Breaker.ResetTimeout = 30 * time.Second
	}

	if c.Providers.AI.Provider == "" {
		c.Providers.AI.Provider = ProviderOpenAI
	}
	if c.Providers.Trends.Geo == "" {
		c.Providers.Trends.Geo = "US"
	}

	if c.Observe == (ObserveConfig{}) {
		c.Observe.Logging.Enabled = true
		c.Observe.Metrics.Enabled = true
		c.Observe.Metrics.Exporter = "prometheus"
	}
	if c.Observe.Logging.Level == "" {
		c.Observe.Logging.Level = "info"
	}
	if c.Observe.Logging.Format == "" {
		c.Observe.Logging.Format = observe.FormatJSON
	}

	if c.Health.Saturation == 0 {
		c.Health.Saturation = 0.8
	}
	if c.Health.MaxExpired == 0 {
		c.Health.MaxExpired = 1000
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = 5 * time.Second
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// RateLimits converts the rate table for resilience.NewRateLimiter.
func (c *Config) RateLimits() map[string]resilience.Limit {
	limits := make(map[string]resilience.Limit, len(c.Limits))
	for name, l := range c.Limits {
		limits[name] = resilience.Limit{MaxRequests: l.MaxRequests, Window: l.Window}
	}
	return limits
}

// RetryPolicy returns the retry policy for service with overrides applied.
func (c *Config) RetryPolicy(service string) resilience.RetryPolicy {
	base := guard.PolicyFor(service)
	if r, ok := c.Retry[service]; ok {
		return r.Apply(base)
	}
	return base
}

// ObserveConfig converts the observe section.
func (c *Config) ObserveConfig() observe.Config {
	o := c.Observe
	return observe.Config{
		ServiceName: c.ServiceName,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: o.Logging.Enabled,
			Level:   o.Logging.Level,
			Format:  o.Logging.Format,
		},
	}
}

// secrets returns the fields that may hold secret references.
func (c *Config) secrets() []*string {
	return []*string{
		&c.Cache.Redis.URL,
		&c.Cache.Redis.Password,
		&c.Cache.SQL.DSN,
		&c.Providers.AI.APIKey,
		&c.Providers.Images.AccessKey,
		&c.Providers.CMS.Username,
		&c.Providers.CMS.Password,
	}
}
