package config

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/guard"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
	"github.com/dlwpdl/eunsense-automation-sub000/secret"
)

func mapLookup(m map[string]string) secret.LookupFunc {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"GEMINI_API_KEY": "g-key",
		"CACHE_DSN":      "cache.db",
	})

	cfg, err := Load(context.Background(), "testdata/config.yaml",
		WithLookup(lookup), WithEnvFiles("testdata/test.env", "testdata/missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServiceName != "eunsense" || cfg.Version != "1.2.0" {
		t.Errorf("identity = %q %q", cfg.ServiceName, cfg.Version)
	}
	if got := cfg.Limits["ai"]; got != (LimitConfig{MaxRequests: 3, Window: time.Minute}) {
		t.Errorf("limits[ai] = %+v", got)
	}
	if _, ok := cfg.Limits["cms"]; ok {
		t.Error("a configured rate table should replace the defaults")
	}

	if cfg.Cache.Fast != BackendSturdyc || cfg.Cache.Sturdyc.Capacity != 500 || cfg.Cache.Sturdyc.NumShards != 4 {
		t.Errorf("fast tier = %q %+v", cfg.Cache.Fast, cfg.Cache.Sturdyc)
	}
	if cfg.Cache.SweepInterval != 5*time.Minute {
		t.Errorf("sweep_interval = %v", cfg.Cache.SweepInterval)
	}
	if cfg.Cache.SQL.DSN != "cache.db" {
		t.Errorf("sql dsn = %q, want the process value over dotenv", cfg.Cache.SQL.DSN)
	}

	if cfg.Providers.AI.Provider != ProviderGemini || cfg.Providers.AI.APIKey != "g-key" {
		t.Errorf("ai = %+v", cfg.Providers.AI)
	}
	if cfg.Providers.Images.AccessKey != "from-dotenv" {
		t.Errorf("images access key = %q", cfg.Providers.Images.AccessKey)
	}
	if cfg.Providers.CMS.Password != "app-password" {
		t.Errorf("cms password = %q", cfg.Providers.CMS.Password)
	}
	if cfg.Providers.Trends.Geo != "KR" {
		t.Errorf("trends geo = %q", cfg.Providers.Trends.Geo)
	}

	if !cfg.Guard.Breaker.Enabled || cfg.Guard.Breaker.MaxFailures != 3 || cfg.Guard.MaxWait != 2*time.Second {
		t.Errorf("guard = %+v", cfg.Guard)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(context.Background(), []byte("version: dev\n"), WithLookup(mapLookup(nil)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.ServiceName != "eunsense" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if len(cfg.Limits) != len(resilience.DefaultLimits()) {
		t.Errorf("limits = %v", cfg.Limits)
	}
	if cfg.Cache.Durable != BackendSQL || cfg.Cache.SQL.Driver != cache.DriverSQLite || cfg.Cache.SQL.DSN == "" {
		t.Errorf("durable = %q %+v", cfg.Cache.Durable, cfg.Cache.SQL)
	}
	if cfg.Cache.FastCeiling != cache.DefaultFastCeiling || cfg.Cache.SizeThreshold != cache.DefaultSizeThreshold {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.Observe.Logging.Enabled || cfg.Observe.Metrics.Exporter != "prometheus" {
		t.Errorf("observe = %+v", cfg.Observe)
	}
	if cfg.Guard.MaxWait != 0 || cfg.Guard.PollInterval != time.Second {
		t.Errorf("guard = %+v", cfg.Guard)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr []error
	}{
		{"missing variable", "providers:\n  ai:\n    api_key: ${OPENAI_API_KEY}\n", []error{ErrParse, secret.ErrMissingEnv}},
		{"unknown key", "service_name: x\ncache:\n  tier: fast\n", []error{ErrParse}},
		{"bad duration", "limits:\n  ai: {max_requests: 1, window: soon}\n", []error{ErrParse}},
		{"invalid value", "cache:\n  fast: memcached\n", []error{ErrInvalid}},
		{"unknown secret provider", "providers:\n  ai:\n    api_key: secretref:vault:openai\n", []error{secret.ErrUnknownProvider}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tt.doc), WithLookup(mapLookup(nil)))
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("Parse() error = %v, want %v", err, want)
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(context.Background(), "testdata/nope.yaml"); !errors.Is(err, ErrRead) {
		t.Errorf("Load() error = %v, want ErrRead", err)
	}
}

func TestValidate(t *testing.T) {
	jitter := 1.5

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"zero max requests", func(c *Config) { c.Limits["ai"] = LimitConfig{Window: time.Minute} }, true},
		{"zero window", func(c *Config) { c.Limits["ai"] = LimitConfig{MaxRequests: 1} }, true},
		{"unknown fast backend", func(c *Config) { c.Cache.Fast = "memcached" }, true},
		{"redis without url", func(c *Config) { c.Cache.Fast = BackendRedis }, true},
		{"redis with url", func(c *Config) {
			c.Cache.Fast = BackendRedis
			c.Cache.Redis.URL = "redis://localhost:6379/0"
		}, false},
		{"postgres without dsn", func(c *Config) { c.Cache.SQL = cache.SQLConfig{Driver: cache.DriverPostgres} }, true},
		{"memory durable ignores sql", func(c *Config) {
			c.Cache.Durable = BackendMemory
			c.Cache.SQL = cache.SQLConfig{}
		}, false},
		{"unknown ttl category", func(c *Config) { c.Cache.TTLs = map[string]time.Duration{"video": time.Hour} }, true},
		{"unknown retry kind", func(c *Config) { c.Retry = map[string]RetryConfig{"ai": {RetryableKinds: []string{"quota"}}} }, true},
		{"jitter above one", func(c *Config) { c.Retry = map[string]RetryConfig{"ai": {JitterFraction: &jitter}} }, true},
		{"unknown ai provider", func(c *Config) { c.Providers.AI.Provider = "claude" }, true},
		{"cms without password", func(c *Config) {
			c.Providers.CMS = CMSConfig{BaseURL: "https://blog.example.com", Username: "editor"}
		}, true},
		{"invalid log level", func(c *Config) { c.Observe.Logging.Level = "trace" }, true},
		{"empty server addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"memory limit", func(c *Config) { c.Health.MemoryLimit = "512 MiB" }, false},
		{"bad memory limit", func(c *Config) { c.Health.MemoryLimit = "lots" }, true},
		{"saturation above one", func(c *Config) { c.Health.Saturation = 1.2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidate_ErrorsByField(t *testing.T) {
	cfg := Default()
	cfg.Cache.Fast = "memcached"

	var verrs validation.Errors
	if err := cfg.Validate(); !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %v, want validation.Errors", err)
	}
	if _, ok := verrs["Cache"]; !ok {
		t.Errorf("errors = %v, want a Cache entry", verrs)
	}
}

func TestConfig_RetryPolicy(t *testing.T) {
	zero := 0
	cfg := Default()
	cfg.Retry = map[string]RetryConfig{
		resilience.ServiceAI:  {MaxRetries: &zero, InitialDelay: 500 * time.Millisecond, RetryableKinds: []string{"network"}},
		resilience.ServiceCMS: {MaxDelay: time.Minute},
	}

	ai := cfg.RetryPolicy(resilience.ServiceAI)
	base := guard.PolicyFor(resilience.ServiceAI)
	if ai.MaxRetries != 0 || ai.InitialDelay != 500*time.Millisecond {
		t.Errorf("ai policy = %+v", ai)
	}
	if ai.Multiplier != base.Multiplier || !slices.Equal(ai.RetryableServices, base.RetryableServices) {
		t.Errorf("unset fields should keep defaults: %+v", ai)
	}
	if !slices.Equal(ai.RetryableKinds, []resilience.Kind{resilience.KindNetwork}) {
		t.Errorf("RetryableKinds = %v", ai.RetryableKinds)
	}

	if cms := cfg.RetryPolicy(resilience.ServiceCMS); cms.MaxDelay != time.Minute {
		t.Errorf("cms MaxDelay = %v", cms.MaxDelay)
	}
	if got, want := cfg.RetryPolicy(resilience.ServiceTrends), guard.PolicyFor(resilience.ServiceTrends); got.MaxRetries != want.MaxRetries {
		t.Errorf("trends policy = %+v, want default", got)
	}
}

func TestCacheConfig_Policy(t *testing.T) {
	c := CacheConfig{TTLs: map[string]time.Duration{cache.CategoryTrends: 30 * time.Minute}}
	p := c.Policy()

	if got := p.TTL(cache.CategoryTrends); got != 30*time.Minute {
		t.Errorf("trends TTL = %v", got)
	}
	if got := p.TTL(cache.CategoryAI); got != cache.TTLAI {
		t.Errorf("ai TTL = %v", got)
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := Default()
	cfg.ServiceName = "pipeline"
	cfg.Observe.Tracing.Enabled = true
	cfg.Observe.Tracing.Exporter = "stdout"

	oc := cfg.ObserveConfig()
	if oc.ServiceName != "pipeline" || !oc.Tracing.Enabled || oc.Tracing.Exporter != "stdout" {
		t.Errorf("ObserveConfig() = %+v", oc)
	}
	if err := oc.Validate(); err != nil {
		t.Errorf("ObserveConfig().Validate() = %v", err)
	}

	limits := cfg.RateLimits()
	if got := limits[resilience.ServiceAI]; got != resilience.DefaultLimits()[resilience.ServiceAI] {
		t.Errorf("RateLimits()[ai] = %+v", got)
	}
}

func TestHealthConfig_MemoryLimitBytes(t *testing.T) {
	n, err := HealthConfig{MemoryLimit: "512 MiB"}.MemoryLimitBytes()
	if err != nil || n != 512<<20 {
		t.Errorf("MemoryLimitBytes() = %d, %v", n, err)
	}
	if n, err := (HealthConfig{}).MemoryLimitBytes(); n != 0 || err != nil {
		t.Errorf("empty MemoryLimitBytes() = %d, %v", n, err)
	}
}
