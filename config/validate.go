package config

import (
	"fmt"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

// Validate checks the configuration. Errors wrap ErrInvalid and a
// validation.Errors keyed by field name.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Limits),
		validation.Field(&c.Cache),
		validation.Field(&c.Retry),
		validation.Field(&c.Guard),
		validation.Field(&c.Providers),
		validation.Field(&c.Observe, validation.By(func(any) error {
			oc := c.ObserveConfig()
			return oc.Validate()
		})),
		validation.Field(&c.Health),
		validation.Field(&c.Server),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Validate implements validation.Validatable.
func (l LimitConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.MaxRequests, validation.Required, validation.Min(1)),
		validation.Field(&l.Window, validation.Required, validation.Min(time.Millisecond)),
	)
}

// Validate implements validation.Validatable.
func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Fast, validation.In(BackendMemory, BackendSturdyc, BackendRedis)),
		validation.Field(&c.Durable, validation.In(BackendMemory, BackendSQL)),
		validation.Field(&c.FastCeiling, validation.Min(time.Second)),
		validation.Field(&c.SizeThreshold, validation.Min(1)),
		validation.Field(&c.TTLs, validation.By(knownCategories)),
		validation.Field(&c.Redis, validation.When(c.Fast == BackendRedis, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Redis, validation.Field(&c.Redis.URL, validation.Required))
		}))),
		validation.Field(&c.SQL, validation.When(c.Durable == BackendSQL, validation.By(func(any) error {
			return validation.ValidateStruct(&c.SQL,
				validation.Field(&c.SQL.Driver, validation.Required, validation.In(cache.DriverSQLite, cache.DriverPostgres)),
				validation.Field(&c.SQL.DSN, validation.Required),
				validation.Field(&c.SQL.MaxOpenConns, validation.Min(0)),
			)
		}))),
	)
}

func knownCategories(value any) error {
	ttls, _ := value.(map[string]time.Duration)
	for category, ttl := range ttls {
		if !slices.Contains(cache.Categories, category) {
			return fmt.Errorf("unknown category %q", category)
		}
		if ttl < 0 {
			return fmt.Errorf("ttl for %q must not be negative", category)
		}
	}
	return nil
}

// Validate implements validation.Validatable.
func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxRetries, validation.Min(0)),
		validation.Field(&r.Multiplier, validation.Min(1.0)),
		validation.Field(&r.JitterFraction, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&r.RetryableKinds, validation.Each(validation.By(func(value any) error {
			name, _ := value.(string)
			if _, ok := resilience.ParseKind(name); !ok {
				return fmt.Errorf("unknown kind %q", name)
			}
			return nil
		}))),
	)
}

// Validate implements validation.Validatable.
func (g GuardConfig) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.MaxWait, validation.Min(time.Duration(0))),
		validation.Field(&g.PollInterval, validation.Min(time.Millisecond)),
		validation.Field(&g.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&g.Breaker),
		validation.Field(&g.Bulkhead),
	)
}

// Validate implements validation.Validatable.
func (b BreakerConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.MaxFailures, validation.Min(1)),
		validation.Field(&b.ResetTimeout, validation.Min(time.Millisecond)),
	)
}

// Validate implements validation.Validatable.
func (b BulkheadConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.MaxConcurrent, validation.Min(0)),
		validation.Field(&b.MaxWait, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable. Credentials are optional here;
// a provider without them is simply not wired.
func (p ProvidersConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AI, validation.By(func(any) error {
			return validation.ValidateStruct(&p.AI,
				validation.Field(&p.AI.Provider, validation.In(ProviderOpenAI, ProviderGemini)),
				validation.Field(&p.AI.MaxTokens, validation.Min(int64(0))),
			)
		})),
		validation.Field(&p.Images, validation.By(func(any) error {
			return validation.ValidateStruct(&p.Images,
				validation.Field(&p.Images.PerPage, validation.Min(0), validation.Max(30)),
			)
		})),
		validation.Field(&p.CMS, validation.By(func(any) error {
			return validation.ValidateStruct(&p.CMS,
				validation.Field(&p.CMS.Username, validation.When(p.CMS.BaseURL != "", validation.Required)),
				validation.Field(&p.CMS.Password, validation.When(p.CMS.BaseURL != "", validation.Required)),
				validation.Field(&p.CMS.TermConcurrency, validation.Min(0)),
			)
		})),
	)
}

// Validate implements validation.Validatable.
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable.
func (h HealthConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Saturation, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&h.MaxExpired, validation.Min(0)),
		validation.Field(&h.MemoryLimit, validation.By(func(any) error {
			_, err := h.MemoryLimitBytes()
			return err
		})),
		validation.Field(&h.Timeout, validation.Min(time.Millisecond)),
	)
}
