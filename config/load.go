package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/dlwpdl/eunsense-automation-sub000/secret"
)

// Loader errors.
var (
	// ErrRead indicates the configuration file could not be read.
	ErrRead = errors.New("config: failed to read config file")

	// ErrParse indicates malformed YAML or an unknown key.
	ErrParse = errors.New("config: failed to parse config file")

	// ErrInvalid indicates a configuration that failed validation.
	ErrInvalid = errors.New("config: invalid configuration")
)

type loader struct {
	lookup   secret.LookupFunc
	envFiles []string
}

// Option configures Load.
type Option func(*loader)

// WithLookup replaces os.LookupEnv for ${VAR} expansion and the env secret provider.
func WithLookup(fn secret.LookupFunc) Option {
	return func(l *loader) {
		if fn != nil {
			l.lookup = fn
		}
	}
}

// WithEnvFiles reads variables from dotenv files. Files that do not exist
// are skipped. Values already present in the environment take precedence.
func WithEnvFiles(files ...string) Option {
	return func(l *loader) {
		l.envFiles = append(l.envFiles, files...)
	}
}

// Load reads, expands, decodes, defaults and validates the file at path.
func Load(ctx context.Context, path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return Parse(ctx, data, opts...)
}

// Parse is Load for an in-memory document.
func Parse(ctx context.Context, data []byte, opts ...Option) (*Config, error) {
	l := &loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}

	lookup, err := l.withEnvFiles()
	if err != nil {
		return nil, err
	}

	expanded, err := secret.Expand(string(data), lookup)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.resolveSecrets(ctx, lookup); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// withEnvFiles layers dotenv values under the configured lookup.
func (l *loader) withEnvFiles() (secret.LookupFunc, error) {
	if len(l.envFiles) == 0 {
		return l.lookup, nil
	}

	vars := make(map[string]string)
	for _, file := range l.envFiles {
		m, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRead, file, err)
		}
		for k, v := range m {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	}

	base := l.lookup
	return func(name string) (string, bool) {
		if v, ok := base(name); ok {
			return v, true
		}
		v, ok := vars[name]
		return v, ok
	}, nil
}

// resolveSecrets replaces secret references in credential fields. The
// document is already env-expanded, so only references remain.
func (c *Config) resolveSecrets(ctx context.Context, lookup secret.LookupFunc) error {
	opts := []secret.ResolverOption{secret.WithLookup(lookup), secret.Strict()}
	if c.SecretsDir != "" {
		opts = append(opts, secret.WithProvider(secret.NewFileProvider(c.SecretsDir)))
	}
	r := secret.NewResolver(opts...)

	for _, field := range c.secrets() {
		if _, _, ok := secret.ParseSecretRef(*field); !ok {
			continue
		}
		if err := r.ResolveAll(ctx, field); err != nil {
			return fmt.Errorf("config: resolve secret: %w", err)
		}
	}
	return nil
}
