package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by providers for unknown references.
var ErrNotFound = errors.New("secret: not found")

// Provider resolves the ref part of "secretref:<provider>:<ref>".
//
// Implementations must be safe for concurrent use and must not log values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// EnvProvider resolves refs as environment variable names.
type EnvProvider struct {
	lookup LookupFunc
}

// NewEnvProvider creates an "env" provider. A nil lookup uses os.LookupEnv.
func NewEnvProvider(lookup LookupFunc) *EnvProvider {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvProvider{lookup: lookup}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the variable's value.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrNotFound, ref)
	}
	return v, nil
}

// FileProvider resolves refs as file names under a directory, such as
// mounted container secrets. Trailing newlines are trimmed.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a "file" provider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file named ref. Refs may not leave the directory.
func (p *FileProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !filepath.IsLocal(ref) {
		return "", fmt.Errorf("secret: file ref %q escapes %s", ref, p.dir)
	}
	raw, err := os.ReadFile(filepath.Join(p.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: file %s", ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
