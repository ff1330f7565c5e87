package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/dlwpdl/eunsense-automation-sub000/observe"
)

//go:embed migrations/sqlite3/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// ErrUnsupportedDriver indicates an SQL driver without migrations.
var ErrUnsupportedDriver = errors.New("cache: unsupported sql driver")

// SQLConfig configures an SQLStore.
type SQLConfig struct {
	// Driver is "sqlite3" or "pgx".
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// DSN is the driver specific data source name.
	DSN string `yaml:"dsn"`

	// MaxOpenConns bounds the connection pool. SQLite is forced to 1.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`
}

// SQLStore is the Durable tier: entries survive process restarts.
type SQLStore struct {
	db     *sqlx.DB
	now    func() time.Time
	logger observe.Logger
}

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock sets the clock used for physical retention.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSQLLogger sets the logger for migration output.
func WithSQLLogger(l observe.Logger) SQLOption {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// OpenSQLStore opens the database and applies pending migrations.
func OpenSQLStore(ctx context.Context, cfg SQLConfig, opts ...SQLOption) (*SQLStore, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if _, ok := migrationDialect(cfg.Driver); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("cache: connect %s: %w", cfg.Driver, err)
	}
	switch {
	case cfg.Driver == DriverSQLite:
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	default:
		db.SetMaxOpenConns(4)
	}

	s, err := NewSQLStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and applies pending migrations.
func NewSQLStore(ctx context.Context, db *sqlx.DB, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{db: db, now: time.Now, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

func (s *SQLStore) migrate(ctx context.Context) error {
	dialect, ok := migrationDialect(s.db.DriverName())
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, s.db.DriverName())
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{ctx: ctx, l: s.logger})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("cache: set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations/"+dialect); err != nil {
		return fmt.Errorf("cache: run migrations: %w", err)
	}
	return nil
}

func migrationDialect(driver string) (string, bool) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", true
	case DriverPostgres, "postgres":
		return "postgres", true
	default:
		return "", false
	}
}

type sqlRow struct {
	Payload   []byte `db:"payload"`
	ExpiresAt int64  `db:"expires_at"`
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row sqlRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT payload, expires_at FROM cache_entries WHERE cache_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: sql get: %w", err)
	}
	if s.now().UnixMilli() > row.ExpiresAt {
		return nil, false, nil
	}
	return row.Payload, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO cache_entries (cache_key, payload, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`),
		key, raw, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("cache: sql set: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM cache_entries WHERE cache_key = ?`), key); err != nil {
		return fmt.Errorf("cache: sql delete: %w", err)
	}
	return nil
}

// Keys lists stored keys with the given prefix, including rows past retention.
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var err error
	if prefix == "" {
		err = s.db.SelectContext(ctx, &keys, `SELECT cache_key FROM cache_entries ORDER BY cache_key`)
	} else {
		err = s.db.SelectContext(ctx, &keys,
			s.db.Rebind(`SELECT cache_key FROM cache_entries WHERE substr(cache_key, 1, ?) = ? ORDER BY cache_key`),
			utf8.RuneCountInString(prefix), prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: sql keys: %w", err)
	}
	return keys, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("cache: sql ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// gooseLogger routes migration output to the store logger.
type gooseLogger struct {
	ctx context.Context
	l   observe.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.l.Debug(g.ctx, fmt.Sprintf(format, v...), observe.Field{Key: "component", Value: "migrations"})
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.l.Error(g.ctx, fmt.Sprintf(format, v...), observe.Field{Key: "component", Value: "migrations"})
}

var (
	_ Store      = (*SQLStore)(nil)
	_ Enumerable = (*SQLStore)(nil)
	_ Pinger     = (*SQLStore)(nil)
)
