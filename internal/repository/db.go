package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver          string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// Store owns the database handle and the ent driver wrapped around it.
type Store struct {
	Driver  *entsql.Driver
	Dialect string

	db     *sql.DB
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to the configured backend, wraps it for ent and creates the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	var st *Store
	var err error
	switch cfg.Driver {
	case DriverSQLite, "":
		st, err = openSQLite(cfg, logger)
	case DriverPostgres:
		st, err = openPostgres(ctx, cfg, logger)
	default:
		err = fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Driver, "error", err)
		return nil, err
	}

	mctx, cancel := context.WithTimeout(ctx, 10*cfg.DialTimeout)
	defer cancel()
	if err := Migrate(mctx, st.Driver); err != nil {
		st.Close()
		logger.Error("failed to create schema", "error", err)
		return nil, err
	}
	logger.Info("store ready", "driver", cfg.Driver, "dialect", st.Dialect)
	return st, nil
}

func openSQLite(cfg Config, logger *slog.Logger) (*Store, error) {
	dsn := SQLiteDSN(cfg.DSN)
	logger.Info("opening sqlite store", "dsn", dsn)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection: sqlite has a single writer anyway
	db.SetMaxOpenConns(1)
	return &Store{
		Driver:  entsql.OpenDB(dialect.SQLite, db),
		Dialect: dialect.SQLite,
		db:      db,
		logger:  logger,
	}, nil
}

// SQLiteDSN turns a bare file path into a modernc DSN with the pragmas the
// migrator and concurrent writers need.
func SQLiteDSN(dsn string) string {
	if dsn == "" {
		dsn = "labreport.db"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	var extra []string
	if !strings.Contains(dsn, "foreign_keys") {
		extra = append(extra, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		extra = append(extra, "_pragma=busy_timeout(5000)")
	}
	if len(extra) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	logger.Info("connecting to database", "driver", DriverPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "labreport"

	dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dctx, pc)
	if err != nil {
		return nil, err
	}

	// Wrap pool as *sql.DB for ent
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &Store{
		Driver:  entsql.OpenDB(dialect.Postgres, db),
		Dialect: dialect.Postgres,
		db:      db,
		pool:    pool,
		logger:  logger,
	}, nil
}

// Close closes the database connections gracefully
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.logger.Info("closing database connections")
	if err := s.Driver.Close(); err != nil {
		s.logger.Error("failed to close ent driver", "error", err)
	}
	if s.pool != nil {
		s.pool.Close()
	}
	s.logger.Info("database connections closed")
}

// HealthCheck pings the backend to catch DSN issues early.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.logger.Debug("pinging database")
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	return s.db.PingContext(ctx)
}
