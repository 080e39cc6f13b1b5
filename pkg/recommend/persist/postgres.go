package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema creates the token table used by Postgres.
const Schema = `CREATE TABLE IF NOT EXISTS recommend_tokens (
	name       TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectTokensSQL = `SELECT data FROM recommend_tokens WHERE name = $1`
	lockTokensSQL   = `SELECT pg_advisory_xact_lock(hashtext($1))`
	upsertTokensSQL = `INSERT INTO recommend_tokens (name, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// DB wraps the pgx connection pool
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewDBConfig creates a new database config from environment variables
func NewDBConfig() *DBConfig {
	port := 5432
	if p, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil && p > 0 {
		port = p
	}

	return &DBConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "recommend"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// DSN renders the connection string.
func (c *DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewDB creates a new database connection pool using pgx
func NewDB(ctx context.Context, cfg *DBConfig, logger *zap.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = cfg.MaxConns
	config.MinConns = cfg.MinConns
	config.MaxConnLifetime = cfg.MaxConnLifetime
	config.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection pool established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", cfg.MaxConns))

	return &DB{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// InitSchema creates the token table if it does not exist.
func (db *DB) InitSchema(ctx context.Context) error {
	db.logger.Info("Initializing token schema")

	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Querier is the subset of *pgxpool.Pool used by Postgres.
type Querier interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists the token blob as one row of recommend_tokens.
type Postgres struct {
	db   Querier
	name string
}

// NewPostgres stores tokens under the given row name.
func NewPostgres(db Querier, name string) *Postgres {
	return &Postgres{db: db, name: name}
}

// Load reads the blob.
func (p *Postgres) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := p.db.QueryRow(ctx, selectTokensSQL, p.name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("token row %s: %w", p.name, fs.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Update runs fn in a transaction holding an advisory lock keyed by the row
// name. The lock is taken even when the row does not exist yet.
func (p *Postgres) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockTokensSQL, p.name); err != nil {
		return fmt.Errorf("failed to lock token row: %w", err)
	}

	var current []byte
	err = tx.QueryRow(ctx, selectTokensSQL, p.name).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to read token row: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, upsertTokensSQL, p.name, next); err != nil {
		return fmt.Errorf("failed to write token row: %w", err)
	}
	return tx.Commit(ctx)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
