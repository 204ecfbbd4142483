package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundingwatch/internal/config"
)

const (
	createStateTableSQL = `CREATE TABLE IF NOT EXISTS bot_state (
        id         TEXT PRIMARY KEY,
        payload    JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	loadStateSQL = `SELECT payload FROM bot_state WHERE id = $1;`

	upsertStateSQL = `INSERT INTO bot_state (id, payload, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (id) DO UPDATE
    SET payload    = EXCLUDED.payload,
        updated_at = EXCLUDED.updated_at;`
)

// Postgres keeps the document as a single jsonb row.
type Postgres struct {
	pool    *pgxpool.Pool
	id      string
	timeout time.Duration
}

// OpenPostgres dials the pool described by cfg, checks connectivity and
// creates the state table.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, timeout time.Duration) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("persistence.postgres.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = "fundingwatch"
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	store := NewPostgres(pool, cfg.DocumentID, timeout)
	pingCtx, cancel := store.withTimeout(ctx)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgres wires a pgx pool into a document store.
func NewPostgres(pool *pgxpool.Pool, documentID string, timeout time.Duration) *Postgres {
	if documentID == "" {
		documentID = "fundingwatch"
	}
	return &Postgres{pool: pool, id: documentID, timeout: timeout}
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

// EnsureSchema creates the state table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createStateTableSQL); execErr != nil {
		return fmt.Errorf("create bot_state table: %w", execErr)
	}
	return nil
}

// Load reads the document row.
func (p *Postgres) Load(ctx context.Context) ([]byte, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var payload []byte
	if scanErr := pool.QueryRow(ctx, loadStateSQL, p.id).Scan(&payload); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load state: %w", scanErr)
	}
	return payload, nil
}

// Save upserts the document row.
func (p *Postgres) Save(ctx context.Context, payload []byte) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if _, execErr := pool.Exec(ctx, upsertStateSQL, p.id, payload); execErr != nil {
		return fmt.Errorf("upsert state: %w", execErr)
	}
	return nil
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

var _ BlobStore = (*Postgres)(nil)
