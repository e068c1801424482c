package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"simscan/internal/storage"
)

const uniqueViolation = "23505"

// Repository stores SIM credentials in Postgres. Every call acquires its own
// pooled connection and releases it before returning.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an existing pool. Call EnsureSchema before using it.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the sim_cards table if it is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sim_cards (
  iccid BIGINT PRIMARY KEY,
  pin TEXT NOT NULL
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create sim_cards table: %w", err)
	}
	return nil
}

// AllCredentials loads every ICCID and PIN.
func (r *Repository) AllCredentials(ctx context.Context) (storage.Credentials, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT iccid, pin FROM sim_cards`)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	creds := make(storage.Credentials)
	for rows.Next() {
		var iccid int64
		var pin string
		if err := rows.Scan(&iccid, &pin); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds[iccid] = pin
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return creds, nil
}

// AddCredential inserts one credential. An existing ICCID yields
// storage.ErrDuplicateICCID.
func (r *Repository) AddCredential(ctx context.Context, cred storage.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO sim_cards (iccid, pin) VALUES ($1, $2)`, cred.ICCID, cred.PIN)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("iccid %d: %w", cred.ICCID, storage.ErrDuplicateICCID)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// BulkAdd inserts creds in one transaction, skipping ICCIDs that already
// exist. It returns how many rows were inserted. Nothing is written if any
// credential is invalid.
func (r *Repository) BulkAdd(ctx context.Context, creds []storage.Credential) (int, error) {
	for i, c := range creds {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("credential %d: %w", i+1, err)
		}
	}
	if len(creds) == 0 {
		return 0, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range creds {
		batch.Queue(`INSERT INTO sim_cards (iccid, pin) VALUES ($1, $2) ON CONFLICT (iccid) DO NOTHING`, c.ICCID, c.PIN)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range creds {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("bulk insert: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("bulk insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Close helps when wiring Repository to a lifecycle manager.
func (r *Repository) Close() {
	r.pool.Close()
}

// NewDB opens a pgx pool with tuned defaults.
func NewDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	// Scans load credentials once; a handful of connections is plenty.
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
