// Package gate provides the single-flight lease that keeps share ingestions
// from overlapping, across goroutines and across process restarts.
package gate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultLeaseTTL bounds how long a crashed holder can block new ingestions.
const DefaultLeaseTTL = 2 * time.Minute

// Gate is a process-wide mutual exclusion lease.
type Gate interface {
	// TryAcquire takes the lease if it is free or expired. It never blocks.
	TryAcquire(ctx context.Context) (bool, error)
	// Release frees the lease unconditionally.
	Release(ctx context.Context) error
}

// Lease describes the current lease row.
type Lease struct {
	Held       bool      `json:"held"`
	Owner      string    `json:"owner,omitempty"`
	AcquiredAt time.Time `json:"acquired_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	Expired    bool      `json:"expired"`
}

// SQLiteGate stores the lease in a SQLite table so a crash while held only
// blocks new ingestions until the lease expires.
type SQLiteGate struct {
	db     *sql.DB
	name   string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteGate creates the lease table and row if needed.
func NewSQLiteGate(db *sql.DB, ttl time.Duration, logger *slog.Logger) (*SQLiteGate, error) {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &SQLiteGate{
		db:     db,
		name:   "share_ingestion",
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ingestion_gate (
			name TEXT PRIMARY KEY,
			held INTEGER NOT NULL DEFAULT 0,
			owner TEXT,
			acquired_at INTEGER,
			expires_at INTEGER
		)`)
	if err != nil {
		return nil, fmt.Errorf("create gate table: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO ingestion_gate (name, held) VALUES (?, 0)`, g.name); err != nil {
		return nil, fmt.Errorf("seed gate row: %w", err)
	}
	return g, nil
}

// TryAcquire takes the lease with a single conditional UPDATE, which SQLite
// executes atomically under its write lock.
func (g *SQLiteGate) TryAcquire(ctx context.Context) (bool, error) {
	now := g.now()
	owner := uuid.New().String()

	res, err := g.db.ExecContext(ctx, `
		UPDATE ingestion_gate
		SET held = 1, owner = ?, acquired_at = ?, expires_at = ?
		WHERE name = ? AND (held = 0 OR expires_at IS NULL OR expires_at <= ?)`,
		owner, now.UnixMilli(), now.Add(g.ttl).UnixMilli(), g.name, now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("acquire gate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire gate: %w", err)
	}
	if n == 1 {
		g.logger.Debug("ingestion gate acquired", "owner", owner)
		return true, nil
	}
	return false, nil
}

// Release frees the lease regardless of owner.
func (g *SQLiteGate) Release(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE ingestion_gate
		SET held = 0, owner = NULL, acquired_at = NULL, expires_at = NULL
		WHERE name = ?`, g.name)
	if err != nil {
		return fmt.Errorf("release gate: %w", err)
	}
	return nil
}

// Reset is Release under the name used by operator tooling.
func (g *SQLiteGate) Reset(ctx context.Context) error {
	g.logger.Warn("ingestion gate reset")
	return g.Release(ctx)
}

// Status reports the current lease.
func (g *SQLiteGate) Status(ctx context.Context) (*Lease, error) {
	var (
		held       int
		owner      sql.NullString
		acquiredAt sql.NullInt64
		expiresAt  sql.NullInt64
	)
	err := g.db.QueryRowContext(ctx,
		`SELECT held, owner, acquired_at, expires_at FROM ingestion_gate WHERE name = ?`, g.name,
	).Scan(&held, &owner, &acquiredAt, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("read gate: %w", err)
	}

	lease := &Lease{Held: held == 1, Owner: owner.String}
	if acquiredAt.Valid {
		lease.AcquiredAt = time.UnixMilli(acquiredAt.Int64).UTC()
	}
	if expiresAt.Valid {
		lease.ExpiresAt = time.UnixMilli(expiresAt.Int64).UTC()
		lease.Expired = lease.Held && !g.now().Before(lease.ExpiresAt)
	}
	return lease, nil
}
