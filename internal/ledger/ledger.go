// Package ledger keeps an append-only audit of published posts in Postgres.
// It is optional and never consulted to skip or resume work.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"

	"wp-bulkpost/internal/core/publish"
)

const driverName = "pgx"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS published_posts (
		id           BIGSERIAL PRIMARY KEY,
		run_id       TEXT NOT NULL,
		category     TEXT NOT NULL,
		name         TEXT NOT NULL,
		asset_path   TEXT NOT NULL,
		entry_url    TEXT NOT NULL,
		target_link  TEXT NOT NULL,
		published_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS published_posts_run_id_idx ON published_posts (run_id)`,
}

const insertPost = `
	INSERT INTO published_posts (
		run_id, category, name, asset_path, entry_url, target_link, published_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Ledger writes published results to a database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database handle.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Open connects to the Postgres database at dsn and checks it is reachable.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WithHint(errors.Wrap(err, "ping ledger"), "check ledger.dsn or leave it empty to disable the ledger")
	}
	return New(db), nil
}

// Close releases the database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// EnsureSchema creates the ledger table when missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create ledger schema")
		}
	}
	return nil
}

// Record stores results for runID in one transaction and returns the number
// of rows written.
func (l *Ledger) Record(ctx context.Context, runID string, results []publish.Result) (n int, err error) {
	if len(results) == 0 {
		return 0, nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin ledger tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertPost)
	if err != nil {
		return 0, errors.Wrap(err, "prepare ledger insert")
	}
	defer stmt.Close()

	at := l.now().UTC()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, runID, r.Category, r.Name, r.AssetPath, r.EntryURL, r.TargetLink, at); err != nil {
			return 0, errors.Wrapf(err, "record %q", r.Name)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit ledger tx")
	}
	return n, nil
}

// CountRun returns how many posts were recorded for runID.
func (l *Ledger) CountRun(ctx context.Context, runID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM published_posts WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count ledger rows")
	}
	return n, nil
}
