// Package archive persists lead snapshots to PostgreSQL so scored pipelines
// survive process restarts and can be diffed across runs.
package archive

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/jvl-group/leadradar/internal/leadstore"
)

// Pool is the subset of pgxpool.Pool the archive needs. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Archive writes lead snapshots.
type Archive struct {
	pool Pool
}

// New wraps a connection pool.
func New(pool Pool) *Archive {
	return &Archive{pool: pool}
}

// Connect opens a pgx pool for the given URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "archive: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "archive: ping")
	}
	return pool, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS lead_snapshots (
	company_id  TEXT PRIMARY KEY,
	payload     JSONB NOT NULL,
	score       INT NOT NULL,
	priority    TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	archived_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lead_snapshots_priority ON lead_snapshots(priority);
CREATE INDEX IF NOT EXISTS idx_lead_snapshots_country ON lead_snapshots(country);
`

// Migrate creates the snapshot schema.
func (a *Archive) Migrate(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, migration)
	return eris.Wrap(err, "archive: migrate")
}

const upsertSQL = `
INSERT INTO lead_snapshots (company_id, payload, score, priority, country, archived_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (company_id) DO UPDATE SET
	payload = EXCLUDED.payload,
	score = EXCLUDED.score,
	priority = EXCLUDED.priority,
	country = EXCLUDED.country,
	archived_at = EXCLUDED.archived_at`

// Snapshot upserts one lead.
func (a *Archive) Snapshot(ctx context.Context, lead leadstore.Lead) error {
	payload, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "archive: marshal lead")
	}
	_, err = a.pool.Exec(ctx, upsertSQL,
		lead.CompanyID, payload, lead.Score, lead.Priority, lead.Country, time.Now().UTC(),
	)
	return eris.Wrapf(err, "archive: snapshot %s", lead.CompanyID)
}

// SnapshotAll upserts every given lead and returns how many were written.
// The first failure aborts the run.
func (a *Archive) SnapshotAll(ctx context.Context, leads []leadstore.Lead) (int, error) {
	for i, l := range leads {
		if err := a.Snapshot(ctx, l); err != nil {
			return i, err
		}
	}
	return len(leads), nil
}

// Get loads one archived lead.
func (a *Archive) Get(ctx context.Context, companyID string) (*leadstore.Lead, error) {
	var payload []byte
	row := a.pool.QueryRow(ctx,
		`SELECT payload FROM lead_snapshots WHERE company_id = $1`, companyID)
	if err := row.Scan(&payload); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "archive: get %s", companyID)
	}
	var lead leadstore.Lead
	if err := json.Unmarshal(payload, &lead); err != nil {
		return nil, eris.Wrap(err, "archive: unmarshal lead")
	}
	return &lead, nil
}

// List returns archived leads for a priority tier, best score first. An
// empty priority lists everything.
func (a *Archive) List(ctx context.Context, priority string, limit int) ([]leadstore.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT payload FROM lead_snapshots`
	args := []any{}
	if priority != "" {
		query += ` WHERE priority = $1`
		args = append(args, priority)
	}
	query += ` ORDER BY score DESC, country, company_id LIMIT ` + strconv.Itoa(limit)

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "archive: list")
	}
	defer rows.Close()

	var out []leadstore.Lead
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "archive: scan snapshot")
		}
		var lead leadstore.Lead
		if err := json.Unmarshal(payload, &lead); err != nil {
			return nil, eris.Wrap(err, "archive: unmarshal snapshot")
		}
		out = append(out, lead)
	}
	return out, eris.Wrap(rows.Err(), "archive: list iterate")
}
