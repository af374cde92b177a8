// Package tracker persists outreach engagement: minted tracking tokens, link
// opens and named demo events, in a local SQLite database.
package tracker

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Store wraps the analytics database.
type Store struct {
	db *sql.DB
}

// NewSQLite opens the analytics database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "tracker: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS tokens (
	token      TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	target_url TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS opens (
	token TEXT NOT NULL,
	ts    DATETIME NOT NULL DEFAULT (datetime('now')),
	ip    TEXT,
	ua    TEXT
);

CREATE TABLE IF NOT EXISTS events (
	token TEXT NOT NULL,
	ts    DATETIME NOT NULL DEFAULT (datetime('now')),
	name  TEXT NOT NULL,
	meta  TEXT
);

CREATE INDEX IF NOT EXISTS idx_tokens_company_id ON tokens(company_id);
CREATE INDEX IF NOT EXISTS idx_opens_token ON opens(token);
CREATE INDEX IF NOT EXISTS idx_events_token ON events(token);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "tracker: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Mint creates a tracking token for a company. targetURL is where an open
// redirects to; it may be empty.
func (s *Store) Mint(ctx context.Context, companyID, targetURL string) (string, error) {
	token := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, company_id, target_url, created_at) VALUES (?, ?, ?, ?)`,
		token, companyID, targetURL, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "tracker: mint token for %s", companyID)
	}
	return token, nil
}

// Resolve returns the company and target URL behind a token. Unknown tokens
// resolve to empty strings without error so the redirect handler can fall
// back to the demo page.
func (s *Store) Resolve(ctx context.Context, token string) (companyID, targetURL string, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT company_id, target_url FROM tokens WHERE token = ?`, token)
	err = row.Scan(&companyID, &targetURL)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", eris.Wrap(err, "tracker: resolve token")
	}
	return companyID, targetURL, nil
}

// RecordOpen logs one link open.
func (s *Store) RecordOpen(ctx context.Context, token, ip, ua string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO opens (token, ts, ip, ua) VALUES (?, ?, ?, ?)`,
		token, time.Now().UTC(), ip, ua,
	)
	return eris.Wrap(err, "tracker: record open")
}

// RecordEvent logs one named event with an optional JSON meta payload.
func (s *Store) RecordEvent(ctx context.Context, token, name, meta string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (token, ts, name, meta) VALUES (?, ?, ?, ?)`,
		token, time.Now().UTC(), name, meta,
	)
	return eris.Wrap(err, "tracker: record event")
}

// TokenStats aggregates engagement for one token.
type TokenStats struct {
	Token     string `json:"token"`
	CompanyID string `json:"company_id"`
	Opens     int    `json:"opens"`
	Events    int    `json:"events"`
}

// Stats returns per-token engagement counts, most-opened first.
func (s *Store) Stats(ctx context.Context) ([]TokenStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.token, t.company_id,
			(SELECT COUNT(*) FROM opens o WHERE o.token = t.token),
			(SELECT COUNT(*) FROM events e WHERE e.token = t.token)
		FROM tokens t
		ORDER BY 3 DESC, t.created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: stats")
	}
	defer rows.Close()

	var out []TokenStats
	for rows.Next() {
		var ts TokenStats
		if err := rows.Scan(&ts.Token, &ts.CompanyID, &ts.Opens, &ts.Events); err != nil {
			return nil, eris.Wrap(err, "tracker: scan stats")
		}
		out = append(out, ts)
	}
	return out, eris.Wrap(rows.Err(), "tracker: stats iterate")
}

// LinkMinter implements the export linker on top of the store: every call
// mints a fresh token and returns the public /t/ URL for it.
type LinkMinter struct {
	store   *Store
	baseURL string
}

// NewLinkMinter builds a minter. baseURL is the public tracker base, e.g.
// http://localhost:8787.
func NewLinkMinter(store *Store, baseURL string) *LinkMinter {
	return &LinkMinter{store: store, baseURL: baseURL}
}

// Link mints a token for the company and returns the tracked URL.
func (m *LinkMinter) Link(companyID string) (string, string, error) {
	token, err := m.store.Mint(context.Background(), companyID, "")
	if err != nil {
		return "", "", err
	}
	return token, m.baseURL + "/t/" + token, nil
}
