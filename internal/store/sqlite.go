package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/startup-intake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite for local runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS startups (
	id               TEXT PRIMARY KEY,
	canonical_domain TEXT UNIQUE,
	company_name     TEXT NOT NULL,
	data             TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_startups_company_name ON startups (company_name COLLATE NOCASE);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByCanonicalDomain(ctx context.Context, domain string) (*model.StartupRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data FROM startups WHERE canonical_domain = ?`, domain)

	var id, body string
	if err := row.Scan(&id, &body); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: find by domain %s", domain)
	}
	return decodeRecord(id, body)
}

func (s *SQLiteStore) FindCandidatesByNameSubstring(ctx context.Context, name string, limit int) ([]model.StartupRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM startups WHERE company_name LIKE '%' || ? || '%' COLLATE NOCASE LIMIT ?`,
		name, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: candidates by name")
	}
	defer rows.Close()

	var out []model.StartupRecord
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		rec, err := decodeRecord(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: candidates by name")
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *model.StartupRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal record")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO startups (id, canonical_domain, company_name, data, created_at, updated_at)
		 VALUES (?, NULLIF(?, ''), ?, ?, ?, ?)
		 ON CONFLICT (canonical_domain) DO NOTHING`,
		id, rec.CanonicalDomain, rec.CompanyName, string(body), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", ErrDuplicateDomain
		}
		return "", eris.Wrapf(err, "sqlite: insert %s", rec.CanonicalDomain)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		return "", ErrDuplicateDomain
	}
	return id, nil
}

func (s *SQLiteStore) AppendEvidence(ctx context.Context, id string, delta model.EvidenceDelta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append evidence")
	}
	defer tx.Rollback() //nolint:errcheck

	var body string
	if err := tx.QueryRowContext(ctx,
		`SELECT data FROM startups WHERE id = ?`, id,
	).Scan(&body); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return errNotFound(id)
		}
		return eris.Wrapf(err, "sqlite: load record %s", id)
	}

	var rec model.StartupRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return eris.Wrapf(err, "sqlite: unmarshal record %s", id)
	}
	applyDelta(&rec, delta)

	updated, err := json.Marshal(&rec)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal record %s", id)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE startups SET data = ?, company_name = ?, updated_at = ? WHERE id = ?`,
		string(updated), rec.CompanyName, time.Now().UTC(), id,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", id)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append evidence")
}

func decodeRecord(id, body string) (*model.StartupRecord, error) {
	var rec model.StartupRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode record %s", id)
	}
	rec.ID = id
	return &rec, nil
}
