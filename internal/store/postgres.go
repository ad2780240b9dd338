package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/startup-intake/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on pgxpool. The record body is stored as a
// jsonb document beside the identity columns the queries need.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres connects a pool and verifies connectivity.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS startups (
	id               TEXT PRIMARY KEY,
	canonical_domain TEXT UNIQUE,
	company_name     TEXT NOT NULL,
	data             JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_startups_company_name ON startups (lower(company_name));
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindByCanonicalDomain(ctx context.Context, domain string) (*model.StartupRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, data FROM startups WHERE canonical_domain = $1`,
		domain,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find by domain %s", domain)
	}
	return rec, nil
}

func (s *PostgresStore) FindCandidatesByNameSubstring(ctx context.Context, name string, limit int) ([]model.StartupRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, data FROM startups WHERE company_name ILIKE '%' || $1 || '%' LIMIT $2`,
		name, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: candidates by name")
	}
	defer rows.Close()

	var out []model.StartupRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: candidates by name")
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *model.StartupRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal record")
	}

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO startups (id, canonical_domain, company_name, data, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $5)
		 ON CONFLICT (canonical_domain) DO NOTHING`,
		id, rec.CanonicalDomain, rec.CompanyName, body, now,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert %s", rec.CanonicalDomain)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrDuplicateDomain
	}
	return id, nil
}

func (s *PostgresStore) AppendEvidence(ctx context.Context, id string, delta model.EvidenceDelta) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append evidence")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var body []byte
	if err := tx.QueryRow(ctx,
		`SELECT data FROM startups WHERE id = $1 FOR UPDATE`, id,
	).Scan(&body); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return errNotFound(id)
		}
		return eris.Wrapf(err, "postgres: lock record %s", id)
	}

	var rec model.StartupRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return eris.Wrapf(err, "postgres: unmarshal record %s", id)
	}
	applyDelta(&rec, delta)

	updated, err := json.Marshal(&rec)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal record %s", id)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE startups SET data = $1, company_name = $2, updated_at = $3 WHERE id = $4`,
		updated, rec.CompanyName, time.Now().UTC(), id,
	); err != nil {
		return eris.Wrapf(err, "postgres: update record %s", id)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit append evidence")
}

func scanRecord(row pgx.Row) (*model.StartupRecord, error) {
	var id string
	var body []byte
	if err := row.Scan(&id, &body); err != nil {
		return nil, err
	}
	var rec model.StartupRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, eris.Wrap(err, "decode record body")
	}
	rec.ID = id
	return &rec, nil
}
