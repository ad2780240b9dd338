package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/startup-intake/internal/model"
)

func newMockedPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newMockedPostgres(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS startups").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsert(t *testing.T) {
	s, mock := newMockedPostgres(t)
	mock.ExpectExec("INSERT INTO startups").
		WithArgs(pgxmock.AnyArg(), "acme.io", "Acme Robotics", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.Upsert(context.Background(), &model.StartupRecord{
		CanonicalDomain: "acme.io",
		CompanyName:     "Acme Robotics",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsert_ConflictSurfacesAsDuplicate(t *testing.T) {
	s, mock := newMockedPostgres(t)
	// ON CONFLICT DO NOTHING swallows the row: zero rows affected means the
	// domain already exists
	mock.ExpectExec("INSERT INTO startups").
		WithArgs(pgxmock.AnyArg(), "acme.io", "Acme Robotics", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := s.Upsert(context.Background(), &model.StartupRecord{
		CanonicalDomain: "acme.io",
		CompanyName:     "Acme Robotics",
	})
	assert.ErrorIs(t, err, ErrDuplicateDomain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByCanonicalDomain(t *testing.T) {
	s, mock := newMockedPostgres(t)
	body := []byte(`{"company_name":"Acme Robotics","canonical_domain":"acme.io","stage":2}`)
	mock.ExpectQuery("SELECT id, data FROM startups WHERE canonical_domain").
		WithArgs("acme.io").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).AddRow("rec-1", body))

	rec, err := s.FindByCanonicalDomain(context.Background(), "acme.io")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, "Acme Robotics", rec.CompanyName)
	assert.Equal(t, 2, rec.Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByCanonicalDomain_NoRows(t *testing.T) {
	s, mock := newMockedPostgres(t)
	mock.ExpectQuery("SELECT id, data FROM startups WHERE canonical_domain").
		WithArgs("nope.io").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.FindByCanonicalDomain(context.Background(), "nope.io")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindCandidatesByNameSubstring(t *testing.T) {
	s, mock := newMockedPostgres(t)
	rows := pgxmock.NewRows([]string{"id", "data"}).
		AddRow("rec-1", []byte(`{"company_name":"Acme Robotics"}`)).
		AddRow("rec-2", []byte(`{"company_name":"Acme Labs"}`))
	mock.ExpectQuery("SELECT id, data FROM startups WHERE company_name ILIKE").
		WithArgs("acme", 10).
		WillReturnRows(rows)

	out, err := s.FindCandidatesByNameSubstring(context.Background(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "rec-2", out[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendEvidence(t *testing.T) {
	s, mock := newMockedPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT data FROM startups WHERE id").
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"company_name":"Acme","canonical_domain":"acme.io"}`)))
	mock.ExpectExec("UPDATE startups SET data").
		WithArgs(pgxmock.AnyArg(), "Acme", pgxmock.AnyArg(), "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	delta := model.EvidenceDelta{
		Alias:    "Acme Robotics",
		Evidence: []model.EvidenceItem{{URL: "https://news.example.com/a", Source: "article_scan"}},
	}
	require.NoError(t, s.AppendEvidence(context.Background(), "rec-1", delta))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendEvidence_MissingRecord(t *testing.T) {
	s, mock := newMockedPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT data FROM startups WHERE id").
		WithArgs("no-such-id").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.AppendEvidence(context.Background(), "no-such-id", model.EvidenceDelta{})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
