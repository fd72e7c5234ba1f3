package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/pkg/database"
)

func TestTemplateRepositoryPublishInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM form_templates")).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE form_templates SET active = FALSE")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_templates")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tpl := &models.FormTemplate{Name: "Copyright v4", Schema: []byte(`{"version":4,"sections":[]}`)}
	err := database.WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		return repo.Publish(context.Background(), tx, tpl)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, tpl.Version)
	assert.True(t, tpl.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryGetActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "version", "name", "schema", "active", "published_by", "created_at"}).
		AddRow("t-1", 2, "Copyright", `{"version":2,"sections":[]}`, true, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM form_templates WHERE active = TRUE")).WillReturnRows(rows)

	tpl, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tpl.Version)
	assert.JSONEq(t, `{"version":2,"sections":[]}`, string(tpl.Schema))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewJournalRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "issn", "active"}).
		AddRow("j-1", "Journal of Graphs", "1234-5678", true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, issn, active FROM journals WHERE active = TRUE ORDER BY title ASC")).
		WillReturnRows(rows)

	journals, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, journals, 1)
	assert.Equal(t, "Journal of Graphs", journals[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}
