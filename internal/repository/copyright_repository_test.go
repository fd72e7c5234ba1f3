package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/schema"
)

var copyrightRowColumns = []string{
	"id", "submission_id", "author_id", "journal_id", "manuscript_title", "authors", "signatures",
	"template_version", "status", "manuscript_key", "manuscript_name", "manuscript_mime", "manuscript_size",
	"pdf_key", "submitted_at", "created_at", "updated_at",
}

func TestCopyrightRepositoryGetCurrentDecodesJSONColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCopyrightRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(copyrightRowColumns).AddRow(
		"c-1", "s-1", "a-1", "j-1", "On Graphs",
		`[{"name":"Ada","email":"ada@example.com"},{"name":"Grace","email":"grace@example.com"}]`,
		`{"0":{"name":"Ada","date":"2024-03-01"}}`,
		2, "submitted", nil, nil, nil, nil, nil, now, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM copyright_submissions WHERE submission_id = $1 AND status <> $2")).
		WithArgs("s-1", string(models.CopyrightStatusSuperseded)).
		WillReturnRows(rows)

	cs, err := repo.GetCurrent(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, cs.Authors, 2)
	assert.Equal(t, "grace@example.com", cs.Authors[1].Email)
	require.Contains(t, cs.Signatures, 0)
	assert.Equal(t, &schema.Signature{Name: "Ada", Date: "2024-03-01"}, cs.Signatures[0])
	assert.Equal(t, 2, cs.TemplateVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyrightRepositorySaveInsertsThenUpdates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCopyrightRepository(db)

	cs := &models.CopyrightSubmission{
		SubmissionID:    "s-1",
		AuthorID:        "a-1",
		JournalID:       "j-1",
		ManuscriptTitle: "On Graphs",
		Authors:         models.Authors{{Name: "Ada", Email: "ada@example.com"}},
		TemplateVersion: 1,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO copyright_submissions")).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Save(context.Background(), nil, cs))
	assert.NotEmpty(t, cs.ID)
	assert.Equal(t, models.CopyrightStatusDraft, cs.Status)

	cs.Status = models.CopyrightStatusSubmitted
	stale := "copyright/" + cs.ID + ".pdf"
	cs.PDFKey = &stale
	mock.ExpectExec(`UPDATE copyright_submissions SET[\s\S]+pdf_key = NULL`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Save(context.Background(), nil, cs))
	assert.Nil(t, cs.PDFKey)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE copyright_submissions SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Save(context.Background(), nil, cs), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyrightRepositorySupersedeOlder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCopyrightRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE copyright_submissions SET status = $1")).
		WithArgs(string(models.CopyrightStatusSuperseded), sqlmock.AnyArg(), "s-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.SupersedeOlder(context.Background(), nil, "s-1", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyrightRepositorySetPDFKeyMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCopyrightRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE copyright_submissions SET pdf_key")).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetPDFKey(context.Background(), "c-9", "copyright/c-9.pdf"), sql.ErrNoRows)
}
