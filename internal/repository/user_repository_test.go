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
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}).
		AddRow("1", "editor@example.com", "hash", "Grace", string(models.RoleEditor), true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("editor@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "editor@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleEditor, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReviewersDefaultsToBothReviewingRoles(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "full_name", "email", "role"}).
		AddRow("7", "Grace", "grace@example.com", string(models.RoleEditor)).
		AddRow("9", "Linus", "linus@example.com", string(models.RoleConferenceEditor))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, full_name, email, role FROM users WHERE role IN ($1,$2) AND active = $3 ORDER BY full_name ASC")).
		WithArgs(string(models.RoleEditor), string(models.RoleConferenceEditor), true).
		WillReturnRows(rows)

	reviewers, err := repo.ListReviewers(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	require.Len(t, reviewers, 2)
	assert.Equal(t, "Grace", reviewers[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReviewersByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleConferenceEditor
	mock.ExpectQuery(regexp.QuoteMeta("WHERE role = $1 AND active = $2 AND (LOWER(email) LIKE $3 OR LOWER(full_name) LIKE $3)")).
		WithArgs(string(role), true, "%lin%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "role"}))

	reviewers, err := repo.ListReviewers(context.Background(), models.UserFilter{Role: &role, Search: "Lin"})
	require.NoError(t, err)
	assert.Empty(t, reviewers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefreshTokenAndAudit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{UserID: "u1", Token: "token", ExpiresAt: time.Now()})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	entry := &models.AuditLog{Action: models.AuditActionLogin, Resource: models.AuditResourceUser}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
