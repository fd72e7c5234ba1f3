package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/journal-portal-api/internal/models"
)

// JournalRepository reads the journals selectable on the copyright form.
type JournalRepository struct {
	db *sqlx.DB
}

// NewJournalRepository constructs the repository.
func NewJournalRepository(db *sqlx.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// List returns journals ordered by title.
func (r *JournalRepository) List(ctx context.Context, activeOnly bool) ([]models.Journal, error) {
	query := `SELECT id, title, issn, active FROM journals`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY title ASC`
	var journals []models.Journal
	if err := r.db.SelectContext(ctx, &journals, query); err != nil {
		return nil, fmt.Errorf("list journals: %w", err)
	}
	return journals, nil
}

// GetByID fetches a journal.
func (r *JournalRepository) GetByID(ctx context.Context, id string) (*models.Journal, error) {
	const query = `SELECT id, title, issn, active FROM journals WHERE id = $1`
	var journal models.Journal
	if err := r.db.GetContext(ctx, &journal, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get journal: %w", err)
	}
	return &journal, nil
}
