package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/journal-portal-api/internal/models"
)

// TemplateRepository persists versioned copyright form templates.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetActive returns the template currently offered to authors.
func (r *TemplateRepository) GetActive(ctx context.Context) (*models.FormTemplate, error) {
	const query = `SELECT id, version, name, schema, active, published_by, created_at FROM form_templates WHERE active = TRUE ORDER BY version DESC LIMIT 1`
	var tpl models.FormTemplate
	if err := r.db.GetContext(ctx, &tpl, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return &tpl, nil
}

// GetByVersion loads a specific template version, active or not.
func (r *TemplateRepository) GetByVersion(ctx context.Context, version int) (*models.FormTemplate, error) {
	const query = `SELECT id, version, name, schema, active, published_by, created_at FROM form_templates WHERE version = $1`
	var tpl models.FormTemplate
	if err := r.db.GetContext(ctx, &tpl, query, version); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get template version %d: %w", version, err)
	}
	return &tpl, nil
}

// Publish deactivates every existing template and inserts tpl as the next active version.
// Callers pass a transaction so both statements commit together.
func (r *TemplateRepository) Publish(ctx context.Context, exec sqlx.ExtContext, tpl *models.FormTemplate) error {
	if tpl == nil {
		return fmt.Errorf("template payload is nil")
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	tpl.Active = true

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM form_templates`
	if err := sqlx.GetContext(ctx, target, &tpl.Version, nextVersionQuery); err != nil {
		return fmt.Errorf("compute next template version: %w", err)
	}
	if _, err := target.ExecContext(ctx, `UPDATE form_templates SET active = FALSE WHERE active = TRUE`); err != nil {
		return fmt.Errorf("deactivate templates: %w", err)
	}

	const insertQuery = `INSERT INTO form_templates (id, version, name, schema, active, published_by, created_at)
VALUES (:id, :version, :name, :schema, :active, :published_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, tpl); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}
