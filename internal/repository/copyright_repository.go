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

const copyrightColumns = `id, submission_id, author_id, journal_id, manuscript_title, authors, signatures,
       template_version, status, manuscript_key, manuscript_name, manuscript_mime, manuscript_size,
       pdf_key, submitted_at, created_at, updated_at`

// CopyrightRepository persists full paper copyright agreements.
type CopyrightRepository struct {
	db *sqlx.DB
}

// NewCopyrightRepository constructs the repository.
func NewCopyrightRepository(db *sqlx.DB) *CopyrightRepository {
	return &CopyrightRepository{db: db}
}

func (r *CopyrightRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetCurrent returns the newest non-superseded agreement for a submission.
func (r *CopyrightRepository) GetCurrent(ctx context.Context, submissionID string) (*models.CopyrightSubmission, error) {
	query := "SELECT " + copyrightColumns + " FROM copyright_submissions WHERE submission_id = $1 AND status <> $2 ORDER BY template_version DESC, created_at DESC LIMIT 1"
	var cs models.CopyrightSubmission
	if err := r.db.GetContext(ctx, &cs, query, submissionID, models.CopyrightStatusSuperseded); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get copyright submission: %w", err)
	}
	return &cs, nil
}

// GetByID loads an agreement regardless of status.
func (r *CopyrightRepository) GetByID(ctx context.Context, id string) (*models.CopyrightSubmission, error) {
	query := "SELECT " + copyrightColumns + " FROM copyright_submissions WHERE id = $1"
	var cs models.CopyrightSubmission
	if err := r.db.GetContext(ctx, &cs, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get copyright submission by id: %w", err)
	}
	return &cs, nil
}

// Save inserts cs when it has no identifier and updates the form fields otherwise.
func (r *CopyrightRepository) Save(ctx context.Context, exec sqlx.ExtContext, cs *models.CopyrightSubmission) error {
	target := r.exec(exec)
	now := time.Now().UTC()
	cs.UpdatedAt = now

	if cs.ID == "" {
		cs.ID = uuid.NewString()
		if cs.CreatedAt.IsZero() {
			cs.CreatedAt = now
		}
		if cs.Status == "" {
			cs.Status = models.CopyrightStatusDraft
		}
		const insertQuery = `INSERT INTO copyright_submissions
	(id, submission_id, author_id, journal_id, manuscript_title, authors, signatures, template_version, status, submitted_at, created_at, updated_at)
	VALUES (:id, :submission_id, :author_id, :journal_id, :manuscript_title, :authors, :signatures, :template_version, :status, :submitted_at, :created_at, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, cs); err != nil {
			return fmt.Errorf("insert copyright submission: %w", err)
		}
		return nil
	}

	const updateQuery = `UPDATE copyright_submissions SET
	journal_id = :journal_id, manuscript_title = :manuscript_title, authors = :authors, signatures = :signatures,
	template_version = :template_version, status = :status, submitted_at = :submitted_at, updated_at = :updated_at,
	pdf_key = NULL
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, target, updateQuery, cs)
	if err != nil {
		return fmt.Errorf("update copyright submission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check copyright update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	cs.PDFKey = nil
	return nil
}

// SupersedeOlder marks agreements bound to a template version below version as superseded.
func (r *CopyrightRepository) SupersedeOlder(ctx context.Context, exec sqlx.ExtContext, submissionID string, version int) (int64, error) {
	const query = `UPDATE copyright_submissions SET status = $1, updated_at = $2
	WHERE submission_id = $3 AND template_version < $4 AND status <> $1`
	result, err := r.exec(exec).ExecContext(ctx, query, models.CopyrightStatusSuperseded, time.Now().UTC(), submissionID, version)
	if err != nil {
		return 0, fmt.Errorf("supersede copyright submissions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check supersede rows: %w", err)
	}
	return rows, nil
}

// ManuscriptParams describes a stored full paper.
type ManuscriptParams struct {
	ID   string
	Key  string
	Name string
	MIME string
	Size int64
}

// SetManuscript records the uploaded full paper on an agreement.
func (r *CopyrightRepository) SetManuscript(ctx context.Context, params ManuscriptParams) error {
	const query = `UPDATE copyright_submissions SET manuscript_key = $1, manuscript_name = $2, manuscript_mime = $3, manuscript_size = $4, updated_at = $5 WHERE id = $6`
	result, err := r.db.ExecContext(ctx, query, params.Key, params.Name, params.MIME, params.Size, time.Now().UTC(), params.ID)
	if err != nil {
		return fmt.Errorf("set manuscript: %w", err)
	}
	return expectOneRow(result, "set manuscript")
}

// SetPDFKey records where the rendered agreement was stored.
func (r *CopyrightRepository) SetPDFKey(ctx context.Context, id, key string) error {
	const query = `UPDATE copyright_submissions SET pdf_key = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, key, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set copyright pdf: %w", err)
	}
	return expectOneRow(result, "set copyright pdf")
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
