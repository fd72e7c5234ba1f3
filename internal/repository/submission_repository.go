package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
)

const submissionColumns = `id, group_id, title, abstract, keywords, author_id, author_name, status,
       editor_id, editor_name, conference_editor_id, conference_editor_name,
       editor_comment, conference_editor_comment, admin_final_comment,
       editor_decision, conference_editor_decision, admin_decision,
       status_timestamps, version, created_at, updated_at`

// SubmissionRepository persists abstract submissions and their review state.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a freshly submitted abstract.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = sub.CreatedAt
	if sub.Status == "" {
		sub.SetRecord(workflow.NewRecord(sub.CreatedAt))
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	const query = `INSERT INTO abstract_submissions
	(id, group_id, title, abstract, keywords, author_id, author_name, status, status_timestamps, version, created_at, updated_at)
	VALUES (:id, :group_id, :title, :abstract, :keywords, :author_id, :author_name, :status, :status_timestamps, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetByID fetches a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM abstract_submissions WHERE id = $1"
	var sub models.Submission
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

// List returns submissions matching the filter, newest first, with the total count.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 5)

	if filter.GroupID != "" {
		args = append(args, filter.GroupID)
		conditions = append(conditions, fmt.Sprintf("group_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", len(args)))
	}
	if filter.ReviewerID != "" {
		args = append(args, filter.ReviewerID)
		conditions = append(conditions, fmt.Sprintf("(editor_id = $%d OR conference_editor_id = $%d)", len(args), len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(author_name) LIKE $%d)", len(args), len(args)))
	}

	base := " FROM abstract_submissions"
	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s%s ORDER BY created_at DESC LIMIT %d OFFSET %d", submissionColumns, base, pageSize, offset)
	var subs []models.Submission
	if err := r.db.SelectContext(ctx, &subs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return subs, total, nil
}

// UpdateWorkflow persists the review columns of sub provided the stored row is
// still in the expected status. A lost race yields sql.ErrNoRows.
func (r *SubmissionRepository) UpdateWorkflow(ctx context.Context, sub *models.Submission, expected workflow.Status) error {
	sub.UpdatedAt = time.Now().UTC()
	const query = `UPDATE abstract_submissions SET
	status = :status,
	editor_id = :editor_id, editor_name = :editor_name,
	conference_editor_id = :conference_editor_id, conference_editor_name = :conference_editor_name,
	editor_comment = :editor_comment, conference_editor_comment = :conference_editor_comment, admin_final_comment = :admin_final_comment,
	editor_decision = :editor_decision, conference_editor_decision = :conference_editor_decision, admin_decision = :admin_decision,
	status_timestamps = :status_timestamps, version = version + 1, updated_at = :updated_at
	WHERE id = :id AND status = :expected_status`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                         sub.ID,
		"status":                     sub.Status,
		"editor_id":                  sub.EditorID,
		"editor_name":                sub.EditorName,
		"conference_editor_id":       sub.ConferenceEditorID,
		"conference_editor_name":     sub.ConferenceEditorName,
		"editor_comment":             sub.EditorComment,
		"conference_editor_comment":  sub.ConferenceEditorComment,
		"admin_final_comment":        sub.AdminFinalComment,
		"editor_decision":            sub.EditorDecision,
		"conference_editor_decision": sub.ConferenceEditorDecision,
		"admin_decision":             sub.AdminDecision,
		"status_timestamps":          sub.StatusTimestamps,
		"updated_at":                 sub.UpdatedAt,
		"expected_status":            expected,
	})
	if err != nil {
		return fmt.Errorf("update submission workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check submission update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
