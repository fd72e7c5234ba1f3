package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/journal-portal-api/internal/workflow"
)

// StatusTimestamps is stored as a JSONB object keyed by status.
type StatusTimestamps map[workflow.Status]time.Time

// Value implements driver.Valuer.
func (t StatusTimestamps) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[workflow.Status]time.Time(t))
}

// Scan implements sql.Scanner.
func (t *StatusTimestamps) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = StatusTimestamps{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("status timestamps: unsupported type %T", src)
	}
	out := map[workflow.Status]time.Time{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("status timestamps: %w", err)
		}
	}
	*t = out
	return nil
}

// Submission is an abstract moving through the review pipeline.
type Submission struct {
	ID                       string           `db:"id" json:"id"`
	GroupID                  string           `db:"group_id" json:"group_id"`
	Title                    string           `db:"title" json:"title"`
	Abstract                 string           `db:"abstract" json:"abstract"`
	Keywords                 string           `db:"keywords" json:"keywords,omitempty"`
	AuthorID                 string           `db:"author_id" json:"author_id"`
	AuthorName               string           `db:"author_name" json:"author_name"`
	Status                   workflow.Status  `db:"status" json:"status"`
	EditorID                 *string          `db:"editor_id" json:"editor_id,omitempty"`
	EditorName               *string          `db:"editor_name" json:"editor_name,omitempty"`
	ConferenceEditorID       *string          `db:"conference_editor_id" json:"conference_editor_id,omitempty"`
	ConferenceEditorName     *string          `db:"conference_editor_name" json:"conference_editor_name,omitempty"`
	EditorComment            *string          `db:"editor_comment" json:"editor_comment,omitempty"`
	ConferenceEditorComment  *string          `db:"conference_editor_comment" json:"conference_editor_comment,omitempty"`
	AdminFinalComment        *string          `db:"admin_final_comment" json:"admin_final_comment,omitempty"`
	EditorDecision           *string          `db:"editor_decision" json:"editor_decision,omitempty"`
	ConferenceEditorDecision *string          `db:"conference_editor_decision" json:"conference_editor_decision,omitempty"`
	AdminDecision            *string          `db:"admin_decision" json:"admin_decision,omitempty"`
	StatusTimestamps         StatusTimestamps `db:"status_timestamps" json:"status_timestamps"`
	Version                  int              `db:"version" json:"version"`
	CreatedAt                time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time        `db:"updated_at" json:"updated_at"`
}

// Record extracts the workflow view of the submission.
func (s *Submission) Record() workflow.Record {
	rec := workflow.Record{
		Status:                   s.Status,
		EditorComment:            deref(s.EditorComment),
		ConferenceEditorComment:  deref(s.ConferenceEditorComment),
		AdminFinalComment:        deref(s.AdminFinalComment),
		EditorDecision:           workflow.Decision(deref(s.EditorDecision)),
		ConferenceEditorDecision: workflow.Decision(deref(s.ConferenceEditorDecision)),
		AdminDecision:            workflow.Decision(deref(s.AdminDecision)),
		StatusTimestamps:         map[workflow.Status]time.Time{},
	}
	if s.EditorID != nil {
		rec.AssignedEditor = &workflow.Reviewer{ID: *s.EditorID, Name: deref(s.EditorName)}
	}
	if s.ConferenceEditorID != nil {
		rec.AssignedConferenceEditor = &workflow.Reviewer{ID: *s.ConferenceEditorID, Name: deref(s.ConferenceEditorName)}
	}
	for k, v := range s.StatusTimestamps {
		rec.StatusTimestamps[k] = v
	}
	return rec
}

// SetRecord copies workflow state back onto the persisted columns.
func (s *Submission) SetRecord(rec workflow.Record) {
	s.Status = rec.Status
	s.EditorID, s.EditorName = nil, nil
	if rec.AssignedEditor != nil {
		s.EditorID = ptr(rec.AssignedEditor.ID)
		s.EditorName = optional(rec.AssignedEditor.Name)
	}
	s.ConferenceEditorID, s.ConferenceEditorName = nil, nil
	if rec.AssignedConferenceEditor != nil {
		s.ConferenceEditorID = ptr(rec.AssignedConferenceEditor.ID)
		s.ConferenceEditorName = optional(rec.AssignedConferenceEditor.Name)
	}
	s.EditorComment = optional(rec.EditorComment)
	s.ConferenceEditorComment = optional(rec.ConferenceEditorComment)
	s.AdminFinalComment = optional(rec.AdminFinalComment)
	s.EditorDecision = optional(string(rec.EditorDecision))
	s.ConferenceEditorDecision = optional(string(rec.ConferenceEditorDecision))
	s.AdminDecision = optional(string(rec.AdminDecision))
	s.StatusTimestamps = StatusTimestamps{}
	for k, v := range rec.StatusTimestamps {
		s.StatusTimestamps[k] = v
	}
}

// SubmissionFilter constrains listing queries.
type SubmissionFilter struct {
	GroupID  string
	Status   []workflow.Status
	AuthorID string
	// ReviewerID limits results to submissions where the user is an assigned editor at either stage.
	ReviewerID string
	Search     string
	Page       int
	PageSize   int
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	return &s
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
