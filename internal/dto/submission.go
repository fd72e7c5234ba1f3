package dto

import (
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
)

// CreateSubmissionRequest is an author's abstract submission.
type CreateSubmissionRequest struct {
	GroupID  string `json:"groupId" validate:"required"`
	Title    string `json:"title" validate:"required,max=300"`
	Abstract string `json:"abstract" validate:"required"`
	Keywords string `json:"keywords" validate:"omitempty,max=500"`
}

// AssignEditorRequest selects the reviewer for the next stage.
type AssignEditorRequest struct {
	EditorID string `json:"editorId"`
}

// ReviewRequest carries an editor, conference editor or admin verdict.
type ReviewRequest struct {
	Decision workflow.Verdict `json:"decision"`
	Comment  string           `json:"comment"`
}

// SubmissionQuery mirrors supported listing filters.
type SubmissionQuery struct {
	GroupID  string
	Status   []workflow.Status
	Search   string
	Page     int
	PageSize int
}

// SubmissionView is a submission with the projections clients need to render it.
type SubmissionView struct {
	models.Submission
	AllowedActions []workflow.ActionKind `json:"allowed_actions"`
	ExpectedActor  string                `json:"expected_actor,omitempty"`
}

// NewSubmissionView projects sub for actor.
func NewSubmissionView(sub models.Submission, actor workflow.Actor) SubmissionView {
	rec := sub.Record()
	actions := workflow.PermittedActions(rec, actor)
	if actions == nil {
		actions = []workflow.ActionKind{}
	}
	return SubmissionView{Submission: sub, AllowedActions: actions, ExpectedActor: workflow.ExpectedActor(rec)}
}

// TimelineView is the stage-by-stage projection of a submission.
type TimelineView struct {
	SubmissionID string                   `json:"submission_id"`
	Status       workflow.Status          `json:"status"`
	Entries      []workflow.TimelineEntry `json:"entries"`
}
