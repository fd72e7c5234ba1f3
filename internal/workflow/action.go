package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ActionKind names a transition.
type ActionKind string

const (
	ActionAssignEditor           ActionKind = "assign_editor"
	ActionAssignConferenceEditor ActionKind = "assign_conference_editor"
	ActionReview                 ActionKind = "review"
	ActionFinalDecision          ActionKind = "final_decision"
)

// Action is one of AssignEditor, AssignConferenceEditor, Review or FinalDecision.
type Action interface {
	Kind() ActionKind
}

type AssignEditor struct {
	Editor Reviewer
}

type AssignConferenceEditor struct {
	Editor Reviewer
}

// Review is an editor or conference editor verdict. Which stage it applies to
// follows from the record's current status.
type Review struct {
	Verdict Verdict
	Comment string
}

type FinalDecision struct {
	Verdict Verdict
	Comment string
}

func (AssignEditor) Kind() ActionKind           { return ActionAssignEditor }
func (AssignConferenceEditor) Kind() ActionKind { return ActionAssignConferenceEditor }
func (Review) Kind() ActionKind                 { return ActionReview }
func (FinalDecision) Kind() ActionKind          { return ActionFinalDecision }

// Reason classifies why a transition was refused.
type Reason string

const (
	ReasonTerminal          Reason = "terminal"
	ReasonInvalidTransition Reason = "invalid_transition"
	ReasonForbidden         Reason = "forbidden"
	ReasonCommentRequired   Reason = "comment_required"
	ReasonReviewerRequired  Reason = "reviewer_required"
	ReasonInvalidDecision   Reason = "invalid_decision"
)

// Rejection is the typed error returned for a refused transition.
type Rejection struct {
	Reason  Reason
	Action  ActionKind
	From    Status
	Message string
}

func (r *Rejection) Error() string {
	if r.From != "" {
		return fmt.Sprintf("%s from %s: %s", r.Action, r.From, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Action, r.Message)
}

// IsReason reports whether err is a Rejection with the given reason.
func IsReason(err error, reason Reason) bool {
	var rej *Rejection
	return errors.As(err, &rej) && rej.Reason == reason
}

func reject(reason Reason, kind ActionKind, from Status, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Action: kind, From: from, Message: fmt.Sprintf(format, args...)}
}

// ValidateLocally checks everything about an action that does not depend on
// the record. Clients run it before issuing any request.
func ValidateLocally(action Action) error {
	switch a := action.(type) {
	case AssignEditor:
		return requireReviewer(a.Kind(), a.Editor)
	case AssignConferenceEditor:
		return requireReviewer(a.Kind(), a.Editor)
	case Review:
		if !a.Verdict.Valid() {
			return reject(ReasonInvalidDecision, a.Kind(), "", "decision must be accept or reject")
		}
		if blank(a.Comment) {
			return reject(ReasonCommentRequired, a.Kind(), "", "a review comment is required")
		}
		return nil
	case FinalDecision:
		if !a.Verdict.Valid() {
			return reject(ReasonInvalidDecision, a.Kind(), "", "decision must be accept or reject")
		}
		if a.Verdict == VerdictReject && blank(a.Comment) {
			return reject(ReasonCommentRequired, a.Kind(), "", "a comment is required to reject")
		}
		return nil
	case nil:
		return reject(ReasonInvalidTransition, "", "", "no action given")
	default:
		return reject(ReasonInvalidTransition, action.Kind(), "", "unsupported action")
	}
}

func requireReviewer(kind ActionKind, r Reviewer) error {
	if blank(r.ID) {
		return reject(ReasonReviewerRequired, kind, "", "an editor must be selected")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
