package workflow

import (
	"strings"
	"time"
)

// sources lists the statuses each action may start from.
var sources = map[ActionKind][]Status{
	ActionAssignEditor:           {StatusSubmitted},
	ActionAssignConferenceEditor: {StatusReviewedByEditor},
	ActionReview:                 {StatusAssignedToEditor, StatusAssignedToConferenceEditor},
	ActionFinalDecision:          {StatusReviewedByConferenceEditor},
}

var actionOrder = []ActionKind{
	ActionAssignEditor,
	ActionAssignConferenceEditor,
	ActionReview,
	ActionFinalDecision,
}

// Apply runs one transition. It never mutates rec; on success the returned
// record carries the new status stamped with now. On failure the error is a
// *Rejection and the returned record is the unchanged input.
func Apply(rec Record, actor Actor, action Action, now time.Time) (Record, error) {
	if action == nil {
		return rec, reject(ReasonInvalidTransition, "", rec.Status, "no action given")
	}
	kind := action.Kind()
	if rec.Status.IsTerminal() {
		return rec, reject(ReasonTerminal, kind, rec.Status, "submission already has a final decision")
	}
	if err := ValidateLocally(action); err != nil {
		if rej, ok := err.(*Rejection); ok {
			rej.From = rec.Status
		}
		return rec, err
	}
	if !startsFrom(kind, rec.Status) {
		return rec, reject(ReasonInvalidTransition, kind, rec.Status, "action not allowed in status %s", rec.Status)
	}
	if !authorized(rec, actor, kind) {
		return rec, reject(ReasonForbidden, kind, rec.Status, "actor may not perform this action")
	}

	next := rec.Clone()
	switch a := action.(type) {
	case AssignEditor:
		editor := a.Editor
		next.AssignedEditor = &editor
		next.Status = StatusAssignedToEditor
	case AssignConferenceEditor:
		editor := a.Editor
		next.AssignedConferenceEditor = &editor
		next.Status = StatusAssignedToConferenceEditor
	case Review:
		comment := strings.TrimSpace(a.Comment)
		if rec.Status == StatusAssignedToEditor {
			next.EditorComment = comment
			next.EditorDecision = a.Verdict.Decision()
			next.Status = outcome(a.Verdict, StatusReviewedByEditor)
		} else {
			next.ConferenceEditorComment = comment
			next.ConferenceEditorDecision = a.Verdict.Decision()
			next.Status = outcome(a.Verdict, StatusReviewedByConferenceEditor)
		}
	case FinalDecision:
		next.AdminFinalComment = strings.TrimSpace(a.Comment)
		next.AdminDecision = a.Verdict.Decision()
		next.Status = outcome(a.Verdict, StatusAccepted)
	}
	next.StatusTimestamps[next.Status] = now
	return next, nil
}

// PermittedActions lists what actor may do with rec right now.
func PermittedActions(rec Record, actor Actor) []ActionKind {
	if rec.Status.IsTerminal() {
		return nil
	}
	var out []ActionKind
	for _, kind := range actionOrder {
		if startsFrom(kind, rec.Status) && authorized(rec, actor, kind) {
			out = append(out, kind)
		}
	}
	return out
}

// ExpectedActor names who must act next, or "" when nobody can.
func ExpectedActor(rec Record) string {
	switch rec.Status {
	case StatusSubmitted, StatusReviewedByEditor, StatusReviewedByConferenceEditor:
		return "Admin"
	case StatusAssignedToEditor:
		return reviewerName(rec.AssignedEditor)
	case StatusAssignedToConferenceEditor:
		return reviewerName(rec.AssignedConferenceEditor)
	}
	return ""
}

func startsFrom(kind ActionKind, s Status) bool {
	for _, from := range sources[kind] {
		if from == s {
			return true
		}
	}
	return false
}

func authorized(rec Record, actor Actor, kind ActionKind) bool {
	switch kind {
	case ActionAssignEditor, ActionAssignConferenceEditor, ActionFinalDecision:
		return actor.IsAdmin()
	case ActionReview:
		var assigned *Reviewer
		switch rec.Status {
		case StatusAssignedToEditor:
			assigned = rec.AssignedEditor
		case StatusAssignedToConferenceEditor:
			assigned = rec.AssignedConferenceEditor
		}
		return assigned != nil && actor.ID != "" && assigned.ID == actor.ID
	}
	return false
}

func outcome(v Verdict, onAccept Status) Status {
	if v == VerdictReject {
		return StatusRejected
	}
	return onAccept
}

func reviewerName(r *Reviewer) string {
	if r == nil {
		return ""
	}
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
