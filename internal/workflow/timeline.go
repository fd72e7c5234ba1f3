package workflow

import "time"

// StageState is how a timeline entry should be presented.
type StageState string

const (
	StageDone       StageState = "done"
	StageWaiting    StageState = "waiting-for-action"
	StageUpcoming   StageState = "upcoming"
	StageNotReached StageState = "not-reached"
)

// Badge values shown next to a stage with a recorded decision.
const (
	BadgeAccepted = "ACCEPTED"
	BadgeRejected = "REJECTED"
)

// TimelineEntry is one row of the status timeline.
type TimelineEntry struct {
	Stage     Status     `json:"stage"`
	Label     string     `json:"label"`
	State     StageState `json:"state"`
	Actor     string     `json:"actor,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	Badge     string     `json:"badge,omitempty"`
	Rejection bool       `json:"rejection,omitempty"`
}

var stageLabels = map[Status]string{
	StatusSubmitted:                  "Submitted",
	StatusAssignedToEditor:           "Assigned to Editor",
	StatusReviewedByEditor:           "Reviewed by Editor",
	StatusAssignedToConferenceEditor: "Assigned to Conference Editor",
	StatusReviewedByConferenceEditor: "Reviewed by Conference Editor",
	StatusAccepted:                   "Final Decision",
	StatusRejected:                   "Rejected",
}

// Label returns the display name of a status.
func Label(s Status) string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// Timeline projects the record onto the fixed pipeline stages. Rejected
// records show every stage before the rejection point as done, the stage the
// record was in when rejected as the carrier of the rejection, later stages as
// not reached, and a final Rejected entry.
func Timeline(rec Record) []TimelineEntry {
	entries := make([]TimelineEntry, len(pipeline))
	for i, s := range pipeline {
		entries[i] = stageEntry(rec, s)
	}

	if rec.Status == StatusRejected {
		return rejectedTimeline(rec, entries)
	}

	current := rec.Status.Rank()
	for i := range entries {
		switch {
		case i <= current:
			entries[i].State = StageDone
		case i == current+1:
			entries[i].State = StageWaiting
			entries[i].Actor = ExpectedActor(rec)
			entries[i].At = nil
		default:
			entries[i].State = StageUpcoming
			entries[i].At = nil
		}
	}
	return entries
}

// rejectionPoint resolves who rejected and at which stage, checking the admin,
// then the conference editor, then the editor.
func rejectionPoint(rec Record) (index int, rejector, comment string) {
	switch {
	case rec.AdminDecision == DecisionRejected:
		return StatusReviewedByConferenceEditor.Rank(), "Admin", rec.AdminFinalComment
	case rec.ConferenceEditorDecision == DecisionRejected:
		return StatusAssignedToConferenceEditor.Rank(), reviewerName(rec.AssignedConferenceEditor), rec.ConferenceEditorComment
	case rec.EditorDecision == DecisionRejected:
		return StatusAssignedToEditor.Rank(), reviewerName(rec.AssignedEditor), rec.EditorComment
	}
	return 0, "", ""
}

func rejectedTimeline(rec Record, entries []TimelineEntry) []TimelineEntry {
	idx, rejector, comment := rejectionPoint(rec)
	rejectedAt := timePtr(rec.EnteredAt(StatusRejected))

	for i := range entries {
		switch {
		case i < idx:
			entries[i].State = StageDone
		case i == idx:
			entries[i].State = StageDone
			entries[i].Actor = rejector
			entries[i].Comment = comment
			entries[i].Badge = BadgeRejected
			entries[i].Rejection = true
			if rejectedAt != nil {
				entries[i].At = rejectedAt
			}
		default:
			entries[i] = TimelineEntry{Stage: entries[i].Stage, Label: entries[i].Label, State: StageNotReached}
		}
	}

	return append(entries, TimelineEntry{
		Stage:     StatusRejected,
		Label:     Label(StatusRejected),
		State:     StageDone,
		Actor:     rejector,
		At:        rejectedAt,
		Comment:   comment,
		Badge:     BadgeRejected,
		Rejection: true,
	})
}

func stageEntry(rec Record, s Status) TimelineEntry {
	e := TimelineEntry{Stage: s, Label: Label(s), At: timePtr(rec.EnteredAt(s))}
	switch s {
	case StatusAssignedToEditor:
		e.Actor = reviewerName(rec.AssignedEditor)
	case StatusReviewedByEditor:
		e.Actor = reviewerName(rec.AssignedEditor)
		e.Comment = rec.EditorComment
		e.Badge = badge(rec.EditorDecision)
	case StatusAssignedToConferenceEditor:
		e.Actor = reviewerName(rec.AssignedConferenceEditor)
	case StatusReviewedByConferenceEditor:
		e.Actor = reviewerName(rec.AssignedConferenceEditor)
		e.Comment = rec.ConferenceEditorComment
		e.Badge = badge(rec.ConferenceEditorDecision)
	case StatusAccepted:
		if rec.AdminDecision != "" {
			e.Actor = "Admin"
		}
		e.Comment = rec.AdminFinalComment
		e.Badge = badge(rec.AdminDecision)
	}
	return e
}

func badge(d Decision) string {
	switch d {
	case DecisionAccepted:
		return BadgeAccepted
	case DecisionRejected:
		return BadgeRejected
	}
	return ""
}

func timePtr(t time.Time, ok bool) *time.Time {
	if !ok {
		return nil
	}
	return &t
}
