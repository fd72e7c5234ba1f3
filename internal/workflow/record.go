package workflow

import "time"

// Role names as carried in access tokens.
const (
	RoleSuperAdmin       = "SUPERADMIN"
	RoleAdmin            = "ADMIN"
	RoleEditor           = "EDITOR"
	RoleConferenceEditor = "CONFERENCE_EDITOR"
	RoleAuthor           = "AUTHOR"
)

// Actor is the identity performing an action. It is always passed explicitly.
type Actor struct {
	ID   string
	Name string
	Role string
}

// IsAdmin reports whether the actor may assign reviewers and make final decisions.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// Reviewer identifies an editor or conference editor.
type Reviewer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is the workflow-relevant part of a submission.
type Record struct {
	Status                   Status               `json:"status"`
	AssignedEditor           *Reviewer            `json:"assigned_editor,omitempty"`
	AssignedConferenceEditor *Reviewer            `json:"assigned_conference_editor,omitempty"`
	EditorComment            string               `json:"editor_comment,omitempty"`
	ConferenceEditorComment  string               `json:"conference_editor_comment,omitempty"`
	AdminFinalComment        string               `json:"admin_final_comment,omitempty"`
	EditorDecision           Decision             `json:"editor_decision,omitempty"`
	ConferenceEditorDecision Decision             `json:"conference_editor_decision,omitempty"`
	AdminDecision            Decision             `json:"admin_decision,omitempty"`
	StatusTimestamps         map[Status]time.Time `json:"status_timestamps,omitempty"`
}

// NewRecord returns a freshly submitted record.
func NewRecord(now time.Time) Record {
	return Record{
		Status:           StatusSubmitted,
		StatusTimestamps: map[Status]time.Time{StatusSubmitted: now},
	}
}

// Clone deep-copies the record so transitions never alias the caller's data.
func (r Record) Clone() Record {
	out := r
	if r.AssignedEditor != nil {
		e := *r.AssignedEditor
		out.AssignedEditor = &e
	}
	if r.AssignedConferenceEditor != nil {
		e := *r.AssignedConferenceEditor
		out.AssignedConferenceEditor = &e
	}
	out.StatusTimestamps = make(map[Status]time.Time, len(r.StatusTimestamps)+1)
	for k, v := range r.StatusTimestamps {
		out.StatusTimestamps[k] = v
	}
	return out
}

// EnteredAt returns when the record entered s, if known.
func (r Record) EnteredAt(s Status) (time.Time, bool) {
	t, ok := r.StatusTimestamps[s]
	return t, ok && !t.IsZero()
}
