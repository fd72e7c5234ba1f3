package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func states(entries []TimelineEntry) []StageState {
	out := make([]StageState, len(entries))
	for i, e := range entries {
		out[i] = e.State
	}
	return out
}

func TestTimelineInProgress(t *testing.T) {
	rec := NewRecord(t0)
	rec = mustApply(t, rec, admin, AssignEditor{Editor: Reviewer{ID: "7", Name: "Eve"}})

	entries := Timeline(rec)
	require.Len(t, entries, 6)
	assert.Equal(t, []StageState{StageDone, StageDone, StageWaiting, StageUpcoming, StageUpcoming, StageUpcoming}, states(entries))
	assert.Equal(t, "Eve", entries[1].Actor)
	require.NotNil(t, entries[1].At)
	assert.Equal(t, "Eve", entries[2].Actor)
	assert.Nil(t, entries[2].At)
}

func TestTimelineAccepted(t *testing.T) {
	rec := Record{
		Status:                   StatusAccepted,
		AssignedEditor:           &Reviewer{ID: "7", Name: "Eve"},
		AssignedConferenceEditor: &Reviewer{ID: "9", Name: "Cole"},
		EditorDecision:           DecisionAccepted,
		ConferenceEditorDecision: DecisionAccepted,
		AdminDecision:            DecisionAccepted,
		AdminFinalComment:        "Congratulations",
	}
	entries := Timeline(rec)
	require.Len(t, entries, 6)
	for _, e := range entries {
		assert.Equal(t, StageDone, e.State)
	}
	assert.Equal(t, BadgeAccepted, entries[2].Badge)
	assert.Equal(t, BadgeAccepted, entries[5].Badge)
	assert.Equal(t, "Admin", entries[5].Actor)
	assert.Equal(t, "Congratulations", entries[5].Comment)
}

func TestTimelineRejectedByConferenceEditor(t *testing.T) {
	rejectedAt := t0.Add(72 * time.Hour)
	rec := Record{
		Status:                   StatusRejected,
		AssignedEditor:           &Reviewer{ID: "7", Name: "Eve"},
		AssignedConferenceEditor: &Reviewer{ID: "9", Name: "Cole"},
		EditorDecision:           DecisionAccepted,
		EditorComment:            "ok",
		ConferenceEditorDecision: DecisionRejected,
		ConferenceEditorComment:  "out of scope",
		StatusTimestamps:         map[Status]time.Time{StatusSubmitted: t0, StatusRejected: rejectedAt},
	}

	entries := Timeline(rec)
	require.Len(t, entries, 7)
	assert.Equal(t, []StageState{StageDone, StageDone, StageDone}, states(entries[:3]))

	carrier := entries[3]
	assert.Equal(t, StatusAssignedToConferenceEditor, carrier.Stage)
	assert.True(t, carrier.Rejection)
	assert.Equal(t, "Cole", carrier.Actor)
	assert.Equal(t, "out of scope", carrier.Comment)
	assert.Equal(t, BadgeRejected, carrier.Badge)

	assert.Equal(t, StageNotReached, entries[4].State)
	assert.Equal(t, StageNotReached, entries[5].State)
	assert.Empty(t, entries[5].Badge)

	last := entries[6]
	assert.Equal(t, StatusRejected, last.Stage)
	assert.True(t, last.Rejection)
	assert.Equal(t, "Cole", last.Actor)
	require.NotNil(t, last.At)
	assert.True(t, rejectedAt.Equal(*last.At))
}

func TestTimelineRejectorPriority(t *testing.T) {
	cases := []struct {
		name     string
		rec      Record
		carrier  int
		rejector string
	}{
		{
			name: "editor",
			rec: Record{Status: StatusRejected, AssignedEditor: &Reviewer{ID: "7", Name: "Eve"},
				EditorDecision: DecisionRejected, EditorComment: "weak"},
			carrier: 1, rejector: "Eve",
		},
		{
			name: "admin wins over stage decisions",
			rec: Record{Status: StatusRejected, AssignedEditor: &Reviewer{ID: "7", Name: "Eve"},
				AssignedConferenceEditor: &Reviewer{ID: "9", Name: "Cole"},
				EditorDecision:           DecisionAccepted, ConferenceEditorDecision: DecisionAccepted,
				AdminDecision: DecisionRejected, AdminFinalComment: "duplicate"},
			carrier: 4, rejector: "Admin",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries := Timeline(tc.rec)
			require.Len(t, entries, 7)
			for i := 0; i < tc.carrier; i++ {
				assert.Equal(t, StageDone, entries[i].State)
				assert.False(t, entries[i].Rejection)
			}
			assert.True(t, entries[tc.carrier].Rejection)
			assert.Equal(t, tc.rejector, entries[tc.carrier].Actor)
			for i := tc.carrier + 1; i < 6; i++ {
				assert.Equal(t, StageNotReached, entries[i].State)
			}
			assert.Equal(t, tc.rejector, entries[6].Actor)
		})
	}
}
