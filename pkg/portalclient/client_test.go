package portalclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"code": code, "message": message, "status": status}})
}

func view(id string, status workflow.Status) dto.SubmissionView {
	return dto.SubmissionView{Submission: models.Submission{ID: id, GroupID: "g-1", Status: status}}
}

func TestLocalValidationSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeData(w, http.StatusOK, view("s-1", workflow.StatusSubmitted))
	}))
	defer srv.Close()
	client := New(srv.URL, "token")
	ctx := context.Background()

	_, err := client.SubmitReview(ctx, "s-1", workflow.VerdictReject, "  ")
	assert.True(t, workflow.IsReason(err, workflow.ReasonCommentRequired))

	_, err = client.SubmitReview(ctx, "s-1", workflow.Verdict("maybe"), "fine")
	assert.True(t, workflow.IsReason(err, workflow.ReasonInvalidDecision))

	_, err = client.SubmitFinalDecision(ctx, "s-1", workflow.VerdictReject, "")
	assert.True(t, workflow.IsReason(err, workflow.ReasonCommentRequired))

	_, err = client.AssignEditor(ctx, "s-1", "")
	assert.True(t, workflow.IsReason(err, workflow.ReasonReviewerRequired))

	_, err = client.SubmitCopyright(ctx, "s-1", dto.SubmitCopyrightRequest{JournalID: "j-1"})
	assert.True(t, errors.Is(err, appErrors.ErrCopyrightIncomplete))

	assert.Zero(t, hits.Load())
}

func TestMutationRefreshesEverySubscriber(t *testing.T) {
	var body dto.ReviewRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/submissions/s-1/review", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(w, http.StatusOK, view("s-1", workflow.StatusReviewedByEditor))
	}))
	defer srv.Close()
	client := New(srv.URL+"/api/v1/", "token")

	var list, detail []workflow.Status
	client.Subscribe("s-1", func(v dto.SubmissionView) { list = append(list, v.Status) })
	unsubscribe := client.Subscribe("s-1", func(v dto.SubmissionView) { detail = append(detail, v.Status) })
	client.Subscribe("s-2", func(dto.SubmissionView) { t.Fatal("unrelated subscriber notified") })

	got, err := client.SubmitReview(context.Background(), "s-1", workflow.VerdictAccept, "looks good")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusReviewedByEditor, got.Status)
	assert.Equal(t, workflow.VerdictAccept, body.Decision)
	assert.Equal(t, []workflow.Status{workflow.StatusReviewedByEditor}, list)
	assert.Equal(t, []workflow.Status{workflow.StatusReviewedByEditor}, detail)

	cached, ok := client.Cached("s-1")
	require.True(t, ok)
	assert.Equal(t, workflow.StatusReviewedByEditor, cached.Status)

	unsubscribe()
	_, err = client.SubmitReview(context.Background(), "s-1", workflow.VerdictAccept, "again")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Len(t, detail, 1)
}

func TestServerRefusalLeavesCacheUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeData(w, http.StatusOK, view("s-1", workflow.StatusAccepted))
			return
		}
		writeError(w, http.StatusConflict, "TERMINAL_STATE", "submission already has a final decision")
	}))
	defer srv.Close()
	client := New(srv.URL, "")
	ctx := context.Background()

	_, err := client.GetSubmission(ctx, "s-1")
	require.NoError(t, err)

	_, err = client.SubmitFinalDecision(ctx, "s-1", workflow.VerdictReject, "changed my mind")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "TERMINAL_STATE", apiErr.Code)
	assert.Equal(t, "submission already has a final decision", apiErr.Message)

	cached, _ := client.Cached("s-1")
	assert.Equal(t, workflow.StatusAccepted, cached.Status)
}

func TestAPIErrorFallsBackToGenericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").GetActiveFormTemplate(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "request failed with status 502", apiErr.Message)
}

func TestDoubleSubmitIsRefused(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		writeData(w, http.StatusOK, view("s-1", workflow.StatusAssignedToEditor))
	}))
	defer srv.Close()
	client := New(srv.URL, "")

	done := make(chan error, 1)
	go func() {
		_, err := client.AssignEditor(context.Background(), "s-1", "7")
		done <- err
	}()
	<-entered

	_, err := client.AssignEditor(context.Background(), "s-1", "7")
	assert.ErrorIs(t, err, ErrMutationInFlight)

	close(release)
	require.NoError(t, <-done)

	_, err = client.AssignEditor(context.Background(), "s-1", "8")
	assert.NoError(t, err)
}

func TestGroupListRefreshesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/groups/g-1/submissions", r.URL.Path)
		writeData(w, http.StatusOK, []dto.SubmissionView{view("s-1", workflow.StatusSubmitted), view("s-2", workflow.StatusRejected)})
	}))
	defer srv.Close()
	client := New(srv.URL, "")

	var seen []string
	client.Subscribe("s-2", func(v dto.SubmissionView) { seen = append(seen, string(v.Status)) })

	items, err := client.GetSubmissionsByGroup(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, []string{"Rejected"}, seen)
	_, ok := client.Cached("s-1")
	assert.True(t, ok)
}

func TestGroupListFollowsPagination(t *testing.T) {
	pages := map[string][]dto.SubmissionView{
		"1": {view("s-1", workflow.StatusSubmitted), view("s-2", workflow.StatusSubmitted)},
		"2": {view("s-3", workflow.StatusAccepted)},
	}
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		requested = append(requested, page)
		assert.Equal(t, strconv.Itoa(groupPageSize), r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data":       pages[page],
			"pagination": map[string]int{"page": len(requested), "page_size": 2, "total_count": 3},
		})
	}))
	defer srv.Close()
	client := New(srv.URL, "")

	items, err := client.GetSubmissionsByGroup(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, requested)
	require.Len(t, items, 3)
	assert.Equal(t, "s-3", items[2].ID)
	_, ok := client.Cached("s-3")
	assert.True(t, ok)
}

func TestZeroValueClientIsUsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, view("s-1", workflow.StatusReviewedByEditor))
	}))
	defer srv.Close()
	client := &Client{BaseURL: srv.URL}

	_, ok := client.Cached("s-1")
	assert.False(t, ok)

	var seen []workflow.Status
	client.Subscribe("s-1", func(v dto.SubmissionView) { seen = append(seen, v.Status) })

	got, err := client.SubmitReview(context.Background(), "s-1", workflow.VerdictAccept, "fine")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusReviewedByEditor, got.Status)
	assert.Equal(t, []workflow.Status{workflow.StatusReviewedByEditor}, seen)

	cached, ok := client.Cached("s-1")
	require.True(t, ok)
	assert.Equal(t, workflow.StatusReviewedByEditor, cached.Status)
}

func TestWatchGroupStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 2 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		writeData(w, http.StatusOK, []dto.SubmissionView{view("s-1", workflow.StatusSubmitted)})
	}))
	defer srv.Close()
	client := New(srv.URL, "")
	client.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var deliveries atomic.Int32
	finished := make(chan struct{})
	go func() {
		client.WatchGroup(ctx, "g-1", func([]dto.SubmissionView) {
			if deliveries.Add(1) == 2 {
				cancel()
			}
		})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("watch did not stop after cancel")
	}
	assert.Equal(t, int32(2), deliveries.Load())
	assert.GreaterOrEqual(t, hits.Load(), int32(3))
}
