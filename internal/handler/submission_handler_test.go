package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/middleware"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/service"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
	"github.com/noah-isme/journal-portal-api/pkg/response"
)

type reviewServiceMock struct {
	view       *dto.SubmissionView
	err        error
	list       []dto.SubmissionView
	total      int
	lastQuery  dto.SubmissionQuery
	lastReview dto.ReviewRequest
	lastAssign dto.AssignEditorRequest
	lastID     string
	calls      []string
}

func (m *reviewServiceMock) record(call, id string) (*dto.SubmissionView, error) {
	m.calls = append(m.calls, call)
	m.lastID = id
	return m.view, m.err
}

func (m *reviewServiceMock) Create(_ context.Context, _ dto.CreateSubmissionRequest, _ *models.JWTClaims) (*dto.SubmissionView, error) {
	return m.record("create", "")
}

func (m *reviewServiceMock) Get(_ context.Context, id string, _ *models.JWTClaims) (*dto.SubmissionView, error) {
	return m.record("get", id)
}

func (m *reviewServiceMock) Timeline(_ context.Context, id string, _ *models.JWTClaims) (*dto.TimelineView, error) {
	m.calls = append(m.calls, "timeline")
	if m.err != nil {
		return nil, m.err
	}
	return &dto.TimelineView{SubmissionID: id}, nil
}

func (m *reviewServiceMock) ListByGroup(_ context.Context, query dto.SubmissionQuery, _ *models.JWTClaims) ([]dto.SubmissionView, int, error) {
	m.calls = append(m.calls, "list")
	m.lastQuery = query
	return m.list, m.total, m.err
}

func (m *reviewServiceMock) Reviewers(_ context.Context, _ dto.ReviewerQuery) ([]models.Reviewer, error) {
	m.calls = append(m.calls, "reviewers")
	return []models.Reviewer{{ID: "7", Name: "Grace", Role: models.RoleEditor}}, m.err
}

func (m *reviewServiceMock) AssignEditor(_ context.Context, id string, req dto.AssignEditorRequest, _ *models.JWTClaims) (*dto.SubmissionView, error) {
	m.lastAssign = req
	return m.record("assign-editor", id)
}

func (m *reviewServiceMock) AssignConferenceEditor(_ context.Context, id string, req dto.AssignEditorRequest, _ *models.JWTClaims) (*dto.SubmissionView, error) {
	m.lastAssign = req
	return m.record("assign-conference-editor", id)
}

func (m *reviewServiceMock) Review(_ context.Context, id string, req dto.ReviewRequest, _ *models.JWTClaims) (*dto.SubmissionView, error) {
	m.lastReview = req
	return m.record("review", id)
}

func (m *reviewServiceMock) FinalDecision(_ context.Context, id string, req dto.ReviewRequest, _ *models.JWTClaims) (*dto.SubmissionView, error) {
	m.lastReview = req
	return m.record("final-decision", id)
}

type exportServiceMock struct {
	file  *service.ExportFile
	err   error
	query dto.ExportQuery
}

func (m *exportServiceMock) Group(_ context.Context, query dto.ExportQuery, _ *models.JWTClaims) (*service.ExportFile, error) {
	m.query = query
	return m.file, m.err
}

var (
	testAdmin  = &models.JWTClaims{UserID: "1", Role: models.RoleAdmin, FullName: "Admin"}
	testEditor = &models.JWTClaims{UserID: "7", Role: models.RoleEditor, FullName: "Grace"}
	testAuthor = &models.JWTClaims{UserID: "42", Role: models.RoleAuthor, FullName: "Ada"}
)

func newJSONContext(method, path string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSubmissionHandlerReviewNormalisesDecision(t *testing.T) {
	svc := &reviewServiceMock{view: &dto.SubmissionView{Submission: models.Submission{ID: "sub-1", Status: workflow.StatusReviewedByEditor}}}
	h := NewSubmissionHandler(svc, nil)

	c, w := newJSONContext(http.MethodPost, "/submissions/sub-1/review", []byte(`{"decision":" Accept ","comment":"solid"}`), testEditor)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.Review(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.VerdictAccept, svc.lastReview.Decision)
	assert.Equal(t, "solid", svc.lastReview.Comment)
	assert.Equal(t, "sub-1", svc.lastID)
}

func TestSubmissionHandlerMapsServiceErrors(t *testing.T) {
	svc := &reviewServiceMock{err: appErrors.Clone(appErrors.ErrCommentRequired, "comment is required to reject")}
	h := NewSubmissionHandler(svc, nil)

	c, w := newJSONContext(http.MethodPost, "/submissions/sub-1/final-decision", []byte(`{"decision":"reject"}`), testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.FinalDecision(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrCommentRequired.Code, env.Error.Code)
}

func TestSubmissionHandlerRejectsMalformedBody(t *testing.T) {
	svc := &reviewServiceMock{}
	h := NewSubmissionHandler(svc, nil)

	c, w := newJSONContext(http.MethodPost, "/submissions/sub-1/assign-editor", []byte(`{"editorId":`), testAdmin)
	h.AssignEditor(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.calls)
}

func TestSubmissionHandlerRequiresClaims(t *testing.T) {
	svc := &reviewServiceMock{}
	h := NewSubmissionHandler(svc, nil)

	c, w := newJSONContext(http.MethodGet, "/submissions/sub-1", nil, nil)
	h.Get(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.calls)
}

func TestSubmissionHandlerListParsesFilters(t *testing.T) {
	svc := &reviewServiceMock{list: []dto.SubmissionView{{Submission: models.Submission{ID: "sub-1"}}}, total: 41}
	h := NewSubmissionHandler(svc, nil, WithPollInterval(5*time.Second))

	c, w := newJSONContext(http.MethodGet, "/groups/g-1/submissions?status=Submitted,AssignedToEditor&page=3&limit=10&q=graph", nil, testAdmin)
	c.Params = gin.Params{{Key: "groupId", Value: "g-1"}}
	h.ListByGroup(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "g-1", svc.lastQuery.GroupID)
	assert.Equal(t, []workflow.Status{workflow.StatusSubmitted, workflow.StatusAssignedToEditor}, svc.lastQuery.Status)
	assert.Equal(t, 3, svc.lastQuery.Page)
	assert.Equal(t, 10, svc.lastQuery.PageSize)
	assert.Equal(t, "graph", svc.lastQuery.Search)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 41, env.Pagination.TotalCount)
	assert.Equal(t, 5.0, env.Meta["poll_interval_seconds"])

	c, w = newJSONContext(http.MethodGet, "/groups/g-1/submissions?status=Pending", nil, testAdmin)
	h.ListByGroup(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerExportSendsAttachment(t *testing.T) {
	exports := &exportServiceMock{file: &service.ExportFile{Filename: "submissions_g-1.csv", ContentType: "text/csv", Body: []byte("ID\n")}}
	h := NewSubmissionHandler(&reviewServiceMock{}, exports)

	c, w := newJSONContext(http.MethodGet, "/groups/g-1/submissions/export?format=csv&status=Accepted", nil, testAdmin)
	c.Params = gin.Params{{Key: "groupId", Value: "g-1"}}
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="submissions_g-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "ID\n", w.Body.String())
	assert.Equal(t, []string{"Accepted"}, exports.query.Status)
	assert.Equal(t, "csv", exports.query.Format)
}
