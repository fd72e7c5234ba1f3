package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/middleware"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/service"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
	"github.com/noah-isme/journal-portal-api/pkg/response"
)

type reviewService interface {
	Create(ctx context.Context, req dto.CreateSubmissionRequest, actor *models.JWTClaims) (*dto.SubmissionView, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.SubmissionView, error)
	Timeline(ctx context.Context, id string, actor *models.JWTClaims) (*dto.TimelineView, error)
	ListByGroup(ctx context.Context, query dto.SubmissionQuery, actor *models.JWTClaims) ([]dto.SubmissionView, int, error)
	Reviewers(ctx context.Context, query dto.ReviewerQuery) ([]models.Reviewer, error)
	AssignEditor(ctx context.Context, id string, req dto.AssignEditorRequest, actor *models.JWTClaims) (*dto.SubmissionView, error)
	AssignConferenceEditor(ctx context.Context, id string, req dto.AssignEditorRequest, actor *models.JWTClaims) (*dto.SubmissionView, error)
	Review(ctx context.Context, id string, req dto.ReviewRequest, actor *models.JWTClaims) (*dto.SubmissionView, error)
	FinalDecision(ctx context.Context, id string, req dto.ReviewRequest, actor *models.JWTClaims) (*dto.SubmissionView, error)
}

type exportService interface {
	Group(ctx context.Context, query dto.ExportQuery, actor *models.JWTClaims) (*service.ExportFile, error)
}

// SubmissionHandler exposes the abstract review workflow.
type SubmissionHandler struct {
	reviews      reviewService
	exports      exportService
	pollInterval time.Duration
}

// SubmissionHandlerOption customises a SubmissionHandler.
type SubmissionHandlerOption func(*SubmissionHandler)

// WithPollInterval advertises the interval clients should poll group lists at.
func WithPollInterval(d time.Duration) SubmissionHandlerOption {
	return func(h *SubmissionHandler) {
		h.pollInterval = d
	}
}

// NewSubmissionHandler constructs handler.
func NewSubmissionHandler(reviews reviewService, exports exportService, opts ...SubmissionHandlerOption) *SubmissionHandler {
	h := &SubmissionHandler{reviews: reviews, exports: exports}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Create godoc
// @Summary Submit an abstract
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubmissionRequest true "Abstract"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateSubmissionRequest
	if !bindJSON(c, &req, "invalid submission payload") {
		return
	}
	view, err := h.reviews.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get a submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.reviews.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Timeline godoc
// @Summary Review timeline of a submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/timeline [get]
func (h *SubmissionHandler) Timeline(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.reviews.Timeline(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ListByGroup godoc
// @Summary List submissions of a group
// @Tags Submissions
// @Produce json
// @Param groupId path string true "Group ID"
// @Param status query string false "Comma separated statuses"
// @Param q query string false "Search title or author"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /groups/{groupId}/submissions [get]
func (h *SubmissionHandler) ListByGroup(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	statuses, err := statusFilter(c.QueryArray("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.SubmissionQuery{
		GroupID:  c.Param("groupId"),
		Status:   statuses,
		Search:   c.Query("q"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 20),
	}
	items, total, err := h.reviews.ListByGroup(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &response.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	meta := middleware.ExtractMeta(c)
	if h.pollInterval > 0 {
		if meta == nil {
			meta = map[string]interface{}{}
		}
		meta["poll_interval_seconds"] = h.pollInterval.Seconds()
	}
	response.JSON(c, http.StatusOK, items, pagination, meta)
}

// Export godoc
// @Summary Export the submissions of a group
// @Tags Submissions
// @Produce text/csv
// @Produce application/pdf
// @Param groupId path string true "Group ID"
// @Param format query string false "csv or pdf"
// @Param status query string false "Comma separated statuses"
// @Success 200 {file} file
// @Router /groups/{groupId}/submissions/export [get]
func (h *SubmissionHandler) Export(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	file, err := h.exports.Group(c.Request.Context(), dto.ExportQuery{
		GroupID: c.Param("groupId"),
		Format:  c.DefaultQuery("format", service.ExportFormatCSV),
		Status:  c.QueryArray("status"),
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Reviewers godoc
// @Summary List assignable reviewers
// @Tags Submissions
// @Produce json
// @Param role query string false "EDITOR or CONFERENCE_EDITOR"
// @Param q query string false "Search"
// @Success 200 {object} response.Envelope
// @Router /reviewers [get]
func (h *SubmissionHandler) Reviewers(c *gin.Context) {
	reviewers, err := h.reviews.Reviewers(c.Request.Context(), dto.ReviewerQuery{Role: c.Query("role"), Search: c.Query("q")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviewers, nil)
}

// AssignEditor godoc
// @Summary Assign the editor
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.AssignEditorRequest true "Editor"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/assign-editor [post]
func (h *SubmissionHandler) AssignEditor(c *gin.Context) {
	h.assign(c, h.reviews.AssignEditor)
}

// AssignConferenceEditor godoc
// @Summary Assign the conference editor
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.AssignEditorRequest true "Conference editor"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/assign-conference-editor [post]
func (h *SubmissionHandler) AssignConferenceEditor(c *gin.Context) {
	h.assign(c, h.reviews.AssignConferenceEditor)
}

// Review godoc
// @Summary Submit an editor or conference editor review
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/review [post]
func (h *SubmissionHandler) Review(c *gin.Context) {
	h.decide(c, h.reviews.Review)
}

// FinalDecision godoc
// @Summary Record the admin's final decision
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/final-decision [post]
func (h *SubmissionHandler) FinalDecision(c *gin.Context) {
	h.decide(c, h.reviews.FinalDecision)
}

type assignFunc func(ctx context.Context, id string, req dto.AssignEditorRequest, actor *models.JWTClaims) (*dto.SubmissionView, error)

type decideFunc func(ctx context.Context, id string, req dto.ReviewRequest, actor *models.JWTClaims) (*dto.SubmissionView, error)

func (h *SubmissionHandler) assign(c *gin.Context, fn assignFunc) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.AssignEditorRequest
	if !bindJSON(c, &req, "invalid assignment payload") {
		return
	}
	view, err := fn(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

func (h *SubmissionHandler) decide(c *gin.Context, fn decideFunc) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindJSON(c, &req, "invalid decision payload") {
		return
	}
	req.Decision = workflow.Verdict(strings.ToLower(strings.TrimSpace(string(req.Decision))))
	view, err := fn(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

func statusFilter(raw []string) ([]workflow.Status, error) {
	var out []workflow.Status
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			st := workflow.Status(part)
			if !st.Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status "+part)
			}
			out = append(out, st)
		}
	}
	return out, nil
}
