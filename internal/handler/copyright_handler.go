package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/service"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
	"github.com/noah-isme/journal-portal-api/pkg/response"
)

type copyrightService interface {
	Journals(ctx context.Context) ([]models.Journal, error)
	Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.CopyrightView, error)
	Submit(ctx context.Context, submissionID string, req dto.SubmitCopyrightRequest, actor *models.JWTClaims) (*dto.SubmitCopyrightResponse, error)
	Preview(ctx context.Context, req dto.PreviewRequest, asHTML, interactive bool, actor *models.JWTClaims) (*service.CopyrightPreview, error)
	OpenPDF(ctx context.Context, submissionID string, actor *models.JWTClaims) (*service.FileDownload, error)
}

type templateService interface {
	Active(ctx context.Context) (*dto.TemplateView, error)
	ByVersion(ctx context.Context, version int) (*dto.TemplateView, error)
	Publish(ctx context.Context, req dto.PublishTemplateRequest, actor *models.JWTClaims) (*dto.TemplateView, error)
}

type manuscriptService interface {
	Upload(ctx context.Context, submissionID string, upload service.ManuscriptUpload, actor *models.JWTClaims) (*service.ManuscriptView, error)
	Link(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.SignedLink, error)
	OpenSigned(ctx context.Context, token string) (*service.FileDownload, error)
}

// CopyrightHandler exposes the full paper copyright agreement endpoints.
type CopyrightHandler struct {
	copyright   copyrightService
	templates   templateService
	manuscripts manuscriptService
}

// NewCopyrightHandler constructs handler.
func NewCopyrightHandler(copyright copyrightService, templates templateService, manuscripts manuscriptService) *CopyrightHandler {
	return &CopyrightHandler{copyright: copyright, templates: templates, manuscripts: manuscripts}
}

// Journals godoc
// @Summary List journals accepting papers
// @Tags Copyright
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /journals [get]
func (h *CopyrightHandler) Journals(c *gin.Context) {
	journals, err := h.copyright.Journals(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, journals, nil)
}

// ActiveTemplate godoc
// @Summary Active copyright form template
// @Tags Copyright
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /copyright/template [get]
func (h *CopyrightHandler) ActiveTemplate(c *gin.Context) {
	view, err := h.templates.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// TemplateVersion godoc
// @Summary Copyright form template by version
// @Tags Copyright
// @Produce json
// @Param version path int true "Template version"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /copyright/templates/{version} [get]
func (h *CopyrightHandler) TemplateVersion(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version must be a positive integer"))
		return
	}
	view, err := h.templates.ByVersion(c.Request.Context(), version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// PublishTemplate godoc
// @Summary Publish a new copyright form template version
// @Tags Copyright
// @Accept json
// @Produce json
// @Param payload body dto.PublishTemplateRequest true "Template"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /copyright/templates [post]
func (h *CopyrightHandler) PublishTemplate(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.PublishTemplateRequest
	if !bindJSON(c, &req, "invalid template payload") {
		return
	}
	view, err := h.templates.Publish(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Preview godoc
// @Summary Render the copyright form without saving
// @Tags Copyright
// @Accept json
// @Produce json
// @Produce text/html
// @Param format query string false "json or html"
// @Param interactive query bool false "Render sign actions for empty slots"
// @Param payload body dto.PreviewRequest true "Form data"
// @Success 200 {object} response.Envelope
// @Router /copyright/preview [post]
func (h *CopyrightHandler) Preview(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.PreviewRequest
	if !bindJSON(c, &req, "invalid preview payload") {
		return
	}
	asHTML := strings.EqualFold(c.Query("format"), "html")
	interactive, _ := strconv.ParseBool(c.DefaultQuery("interactive", "false"))
	preview, err := h.copyright.Preview(c.Request.Context(), req, asHTML, interactive, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if asHTML {
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(preview.HTML))
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Get godoc
// @Summary Current copyright agreement of a submission
// @Tags Copyright
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /copyright/{submissionId} [get]
func (h *CopyrightHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.copyright.Get(c.Request.Context(), c.Param("submissionId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Submit godoc
// @Summary Submit the copyright agreement
// @Tags Copyright
// @Accept json
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Param payload body dto.SubmitCopyrightRequest true "Agreement"
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /copyright/{submissionId} [post]
func (h *CopyrightHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.SubmitCopyrightRequest
	if !bindJSON(c, &req, "invalid copyright payload") {
		return
	}
	res, err := h.copyright.Submit(c.Request.Context(), c.Param("submissionId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, res)
}

// PDF godoc
// @Summary Download the signed agreement as PDF
// @Tags Copyright
// @Produce application/pdf
// @Param submissionId path string true "Submission ID"
// @Success 200 {file} file
// @Router /copyright/{submissionId}/pdf [get]
func (h *CopyrightHandler) PDF(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	file, err := h.copyright.OpenPDF(c.Request.Context(), c.Param("submissionId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, file, false)
}

// UploadManuscript godoc
// @Summary Upload the full paper
// @Tags Copyright
// @Accept multipart/form-data
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Param file formData file true "Manuscript"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /copyright/{submissionId}/manuscript [post]
func (h *CopyrightHandler) UploadManuscript(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}
	defer file.Close()

	view, err := h.manuscripts.Upload(c.Request.Context(), c.Param("submissionId"), service.ManuscriptUpload{
		Filename: header.Filename,
		Size:     header.Size,
		MimeType: header.Header.Get("Content-Type"),
		Content:  file,
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// ManuscriptLink godoc
// @Summary Signed download link for the full paper
// @Tags Copyright
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /copyright/{submissionId}/manuscript [get]
func (h *CopyrightHandler) ManuscriptLink(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	link, err := h.manuscripts.Link(c.Request.Context(), c.Param("submissionId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a file through a signed link
// @Tags Files
// @Produce application/octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /files/download [get]
func (h *CopyrightHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.manuscripts.OpenSigned(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, file, false)
}
