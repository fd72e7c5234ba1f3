package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/middleware"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/schema"
	"github.com/noah-isme/journal-portal-api/internal/service"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

type copyrightServiceMock struct {
	err         error
	submitted   dto.SubmitCopyrightRequest
	asHTML      bool
	interactive bool
	pdf         string
}

func (m *copyrightServiceMock) Journals(context.Context) ([]models.Journal, error) {
	return []models.Journal{{ID: "j-1", Title: "Journal of Graphs", Active: true}}, m.err
}

func (m *copyrightServiceMock) Get(_ context.Context, id string, _ *models.JWTClaims) (*dto.CopyrightView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dto.CopyrightView{Submission: &models.CopyrightSubmission{SubmissionID: id}, ActiveVersion: 2}, nil
}

func (m *copyrightServiceMock) Submit(_ context.Context, _ string, req dto.SubmitCopyrightRequest, _ *models.JWTClaims) (*dto.SubmitCopyrightResponse, error) {
	m.submitted = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.SubmitCopyrightResponse{ID: "cr-1", Status: models.CopyrightStatusSubmitted, TemplateVersion: 2}, nil
}

func (m *copyrightServiceMock) Preview(_ context.Context, _ dto.PreviewRequest, asHTML, interactive bool, _ *models.JWTClaims) (*service.CopyrightPreview, error) {
	m.asHTML, m.interactive = asHTML, interactive
	preview := &service.CopyrightPreview{Document: &schema.Document{}}
	if asHTML {
		preview.HTML = "<article>preview</article>"
	}
	return preview, m.err
}

func (m *copyrightServiceMock) OpenPDF(context.Context, string, *models.JWTClaims) (*service.FileDownload, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.FileDownload{Content: io.NopCloser(strings.NewReader(m.pdf)), Filename: "copyright-sub-1-v2.pdf", MimeType: "application/pdf"}, nil
}

type templateServiceMock struct {
	version int
}

func (m *templateServiceMock) Active(context.Context) (*dto.TemplateView, error) {
	return &dto.TemplateView{Version: 2, Name: "Copyright"}, nil
}

func (m *templateServiceMock) ByVersion(_ context.Context, version int) (*dto.TemplateView, error) {
	m.version = version
	return &dto.TemplateView{Version: version}, nil
}

func (m *templateServiceMock) Publish(_ context.Context, req dto.PublishTemplateRequest, _ *models.JWTClaims) (*dto.TemplateView, error) {
	return &dto.TemplateView{Version: 3, Name: req.Name}, nil
}

type manuscriptServiceMock struct {
	upload service.ManuscriptUpload
	body   []byte
	token  string
	err    error
}

func (m *manuscriptServiceMock) Upload(_ context.Context, _ string, upload service.ManuscriptUpload, _ *models.JWTClaims) (*service.ManuscriptView, error) {
	m.upload = upload
	body, _ := io.ReadAll(upload.Content)
	m.body = body
	if m.err != nil {
		return nil, m.err
	}
	return &service.ManuscriptView{CopyrightID: "cr-1", Filename: upload.Filename, SizeBytes: upload.Size}, nil
}

func (m *manuscriptServiceMock) Link(context.Context, string, *models.JWTClaims) (*dto.SignedLink, error) {
	return &dto.SignedLink{URL: "/api/v1/files/download?token=abc"}, m.err
}

func (m *manuscriptServiceMock) OpenSigned(_ context.Context, token string) (*service.FileDownload, error) {
	m.token = token
	if m.err != nil {
		return nil, m.err
	}
	return &service.FileDownload{Content: io.NopCloser(strings.NewReader("%PDF-1.4")), Filename: "paper.pdf", MimeType: "application/pdf"}, nil
}

func TestCopyrightHandlerSubmitAccepted(t *testing.T) {
	svc := &copyrightServiceMock{}
	h := NewCopyrightHandler(svc, &templateServiceMock{}, &manuscriptServiceMock{})

	body := `{"journalId":"j-1","manuscriptTitle":"Colorings","authors":[{"name":"Ada","email":"ada@example.com"}],"signatures":{"0":{"name":"Ada","signatureImage":"data:image/png;base64,AA=="}}}`
	c, w := newJSONContext(http.MethodPost, "/copyright/sub-1", []byte(body), testAuthor)
	c.Params = gin.Params{{Key: "submissionId", Value: "sub-1"}}
	h.Submit(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "j-1", svc.submitted.JournalID)
	require.Len(t, svc.submitted.Authors, 1)
	assert.Contains(t, w.Body.String(), `"template_version":2`)
}

func TestCopyrightHandlerSubmitIncomplete(t *testing.T) {
	svc := &copyrightServiceMock{err: appErrors.Clone(appErrors.ErrCopyrightIncomplete, "at least one author must sign")}
	h := NewCopyrightHandler(svc, &templateServiceMock{}, &manuscriptServiceMock{})

	c, w := newJSONContext(http.MethodPost, "/copyright/sub-1", []byte(`{}`), testAuthor)
	h.Submit(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "COPYRIGHT_INCOMPLETE")
}

func TestCopyrightHandlerPreviewHTML(t *testing.T) {
	svc := &copyrightServiceMock{}
	h := NewCopyrightHandler(svc, &templateServiceMock{}, &manuscriptServiceMock{})

	c, w := newJSONContext(http.MethodPost, "/copyright/preview?format=html&interactive=true", []byte(`{}`), testAuthor)
	h.Preview(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.asHTML)
	assert.True(t, svc.interactive)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "<article>preview</article>", w.Body.String())

	c, w = newJSONContext(http.MethodPost, "/copyright/preview", []byte(`{}`), testAuthor)
	h.Preview(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, svc.asHTML)
	assert.False(t, svc.interactive)
}

func TestCopyrightHandlerTemplateVersion(t *testing.T) {
	templates := &templateServiceMock{}
	h := NewCopyrightHandler(&copyrightServiceMock{}, templates, &manuscriptServiceMock{})

	c, w := newJSONContext(http.MethodGet, "/copyright/templates/4", nil, testAuthor)
	c.Params = gin.Params{{Key: "version", Value: "4"}}
	h.TemplateVersion(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, templates.version)

	c, w = newJSONContext(http.MethodGet, "/copyright/templates/latest", nil, testAuthor)
	c.Params = gin.Params{{Key: "version", Value: "latest"}}
	h.TemplateVersion(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCopyrightHandlerPDFStreams(t *testing.T) {
	h := NewCopyrightHandler(&copyrightServiceMock{pdf: "%PDF-1.3 body"}, &templateServiceMock{}, &manuscriptServiceMock{})

	c, w := newJSONContext(http.MethodGet, "/copyright/sub-1/pdf", nil, testAdmin)
	h.PDF(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="copyright-sub-1-v2.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3 body", w.Body.String())
}

func TestCopyrightHandlerUploadManuscript(t *testing.T) {
	manuscripts := &manuscriptServiceMock{}
	h := NewCopyrightHandler(&copyrightServiceMock{}, &templateServiceMock{}, manuscripts)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "paper.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 manuscript"))
	require.NoError(t, writer.Close())

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/copyright/sub-1/manuscript", &buf)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.Params = gin.Params{{Key: "submissionId", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, testAuthor)

	h.UploadManuscript(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "paper.pdf", manuscripts.upload.Filename)
	assert.Equal(t, int64(len("%PDF-1.4 manuscript")), manuscripts.upload.Size)
	assert.Equal(t, "%PDF-1.4 manuscript", string(manuscripts.body))
}

func TestCopyrightHandlerUploadRequiresFile(t *testing.T) {
	manuscripts := &manuscriptServiceMock{}
	h := NewCopyrightHandler(&copyrightServiceMock{}, &templateServiceMock{}, manuscripts)

	c, w := newJSONContext(http.MethodPost, "/copyright/sub-1/manuscript", []byte(`{}`), testAuthor)
	h.UploadManuscript(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, manuscripts.upload.Content)
}

func TestCopyrightHandlerDownload(t *testing.T) {
	manuscripts := &manuscriptServiceMock{}
	h := NewCopyrightHandler(&copyrightServiceMock{}, &templateServiceMock{}, manuscripts)

	c, w := newJSONContext(http.MethodGet, "/files/download", nil, nil)
	h.Download(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newJSONContext(http.MethodGet, "/files/download?token=tok", nil, nil)
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", manuscripts.token)
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	manuscripts.err = appErrors.Clone(appErrors.ErrForbidden, "link expired")
	c, w = newJSONContext(http.MethodGet, "/files/download?token=old", nil, nil)
	h.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
