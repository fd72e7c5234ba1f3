package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/repository"
	"github.com/noah-isme/journal-portal-api/internal/schema"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
	"github.com/noah-isme/journal-portal-api/pkg/jobs"
	"github.com/noah-isme/journal-portal-api/pkg/storage"
)

// JobTypeCopyrightPDF renders the signed agreement of a copyright record.
const JobTypeCopyrightPDF = "copyright-pdf"

type copyrightStore interface {
	GetCurrent(ctx context.Context, submissionID string) (*models.CopyrightSubmission, error)
	GetByID(ctx context.Context, id string) (*models.CopyrightSubmission, error)
	Save(ctx context.Context, exec sqlx.ExtContext, cs *models.CopyrightSubmission) error
	SupersedeOlder(ctx context.Context, exec sqlx.ExtContext, submissionID string, version int) (int64, error)
	SetManuscript(ctx context.Context, params repository.ManuscriptParams) error
	SetPDFKey(ctx context.Context, id, key string) error
}

type journalStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.Journal, error)
	GetByID(ctx context.Context, id string) (*models.Journal, error)
}

type submissionReader interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// FileDownload is an opened stored file ready to stream.
type FileDownload struct {
	Content  io.ReadCloser
	Filename string
	MimeType string
}

// CopyrightPreview is a rendered form. HTML is set only when requested.
type CopyrightPreview struct {
	Document *schema.Document `json:"document"`
	HTML     string           `json:"html,omitempty"`
}

// CopyrightServiceConfig holds link settings.
type CopyrightServiceConfig struct {
	APIPrefix string
}

// CopyrightService owns the full paper copyright agreement of accepted abstracts.
type CopyrightService struct {
	records     copyrightStore
	templates   templateStore
	journals    journalStore
	submissions submissionReader
	files       storage.FileStore
	signer      *storage.SignedURLSigner
	queue       jobEnqueuer
	audit       auditLogger
	tx          TxRunner
	metrics     *MetricsService
	cfg         CopyrightServiceConfig
	logger      *zap.Logger
	now         func() time.Time
}

// CopyrightServiceOption configures the service.
type CopyrightServiceOption func(*CopyrightService)

// WithRenderQueue renders agreements in the background after submit.
func WithRenderQueue(q jobEnqueuer) CopyrightServiceOption {
	return func(s *CopyrightService) {
		s.queue = q
	}
}

// WithCopyrightSigner attaches signed download links to views.
func WithCopyrightSigner(signer *storage.SignedURLSigner) CopyrightServiceOption {
	return func(s *CopyrightService) {
		s.signer = signer
	}
}

// WithCopyrightMetrics counts render jobs.
func WithCopyrightMetrics(m *MetricsService) CopyrightServiceOption {
	return func(s *CopyrightService) {
		s.metrics = m
	}
}

// WithCopyrightClock overrides the submit timestamp source.
func WithCopyrightClock(now func() time.Time) CopyrightServiceOption {
	return func(s *CopyrightService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCopyrightService constructs the service.
func NewCopyrightService(records copyrightStore, templates templateStore, journals journalStore, submissions submissionReader, files storage.FileStore, audit auditLogger, tx TxRunner, cfg CopyrightServiceConfig, logger *zap.Logger, opts ...CopyrightServiceOption) *CopyrightService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = func(ctx context.Context, fn func(tx *sqlx.Tx) error) error { return fn(nil) }
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	svc := &CopyrightService{
		records:     records,
		templates:   templates,
		journals:    journals,
		submissions: submissions,
		files:       files,
		audit:       audit,
		tx:          tx,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Journals lists the journals selectable on the form.
func (s *CopyrightService) Journals(ctx context.Context) ([]models.Journal, error) {
	journals, err := s.journals.List(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list journals")
	}
	if journals == nil {
		journals = []models.Journal{}
	}
	return journals, nil
}

// Get returns the current agreement of a submission together with the template
// it is bound to. Without an agreement the active template is returned.
func (s *CopyrightService) Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.CopyrightView, error) {
	sub, err := s.ownedSubmission(ctx, submissionID, actor, true)
	if err != nil {
		return nil, err
	}
	active, err := s.activeTemplate(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.current(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	view := &dto.CopyrightView{Submission: current, ActiveVersion: active.Version}
	bound := active
	if current != nil && current.TemplateVersion != active.Version {
		if bound, err = s.templateVersion(ctx, current.TemplateVersion); err != nil {
			return nil, err
		}
	}
	parsed, err := parseTemplate(bound)
	if err != nil {
		return nil, err
	}
	view.Template = dto.TemplateView{Version: bound.Version, Name: bound.Name, Schema: parsed, Warnings: parsed.Warnings}

	if current != nil && current.PDFKey != nil && s.signer != nil {
		link, err := signedLink(s.signer, s.cfg.APIPrefix, sub.AuthorID, *current.PDFKey, pdfFilename(current))
		if err != nil {
			s.logger.Warn("failed to sign copyright pdf link", zap.String("copyright_id", current.ID), zap.Error(err))
		} else {
			view.PDFURL = link.URL
		}
	}
	return view, nil
}

// Submit stores the signed agreement against the active template. Slots that
// were already signed keep their signature. Agreements bound to an older
// template version are superseded by a new record.
func (s *CopyrightService) Submit(ctx context.Context, submissionID string, req dto.SubmitCopyrightRequest, actor *models.JWTClaims) (*dto.SubmitCopyrightResponse, error) {
	sub, err := s.ownedSubmission(ctx, submissionID, actor, false)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := req.CheckSignatureImages(); err != nil {
		return nil, err
	}
	if _, err := s.journal(ctx, req.JournalID); err != nil {
		return nil, err
	}
	tpl, err := s.activeTemplate(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.current(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &models.CopyrightSubmission{
		SubmissionID: sub.ID,
		AuthorID:     sub.AuthorID,
		CreatedAt:    now,
	}
	var previous models.Signatures
	if current != nil && current.TemplateVersion == tpl.Version {
		record = current
		previous = current.Signatures
	}
	record.JournalID = strings.TrimSpace(req.JournalID)
	record.ManuscriptTitle = strings.TrimSpace(req.ManuscriptTitle)
	record.Authors = models.Authors(req.Authors)
	record.Signatures = mergeSignatures(previous, req.Signatures, len(req.Authors))
	record.TemplateVersion = tpl.Version
	record.Status = models.CopyrightStatusSubmitted
	record.SubmittedAt = &now
	// The stored PDF reflects the previous signatures.
	record.PDFKey = nil

	var superseded int64
	err = s.tx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if superseded, err = s.records.SupersedeOlder(ctx, extOf(tx), sub.ID, tpl.Version); err != nil {
			return err
		}
		return s.records.Save(ctx, extOf(tx), record)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "copyright record changed while saving, reload and try again")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save copyright submission")
	}

	s.enqueueRender(ctx, record.ID)
	s.emitAudit(ctx, actor.UserID, record)
	s.logger.Info("copyright submitted",
		zap.String("submission_id", sub.ID),
		zap.String("copyright_id", record.ID),
		zap.Int("template_version", tpl.Version),
		zap.Int64("superseded", superseded),
	)
	return &dto.SubmitCopyrightResponse{
		ID:              record.ID,
		Status:          record.Status,
		TemplateVersion: record.TemplateVersion,
		Superseded:      superseded,
	}, nil
}

// Preview renders the active template for an unsaved form. Interactive
// previews carry sign actions on unsigned slots; otherwise the document is
// in print mode.
func (s *CopyrightService) Preview(ctx context.Context, req dto.PreviewRequest, asHTML, interactive bool, actor *models.JWTClaims) (*CopyrightPreview, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var sub *models.Submission
	if strings.TrimSpace(req.SubmissionID) != "" {
		owned, err := s.ownedSubmission(ctx, req.SubmissionID, actor, true)
		if err != nil {
			return nil, err
		}
		sub = owned
	}
	if err := req.CheckSignatureImages(); err != nil {
		return nil, err
	}
	tpl, err := s.activeTemplate(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := parseTemplate(tpl)
	if err != nil {
		return nil, err
	}

	var journal *models.Journal
	if strings.TrimSpace(req.JournalID) != "" {
		if journal, err = s.journal(ctx, req.JournalID); err != nil {
			return nil, err
		}
	}
	data, err := recordContext(journal, sub, req.ManuscriptTitle, req.Authors, time.Time{}, tpl.Version)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build form data")
	}

	var onSign schema.SignFunc
	if interactive {
		onSign = signAction
	}
	doc := schema.Render(parsed, data, req.Signatures.Map(), onSign)
	preview := &CopyrightPreview{Document: doc}
	if asHTML {
		if preview.HTML, err = schema.EncodeHTML(doc); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render form")
		}
	}
	return preview, nil
}

// HandleRenderJob is the job queue entry point for JobTypeCopyrightPDF.
func (s *CopyrightService) HandleRenderJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		s.logger.Error("copyright render job without record id", zap.String("job_id", job.ID))
		return nil
	}
	_, err := s.RenderRecord(ctx, id)
	if errors.Is(err, appErrors.ErrNotFound) || errors.Is(err, appErrors.ErrPreconditionFailed) {
		// A missing or no longer submitted record never becomes renderable.
		s.logger.Warn("copyright render job dropped", zap.String("job_id", job.ID), zap.String("copyright_id", id), zap.Error(err))
		return nil
	}
	return err
}

// RenderRecord renders a submitted agreement to PDF in print mode, stores it
// and returns the storage key.
func (s *CopyrightService) RenderRecord(ctx context.Context, id string) (key string, err error) {
	defer func() { s.metrics.ObserveRenderJob(err) }()

	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "copyright record not found")
		}
		return "", fmt.Errorf("load copyright record: %w", err)
	}
	if record.Status != models.CopyrightStatusSubmitted {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "only submitted agreements are rendered")
	}
	tpl, err := s.templateVersion(ctx, record.TemplateVersion)
	if err != nil {
		return "", err
	}
	parsed, err := parseTemplate(tpl)
	if err != nil {
		return "", err
	}
	sub, err := s.submissions.GetByID(ctx, record.SubmissionID)
	if err != nil {
		return "", fmt.Errorf("load submission: %w", err)
	}
	journal, err := s.journals.GetByID(ctx, record.JournalID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("load journal: %w", err)
		}
		journal = &models.Journal{ID: record.JournalID}
	}

	var submittedAt time.Time
	if record.SubmittedAt != nil {
		submittedAt = record.SubmittedAt.UTC()
	}
	data, err := recordContext(journal, sub, record.ManuscriptTitle, record.Authors, submittedAt, record.TemplateVersion)
	if err != nil {
		return "", fmt.Errorf("build form data: %w", err)
	}
	doc := schema.Render(parsed, data, record.Signatures.Map(), nil)
	if len(doc.Warnings) > 0 {
		s.logger.Warn("copyright render warnings", zap.String("copyright_id", record.ID), zap.Strings("warnings", doc.Warnings))
	}
	pdf, err := schema.EncodePDF(doc, submittedAt)
	if err != nil {
		return "", fmt.Errorf("encode copyright pdf: %w", err)
	}

	key = fmt.Sprintf("copyright/%s/%s-v%d.pdf", record.SubmissionID, record.ID, record.TemplateVersion)
	stored, err := s.files.Save(ctx, key, bytes.NewReader(pdf), "application/pdf")
	if err != nil {
		return "", fmt.Errorf("store copyright pdf: %w", err)
	}
	if err := s.records.SetPDFKey(ctx, record.ID, stored); err != nil {
		return "", fmt.Errorf("record copyright pdf: %w", err)
	}
	s.logger.Info("copyright pdf rendered", zap.String("copyright_id", record.ID), zap.String("key", stored), zap.Int("bytes", len(pdf)))
	return stored, nil
}

// OpenPDF streams the rendered agreement, rendering it first when the
// background job has not finished yet.
func (s *CopyrightService) OpenPDF(ctx context.Context, submissionID string, actor *models.JWTClaims) (*FileDownload, error) {
	sub, err := s.ownedSubmission(ctx, submissionID, actor, true)
	if err != nil {
		return nil, err
	}
	current, err := s.current(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Status != models.CopyrightStatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no submitted copyright agreement")
	}

	key := ""
	if current.PDFKey != nil {
		key = *current.PDFKey
	}
	if key == "" {
		if key, err = s.RenderRecord(ctx, current.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render copyright agreement")
		}
	}
	reader, err := s.files.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "copyright agreement file missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open copyright agreement")
	}
	return &FileDownload{Content: reader, Filename: pdfFilename(current), MimeType: "application/pdf"}, nil
}

func (s *CopyrightService) ownedSubmission(ctx context.Context, id string, actor *models.JWTClaims, readOnly bool) (*models.Submission, error) {
	return loadOwnedSubmission(ctx, s.submissions, id, actor, readOnly)
}

// loadOwnedSubmission loads the abstract and checks the actor may work on its
// agreement. Writes additionally need the owning author and an accepted abstract.
func loadOwnedSubmission(ctx context.Context, submissions submissionReader, id string, actor *models.JWTClaims, readOnly bool) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	sub, err := submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	owner := actor.Role == models.RoleAuthor && sub.AuthorID == actor.UserID
	if readOnly && (owner || actor.IsAdmin()) {
		return sub, nil
	}
	if !owner {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting author can sign the copyright agreement")
	}
	if sub.Status != workflow.StatusAccepted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "copyright agreements are only accepted for accepted abstracts")
	}
	return sub, nil
}

func (s *CopyrightService) current(ctx context.Context, submissionID string) (*models.CopyrightSubmission, error) {
	current, err := s.records.GetCurrent(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copyright submission")
	}
	return current, nil
}

func (s *CopyrightService) activeTemplate(ctx context.Context) (*models.FormTemplate, error) {
	tpl, err := s.templates.GetActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no copyright template has been published")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copyright template")
	}
	return tpl, nil
}

func (s *CopyrightService) templateVersion(ctx context.Context, version int) (*models.FormTemplate, error) {
	tpl, err := s.templates.GetByVersion(ctx, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("copyright template version %d not found", version))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copyright template")
	}
	return tpl, nil
}

func (s *CopyrightService) journal(ctx context.Context, id string) (*models.Journal, error) {
	journal, err := s.journals.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "selected journal does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load journal")
	}
	if !journal.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selected journal is not accepting submissions")
	}
	return journal, nil
}

func (s *CopyrightService) enqueueRender(ctx context.Context, id string) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: id, Type: JobTypeCopyrightPDF, Payload: id}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Warn("failed to enqueue copyright render, it will render on first download", zap.String("copyright_id", id), zap.Error(err))
	}
}

func (s *CopyrightService) emitAudit(ctx context.Context, userID string, record *models.CopyrightSubmission) {
	if s.audit == nil {
		return
	}
	id := record.ID
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionCopyrightSubmit,
		Resource:   models.AuditResourceCopyright,
		ResourceID: &id,
		IPAddress:  "system",
		UserAgent:  "copyright-service",
	}
	entry.NewValues, _ = json.Marshal(map[string]interface{}{
		"submission_id":    record.SubmissionID,
		"journal_id":       record.JournalID,
		"template_version": record.TemplateVersion,
		"signed_slots":     len(record.Signatures),
	})
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// mergeSignatures keeps previously signed slots and adds newly signed ones.
// Slots without an author or beyond the signing window are dropped.
func mergeSignatures(previous, next models.Signatures, authors int) models.Signatures {
	limit := min(schema.MaxSigningAuthors, authors)
	out := make(models.Signatures)
	for slot, sig := range next {
		if slot >= 0 && slot < limit && sig.Signed() {
			out[slot] = sig
		}
	}
	for slot, sig := range previous {
		if slot >= 0 && slot < limit && sig.Signed() {
			out[slot] = sig
		}
	}
	return out
}

// recordContext builds the data the template keys resolve against.
func recordContext(journal *models.Journal, sub *models.Submission, title string, authors []models.Author, submittedAt time.Time, version int) (schema.Value, error) {
	ctx := map[string]interface{}{
		"manuscriptTitle": strings.TrimSpace(title),
		"authors":         authors,
		"templateVersion": version,
	}
	if authors == nil {
		ctx["authors"] = []models.Author{}
	}
	if len(authors) > 0 {
		ctx["correspondingAuthor"] = authors[0]
	}
	if journal != nil {
		ctx["journal"] = map[string]interface{}{"id": journal.ID, "title": journal.Title, "issn": journal.ISSN}
	}
	if sub != nil {
		ctx["submission"] = map[string]interface{}{
			"id":       sub.ID,
			"title":    sub.Title,
			"status":   string(sub.Status),
			"groupId":  sub.GroupID,
			"author":   sub.AuthorName,
			"keywords": sub.Keywords,
		}
	}
	if !submittedAt.IsZero() {
		ctx["submittedAt"] = submittedAt.Format("2006-01-02")
	}
	return schema.FromAny(ctx)
}

func signAction(slot int) string {
	return fmt.Sprintf("sign-author-%d", slot+1)
}

func pdfFilename(record *models.CopyrightSubmission) string {
	return fmt.Sprintf("copyright-%s-v%d.pdf", record.SubmissionID, record.TemplateVersion)
}
