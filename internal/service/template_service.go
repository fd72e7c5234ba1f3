package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/schema"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(tx *sqlx.Tx) error) error

type templateStore interface {
	GetActive(ctx context.Context) (*models.FormTemplate, error)
	GetByVersion(ctx context.Context, version int) (*models.FormTemplate, error)
	Publish(ctx context.Context, exec sqlx.ExtContext, tpl *models.FormTemplate) error
}

// TemplateService manages the versioned copyright form schema.
type TemplateService struct {
	repo      templateStore
	audit     auditLogger
	tx        TxRunner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTemplateService constructs the service.
func NewTemplateService(repo templateStore, audit auditLogger, tx TxRunner, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if tx == nil {
		tx = func(ctx context.Context, fn func(tx *sqlx.Tx) error) error { return fn(nil) }
	}
	return &TemplateService{repo: repo, audit: audit, tx: tx, validator: validate, logger: logger}
}

// Active returns the template authors currently fill in.
func (s *TemplateService) Active(ctx context.Context) (*dto.TemplateView, error) {
	tpl, err := s.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no copyright template has been published")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copyright template")
	}
	return s.view(tpl)
}

// ByVersion returns a specific, possibly inactive, template version.
func (s *TemplateService) ByVersion(ctx context.Context, version int) (*dto.TemplateView, error) {
	tpl, err := s.repo.GetByVersion(ctx, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "copyright template version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copyright template")
	}
	return s.view(tpl)
}

// Publish stores a new template version and makes it the active one.
func (s *TemplateService) Publish(ctx context.Context, req dto.PublishTemplateRequest, actor *models.JWTClaims) (*dto.TemplateView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can publish templates")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	parsed, err := schema.Parse(req.Schema)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSchemaInvalid.Code, appErrors.ErrSchemaInvalid.Status, "template schema is not valid JSON")
	}
	if !hasKnownSection(parsed) {
		return nil, appErrors.Clone(appErrors.ErrSchemaInvalid, "template has no renderable sections")
	}

	publisher := actor.UserID
	tpl := &models.FormTemplate{
		Name:        req.Name,
		Schema:      []byte(req.Schema),
		PublishedBy: &publisher,
	}
	err = s.tx(ctx, func(tx *sqlx.Tx) error {
		return s.repo.Publish(ctx, extOf(tx), tpl)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish template")
	}

	if len(parsed.Warnings) > 0 {
		s.logger.Warn("published template has warnings",
			zap.Int("version", tpl.Version),
			zap.Strings("warnings", parsed.Warnings),
		)
	}
	s.emitAudit(ctx, actor.UserID, tpl)
	return &dto.TemplateView{Version: tpl.Version, Name: tpl.Name, Schema: parsed, Warnings: parsed.Warnings}, nil
}

func (s *TemplateService) view(tpl *models.FormTemplate) (*dto.TemplateView, error) {
	parsed, err := parseTemplate(tpl)
	if err != nil {
		return nil, err
	}
	if len(parsed.Warnings) > 0 {
		s.logger.Debug("template warnings", zap.Int("version", tpl.Version), zap.Strings("warnings", parsed.Warnings))
	}
	return &dto.TemplateView{Version: tpl.Version, Name: tpl.Name, Schema: parsed, Warnings: parsed.Warnings}, nil
}

func (s *TemplateService) emitAudit(ctx context.Context, userID string, tpl *models.FormTemplate) {
	if s.audit == nil {
		return
	}
	id := tpl.ID
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionTemplatePublish,
		Resource:   models.AuditResourceTemplate,
		ResourceID: &id,
		NewValues:  []byte(tpl.Schema),
		IPAddress:  "system",
		UserAgent:  "template-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func parseTemplate(tpl *models.FormTemplate) (*schema.FormSchema, error) {
	parsed, err := schema.Parse([]byte(tpl.Schema))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSchemaInvalid.Code, appErrors.ErrSchemaInvalid.Status, "stored template is unreadable")
	}
	if parsed.Name == "" {
		parsed.Name = tpl.Name
	}
	return parsed, nil
}

func hasKnownSection(s *schema.FormSchema) bool {
	for _, sec := range s.Sections {
		if sec.Type.Known() {
			return true
		}
	}
	return false
}

// extOf keeps a nil transaction from turning into a non-nil interface.
func extOf(tx *sqlx.Tx) sqlx.ExtContext {
	if tx == nil {
		return nil
	}
	return tx
}
