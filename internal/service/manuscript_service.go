package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/repository"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
	"github.com/noah-isme/journal-portal-api/pkg/storage"
)

// ManuscriptUpload is a full paper received from the author.
type ManuscriptUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// ManuscriptServiceConfig limits accepted uploads.
type ManuscriptServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// ManuscriptView describes the stored full paper.
type ManuscriptView struct {
	CopyrightID string          `json:"copyright_id"`
	Filename    string          `json:"filename"`
	MimeType    string          `json:"mime_type"`
	SizeBytes   int64           `json:"size_bytes"`
	Download    *dto.SignedLink `json:"download,omitempty"`
}

// ManuscriptService stores full papers and serves signed downloads.
type ManuscriptService struct {
	records     copyrightStore
	submissions submissionReader
	files       storage.FileStore
	signer      *storage.SignedURLSigner
	audit       auditLogger
	cfg         ManuscriptServiceConfig
	mimeSet     map[string]struct{}
	logger      *zap.Logger
}

// NewManuscriptService constructs the service with sane defaults.
func NewManuscriptService(records copyrightStore, submissions submissionReader, files storage.FileStore, signer *storage.SignedURLSigner, audit auditLogger, cfg ManuscriptServiceConfig, logger *zap.Logger) *ManuscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 20 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/zip",
		}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &ManuscriptService{
		records:     records,
		submissions: submissions,
		files:       files,
		signer:      signer,
		audit:       audit,
		cfg:         cfg,
		mimeSet:     mimeSet,
		logger:      logger,
	}
}

// Upload stores the full paper of an accepted abstract on its copyright record.
// A previously uploaded file is replaced.
func (s *ManuscriptService) Upload(ctx context.Context, submissionID string, upload ManuscriptUpload, actor *models.JWTClaims) (*ManuscriptView, error) {
	sub, err := loadOwnedSubmission(ctx, s.submissions, submissionID, actor, false)
	if err != nil {
		return nil, err
	}
	record, err := s.record(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	mimeType, err := detectMime(upload)
	if err != nil {
		return nil, err
	}
	if _, allowed := s.mimeSet[mimeType]; !allowed {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mime type %s not allowed", mimeType))
	}

	name := cleanFilename(upload.Filename, mimeType)
	key := fmt.Sprintf("manuscripts/%s/%s%s", sub.ID, uuid.NewString(), filepath.Ext(name))
	stored, err := s.files.Save(ctx, key, upload.Content, mimeType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store manuscript")
	}
	params := repository.ManuscriptParams{ID: record.ID, Key: stored, Name: name, MIME: mimeType, Size: upload.Size}
	if err := s.records.SetManuscript(ctx, params); err != nil {
		_ = s.files.Delete(ctx, stored)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record manuscript")
	}
	if record.ManuscriptKey != nil && *record.ManuscriptKey != "" && *record.ManuscriptKey != stored {
		if err := s.files.Delete(ctx, *record.ManuscriptKey); err != nil {
			s.logger.Warn("failed to delete replaced manuscript", zap.String("key", *record.ManuscriptKey), zap.Error(err))
		}
	}

	s.emitAudit(ctx, actor.UserID, record.ID, params)
	view := &ManuscriptView{CopyrightID: record.ID, Filename: name, MimeType: mimeType, SizeBytes: upload.Size}
	if s.signer != nil {
		if view.Download, err = signedLink(s.signer, s.cfg.APIPrefix, sub.AuthorID, stored, name); err != nil {
			s.logger.Warn("failed to sign manuscript link", zap.String("copyright_id", record.ID), zap.Error(err))
		}
	}
	return view, nil
}

// Link issues a time-limited download link for the stored full paper.
func (s *ManuscriptService) Link(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.SignedLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	sub, err := loadOwnedSubmission(ctx, s.submissions, submissionID, actor, true)
	if err != nil {
		return nil, err
	}
	record, err := s.record(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if record.ManuscriptKey == nil || *record.ManuscriptKey == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no manuscript uploaded")
	}
	name := ""
	if record.ManuscriptName != nil {
		name = *record.ManuscriptName
	}
	link, err := signedLink(s.signer, s.cfg.APIPrefix, sub.AuthorID, *record.ManuscriptKey, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return link, nil
}

// OpenSigned resolves a download token. The token itself is the credential.
func (s *ManuscriptService) OpenSigned(ctx context.Context, token string) (*FileDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	file, err := s.signer.Parse(strings.TrimSpace(token), false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	reader, err := s.files.Open(ctx, file.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	filename := file.Filename
	if filename == "" {
		filename = filepath.Base(file.Key)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &FileDownload{Content: reader, Filename: filename, MimeType: mimeType}, nil
}

func (s *ManuscriptService) record(ctx context.Context, submissionID string) (*models.CopyrightSubmission, error) {
	record, err := s.records.GetCurrent(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submit the copyright agreement before uploading the manuscript")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load copyright submission")
	}
	return record, nil
}

func (s *ManuscriptService) emitAudit(ctx context.Context, userID, recordID string, params repository.ManuscriptParams) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionManuscriptUpload,
		Resource:   models.AuditResourceCopyright,
		ResourceID: &recordID,
		IPAddress:  "system",
		UserAgent:  "manuscript-service",
	}
	entry.NewValues, _ = json.Marshal(map[string]interface{}{
		"filename":   params.Name,
		"mime_type":  params.MIME,
		"size_bytes": params.Size,
	})
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// detectMime sniffs the content. Formats the sniffer cannot tell apart from
// arbitrary binary fall back to the declared type.
func detectMime(upload ManuscriptUpload) (string, error) {
	header := make([]byte, 512)
	n, err := upload.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	sniffed := baseMime(http.DetectContentType(header[:n]))
	if sniffed == "application/octet-stream" && upload.MimeType != "" {
		return baseMime(upload.MimeType), nil
	}
	return sniffed, nil
}

func baseMime(raw string) string {
	if parsed, _, err := mime.ParseMediaType(raw); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// cleanFilename keeps the base name of the upload with a usable extension.
func cleanFilename(original, mimeType string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(original), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "manuscript"
	}
	if filepath.Ext(name) == "" {
		ext := mimeExtension(mimeType)
		if ext == "" {
			ext = ".bin"
		}
		name += ext
	}
	return name
}

func mimeExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "application/pdf":
		return ".pdf"
	case "application/msword":
		return ".doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/zip":
		return ".zip"
	default:
		return ""
	}
}

func signedLink(signer *storage.SignedURLSigner, apiPrefix, ownerID, key, filename string) (*dto.SignedLink, error) {
	token, expiresAt, err := signer.Generate(ownerID, key, filename)
	if err != nil {
		return nil, err
	}
	return &dto.SignedLink{
		URL:       fmt.Sprintf("%s/files/download?token=%s", strings.TrimRight(apiPrefix, "/"), url.QueryEscape(token)),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}
