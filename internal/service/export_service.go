package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/dto"
	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
	"github.com/noah-isme/journal-portal-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// exportPageSize bounds a single export; the submission list caps pages at this size.
const exportPageSize = 200

type submissionLister interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered export ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportService renders the submissions of a group as CSV or PDF.
type ExportService struct {
	submissions submissionLister
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(submissions submissionLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{submissions: submissions, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

var exportHeaders = []string{
	"ID", "Title", "Author", "Status", "Editor", "Editor Decision",
	"Conference Editor", "Conference Editor Decision", "Admin Decision", "Submitted At", "Updated At",
}

// Group renders every submission of a group. Admins only.
func (s *ExportService) Group(ctx context.Context, query dto.ExportQuery, actor *models.JWTClaims) (*ExportFile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can export submissions")
	}
	groupID := strings.TrimSpace(query.GroupID)
	if groupID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "groupId is required")
	}
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", query.Format))
	}
	statuses, err := parseStatuses(query.Status)
	if err != nil {
		return nil, err
	}

	subs, err := s.collect(ctx, models.SubmissionFilter{GroupID: groupID, Status: statuses})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}
	dataset := buildSubmissionDataset(subs)

	file := &ExportFile{Rows: len(subs)}
	stamp := s.now().UTC().Format("20060102_150405")
	name := fmt.Sprintf("submissions_%s_%s", sanitizeFilename(groupID), stamp)
	switch format {
	case ExportFormatCSV:
		file.Body, err = s.csv.Render(dataset)
		file.ContentType = "text/csv"
		file.Filename = name + ".csv"
	case ExportFormatPDF:
		file.Body, err = s.pdf.Render(dataset, fmt.Sprintf("Submissions - %s", groupID))
		file.ContentType = "application/pdf"
		file.Filename = name + ".pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("submissions exported",
		zap.String("group_id", groupID),
		zap.String("format", format),
		zap.Int("rows", file.Rows),
		zap.String("actor_id", actor.UserID),
	)
	return file, nil
}

// collect walks every page of the filtered list.
func (s *ExportService) collect(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	filter.PageSize = exportPageSize
	var out []models.Submission
	for page := 1; ; page++ {
		filter.Page = page
		subs, total, err := s.submissions.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, subs...)
		if len(subs) < exportPageSize || len(out) >= total {
			return out, nil
		}
	}
}

func buildSubmissionDataset(subs []models.Submission) export.Dataset {
	rows := make([]map[string]string, 0, len(subs))
	for _, sub := range subs {
		var submittedAt *time.Time
		if ts, ok := sub.StatusTimestamps[workflow.StatusSubmitted]; ok {
			submittedAt = &ts
		}
		updatedAt := sub.UpdatedAt
		rows = append(rows, map[string]string{
			"ID":                         sub.ID,
			"Title":                      sub.Title,
			"Author":                     sub.AuthorName,
			"Status":                     string(sub.Status),
			"Editor":                     deref(sub.EditorName),
			"Editor Decision":            deref(sub.EditorDecision),
			"Conference Editor":          deref(sub.ConferenceEditorName),
			"Conference Editor Decision": deref(sub.ConferenceEditorDecision),
			"Admin Decision":             deref(sub.AdminDecision),
			"Submitted At":               formatReportTime(submittedAt),
			"Updated At":                 formatReportTime(&updatedAt),
		})
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}

func parseStatuses(raw []string) ([]workflow.Status, error) {
	var out []workflow.Status
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			st := workflow.Status(part)
			if !st.Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", part))
			}
			out = append(out, st)
		}
	}
	return out, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatReportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
