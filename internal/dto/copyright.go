package dto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/journal-portal-api/internal/models"
	"github.com/noah-isme/journal-portal-api/internal/schema"
	appErrors "github.com/noah-isme/journal-portal-api/pkg/errors"
)

var validate = validator.New()

// SubmitCopyrightRequest is the full paper copyright form.
type SubmitCopyrightRequest struct {
	JournalID       string            `json:"journalId"`
	ManuscriptTitle string            `json:"manuscriptTitle"`
	Authors         []models.Author   `json:"authors"`
	Signatures      models.Signatures `json:"signatures"`
}

// Validate applies the completeness gate: at least one signed author slot,
// a first author with name and email, and a selected journal and title.
// Every problem is reported in one error.
func (r SubmitCopyrightRequest) Validate() error {
	var problems []string

	if len(r.Authors) == 0 {
		problems = append(problems, "at least one author is required")
	} else {
		first := r.Authors[0]
		if strings.TrimSpace(first.Name) == "" {
			problems = append(problems, "first author name is required")
		}
		if strings.TrimSpace(first.Email) == "" {
			problems = append(problems, "first author email is required")
		} else if err := validate.Var(first.Email, "email"); err != nil {
			problems = append(problems, "first author email is invalid")
		}
	}
	if r.SignedCount() == 0 {
		problems = append(problems, "at least one author must sign")
	}
	if strings.TrimSpace(r.JournalID) == "" {
		problems = append(problems, "journal is required")
	}
	if strings.TrimSpace(r.ManuscriptTitle) == "" {
		problems = append(problems, "manuscript title is required")
	}

	if len(problems) > 0 {
		return appErrors.Clone(appErrors.ErrCopyrightIncomplete, strings.Join(problems, "; "))
	}
	return nil
}

// SignedCount counts signatures bound to an existing author within the signing window.
func (r SubmitCopyrightRequest) SignedCount() int {
	n := 0
	for slot, sig := range r.Signatures {
		if slot < 0 || slot >= schema.MaxSigningAuthors || slot >= len(r.Authors) {
			continue
		}
		if sig.Signed() {
			n++
		}
	}
	return n
}

// CheckSignatureImages rejects signature images that are not png or jpeg data URLs.
func (r SubmitCopyrightRequest) CheckSignatureImages() error {
	for slot, sig := range r.Signatures {
		if sig == nil || sig.Image == "" {
			continue
		}
		if _, _, err := schema.DecodeDataURL(sig.Image); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("signature %d: %v", slot+1, err))
		}
	}
	return nil
}

// CopyrightView bundles the current agreement with the template it must be rendered with.
// ActiveVersion differs from Template.Version when a newer template was published
// after the agreement was saved.
type CopyrightView struct {
	Submission    *models.CopyrightSubmission `json:"submission"`
	Template      TemplateView                `json:"template"`
	ActiveVersion int                         `json:"active_version"`
	PDFURL        string                      `json:"pdf_url,omitempty"`
}

// TemplateView exposes a template with its schema in its published wire form.
type TemplateView struct {
	Version  int                `json:"version"`
	Name     string             `json:"name"`
	Schema   *schema.FormSchema `json:"schema"`
	Warnings []string           `json:"warnings,omitempty"`
}

// PublishTemplateRequest publishes a new template version.
type PublishTemplateRequest struct {
	Name   string          `json:"name" validate:"required"`
	Schema json.RawMessage `json:"schema" validate:"required"`
}

// PreviewRequest renders the form without persisting anything.
type PreviewRequest struct {
	SubmitCopyrightRequest
	SubmissionID string `json:"submissionId"`
}

// SubmitCopyrightResponse acknowledges a submitted agreement.
type SubmitCopyrightResponse struct {
	ID              string                 `json:"id"`
	Status          models.CopyrightStatus `json:"status"`
	TemplateVersion int                    `json:"template_version"`
	Superseded      int64                  `json:"superseded"`
}

// SignedLink is a time-limited download link.
type SignedLink struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}
